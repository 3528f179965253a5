/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package backoff computes retry delays for outbox delivery attempts.
// Exponential growth is capped so spacing stays bounded, and full jitter
// is added to avoid synchronized retry storms across records.
package backoff

import (
	"math/rand"
	"time"
)

const (
	// maxExponent caps the exponential term at base * 2^6.
	maxExponent = 6

	// DefaultJitter is the upper bound of the random component.
	DefaultJitter = 250 * time.Millisecond
)

// Policy maps an attempt count to a delay. The zero value is not usable;
// construct with New.
type Policy struct {
	base   time.Duration
	jitter time.Duration
}

// New returns a Policy with the given base delay. Non-positive bases fall
// back to one second.
func New(base time.Duration) Policy {
	if base <= 0 {
		base = time.Second
	}
	return Policy{base: base, jitter: DefaultJitter}
}

// Delay returns the wait before the next attempt after `attempts` failed
// tries: base * 2^min(attempts, 6) + random(0, 250ms).
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	exp := attempts
	if exp > maxExponent {
		exp = maxExponent
	}
	d := p.base * time.Duration(1<<uint(exp))
	if p.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.jitter)))
	}
	return d
}

// Max returns the largest delay Delay can produce for any attempt count.
func (p Policy) Max() time.Duration {
	return p.base*time.Duration(1<<maxExponent) + p.jitter
}
