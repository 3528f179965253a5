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

// Package ratelimit enforces a fixed-window request quota per caller
// identity. Fixed windows permit up to 2x the limit across a window
// boundary in the worst case; the trade is O(1) memory per key and no
// background sweep.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/huglink/huglink/internal/store"
)

// counter is the persisted per-key state. Stale counters are simply
// overwritten on the next request after resetAt.
type counter struct {
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Result reports one admission decision plus the quota bookkeeping callers
// need to self-throttle. Limit, Remaining and RetryAfter are emitted on
// every response, accepted or rejected.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds until the window resets
}

// Limiter is a fixed-window counter over an injectable keyed store.
type Limiter struct {
	kv     store.KV
	limit  int
	window time.Duration

	// serializes the read-modify-write on the backing store within this
	// process; cross-instance counting is out of scope.
	mu sync.Mutex
}

func New(kv store.KV, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{kv: kv, limit: limit, window: window}
}

// Allow records one request for key and decides whether it fits the window
// quota. The counting request itself always increments, even when rejected.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, err := l.load(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if c == nil || now.After(c.ResetAt) {
		c = &counter{Count: 0, ResetAt: now.Add(l.window)}
	}

	pre := c.Count
	c.Count++

	if err := l.save(ctx, key, c); err != nil {
		return Result{}, err
	}

	remaining := l.limit - c.Count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:    pre < l.limit,
		Limit:      l.limit,
		Remaining:  remaining,
		RetryAfter: secondsUntil(c.ResetAt, now),
	}, nil
}

func (l *Limiter) load(ctx context.Context, key string) (*counter, error) {
	data, ok, err := l.kv.Get(ctx, "rate:"+key)
	if err != nil {
		return nil, fmt.Errorf("rate counter read: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var c counter
	if err := json.Unmarshal(data, &c); err != nil {
		// a corrupt counter should not lock a caller out; start over
		return nil, nil
	}
	return &c, nil
}

func (l *Limiter) save(ctx context.Context, key string, c *counter) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	// the entry is useless past its window; let the store evict it
	ttl := time.Until(c.ResetAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := l.kv.Set(ctx, "rate:"+key, data, ttl); err != nil {
		return fmt.Errorf("rate counter write: %w", err)
	}
	return nil
}

func secondsUntil(t, now time.Time) int {
	s := int(math.Ceil(t.Sub(now).Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
