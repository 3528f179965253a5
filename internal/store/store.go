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

// Package store provides the keyed stores backing the reliability layer.
// Each component (replay guard, rate counters, idempotency entries) owns
// its own KV instance; no two components share one.
package store

import (
	"context"
	"time"
)

// KV is a keyed byte store with per-key TTL. Implementations must treat an
// expired key as absent.
type KV interface {
	// Get returns the value for key. The second return reports presence.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes value only if key is absent, returning whether the write
	// happened. This is the conditional primitive the replay guard relies on
	// for atomic check-and-admit.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
