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

// Package replay records webhook event identifiers so a captured request
// cannot be admitted twice within its freshness window.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/huglink/huglink/internal/store"
)

// Guard answers "was this event already admitted?" and marks admissions.
// Entries expire after the configured TTL, after which an identical payload
// is no longer considered a replay.
type Guard struct {
	kv  store.KV
	ttl time.Duration
}

func NewGuard(kv store.KV, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Guard{kv: kv, ttl: ttl}
}

func guardKey(integrationKey, eventID string) string {
	return fmt.Sprintf("replay:%s:%s", integrationKey, eventID)
}

// Seen reports whether the event was admitted within the TTL window.
func (g *Guard) Seen(ctx context.Context, integrationKey, eventID string) (bool, error) {
	_, ok, err := g.kv.Get(ctx, guardKey(integrationKey, eventID))
	if err != nil {
		return false, fmt.Errorf("replay guard lookup: %w", err)
	}
	return ok, nil
}

// Admit marks the event as used, returning false when another admission won
// the slot first. The conditional write is what closes the race between two
// near-simultaneous deliveries of the same event.
func (g *Guard) Admit(ctx context.Context, integrationKey, eventID string) (bool, error) {
	ok, err := g.kv.SetNX(ctx, guardKey(integrationKey, eventID), []byte("1"), g.ttl)
	if err != nil {
		return false, fmt.Errorf("replay guard admit: %w", err)
	}
	return ok, nil
}

// TTL exposes the configured replay window.
func (g *Guard) TTL() time.Duration {
	return g.ttl
}
