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

// Package idempotency collapses retried unsafe requests into a single
// observable effect: the first completed response for a request fingerprint
// is stored and replayed verbatim until the entry expires.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// HeaderKey is the request header carrying the caller-supplied token.
const HeaderKey = "Idempotency-Key"

// localCacheSize bounds the in-process TinyLFU tier.
const localCacheSize = 128000

// UnsafeMethods are the methods the cache applies to. Safe methods bypass
// the cache entirely.
var UnsafeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPatch:  true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// Entry is the stored outcome of the first completed request for a
// fingerprint. Status and Body are replayed byte-for-byte.
type Entry struct {
	Status   int       `json:"status"`
	Body     []byte    `json:"body"`
	StoredAt time.Time `json:"stored_at"`
	TTLMs    int64     `json:"ttl_ms"`
}

func (e *Entry) live(now time.Time) bool {
	return now.Before(e.StoredAt.Add(time.Duration(e.TTLMs) * time.Millisecond))
}

// Store holds idempotency entries in a two-tier cache (redis plus a local
// TinyLFU tier), or local-only when no redis client is given.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore returns a redis-backed Store with a local cache tier.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{
		cache: cache.New(&cache.Options{
			Redis:      client,
			LocalCache: cache.NewTinyLFU(localCacheSize, time.Minute),
		}),
		ttl: normalizeTTL(ttl),
	}
}

// NewLocalStore returns a process-local Store; used by tests and
// single-instance deployments.
func NewLocalStore(ttl time.Duration) *Store {
	return &Store{
		cache: cache.New(&cache.Options{
			LocalCache: cache.NewTinyLFU(localCacheSize, time.Minute),
		}),
		ttl: normalizeTTL(ttl),
	}
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 24 * time.Hour
	}
	return ttl
}

// Fingerprint derives the cache key from everything that defines "the same
// request": the caller token, method, route path, and a hash of the body.
// A changed body under the same token is a different fingerprint, not a
// conflict.
func Fingerprint(key, method, path string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s", key, method, path, hex.EncodeToString(bodyHash[:]))))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the live entry for fingerprint, if any. Entries past their
// TTL read as absent even when the cache still holds them.
func (s *Store) Lookup(ctx context.Context, fingerprint string) (*Entry, bool, error) {
	var entry Entry
	err := s.cache.Get(ctx, cacheKey(fingerprint), &entry)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if !entry.live(time.Now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Record stores the response for fingerprint. The conditional write means
// the first completion wins the slot; a concurrent duplicate that also ran
// the handler cannot overwrite it.
func (s *Store) Record(ctx context.Context, fingerprint string, status int, body []byte) error {
	entry := &Entry{
		Status:   status,
		Body:     append([]byte(nil), body...),
		StoredAt: time.Now(),
		TTLMs:    s.ttl.Milliseconds(),
	}
	err := s.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   cacheKey(fingerprint),
		Value: entry,
		TTL:   s.ttl,
		SetNX: true,
	})
	if err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}

// TTL exposes the configured entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func cacheKey(fingerprint string) string {
	return "idem:" + fingerprint
}
