package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	base := Fingerprint("k1", http.MethodPost, "/hugs", []byte(`{"to":"usr_1"}`))

	assert.Equal(t, base, Fingerprint("k1", http.MethodPost, "/hugs", []byte(`{"to":"usr_1"}`)))
	assert.NotEqual(t, base, Fingerprint("k2", http.MethodPost, "/hugs", []byte(`{"to":"usr_1"}`)))
	assert.NotEqual(t, base, Fingerprint("k1", http.MethodPut, "/hugs", []byte(`{"to":"usr_1"}`)))
	assert.NotEqual(t, base, Fingerprint("k1", http.MethodPost, "/pairs", []byte(`{"to":"usr_1"}`)))
	// changed body under the same key is a different fingerprint
	assert.NotEqual(t, base, Fingerprint("k1", http.MethodPost, "/hugs", []byte(`{"to":"usr_2"}`)))
}

func TestLookupMiss(t *testing.T) {
	s := NewLocalStore(time.Minute)
	_, ok, err := s.Lookup(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(time.Minute)
	fp := Fingerprint("k1", http.MethodPost, "/hugs", []byte(`{}`))

	require.NoError(t, s.Record(ctx, fp, http.StatusCreated, []byte(`{"id":"hug_1"}`)))

	entry, ok, err := s.Lookup(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusCreated, entry.Status)
	assert.Equal(t, []byte(`{"id":"hug_1"}`), entry.Body)
}

func TestRecordFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(time.Minute)
	fp := Fingerprint("k1", http.MethodPost, "/hugs", []byte(`{}`))

	require.NoError(t, s.Record(ctx, fp, http.StatusCreated, []byte(`{"id":"hug_1"}`)))
	require.NoError(t, s.Record(ctx, fp, http.StatusCreated, []byte(`{"id":"hug_2"}`)))

	entry, ok, err := s.Lookup(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"id":"hug_1"}`), entry.Body, "second completion must not overwrite the slot")
}

func TestLookupExpired(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(20 * time.Millisecond)
	fp := Fingerprint("k1", http.MethodPost, "/hugs", []byte(`{}`))

	require.NoError(t, s.Record(ctx, fp, http.StatusOK, []byte(`{}`)))
	time.Sleep(40 * time.Millisecond)

	// the local tier may still hold the value; liveness check must hide it
	_, ok, err := s.Lookup(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok, "expired entry must not replay")
}

func TestRedisBackedStore(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	s := NewStore(client, time.Minute)
	fp := Fingerprint("k9", http.MethodDelete, "/devices/dev_1", nil)

	require.NoError(t, s.Record(ctx, fp, http.StatusNoContent, nil))

	entry, ok, err := s.Lookup(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNoContent, entry.Status)
	assert.Empty(t, entry.Body)
}

func TestUnsafeMethods(t *testing.T) {
	for _, m := range []string{http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete} {
		assert.True(t, UnsafeMethods[m], m)
	}
	for _, m := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		assert.False(t, UnsafeMethods[m], m)
	}
}
