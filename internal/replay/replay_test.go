package replay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huglink/huglink/internal/store"
)

func TestAdmitOnce(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(store.NewMemoryKV(), time.Minute)

	seen, err := g.Seen(ctx, "acme", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	ok, err := g.Admit(ctx, "acme", "evt_1")
	require.NoError(t, err)
	assert.True(t, ok, "first admission wins")

	seen, err = g.Seen(ctx, "acme", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	ok, err = g.Admit(ctx, "acme", "evt_1")
	require.NoError(t, err)
	assert.False(t, ok, "second admission of the same id loses")
}

func TestAdmitScopedByIntegration(t *testing.T) {
	ctx := context.Background()
	g := NewGuard(store.NewMemoryKV(), time.Minute)

	ok, err := g.Admit(ctx, "acme", "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)

	// same event id from a different integration is a different key
	ok, err = g.Admit(ctx, "globex", "evt_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAdmitExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	g := NewGuard(store.NewRedisKV(client, "wh"), 5*time.Minute)

	ok, err := g.Admit(ctx, "acme", "evt_2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(6 * time.Minute)

	seen, err := g.Seen(ctx, "acme", "evt_2")
	require.NoError(t, err)
	assert.False(t, seen, "expired marker no longer counts as replay")

	ok, err = g.Admit(ctx, "acme", "evt_2")
	require.NoError(t, err)
	assert.True(t, ok, "event admissible again after the window")
}

func TestNewGuardDefaultTTL(t *testing.T) {
	g := NewGuard(store.NewMemoryKV(), 0)
	assert.Equal(t, 5*time.Minute, g.TTL())
}
