package redis_db

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRedisURLDockerStyle(t *testing.T) {
	opts, err := ParseRedisURL("redis:6379", false)
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.Empty(t, opts.Password)
}

func TestParseRedisURLWithScheme(t *testing.T) {
	opts, err := ParseRedisURL("redis://:secret@host.example.com:6380/2", false)
	require.NoError(t, err)
	assert.Equal(t, "host.example.com:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient([]string{mr.Addr()}, false)
	require.NoError(t, err)
	assert.NotNil(t, client.Client())
}

func TestNewRedisClientEmptyAddresses(t *testing.T) {
	_, err := NewRedisClient(nil, false)
	assert.Error(t, err)
}
