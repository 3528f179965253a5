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
package huglink

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huglink/huglink/model"
)

func newTestRegistry(t *testing.T) (IntegrationStore, TokenStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIntegrationStore(client), NewTokenStore(client)
}

func TestIntegrationRegistry(t *testing.T) {
	integrations, _ := newTestRegistry(t)

	integration := &model.Integration{
		Name:   "pushcorp",
		Secret: "super-secret-signing-key",
		Active: true,
	}
	require.NoError(t, integrations.RegisterIntegration(context.Background(), integration))
	assert.NotEmpty(t, integration.Key, "a key is generated when none is supplied")

	got, err := integrations.GetIntegration(context.Background(), integration.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "pushcorp", got.Name)
	assert.Equal(t, "super-secret-signing-key", got.Secret)
	assert.True(t, got.Active)

	list, err := integrations.ListIntegrations(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, integrations.DeactivateIntegration(context.Background(), integration.Key))
	got, err = integrations.GetIntegration(context.Background(), integration.Key)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestIntegrationRegistryMissing(t *testing.T) {
	integrations, _ := newTestRegistry(t)

	got, err := integrations.GetIntegration(context.Background(), "intg_missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, integrations.DeactivateIntegration(context.Background(), "intg_missing"))
}

func TestTokenRegistry(t *testing.T) {
	_, tokens := newTestRegistry(t)

	require.NoError(t, tokens.RegisterToken(context.Background(), &model.DeviceToken{
		UserID: "user_1", Token: "tok_a", Platform: "ios",
	}))
	require.NoError(t, tokens.RegisterToken(context.Background(), &model.DeviceToken{
		UserID: "user_1", Token: "tok_b", Platform: "android",
	}))
	require.NoError(t, tokens.RegisterToken(context.Background(), &model.DeviceToken{
		UserID: "user_2", Token: "tok_c", Platform: "ios",
	}))

	active, err := tokens.ActiveTokens(context.Background(), "user_1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tok_a", "tok_b"}, active)

	require.NoError(t, tokens.DeactivateToken(context.Background(), "user_1", "tok_a"))
	active, err = tokens.ActiveTokens(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_b"}, active)

	// Deactivating an unknown token is a no-op, not an error.
	assert.NoError(t, tokens.DeactivateToken(context.Background(), "user_1", "tok_missing"))

	active, err = tokens.ActiveTokens(context.Background(), "user_without_devices")
	require.NoError(t, err)
	assert.Empty(t, active)
}
