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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huglink/huglink/model"
)

const (
	integrationKeyPrefix = "integrations"
	tokenKeyPrefix       = "tokens"
)

// IntegrationStore manages webhook integration registrations. The webhook
// guard reads secrets from here; the API registers and deactivates them.
type IntegrationStore interface {
	RegisterIntegration(ctx context.Context, integration *model.Integration) error
	GetIntegration(ctx context.Context, key string) (*model.Integration, error)
	ListIntegrations(ctx context.Context) ([]*model.Integration, error)
	DeactivateIntegration(ctx context.Context, key string) error
}

// TokenSource resolves a user's active push tokens for outbox delivery.
type TokenSource interface {
	ActiveTokens(ctx context.Context, userID string) ([]string, error)
}

// TokenStore extends TokenSource with registration, used by device claiming.
type TokenStore interface {
	TokenSource
	RegisterToken(ctx context.Context, token *model.DeviceToken) error
	DeactivateToken(ctx context.Context, userID, token string) error
}

type redisRegistry struct {
	client redis.UniversalClient
}

// integrationRecord is the persisted shape. The API model hides the secret
// from JSON responses, so storage needs its own marshalling.
type integrationRecord struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func toRecord(i *model.Integration) *integrationRecord {
	return &integrationRecord{
		Key:       i.Key,
		Name:      i.Name,
		Secret:    i.Secret,
		Active:    i.Active,
		CreatedAt: i.CreatedAt,
	}
}

func (r *integrationRecord) toModel() *model.Integration {
	return &model.Integration{
		Key:       r.Key,
		Name:      r.Name,
		Secret:    r.Secret,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

// NewIntegrationStore creates a Redis-based integration registry.
func NewIntegrationStore(client redis.UniversalClient) IntegrationStore {
	return &redisRegistry{client: client}
}

// NewTokenStore creates a Redis-based device token registry.
func NewTokenStore(client redis.UniversalClient) TokenStore {
	return &redisRegistry{client: client}
}

func (r *redisRegistry) RegisterIntegration(ctx context.Context, integration *model.Integration) error {
	if integration.Key == "" {
		integration.Key = model.GenerateUUIDWithSuffix("intg")
	}
	integration.CreatedAt = time.Now()

	data, err := json.Marshal(toRecord(integration))
	if err != nil {
		return fmt.Errorf("failed to marshal integration: %w", err)
	}

	key := fmt.Sprintf("%s:%s", integrationKeyPrefix, integration.Key)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store integration: %w", err)
	}
	if err := r.client.SAdd(ctx, integrationKeyPrefix, integration.Key).Err(); err != nil {
		return fmt.Errorf("failed to index integration: %w", err)
	}
	return nil
}

func (r *redisRegistry) GetIntegration(ctx context.Context, key string) (*model.Integration, error) {
	data, err := r.client.Get(ctx, fmt.Sprintf("%s:%s", integrationKeyPrefix, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var rec integrationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal integration: %w", err)
	}
	return rec.toModel(), nil
}

func (r *redisRegistry) ListIntegrations(ctx context.Context) ([]*model.Integration, error) {
	keys, err := r.client.SMembers(ctx, integrationKeyPrefix).Result()
	if err != nil {
		return nil, err
	}

	integrations := make([]*model.Integration, 0, len(keys))
	for _, k := range keys {
		integration, err := r.GetIntegration(ctx, k)
		if err != nil || integration == nil {
			continue // skip unreadable entries
		}
		integrations = append(integrations, integration)
	}
	return integrations, nil
}

func (r *redisRegistry) DeactivateIntegration(ctx context.Context, key string) error {
	integration, err := r.GetIntegration(ctx, key)
	if err != nil {
		return err
	}
	if integration == nil {
		return fmt.Errorf("integration not found: %s", key)
	}

	integration.Active = false
	data, err := json.Marshal(toRecord(integration))
	if err != nil {
		return fmt.Errorf("failed to marshal integration: %w", err)
	}
	return r.client.Set(ctx, fmt.Sprintf("%s:%s", integrationKeyPrefix, key), data, 0).Err()
}

func (r *redisRegistry) RegisterToken(ctx context.Context, token *model.DeviceToken) error {
	token.CreatedAt = time.Now()
	token.Active = true

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal device token: %w", err)
	}

	key := fmt.Sprintf("%s:%s:%s", tokenKeyPrefix, token.UserID, token.Token)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store device token: %w", err)
	}
	userKey := fmt.Sprintf("%s:%s", tokenKeyPrefix, token.UserID)
	if err := r.client.SAdd(ctx, userKey, token.Token).Err(); err != nil {
		return fmt.Errorf("failed to index device token: %w", err)
	}
	return nil
}

func (r *redisRegistry) DeactivateToken(ctx context.Context, userID, token string) error {
	key := fmt.Sprintf("%s:%s:%s", tokenKeyPrefix, userID, token)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}

	var dt model.DeviceToken
	if err := json.Unmarshal(data, &dt); err != nil {
		return fmt.Errorf("failed to unmarshal device token: %w", err)
	}
	dt.Active = false

	updated, err := json.Marshal(&dt)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, updated, 0).Err()
}

// ActiveTokens returns the user's active push tokens. Inactive registrations
// stay indexed but are filtered out here.
func (r *redisRegistry) ActiveTokens(ctx context.Context, userID string) ([]string, error) {
	userKey := fmt.Sprintf("%s:%s", tokenKeyPrefix, userID)
	members, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(members))
	for _, m := range members {
		data, err := r.client.Get(ctx, fmt.Sprintf("%s:%s:%s", tokenKeyPrefix, userID, m)).Bytes()
		if err != nil {
			continue
		}
		var dt model.DeviceToken
		if err := json.Unmarshal(data, &dt); err != nil {
			continue
		}
		if dt.Active {
			tokens = append(tokens, dt.Token)
		}
	}
	return tokens, nil
}
