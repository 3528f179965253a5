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
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huglink/huglink/model"
)

const (
	outboxRecordPrefix  = "outbox:rec"
	outboxPendingIndex  = "outbox:pending"
	outboxProcessingIdx = "outbox:processing"
)

// OutboxRepository persists outbox records and the schedule indexes the
// worker and recovery sweep read. Records are never deleted here; garbage
// collection is an external concern.
type OutboxRepository interface {
	CreateRecord(ctx context.Context, record *model.OutboxRecord) error
	GetRecord(ctx context.Context, id string) (*model.OutboxRecord, error)
	UpdateRecord(ctx context.Context, record *model.OutboxRecord) error

	// DueRecords returns ids of pending records whose nextAttemptAt is unset
	// or at/before now.
	DueRecords(ctx context.Context, now time.Time, limit int) ([]string, error)

	// StuckProcessing returns ids of records that entered "processing"
	// before the cutoff and never left, i.e. a crash interrupted delivery.
	StuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type redisOutboxRepository struct {
	client redis.UniversalClient
}

// NewOutboxRepository creates a Redis-backed outbox repository.
func NewOutboxRepository(client redis.UniversalClient) OutboxRepository {
	return &redisOutboxRepository{client: client}
}

func outboxRecordKey(id string) string {
	return fmt.Sprintf("%s:%s", outboxRecordPrefix, id)
}

func (r *redisOutboxRepository) CreateRecord(ctx context.Context, record *model.OutboxRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox record: %w", err)
	}

	score := float64(record.CreatedAt.UnixMilli())
	if record.NextAttemptAt != nil {
		score = float64(record.NextAttemptAt.UnixMilli())
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, outboxRecordKey(record.ID), data, 0)
	pipe.ZAdd(ctx, outboxPendingIndex, redis.Z{Score: score, Member: record.ID})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to store outbox record: %w", err)
	}
	return nil
}

func (r *redisOutboxRepository) GetRecord(ctx context.Context, id string) (*model.OutboxRecord, error) {
	data, err := r.client.Get(ctx, outboxRecordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var record model.OutboxRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outbox record: %w", err)
	}
	return &record, nil
}

// UpdateRecord rewrites the record and moves it between the schedule
// indexes to match its status.
func (r *redisOutboxRepository) UpdateRecord(ctx context.Context, record *model.OutboxRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox record: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, outboxRecordKey(record.ID), data, 0)
	pipe.ZRem(ctx, outboxPendingIndex, record.ID)
	pipe.ZRem(ctx, outboxProcessingIdx, record.ID)

	switch record.Status {
	case model.StatusPending:
		score := float64(time.Now().UnixMilli())
		if record.NextAttemptAt != nil {
			score = float64(record.NextAttemptAt.UnixMilli())
		}
		pipe.ZAdd(ctx, outboxPendingIndex, redis.Z{Score: score, Member: record.ID})
	case model.StatusProcessing:
		at := time.Now()
		if record.ProcessingAt != nil {
			at = *record.ProcessingAt
		}
		pipe.ZAdd(ctx, outboxProcessingIdx, redis.Z{Score: float64(at.UnixMilli()), Member: record.ID})
	}

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update outbox record: %w", err)
	}
	return nil
}

func (r *redisOutboxRepository) DueRecords(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return r.rangeByScore(ctx, outboxPendingIndex, now, limit)
}

func (r *redisOutboxRepository) StuckProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return r.rangeByScore(ctx, outboxProcessingIdx, cutoff, limit)
}

func (r *redisOutboxRepository) rangeByScore(ctx context.Context, index string, max time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(max.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return ids, nil
}
