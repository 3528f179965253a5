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
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/huglink/huglink/config"
	redis_db "github.com/huglink/huglink/internal/redis-db"
	"github.com/huglink/huglink/model"
)

// Queue hands outbox records to the worker process via asynq. One task per
// observed write of a record; retries are scheduled as new tasks with a
// delay, so asynq's own retry machinery stays out of the state machine.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueOutbox schedules one delivery attempt for the record. The task id
// includes the attempt count so a rescheduled attempt is not deduplicated
// against the one that just ran.
func (q *Queue) EnqueueOutbox(ctx context.Context, record *model.OutboxRecord) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(record.ID)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:%d", record.ID, record.Attempts)),
		asynq.Queue(cfg.Queue.OutboxQueue),
		asynq.MaxRetry(0),
	}
	if record.NextAttemptAt != nil && record.NextAttemptAt.After(time.Now()) {
		taskOptions = append(taskOptions, asynq.ProcessIn(time.Until(*record.NextAttemptAt)))
	}

	task := asynq.NewTask(cfg.Queue.OutboxQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// An attempt with this id is already queued; the worker's due check
		// makes a second task harmless anyway.
		return nil
	}
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}
