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

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/huglink/huglink"
	"github.com/huglink/huglink/config"
	redis_db "github.com/huglink/huglink/internal/redis-db"
)

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.OutboxQueue] = 3
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 10,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *huglinkInstance, worker *huglink.OutboxWorker, mux *asynq.ServeMux) {
	cfg := b.cnf
	mux.HandleFunc(cfg.Queue.OutboxQueue, worker.ProcessOutbox)
}

// workerCommands defines the "workers" command: the asynq server draining
// the outbox queue, the stuck-record recovery sweep, and the due-record
// poll that catches records whose enqueue was lost.
func workerCommands(b *huglinkInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start huglink workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			worker := huglink.NewOutboxWorker(
				b.outbox,
				b.tokens,
				b.gateway,
				b.queue,
				time.Duration(conf.Outbox.BackoffBaseMs)*time.Millisecond,
				conf.Outbox.MaxAttempts,
			)

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, worker, mux)

			recovery := huglink.NewOutboxRecoveryProcessor(
				b.outbox,
				b.queue,
				time.Duration(conf.Outbox.StuckThresholdSec)*time.Second,
			)
			recovery.Start(ctx)
			defer recovery.Stop()

			go dueRecordPoll(ctx, b, 30*time.Second)

			if err := srv.Run(mux); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
