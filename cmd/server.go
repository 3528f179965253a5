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
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/huglink/huglink"
	"github.com/huglink/huglink/api"
	"github.com/huglink/huglink/config"
	"github.com/huglink/huglink/internal/guard"
	"github.com/huglink/huglink/internal/idempotency"
	"github.com/huglink/huglink/internal/ratelimit"
	"github.com/huglink/huglink/internal/replay"
	"github.com/huglink/huglink/internal/store"
)

func initializeRouter(b *huglinkInstance) *gin.Engine {
	cfg := b.cnf

	kv := store.NewRedisKV(b.redis.Client(), "huglink")
	replays := replay.NewGuard(kv, time.Duration(cfg.Webhook.ReplayTTLSec)*time.Second)

	deps := api.Dependencies{
		Integrations: b.integrations,
		Tokens:       b.tokens,
		Outbox:       b.outbox,
		Enqueuer:     b.queue,
		Guard:        guard.New(b.integrations, replays, time.Duration(cfg.Webhook.SkewWindowSec)*time.Second),
		Idempotency:  idempotency.NewStore(b.redis.Client(), time.Duration(cfg.Idempotency.TTLSec)*time.Second),
		Limiter:      ratelimit.New(kv, cfg.RateLimit.Limit, time.Duration(cfg.RateLimit.WindowSec)*time.Second),
		Recovery: huglink.NewOutboxRecoveryProcessor(
			b.outbox,
			b.queue,
			time.Duration(cfg.Outbox.StuckThresholdSec)*time.Second,
		),
	}

	return api.NewAPI(deps).Router()
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// serverCommands returns the Cobra command responsible for starting the HTTP
// server.
func serverCommands(b *huglinkInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start huglink server",
		Run: func(cmd *cobra.Command, args []string) {
			router := initializeRouter(b)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
