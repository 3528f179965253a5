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
package api

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/huglink/huglink"
	"github.com/huglink/huglink/api/middleware"
	"github.com/huglink/huglink/config"
	"github.com/huglink/huglink/internal/guard"
	"github.com/huglink/huglink/internal/idempotency"
	"github.com/huglink/huglink/internal/ratelimit"
	"github.com/huglink/huglink/model"
)

// OutboxEnqueuer hands a freshly written outbox record to the worker queue.
// Enqueue failures are non-fatal: the record is already durable and the
// schedule poll will find it.
type OutboxEnqueuer interface {
	EnqueueOutbox(ctx context.Context, record *model.OutboxRecord) error
}

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	Integrations huglink.IntegrationStore
	Tokens       huglink.TokenStore
	Outbox       huglink.OutboxRepository
	Enqueuer     OutboxEnqueuer
	Guard        *guard.Guard
	Idempotency  *idempotency.Store
	Limiter      *ratelimit.Limiter
	Recovery     *huglink.OutboxRecoveryProcessor
}

type Api struct {
	deps   Dependencies
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	// Webhook senders authenticate with their signature, not an API key.
	router.POST("/webhooks/:integration", a.ReceiveWebhook)

	authed := router.Group("/")
	conf, err := config.Fetch()
	if err == nil && conf.Server.Secure {
		authed.Use(middleware.SecretKeyAuthMiddleware())
	}
	authed.Use(middleware.QuotaMiddleware(a.deps.Limiter))
	authed.Use(middleware.ETagMiddleware())
	authed.Use(middleware.IdempotencyMiddleware(a.deps.Idempotency))

	authed.POST("/integrations", a.RegisterIntegration)
	authed.GET("/integrations", a.GetAllIntegrations)
	authed.DELETE("/integrations/:key", a.DeactivateIntegration)

	authed.POST("/device-tokens", a.RegisterDeviceToken)
	authed.DELETE("/device-tokens/:user_id/:token", a.DeactivateDeviceToken)

	authed.POST("/hugs", a.SendHug)
	authed.POST("/patterns/share", a.SharePattern)

	authed.GET("/outbox/:id", a.GetOutboxRecord)
	authed.POST("/outbox/recover", a.RecoverOutbox)

	return a.router
}

func NewAPI(deps Dependencies) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.FloodGuardMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{deps: deps, router: r}
}
