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
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/huglink/huglink"
	"github.com/huglink/huglink/config"
	"github.com/huglink/huglink/internal/notification"
	"github.com/huglink/huglink/internal/push"
	redis_db "github.com/huglink/huglink/internal/redis-db"
)

// Huglink represents the CLI application, encapsulating the root Cobra command.
type Huglink struct {
	cmd *cobra.Command
}

// huglinkInstance holds the wired runtime dependencies shared by all
// commands: the redis client, the stores built on it, and the worker queue.
type huglinkInstance struct {
	cnf          *config.Configuration
	redis        *redis_db.Redis
	integrations huglink.IntegrationStore
	tokens       huglink.TokenStore
	outbox       huglink.OutboxRepository
	queue        *huglink.Queue
	gateway      push.Gateway
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and wires the shared dependencies before
// running any command.
func preRun(app *huglinkInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("huglink.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if err := setupHuglink(app, cnf); err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}
		app.cnf = cnf

		return nil
	}
}

// setupHuglink connects to redis, retrying transient startup failures, and
// builds the stores every command shares.
func setupHuglink(app *huglinkInstance, cfg *config.Configuration) error {
	var client *redis_db.Redis
	connect := func() error {
		var err error
		client, err = redis_db.NewRedisClient([]string{cfg.Redis.Dns}, cfg.Redis.SkipTLSVerify)
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	if err := backoff.RetryNotify(connect, policy, func(err error, next time.Duration) {
		log.Printf("redis not reachable (%v), retrying in %v", err, next)
	}); err != nil {
		return fmt.Errorf("error connecting to redis: %v", err)
	}

	app.redis = client
	app.integrations = huglink.NewIntegrationStore(client.Client())
	app.tokens = huglink.NewTokenStore(client.Client())
	app.outbox = huglink.NewOutboxRepository(client.Client())
	app.queue = huglink.NewQueue(cfg)
	app.gateway = push.NewHTTPGateway(
		cfg.PushGateway.Url,
		cfg.PushGateway.Key,
		time.Duration(cfg.PushGateway.TimeoutSec)*time.Second,
	)
	return nil
}

// NewCLI creates the command-line interface for the huglink server.
func NewCLI() *Huglink {
	var configFile string
	b := &huglinkInstance{}

	var rootCmd = &cobra.Command{
		Use:   "huglink",
		Short: "Reliability backend for paired wearables",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./huglink.json", "Configuration file for huglink")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Huglink{cmd: rootCmd}
}

func (w Huglink) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

// dueRecordPoll periodically re-enqueues records that are due but have no
// outstanding task, e.g. because an enqueue failed after the record was
// persisted. Shared by the workers command.
func dueRecordPoll(ctx context.Context, app *huglinkInstance, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := app.outbox.DueRecords(ctx, time.Now(), 100)
			if err != nil {
				logrus.WithError(err).Error("due record poll failed")
				continue
			}
			for _, id := range ids {
				record, err := app.outbox.GetRecord(ctx, id)
				if err != nil || record == nil {
					continue
				}
				if err := app.queue.EnqueueOutbox(ctx, record); err != nil {
					logrus.WithError(err).WithField("record", id).Error("failed to re-enqueue due record")
				}
			}
		}
	}
}
