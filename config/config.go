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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"

	// Outbox defaults per the delivery retry policy.
	DefaultMaxAttempts   = 5
	DefaultBackoffBaseMs = 1000

	// Webhook guard defaults. Skew and replay TTL share the same window.
	DefaultSkewWindowSec = 300
	DefaultReplayTTLSec  = 300

	DefaultIdempotencyTTLSec = 86400
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SecretKey string `json:"secret_key" envconfig:"HUGLINK_SERVER_SECRET_KEY"`
	Secure    bool   `json:"secure" envconfig:"HUGLINK_SERVER_SECURE"`
	Port      string `json:"port" envconfig:"HUGLINK_SERVER_PORT"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"HUGLINK_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"HUGLINK_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	OutboxQueue string `json:"outbox_queue" envconfig:"HUGLINK_QUEUE_OUTBOX"`
}

// OutboxConfig bounds the delivery retry state machine.
type OutboxConfig struct {
	MaxAttempts   int `json:"max_attempts" envconfig:"HUGLINK_OUTBOX_MAX_ATTEMPTS"`
	BackoffBaseMs int `json:"backoff_base_ms" envconfig:"HUGLINK_OUTBOX_BACKOFF_BASE_MS"`
	// StuckThresholdSec is how long a record may sit in "processing" before
	// the recovery sweep reverts it to "pending".
	StuckThresholdSec int `json:"stuck_threshold_sec" envconfig:"HUGLINK_OUTBOX_STUCK_THRESHOLD_SEC"`
}

type PushGatewayConfig struct {
	Url        string `json:"url" envconfig:"HUGLINK_PUSH_GATEWAY_URL"`
	Key        string `json:"key" envconfig:"HUGLINK_PUSH_GATEWAY_KEY"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"HUGLINK_PUSH_GATEWAY_TIMEOUT_SEC"`
}

type RateLimitConfig struct {
	// Fixed-window quota per caller identity.
	Limit     int `json:"limit" envconfig:"HUGLINK_RATE_LIMIT"`
	WindowSec int `json:"window_sec" envconfig:"HUGLINK_RATE_LIMIT_WINDOW_SEC"`

	// Optional process-wide flood guard in front of the per-caller window.
	// Disabled when both values are nil.
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"HUGLINK_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"HUGLINK_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"HUGLINK_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type WebhookConfig struct {
	SkewWindowSec int `json:"skew_window_sec" envconfig:"HUGLINK_WEBHOOK_SKEW_WINDOW_SEC"`
	ReplayTTLSec  int `json:"replay_ttl_sec" envconfig:"HUGLINK_WEBHOOK_REPLAY_TTL_SEC"`
}

type IdempotencyConfig struct {
	TTLSec int `json:"ttl_sec" envconfig:"HUGLINK_IDEMPOTENCY_TTL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string            `json:"project_name" envconfig:"HUGLINK_PROJECT_NAME"`
	Server       ServerConfig      `json:"server"`
	Redis        RedisConfig       `json:"redis"`
	Queue        QueueConfig       `json:"queue"`
	Outbox       OutboxConfig      `json:"outbox"`
	PushGateway  PushGatewayConfig `json:"push_gateway"`
	RateLimit    RateLimitConfig   `json:"rate_limit"`
	Webhook      WebhookConfig     `json:"webhook"`
	Idempotency  IdempotencyConfig `json:"idempotency"`
	Notification Notification      `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("huglink", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called huglink.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.ProjectName == "" {
		cnf.ProjectName = "Huglink Server"
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.applyDefaults()
	return nil
}

// applyDefaults fills every zero-valued reliability knob. Shared between the
// file/env load path and MockConfig so tests get the same defaults.
func (cnf *Configuration) applyDefaults() {
	if cnf.Queue.OutboxQueue == "" {
		cnf.Queue.OutboxQueue = "outbox"
	}
	if cnf.Outbox.MaxAttempts <= 0 {
		cnf.Outbox.MaxAttempts = DefaultMaxAttempts
	}
	if cnf.Outbox.BackoffBaseMs <= 0 {
		cnf.Outbox.BackoffBaseMs = DefaultBackoffBaseMs
	}
	if cnf.Outbox.StuckThresholdSec <= 0 {
		cnf.Outbox.StuckThresholdSec = 600
	}
	if cnf.PushGateway.TimeoutSec <= 0 {
		cnf.PushGateway.TimeoutSec = 30
	}
	if cnf.RateLimit.Limit <= 0 {
		cnf.RateLimit.Limit = 100
	}
	if cnf.RateLimit.WindowSec <= 0 {
		cnf.RateLimit.WindowSec = 60
	}
	if cnf.Webhook.SkewWindowSec <= 0 {
		cnf.Webhook.SkewWindowSec = DefaultSkewWindowSec
	}
	if cnf.Webhook.ReplayTTLSec <= 0 {
		cnf.Webhook.ReplayTTLSec = DefaultReplayTTLSec
	}
	if cnf.Idempotency.TTLSec <= 0 {
		cnf.Idempotency.TTLSec = DefaultIdempotencyTTLSec
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
