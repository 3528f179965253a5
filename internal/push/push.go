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

// Package push talks to the push-notification gateway. The gateway is
// fallible and possibly slow, so every call is bounded by a timeout and
// runs behind a circuit breaker; errors propagate into the outbox retry
// path unchanged.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Notification is the user-visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// TokenResult is the per-token outcome of a multicast send.
type TokenResult struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// MulticastResult aggregates a multicast send.
type MulticastResult struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	Results      []TokenResult `json:"results"`
}

// Gateway sends one notification to many device tokens.
type Gateway interface {
	SendMulticast(ctx context.Context, tokens []string, notification Notification, data map[string]string) (*MulticastResult, error)
}

// HTTPGateway implements Gateway against the managed push service's HTTP
// API.
type HTTPGateway struct {
	url     string
	key     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPGateway builds a gateway client. timeout bounds each send; the
// breaker opens after repeated consecutive failures so a dead gateway is
// not hammered by every due outbox record.
func NewHTTPGateway(url, key string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		url:    url,
		key:    key,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "push-gateway",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logrus.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Push gateway breaker state changed")
			},
		}),
	}
}

type multicastRequest struct {
	Tokens       []string          `json:"tokens"`
	Notification Notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

// SendMulticast posts the notification to every token in one call. An empty
// token list returns an empty result without touching the gateway.
func (g *HTTPGateway) SendMulticast(ctx context.Context, tokens []string, notification Notification, data map[string]string) (*MulticastResult, error) {
	if len(tokens) == 0 {
		return &MulticastResult{}, nil
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.send(ctx, tokens, notification, data)
	})
	if err != nil {
		return nil, err
	}
	return out.(*MulticastResult), nil
}

func (g *HTTPGateway) send(ctx context.Context, tokens []string, notification Notification, data map[string]string) (*MulticastResult, error) {
	payload, err := json.Marshal(multicastRequest{
		Tokens:       tokens,
		Notification: notification,
		Data:         data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal multicast payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.key != "" {
		req.Header.Set("Authorization", "key="+g.key)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("push gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var result MulticastResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"tokens":  len(tokens),
		"success": result.SuccessCount,
		"failure": result.FailureCount,
	}).Debug("Multicast send completed")

	return &result, nil
}
