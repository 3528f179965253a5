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

package model

import (
	"time"
)

// Outbox record statuses. Transitions are owned by the outbox worker:
//
//	pending -> delivered  (delivery succeeded)
//	pending -> skipped    (unknown event type, never retried)
//	pending -> pending    (delivery failed, attempts+1 < max, rescheduled)
//	pending -> failed     (delivery failed, attempts exhausted)
//
// "processing" is a transient in-flight marker, not a terminal state; the
// recovery sweep reverts records stuck there after a crash.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDelivered  = "delivered"
	StatusFailed     = "failed"
	StatusSkipped    = "skipped"
)

// Outbox event types the worker knows how to deliver.
const (
	EventHugSent       = "hug.sent"
	EventPatternShared = "pattern.shared"
)

// OutboxRecord is the durable "to-send" record written transactionally
// alongside the business change that requires a notification. Attempts only
// ever increase; the record is never deleted by the worker.
type OutboxRecord struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Payload       map[string]interface{} `json:"payload"`
	Status        string                 `json:"status"`
	Attempts      int                    `json:"attempts"`
	LastError     string                 `json:"last_error,omitempty"`
	NextAttemptAt *time.Time             `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	DeliveredAt   *time.Time             `json:"delivered_at,omitempty"`
	ProcessingAt  *time.Time             `json:"processing_at,omitempty"`
}

// NewOutboxRecord returns a pending record ready to be persisted with the
// business write that caused it.
func NewOutboxRecord(eventType string, payload map[string]interface{}) *OutboxRecord {
	return &OutboxRecord{
		ID:        GenerateUUIDWithSuffix("obx"),
		Type:      eventType,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}

// Due reports whether the record is eligible for a delivery attempt at now:
// it must be pending and past (or without) its scheduled retry time.
func (r *OutboxRecord) Due(now time.Time) bool {
	if r.Status != StatusPending {
		return false
	}
	return r.NextAttemptAt == nil || !r.NextAttemptAt.After(now)
}

// PayloadString reads a string field from the opaque payload, returning ""
// when absent or not a string.
func (r *OutboxRecord) PayloadString(key string) string {
	v, ok := r.Payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
