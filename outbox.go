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
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/huglink/huglink/internal/backoff"
	"github.com/huglink/huglink/internal/notification"
	"github.com/huglink/huglink/internal/push"
	"github.com/huglink/huglink/model"
)

// errUnknownEventType marks records the worker has no handler for. They are
// parked as skipped rather than burning retry attempts.
var errUnknownEventType = fmt.Errorf("unknown outbox event type")

// OutboxWorker drains outbox records into push deliveries. Each invocation
// handles exactly one record and owns its status transition; retries are new
// queue tasks scheduled by the worker itself, never asynq-level retries.
type OutboxWorker struct {
	repo        OutboxRepository
	tokens      TokenSource
	gateway     push.Gateway
	queue       *Queue
	policy      backoff.Policy
	maxAttempts int
}

// NewOutboxWorker builds a worker from the outbox configuration section.
func NewOutboxWorker(repo OutboxRepository, tokens TokenSource, gateway push.Gateway, queue *Queue, baseDelay time.Duration, maxAttempts int) *OutboxWorker {
	return &OutboxWorker{
		repo:        repo,
		tokens:      tokens,
		gateway:     gateway,
		queue:       queue,
		policy:      backoff.New(baseDelay),
		maxAttempts: maxAttempts,
	}
}

// ProcessOutbox is the asynq handler for outbox tasks. The task payload is
// the record id.
func (w *OutboxWorker) ProcessOutbox(ctx context.Context, t *asynq.Task) error {
	var recordID string
	if err := json.Unmarshal(t.Payload(), &recordID); err != nil {
		logrus.WithError(err).Error("discarding outbox task with malformed payload")
		return nil
	}
	return w.ProcessRecord(ctx, recordID)
}

// ProcessRecord runs one delivery attempt for the record. It is a no-op for
// records that are not due, so stale tasks from a previous schedule or a
// double enqueue cannot double-deliver or double-count attempts.
func (w *OutboxWorker) ProcessRecord(ctx context.Context, recordID string) error {
	record, err := w.repo.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		logrus.WithField("record", recordID).Warn("outbox task references missing record")
		return nil
	}

	now := time.Now()
	if !record.Due(now) {
		logrus.WithFields(logrus.Fields{
			"record": record.ID,
			"status": record.Status,
		}).Debug("outbox record not due, skipping attempt")
		return nil
	}

	record.Status = model.StatusProcessing
	record.ProcessingAt = &now
	if err := w.repo.UpdateRecord(ctx, record); err != nil {
		return err
	}

	deliveryErr := w.deliver(ctx, record)
	if errors.Is(deliveryErr, errUnknownEventType) {
		record.Status = model.StatusSkipped
		record.LastError = deliveryErr.Error()
		record.ProcessingAt = nil
		logrus.WithFields(logrus.Fields{
			"record": record.ID,
			"type":   record.Type,
		}).Info("skipping outbox record with unknown event type")
		return w.repo.UpdateRecord(ctx, record)
	}

	preAttempts := record.Attempts
	record.Attempts++
	record.ProcessingAt = nil

	if deliveryErr == nil {
		deliveredAt := time.Now()
		record.Status = model.StatusDelivered
		record.LastError = ""
		record.NextAttemptAt = nil
		record.DeliveredAt = &deliveredAt
		logrus.WithFields(logrus.Fields{
			"record":   record.ID,
			"type":     record.Type,
			"attempts": record.Attempts,
		}).Info("outbox record delivered")
		return w.repo.UpdateRecord(ctx, record)
	}

	record.LastError = deliveryErr.Error()

	if record.Attempts >= w.maxAttempts {
		record.Status = model.StatusFailed
		record.NextAttemptAt = nil
		logrus.WithFields(logrus.Fields{
			"record":   record.ID,
			"type":     record.Type,
			"attempts": record.Attempts,
		}).Error("outbox record failed permanently")
		notification.NotifyError(fmt.Errorf("outbox delivery exhausted for record %s (type: %s) after %d attempts: %w", record.ID, record.Type, record.Attempts, deliveryErr))
		return w.repo.UpdateRecord(ctx, record)
	}

	// Delay grows with the attempt count before this failure, so the first
	// retry waits roughly one base interval.
	nextAttempt := time.Now().Add(w.policy.Delay(preAttempts))
	record.Status = model.StatusPending
	record.NextAttemptAt = &nextAttempt
	if err := w.repo.UpdateRecord(ctx, record); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"record":       record.ID,
		"attempts":     record.Attempts,
		"next_attempt": nextAttempt,
	}).Warn("outbox delivery failed, rescheduled")

	if w.queue != nil {
		return w.queue.EnqueueOutbox(ctx, record)
	}
	return nil
}

// deliver resolves the record into a push notification and sends it to the
// recipient's active device tokens. A recipient with no tokens is a
// successful delivery with nothing to do.
func (w *OutboxWorker) deliver(ctx context.Context, record *model.OutboxRecord) error {
	note, data, err := w.composeNotification(record)
	if err != nil {
		return err
	}

	recipient := record.PayloadString("recipient_id")
	if recipient == "" {
		return fmt.Errorf("outbox record %s has no recipient", record.ID)
	}

	tokens, err := w.tokens.ActiveTokens(ctx, recipient)
	if err != nil {
		return fmt.Errorf("resolving tokens for %s: %w", recipient, err)
	}
	if len(tokens) == 0 {
		logrus.WithFields(logrus.Fields{
			"record":    record.ID,
			"recipient": recipient,
		}).Debug("recipient has no active device tokens")
		return nil
	}

	result, err := w.gateway.SendMulticast(ctx, tokens, note, data)
	if err != nil {
		return err
	}
	if result.SuccessCount == 0 && result.FailureCount > 0 {
		return fmt.Errorf("push gateway rejected all %d tokens", result.FailureCount)
	}
	return nil
}

func (w *OutboxWorker) composeNotification(record *model.OutboxRecord) (push.Notification, map[string]string, error) {
	sender := record.PayloadString("sender_name")

	switch record.Type {
	case model.EventHugSent:
		title := "You got a hug"
		if sender != "" {
			title = fmt.Sprintf("%s sent you a hug", sender)
		}
		return push.Notification{
				Title: title,
				Body:  "Your bracelet is about to squeeze.",
			}, map[string]string{
				"event":  model.EventHugSent,
				"hug_id": record.PayloadString("hug_id"),
			}, nil
	case model.EventPatternShared:
		title := "New pattern shared"
		if sender != "" {
			title = fmt.Sprintf("%s shared a pattern with you", sender)
		}
		return push.Notification{
				Title: title,
				Body:  record.PayloadString("pattern_name"),
			}, map[string]string{
				"event":      model.EventPatternShared,
				"pattern_id": record.PayloadString("pattern_id"),
			}, nil
	default:
		return push.Notification{}, nil, errUnknownEventType
	}
}
