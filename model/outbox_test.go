package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOutboxRecord(t *testing.T) {
	rec := NewOutboxRecord(EventHugSent, map[string]interface{}{"recipient_id": "usr_1"})

	assert.True(t, strings.HasPrefix(rec.ID, "obx_"))
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, 0, rec.Attempts)
	assert.Nil(t, rec.NextAttemptAt)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestOutboxRecordDue(t *testing.T) {
	now := time.Now()
	rec := NewOutboxRecord(EventHugSent, nil)

	assert.True(t, rec.Due(now), "pending with no schedule is due")

	future := now.Add(time.Minute)
	rec.NextAttemptAt = &future
	assert.False(t, rec.Due(now), "scheduled in the future must not be picked up")

	past := now.Add(-time.Minute)
	rec.NextAttemptAt = &past
	assert.True(t, rec.Due(now))

	rec.Status = StatusDelivered
	assert.False(t, rec.Due(now), "terminal records are never due")

	rec.Status = StatusProcessing
	assert.False(t, rec.Due(now))
}

func TestPayloadString(t *testing.T) {
	rec := NewOutboxRecord(EventPatternShared, map[string]interface{}{
		"recipient_id": "usr_2",
		"count":        3,
	})

	assert.Equal(t, "usr_2", rec.PayloadString("recipient_id"))
	assert.Equal(t, "", rec.PayloadString("count"), "non-string payload values read as empty")
	assert.Equal(t, "", rec.PayloadString("missing"))
}
