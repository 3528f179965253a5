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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huglink/huglink/model"
)

func TestOutboxRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepository(t)

	record := hugRecord("user_1")
	require.NoError(t, repo.CreateRecord(context.Background(), record))

	got, err := repo.GetRecord(context.Background(), record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, model.EventHugSent, got.Type)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "user_1", got.PayloadString("recipient_id"))
}

func TestOutboxRepositoryGetMissing(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.GetRecord(context.Background(), "obx_missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDueRecordsOrderingAndCutoff(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	dueNow := hugRecord("user_1")
	require.NoError(t, repo.CreateRecord(context.Background(), dueNow))

	scheduled := hugRecord("user_2")
	future := now.Add(time.Hour)
	scheduled.NextAttemptAt = &future
	require.NoError(t, repo.CreateRecord(context.Background(), scheduled))

	overdue := hugRecord("user_3")
	past := now.Add(-time.Minute)
	overdue.NextAttemptAt = &past
	require.NoError(t, repo.CreateRecord(context.Background(), overdue))

	ids, err := repo.DueRecords(context.Background(), now, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{overdue.ID, dueNow.ID}, ids, "oldest schedule first, future records excluded")

	ids, err = repo.DueRecords(context.Background(), now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestUpdateRecordMovesBetweenIndexes(t *testing.T) {
	repo := newTestRepository(t)
	now := time.Now()

	record := hugRecord("user_1")
	require.NoError(t, repo.CreateRecord(context.Background(), record))

	record.Status = model.StatusProcessing
	record.ProcessingAt = &now
	require.NoError(t, repo.UpdateRecord(context.Background(), record))

	ids, err := repo.DueRecords(context.Background(), now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "processing records leave the pending index")

	ids, err = repo.StuckProcessing(context.Background(), now.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{record.ID}, ids)

	deliveredAt := time.Now()
	record.Status = model.StatusDelivered
	record.ProcessingAt = nil
	record.DeliveredAt = &deliveredAt
	require.NoError(t, repo.UpdateRecord(context.Background(), record))

	ids, err = repo.DueRecords(context.Background(), now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = repo.StuckProcessing(context.Background(), now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "terminal records leave both indexes")
}

func TestStuckProcessingCutoff(t *testing.T) {
	repo := newTestRepository(t)

	old := hugRecord("user_1")
	require.NoError(t, repo.CreateRecord(context.Background(), old))
	markProcessing(t, repo, old, time.Now().Add(-time.Hour))

	recent := hugRecord("user_2")
	require.NoError(t, repo.CreateRecord(context.Background(), recent))
	markProcessing(t, repo, recent, time.Now())

	ids, err := repo.StuckProcessing(context.Background(), time.Now().Add(-10*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, ids)
}
