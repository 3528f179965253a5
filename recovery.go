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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/huglink/huglink/model"
)

// OutboxRecoveryProcessor reverts records abandoned mid-flight. A worker
// that crashes between marking a record "processing" and writing the
// outcome leaves it invisible to the due-record schedule; the sweep moves
// such records back to pending and re-enqueues them. Attempts are not
// incremented here so a crash never eats a retry.
type OutboxRecoveryProcessor struct {
	repo           OutboxRepository
	queue          *Queue
	batchSize      int
	pollInterval   time.Duration
	stuckThreshold time.Duration
	stopCh         chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex
}

func NewOutboxRecoveryProcessor(repo OutboxRepository, queue *Queue, stuckThreshold time.Duration) *OutboxRecoveryProcessor {
	if stuckThreshold < 2*time.Minute {
		stuckThreshold = 2 * time.Minute
	}

	return &OutboxRecoveryProcessor{
		repo:           repo,
		queue:          queue,
		batchSize:      100,
		pollInterval:   30 * time.Second,
		stuckThreshold: stuckThreshold,
		stopCh:         make(chan struct{}),
	}
}

func (p *OutboxRecoveryProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()

	logrus.Info("Outbox recovery processor started")
}

func (p *OutboxRecoveryProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logrus.Info("Outbox recovery processor stopped")
}

func (p *OutboxRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OutboxRecoveryProcessor) run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Outbox recovery processor context cancelled")
			return
		case <-p.stopCh:
			logrus.Info("Outbox recovery processor stop signal received")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep performs one recovery pass and returns the number of records it
// reverted. Exposed for the manual trigger API endpoint.
func (p *OutboxRecoveryProcessor) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-p.stuckThreshold)
	ids, err := p.repo.StuckProcessing(ctx, cutoff, p.batchSize)
	if err != nil {
		logrus.Errorf("failed to list stuck outbox records: %v", err)
		return 0
	}

	if len(ids) == 0 {
		return 0
	}

	logrus.Infof("Recovering %d stuck outbox records (threshold=%v)", len(ids), p.stuckThreshold)

	recovered := 0
	for _, id := range ids {
		if err := p.recoverRecord(ctx, id); err != nil {
			logrus.Errorf("failed to recover stuck outbox record %s: %v", id, err)
			continue
		}
		recovered++
	}
	return recovered
}

func (p *OutboxRecoveryProcessor) recoverRecord(ctx context.Context, id string) error {
	record, err := p.repo.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if record == nil || record.Status != model.StatusProcessing {
		// Finished between the index scan and this read.
		return nil
	}

	now := time.Now()
	record.Status = model.StatusPending
	record.ProcessingAt = nil
	record.NextAttemptAt = &now
	if err := p.repo.UpdateRecord(ctx, record); err != nil {
		return err
	}

	logrus.Infof("Reverted stuck outbox record %s to pending after %d attempts", record.ID, record.Attempts)

	if p.queue != nil {
		return p.queue.EnqueueOutbox(ctx, record)
	}
	return nil
}
