package persistence

import (
	"OptionLedger/internal/event"
	"OptionLedger/internal/observability"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// PersistenceWorker drains the persist channel and batch-writes the audit log.
// This goroutine runs independently from the sequencer. The persist channel
// uses BLOCKING sends from the sequencer, so if this worker falls behind,
// the core stalls and no outcome is lost.
type PersistenceWorker struct {
	db           *DB
	writer       *AuditWriter
	inputChan    <-chan event.Outcome
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	retry        retrypolicy.RetryPolicy[any]
}

func NewPersistenceWorker(
	db *DB,
	inputChan <-chan event.Outcome,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	pw := &PersistenceWorker{
		db:           db,
		writer:       NewAuditWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
	pw.retry = retrypolicy.NewBuilder[any]().
		WithBackoff(100*time.Millisecond, 30*time.Second).
		WithMaxRetries(-1).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			log.Printf("WARN: persistence retry attempt %d: %v", e.Attempts(), e.LastError())
			pw.recordError("retry")
		}).
		Build()
	return pw
}

// Run starts the persistence worker loop. It batches incoming outcomes
// and flushes either when the batch is full or the flush timeout expires.
// Blocks until ctx is cancelled or the channel is closed.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]OutcomeRow, 0, pw.batchSize)

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				// Channel closed: flush and exit
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, NewOutcomeRow(out))

			if len(batch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				batch = batch[:0]
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := pw.flushWithRetry(ctx, batch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds
// or the context is cancelled. The worker never drops outcomes.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, rows []OutcomeRow) error {
	err := failsafe.With[any](pw.retry).WithContext(ctx).Run(func() error {
		return pw.flush(ctx, rows)
	})
	if err == nil || ctx.Err() == nil {
		return err
	}
	// Shutdown: one last try outside the cancelled context.
	if err := pw.flush(context.Background(), rows); err != nil {
		return fmt.Errorf("final flush on shutdown failed: %w", err)
	}
	return nil
}

func (pw *PersistenceWorker) flush(ctx context.Context, rows []OutcomeRow) error {
	start := time.Now()

	// Outcomes and processed ids in a single transaction
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.recordError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteOutcomeBatch(ctx, tx, rows); err != nil {
		pw.recordError("write_outcomes")
		return err
	}
	if err := pw.writer.WriteProcessedBatch(ctx, tx, rows); err != nil {
		pw.recordError("write_processed")
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.recordError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(rows)))
		pw.metrics.AuditRowsWritten.Add(float64(len(rows)))
	}
	return nil
}

func (pw *PersistenceWorker) recordError(kind string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(kind).Inc()
	}
}
