package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"PerpVault/internal/event"
	"PerpVault/internal/observability"
)

// JournalWorker drains the engine's journal channel and batch-writes records
// to Postgres. The engine sends blocking, so if this worker falls behind the
// engine stalls rather than losing a record.
type JournalWorker struct {
	writer       *RecordWriter
	input        <-chan event.Record
	batchSize    int
	flushTimeout time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
}

func NewJournalWorker(
	db *sql.DB,
	input <-chan event.Record,
	batchSize int,
	flushTimeout time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *JournalWorker {
	return &JournalWorker{
		writer:       NewRecordWriter(db),
		input:        input,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          logger.With().Str("component", "journal").Logger(),
		metrics:      metrics,
	}
}

// Run batches incoming records and flushes either when the batch is full or
// the flush timeout expires. Blocks until ctx is cancelled or the input
// channel closes; both paths flush what remains.
func (jw *JournalWorker) Run(ctx context.Context) error {
	batch := make([]event.Record, 0, jw.batchSize)

	timer := time.NewTimer(jw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := jw.flush(context.Background(), batch); err != nil {
					jw.log.Error().Err(err).Int("records", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case rec, ok := <-jw.input:
			if !ok {
				if len(batch) > 0 {
					if err := jw.flush(context.Background(), batch); err != nil {
						jw.log.Error().Err(err).Int("records", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}
			batch = append(batch, rec)
			if len(batch) >= jw.batchSize {
				jw.flushWithRetry(ctx, batch)
				batch = batch[:0]
				timer.Reset(jw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				jw.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(jw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The journal never drops a
// record: it keeps retrying until the write succeeds or the context is
// cancelled.
func (jw *JournalWorker) flushWithRetry(ctx context.Context, batch []event.Record) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			jw.log.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("records", len(batch)).Msg("retrying journal flush")
			select {
			case <-ctx.Done():
				jw.log.Error().Int("records", len(batch)).Msg("journal flush abandoned on shutdown")
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if err := jw.flush(ctx, batch); err != nil {
			if jw.metrics != nil {
				jw.metrics.JournalErrors.Inc()
			}
			jw.log.Error().Err(err).Msg("journal flush failed")
			continue
		}
		return
	}
}

func (jw *JournalWorker) flush(ctx context.Context, batch []event.Record) error {
	start := time.Now()
	if err := jw.writer.WriteBatch(ctx, batch); err != nil {
		return err
	}
	if jw.metrics != nil {
		jw.metrics.JournalWritten.Add(float64(len(batch)))
		jw.metrics.JournalBatchSize.Observe(float64(len(batch)))
		jw.metrics.JournalBatchDur.Observe(time.Since(start).Seconds())
	}
	return nil
}
