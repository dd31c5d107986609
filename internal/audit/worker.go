package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// OutboxSource is the slice of the Postgres store the worker needs.
type OutboxSource interface {
	NextBatch(ctx context.Context, limit int) ([]OutboxRow, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// Sink is where claimed outbox rows go; KafkaSink in production.
type Sink interface {
	Produce(ctx context.Context, key string, payload []byte) error
}

// Worker drains the audit outbox into the sink. Rows stay claimed-but-
// unpublished on failure and are retried on the next tick, so the sink
// sees at-least-once delivery.
type Worker struct {
	source   OutboxSource
	sink     Sink
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func NewWorker(source OutboxSource, sink Sink, logger *slog.Logger) *Worker {
	return &Worker{
		source:   source,
		sink:     sink,
		logger:   logger,
		interval: 2 * time.Second,
		batch:    100,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drain(ctx); err != nil {
				w.logger.ErrorContext(ctx, "audit outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drain(ctx context.Context) error {
	rows, err := w.source.NextBatch(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	published := make([]string, 0, len(rows))
	for _, row := range rows {
		var p outboxPayload
		key := row.ID
		if err := json.Unmarshal(row.Payload, &p); err == nil && p.EntityID != "" {
			key = p.EntityID
		}
		if err := w.sink.Produce(ctx, key, row.Payload); err != nil {
			// Stop the batch; unpublished rows are retried next tick.
			w.logger.WarnContext(ctx, "audit produce failed", "event_id", row.ID, "error", err)
			break
		}
		published = append(published, row.ID)
	}

	return w.source.MarkPublished(ctx, published)
}
