// Package feed connects the engine to NATS JetStream: outbound operation
// records for downstream consumers, inbound price updates for the oracle
// adapter.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpVault/internal/event"
	"PerpVault/internal/observability"
)

// Publisher publishes committed operation records to NATS for downstream
// consumers. Subjects follow the pattern vault.events.{kind}. Delivery is
// best-effort: a failed publish is logged and counted, never retried — the
// Postgres journal is the durable record.
type Publisher struct {
	js      jetstream.JetStream
	input   <-chan event.Record
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, input <-chan event.Record, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		js:      js,
		input:   input,
		log:     logger.With().Str("component", "feed").Logger(),
		metrics: metrics,
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the input
// channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case rec, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, rec); err != nil {
				if p.metrics != nil {
					p.metrics.FeedPublishErrors.Inc()
				}
				p.log.Warn().Int64("sequence", rec.Sequence).Err(err).Msg("publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.FeedPublished.Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, rec event.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	subject := fmt.Sprintf("vault.events.%s", rec.Kind)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// EnsureEventStream creates the outbound events stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_EVENTS",
		Subjects:  []string{"vault.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
