package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpVault/internal/price"
)

// PriceUpdate is the wire format of one oracle tick on vault.prices.{asset}.
// Value is a decimal string at the oracle's raw scale; the price adapter
// applies the per-asset scale factor.
type PriceUpdate struct {
	Asset     string    `json:"asset"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceCache consumes oracle ticks from NATS and holds the latest quote per
// asset. It implements price.Feed, so the engine's price adapter reads
// straight from it.
type PriceCache struct {
	mu     sync.RWMutex
	latest map[string]price.Quote
	log    zerolog.Logger
}

var _ price.Feed = (*PriceCache)(nil)

func NewPriceCache(logger zerolog.Logger) *PriceCache {
	return &PriceCache{
		latest: make(map[string]price.Quote),
		log:    logger.With().Str("component", "price-cache").Logger(),
	}
}

// Latest returns the most recent quote for asset.
func (c *PriceCache) Latest(asset string) (price.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.latest[asset]
	if !ok {
		return price.Quote{}, fmt.Errorf("%w: no quote for %q", price.ErrUnknownAsset, asset)
	}
	return q, nil
}

// Set stores a quote directly. Used at startup seeding and in tests.
func (c *PriceCache) Set(asset string, value *big.Int, updatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[asset] = price.Quote{Value: new(big.Int).Set(value), UpdatedAt: updatedAt}
}

// Subscribe creates a durable JetStream consumer on the price stream and
// feeds ticks into the cache. Malformed ticks are dropped with a warning;
// each message is acked either way, a bad tick gains nothing from redelivery.
func (c *PriceCache) Subscribe(ctx context.Context, js jetstream.JetStream, stream, consumer string) (jetstream.ConsumeContext, error) {
	cons, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       consumer,
		FilterSubject: "vault.prices.>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create price consumer %s: %w", consumer, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()
		var upd PriceUpdate
		if err := json.Unmarshal(msg.Data(), &upd); err != nil {
			c.log.Warn().Str("subject", msg.Subject()).Err(err).Msg("malformed price tick")
			return
		}
		value, ok := new(big.Int).SetString(upd.Value, 10)
		if !ok {
			c.log.Warn().Str("asset", upd.Asset).Str("value", upd.Value).Msg("unparseable price value")
			return
		}
		c.Set(upd.Asset, value, upd.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("consume prices: %w", err)
	}
	return cc, nil
}

// EnsurePriceStream creates the inbound price stream.
func EnsurePriceStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "VAULT_PRICES",
		Subjects:  []string{"vault.prices.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create price stream: %w", err)
	}
	return nil
}
