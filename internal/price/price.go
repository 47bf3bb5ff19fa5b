// Package price defines the contract between the ledger and its external
// price source. The ledger consumes adjusted prices — USD at the ledger's
// 1e30 scale per one native unit of an asset — and never fetches prices
// itself: feeds are injected per asset together with a staleness window
// and a scale factor reconciling the feed's precision with the ledger's.
package price

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

var (
	// ErrUnknownAsset means no feed has been configured for the asset.
	ErrUnknownAsset = errors.New("price: unknown asset")

	// ErrInvalidPrice means the feed reported a zero or negative value.
	ErrInvalidPrice = errors.New("price: invalid price")

	// ErrStalePrice means the feed's report is older than the configured
	// staleness window.
	ErrStalePrice = errors.New("price: stale price")
)

// Quote is a raw feed report: the value at the feed's own scale and the
// moment the feed produced it.
type Quote struct {
	Value     *big.Int
	UpdatedAt time.Time
}

// Feed supplies raw quotes for assets. Implementations live outside the
// ledger (oracle clients, exchange streams); tests use fixed stubs.
type Feed interface {
	Latest(asset string) (Quote, error)
}

// Source is the narrow capability the engine consumes: an adjusted price or
// a structured error.
type Source interface {
	Price(asset string) (*big.Int, error)
}

type assetConfig struct {
	feed        Feed
	staleness   time.Duration
	scaleFactor *big.Int // raw feed value * scaleFactor = adjusted price
}

// Adapter validates and scales raw feed quotes into adjusted prices.
type Adapter struct {
	mu     sync.RWMutex
	assets map[string]assetConfig
	clock  func() time.Time
}

func NewAdapter(clock func() time.Time) *Adapter {
	if clock == nil {
		clock = time.Now
	}
	return &Adapter{
		assets: make(map[string]assetConfig),
		clock:  clock,
	}
}

// UpdateConfig installs or replaces the feed configuration for an asset.
// scaleFactor must satisfy rawValue * scaleFactor == USD(1e30) per native
// unit; e.g. a 1e8-scale feed pricing an 8-decimal asset uses 1e30/(1e8*1e8).
func (a *Adapter) UpdateConfig(asset string, feed Feed, staleness time.Duration, scaleFactor *big.Int) error {
	if asset == "" || feed == nil {
		return fmt.Errorf("price: asset and feed are required")
	}
	if staleness <= 0 {
		return fmt.Errorf("price: staleness window must be positive, got %s", staleness)
	}
	if scaleFactor == nil || scaleFactor.Sign() <= 0 {
		return fmt.Errorf("price: scale factor must be positive")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.assets[asset] = assetConfig{
		feed:        feed,
		staleness:   staleness,
		scaleFactor: new(big.Int).Set(scaleFactor),
	}
	return nil
}

// Price returns the adjusted price for an asset, enforcing the positivity
// and freshness contracts. Violations surface as distinct error kinds so the
// calling operation can abort with an assertable cause.
func (a *Adapter) Price(asset string) (*big.Int, error) {
	a.mu.RLock()
	cfg, ok := a.assets[asset]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}

	q, err := cfg.feed.Latest(asset)
	if err != nil {
		return nil, fmt.Errorf("price: feed %s: %w", asset, err)
	}

	if q.Value == nil || q.Value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s reported %v", ErrInvalidPrice, asset, q.Value)
	}

	if age := a.clock().Sub(q.UpdatedAt); age > cfg.staleness {
		return nil, fmt.Errorf("%w: %s is %s old (window %s)", ErrStalePrice, asset, age, cfg.staleness)
	}

	return new(big.Int).Mul(q.Value, cfg.scaleFactor), nil
}
