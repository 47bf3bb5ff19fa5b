package feed_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PerpVault/internal/feed"
	"PerpVault/internal/price"
)

func TestPriceCacheLatest(t *testing.T) {
	cache := feed.NewPriceCache(zerolog.Nop())

	if _, err := cache.Latest("BTC"); !errors.Is(err, price.ErrUnknownAsset) {
		t.Fatalf("empty cache: err = %v, want ErrUnknownAsset", err)
	}

	at := time.Unix(1_700_000_000, 0)
	cache.Set("BTC", big.NewInt(5_000_000_000_000), at)

	q, err := cache.Latest("BTC")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if q.Value.Cmp(big.NewInt(5_000_000_000_000)) != 0 {
		t.Fatalf("value = %s", q.Value)
	}
	if !q.UpdatedAt.Equal(at) {
		t.Fatalf("updated at = %v, want %v", q.UpdatedAt, at)
	}

	// Later ticks replace earlier ones.
	cache.Set("BTC", big.NewInt(6_000_000_000_000), at.Add(time.Second))
	q, _ = cache.Latest("BTC")
	if q.Value.Cmp(big.NewInt(6_000_000_000_000)) != 0 {
		t.Fatalf("value after update = %s", q.Value)
	}
}

func TestPriceCacheFeedsAdapter(t *testing.T) {
	cache := feed.NewPriceCache(zerolog.Nop())
	now := time.Unix(1_700_000_000, 0)

	adapter := price.NewAdapter(func() time.Time { return now })
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil)
	if err := adapter.UpdateConfig("BTC", cache, 30*time.Second, scale); err != nil {
		t.Fatalf("config: %v", err)
	}

	cache.Set("BTC", big.NewInt(5_000_000_000_000), now) // $50,000 at 1e8
	got, err := adapter.Price("BTC")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	want := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(26), nil))
	if got.Cmp(want) != 0 {
		t.Fatalf("adjusted price = %s, want %s", got, want)
	}
}
