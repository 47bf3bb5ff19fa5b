package price_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"PerpVault/internal/price"
)

// stubFeed returns a fixed quote per asset.
type stubFeed struct {
	quotes map[string]price.Quote
	err    error
}

func (s *stubFeed) Latest(asset string) (price.Quote, error) {
	if s.err != nil {
		return price.Quote{}, s.err
	}
	return s.quotes[asset], nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAdapter_UnknownAsset(t *testing.T) {
	a := price.NewAdapter(nil)
	_, err := a.Price("BTC")
	if !errors.Is(err, price.ErrUnknownAsset) {
		t.Errorf("got %v, want ErrUnknownAsset", err)
	}
}

func TestAdapter_ScalesRawQuote(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &stubFeed{quotes: map[string]price.Quote{
		// 50,000 USD at feed scale 1e8
		"BTC": {Value: big.NewInt(50_000_00000000), UpdatedAt: now},
	}}

	a := price.NewAdapter(fixedClock(now))
	// 8-decimal feed, 8-decimal asset: factor = 1e30 / (1e8 * 1e8) = 1e14
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil)
	if err := a.UpdateConfig("BTC", feed, time.Minute, scale); err != nil {
		t.Fatal(err)
	}

	got, err := a.Price("BTC")
	if err != nil {
		t.Fatal(err)
	}

	// Adjusted price: 50_000e30 / 1e8 = 5e26
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(22), nil)
	want.Mul(want, big.NewInt(50_000))
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestAdapter_RejectsNonPositive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	for _, v := range []int64{0, -1} {
		feed := &stubFeed{quotes: map[string]price.Quote{
			"BTC": {Value: big.NewInt(v), UpdatedAt: now},
		}}
		a := price.NewAdapter(fixedClock(now))
		if err := a.UpdateConfig("BTC", feed, time.Minute, big.NewInt(1)); err != nil {
			t.Fatal(err)
		}

		_, err := a.Price("BTC")
		if !errors.Is(err, price.ErrInvalidPrice) {
			t.Errorf("value %d: got %v, want ErrInvalidPrice", v, err)
		}
	}
}

func TestAdapter_RejectsStale(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &stubFeed{quotes: map[string]price.Quote{
		"BTC": {Value: big.NewInt(100), UpdatedAt: now.Add(-2 * time.Minute)},
	}}

	a := price.NewAdapter(fixedClock(now))
	if err := a.UpdateConfig("BTC", feed, time.Minute, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}

	_, err := a.Price("BTC")
	if !errors.Is(err, price.ErrStalePrice) {
		t.Errorf("got %v, want ErrStalePrice", err)
	}
}

func TestAdapter_FreshWithinWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	feed := &stubFeed{quotes: map[string]price.Quote{
		"BTC": {Value: big.NewInt(100), UpdatedAt: now.Add(-30 * time.Second)},
	}}

	a := price.NewAdapter(fixedClock(now))
	if err := a.UpdateConfig("BTC", feed, time.Minute, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Price("BTC"); err != nil {
		t.Errorf("fresh quote rejected: %v", err)
	}
}

func TestAdapter_UpdateConfigValidation(t *testing.T) {
	a := price.NewAdapter(nil)
	feed := &stubFeed{}

	if err := a.UpdateConfig("", feed, time.Minute, big.NewInt(1)); err == nil {
		t.Error("empty asset accepted")
	}
	if err := a.UpdateConfig("BTC", nil, time.Minute, big.NewInt(1)); err == nil {
		t.Error("nil feed accepted")
	}
	if err := a.UpdateConfig("BTC", feed, 0, big.NewInt(1)); err == nil {
		t.Error("zero staleness accepted")
	}
	if err := a.UpdateConfig("BTC", feed, time.Minute, big.NewInt(0)); err == nil {
		t.Error("zero scale factor accepted")
	}
}

func TestAdapter_FeedErrorPropagates(t *testing.T) {
	feedErr := errors.New("oracle offline")
	feed := &stubFeed{err: feedErr}

	a := price.NewAdapter(nil)
	if err := a.UpdateConfig("BTC", feed, time.Minute, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}

	_, err := a.Price("BTC")
	if !errors.Is(err, feedErr) {
		t.Errorf("got %v, want wrapped feed error", err)
	}
}
