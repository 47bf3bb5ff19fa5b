package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	fpmath "PerpVault/internal/math"
)

// SideTotals are the running open-interest aggregates for one side. They are
// adjusted incrementally on every lifecycle mutation and must always equal
// the sum over that side's live positions.
type SideTotals struct {
	OpenInterestUSD    *big.Int
	OpenInterestTokens *big.Int
}

func newSideTotals() *SideTotals {
	return &SideTotals{
		OpenInterestUSD:    new(big.Int),
		OpenInterestTokens: new(big.Int),
	}
}

// Book owns every piece of ledger state: the side-keyed position maps, the
// per-side aggregates, the pool scalars, and the LP share book. Nothing
// outside the engine mutates it; the engine stages an operation's effects
// and applies them here only after every invariant check has passed.
type Book struct {
	positions map[Side]map[uuid.UUID]*Position
	totals    map[Side]*SideTotals

	// Collateral-asset units owed to liquidity providers. Trader losses and
	// settled borrowing fees flow in; trader gains flow out.
	totalDeposits *big.Int

	// Collateral-asset units posted by traders, informational: conservation
	// requires bank balance == totalDeposits + totalCollateral.
	totalCollateral *big.Int

	shares      map[uuid.UUID]*big.Int
	totalShares *big.Int
}

func NewBook() *Book {
	return &Book{
		positions: map[Side]map[uuid.UUID]*Position{
			Long:  make(map[uuid.UUID]*Position),
			Short: make(map[uuid.UUID]*Position),
		},
		totals: map[Side]*SideTotals{
			Long:  newSideTotals(),
			Short: newSideTotals(),
		},
		totalDeposits:   new(big.Int),
		totalCollateral: new(big.Int),
		shares:          make(map[uuid.UUID]*big.Int),
		totalShares:     new(big.Int),
	}
}

// Position returns a copy of the stored position, or false if the trader has
// no open position on that side.
func (b *Book) Position(side Side, trader uuid.UUID) (*Position, bool) {
	pos, ok := b.positions[side][trader]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// SetPosition stores its own copy of pos.
func (b *Book) SetPosition(pos *Position) {
	b.positions[pos.Side][pos.Trader] = pos.Clone()
}

// DeletePosition removes a position record entirely.
func (b *Book) DeletePosition(side Side, trader uuid.UUID) {
	delete(b.positions[side], trader)
}

// PositionCount returns the number of open positions on a side.
func (b *Book) PositionCount(side Side) int {
	return len(b.positions[side])
}

// AddOpenInterest applies signed deltas to one side's aggregates.
func (b *Book) AddOpenInterest(side Side, usdDelta, tokensDelta *big.Int) {
	t := b.totals[side]
	t.OpenInterestUSD.Add(t.OpenInterestUSD, usdDelta)
	t.OpenInterestTokens.Add(t.OpenInterestTokens, tokensDelta)
}

// OpenInterest returns copies of one side's aggregates.
func (b *Book) OpenInterest(side Side) (usd, tokens *big.Int) {
	t := b.totals[side]
	return fpmath.Clone(t.OpenInterestUSD), fpmath.Clone(t.OpenInterestTokens)
}

// AddDeposits applies a signed delta to the LP deposit pool.
func (b *Book) AddDeposits(delta *big.Int) {
	b.totalDeposits.Add(b.totalDeposits, delta)
}

// AddTraderCollateral applies a signed delta to the trader-collateral total.
func (b *Book) AddTraderCollateral(delta *big.Int) {
	b.totalCollateral.Add(b.totalCollateral, delta)
}

func (b *Book) TotalDeposits() *big.Int {
	return fpmath.Clone(b.totalDeposits)
}

func (b *Book) TotalCollateral() *big.Int {
	return fpmath.Clone(b.totalCollateral)
}

// --- LP share book ---

func (b *Book) SharesOf(owner uuid.UUID) *big.Int {
	if s, ok := b.shares[owner]; ok {
		return fpmath.Clone(s)
	}
	return new(big.Int)
}

func (b *Book) TotalShares() *big.Int {
	return fpmath.Clone(b.totalShares)
}

// MintShares credits newly issued shares to owner.
func (b *Book) MintShares(owner uuid.UUID, amount *big.Int) {
	s, ok := b.shares[owner]
	if !ok {
		s = new(big.Int)
		b.shares[owner] = s
	}
	s.Add(s, amount)
	b.totalShares.Add(b.totalShares, amount)
}

// BurnShares destroys shares held by owner. The caller checks sufficiency;
// a negative result here is a bookkeeping bug.
func (b *Book) BurnShares(owner uuid.UUID, amount *big.Int) error {
	s, ok := b.shares[owner]
	if !ok || s.Cmp(amount) < 0 {
		return fmt.Errorf("burn %s shares from %s: holder has %s", amount, owner, b.SharesOf(owner))
	}
	s.Sub(s, amount)
	if s.Sign() == 0 {
		delete(b.shares, owner)
	}
	b.totalShares.Sub(b.totalShares, amount)
	return nil
}

// --- Reconciliation ---

// Reconcile recomputes both sides' aggregates from the live positions and
// compares them to the running totals. A mismatch means the incremental
// bookkeeping has drifted, which is fatal upstream.
func (b *Book) Reconcile() error {
	for _, side := range []Side{Long, Short} {
		sumUSD := new(big.Int)
		sumTokens := new(big.Int)
		for _, pos := range b.positions[side] {
			sumUSD.Add(sumUSD, pos.SizeUSD)
			sumTokens.Add(sumTokens, pos.SizeTokens)
		}

		t := b.totals[side]
		if sumUSD.Cmp(t.OpenInterestUSD) != 0 {
			return fmt.Errorf("%s open interest USD drifted: positions sum %s, running total %s",
				side, sumUSD, t.OpenInterestUSD)
		}
		if sumTokens.Cmp(t.OpenInterestTokens) != 0 {
			return fmt.Errorf("%s open interest tokens drifted: positions sum %s, running total %s",
				side, sumTokens, t.OpenInterestTokens)
		}
	}

	sumCollateral := new(big.Int)
	for _, side := range []Side{Long, Short} {
		for _, pos := range b.positions[side] {
			sumCollateral.Add(sumCollateral, pos.Collateral)
		}
	}
	if sumCollateral.Cmp(b.totalCollateral) != 0 {
		return fmt.Errorf("trader collateral drifted: positions sum %s, running total %s",
			sumCollateral, b.totalCollateral)
	}

	return nil
}

// CheckConservation verifies that the custody balance equals
// totalDeposits + totalCollateral.
func (b *Book) CheckConservation(bankBalance *big.Int) error {
	owed := new(big.Int).Add(b.totalDeposits, b.totalCollateral)
	if owed.Cmp(bankBalance) != 0 {
		return fmt.Errorf("conservation violated: deposits %s + collateral %s != bank balance %s",
			b.totalDeposits, b.totalCollateral, bankBalance)
	}
	return nil
}
