package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// Read-only surface. Everything here takes the same lock as the mutators and
// returns copies, so callers can hold results without racing the book.

// GetPosition returns a snapshot of the trader's position on one side.
func (e *Engine) GetPosition(trader uuid.UUID, isLong bool) (ledger.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.book.Position(ledger.SideOf(isLong), trader)
	if !ok {
		return ledger.Position{}, false
	}
	return *pos, true
}

// GetPendingBorrowingFees reports the borrowing fee the position has accrued
// since it was last touched, in collateral units at the current price.
func (e *Engine) GetPendingBorrowingFees(trader uuid.UUID, isLong bool) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.book.Position(ledger.SideOf(isLong), trader)
	if !ok {
		return nil, fmt.Errorf("%w: no %s position for %s",
			ErrPositionNotFound, ledger.SideOf(isLong), trader)
	}
	collateralPrice, err := e.prices.Price(e.collateralAsset)
	if err != nil {
		return nil, err
	}
	return fpmath.FeeToCollateral(e.pendingFeeUSD(pos, e.clock()), collateralPrice), nil
}

// OpenInterest reports one side's aggregate notional and token exposure.
func (e *Engine) OpenInterest(isLong bool) (usd, tokens *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.OpenInterest(ledger.SideOf(isLong))
}

// PoolStats is a point-in-time view of pool health.
type PoolStats struct {
	Deposits         *big.Int
	TraderCollateral *big.Int
	TotalShares      *big.Int
	Reserved         *big.Int // USD exposure the pool must be able to pay
	Utilizable       *big.Int // USD bound allowed by the utilization ratio
	AsOf             time.Time
}

// Stats reports pool aggregates. Reserved and Utilizable need live prices
// when any interest is open.
func (e *Engine) Stats() (PoolStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := PoolStats{
		Deposits:         e.book.TotalDeposits(),
		TraderCollateral: e.book.TotalCollateral(),
		TotalShares:      e.book.TotalShares(),
		Reserved:         new(big.Int),
		Utilizable:       new(big.Int),
		AsOf:             e.clock(),
	}
	if e.hasOpenInterest() {
		indexPrice, collateralPrice, err := e.quote()
		if err != nil {
			return PoolStats{}, err
		}
		stats.Reserved, stats.Utilizable = e.utilization(indexPrice, collateralPrice)
	}
	return stats, nil
}

// CheckInvariants recomputes every aggregate from the raw positions and
// verifies custody conservation. Exposed for operational spot checks; the
// engine also runs it automatically on a fixed operation cadence.
func (e *Engine) CheckInvariants() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.book.Reconcile(); err != nil {
		return err
	}
	return e.book.CheckConservation(e.bank.Balance())
}
