package engine

import (
	"math/big"
	"time"

	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// positionPnL returns the signed unrealized profit of the whole position in
// ledger USD. Longs profit when the marked value of their tokens exceeds the
// notional they opened at; shorts profit from the opposite.
func positionPnL(pos *ledger.Position, indexPrice *big.Int) *big.Int {
	value := fpmath.Mul(pos.SizeTokens, indexPrice)
	if pos.Side == ledger.Long {
		return value.Sub(value, pos.SizeUSD)
	}
	return value.Sub(new(big.Int).Set(pos.SizeUSD), value)
}

// pendingFeeUSD returns the borrowing fee accrued since the position was last
// touched, in ledger USD.
func (e *Engine) pendingFeeUSD(pos *ledger.Position, now time.Time) *big.Int {
	elapsed := int64(now.Sub(pos.LastUpdatedAt) / time.Second)
	if elapsed <= 0 {
		return new(big.Int)
	}
	return fpmath.BorrowingFeeUSD(pos.SizeUSD, elapsed, e.params.BorrowingRatePerSecond)
}

// liquidatable reports whether the position no longer meets maintenance
// requirements: pending fees alone consume its collateral value, the signed
// unrealized PnL leaves nothing behind, or the leverage cap is breached
// against the post-fee PnL-adjusted remainder. Unrealized gains raise the
// backing the same way losses lower it.
func (e *Engine) liquidatable(pos *ledger.Position, indexPrice, collateralPrice *big.Int, now time.Time) bool {
	if pos == nil || pos.IsEmpty() {
		return false
	}

	remaining := fpmath.Mul(pos.Collateral, collateralPrice)

	feeUSD := e.pendingFeeUSD(pos, now)
	if feeUSD.Cmp(remaining) >= 0 {
		return true
	}
	remaining.Sub(remaining, feeUSD)

	remaining.Add(remaining, positionPnL(pos, indexPrice))
	if remaining.Sign() <= 0 {
		return true
	}

	maxSize := remaining.Mul(remaining, big.NewInt(e.params.MaxLeverage))
	return pos.SizeUSD.Cmp(maxSize) > 0
}
