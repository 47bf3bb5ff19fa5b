package engine

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// IncreasePosition opens or grows the trader's position on one side.
// sizeDeltaUSD adds notional exposure at the current index price;
// collateralDelta is pulled from the trader's bank account. Either delta may
// be zero, but not both. Pending borrowing fees settle first, out of the
// position's existing collateral.
func (e *Engine) IncreasePosition(trader uuid.UUID, isLong bool, sizeDeltaUSD, collateralDelta *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	return e.finish("increase", start, e.increaseLocked(trader, isLong, sizeDeltaUSD, collateralDelta))
}

func (e *Engine) increaseLocked(trader uuid.UUID, isLong bool, sizeDeltaUSD, collateralDelta *big.Int) error {
	if trader == uuid.Nil {
		return fmt.Errorf("%w: trader identity is unset", ErrInvalidArgument)
	}
	if err := checkAmount("sizeDeltaUSD", sizeDeltaUSD); err != nil {
		return err
	}
	if err := checkAmount("collateralDelta", collateralDelta); err != nil {
		return err
	}
	if sizeDeltaUSD.Sign() == 0 && collateralDelta.Sign() == 0 {
		return fmt.Errorf("%w: zero-delta increase", ErrEmptyPosition)
	}

	indexPrice, collateralPrice, err := e.quote()
	if err != nil {
		return err
	}
	now := e.clock()
	side := ledger.SideOf(isLong)

	pos, ok := e.book.Position(side, trader)
	if !ok {
		pos = ledger.NewPosition(trader, side)
		pos.LastUpdatedAt = now
	}

	st := &stage{side: side, trader: trader}

	// Settle accrued borrowing fees before the size changes; the fee moves
	// from the trader's collateral to pooled deposits.
	feeUSD := e.pendingFeeUSD(pos, now)
	feeCollateral := fpmath.FeeToCollateral(feeUSD, collateralPrice)
	if feeCollateral.Sign() > 0 {
		if feeCollateral.Cmp(pos.Collateral) > 0 {
			return fmt.Errorf("%w: accrued fee %s > collateral %s",
				ErrBorrowingFeeUnpayable, feeCollateral, pos.Collateral)
		}
		pos.Collateral.Sub(pos.Collateral, feeCollateral)
		st.addDeposits(feeCollateral)
		st.addCollateral(new(big.Int).Neg(feeCollateral))
	}

	// Convert the notional delta to index tokens. Longs round down (fewer
	// tokens, less upside), shorts round up (more tokens, less upside).
	tokensDelta := new(big.Int)
	if sizeDeltaUSD.Sign() > 0 {
		mode := fpmath.RoundFloor
		if side == ledger.Short {
			mode = fpmath.RoundCeil
		}
		tokensDelta = fpmath.Div(sizeDeltaUSD, indexPrice, mode)
	}

	pos.SizeUSD.Add(pos.SizeUSD, sizeDeltaUSD)
	pos.SizeTokens.Add(pos.SizeTokens, tokensDelta)
	pos.Collateral.Add(pos.Collateral, collateralDelta)
	pos.LastUpdatedAt = now
	if err := pos.CheckShape(); err != nil {
		return fmt.Errorf("%w: %v", ErrEmptyPosition, err)
	}
	if pos.IsEmpty() {
		return fmt.Errorf("%w: increase on empty position with zero deltas", ErrEmptyPosition)
	}
	if e.liquidatable(pos, indexPrice, collateralPrice, now) {
		return fmt.Errorf("%w: resulting position would violate maintenance requirements",
			ErrPositionLiquidatable)
	}

	st.pos = pos
	st.oiUSD = fpmath.Clone(sizeDeltaUSD)
	st.oiTokens = tokensDelta
	st.addCollateral(collateralDelta)
	if collateralDelta.Sign() > 0 {
		st.pullFrom = trader
		st.pullAmount = fpmath.Clone(collateralDelta)
	}

	if err := e.checkUtilization(st, indexPrice, collateralPrice); err != nil {
		return err
	}

	if err := e.commit(st, event.Record{
		RecordID:   uuid.New(),
		Kind:       event.KindPositionIncreased,
		Account:    trader,
		Side:       side.String(),
		SizeDelta:  sizeDeltaUSD.String(),
		Collateral: collateralDelta.String(),
		FeePaid:    feeCollateral.String(),
		OccurredAt: now,
	}); err != nil {
		return err
	}
	if e.metrics != nil && feeCollateral.Sign() > 0 {
		e.metrics.BorrowingFeesCollected.Add(approx(feeCollateral))
	}
	return nil
}
