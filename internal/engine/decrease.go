package engine

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// DecreasePosition shrinks or closes the trader's position. sizeDeltaUSD
// closes that much notional, realizing its profit or loss; collateralDelta is
// withdrawn to the trader's bank account after fees and losses settle. Either
// delta may be zero, but not both. Closing the full size pays out all
// remaining collateral and removes the position.
func (e *Engine) DecreasePosition(trader uuid.UUID, isLong bool, sizeDeltaUSD, collateralDelta *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	err := e.decreaseLocked(trader, ledger.SideOf(isLong), sizeDeltaUSD, collateralDelta, uuid.Nil)
	return e.finish("decrease", start, err)
}

// decreaseLocked is shared by the voluntary decrease path and liquidation.
// A non-nil liquidator marks a liquidation: fee and loss settlement clamp to
// available collateral instead of failing, and the liquidator is paid their
// cut of post-fee collateral.
func (e *Engine) decreaseLocked(trader uuid.UUID, side ledger.Side, sizeDeltaUSD, collateralDelta *big.Int, liquidator uuid.UUID) error {
	liquidating := liquidator != uuid.Nil

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
		return fmt.Errorf("%w: zero-delta decrease", ErrInvalidArgument)
	}

	pos, ok := e.book.Position(side, trader)
	if !ok {
		return fmt.Errorf("%w: no %s position for %s", ErrPositionNotFound, side, trader)
	}
	if sizeDeltaUSD.Cmp(pos.SizeUSD) > 0 {
		return fmt.Errorf("%w: %s > open size %s", ErrSizeExceeded, sizeDeltaUSD, pos.SizeUSD)
	}

	indexPrice, collateralPrice, err := e.quote()
	if err != nil {
		return err
	}
	now := e.clock()

	if !liquidating && e.liquidatable(pos, indexPrice, collateralPrice, now) {
		return fmt.Errorf("%w: position must go through liquidation", ErrPositionLiquidatable)
	}

	st := &stage{side: side, trader: trader}
	traderPayout := new(big.Int)

	// 1. Borrowing fees, trader collateral -> pooled deposits. Liquidation
	// tolerates fees the collateral cannot cover and takes what is there.
	feeUSD := e.pendingFeeUSD(pos, now)
	feeCollateral := fpmath.FeeToCollateral(feeUSD, collateralPrice)
	if feeCollateral.Sign() > 0 {
		if feeCollateral.Cmp(pos.Collateral) > 0 {
			if !liquidating {
				return fmt.Errorf("%w: accrued fee %s > collateral %s",
					ErrBorrowingFeeUnpayable, feeCollateral, pos.Collateral)
			}
			feeCollateral.Set(pos.Collateral)
		}
		pos.Collateral.Sub(pos.Collateral, feeCollateral)
		st.addDeposits(feeCollateral)
		st.addCollateral(new(big.Int).Neg(feeCollateral))
	}

	// 2. Liquidator incentive, cut from post-fee collateral before PnL.
	liqFee := new(big.Int)
	if liquidating && e.params.LiquidationFeeBps > 0 {
		liqFee = fpmath.MulDiv(pos.Collateral, big.NewInt(e.params.LiquidationFeeBps),
			fpmath.BpsScale, fpmath.RoundFloor)
		if liqFee.Sign() > 0 {
			pos.Collateral.Sub(pos.Collateral, liqFee)
			st.addCollateral(new(big.Int).Neg(liqFee))
			st.pay(liquidator, liqFee)
		}
	}

	// 3. Tokens leaving the position. A full close releases the exact token
	// balance; a partial close releases the proportional share, rounded so
	// the tokens kept by the position favor the pool.
	fullClose := sizeDeltaUSD.Cmp(pos.SizeUSD) == 0
	var tokensDelta *big.Int
	switch {
	case fullClose:
		tokensDelta = fpmath.Clone(pos.SizeTokens)
	case sizeDeltaUSD.Sign() > 0:
		mode := fpmath.RoundCeil
		if side == ledger.Short {
			mode = fpmath.RoundFloor
		}
		tokensDelta = fpmath.MulDiv(pos.SizeTokens, sizeDeltaUSD, pos.SizeUSD, mode)
	default:
		tokensDelta = new(big.Int)
	}

	// 4. Realize PnL on the closed portion. Losses move trader collateral to
	// pooled deposits (rounded up); gains move pooled deposits to the trader
	// (rounded down).
	realized := new(big.Int)
	if tokensDelta.Sign() > 0 {
		closedValue := fpmath.Mul(tokensDelta, indexPrice)
		if side == ledger.Long {
			realized.Sub(closedValue, sizeDeltaUSD)
		} else {
			realized.Sub(sizeDeltaUSD, closedValue)
		}
	}
	switch {
	case realized.Sign() < 0:
		loss := fpmath.Div(new(big.Int).Neg(realized), collateralPrice, fpmath.RoundCeil)
		if loss.Cmp(pos.Collateral) > 0 {
			if !liquidating {
				return fmt.Errorf("%w: realized loss %s > collateral %s",
					ErrInsufficientCollateral, loss, pos.Collateral)
			}
			loss.Set(pos.Collateral)
		}
		pos.Collateral.Sub(pos.Collateral, loss)
		st.addDeposits(loss)
		st.addCollateral(new(big.Int).Neg(loss))
	case realized.Sign() > 0:
		gain := fpmath.Div(realized, collateralPrice, fpmath.RoundFloor)
		available := e.book.TotalDeposits()
		if st.deposits != nil {
			available.Add(available, st.deposits)
		}
		if gain.Cmp(available) > 0 {
			return fmt.Errorf("%w: realized gain %s > pooled deposits %s",
				ErrPoolInsolvent, gain, available)
		}
		st.addDeposits(new(big.Int).Neg(gain))
		traderPayout.Add(traderPayout, gain)
	}

	// 5. Requested collateral withdrawal.
	if collateralDelta.Sign() > 0 {
		if collateralDelta.Cmp(pos.Collateral) > 0 {
			return fmt.Errorf("%w: %s > remaining collateral %s",
				ErrCollateralExceeded, collateralDelta, pos.Collateral)
		}
		pos.Collateral.Sub(pos.Collateral, collateralDelta)
		st.addCollateral(new(big.Int).Neg(collateralDelta))
		traderPayout.Add(traderPayout, collateralDelta)
	}

	// 6. Shrink the position and settle the remainder.
	pos.SizeUSD.Sub(pos.SizeUSD, sizeDeltaUSD)
	pos.SizeTokens.Sub(pos.SizeTokens, tokensDelta)
	pos.LastUpdatedAt = now

	if pos.SizeUSD.Sign() == 0 {
		if remaining := pos.Collateral; remaining.Sign() > 0 {
			st.addCollateral(new(big.Int).Neg(remaining))
			traderPayout.Add(traderPayout, remaining)
		}
		st.deletePos = true
	} else {
		if err := pos.CheckShape(); err != nil {
			return fmt.Errorf("%w: %v", ErrEmptyPosition, err)
		}
		if !liquidating && e.liquidatable(pos, indexPrice, collateralPrice, now) {
			return fmt.Errorf("%w: remaining position would violate maintenance requirements",
				ErrPositionLiquidatable)
		}
		st.pos = pos
	}

	st.oiUSD = new(big.Int).Neg(sizeDeltaUSD)
	st.oiTokens = new(big.Int).Neg(tokensDelta)
	st.pay(trader, traderPayout)

	kind := event.KindPositionDecreased
	if liquidating {
		kind = event.KindPositionLiquidated
	}
	fees := new(big.Int).Add(feeCollateral, liqFee)
	err = e.commit(st, event.Record{
		RecordID:   uuid.New(),
		Kind:       kind,
		Account:    trader,
		Side:       side.String(),
		SizeDelta:  sizeDeltaUSD.String(),
		Collateral: collateralDelta.String(),
		Payout:     traderPayout.String(),
		FeePaid:    fees.String(),
		RealizedPL: realized.String(),
		Liquidator: liquidator,
		OccurredAt: now,
	})
	if err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.BorrowingFeesCollected.Add(approx(feeCollateral))
		if liquidating {
			e.metrics.Liquidations.Inc()
		}
	}
	return nil
}
