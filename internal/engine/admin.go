package engine

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"PerpVault/internal/event"
	fpmath "PerpVault/internal/math"
)

// Parameter setters. Only the configured admin identity may call them; each
// change is journaled like any other operation. Rate changes apply from the
// moment of the call: fees already accrued at the old rate are not
// recomputed, they settle lazily at whatever rate is current when the
// position is next touched.

func (e *Engine) SetBorrowingRatePerSecond(caller uuid.UUID, rate *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	err := func() error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if rate == nil || rate.Sign() < 0 {
			return fmt.Errorf("%w: rate %s", ErrInvalidArgument, rate)
		}
		if rate.Cmp(fpmath.MaxBorrowingRatePerSecond) > 0 {
			return fmt.Errorf("%w: %s > %s", ErrRateTooHigh, rate, fpmath.MaxBorrowingRatePerSecond)
		}
		e.params.BorrowingRatePerSecond.Set(rate)
		return e.commitParam("borrowing_rate_per_second", rate.String())
	}()
	return e.finish("set_borrowing_rate", start, err)
}

func (e *Engine) SetMaxUtilizationRatio(caller uuid.UUID, ratio *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	err := func() error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if ratio == nil || ratio.Sign() <= 0 || ratio.Cmp(fpmath.FractionScale) > 0 {
			return fmt.Errorf("%w: utilization ratio %s", ErrInvalidArgument, ratio)
		}
		e.params.MaxUtilizationRatio.Set(ratio)
		return e.commitParam("max_utilization_ratio", ratio.String())
	}()
	return e.finish("set_max_utilization", start, err)
}

func (e *Engine) SetMaxLeverage(caller uuid.UUID, leverage int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	err := func() error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if leverage <= 0 {
			return fmt.Errorf("%w: max leverage %d", ErrInvalidArgument, leverage)
		}
		e.params.MaxLeverage = leverage
		return e.commitParam("max_leverage", fmt.Sprintf("%d", leverage))
	}()
	return e.finish("set_max_leverage", start, err)
}

func (e *Engine) SetLiquidationFeeBps(caller uuid.UUID, bps int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	err := func() error {
		if err := e.authorize(caller); err != nil {
			return err
		}
		if bps < 0 || bps >= 10_000 {
			return fmt.Errorf("%w: liquidation fee %d bps", ErrInvalidArgument, bps)
		}
		e.params.LiquidationFeeBps = bps
		return e.commitParam("liquidation_fee_bps", fmt.Sprintf("%d", bps))
	}()
	return e.finish("set_liquidation_fee", start, err)
}

func (e *Engine) authorize(caller uuid.UUID) error {
	if caller != e.params.Admin {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

func (e *Engine) commitParam(param, value string) error {
	return e.commit(&stage{}, event.Record{
		RecordID:   uuid.New(),
		Kind:       event.KindParamUpdated,
		Account:    e.params.Admin,
		Param:      param,
		Value:      value,
		OccurredAt: e.clock(),
	})
}
