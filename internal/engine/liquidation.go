package engine

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// IsPositionLiquidatable reports whether the trader's position currently
// fails maintenance requirements at live prices.
func (e *Engine) IsPositionLiquidatable(trader uuid.UUID, isLong bool) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.book.Position(ledger.SideOf(isLong), trader)
	if !ok {
		return false, fmt.Errorf("%w: no %s position for %s", ErrPositionNotFound, ledger.SideOf(isLong), trader)
	}
	indexPrice, collateralPrice, err := e.quote()
	if err != nil {
		return false, err
	}
	return e.liquidatable(pos, indexPrice, collateralPrice, e.clock()), nil
}

// Liquidate force-closes a position that fails maintenance requirements. The
// full size is closed; fees and losses take whatever collateral can cover
// them, the liquidator earns their cut, and any remainder is returned to the
// trader. Anyone may liquidate.
func (e *Engine) Liquidate(liquidator, trader uuid.UUID, isLong bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	return e.finish("liquidate", start, e.liquidateLocked(liquidator, trader, isLong))
}

func (e *Engine) liquidateLocked(liquidator, trader uuid.UUID, isLong bool) error {
	if liquidator == uuid.Nil {
		return fmt.Errorf("%w: liquidator identity is unset", ErrInvalidArgument)
	}
	side := ledger.SideOf(isLong)
	pos, ok := e.book.Position(side, trader)
	if !ok {
		return fmt.Errorf("%w: no %s position for %s", ErrPositionNotFound, side, trader)
	}
	indexPrice, collateralPrice, err := e.quote()
	if err != nil {
		return err
	}
	if !e.liquidatable(pos, indexPrice, collateralPrice, e.clock()) {
		return fmt.Errorf("%w: %s %s position meets maintenance requirements",
			ErrNotLiquidatable, trader, side)
	}
	return e.decreaseLocked(trader, side, fpmath.Clone(pos.SizeUSD), new(big.Int), liquidator)
}
