package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	fpmath "PerpVault/internal/math"
)

// Side is the direction of a position.
type Side int32

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// SideOf maps the public isLong flag onto a Side.
func SideOf(isLong bool) Side {
	if isLong {
		return Long
	}
	return Short
}

// Position is one trader's exposure on one side of the market.
//
// SizeUSD is the notional value at open (USD, 1e30). SizeTokens is the
// quantity of index asset backing that notional, in the index asset's native
// units. Collateral is posted collateral in the collateral asset's native
// units. LastUpdatedAt anchors lazy borrowing-fee accrual.
//
// The three economic fields are jointly zero (no position) or jointly
// non-zero (open position); any other combination is invalid.
type Position struct {
	Trader        uuid.UUID
	Side          Side
	SizeUSD       *big.Int
	SizeTokens    *big.Int
	Collateral    *big.Int
	LastUpdatedAt time.Time
}

// NewPosition returns an empty position for a trader and side.
func NewPosition(trader uuid.UUID, side Side) *Position {
	return &Position{
		Trader:     trader,
		Side:       side,
		SizeUSD:    new(big.Int),
		SizeTokens: new(big.Int),
		Collateral: new(big.Int),
	}
}

// Clone returns an independent copy. Arithmetic on a staged copy must never
// reach the book until commit.
func (p *Position) Clone() *Position {
	return &Position{
		Trader:        p.Trader,
		Side:          p.Side,
		SizeUSD:       fpmath.Clone(p.SizeUSD),
		SizeTokens:    fpmath.Clone(p.SizeTokens),
		Collateral:    fpmath.Clone(p.Collateral),
		LastUpdatedAt: p.LastUpdatedAt,
	}
}

// IsEmpty reports whether all three economic fields are zero.
func (p *Position) IsEmpty() bool {
	return p.SizeUSD.Sign() == 0 && p.SizeTokens.Sign() == 0 && p.Collateral.Sign() == 0
}

// CheckShape enforces the jointly-zero-or-jointly-nonzero invariant.
func (p *Position) CheckShape() error {
	zeros := 0
	if p.SizeUSD.Sign() == 0 {
		zeros++
	}
	if p.SizeTokens.Sign() == 0 {
		zeros++
	}
	if p.Collateral.Sign() == 0 {
		zeros++
	}
	if zeros != 0 && zeros != 3 {
		return fmt.Errorf("position %s/%s has partially-zero fields: sizeUSD=%s sizeTokens=%s collateral=%s",
			p.Trader, p.Side, p.SizeUSD, p.SizeTokens, p.Collateral)
	}
	if p.SizeUSD.Sign() < 0 || p.SizeTokens.Sign() < 0 || p.Collateral.Sign() < 0 {
		return fmt.Errorf("position %s/%s has negative field: sizeUSD=%s sizeTokens=%s collateral=%s",
			p.Trader, p.Side, p.SizeUSD, p.SizeTokens, p.Collateral)
	}
	return nil
}
