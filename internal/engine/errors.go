package engine

import "errors"

// Every failure mode an operation can surface is a distinct sentinel so
// callers and tests can assert on cause with errors.Is. All of them abort
// the whole operation: there is no partial commit and no retry inside the
// engine.
var (
	// ErrInvalidArgument covers malformed inputs: nil or negative amounts,
	// zero-delta decreases, out-of-range parameter values.
	ErrInvalidArgument = errors.New("engine: invalid argument")

	// ErrEmptyPosition means a mutation would leave a position with some but
	// not all economic fields zero, including the zero-size zero-collateral
	// no-op increase.
	ErrEmptyPosition = errors.New("engine: position would be malformed or empty")

	// ErrPositionNotFound means no open position exists for (side, trader).
	ErrPositionNotFound = errors.New("engine: position not found")

	// ErrUtilizationExceeded means aggregate reserved exposure would exceed
	// the allowed fraction of pooled deposits.
	ErrUtilizationExceeded = errors.New("engine: utilization cap exceeded")

	// ErrInsufficientCollateral means a realized loss cannot be covered by
	// the position's remaining collateral (non-liquidation path only).
	ErrInsufficientCollateral = errors.New("engine: insufficient collateral for realized loss")

	// ErrBorrowingFeeUnpayable means accrued borrowing fees exceed the
	// position's collateral (non-liquidation path only).
	ErrBorrowingFeeUnpayable = errors.New("engine: insufficient collateral for borrowing fees")

	// ErrNotLiquidatable means liquidation was requested on a healthy position.
	ErrNotLiquidatable = errors.New("engine: position is not liquidatable")

	// ErrPositionLiquidatable means the non-liquidation decrease path was
	// used on a position that is, or would remain, liquidatable.
	ErrPositionLiquidatable = errors.New("engine: position is liquidatable")

	// ErrPoolInsolvent means aggregate trader gains exceed pooled deposits,
	// or a payout would need funds the pool does not hold.
	ErrPoolInsolvent = errors.New("engine: pool net value underflow")

	// ErrRateTooHigh means an administrative borrowing-rate update exceeds
	// the hard cap.
	ErrRateTooHigh = errors.New("engine: borrowing rate above cap")

	// ErrUnauthorized means a non-admin caller invoked an administrative setter.
	ErrUnauthorized = errors.New("engine: caller is not the admin")

	// ErrInsufficientShares means a withdraw/redeem asks for more than the
	// owner's share balance.
	ErrInsufficientShares = errors.New("engine: insufficient shares")

	// ErrInsufficientFunds means the caller's bank account cannot cover the
	// amount the operation needs to pull into custody.
	ErrInsufficientFunds = errors.New("engine: insufficient bank funds")

	// ErrSizeExceeded means a decrease asks for more notional than is open.
	ErrSizeExceeded = errors.New("engine: size delta exceeds position size")

	// ErrCollateralExceeded means a decrease asks to withdraw more collateral
	// than the position holds after fees and losses.
	ErrCollateralExceeded = errors.New("engine: collateral delta exceeds position collateral")
)

// reason maps an operation error onto a stable metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrEmptyPosition):
		return "empty_position"
	case errors.Is(err, ErrPositionNotFound):
		return "not_found"
	case errors.Is(err, ErrUtilizationExceeded):
		return "utilization"
	case errors.Is(err, ErrInsufficientCollateral):
		return "insufficient_collateral"
	case errors.Is(err, ErrBorrowingFeeUnpayable):
		return "fee_unpayable"
	case errors.Is(err, ErrNotLiquidatable):
		return "not_liquidatable"
	case errors.Is(err, ErrPositionLiquidatable):
		return "liquidatable"
	case errors.Is(err, ErrPoolInsolvent):
		return "pool_insolvent"
	case errors.Is(err, ErrRateTooHigh):
		return "rate_too_high"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSizeExceeded):
		return "size_exceeded"
	case errors.Is(err, ErrCollateralExceeded):
		return "collateral_exceeded"
	default:
		return "other"
	}
}
