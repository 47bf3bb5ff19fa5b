// Package event defines the typed records the engine emits after each
// committed operation. Records flow to the Postgres operation journal
// (blocking) and to the NATS feed (best-effort); they are observational
// only and never feed back into ledger state.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates record payloads.
type Kind int32

const (
	KindUnknown Kind = iota
	KindDeposit
	KindWithdraw
	KindPositionIncreased
	KindPositionDecreased
	KindPositionLiquidated
	KindParamUpdated
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "Deposit"
	case KindWithdraw:
		return "Withdraw"
	case KindPositionIncreased:
		return "PositionIncreased"
	case KindPositionDecreased:
		return "PositionDecreased"
	case KindPositionLiquidated:
		return "PositionLiquidated"
	case KindParamUpdated:
		return "ParamUpdated"
	default:
		return "Unknown"
	}
}

// Record is one committed operation. big.Int amounts are carried as decimal
// strings so the record marshals losslessly to JSON and SQL.
type Record struct {
	Sequence   int64     `json:"sequence"`
	RecordID   uuid.UUID `json:"record_id"`
	Kind       Kind      `json:"kind"`
	Account    uuid.UUID `json:"account"` // trader or LP the operation belongs to
	Side       string    `json:"side,omitempty"`
	SizeDelta  string    `json:"size_delta_usd,omitempty"`
	Collateral string    `json:"collateral_delta,omitempty"`
	Assets     string    `json:"assets,omitempty"`
	Shares     string    `json:"shares,omitempty"`
	Payout     string    `json:"payout,omitempty"`
	FeePaid    string    `json:"fee_paid,omitempty"`
	RealizedPL string    `json:"realized_pnl_usd,omitempty"`
	Liquidator uuid.UUID `json:"liquidator,omitempty"`
	Param      string    `json:"param,omitempty"`
	Value      string    `json:"value,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
