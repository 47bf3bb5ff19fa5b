package math

import "math/big"

// SecondsPerYear is the accrual basis for the borrowing-rate cap.
const SecondsPerYear = 31_536_000

// MaxBorrowingRatePerSecond caps the per-second borrowing rate at roughly 10%
// of notional per year. The rate is expressed per unit of USD notional at the
// ledger's 1e30 scale, so fee = size * elapsed * rate / USDScale.
var MaxBorrowingRatePerSecond = Div(
	Div(USDScale, big.NewInt(10), RoundFloor),
	big.NewInt(SecondsPerYear),
	RoundFloor,
)

// BorrowingFeeUSD computes the borrowing fee accrued on sizeUSD notional over
// elapsed seconds at ratePerSecond. Pure function; callers settle the result
// lazily whenever a position is touched.
func BorrowingFeeUSD(sizeUSD *big.Int, elapsedSeconds int64, ratePerSecond *big.Int) *big.Int {
	if elapsedSeconds <= 0 || sizeUSD.Sign() == 0 || ratePerSecond.Sign() == 0 {
		return new(big.Int)
	}

	fee := getBig()
	defer putBig(fee)

	fee.Mul(sizeUSD, big.NewInt(elapsedSeconds))
	fee.Mul(fee, ratePerSecond)
	return Div(fee, USDScale, RoundFloor)
}

// FeeToCollateral converts a USD fee to collateral units at the adjusted
// collateral price. Rounds up: fee dust is charged to the trader, never
// absorbed by the pool.
func FeeToCollateral(feeUSD, collateralPrice *big.Int) *big.Int {
	if feeUSD.Sign() == 0 {
		return new(big.Int)
	}
	return Div(feeUSD, collateralPrice, RoundCeil)
}
