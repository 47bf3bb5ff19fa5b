package math_test

import (
	"math/big"
	"testing"

	fpmath "PerpVault/internal/math"
)

func TestMaxBorrowingRate_TenPercentPerYear(t *testing.T) {
	// rate * secondsPerYear should be within rounding of 10% of USDScale.
	yearly := new(big.Int).Mul(fpmath.MaxBorrowingRatePerSecond, big.NewInt(fpmath.SecondsPerYear))
	tenPct := fpmath.Div(fpmath.USDScale, big.NewInt(10), fpmath.RoundFloor)

	diff := new(big.Int).Sub(tenPct, yearly)
	if diff.Sign() < 0 {
		t.Fatalf("cap exceeds 10%% per year: %s > %s", yearly, tenPct)
	}
	// Rounding slack is below one second's worth of accrual.
	if diff.Cmp(fpmath.MaxBorrowingRatePerSecond) > 0 {
		t.Errorf("cap loses more than one second of accrual: diff=%s", diff)
	}
}

func TestBorrowingFeeUSD_Formula(t *testing.T) {
	size := fpmath.Units(100, fpmath.USDScale)
	rate := fpmath.MaxBorrowingRatePerSecond

	// One year at the cap: ~10 USD on 100 USD notional.
	fee := fpmath.BorrowingFeeUSD(size, fpmath.SecondsPerYear, rate)
	want := fpmath.Units(10, fpmath.USDScale)

	diff := new(big.Int).Sub(want, fee)
	if diff.Sign() < 0 {
		t.Fatalf("fee exceeds 10%%: %s", fee)
	}
	// Truncation in the cap loses at most a few units of USD dust per year.
	tolerance := fpmath.Units(1, fpmath.Exp10(12))
	if diff.Cmp(tolerance) > 0 {
		t.Errorf("fee %s too far below %s (diff %s)", fee, want, diff)
	}
}

func TestBorrowingFeeUSD_ZeroInputs(t *testing.T) {
	size := fpmath.Units(100, fpmath.USDScale)
	rate := fpmath.MaxBorrowingRatePerSecond

	if fee := fpmath.BorrowingFeeUSD(size, 0, rate); fee.Sign() != 0 {
		t.Errorf("zero elapsed: got %s", fee)
	}
	if fee := fpmath.BorrowingFeeUSD(new(big.Int), 1000, rate); fee.Sign() != 0 {
		t.Errorf("zero size: got %s", fee)
	}
	if fee := fpmath.BorrowingFeeUSD(size, 1000, new(big.Int)); fee.Sign() != 0 {
		t.Errorf("zero rate: got %s", fee)
	}
}

func TestBorrowingFeeUSD_Monotonic(t *testing.T) {
	size := fpmath.Units(75, fpmath.USDScale)
	rate := fpmath.MaxBorrowingRatePerSecond

	prev := new(big.Int)
	for _, elapsed := range []int64{1, 60, 3600, 86_400, 604_800} {
		fee := fpmath.BorrowingFeeUSD(size, elapsed, rate)
		if fee.Cmp(prev) < 0 {
			t.Fatalf("fee not monotonic: %s after %s", fee, prev)
		}
		prev = fee
	}
}

func TestFeeToCollateral_RoundsUp(t *testing.T) {
	// Collateral asset with 6 decimals priced at 1 USD: adjusted price 1e24.
	collateralPrice := fpmath.Exp10(24)

	// 1 USD of fee is exactly 1e6 collateral units.
	feeUSD := fpmath.Units(1, fpmath.USDScale)
	if got := fpmath.FeeToCollateral(feeUSD, collateralPrice); got.Int64() != 1_000_000 {
		t.Errorf("got %s, want 1000000", got)
	}

	// Any fee dust below one collateral unit still charges a full unit.
	if got := fpmath.FeeToCollateral(big.NewInt(1), collateralPrice); got.Int64() != 1 {
		t.Errorf("dust fee: got %s, want 1", got)
	}
}
