package engine

import (
	"fmt"
	"math/big"

	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// checkUtilization verifies the utilization cap against the staged state:
// the USD value the pool would have to pay out if every position closed at
// maximum profit must not exceed MaxUtilizationRatio of pooled deposits.
// Long exposure is marked at the current index price; short exposure is the
// fixed notional shorts entered at.
func (e *Engine) checkUtilization(st *stage, indexPrice, collateralPrice *big.Int) error {
	_, longTokens := e.book.OpenInterest(ledger.Long)
	shortUSD, _ := e.book.OpenInterest(ledger.Short)
	if st.oiTokens != nil && st.side == ledger.Long {
		longTokens.Add(longTokens, st.oiTokens)
	}
	if st.oiUSD != nil && st.side == ledger.Short {
		shortUSD.Add(shortUSD, st.oiUSD)
	}

	reserved := fpmath.Mul(longTokens, indexPrice)
	reserved.Add(reserved, shortUSD)
	if reserved.Sign() == 0 {
		return nil
	}

	deposits := e.book.TotalDeposits()
	if st.deposits != nil {
		deposits.Add(deposits, st.deposits)
	}
	if deposits.Sign() < 0 {
		return fmt.Errorf("%w: staged deposits are negative", ErrUtilizationExceeded)
	}

	depositsUSD := fpmath.Mul(deposits, collateralPrice)
	utilizable := fpmath.MulDiv(depositsUSD, e.params.MaxUtilizationRatio, fpmath.FractionScale, fpmath.RoundFloor)
	if reserved.Cmp(utilizable) > 0 {
		return fmt.Errorf("%w: reserved %s > utilizable %s", ErrUtilizationExceeded, reserved, utilizable)
	}
	return nil
}

// utilization reports current reserved exposure and the utilizable bound, for
// the query surface.
func (e *Engine) utilization(indexPrice, collateralPrice *big.Int) (reserved, utilizable *big.Int) {
	_, longTokens := e.book.OpenInterest(ledger.Long)
	shortUSD, _ := e.book.OpenInterest(ledger.Short)
	reserved = fpmath.Mul(longTokens, indexPrice)
	reserved.Add(reserved, shortUSD)
	depositsUSD := fpmath.Mul(e.book.TotalDeposits(), collateralPrice)
	utilizable = fpmath.MulDiv(depositsUSD, e.params.MaxUtilizationRatio, fpmath.FractionScale, fpmath.RoundFloor)
	return reserved, utilizable
}

func (e *Engine) hasOpenInterest() bool {
	longUSD, _ := e.book.OpenInterest(ledger.Long)
	shortUSD, _ := e.book.OpenInterest(ledger.Short)
	return longUSD.Sign() != 0 || shortUSD.Sign() != 0
}
