package math

import (
	"math/big"
	"sync"
)

// Fixed-point conventions used throughout the ledger:
//   - USD values carry 30 decimal places (USDScale).
//   - Asset quantities carry each asset's native precision (e.g. 1e8 for the
//     index asset, 1e6 for the collateral asset).
//   - An "adjusted price" is USD (1e30) per one native unit of an asset, so
//     quantity * adjustedPrice is always a USD value at the ledger scale.
//   - Fractions (utilization ratio) carry 6 decimal places (FractionScale).
//   - Fee rates quoted in basis points divide by BpsScale.
var (
	USDScale      = Exp10(30)
	FractionScale = big.NewInt(1_000_000)
	BpsScale      = big.NewInt(10_000)
)

// RoundingMode selects the rounding direction of a division. Every division
// site names its mode explicitly: the asymmetry between floor and ceil is how
// the ledger keeps rounding error on the pool's side.
type RoundingMode int

const (
	RoundFloor RoundingMode = iota // toward negative infinity
	RoundCeil                      // toward positive infinity
	RoundTrunc                     // toward zero
)

// bigPool recycles big.Int temporaries for the hot arithmetic paths.
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// Exp10 returns 10^n as a fresh big.Int.
func Exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// Units returns n * scale, e.g. Units(50, Exp10(6)) for 50 whole collateral
// units of a 6-decimal asset.
func Units(n int64, scale *big.Int) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), scale)
}

// Clone returns an independent copy of v. The ledger never aliases big.Ints
// across ownership boundaries.
func Clone(v *big.Int) *big.Int {
	return new(big.Int).Set(v)
}

// Mul returns a * b as a fresh big.Int.
func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// Div divides num by denom with the given rounding mode. denom must be
// non-zero; both operands may be negative.
func Div(num, denom *big.Int, mode RoundingMode) *big.Int {
	quo := new(big.Int)
	rem := getBig()
	defer putBig(rem)

	quo.QuoRem(num, denom, rem) // truncating division

	if rem.Sign() == 0 {
		return quo
	}

	negative := (num.Sign() < 0) != (denom.Sign() < 0)

	switch mode {
	case RoundFloor:
		if negative {
			quo.Sub(quo, oneInt)
		}
	case RoundCeil:
		if !negative {
			quo.Add(quo, oneInt)
		}
	case RoundTrunc:
		// QuoRem already truncates toward zero.
	}

	return quo
}

// MulDiv computes a * b / denom in one call with the given rounding mode,
// keeping the intermediate product at full precision.
func MulDiv(a, b, denom *big.Int, mode RoundingMode) *big.Int {
	prod := getBig()
	defer putBig(prod)

	prod.Mul(a, b)
	return Div(prod, denom, mode)
}

var oneInt = big.NewInt(1)
