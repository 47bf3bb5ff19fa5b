package engine_test

import (
	"errors"
	"math/big"
	"testing"

	"PerpVault/internal/engine"
)

func TestDepositMintsSharesOneToOneFirst(t *testing.T) {
	r := newRig(t)

	lp := r.fund(usdc(100))
	shares, err := r.eng.Deposit(lp, usdc(100), lp)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	wantBig(t, "first shares", shares, usdc(100))
	wantBig(t, "lp balance", r.bank.AccountBalance(lp), new(big.Int))
	wantBig(t, "share balance", r.eng.SharesOf(lp), usdc(100))

	nav, err := r.eng.TotalAssets()
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	wantBig(t, "nav", nav, usdc(100))
}

func TestDepositMintsProportionallyAgainstNAV(t *testing.T) {
	r := newRig(t)
	r.seedPool(t, usdc(100))

	// A trader carries 1 USD of unrealized loss, so the pool is worth 101.
	trader := r.fund(usdc(10))
	if err := r.eng.IncreasePosition(trader, true, usd(50), usdc(10)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	r.setPrice("BTC", mulExp10(49, 25))

	nav, err := r.eng.TotalAssets()
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	wantBig(t, "nav", nav, usdc(101))

	lp2 := r.fund(usdc(51))
	// 50.5 USDC against nav 101 with 100 shares out: exactly 50 shares.
	shares, err := r.eng.Deposit(lp2, big.NewInt(50_500_000), lp2)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	wantBig(t, "second shares", shares, usdc(50))
}

func TestWithdrawBurnsSharesRoundedUp(t *testing.T) {
	r := newRig(t)
	lp1 := r.seedPool(t, usdc(100))
	r.seedPool(t, usdc(100))

	// A closed losing trade leaves the pool at 203 with 200 shares out.
	trader := r.fund(usdc(10))
	if err := r.eng.IncreasePosition(trader, true, usd(50), usdc(10)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	r.setPrice("BTC", mulExp10(47, 25))
	if err := r.eng.DecreasePosition(trader, true, usd(50), new(big.Int)); err != nil {
		t.Fatalf("close: %v", err)
	}

	nav, err := r.eng.TotalAssets()
	if err != nil {
		t.Fatalf("total assets: %v", err)
	}
	wantBig(t, "nav", nav, usdc(203))

	shares, err := r.eng.Withdraw(lp1, usdc(10), lp1)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// 10 * 200 / 203 = 9852216.74..., burned shares round up.
	wantBig(t, "burned shares", shares, big.NewInt(9_852_217))
	wantBig(t, "lp1 payout", r.bank.AccountBalance(lp1), usdc(10))

	if err := r.eng.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestRedeemPaysAssetsRoundedDown(t *testing.T) {
	r := newRig(t)
	lp1 := r.seedPool(t, usdc(100))
	r.seedPool(t, usdc(100))

	trader := r.fund(usdc(10))
	if err := r.eng.IncreasePosition(trader, true, usd(50), usdc(10)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	r.setPrice("BTC", mulExp10(47, 25))
	if err := r.eng.DecreasePosition(trader, true, usd(50), new(big.Int)); err != nil {
		t.Fatalf("close: %v", err)
	}

	assets, err := r.eng.Redeem(lp1, big.NewInt(9_852_217), lp1)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// 9852217 * 203 / 200 = 10000000.25..., paid assets round down.
	wantBig(t, "assets", assets, usdc(10))
	wantBig(t, "share balance", r.eng.SharesOf(lp1),
		new(big.Int).Sub(usdc(100), big.NewInt(9_852_217)))
}

func TestWithdrawRespectsUtilizationCap(t *testing.T) {
	r := newRig(t)
	lp := r.seedPool(t, usdc(100))

	trader := r.fund(usdc(10))
	if err := r.eng.IncreasePosition(trader, true, usd(50), usdc(10)); err != nil {
		t.Fatalf("increase: %v", err)
	}

	// 50 USD reserved needs 62.5 of deposits at the 80% cap; only 37.5 of
	// the 100 may leave.
	_, err := r.eng.Withdraw(lp, usdc(40), lp)
	if !errors.Is(err, engine.ErrUtilizationExceeded) {
		t.Fatalf("err = %v, want ErrUtilizationExceeded", err)
	}
	wantBig(t, "share balance after rejection", r.eng.SharesOf(lp), usdc(100))
	wantBig(t, "lp bank after rejection", r.bank.AccountBalance(lp), new(big.Int))

	if _, err := r.eng.Withdraw(lp, usdc(30), lp); err != nil {
		t.Fatalf("withdraw within cap: %v", err)
	}
	wantBig(t, "lp payout", r.bank.AccountBalance(lp), usdc(30))
}

func TestVaultArgumentErrors(t *testing.T) {
	r := newRig(t)
	lp := r.fund(usdc(100))

	if _, err := r.eng.Deposit(lp, new(big.Int), lp); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Fatalf("zero deposit: err = %v, want ErrInvalidArgument", err)
	}
	if _, err := r.eng.Withdraw(lp, usdc(10), lp); !errors.Is(err, engine.ErrInsufficientShares) {
		t.Fatalf("withdraw with no shares: err = %v, want ErrInsufficientShares", err)
	}

	if _, err := r.eng.Deposit(lp, usdc(100), lp); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := r.eng.Redeem(lp, usdc(101), lp); !errors.Is(err, engine.ErrInsufficientShares) {
		t.Fatalf("redeem beyond balance: err = %v, want ErrInsufficientShares", err)
	}
}

func TestPoolInsolventWhenTraderGainsExceedDeposits(t *testing.T) {
	r := newRig(t)
	r.seedPool(t, usdc(100))

	trader := r.fund(usdc(50))
	if err := r.eng.IncreasePosition(trader, true, usd(50), usdc(50)); err != nil {
		t.Fatalf("increase: %v", err)
	}

	// BTC 50,000 -> 2,500,000: the trader is owed ~2450 USD against 100 of
	// deposits.
	r.setPrice("BTC", mulExp10(25, 27))

	if _, err := r.eng.TotalAssets(); !errors.Is(err, engine.ErrPoolInsolvent) {
		t.Fatalf("total assets: err = %v, want ErrPoolInsolvent", err)
	}
	if err := r.eng.DecreasePosition(trader, true, usd(50), new(big.Int)); !errors.Is(err, engine.ErrPoolInsolvent) {
		t.Fatalf("close: err = %v, want ErrPoolInsolvent", err)
	}
}
