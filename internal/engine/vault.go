package engine

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
)

// netAssetValueLocked values the pool in collateral units: pooled deposits
// minus the net unrealized profit owed to traders, truncated toward zero.
// Trader collateral is custody, not pool value, so it never enters. A
// negative value means traders are owed more than the pool holds.
func (e *Engine) netAssetValueLocked() (*big.Int, error) {
	deposits := e.book.TotalDeposits()
	if !e.hasOpenInterest() {
		return deposits, nil
	}

	indexPrice, collateralPrice, err := e.quote()
	if err != nil {
		return nil, err
	}

	longUSD, longTokens := e.book.OpenInterest(ledger.Long)
	shortUSD, shortTokens := e.book.OpenInterest(ledger.Short)

	netPnL := fpmath.Mul(longTokens, indexPrice)
	netPnL.Sub(netPnL, longUSD)
	netPnL.Add(netPnL, shortUSD)
	netPnL.Sub(netPnL, fpmath.Mul(shortTokens, indexPrice))

	nav := deposits.Sub(deposits, fpmath.Div(netPnL, collateralPrice, fpmath.RoundTrunc))
	if nav.Sign() < 0 {
		return nil, fmt.Errorf("%w: net asset value %s", ErrPoolInsolvent, nav)
	}
	return nav, nil
}

// TotalAssets reports the pool's net asset value in collateral units.
func (e *Engine) TotalAssets() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.netAssetValueLocked()
}

// SharesOf reports an owner's vault share balance.
func (e *Engine) SharesOf(owner uuid.UUID) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.SharesOf(owner)
}

// Deposit pulls assets from the payer's bank account into the pool and mints
// shares to the receiver at the current net asset value. The first deposit
// mints one share per asset unit; later deposits round minted shares down.
func (e *Engine) Deposit(from uuid.UUID, assets *big.Int, receiver uuid.UUID) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	shares, err := e.depositLocked(from, assets, receiver)
	return shares, e.finish("deposit", start, err)
}

func (e *Engine) depositLocked(from uuid.UUID, assets *big.Int, receiver uuid.UUID) (*big.Int, error) {
	if from == uuid.Nil || receiver == uuid.Nil {
		return nil, fmt.Errorf("%w: payer and receiver identities are required", ErrInvalidArgument)
	}
	if err := checkAmount("assets", assets); err != nil {
		return nil, err
	}
	if assets.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero deposit", ErrInvalidArgument)
	}

	totalShares := e.book.TotalShares()
	var shares *big.Int
	if totalShares.Sign() == 0 {
		shares = fpmath.Clone(assets)
	} else {
		nav, err := e.netAssetValueLocked()
		if err != nil {
			return nil, err
		}
		if nav.Sign() == 0 {
			return nil, fmt.Errorf("%w: shares outstanding against zero net value", ErrPoolInsolvent)
		}
		shares = fpmath.MulDiv(assets, totalShares, nav, fpmath.RoundFloor)
		if shares.Sign() == 0 {
			return nil, fmt.Errorf("%w: deposit of %s mints zero shares", ErrInvalidArgument, assets)
		}
	}

	st := &stage{
		pullFrom:   from,
		pullAmount: fpmath.Clone(assets),
		mintOwner:  receiver,
		mintShares: shares,
	}
	st.addDeposits(assets)

	now := e.clock()
	if err := e.commit(st, event.Record{
		RecordID:   uuid.New(),
		Kind:       event.KindDeposit,
		Account:    receiver,
		Assets:     assets.String(),
		Shares:     shares.String(),
		OccurredAt: now,
	}); err != nil {
		return nil, err
	}
	return shares, nil
}

// Withdraw burns as many of the owner's shares as needed (rounded up) to pay
// exactly assets to the receiver. The utilization cap is re-checked against
// the reduced pool.
func (e *Engine) Withdraw(owner uuid.UUID, assets *big.Int, receiver uuid.UUID) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	shares, err := e.withdrawLocked(owner, assets, receiver)
	return shares, e.finish("withdraw", start, err)
}

func (e *Engine) withdrawLocked(owner uuid.UUID, assets *big.Int, receiver uuid.UUID) (*big.Int, error) {
	if owner == uuid.Nil || receiver == uuid.Nil {
		return nil, fmt.Errorf("%w: owner and receiver identities are required", ErrInvalidArgument)
	}
	if err := checkAmount("assets", assets); err != nil {
		return nil, err
	}
	if assets.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero withdrawal", ErrInvalidArgument)
	}

	totalShares := e.book.TotalShares()
	if totalShares.Sign() == 0 {
		return nil, fmt.Errorf("%w: no shares outstanding", ErrInsufficientShares)
	}
	nav, err := e.netAssetValueLocked()
	if err != nil {
		return nil, err
	}
	if nav.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool has zero net value", ErrPoolInsolvent)
	}
	shares := fpmath.MulDiv(assets, totalShares, nav, fpmath.RoundCeil)

	if err := e.redeemStaged(owner, receiver, assets, shares, event.KindWithdraw); err != nil {
		return nil, err
	}
	return shares, nil
}

// Redeem burns exactly shares from the owner and pays out their value
// (rounded down) to the receiver.
func (e *Engine) Redeem(owner uuid.UUID, shares *big.Int, receiver uuid.UUID) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := e.clock()
	assets, err := e.redeemLocked(owner, shares, receiver)
	return assets, e.finish("redeem", start, err)
}

func (e *Engine) redeemLocked(owner uuid.UUID, shares *big.Int, receiver uuid.UUID) (*big.Int, error) {
	if owner == uuid.Nil || receiver == uuid.Nil {
		return nil, fmt.Errorf("%w: owner and receiver identities are required", ErrInvalidArgument)
	}
	if err := checkAmount("shares", shares); err != nil {
		return nil, err
	}
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero redemption", ErrInvalidArgument)
	}

	totalShares := e.book.TotalShares()
	if totalShares.Sign() == 0 {
		return nil, fmt.Errorf("%w: no shares outstanding", ErrInsufficientShares)
	}
	nav, err := e.netAssetValueLocked()
	if err != nil {
		return nil, err
	}
	assets := fpmath.MulDiv(shares, nav, totalShares, fpmath.RoundFloor)
	if assets.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s shares redeem to zero assets", ErrInvalidArgument, shares)
	}

	if err := e.redeemStaged(owner, receiver, assets, fpmath.Clone(shares), event.KindWithdraw); err != nil {
		return nil, err
	}
	return assets, nil
}

// redeemStaged runs the common tail of Withdraw and Redeem: share-balance and
// pool-capacity checks, utilization guard, settlement.
func (e *Engine) redeemStaged(owner, receiver uuid.UUID, assets, shares *big.Int, kind event.Kind) error {
	if shares.Cmp(e.book.SharesOf(owner)) > 0 {
		return fmt.Errorf("%w: need %s shares, owner holds %s",
			ErrInsufficientShares, shares, e.book.SharesOf(owner))
	}
	if assets.Cmp(e.book.TotalDeposits()) > 0 {
		return fmt.Errorf("%w: withdrawal of %s exceeds pooled deposits %s",
			ErrPoolInsolvent, assets, e.book.TotalDeposits())
	}

	st := &stage{
		burnOwner:  owner,
		burnShares: fpmath.Clone(shares),
	}
	st.addDeposits(new(big.Int).Neg(assets))
	st.pay(receiver, fpmath.Clone(assets))

	if e.hasOpenInterest() {
		indexPrice, collateralPrice, err := e.quote()
		if err != nil {
			return err
		}
		if err := e.checkUtilization(st, indexPrice, collateralPrice); err != nil {
			return err
		}
	}

	return e.commit(st, event.Record{
		RecordID:   uuid.New(),
		Kind:       kind,
		Account:    owner,
		Assets:     assets.String(),
		Shares:     shares.String(),
		Payout:     assets.String(),
		OccurredAt: e.clock(),
	})
}
