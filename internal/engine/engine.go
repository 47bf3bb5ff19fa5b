package engine

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpVault/internal/event"
	"PerpVault/internal/ledger"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/observability"
	"PerpVault/internal/price"
)

// reconcileEvery is the operation interval at which the engine recomputes
// every aggregate from first principles and panics on drift.
const reconcileEvery = 256

// Params are the adjustable risk parameters. They can be changed at runtime
// through the admin setters; reads and writes both happen under the engine
// lock.
type Params struct {
	// Admin is the only identity allowed to call parameter setters.
	Admin uuid.UUID
	// MaxLeverage bounds SizeUSD / collateral value for open positions.
	MaxLeverage int64
	// MaxUtilizationRatio is the fraction of pooled deposits (scaled by 1e6)
	// that open interest may reserve.
	MaxUtilizationRatio *big.Int
	// LiquidationFeeBps is the liquidator's cut of post-fee collateral,
	// in basis points.
	LiquidationFeeBps int64
	// BorrowingRatePerSecond is the per-second borrowing fee rate scaled by
	// 1e30. Capped at fpmath.MaxBorrowingRatePerSecond.
	BorrowingRatePerSecond *big.Int
}

func (p Params) validate() error {
	if p.Admin == uuid.Nil {
		return fmt.Errorf("%w: admin identity is unset", ErrInvalidArgument)
	}
	if p.MaxLeverage <= 0 {
		return fmt.Errorf("%w: max leverage %d", ErrInvalidArgument, p.MaxLeverage)
	}
	if p.MaxUtilizationRatio == nil || p.MaxUtilizationRatio.Sign() <= 0 ||
		p.MaxUtilizationRatio.Cmp(fpmath.FractionScale) > 0 {
		return fmt.Errorf("%w: max utilization ratio %s", ErrInvalidArgument, p.MaxUtilizationRatio)
	}
	if p.LiquidationFeeBps < 0 || p.LiquidationFeeBps >= 10_000 {
		return fmt.Errorf("%w: liquidation fee %d bps", ErrInvalidArgument, p.LiquidationFeeBps)
	}
	if p.BorrowingRatePerSecond == nil || p.BorrowingRatePerSecond.Sign() < 0 {
		return fmt.Errorf("%w: borrowing rate %s", ErrInvalidArgument, p.BorrowingRatePerSecond)
	}
	if p.BorrowingRatePerSecond.Cmp(fpmath.MaxBorrowingRatePerSecond) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrRateTooHigh,
			p.BorrowingRatePerSecond, fpmath.MaxBorrowingRatePerSecond)
	}
	return nil
}

// Config identifies the market the engine accounts for.
type Config struct {
	// IndexAsset is the asset positions speculate on.
	IndexAsset string
	// CollateralAsset is the asset that backs positions and pool deposits.
	CollateralAsset string
	Params          Params
}

// Deps are the engine's collaborators. Clock, Metrics, Journal and Feed are
// optional; Prices and Bank are not.
type Deps struct {
	Prices  price.Source
	Bank    Bank
	Clock   func() time.Time
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	// Journal receives every applied record. Sends block: the journal must
	// not lose records.
	Journal chan<- event.Record
	// Feed receives every applied record best-effort. Sends never block;
	// drops are counted.
	Feed chan<- event.Record
}

// Engine is the accounting core. One market, one collateral asset, one big
// lock: every public operation is serialized, computes against staged copies,
// settles against the bank, and only then mutates the book. A failed
// operation leaves no trace.
type Engine struct {
	mu sync.Mutex

	book   *ledger.Book
	prices price.Source
	bank   Bank
	clock  func() time.Time

	indexAsset      string
	collateralAsset string
	params          Params

	log     zerolog.Logger
	metrics *observability.Metrics
	journal chan<- event.Record
	feed    chan<- event.Record

	sequence int64
	opCount  uint64
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.IndexAsset == "" || cfg.CollateralAsset == "" {
		return nil, fmt.Errorf("%w: index and collateral assets must be named", ErrInvalidArgument)
	}
	if err := cfg.Params.validate(); err != nil {
		return nil, err
	}
	if deps.Prices == nil {
		return nil, fmt.Errorf("%w: price source is required", ErrInvalidArgument)
	}
	if deps.Bank == nil {
		return nil, fmt.Errorf("%w: bank is required", ErrInvalidArgument)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	p := cfg.Params
	p.MaxUtilizationRatio = new(big.Int).Set(p.MaxUtilizationRatio)
	p.BorrowingRatePerSecond = new(big.Int).Set(p.BorrowingRatePerSecond)
	return &Engine{
		book:            ledger.NewBook(),
		prices:          deps.Prices,
		bank:            deps.Bank,
		clock:           clock,
		indexAsset:      cfg.IndexAsset,
		collateralAsset: cfg.CollateralAsset,
		params:          p,
		log:             deps.Logger.With().Str("component", "engine").Logger(),
		metrics:         deps.Metrics,
		journal:         deps.Journal,
		feed:            deps.Feed,
	}, nil
}

// stage accumulates every mutation an operation wants to make. Nothing in a
// stage touches the book; commit applies it after the bank transfers clear.
type stage struct {
	// Position replacement. pos nil means no position change; deletePos
	// true means remove (side, trader).
	side      ledger.Side
	trader    uuid.UUID
	pos       *ledger.Position
	deletePos bool

	// Signed aggregate deltas, nil meaning zero.
	oiUSD      *big.Int
	oiTokens   *big.Int
	deposits   *big.Int
	collateral *big.Int

	// Share supply changes.
	mintOwner  uuid.UUID
	mintShares *big.Int
	burnOwner  uuid.UUID
	burnShares *big.Int

	// Bank movements. At most one pull; payouts run in order.
	pullFrom   uuid.UUID
	pullAmount *big.Int
	payouts    []payout
}

type payout struct {
	to     uuid.UUID
	amount *big.Int
}

func (st *stage) addDeposits(delta *big.Int) {
	if st.deposits == nil {
		st.deposits = new(big.Int)
	}
	st.deposits.Add(st.deposits, delta)
}

func (st *stage) addCollateral(delta *big.Int) {
	if st.collateral == nil {
		st.collateral = new(big.Int)
	}
	st.collateral.Add(st.collateral, delta)
}

func (st *stage) pay(to uuid.UUID, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	st.payouts = append(st.payouts, payout{to: to, amount: amount})
}

// commit settles the staged bank movements and, only if all of them clear,
// applies the staged book mutations and emits the record. Book mutations
// cannot fail: every precondition was checked against staged state, so a
// failure there is corruption and panics.
func (e *Engine) commit(st *stage, rec event.Record) error {
	if st.pullAmount != nil && st.pullAmount.Sign() > 0 {
		if err := e.bank.Pull(st.pullFrom, st.pullAmount); err != nil {
			return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
	}
	for i, p := range st.payouts {
		if err := e.bank.Pay(p.to, p.amount); err != nil {
			e.unwind(st, i)
			return fmt.Errorf("%w: %v", ErrPoolInsolvent, err)
		}
	}

	if st.pos != nil {
		e.book.SetPosition(st.pos)
	}
	if st.deletePos {
		e.book.DeletePosition(st.side, st.trader)
	}
	if st.oiUSD != nil || st.oiTokens != nil {
		usd, tokens := st.oiUSD, st.oiTokens
		if usd == nil {
			usd = new(big.Int)
		}
		if tokens == nil {
			tokens = new(big.Int)
		}
		e.book.AddOpenInterest(st.side, usd, tokens)
	}
	if st.deposits != nil && st.deposits.Sign() != 0 {
		e.book.AddDeposits(st.deposits)
	}
	if st.collateral != nil && st.collateral.Sign() != 0 {
		e.book.AddTraderCollateral(st.collateral)
	}
	if st.mintShares != nil && st.mintShares.Sign() > 0 {
		e.book.MintShares(st.mintOwner, st.mintShares)
	}
	if st.burnShares != nil && st.burnShares.Sign() > 0 {
		if err := e.book.BurnShares(st.burnOwner, st.burnShares); err != nil {
			panic(fmt.Sprintf("FATAL: staged burn failed post-settlement: %v", err))
		}
	}

	e.sequence++
	rec.Sequence = e.sequence
	e.emit(rec)
	e.afterCommit()
	return nil
}

// unwind reverses the bank movements of a partially settled stage: refunds
// the pull and claws back payouts [0, paid). Refund failures are fatal; the
// custody model guarantees the funds are present.
func (e *Engine) unwind(st *stage, paid int) {
	for i := 0; i < paid; i++ {
		p := st.payouts[i]
		if err := e.bank.Pull(p.to, p.amount); err != nil {
			panic(fmt.Sprintf("FATAL: cannot claw back payout of %s to %s: %v", p.amount, p.to, err))
		}
	}
	if st.pullAmount != nil && st.pullAmount.Sign() > 0 {
		if err := e.bank.Pay(st.pullFrom, st.pullAmount); err != nil {
			panic(fmt.Sprintf("FATAL: cannot refund pull of %s from %s: %v", st.pullAmount, st.pullFrom, err))
		}
	}
}

func (e *Engine) emit(rec event.Record) {
	if e.journal != nil {
		e.journal <- rec
	}
	if e.feed != nil {
		select {
		case e.feed <- rec:
		default:
			if e.metrics != nil {
				e.metrics.FeedDrops.Inc()
			}
			e.log.Warn().Int64("sequence", rec.Sequence).Msg("feed full, record dropped")
		}
	}
}

// afterCommit refreshes gauges and runs the periodic full reconciliation.
func (e *Engine) afterCommit() {
	if e.metrics != nil {
		longUSD, _ := e.book.OpenInterest(ledger.Long)
		shortUSD, _ := e.book.OpenInterest(ledger.Short)
		e.metrics.OpenInterestUSD.WithLabelValues("long").Set(approx(longUSD))
		e.metrics.OpenInterestUSD.WithLabelValues("short").Set(approx(shortUSD))
		e.metrics.PoolDeposits.Set(approx(e.book.TotalDeposits()))
		e.metrics.TraderCollateral.Set(approx(e.book.TotalCollateral()))
		e.metrics.PoolShares.Set(approx(e.book.TotalShares()))
	}

	e.opCount++
	if e.opCount%reconcileEvery == 0 {
		if err := e.book.Reconcile(); err != nil {
			panic(fmt.Sprintf("FATAL: aggregate drift after %d operations: %v", e.opCount, err))
		}
		if err := e.book.CheckConservation(e.bank.Balance()); err != nil {
			panic(fmt.Sprintf("FATAL: custody drift after %d operations: %v", e.opCount, err))
		}
	}
}

// finish records outcome metrics and logs for one public operation.
func (e *Engine) finish(op string, start time.Time, err error) error {
	if e.metrics != nil {
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			e.metrics.OpsRejected.WithLabelValues(op, reason(err)).Inc()
		} else {
			e.metrics.OpsApplied.WithLabelValues(op).Inc()
		}
	}
	if err != nil {
		e.log.Warn().Str("op", op).Err(err).Msg("operation rejected")
	} else {
		e.log.Debug().Str("op", op).Int64("sequence", e.sequence).Msg("operation applied")
	}
	return err
}

// quote fetches validated prices for the index and collateral assets.
func (e *Engine) quote() (indexPrice, collateralPrice *big.Int, err error) {
	indexPrice, err = e.prices.Price(e.indexAsset)
	if err != nil {
		return nil, nil, err
	}
	collateralPrice, err = e.prices.Price(e.collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	return indexPrice, collateralPrice, nil
}

func approx(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

func checkAmount(name string, x *big.Int) error {
	if x == nil || x.Sign() < 0 {
		return fmt.Errorf("%w: %s must be a non-negative amount, got %s", ErrInvalidArgument, name, x)
	}
	return nil
}
