// Package protocol is the façade over the accounting core. It owns the
// engines, the token ledgers and the single lock serialising every
// operation, and it is the only place the mint/burn capability and the
// oracle are ever touched.
package protocol

import (
	"context"
	"strconv"
	"sync"
	"time"

	"code.halcyonprotocol.io/halcyon/core/broker"
	"code.halcyonprotocol.io/halcyon/core/events"
	"code.halcyonprotocol.io/halcyon/core/liquidation"
	"code.halcyonprotocol.io/halcyon/core/oracle"
	"code.halcyonprotocol.io/halcyon/core/positions"
	"code.halcyonprotocol.io/halcyon/core/redemption"
	"code.halcyonprotocol.io/halcyon/core/sorted"
	"code.halcyonprotocol.io/halcyon/core/stability"
	"code.halcyonprotocol.io/halcyon/core/token"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
	"code.halcyonprotocol.io/halcyon/metrics"
)

// Internal accounts on the collateral vault and the stable ledger. The
// leading $ keeps them out of the party namespace.
const (
	positionsAccount = "$positions"
	stabilityAccount = "$stability"
	surplusPrefix    = "$surplus:"
)

// Engine ties the engines together behind one mutex. Every public
// operation takes the lock, reads the oracle at most once, and drives
// the engines in an order that keeps the ledger, the index, the pool
// and the token balances consistent.
type Engine struct {
	Config
	log *logging.Logger
	mu  sync.Mutex

	positions  *positions.Engine
	index      *sorted.List
	pool       *stability.Engine
	liquidator *liquidation.Engine
	redeemer   *redemption.Engine

	stable    *token.Ledger
	stableCap *token.Capability
	vault     *token.Vault

	prices oracle.PriceSource
	broker *broker.Broker
	mcr    num.Decimal
}

// New assembles the whole protocol: ledgers, index, pool, liquidation
// and redemption engines, all wired to the given broker and price
// source. The stable ledger's mint/burn capability never leaves the
// returned engine.
func New(log *logging.Logger, config Config, prices oracle.PriceSource, brk *broker.Broker) (*Engine, error) {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	mcr, err := num.DecimalFromString(config.MinimumCollateralRatio)
	if err != nil {
		return nil, err
	}

	stable, mintCap := token.NewStableLedger(log, config.Token)
	posEngine := positions.New(log, config.Positions, brk)
	index := sorted.New(log, config.Sorted, posEngine)
	pool := stability.New(log, config.Stability, brk)

	e := &Engine{
		Config:    config,
		log:       log,
		positions: posEngine,
		index:     index,
		pool:      pool,
		stable:    stable,
		stableCap: mintCap,
		vault:     token.NewVault(),
		prices:    prices,
		broker:    brk,
		mcr:       mcr,
	}
	e.liquidator = liquidation.New(
		log, config.Liquidation, posEngine, index, pool,
		poolBurner{e}, brk, mcr,
	)
	e.redeemer = redemption.New(
		log, config.Redemption, posEngine, index,
		partyBurner{e}, surplusKeeper{e}, brk, mcr,
	)
	return e, nil
}

// ReloadConf updates the configuration of the engine and of every
// engine it drives.
func (e *Engine) ReloadConf(cfg Config) {
	e.log.Info("reloading configuration")
	if e.log.GetLevel() != cfg.Level.Get() {
		e.log.Info("updating log level",
			logging.String("old", e.log.GetLevel().String()),
			logging.String("new", cfg.Level.String()),
		)
		e.log.SetLevel(cfg.Level.Get())
	}
	e.Config = cfg

	e.positions.ReloadConf(cfg.Positions)
	e.index.ReloadConf(cfg.Sorted)
	e.pool.ReloadConf(cfg.Stability)
	e.liquidator.ReloadConf(cfg.Liquidation)
	e.redeemer.ReloadConf(cfg.Redemption)
}

// OpenPosition creates a position for the party, locking the collateral
// in the vault and minting the requested stable debt. The resulting
// ratio must clear the minimum at the current oracle price.
func (e *Engine) OpenPosition(ctx context.Context, party string, collateral, debt *num.Uint, prevHint, nextHint string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("open-position", time.Now(), &err)

	if collateral.IsZero() || debt.IsZero() {
		return types.ErrInvalidAmount
	}
	if e.positions.Has(party) {
		return types.ErrAlreadyExists
	}
	price, err := e.readPrice()
	if err != nil {
		return err
	}
	if types.ICR(collateral, debt, price).LessThan(e.mcr) {
		return types.ErrLowCollateralRatio
	}

	// the index insert is the only step left that can fail, do it
	// before any balance moves
	if err := e.index.Insert(party, types.NICR(collateral, debt), prevHint, nextHint); err != nil {
		return err
	}
	if err := e.positions.Create(ctx, party); err != nil {
		// unreachable, existence was checked above
		return err
	}
	if err := e.positions.IncreaseCollateral(ctx, party, collateral); err != nil {
		return err
	}
	if err := e.positions.IncreaseDebt(ctx, party, debt); err != nil {
		return err
	}
	e.positions.IncreaseTotalCollateral(collateral)
	e.positions.IncreaseTotalDebt(debt)

	e.vault.Credit(positionsAccount, collateral)
	if err := e.stable.Mint(e.stableCap, party, debt); err != nil {
		return err
	}

	metrics.OpenPositionsSet(e.positions.Len())
	return nil
}

// DepositCollateral adds collateral to an open position.
func (e *Engine) DepositCollateral(ctx context.Context, party string, amount *num.Uint, prevHint, nextHint string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("deposit-collateral", time.Now(), &err)

	if amount.IsZero() {
		return types.ErrInvalidAmount
	}
	if err := e.positions.IncreaseCollateral(ctx, party, amount); err != nil {
		return err
	}
	e.positions.IncreaseTotalCollateral(amount)
	e.vault.Credit(positionsAccount, amount)
	return e.reindex(party, prevHint, nextHint)
}

// WithdrawCollateral releases collateral from an open position back to
// the party. The position must keep some collateral and stay above the
// minimum ratio at the current oracle price.
func (e *Engine) WithdrawCollateral(ctx context.Context, party string, amount *num.Uint, prevHint, nextHint string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("withdraw-collateral", time.Now(), &err)

	if amount.IsZero() {
		return types.ErrInvalidAmount
	}
	collateral, debt, err := e.positions.CurrentAmounts(party)
	if err != nil {
		return err
	}
	if collateral.LTE(amount) {
		// the last unit of collateral only leaves through ClosePosition
		return types.ErrInsufficientBalance
	}
	price, err := e.readPrice()
	if err != nil {
		return err
	}
	left := num.UintZero().Sub(collateral, amount)
	if !debt.IsZero() && types.ICR(left, debt, price).LessThan(e.mcr) {
		return types.ErrLowCollateralRatio
	}

	if err := e.positions.DecreaseCollateral(ctx, party, amount); err != nil {
		return err
	}
	if err := e.positions.DecreaseTotalCollateral(amount); err != nil {
		return err
	}
	if err := e.vault.Move(positionsAccount, party, amount); err != nil {
		return err
	}
	return e.reindex(party, prevHint, nextHint)
}

// Borrow mints additional stable debt against an open position. The
// position must stay above the minimum ratio at the current oracle
// price.
func (e *Engine) Borrow(ctx context.Context, party string, amount *num.Uint, prevHint, nextHint string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("borrow", time.Now(), &err)

	if amount.IsZero() {
		return types.ErrInvalidAmount
	}
	collateral, debt, err := e.positions.CurrentAmounts(party)
	if err != nil {
		return err
	}
	price, err := e.readPrice()
	if err != nil {
		return err
	}
	newDebt := num.Sum(debt, amount)
	if types.ICR(collateral, newDebt, price).LessThan(e.mcr) {
		return types.ErrLowCollateralRatio
	}

	if err := e.positions.IncreaseDebt(ctx, party, amount); err != nil {
		return err
	}
	e.positions.IncreaseTotalDebt(amount)
	if err := e.stable.Mint(e.stableCap, party, amount); err != nil {
		return err
	}
	return e.reindex(party, prevHint, nextHint)
}

// Repay burns stable tokens from the party and reduces the position's
// debt by the same amount.
func (e *Engine) Repay(ctx context.Context, party string, amount *num.Uint, prevHint, nextHint string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("repay", time.Now(), &err)

	if amount.IsZero() {
		return types.ErrInvalidAmount
	}
	_, debt, err := e.positions.CurrentAmounts(party)
	if err != nil {
		return err
	}
	if debt.LT(amount) || e.stable.Balance(party).LT(amount) {
		return types.ErrInsufficientBalance
	}

	if err := e.stable.Burn(e.stableCap, party, amount); err != nil {
		return err
	}
	if err := e.positions.DecreaseDebt(ctx, party, amount); err != nil {
		return err
	}
	if err := e.positions.DecreaseTotalDebt(amount); err != nil {
		return err
	}
	return e.reindex(party, prevHint, nextHint)
}

// ClosePosition repays the position's full debt from the party's stable
// balance and returns all its collateral.
func (e *Engine) ClosePosition(ctx context.Context, party string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("close-position", time.Now(), &err)

	collateral, debt, err := e.positions.CurrentAmounts(party)
	if err != nil {
		return err
	}
	if e.stable.Balance(party).LT(debt) {
		return types.ErrInsufficientBalance
	}

	if !debt.IsZero() {
		if err := e.stable.Burn(e.stableCap, party, debt); err != nil {
			return err
		}
		if err := e.positions.DecreaseTotalDebt(debt); err != nil {
			return err
		}
	}
	if err := e.positions.DecreaseTotalCollateral(collateral); err != nil {
		return err
	}
	if err := e.vault.Move(positionsAccount, party, collateral); err != nil {
		return err
	}
	if err := e.positions.Remove(ctx, party, "closed"); err != nil {
		return err
	}
	if err := e.index.Remove(party); err != nil {
		return err
	}

	metrics.OpenPositionsSet(e.positions.Len())
	return nil
}

// DepositStability moves stable tokens from the party into the
// stability pool. Any accrued collateral gain is paid out on the way
// in.
func (e *Engine) DepositStability(ctx context.Context, party string, amount *num.Uint) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("deposit-stability", time.Now(), &err)

	if amount.IsZero() {
		return types.ErrInvalidAmount
	}
	if e.stable.Balance(party).LT(amount) {
		return types.ErrInsufficientBalance
	}

	gain, err := e.pool.Deposit(ctx, party, amount)
	if err != nil {
		return err
	}
	if err := e.stable.Transfer(party, stabilityAccount, amount); err != nil {
		return err
	}
	if err := e.payCollateralGain(party, gain); err != nil {
		return err
	}

	metrics.StabilityDepositsSet(e.pool.GetTotalStakeAmount().ToDecimal().InexactFloat64())
	return nil
}

// WithdrawStability takes stable tokens back out of the stability pool,
// capped at the party's compounded stake, and pays out any accrued
// collateral gain.
func (e *Engine) WithdrawStability(ctx context.Context, party string, amount *num.Uint) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("withdraw-stability", time.Now(), &err)

	withdrawn, gain, err := e.pool.Withdraw(ctx, party, amount)
	if err != nil {
		return err
	}
	if !withdrawn.IsZero() {
		if err := e.stable.Transfer(stabilityAccount, party, withdrawn); err != nil {
			return err
		}
	}
	if err := e.payCollateralGain(party, gain); err != nil {
		return err
	}

	metrics.StabilityDepositsSet(e.pool.GetTotalStakeAmount().ToDecimal().InexactFloat64())
	return nil
}

// Liquidate clears every position below the minimum collateral ratio at
// the current oracle price and settles the collateral moves the batch
// produced.
func (e *Engine) Liquidate(ctx context.Context) (totals *types.LiquidationTotals, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("liquidate", time.Now(), &err)

	price, err := e.readPrice()
	if err != nil {
		return nil, err
	}
	totals, err = e.liquidator.Liquidate(ctx, price)
	if err != nil {
		return nil, err
	}
	// offset collateral now belongs to the pool's depositors
	if !totals.CollateralToOffset.IsZero() {
		if err := e.vault.Move(positionsAccount, stabilityAccount, totals.CollateralToOffset); err != nil {
			return nil, err
		}
	}

	metrics.OpenPositionsSet(e.positions.Len())
	metrics.StabilityDepositsSet(e.pool.GetTotalStakeAmount().ToDecimal().InexactFloat64())
	return totals, nil
}

// Redeem burns the party's stable tokens and draws collateral at face
// value from the safest positions that are not liquidation candidates.
func (e *Engine) Redeem(ctx context.Context, party string, amount *num.Uint, firstHint, prevHint, nextHint string) (totals *types.RedemptionTotals, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("redeem", time.Now(), &err)

	if amount.IsZero() {
		return nil, types.ErrInvalidAmount
	}
	if e.stable.Balance(party).LT(amount) {
		return nil, types.ErrInsufficientBalance
	}
	price, err := e.readPrice()
	if err != nil {
		return nil, err
	}
	totals, err = e.redeemer.Redeem(ctx, party, amount, price, firstHint, prevHint, nextHint)
	if err != nil {
		return nil, err
	}
	if !totals.CollateralDrawn.IsZero() {
		if err := e.vault.Move(positionsAccount, party, totals.CollateralDrawn); err != nil {
			return nil, err
		}
	}

	metrics.OpenPositionsSet(e.positions.Len())
	return totals, nil
}

// ClaimSurplus pays out the collateral left over from the party's fully
// redeemed positions.
func (e *Engine) ClaimSurplus(ctx context.Context, party string) (amount *num.Uint, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observe("claim-surplus", time.Now(), &err)

	amount = e.vault.Balance(surplusPrefix + party)
	if amount.IsZero() {
		return nil, types.ErrNotFound
	}
	if err := e.vault.Move(surplusPrefix+party, party, amount); err != nil {
		return nil, err
	}
	e.broker.Send(events.NewCollateralSurplusClaimedEvent(ctx, party, amount))
	return amount, nil
}

// FindHints returns the neighbour hints a position with the given
// amounts would be inserted between, for callers to pass back into the
// mutating operations.
func (e *Engine) FindHints(collateral, debt *num.Uint) (string, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.FindPosition(types.NICR(collateral, debt), "", "")
}

// CheckFirstRedemptionHint reports whether the hint is the correct
// starting position for a redemption at the current oracle price.
func (e *Engine) CheckFirstRedemptionHint(hint string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, err := e.readPrice()
	if err != nil {
		return false, err
	}
	return e.redeemer.CheckFirstRedemptionHint(hint, price), nil
}

// Position returns the party's collateral and debt, pending
// redistribution rewards included.
func (e *Engine) Position(party string) (*num.Uint, *num.Uint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.CurrentAmounts(party)
}

// TotalCollateral returns the protocol-wide collateral balance.
func (e *Engine) TotalCollateral() *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.TotalCollateral()
}

// TotalDebt returns the protocol-wide stable debt.
func (e *Engine) TotalDebt() *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions.TotalDebt()
}

// StabilityStake returns the party's compounded stability pool stake.
func (e *Engine) StabilityStake(party string) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.GetStakeAmount(party)
}

// StabilityGain returns the party's unclaimed collateral gain in the
// stability pool.
func (e *Engine) StabilityGain(party string) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.GetCollateralGain(party)
}

// StableBalance returns the party's stable token balance.
func (e *Engine) StableBalance(party string) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stable.Balance(party)
}

// CollateralBalance returns the party's free collateral in the vault.
func (e *Engine) CollateralBalance(party string) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.Balance(party)
}

// SurplusOf returns the party's claimable redemption surplus.
func (e *Engine) SurplusOf(party string) *num.Uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vault.Balance(surplusPrefix + party)
}

// reindex moves the party to its correct slot after a balance change.
func (e *Engine) reindex(party, prevHint, nextHint string) error {
	nicr, err := e.positions.NICR(party)
	if err != nil {
		return err
	}
	return e.index.Reinsert(party, nicr, prevHint, nextHint)
}

// payCollateralGain settles an accrued stability pool gain out of the
// pool's vault account.
func (e *Engine) payCollateralGain(party string, gain *num.Uint) error {
	if gain.IsZero() {
		return nil
	}
	return e.vault.Move(stabilityAccount, party, gain)
}

func (e *Engine) readPrice() (*num.Uint, error) {
	p, err := e.prices.GetPrice(e.PairID)
	if err != nil {
		return nil, err
	}
	return oracle.Normalize(p), nil
}

func (e *Engine) observe(op string, start time.Time, err *error) {
	metrics.EngineTimeCounterAdd(start, "protocol", op)
	metrics.OperationCounterInc(op, strconv.FormatBool(*err == nil))
}

// poolBurner burns the stable the stability pool gave up in a
// liquidation, straight off the pool's ledger account.
type poolBurner struct{ e *Engine }

func (b poolBurner) BurnFromPool(amount *num.Uint) error {
	return b.e.stable.Burn(b.e.stableCap, stabilityAccount, amount)
}

// partyBurner burns a redeemer's stable tokens as they are exchanged
// for collateral.
type partyBurner struct{ e *Engine }

func (b partyBurner) Burn(party string, amount *num.Uint) error {
	return b.e.stable.Burn(b.e.stableCap, party, amount)
}

// surplusKeeper parks fully-redeemed collateral leftovers in a
// per-party vault account until claimed.
type surplusKeeper struct{ e *Engine }

func (s surplusKeeper) CreditSurplus(party string, amount *num.Uint) {
	if amount.IsZero() {
		return
	}
	if err := s.e.vault.Move(positionsAccount, surplusPrefix+party, amount); err != nil {
		s.e.log.Panic("vault out of sync crediting redemption surplus",
			logging.String("party", party),
			logging.BigUint("amount", amount),
			logging.Error(err),
		)
	}
}
