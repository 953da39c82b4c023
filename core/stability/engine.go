// Package stability holds the pooled stable-token deposits that absorb
// liquidated debt in exchange for proportional collateral. Depositor
// balances compound down multiplicatively as the pool is consumed,
// tracked O(1) per liquidation through the distributor's running
// product and sums rather than per-depositor writes.
package stability

import (
	"context"

	"code.halcyonprotocol.io/halcyon/core/events"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
)

// Broker - the event bus broker, send events here.
type Broker interface {
	Send(event events.Event)
}

// stake is one depositor's record: the amount at last touch and the
// distributor state it was recorded against. The true current balance
// is derived from the snapshot, never stored.
type stake struct {
	amount *num.Uint
	p      *num.Uint
	s      *num.Uint
	epoch  uint64
	scale  uint64
}

// Engine is the stability pool.
type Engine struct {
	Config
	log    *logging.Logger
	broker Broker

	dist *Distributor

	// party -> deposit record
	deposits map[string]*stake
	// pooled stable tokens, decremented in aggregate on every offset
	totalDeposits *num.Uint
	// collateral pulled in from liquidations, paid back out as gains
	collateralHeld *num.Uint
}

// New instantiates a new stability pool engine.
func New(log *logging.Logger, config Config, broker Broker) *Engine {
	// setup logger
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	return &Engine{
		Config:         config,
		log:            log,
		broker:         broker,
		dist:           NewDistributor(),
		deposits:       map[string]*stake{},
		totalDeposits:  num.UintZero(),
		collateralHeld: num.UintZero(),
	}
}

// ReloadConf updates the internal configuration of the stability pool.
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
}

// Deposit adds stable tokens to the party's pooled stake. Any owed
// collateral gain is settled first and returned for the caller to pay
// out.
func (e *Engine) Deposit(ctx context.Context, party string, amount *num.Uint) (*num.Uint, error) {
	compounded := e.compoundedStake(party)
	gain := e.collateralGain(party)

	newAmount := num.Sum(compounded, amount)
	e.setStake(party, newAmount)
	e.totalDeposits.AddSum(amount)
	e.payGain(gain)

	e.broker.Send(events.NewStabilityDepositEvent(ctx, party, amount, gain))
	if e.log.GetLevel() == logging.DebugLevel {
		e.log.Debug("stability deposit",
			logging.String("party", party),
			logging.BigUint("amount", amount),
			logging.BigUint("compounded", compounded),
			logging.BigUint("gain", gain),
		)
	}
	return gain, nil
}

// Withdraw takes up to amount stable tokens out of the party's
// compounded stake. Returns the amount actually withdrawn and the
// collateral gain settled alongside it.
func (e *Engine) Withdraw(ctx context.Context, party string, amount *num.Uint) (*num.Uint, *num.Uint, error) {
	if _, ok := e.deposits[party]; !ok {
		return nil, nil, types.ErrNotFound
	}
	compounded := e.compoundedStake(party)
	gain := e.collateralGain(party)

	// compounded stakes are rounded per depositor, the pool can not pay
	// out more than it holds in aggregate
	withdrawn := num.Min(num.Min(amount, compounded), e.totalDeposits).Clone()
	newAmount := num.UintZero().Sub(compounded, withdrawn)
	e.setStake(party, newAmount)
	e.totalDeposits.Sub(e.totalDeposits, withdrawn)
	e.payGain(gain)

	e.broker.Send(events.NewStabilityWithdrawEvent(ctx, party, withdrawn, gain))
	return withdrawn, gain, nil
}

// Liquidation offsets debt against the pool: pooled stable tokens are
// consumed and the liquidated collateral is taken in to be shared by
// depositors. Returns the stable tokens consumed, which the caller
// burns. A zero-stake pool or zero offset is a no-op, not a failure.
func (e *Engine) Liquidation(ctx context.Context, collateral, debtOffset *num.Uint) (*num.Uint, error) {
	if e.totalDeposits.IsZero() || debtOffset.IsZero() {
		return num.UintZero(), nil
	}
	if debtOffset.GT(e.totalDeposits) {
		return nil, types.ErrInsufficientBalance
	}

	e.dist.RegisterLiquidation(collateral, debtOffset, e.totalDeposits)
	e.totalDeposits.Sub(e.totalDeposits, debtOffset)
	e.collateralHeld.AddSum(collateral)

	if e.log.GetLevel() == logging.DebugLevel {
		e.log.Debug("stability pool offset",
			logging.BigUint("collateral-in", collateral),
			logging.BigUint("debt-offset", debtOffset),
			logging.BigUint("total-deposits", e.totalDeposits),
			logging.Uint64("epoch", e.dist.Epoch()),
			logging.Uint64("scale", e.dist.Scale()),
		)
	}
	return debtOffset.Clone(), nil
}

// GetStakeAmount returns the party's current compounded stake, zero
// for a party with no deposit.
func (e *Engine) GetStakeAmount(party string) *num.Uint {
	return e.compoundedStake(party)
}

// GetCollateralGain returns the party's pending collateral gain, zero
// for a party with no deposit.
func (e *Engine) GetCollateralGain(party string) *num.Uint {
	return e.collateralGain(party)
}

// GetTotalStakeAmount returns the pool's current total deposits.
func (e *Engine) GetTotalStakeAmount() *num.Uint {
	return e.totalDeposits.Clone()
}

// CollateralHeld returns the liquidated collateral the pool still owes
// its depositors.
func (e *Engine) CollateralHeld() *num.Uint {
	return e.collateralHeld.Clone()
}

// compoundedStake derives the party's true current balance from its
// snapshot: recorded amount scaled by P_now/P_then, shifted once if the
// scale advanced once since, zero beyond that or across an epoch.
func (e *Engine) compoundedStake(party string) *num.Uint {
	st, ok := e.deposits[party]
	if !ok {
		return num.UintZero()
	}
	if st.epoch < e.dist.Epoch() {
		// the pool was fully depleted since this snapshot
		return num.UintZero()
	}
	scaleDiff := e.dist.Scale() - st.scale
	switch scaleDiff {
	case 0:
		return num.MulDiv(st.amount, e.dist.P(), st.p)
	case 1:
		return num.UintZero().Div(num.MulDiv(st.amount, e.dist.P(), st.p), types.ScaleFactor)
	default:
		// two or more shifts, the stake has decayed to dust
		return num.UintZero()
	}
}

// collateralGain derives the party's owed collateral from the sum
// buckets of its snapshot epoch: the growth of S at the snapshot scale,
// plus the next scale's portion shifted down once.
func (e *Engine) collateralGain(party string) *num.Uint {
	st, ok := e.deposits[party]
	if !ok || st.amount.IsZero() {
		return num.UintZero()
	}
	firstPortion := num.UintZero().Sub(e.dist.SumAt(st.epoch, st.scale), st.s)
	secondPortion := num.UintZero().Div(e.dist.SumAt(st.epoch, st.scale+1), types.ScaleFactor)
	gain := num.MulDiv(st.amount, num.Sum(firstPortion, secondPortion), st.p)
	return gain.Div(gain, types.DoubleScale)
}

// setStake rewrites the party's record with a fresh snapshot, removing
// it entirely when the amount has reached zero.
func (e *Engine) setStake(party string, amount *num.Uint) {
	if amount.IsZero() {
		delete(e.deposits, party)
		return
	}
	e.deposits[party] = &stake{
		amount: amount.Clone(),
		p:      e.dist.P(),
		s:      e.dist.SumAt(e.dist.Epoch(), e.dist.Scale()),
		epoch:  e.dist.Epoch(),
		scale:  e.dist.Scale(),
	}
}

func (e *Engine) payGain(gain *num.Uint) {
	// gains are floored per depositor, the pool can not owe more than it holds
	e.collateralHeld.Sub(e.collateralHeld, num.Min(gain, e.collateralHeld))
}
