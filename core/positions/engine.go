package positions

import (
	"context"
	"errors"
	"sort"

	"code.halcyonprotocol.io/halcyon/core/events"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
	"golang.org/x/exp/maps"
)

var (
	// ErrNoStakeToRedistribute signals a redistribution with no
	// remaining open position to absorb it.
	ErrNoStakeToRedistribute = errors.New("no remaining stake to redistribute against")
)

// Broker - the event bus broker, send events here.
type Broker interface {
	Send(event events.Event)
}

// rewardSnapshot pins a position to the redistribution running sums as
// they were when the position was last touched. Pending rewards are the
// stake-weighted delta between the snapshot and the current sums.
type rewardSnapshot struct {
	collPerStake *num.Uint
	debtPerStake *num.Uint
}

// Engine is the position ledger. It owns every open position, the
// protocol-wide totals, and the redistribution accumulators positions
// earn liquidation remainders through. It knows nothing about ordering,
// that is the sorted index's job.
type Engine struct {
	Config
	log    *logging.Logger
	broker Broker

	// party -> position
	positions map[string]*types.Position
	snapshots map[string]*rewardSnapshot

	totalCollateral *num.Uint
	totalDebt       *num.Uint
	totalStakes     *num.Uint

	// cumulative collateral/debt redistributed per unit of stake,
	// carried at DoubleScale precision, monotonically increasing.
	collPerStake *num.Uint
	debtPerStake *num.Uint
	// carried rounding remainders from the last redistribution, fed
	// back into the next numerator so dust is not lost systematically.
	collRedistErr *num.Uint
	debtRedistErr *num.Uint
}

// New instantiates a new positions ledger engine.
func New(log *logging.Logger, config Config, broker Broker) *Engine {
	// setup logger
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	return &Engine{
		Config:          config,
		log:             log,
		broker:          broker,
		positions:       map[string]*types.Position{},
		snapshots:       map[string]*rewardSnapshot{},
		totalCollateral: num.UintZero(),
		totalDebt:       num.UintZero(),
		totalStakes:     num.UintZero(),
		collPerStake:    num.UintZero(),
		debtPerStake:    num.UintZero(),
		collRedistErr:   num.UintZero(),
		debtRedistErr:   num.UintZero(),
	}
}

// ReloadConf updates the internal configuration of the positions engine.
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

// Create registers an empty position for the party. The caller funds it
// through IncreaseCollateral/IncreaseDebt afterwards.
func (e *Engine) Create(ctx context.Context, party string) error {
	if _, ok := e.positions[party]; ok {
		return types.ErrAlreadyExists
	}
	e.positions[party] = types.NewPosition()
	e.snapshots[party] = &rewardSnapshot{
		collPerStake: e.collPerStake.Clone(),
		debtPerStake: e.debtPerStake.Clone(),
	}
	if e.log.GetLevel() == logging.DebugLevel {
		e.log.Debug("position created", logging.String("party", party))
	}
	return nil
}

// Remove drops the party's position without touching the protocol
// totals, the caller accounts for where the balances went.
func (e *Engine) Remove(ctx context.Context, party, reason string) error {
	pos, ok := e.positions[party]
	if !ok {
		return types.ErrNotFound
	}
	e.totalStakes.Sub(e.totalStakes, pos.Stake)
	delete(e.positions, party)
	delete(e.snapshots, party)
	e.broker.Send(events.NewPositionClosedEvent(ctx, party, reason))
	return nil
}

// Has returns whether the party holds an open position.
func (e *Engine) Has(party string) bool {
	_, ok := e.positions[party]
	return ok
}

// Len returns the number of open positions.
func (e *Engine) Len() int {
	return len(e.positions)
}

// Parties returns the parties with open positions, sorted for
// deterministic iteration.
func (e *Engine) Parties() []string {
	parties := maps.Keys(e.positions)
	sort.Strings(parties)
	return parties
}

// GetAmounts returns the recorded collateral and debt amounts, not
// including pending redistribution rewards.
func (e *Engine) GetAmounts(party string) (*num.Uint, *num.Uint, error) {
	pos, ok := e.positions[party]
	if !ok {
		return nil, nil, types.ErrNotFound
	}
	return pos.Collateral.Clone(), pos.Debt.Clone(), nil
}

// CurrentAmounts returns collateral and debt including any pending
// redistribution rewards, without mutating the position.
func (e *Engine) CurrentAmounts(party string) (*num.Uint, *num.Uint, error) {
	pos, ok := e.positions[party]
	if !ok {
		return nil, nil, types.ErrNotFound
	}
	collPending, debtPending := e.pending(party)
	return num.Sum(pos.Collateral, collPending), num.Sum(pos.Debt, debtPending), nil
}

// NICR returns the party's nominal collateral ratio, pending rewards
// included so the ordering the sorted index sees is always fresh.
func (e *Engine) NICR(party string) (*num.Uint, error) {
	coll, debt, err := e.CurrentAmounts(party)
	if err != nil {
		return nil, err
	}
	return types.NICR(coll, debt), nil
}

// IncreaseCollateral adds to the party's collateral, folding in any
// pending rewards first and refreshing the position's stake.
func (e *Engine) IncreaseCollateral(ctx context.Context, party string, amount *num.Uint) error {
	pos, ok := e.positions[party]
	if !ok {
		return types.ErrNotFound
	}
	e.applyPending(party)
	pos.Collateral.AddSum(amount)
	e.refreshStake(pos)
	e.sendUpdate(ctx, party, pos)
	return nil
}

// DecreaseCollateral removes from the party's collateral, failing with
// ErrInsufficientBalance rather than wrapping below zero.
func (e *Engine) DecreaseCollateral(ctx context.Context, party string, amount *num.Uint) error {
	pos, ok := e.positions[party]
	if !ok {
		return types.ErrNotFound
	}
	// validate against the pending-inclusive balance so a failed
	// decrease leaves the position untouched
	collPending, _ := e.pending(party)
	if amount.GT(num.Sum(pos.Collateral, collPending)) {
		return types.ErrInsufficientBalance
	}
	e.applyPending(party)
	pos.Collateral.Sub(pos.Collateral, amount)
	e.refreshStake(pos)
	e.sendUpdate(ctx, party, pos)
	return nil
}

// IncreaseDebt adds to the party's debt.
func (e *Engine) IncreaseDebt(ctx context.Context, party string, amount *num.Uint) error {
	pos, ok := e.positions[party]
	if !ok {
		return types.ErrNotFound
	}
	e.applyPending(party)
	pos.Debt.AddSum(amount)
	e.sendUpdate(ctx, party, pos)
	return nil
}

// DecreaseDebt removes from the party's debt, failing with
// ErrInsufficientBalance rather than wrapping below zero.
func (e *Engine) DecreaseDebt(ctx context.Context, party string, amount *num.Uint) error {
	pos, ok := e.positions[party]
	if !ok {
		return types.ErrNotFound
	}
	_, debtPending := e.pending(party)
	if amount.GT(num.Sum(pos.Debt, debtPending)) {
		return types.ErrInsufficientBalance
	}
	e.applyPending(party)
	pos.Debt.Sub(pos.Debt, amount)
	e.sendUpdate(ctx, party, pos)
	return nil
}

// Redistribute spreads un-offset liquidation remainders across the
// remaining open positions pro-rata by stake, by advancing the
// per-stake running sums. The amounts stay in the protocol totals,
// they are owed to positions as pending rewards until applied.
func (e *Engine) Redistribute(ctx context.Context, collateral, debt *num.Uint) error {
	if e.totalStakes.IsZero() {
		return ErrNoStakeToRedistribute
	}
	if collateral.IsZero() && debt.IsZero() {
		return nil
	}

	collNumerator := num.Sum(num.UintZero().Mul(collateral, types.DoubleScale), e.collRedistErr)
	collDelta := num.UintZero().Div(collNumerator, e.totalStakes)
	e.collRedistErr = num.UintZero().Sub(collNumerator, num.UintZero().Mul(collDelta, e.totalStakes))

	debtNumerator := num.Sum(num.UintZero().Mul(debt, types.DoubleScale), e.debtRedistErr)
	debtDelta := num.UintZero().Div(debtNumerator, e.totalStakes)
	e.debtRedistErr = num.UintZero().Sub(debtNumerator, num.UintZero().Mul(debtDelta, e.totalStakes))

	e.collPerStake.AddSum(collDelta)
	e.debtPerStake.AddSum(debtDelta)

	if e.log.GetLevel() == logging.DebugLevel {
		e.log.Debug("redistributed liquidation remainder",
			logging.BigUint("collateral", collateral),
			logging.BigUint("debt", debt),
			logging.BigUint("total-stakes", e.totalStakes),
		)
	}
	return nil
}

// PendingRewards returns the party's unapplied redistribution gains. A
// party without a position gets zero/zero, not an error.
func (e *Engine) PendingRewards(party string) (*num.Uint, *num.Uint) {
	if _, ok := e.positions[party]; !ok {
		return num.UintZero(), num.UintZero()
	}
	return e.pending(party)
}

// ApplyPendingRewards folds the party's pending redistribution gains
// into its recorded amounts and refreshes the reward snapshot.
func (e *Engine) ApplyPendingRewards(ctx context.Context, party string) error {
	pos, ok := e.positions[party]
	if !ok {
		return types.ErrNotFound
	}
	if e.applyPending(party) {
		e.sendUpdate(ctx, party, pos)
	}
	return nil
}

func (e *Engine) pending(party string) (*num.Uint, *num.Uint) {
	pos := e.positions[party]
	snap := e.snapshots[party]
	collDelta := num.UintZero().Sub(e.collPerStake, snap.collPerStake)
	debtDelta := num.UintZero().Sub(e.debtPerStake, snap.debtPerStake)
	coll := num.MulDiv(pos.Stake, collDelta, types.DoubleScale)
	debt := num.MulDiv(pos.Stake, debtDelta, types.DoubleScale)
	return coll, debt
}

// applyPending folds pending rewards into the recorded amounts, returns
// whether anything changed.
func (e *Engine) applyPending(party string) bool {
	pos := e.positions[party]
	snap := e.snapshots[party]
	coll, debt := e.pending(party)
	snap.collPerStake = e.collPerStake.Clone()
	snap.debtPerStake = e.debtPerStake.Clone()
	if coll.IsZero() && debt.IsZero() {
		return false
	}
	pos.Collateral.AddSum(coll)
	pos.Debt.AddSum(debt)
	e.refreshStake(pos)
	return true
}

// refreshStake keeps the redistribution share weight in line with the
// position's collateral.
func (e *Engine) refreshStake(pos *types.Position) {
	e.totalStakes.Sub(e.totalStakes, pos.Stake)
	pos.Stake = pos.Collateral.Clone()
	e.totalStakes.AddSum(pos.Stake)
}

func (e *Engine) sendUpdate(ctx context.Context, party string, pos *types.Position) {
	e.broker.Send(events.NewPositionUpdateEvent(ctx, party, pos.Collateral, pos.Debt))
}

// IncreaseTotalCollateral adds to the protocol-wide collateral balance.
func (e *Engine) IncreaseTotalCollateral(amount *num.Uint) {
	e.totalCollateral.AddSum(amount)
}

// DecreaseTotalCollateral removes from the protocol-wide collateral
// balance, checked against underflow.
func (e *Engine) DecreaseTotalCollateral(amount *num.Uint) error {
	if amount.GT(e.totalCollateral) {
		return types.ErrInsufficientBalance
	}
	e.totalCollateral.Sub(e.totalCollateral, amount)
	return nil
}

// IncreaseTotalDebt adds to the protocol-wide debt balance.
func (e *Engine) IncreaseTotalDebt(amount *num.Uint) {
	e.totalDebt.AddSum(amount)
}

// DecreaseTotalDebt removes from the protocol-wide debt balance,
// checked against underflow.
func (e *Engine) DecreaseTotalDebt(amount *num.Uint) error {
	if amount.GT(e.totalDebt) {
		return types.ErrInsufficientBalance
	}
	e.totalDebt.Sub(e.totalDebt, amount)
	return nil
}

// TotalCollateral returns the protocol-wide collateral balance.
func (e *Engine) TotalCollateral() *num.Uint {
	return e.totalCollateral.Clone()
}

// TotalDebt returns the protocol-wide debt balance.
func (e *Engine) TotalDebt() *num.Uint {
	return e.totalDebt.Clone()
}

// TotalStakes returns the sum of all open positions' stakes.
func (e *Engine) TotalStakes() *num.Uint {
	return e.totalStakes.Clone()
}
