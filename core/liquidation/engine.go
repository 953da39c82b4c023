// Package liquidation walks the riskiest end of the sorted index and
// clears every position whose individual collateral ratio sits below
// the minimum, offsetting as much debt as the stability pool can absorb
// and redistributing the rest across the surviving positions.
package liquidation

import (
	"context"

	"code.halcyonprotocol.io/halcyon/core/events"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
	"code.halcyonprotocol.io/halcyon/metrics"
)

// PositionStore is the slice of the position ledger the liquidation
// engine drives.
type PositionStore interface {
	CurrentAmounts(party string) (*num.Uint, *num.Uint, error)
	ApplyPendingRewards(ctx context.Context, party string) error
	Remove(ctx context.Context, party, reason string) error
	Redistribute(ctx context.Context, collateral, debt *num.Uint) error
	DecreaseTotalCollateral(amount *num.Uint) error
	DecreaseTotalDebt(amount *num.Uint) error
	Len() int
}

// SortedIndex is the ordering the walk follows, riskiest first.
type SortedIndex interface {
	Last() (string, bool)
	Prev(id string) (string, bool)
	Remove(id string) error
}

// StabilityPool absorbs offset debt in exchange for collateral.
type StabilityPool interface {
	GetTotalStakeAmount() *num.Uint
	Liquidation(ctx context.Context, collateral, debtOffset *num.Uint) (*num.Uint, error)
}

// StableBurner destroys the stable tokens the pool gave up. The
// implementation holds the mint/burn capability, this engine never
// sees it.
type StableBurner interface {
	BurnFromPool(amount *num.Uint) error
}

// Broker - the event bus broker, send events here.
type Broker interface {
	Send(event events.Event)
}

// Engine is the liquidation engine.
type Engine struct {
	Config
	log *logging.Logger

	positions PositionStore
	index     SortedIndex
	pool      StabilityPool
	burner    StableBurner
	broker    Broker

	minCollateralRatio num.Decimal
}

// New instantiates a new liquidation engine.
func New(
	log *logging.Logger,
	config Config,
	positions PositionStore,
	index SortedIndex,
	pool StabilityPool,
	burner StableBurner,
	broker Broker,
	minCollateralRatio num.Decimal,
) *Engine {
	// setup logger
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	return &Engine{
		Config:             config,
		log:                log,
		positions:          positions,
		index:              index,
		pool:               pool,
		burner:             burner,
		broker:             broker,
		minCollateralRatio: minCollateralRatio,
	}
}

// ReloadConf updates the internal configuration of the liquidation engine.
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

// Liquidate walks the index from the riskiest position and clears every
// one below the minimum collateral ratio at the given price, stopping
// at the first position meeting the threshold. The stability pool's
// capacity is read once and carried forward through the batch so
// several positions share a depleting pool correctly. Fails with
// ErrNothingToLiquidate when no debt was processed at all.
func (e *Engine) Liquidate(ctx context.Context, price *num.Uint) (*types.LiquidationTotals, error) {
	totals := types.NewLiquidationTotals()
	// remaining pool capacity for this batch, not re-read per position
	remaining := e.pool.GetTotalStakeAmount()

	id, ok := e.index.Last()
	for ok {
		prevID, prevOK := e.index.Prev(id)

		collateral, debt, err := e.positions.CurrentAmounts(id)
		if err != nil {
			return nil, err
		}
		if types.ICR(collateral, debt, price).GreaterThanOrEqual(e.minCollateralRatio) {
			// list is ordered, everything from here up is healthy
			break
		}

		debtToOffset := num.UintZero()
		collToPool := num.UintZero()
		if !remaining.IsZero() && !debt.IsZero() {
			debtToOffset = num.Min(debt, remaining).Clone()
			// floor division, rounding in favour of the protocol
			collToPool = num.MulDiv(collateral, debtToOffset, debt)
		}
		debtToRedistribute := num.UintZero().Sub(debt, debtToOffset)
		collToRedistribute := num.UintZero().Sub(collateral, collToPool)

		if (!debtToRedistribute.IsZero() || !collToRedistribute.IsZero()) && e.positions.Len() <= 1 {
			// nothing left to absorb the remainder, leave this
			// position for a better-capitalised pool
			e.log.Warn("skipping liquidation, no position left to redistribute to",
				logging.String("party", id))
			break
		}

		// fold pending rewards so the removed amounts are the full ones
		if err := e.positions.ApplyPendingRewards(ctx, id); err != nil {
			return nil, err
		}
		if err := e.positions.Remove(ctx, id, "liquidated"); err != nil {
			return nil, err
		}
		if err := e.index.Remove(id); err != nil {
			return nil, err
		}

		if !debtToOffset.IsZero() || !collToPool.IsZero() {
			if err := e.positions.DecreaseTotalDebt(debtToOffset); err != nil {
				return nil, err
			}
			if err := e.positions.DecreaseTotalCollateral(collToPool); err != nil {
				return nil, err
			}
			taken, err := e.pool.Liquidation(ctx, collToPool, debtToOffset)
			if err != nil {
				return nil, err
			}
			if err := e.burner.BurnFromPool(taken); err != nil {
				return nil, err
			}
			remaining.Sub(remaining, debtToOffset)
		}

		if !debtToRedistribute.IsZero() || !collToRedistribute.IsZero() {
			if err := e.positions.Redistribute(ctx, collToRedistribute, debtToRedistribute); err != nil {
				return nil, err
			}
		}

		totals.TotalCollateral.AddSum(collateral)
		totals.TotalDebt.AddSum(debt)
		totals.CollateralToOffset.AddSum(collToPool)
		totals.DebtToOffset.AddSum(debtToOffset)
		totals.CollateralToRedistribute.AddSum(collToRedistribute)
		totals.DebtToRedistribute.AddSum(debtToRedistribute)
		totals.PositionsLiquidated++

		if e.log.GetLevel() == logging.DebugLevel {
			e.log.Debug("position liquidated",
				logging.String("party", id),
				logging.BigUint("collateral", collateral),
				logging.BigUint("debt", debt),
				logging.BigUint("debt-to-offset", debtToOffset),
				logging.BigUint("pool-remaining", remaining),
			)
		}

		id, ok = prevID, prevOK
	}

	if totals.TotalDebt.IsZero() {
		return nil, types.ErrNothingToLiquidate
	}

	metrics.PositionsLiquidatedAdd(int(totals.PositionsLiquidated))
	e.broker.Send(events.NewLiquidationCompletedEvent(ctx, totals))
	return totals, nil
}
