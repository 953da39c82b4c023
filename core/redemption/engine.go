// Package redemption exchanges stable tokens for collateral at face
// value against the safest positions that are not liquidation
// candidates. The walk starts at the riskiest position whose individual
// collateral ratio clears the minimum, positions below it are left for
// the liquidation engine.
package redemption

import (
	"context"
	"errors"

	"code.halcyonprotocol.io/halcyon/core/events"
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
)

// ErrNothingToRedeem signals a redemption walk that found no position
// to draw collateral from.
var ErrNothingToRedeem = errors.New("nothing to redeem")

// PositionStore is the slice of the position ledger the redemption
// engine drives.
type PositionStore interface {
	CurrentAmounts(party string) (*num.Uint, *num.Uint, error)
	ApplyPendingRewards(ctx context.Context, party string) error
	Remove(ctx context.Context, party, reason string) error
	DecreaseCollateral(ctx context.Context, party string, amount *num.Uint) error
	DecreaseDebt(ctx context.Context, party string, amount *num.Uint) error
	DecreaseTotalCollateral(amount *num.Uint) error
	DecreaseTotalDebt(amount *num.Uint) error
	NICR(party string) (*num.Uint, error)
}

// SortedIndex is the ordering the walk follows.
type SortedIndex interface {
	Last() (string, bool)
	Prev(id string) (string, bool)
	Next(id string) (string, bool)
	Contains(id string) bool
	Remove(id string) error
	Reinsert(id string, newNICR *num.Uint, prevHint, nextHint string) error
}

// StableBurner destroys the redeemer's stable tokens as they are
// exchanged.
type StableBurner interface {
	Burn(party string, amount *num.Uint) error
}

// SurplusKeeper receives the collateral left over when a redemption
// fully closes a position, claimable by the position's owner.
type SurplusKeeper interface {
	CreditSurplus(party string, amount *num.Uint)
}

// Broker - the event bus broker, send events here.
type Broker interface {
	Send(event events.Event)
}

// Engine is the redemption engine.
type Engine struct {
	Config
	log *logging.Logger

	positions PositionStore
	index     SortedIndex
	burner    StableBurner
	surplus   SurplusKeeper
	broker    Broker

	minCollateralRatio num.Decimal
}

// New instantiates a new redemption engine.
func New(
	log *logging.Logger,
	config Config,
	positions PositionStore,
	index SortedIndex,
	burner StableBurner,
	surplus SurplusKeeper,
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
		burner:             burner,
		surplus:            surplus,
		broker:             broker,
		minCollateralRatio: minCollateralRatio,
	}
}

// ReloadConf updates the internal configuration of the redemption engine.
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

// CheckFirstRedemptionHint validates in O(1) that the hint is the
// correct starting position for a redemption at the given price: it is
// indexed, clears the minimum ratio, and its riskier neighbour does
// not.
func (e *Engine) CheckFirstRedemptionHint(hint string, price *num.Uint) bool {
	if hint == "" || !e.index.Contains(hint) {
		return false
	}
	if e.icr(hint, price).LessThan(e.minCollateralRatio) {
		return false
	}
	next, ok := e.index.Next(hint)
	if !ok {
		// hint is the riskiest position overall
		return true
	}
	return e.icr(next, price).LessThan(e.minCollateralRatio)
}

// Redeem exchanges up to amount of the redeemer's stable tokens for
// collateral at face value. firstHint names the position to start from,
// prevHint/nextHint are the reinsert hints for the final, partially
// redeemed position. No redemption fee is charged.
func (e *Engine) Redeem(ctx context.Context, redeemer string, amount, price *num.Uint, firstHint, prevHint, nextHint string) (*types.RedemptionTotals, error) {
	totals := types.NewRedemptionTotals()

	id := firstHint
	if !e.CheckFirstRedemptionHint(firstHint, price) {
		id = e.findFirstToRedeem(price)
	}

	remaining := amount.Clone()
	for id != "" && !remaining.IsZero() {
		safer, saferOK := e.index.Prev(id)

		if err := e.positions.ApplyPendingRewards(ctx, id); err != nil {
			return nil, err
		}
		collateral, debt, err := e.positions.CurrentAmounts(id)
		if err != nil {
			return nil, err
		}

		if debt.IsZero() {
			// a fully repaid position holds no debt to redeem against,
			// its collateral stays with the owner
			if !saferOK {
				break
			}
			id = safer
			continue
		}

		debtToRedeem := num.Min(remaining, debt).Clone()
		// face value exchange: collateral worth exactly the redeemed debt
		collToDraw := num.MulDiv(debtToRedeem, types.PricePrecision, price)

		if debtToRedeem.EQ(debt) {
			// full redemption closes the position, leftover collateral
			// is owed back to the owner
			surplus, neg := num.UintZero().SubOverflow(collateral, collToDraw)
			if neg {
				e.log.Panic("redeemed position undercollateralised at face value",
					logging.String("party", id),
					logging.BigUint("collateral", collateral),
					logging.BigUint("collateral-to-draw", collToDraw),
				)
			}
			if err := e.positions.Remove(ctx, id, "redeemed"); err != nil {
				return nil, err
			}
			if err := e.index.Remove(id); err != nil {
				return nil, err
			}
			if !surplus.IsZero() {
				e.surplus.CreditSurplus(id, surplus)
			}
			if err := e.positions.DecreaseTotalCollateral(collateral); err != nil {
				return nil, err
			}
			totals.CollateralSurplus.AddSum(surplus)
			totals.PositionsClosed++
		} else {
			if err := e.positions.DecreaseDebt(ctx, id, debtToRedeem); err != nil {
				return nil, err
			}
			if err := e.positions.DecreaseCollateral(ctx, id, collToDraw); err != nil {
				return nil, err
			}
			newNICR, err := e.positions.NICR(id)
			if err != nil {
				return nil, err
			}
			if err := e.index.Reinsert(id, newNICR, prevHint, nextHint); err != nil {
				return nil, err
			}
			if err := e.positions.DecreaseTotalCollateral(collToDraw); err != nil {
				return nil, err
			}
		}
		if err := e.positions.DecreaseTotalDebt(debtToRedeem); err != nil {
			return nil, err
		}

		totals.StableRedeemed.AddSum(debtToRedeem)
		totals.CollateralDrawn.AddSum(collToDraw)
		remaining.Sub(remaining, debtToRedeem)

		if e.log.GetLevel() == logging.DebugLevel {
			e.log.Debug("position redeemed against",
				logging.String("party", id),
				logging.BigUint("debt-redeemed", debtToRedeem),
				logging.BigUint("collateral-drawn", collToDraw),
				logging.BigUint("remaining", remaining),
			)
		}

		if !saferOK {
			break
		}
		id = safer
	}

	if totals.StableRedeemed.IsZero() {
		return nil, ErrNothingToRedeem
	}

	if err := e.burner.Burn(redeemer, totals.StableRedeemed); err != nil {
		return nil, err
	}
	e.broker.Send(events.NewRedemptionCompletedEvent(ctx, redeemer, totals))
	return totals, nil
}

// findFirstToRedeem walks up from the tail past every liquidation
// candidate to the riskiest position that clears the minimum ratio.
func (e *Engine) findFirstToRedeem(price *num.Uint) string {
	id, ok := e.index.Last()
	for ok {
		if e.icr(id, price).GreaterThanOrEqual(e.minCollateralRatio) {
			return id
		}
		id, ok = e.index.Prev(id)
	}
	return ""
}

func (e *Engine) icr(id string, price *num.Uint) num.Decimal {
	collateral, debt, err := e.positions.CurrentAmounts(id)
	if err != nil {
		e.log.Panic("sorted index entry without a backing position",
			logging.String("id", id),
			logging.Error(err),
		)
	}
	return types.ICR(collateral, debt, price)
}
