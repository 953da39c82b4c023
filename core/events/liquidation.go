package events

import (
	"context"

	"code.halcyonprotocol.io/halcyon/core/types"
)

// LiquidationCompleted is the single aggregate event emitted at the end
// of a liquidation call, covering every position processed in the walk.
type LiquidationCompleted struct {
	*Base
	totals types.LiquidationTotals
}

func NewLiquidationCompletedEvent(ctx context.Context, totals *types.LiquidationTotals) *LiquidationCompleted {
	return &LiquidationCompleted{
		Base: newBase(ctx, LiquidationCompletedEvent),
		totals: types.LiquidationTotals{
			TotalCollateral:          totals.TotalCollateral.Clone(),
			TotalDebt:                totals.TotalDebt.Clone(),
			CollateralToOffset:       totals.CollateralToOffset.Clone(),
			DebtToOffset:             totals.DebtToOffset.Clone(),
			CollateralToRedistribute: totals.CollateralToRedistribute.Clone(),
			DebtToRedistribute:       totals.DebtToRedistribute.Clone(),
			PositionsLiquidated:      totals.PositionsLiquidated,
		},
	}
}

func (l LiquidationCompleted) Totals() types.LiquidationTotals { return l.totals }
