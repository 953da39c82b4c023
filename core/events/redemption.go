package events

import (
	"context"

	"code.halcyonprotocol.io/halcyon/core/types"
)

// RedemptionCompleted is the aggregate event emitted at the end of a
// redemption call.
type RedemptionCompleted struct {
	*Base
	party  string
	totals types.RedemptionTotals
}

func NewRedemptionCompletedEvent(ctx context.Context, party string, totals *types.RedemptionTotals) *RedemptionCompleted {
	return &RedemptionCompleted{
		Base:  newBase(ctx, RedemptionCompletedEvent),
		party: party,
		totals: types.RedemptionTotals{
			StableRedeemed:    totals.StableRedeemed.Clone(),
			CollateralDrawn:   totals.CollateralDrawn.Clone(),
			CollateralSurplus: totals.CollateralSurplus.Clone(),
			PositionsClosed:   totals.PositionsClosed,
		},
	}
}

func (r RedemptionCompleted) Party() string                  { return r.party }
func (r RedemptionCompleted) Totals() types.RedemptionTotals { return r.totals }
