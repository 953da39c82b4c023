package events

import (
	"context"

	"code.halcyonprotocol.io/halcyon/libs/num"
)

// CollateralSurplusClaimed is emitted when a party claims the
// collateral left over from a fully redeemed position.
type CollateralSurplusClaimed struct {
	*Base
	party  string
	amount *num.Uint
}

func NewCollateralSurplusClaimedEvent(ctx context.Context, party string, amount *num.Uint) *CollateralSurplusClaimed {
	return &CollateralSurplusClaimed{
		Base:   newBase(ctx, CollateralSurplusClaimedEvent),
		party:  party,
		amount: amount.Clone(),
	}
}

func (c CollateralSurplusClaimed) Party() string     { return c.party }
func (c CollateralSurplusClaimed) Amount() *num.Uint { return c.amount.Clone() }
