package events

import (
	"context"

	"code.halcyonprotocol.io/halcyon/libs/num"
)

// PositionUpdate carries the state of a single position after any
// balance change.
type PositionUpdate struct {
	*Base
	party      string
	collateral *num.Uint
	debt       *num.Uint
}

func NewPositionUpdateEvent(ctx context.Context, party string, collateral, debt *num.Uint) *PositionUpdate {
	return &PositionUpdate{
		Base:       newBase(ctx, PositionUpdateEvent),
		party:      party,
		collateral: collateral.Clone(),
		debt:       debt.Clone(),
	}
}

func (p PositionUpdate) Party() string         { return p.party }
func (p PositionUpdate) Collateral() *num.Uint { return p.collateral.Clone() }
func (p PositionUpdate) Debt() *num.Uint       { return p.debt.Clone() }

// PositionClosed is emitted when a position is removed, either repaid,
// fully redeemed or liquidated.
type PositionClosed struct {
	*Base
	party  string
	reason string
}

func NewPositionClosedEvent(ctx context.Context, party, reason string) *PositionClosed {
	return &PositionClosed{
		Base:   newBase(ctx, PositionClosedEvent),
		party:  party,
		reason: reason,
	}
}

func (p PositionClosed) Party() string  { return p.party }
func (p PositionClosed) Reason() string { return p.reason }
