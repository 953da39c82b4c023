package events

import (
	"context"

	"code.halcyonprotocol.io/halcyon/libs/num"
)

// StabilityDeposit is emitted when a party adds stable tokens to the
// stability pool.
type StabilityDeposit struct {
	*Base
	party  string
	amount *num.Uint
	gain   *num.Uint
}

func NewStabilityDepositEvent(ctx context.Context, party string, amount, gain *num.Uint) *StabilityDeposit {
	return &StabilityDeposit{
		Base:   newBase(ctx, StabilityDepositEvent),
		party:  party,
		amount: amount.Clone(),
		gain:   gain.Clone(),
	}
}

func (s StabilityDeposit) Party() string    { return s.party }
func (s StabilityDeposit) Amount() *num.Uint { return s.amount.Clone() }

// Gain is the collateral gain paid out alongside the deposit.
func (s StabilityDeposit) Gain() *num.Uint { return s.gain.Clone() }

// StabilityWithdraw is emitted when a party takes stable tokens out of
// the stability pool.
type StabilityWithdraw struct {
	*Base
	party  string
	amount *num.Uint
	gain   *num.Uint
}

func NewStabilityWithdrawEvent(ctx context.Context, party string, amount, gain *num.Uint) *StabilityWithdraw {
	return &StabilityWithdraw{
		Base:   newBase(ctx, StabilityWithdrawEvent),
		party:  party,
		amount: amount.Clone(),
		gain:   gain.Clone(),
	}
}

func (s StabilityWithdraw) Party() string     { return s.party }
func (s StabilityWithdraw) Amount() *num.Uint { return s.amount.Clone() }
func (s StabilityWithdraw) Gain() *num.Uint   { return s.gain.Clone() }
