// Package token provides the fungible asset primitives the core
// accounts against: a stable token ledger with capability-restricted
// mint/burn, and a plain collateral vault.
package token

import (
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
	"code.halcyonprotocol.io/halcyon/logging"
)

const namedLogger = "token"

// Capability is the opaque handle authorizing mint and burn. Only
// NewStableLedger can produce one, holding it is the authorization.
type Capability struct {
	ledger *Ledger
}

// Ledger is the stable token ledger, balances keyed by party.
type Ledger struct {
	Config
	log *logging.Logger

	balances map[string]*num.Uint
	supply   *num.Uint
	cap      *Capability
}

// NewStableLedger creates the ledger and its single mint/burn
// capability. The capability goes to the module wiring the protocol
// together, nothing else can create one.
func NewStableLedger(log *logging.Logger, config Config) (*Ledger, *Capability) {
	log = log.Named(namedLogger)
	log.SetLevel(config.Level.Get())

	l := &Ledger{
		Config:   config,
		log:      log,
		balances: map[string]*num.Uint{},
		supply:   num.UintZero(),
	}
	l.cap = &Capability{ledger: l}
	return l, l.cap
}

// IsAuthorized reports whether the capability was issued by this ledger.
func (l *Ledger) IsAuthorized(cap *Capability) bool {
	return cap != nil && cap.ledger == l
}

// Mint creates amount new tokens for the recipient.
func (l *Ledger) Mint(cap *Capability, recipient string, amount *num.Uint) error {
	if !l.IsAuthorized(cap) {
		return types.ErrUnauthorized
	}
	l.credit(recipient, amount)
	l.supply.AddSum(amount)
	return nil
}

// Burn destroys amount tokens held by the holder.
func (l *Ledger) Burn(cap *Capability, holder string, amount *num.Uint) error {
	if !l.IsAuthorized(cap) {
		return types.ErrUnauthorized
	}
	if err := l.debit(holder, amount); err != nil {
		return err
	}
	l.supply.Sub(l.supply, amount)
	return nil
}

// Transfer moves tokens between parties, no capability needed.
func (l *Ledger) Transfer(from, to string, amount *num.Uint) error {
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

// Balance returns the party's balance, zero for unknown parties.
func (l *Ledger) Balance(party string) *num.Uint {
	b, ok := l.balances[party]
	if !ok {
		return num.UintZero()
	}
	return b.Clone()
}

// Supply returns the total minted supply.
func (l *Ledger) Supply() *num.Uint {
	return l.supply.Clone()
}

func (l *Ledger) credit(party string, amount *num.Uint) {
	b, ok := l.balances[party]
	if !ok {
		b = num.UintZero()
		l.balances[party] = b
	}
	b.AddSum(amount)
}

func (l *Ledger) debit(party string, amount *num.Uint) error {
	b, ok := l.balances[party]
	if !ok || amount.GT(b) {
		return types.ErrInsufficientBalance
	}
	b.Sub(b, amount)
	if b.IsZero() {
		delete(l.balances, party)
	}
	return nil
}
