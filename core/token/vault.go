package token

import (
	"code.halcyonprotocol.io/halcyon/core/types"
	"code.halcyonprotocol.io/halcyon/libs/num"
)

// Vault is an opaque balance container for a single collateral asset
// type, balances keyed by account name. The core treats collateral as
// amounts to split and merge, nothing more.
type Vault struct {
	balances map[string]*num.Uint
}

func NewVault() *Vault {
	return &Vault{
		balances: map[string]*num.Uint{},
	}
}

// Credit adds collateral to an account.
func (v *Vault) Credit(account string, amount *num.Uint) {
	b, ok := v.balances[account]
	if !ok {
		b = num.UintZero()
		v.balances[account] = b
	}
	b.AddSum(amount)
}

// Debit removes collateral from an account, checked against underflow.
func (v *Vault) Debit(account string, amount *num.Uint) error {
	b, ok := v.balances[account]
	if !ok || amount.GT(b) {
		return types.ErrInsufficientBalance
	}
	b.Sub(b, amount)
	if b.IsZero() {
		delete(v.balances, account)
	}
	return nil
}

// Move transfers collateral between accounts.
func (v *Vault) Move(from, to string, amount *num.Uint) error {
	if err := v.Debit(from, amount); err != nil {
		return err
	}
	v.Credit(to, amount)
	return nil
}

// Balance returns an account's collateral, zero for unknown accounts.
func (v *Vault) Balance(account string) *num.Uint {
	b, ok := v.balances[account]
	if !ok {
		return num.UintZero()
	}
	return b.Clone()
}
