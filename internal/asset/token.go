// Package asset is an in-memory fungible token used as the asset-transfer
// primitive. Balances and allowances are journaled on the caller's Tx, so a
// failed call rolls back every transfer it made.
package asset

import (
	"github.com/roach88/flowguard/internal/access"
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace of the token.
const Component = "asset"

// Token is a balance/allowance ledger. A MaxAmount allowance is treated as
// unlimited and is never decremented.
type Token struct {
	address  types.Address
	symbol   string
	decimals uint8
	guard    *access.Guard

	balances   map[types.Address]types.Amount
	allowances map[types.Address]map[types.Address]types.Amount
	supply     types.Amount
}

var _ ledger.Asset = (*Token)(nil)

// New creates a token at address. admin may mint.
func New(address types.Address, symbol string, decimals uint8, admin types.Address) (*Token, error) {
	if address.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("address")
	}
	g, err := access.New(Component, admin)
	if err != nil {
		return nil, err
	}
	return &Token{
		address:    address,
		symbol:     symbol,
		decimals:   decimals,
		guard:      g,
		balances:   make(map[types.Address]types.Amount),
		allowances: make(map[types.Address]map[types.Address]types.Amount),
	}, nil
}

func (t *Token) Address() types.Address { return t.address }
func (t *Token) Symbol() string { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }
func (t *Token) TotalSupply() types.Amount { return t.supply }
func (t *Token) Guard() *access.Guard { return t.guard }

func (t *Token) BalanceOf(owner types.Address) types.Amount {
	return t.balances[owner]
}

func (t *Token) Allowance(owner, spender types.Address) types.Amount {
	return t.allowances[owner][spender]
}

func (t *Token) setBalance(tx *ledger.Tx, owner types.Address, v types.Amount) {
	prev, had := t.balances[owner]
	if v == 0 {
		delete(t.balances, owner)
	} else {
		t.balances[owner] = v
	}
	tx.OnRevert(func() {
		if had {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
}

func (t *Token) setAllowance(tx *ledger.Tx, owner, spender types.Address, v types.Amount) {
	prev := t.Allowance(owner, spender)
	put := func(x types.Amount) {
		m, ok := t.allowances[owner]
		if !ok {
			m = make(map[types.Address]types.Amount)
			t.allowances[owner] = m
		}
		if x == 0 {
			delete(m, spender)
			return
		}
		m[spender] = x
	}
	put(v)
	tx.OnRevert(func() { put(prev) })
}

// Transfer moves amount from from to to.
func (t *Token) Transfer(tx *ledger.Tx, from, to types.Address, amount types.Amount) error {
	if to.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("to")
	}
	fromBal := t.BalanceOf(from)
	newFrom, ok := fromBal.Sub(amount)
	if !ok {
		return ledger.ErrInsufficientBalance.In(Component).WithID(from)
	}
	if from != to {
		newTo, ok := t.BalanceOf(to).Add(amount)
		if !ok {
			return ledger.ErrOverflow.In(Component).WithID(to)
		}
		t.setBalance(tx, from, newFrom)
		t.setBalance(tx, to, newTo)
	}
	tx.Emit(Component, "Transfer", canon.Object{
		"from":  canon.Addr(from),
		"to":    canon.Addr(to),
		"value": canon.Amt(amount),
	}, "from", "to")
	return nil
}

// TransferFrom moves amount from from to to using spender's allowance.
func (t *Token) TransferFrom(tx *ledger.Tx, spender, from, to types.Address, amount types.Amount) error {
	allowed := t.Allowance(from, spender)
	if allowed != types.MaxAmount {
		rest, ok := allowed.Sub(amount)
		if !ok {
			return ledger.ErrInsufficientAllowance.In(Component).WithID(from)
		}
		t.setAllowance(tx, from, spender, rest)
	}
	return t.Transfer(tx, from, to, amount)
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(tx *ledger.Tx, owner, spender types.Address, amount types.Amount) error {
	if spender.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("spender")
	}
	t.setAllowance(tx, owner, spender, amount)
	tx.Emit(Component, "Approval", canon.Object{
		"owner":   canon.Addr(owner),
		"spender": canon.Addr(spender),
		"value":   canon.Amt(amount),
	}, "owner", "spender")
	return nil
}

// Mint creates amount new units for to. The caller must be the token admin.
func (t *Token) Mint(tx *ledger.Tx, to types.Address, amount types.Amount) error {
	if err := t.guard.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if to.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("to")
	}
	supply, ok := t.supply.Add(amount)
	if !ok {
		return ledger.ErrOverflow.In(Component).WithField("amount")
	}
	bal, ok := t.BalanceOf(to).Add(amount)
	if !ok {
		return ledger.ErrOverflow.In(Component).WithField("amount")
	}
	prevSupply := t.supply
	t.supply = supply
	tx.OnRevert(func() { t.supply = prevSupply })
	t.setBalance(tx, to, bal)
	tx.Emit(Component, "Transfer", canon.Object{
		"from":  canon.Addr(types.Address{}),
		"to":    canon.Addr(to),
		"value": canon.Amt(amount),
	}, "from", "to")
	return nil
}
