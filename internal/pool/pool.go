// Package pool is an in-memory lending pool used as the external yield
// primitive. Suppliers receive interest-bearing balances stored as scaled
// amounts in ray units; the liquidity index grows linearly with the
// configured rate, so a holder's balance is scaled × index / 1e54.
//
// Minting rounds the scaled amount up and burning rounds it down, so a
// holder's scaled × index never falls below what they supplied minus what
// they withdrew.
package pool

import (
	"bytes"
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/flowguard/internal/access"
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace of the pool.
const Component = "pool"

type reserve struct {
	asset      ledger.Asset
	aToken     types.Address
	rate       *apd.Decimal
	index      *apd.Decimal
	lastUpdate int64
	scaled     map[types.Address]*apd.Decimal
	total      *apd.Decimal
}

// Pool holds one reserve per supported asset.
type Pool struct {
	address  types.Address
	guard    *access.Guard
	reserves map[types.Address]*reserve
}

var _ ledger.Pool = (*Pool)(nil)

// New creates an empty pool administered by admin.
func New(address, admin types.Address) (*Pool, error) {
	if address.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("address")
	}
	g, err := access.New(Component, admin)
	if err != nil {
		return nil, err
	}
	return &Pool{address: address, guard: g, reserves: make(map[types.Address]*reserve)}, nil
}

// AddReserve lists asset with its interest-bearing token address and initial
// liquidity rate in ray. The index starts at 1 ray at time start.
func (p *Pool) AddReserve(asset ledger.Asset, aToken types.Address, rate *apd.Decimal, start int64) error {
	if aToken.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("a_token")
	}
	if _, ok := p.reserves[asset.Address()]; ok {
		return ledger.ErrAlreadyRegistered.In(Component).WithID(asset.Address())
	}
	p.reserves[asset.Address()] = &reserve{
		asset:      asset,
		aToken:     aToken,
		rate:       new(apd.Decimal).Set(rate),
		index:      new(apd.Decimal).Set(Ray),
		lastUpdate: start,
		scaled:     make(map[types.Address]*apd.Decimal),
		total:      new(apd.Decimal),
	}
	return nil
}

func (p *Pool) Address() types.Address { return p.address }
func (p *Pool) Guard() *access.Guard { return p.guard }

func (p *Pool) reserve(asset types.Address) (*reserve, error) {
	r, ok := p.reserves[asset]
	if !ok {
		return nil, ledger.ErrNotRegistered.In(Component).WithID(asset)
	}
	return r, nil
}

// update brings the reserve index forward to tx.Time.
func (p *Pool) update(tx *ledger.Tx, r *reserve) error {
	if tx.Time <= r.lastUpdate {
		return nil
	}
	next, err := accrue(r.index, r.rate, tx.Time-r.lastUpdate)
	if err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "accrue index: %v", err).In(Component)
	}
	prevIndex, prevTime := r.index, r.lastUpdate
	r.index, r.lastUpdate = next, tx.Time
	tx.OnRevert(func() { r.index, r.lastUpdate = prevIndex, prevTime })
	return nil
}

func (p *Pool) setScaled(tx *ledger.Tx, r *reserve, holder types.Address, v, total *apd.Decimal) {
	prev, had := r.scaled[holder]
	prevTotal := r.total
	if v.IsZero() {
		delete(r.scaled, holder)
	} else {
		r.scaled[holder] = v
	}
	r.total = total
	tx.OnRevert(func() {
		if had {
			r.scaled[holder] = prev
		} else {
			delete(r.scaled, holder)
		}
		r.total = prevTotal
	})
}

func scaledOf(r *reserve, holder types.Address) *apd.Decimal {
	if s, ok := r.scaled[holder]; ok {
		return s
	}
	return new(apd.Decimal)
}

// Supply pulls amount of asset from caller and credits onBehalfOf with
// interest-bearing balance. caller must have approved the pool.
func (p *Pool) Supply(tx *ledger.Tx, caller, asset types.Address, amount types.Amount, onBehalfOf types.Address) error {
	r, err := p.reserve(asset)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ledger.ErrZeroAmount.In(Component).WithField("amount")
	}
	if onBehalfOf.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("on_behalf_of")
	}
	if err := p.update(tx, r); err != nil {
		return err
	}
	mint, err := mulDiv(fromAmount(amount), raySquared, r.index, true)
	if err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "scale supply: %v", err).In(Component)
	}
	var bal, total apd.Decimal
	if _, err := arith.Add(&bal, scaledOf(r, onBehalfOf), mint); err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "credit: %v", err).In(Component)
	}
	if _, err := arith.Add(&total, r.total, mint); err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "credit: %v", err).In(Component)
	}
	p.setScaled(tx, r, onBehalfOf, &bal, &total)

	if err := r.asset.TransferFrom(tx, p.address, caller, p.address, amount); err != nil {
		return err
	}
	tx.Emit(Component, "Supply", canon.Object{
		"reserve":      canon.Addr(asset),
		"user":         canon.Addr(caller),
		"on_behalf_of": canon.Addr(onBehalfOf),
		"amount":       canon.Amt(amount),
	}, "reserve", "on_behalf_of")
	return nil
}

// Withdraw burns caller's balance and sends amount of asset to to.
func (p *Pool) Withdraw(tx *ledger.Tx, caller, asset types.Address, amount types.Amount, to types.Address) error {
	r, err := p.reserve(asset)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ledger.ErrZeroAmount.In(Component).WithField("amount")
	}
	if to.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("to")
	}
	if err := p.update(tx, r); err != nil {
		return err
	}
	held := scaledOf(r, caller)
	balance, err := mulDiv(held, r.index, raySquared, false)
	if err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "balance: %v", err).In(Component)
	}
	if balance.Cmp(fromAmount(amount)) < 0 {
		return ledger.ErrInsufficientBalance.In(Component).WithID(caller)
	}
	// Withdrawing the whole balance burns the sub-unit remainder with it.
	burn := held
	if balance.Cmp(fromAmount(amount)) > 0 {
		burn, err = mulDiv(fromAmount(amount), raySquared, r.index, false)
		if err != nil {
			return ledger.Errorf(ledger.CodeOverflow, "scale withdrawal: %v", err).In(Component)
		}
	}
	if r.asset.BalanceOf(p.address) < amount {
		return ledger.ErrInsufficientLiquidity.In(Component).WithID(asset)
	}
	var bal, total apd.Decimal
	if _, err := arith.Sub(&bal, held, burn); err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "debit: %v", err).In(Component)
	}
	if _, err := arith.Sub(&total, r.total, burn); err != nil {
		return ledger.Errorf(ledger.CodeOverflow, "debit: %v", err).In(Component)
	}
	if total.Negative {
		total.SetInt64(0)
	}
	p.setScaled(tx, r, caller, &bal, &total)

	if err := r.asset.Transfer(tx, p.address, to, amount); err != nil {
		return err
	}
	tx.Emit(Component, "Withdraw", canon.Object{
		"reserve": canon.Addr(asset),
		"user":    canon.Addr(caller),
		"to":      canon.Addr(to),
		"amount":  canon.Amt(amount),
	}, "reserve", "user", "to")
	return nil
}

// Fund transfers amount of asset from the caller into the pool as liquidity
// that backs accrued interest.
func (p *Pool) Fund(tx *ledger.Tx, asset types.Address, amount types.Amount) error {
	r, err := p.reserve(asset)
	if err != nil {
		return err
	}
	if amount == 0 {
		return ledger.ErrZeroAmount.In(Component).WithField("amount")
	}
	if err := r.asset.Transfer(tx, tx.Caller, p.address, amount); err != nil {
		return err
	}
	tx.Emit(Component, "Funded", canon.Object{
		"reserve": canon.Addr(asset),
		"sender":  canon.Addr(tx.Caller),
		"amount":  canon.Amt(amount),
	}, "reserve", "sender")
	return nil
}

// SetLiquidityRate changes the supply rate of a reserve after accruing
// interest at the old rate. Pool admin only.
func (p *Pool) SetLiquidityRate(tx *ledger.Tx, asset types.Address, rate *apd.Decimal) error {
	if err := p.guard.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	r, err := p.reserve(asset)
	if err != nil {
		return err
	}
	if rate.Negative {
		return ledger.ErrInvalidArgument.In(Component).WithField("rate")
	}
	if err := p.update(tx, r); err != nil {
		return err
	}
	prev := r.rate
	r.rate = new(apd.Decimal).Set(rate)
	tx.OnRevert(func() { r.rate = prev })
	tx.Emit(Component, "ReserveDataUpdated", canon.Object{
		"reserve":         canon.Addr(asset),
		"liquidity_rate":  canon.String(r.rate.Text('f')),
		"liquidity_index": canon.String(r.index.Text('f')),
	}, "reserve")
	return nil
}

// ReserveData reports the reserve as of now without mutating it.
func (p *Pool) ReserveData(asset types.Address, now int64) (ledger.ReserveData, error) {
	r, err := p.reserve(asset)
	if err != nil {
		return ledger.ReserveData{}, err
	}
	index, err := p.indexAt(r, now)
	if err != nil {
		return ledger.ReserveData{}, err
	}
	return ledger.ReserveData{
		CurrentLiquidityRate: new(apd.Decimal).Set(r.rate),
		LiquidityIndex:       index,
		ATokenAddress:        r.aToken,
		LastUpdateTimestamp:  r.lastUpdate,
	}, nil
}

func (p *Pool) indexAt(r *reserve, now int64) (*apd.Decimal, error) {
	index, err := accrue(r.index, r.rate, now-r.lastUpdate)
	if err != nil {
		return nil, ledger.Errorf(ledger.CodeOverflow, "accrue index: %v", err).In(Component)
	}
	return index, nil
}

// ATokenBalance returns holder's balance across all reserves as of now.
// Balances that exceed the amount range saturate at MaxAmount.
func (p *Pool) ATokenBalance(holder types.Address, now int64) types.Amount {
	var total types.Amount
	for _, r := range p.reserves {
		total = saturatingAdd(total, p.balanceIn(r, holder, now))
	}
	return total
}

// BalanceOf returns holder's balance in the reserve of asset as of now.
func (p *Pool) BalanceOf(asset, holder types.Address, now int64) (types.Amount, error) {
	r, err := p.reserve(asset)
	if err != nil {
		return 0, err
	}
	return p.balanceIn(r, holder, now), nil
}

func (p *Pool) balanceIn(r *reserve, holder types.Address, now int64) types.Amount {
	s, ok := r.scaled[holder]
	if !ok {
		return 0
	}
	index, err := p.indexAt(r, now)
	if err != nil {
		return types.MaxAmount
	}
	bal, err := mulDiv(s, index, raySquared, false)
	if err != nil {
		return types.MaxAmount
	}
	amt, ok := toAmount(bal)
	if !ok {
		return types.MaxAmount
	}
	return amt
}

// Holders lists accounts with a non-zero scaled balance in asset's reserve.
func (p *Pool) Holders(asset types.Address) []types.Address {
	r, ok := p.reserves[asset]
	if !ok {
		return []types.Address{}
	}
	out := make([]types.Address, 0, len(r.scaled))
	for a := range r.scaled {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b types.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}

func saturatingAdd(a, b types.Amount) types.Amount {
	s, ok := a.Add(b)
	if !ok {
		return types.MaxAmount
	}
	return s
}
