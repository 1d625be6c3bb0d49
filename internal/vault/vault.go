// Package vault tracks per-depositor principal over a lending pool.
//
// The vault supplies every deposit to the pool on its own behalf and keeps
// a principal per depositor. Interest is not accounted here: the pool's
// interest-bearing balance of the vault grows, and each depositor's share of
// it is proportional to principal.
package vault

import (
	"bytes"
	"slices"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace.
const Component = "vault"

// rayPerPercent converts a ray rate to a percentage: 1e27 / 100.
var rayPerPercent = apd.New(1, 25)

// Vault is the yield vault.
type Vault struct {
	address types.Address
	auth    ledger.Authorizer
	asset   ledger.Asset
	pool    ledger.Pool
	guard   ledger.Guard

	deposits      map[types.Address]types.Amount
	totalDeposits types.Amount
}

// New creates a vault at address over pool.
func New(address types.Address, auth ledger.Authorizer, asset ledger.Asset, pool ledger.Pool) (*Vault, error) {
	if address.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("address")
	}
	if asset == nil || asset.Address().IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("asset")
	}
	if pool == nil || pool.Address().IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("pool")
	}
	return &Vault{
		address:  address,
		auth:     auth,
		asset:    asset,
		pool:     pool,
		deposits: make(map[types.Address]types.Amount),
	}, nil
}

func (v *Vault) setDeposit(tx *ledger.Tx, user types.Address, principal, total types.Amount) {
	prev, had := v.deposits[user]
	prevTotal := v.totalDeposits
	if principal == 0 {
		delete(v.deposits, user)
	} else {
		v.deposits[user] = principal
	}
	v.totalDeposits = total
	tx.OnRevert(func() {
		if had {
			v.deposits[user] = prev
		} else {
			delete(v.deposits, user)
		}
		v.totalDeposits = prevTotal
	})
}

// Deposit pulls amount from the caller and supplies it to the pool. The
// caller must have approved the vault.
func (v *Vault) Deposit(tx *ledger.Tx, amount types.Amount) error {
	if err := v.auth.RequireNotPaused(); err != nil {
		return err
	}
	if amount == 0 {
		return ledger.ErrZeroDeposit.In(Component).WithField("amount")
	}
	principal, ok := v.deposits[tx.Caller].Add(amount)
	if !ok {
		return ledger.ErrOverflow.In(Component).WithField("amount")
	}
	total, ok := v.totalDeposits.Add(amount)
	if !ok {
		return ledger.ErrOverflow.In(Component).WithField("amount")
	}
	release, err := v.guard.Enter(Component)
	if err != nil {
		return err
	}
	defer release()

	v.setDeposit(tx, tx.Caller, principal, total)

	if err := v.asset.TransferFrom(tx, v.address, tx.Caller, v.address, amount); err != nil {
		return err
	}
	if err := v.asset.Approve(tx, v.address, v.pool.Address(), amount); err != nil {
		return err
	}
	if err := v.pool.Supply(tx, v.address, v.asset.Address(), amount, v.address); err != nil {
		return err
	}

	tx.Emit(Component, "Deposited", canon.Object{
		"user":      canon.Addr(tx.Caller),
		"amount":    canon.Amt(amount),
		"timestamp": canon.Int(tx.Time),
	}, "user")
	return nil
}

// Withdraw redeems amount from the pool to the caller.
func (v *Vault) Withdraw(tx *ledger.Tx, amount types.Amount) error {
	if err := v.auth.RequireNotPaused(); err != nil {
		return err
	}
	if amount == 0 {
		return ledger.ErrZeroWithdrawal.In(Component).WithField("amount")
	}
	principal, ok := v.deposits[tx.Caller].Sub(amount)
	if !ok {
		e := ledger.ErrInsufficientDeposit.In(Component).WithField("amount").WithID(tx.Caller)
		e.Message = "withdrawal exceeds deposit of " + v.deposits[tx.Caller].String()
		return e
	}
	total, ok := v.totalDeposits.Sub(amount)
	if !ok {
		return ledger.ErrInsufficientDeposit.In(Component).WithField("total_deposits")
	}
	release, err := v.guard.Enter(Component)
	if err != nil {
		return err
	}
	defer release()

	v.setDeposit(tx, tx.Caller, principal, total)

	if err := v.pool.Withdraw(tx, v.address, v.asset.Address(), amount, tx.Caller); err != nil {
		return err
	}

	tx.Emit(Component, "Withdrawn", canon.Object{
		"user":      canon.Addr(tx.Caller),
		"amount":    canon.Amt(amount),
		"timestamp": canon.Int(tx.Time),
	}, "user")
	return nil
}

// Yield returns user's share of the vault's pool balance above principal,
// as of now. It is never negative.
func (v *Vault) Yield(user types.Address, now int64) types.Amount {
	principal := v.deposits[user]
	if principal == 0 || v.totalDeposits == 0 {
		return 0
	}
	share, ok := v.TotalBalance(now).MulDiv(principal, v.totalDeposits)
	if !ok || share <= principal {
		return 0
	}
	return share - principal
}

// DepositOf returns user's principal.
func (v *Vault) DepositOf(user types.Address) types.Amount { return v.deposits[user] }

func (v *Vault) TotalDeposits() types.Amount { return v.totalDeposits }

// TotalBalance is the vault's interest-bearing balance in the pool.
func (v *Vault) TotalBalance(now int64) types.Amount {
	return v.pool.ATokenBalance(v.address, now)
}

// Depositors lists accounts with non-zero principal ordered by address.
func (v *Vault) Depositors() []types.Address {
	out := make([]types.Address, 0, len(v.deposits))
	for a := range v.deposits {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b types.Address) int { return bytes.Compare(a[:], b[:]) })
	return out
}

// CurrentAPY returns the pool's liquidity rate as a percentage string. The
// pool reports the rate in ray (1e27 = 100% per year), so the percentage is
// rate / 1e25.
func (v *Vault) CurrentAPY(now int64) (string, error) {
	data, err := v.pool.ReserveData(v.asset.Address(), now)
	if err != nil {
		return "", err
	}
	var pct apd.Decimal
	c := apd.BaseContext.WithPrecision(50)
	if _, err := c.Quo(&pct, data.CurrentLiquidityRate, rayPerPercent); err != nil {
		return "", ledger.Errorf(ledger.CodeOverflow, "apy: %v", err).In(Component)
	}
	var reduced apd.Decimal
	reduced.Reduce(&pct)
	return reduced.Text('f'), nil
}

func (v *Vault) Address() types.Address { return v.address }
func (v *Vault) Pool() types.Address { return v.pool.Address() }

// AToken returns the address of the pool's interest-bearing token for the
// vault's asset.
func (v *Vault) AToken(now int64) (types.Address, error) {
	data, err := v.pool.ReserveData(v.asset.Address(), now)
	if err != nil {
		return types.Address{}, err
	}
	return data.ATokenAddress, nil
}
