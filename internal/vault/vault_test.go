package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/access"
	"github.com/roach88/flowguard/internal/asset"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/pool"
	"github.com/roach88/flowguard/internal/types"
)

const (
	start   = int64(1_700_000_000)
	tenPct  = "100000000000000000000000000"
	yearSec = pool.SecondsPerYear
)

var (
	vaultAddr  = types.Address{0x40}
	poolAddr   = types.Address{0x50}
	tokenAddr  = types.Address{0x70}
	aTokenAddr = types.Address{0x71}
	admin      = types.Address{0xaa}
	alice      = types.Address{0x01}
	bob        = types.Address{0x02}
)

type fixture struct {
	vault *Vault
	guard *access.Guard
	token *asset.Token
	pool  *pool.Pool
	seq   int64
}

func newFixture(t *testing.T, rate string) *fixture {
	t.Helper()
	tok, err := asset.New(tokenAddr, "USDC", 6, admin)
	require.NoError(t, err)
	p, err := pool.New(poolAddr, admin)
	require.NoError(t, err)
	r, err := pool.ParseRay(rate)
	require.NoError(t, err)
	require.NoError(t, p.AddReserve(tok, aTokenAddr, r, start))
	g, err := access.New(Component, admin)
	require.NoError(t, err)
	v, err := New(vaultAddr, g, tok, p)
	require.NoError(t, err)

	f := &fixture{vault: v, guard: g, token: tok, pool: p}
	for _, u := range []types.Address{alice, bob, admin} {
		require.NoError(t, tok.Mint(f.at(admin, start), u, 1_000_000))
		require.NoError(t, tok.Approve(f.at(u, start), u, vaultAddr, types.MaxAmount))
	}
	return f
}

func (f *fixture) at(caller types.Address, time int64) *ledger.Tx {
	f.seq++
	return ledger.NewTx("tx", f.seq, caller, time, 137)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, "0")

	tx := f.at(alice, start)
	require.NoError(t, f.vault.Deposit(tx, 1_000))
	assert.Equal(t, types.Amount(1_000), f.vault.DepositOf(alice))
	assert.Equal(t, types.Amount(1_000), f.vault.TotalDeposits())
	assert.Equal(t, types.Amount(1_000), f.vault.TotalBalance(start))
	assert.Equal(t, types.Amount(1_000), f.token.BalanceOf(poolAddr))
	assert.Equal(t, types.Amount(0), f.token.BalanceOf(vaultAddr))
	assert.Equal(t, []types.Address{alice}, f.vault.Depositors())

	last := tx.Events()[len(tx.Events())-1]
	assert.Equal(t, "Deposited", last.Name)
}

func TestDeposit_Errors(t *testing.T) {
	f := newFixture(t, "0")
	require.ErrorIs(t, f.vault.Deposit(f.at(alice, start), 0), ledger.ErrZeroDeposit)

	poor := types.Address{0x09}
	require.NoError(t, f.token.Approve(f.at(poor, start), poor, vaultAddr, 10))
	tx := f.at(poor, start)
	require.ErrorIs(t, f.vault.Deposit(tx, 5), ledger.ErrInsufficientBalance)
	tx.Revert()
	assert.Equal(t, types.Amount(0), f.vault.DepositOf(poor))
	assert.Equal(t, types.Amount(0), f.vault.TotalDeposits())
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, "0")
	require.NoError(t, f.vault.Deposit(f.at(alice, start), 1_000))

	require.NoError(t, f.vault.Withdraw(f.at(alice, start+10), 400))
	assert.Equal(t, types.Amount(600), f.vault.DepositOf(alice))
	assert.Equal(t, types.Amount(600), f.vault.TotalDeposits())
	assert.Equal(t, types.Amount(999_400), f.token.BalanceOf(alice))

	err := f.vault.Withdraw(f.at(alice, start+10), 601)
	require.ErrorIs(t, err, ledger.ErrInsufficientDeposit)
	assert.Equal(t, ledger.KindInsufficientFunds, ledger.KindOf(err))
	require.ErrorIs(t, f.vault.Withdraw(f.at(alice, start), 0), ledger.ErrZeroWithdrawal)
	require.ErrorIs(t, f.vault.Withdraw(f.at(bob, start), 1), ledger.ErrInsufficientDeposit)

	require.NoError(t, f.vault.Withdraw(f.at(alice, start+10), 600))
	assert.Empty(t, f.vault.Depositors())
}

func TestSumOfDepositsEqualsTotal(t *testing.T) {
	f := newFixture(t, "0")
	ops := []struct {
		user    types.Address
		deposit bool
		amount  types.Amount
	}{
		{alice, true, 500}, {bob, true, 300}, {alice, false, 200},
		{admin, true, 50}, {bob, false, 300}, {alice, true, 1},
	}
	for _, op := range ops {
		tx := f.at(op.user, start)
		if op.deposit {
			require.NoError(t, f.vault.Deposit(tx, op.amount))
		} else {
			require.NoError(t, f.vault.Withdraw(tx, op.amount))
		}
		var sum types.Amount
		for _, u := range f.vault.Depositors() {
			sum += f.vault.DepositOf(u)
		}
		assert.Equal(t, f.vault.TotalDeposits(), sum)
		assert.LessOrEqual(t, f.vault.TotalDeposits(), f.vault.TotalBalance(start))
	}
}

func TestYield_ProportionalToPrincipal(t *testing.T) {
	f := newFixture(t, tenPct)
	require.NoError(t, f.vault.Deposit(f.at(alice, start), 30_000))
	require.NoError(t, f.vault.Deposit(f.at(bob, start), 10_000))

	later := start + yearSec
	assert.Equal(t, types.Amount(44_000), f.vault.TotalBalance(later))
	assert.Equal(t, types.Amount(3_000), f.vault.Yield(alice, later))
	assert.Equal(t, types.Amount(1_000), f.vault.Yield(bob, later))
	assert.Equal(t, types.Amount(0), f.vault.Yield(admin, later))
}

func TestYield_ClampsToZero(t *testing.T) {
	f := newFixture(t, "0")
	require.NoError(t, f.vault.Deposit(f.at(alice, start), 100))
	assert.Equal(t, types.Amount(0), f.vault.Yield(alice, start+yearSec))
}

func TestWithdraw_PrincipalAfterInterest(t *testing.T) {
	f := newFixture(t, tenPct)
	require.NoError(t, f.vault.Deposit(f.at(alice, start), 10_000))

	later := start + yearSec
	require.NoError(t, f.vault.Withdraw(f.at(alice, later), 10_000))
	assert.Equal(t, types.Amount(0), f.vault.TotalDeposits())
	assert.Equal(t, types.Amount(1_000), f.vault.TotalBalance(later))
}

func TestWithdraw_PartialsAtRaisedIndex(t *testing.T) {
	// 50% per year: the index is 1.5 ray after a year.
	f := newFixture(t, "500000000000000000000000000")
	require.NoError(t, f.pool.Fund(f.at(admin, start), tokenAddr, 10_000))

	later := start + yearSec
	require.NoError(t, f.vault.Deposit(f.at(alice, later), 100))
	require.NoError(t, f.vault.Deposit(f.at(bob, later), 7))

	for _, amount := range []types.Amount{2, 1, 3, 1} {
		require.NoError(t, f.vault.Withdraw(f.at(alice, later), amount))
		assert.LessOrEqual(t, f.vault.TotalDeposits(), f.vault.TotalBalance(later))
	}
	require.NoError(t, f.vault.Withdraw(f.at(bob, later), 5))
	assert.LessOrEqual(t, f.vault.TotalDeposits(), f.vault.TotalBalance(later))

	require.NoError(t, f.vault.Withdraw(f.at(alice, later), 93))
	require.NoError(t, f.vault.Withdraw(f.at(bob, later), 2))
	assert.Equal(t, types.Amount(0), f.vault.TotalDeposits())
	assert.Empty(t, f.vault.Depositors())
	assert.Equal(t, types.Amount(1_000_000), f.token.BalanceOf(alice))
	assert.Equal(t, types.Amount(1_000_000), f.token.BalanceOf(bob))
}

func TestPause_GatesDepositAndWithdraw(t *testing.T) {
	f := newFixture(t, "0")
	require.NoError(t, f.vault.Deposit(f.at(alice, start), 100))
	require.NoError(t, f.guard.Pause(f.at(admin, start)))

	require.ErrorIs(t, f.vault.Deposit(f.at(alice, start), 1), ledger.ErrPaused)
	require.ErrorIs(t, f.vault.Withdraw(f.at(alice, start), 1), ledger.ErrPaused)
}

func TestCurrentAPY(t *testing.T) {
	f := newFixture(t, tenPct)
	apy, err := f.vault.CurrentAPY(start)
	require.NoError(t, err)
	assert.Equal(t, "10", apy)

	rate, err := pool.ParseRay("35000000000000000000000000")
	require.NoError(t, err)
	require.NoError(t, f.pool.SetLiquidityRate(f.at(admin, start), tokenAddr, rate))
	apy, err = f.vault.CurrentAPY(start)
	require.NoError(t, err)
	assert.Equal(t, "3.5", apy)

	aToken, err := f.vault.AToken(start)
	require.NoError(t, err)
	assert.Equal(t, aTokenAddr, aToken)
	assert.Equal(t, poolAddr, f.vault.Pool())
}
