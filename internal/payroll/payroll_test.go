package payroll

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/access"
	"github.com/roach88/flowguard/internal/asset"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

var (
	ledgerAddr = types.Address{0x10}
	tokenAddr  = types.Address{0x70}
	admin      = types.Address{0xaa}
	payer      = types.Address{0xbb}
	empA       = types.Address{0x01}
	empB       = types.Address{0x02}
	stranger   = types.Address{0x0f}
)

type fixture struct {
	ledger *Ledger
	guard  *access.Guard
	token  *asset.Token
	seq    int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := access.New(Component, admin)
	require.NoError(t, err)
	tok, err := asset.New(tokenAddr, "USDC", 6, admin)
	require.NoError(t, err)
	l, err := New(ledgerAddr, g, tok)
	require.NoError(t, err)

	f := &fixture{ledger: l, guard: g, token: tok}
	require.NoError(t, g.GrantRole(f.tx(admin), types.RolePayer, payer))
	require.NoError(t, tok.Mint(f.tx(admin), payer, 10_000))
	return f
}

func (f *fixture) tx(caller types.Address) *ledger.Tx {
	f.seq++
	return ledger.NewTx("tx", f.seq, caller, 1_700_000_000+f.seq, 137)
}

func (f *fixture) approve(t *testing.T, amount types.Amount) {
	t.Helper()
	require.NoError(t, f.token.Approve(f.tx(payer), payer, ledgerAddr, amount))
}

func TestNew_Validation(t *testing.T) {
	g, err := access.New(Component, admin)
	require.NoError(t, err)
	tok, err := asset.New(tokenAddr, "USDC", 6, admin)
	require.NoError(t, err)

	_, err = New(types.Address{}, g, tok)
	require.ErrorIs(t, err, ledger.ErrZeroAddress)
	_, err = New(ledgerAddr, g, nil)
	require.ErrorIs(t, err, ledger.ErrZeroAddress)
}

func TestAddRecipient(t *testing.T) {
	f := newFixture(t)

	tx := f.tx(admin)
	require.NoError(t, f.ledger.AddRecipient(tx, empA, "Emp1"))
	assert.True(t, f.ledger.IsRecipient(empA))
	assert.Equal(t, "Emp1", f.ledger.RecipientLabel(empA))
	assert.Equal(t, []types.Address{empA}, f.ledger.Recipients())
	require.Len(t, tx.Events(), 1)
	assert.Equal(t, "RecipientAdded", tx.Events()[0].Name)

	require.ErrorIs(t, f.ledger.AddRecipient(f.tx(admin), empA, "again"), ledger.ErrAlreadyRegistered)
	require.ErrorIs(t, f.ledger.AddRecipient(f.tx(admin), types.Address{}, "x"), ledger.ErrZeroAddress)
	require.ErrorIs(t, f.ledger.AddRecipient(f.tx(stranger), empB, "x"), ledger.ErrUnauthorized)
}

func TestRemoveRecipient_SwapRemove(t *testing.T) {
	f := newFixture(t)
	c := types.Address{0x03}
	for _, r := range []types.Address{empA, empB, c} {
		require.NoError(t, f.ledger.AddRecipient(f.tx(admin), r, r.String()))
	}

	require.NoError(t, f.ledger.RemoveRecipient(f.tx(admin), empA))
	assert.Equal(t, []types.Address{c, empB}, f.ledger.Recipients())
	assert.False(t, f.ledger.IsRecipient(empA))
	assert.Empty(t, f.ledger.RecipientLabel(empA))

	require.ErrorIs(t, f.ledger.RemoveRecipient(f.tx(admin), empA), ledger.ErrNotRegistered)
	assert.Equal(t, ledger.KindNotFound, ledger.KindOf(f.ledger.RemoveRecipient(f.tx(admin), empA)))
}

func TestRemoveRecipient_RevertRestoresOrder(t *testing.T) {
	f := newFixture(t)
	c := types.Address{0x03}
	for _, r := range []types.Address{empA, empB, c} {
		require.NoError(t, f.ledger.AddRecipient(f.tx(admin), r, "l"))
	}

	for _, r := range []types.Address{empA, c} {
		tx := f.tx(admin)
		require.NoError(t, f.ledger.RemoveRecipient(tx, r))
		tx.Revert()
		assert.Equal(t, []types.Address{empA, empB, c}, f.ledger.Recipients())
		assert.Equal(t, "l", f.ledger.RecipientLabel(r))
	}

	// membership and position stay consistent after the reverts
	require.NoError(t, f.ledger.RemoveRecipient(f.tx(admin), empB))
	assert.Equal(t, []types.Address{empA, c}, f.ledger.Recipients())
}

func TestExecutePayroll_Scenario(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.AddRecipient(f.tx(admin), empA, "Emp1"))
	require.NoError(t, f.ledger.AddRecipient(f.tx(admin), empB, "Emp2"))
	f.approve(t, 300)

	tx := f.tx(payer)
	id, err := f.ledger.ExecutePayroll(tx, []types.Address{empA, empB}, []types.Amount{100, 200})
	require.NoError(t, err)

	assert.Equal(t, types.Amount(300), f.ledger.TotalDisbursed())
	assert.Equal(t, uint64(1), f.ledger.BatchCount())
	assert.Equal(t, types.Amount(100), f.token.BalanceOf(empA))
	assert.Equal(t, types.Amount(200), f.token.BalanceOf(empB))
	assert.Equal(t, types.Amount(9_700), f.token.BalanceOf(payer))

	b, err := f.ledger.Batch(id)
	require.NoError(t, err)
	assert.Equal(t, Batch{ID: id, Payer: payer, TotalAmount: 300, RecipientCount: 2, ExecutedAt: tx.Time}, b)
	assert.Equal(t, []types.Hash{id}, f.ledger.BatchIDs(0, 10))

	var names []string
	for _, e := range tx.Events() {
		if e.Component == Component {
			names = append(names, e.Name)
		}
	}
	assert.Equal(t, []string{"PaymentDisbursed", "PaymentDisbursed", "PayrollExecuted"}, names)
}

func TestExecutePayroll_TotalsGrowBySum(t *testing.T) {
	f := newFixture(t)
	f.approve(t, types.MaxAmount)

	batches := [][]types.Amount{{1}, {5, 7}, {10, 20, 30}}
	var want types.Amount
	for _, amounts := range batches {
		recipients := make([]types.Address, len(amounts))
		for i := range amounts {
			recipients[i] = types.Address{byte(0x20 + i)}
		}
		before := f.ledger.TotalDisbursed()
		_, err := f.ledger.ExecutePayroll(f.tx(payer), recipients, amounts)
		require.NoError(t, err)
		sum, _ := types.Sum(amounts)
		assert.Equal(t, before+sum, f.ledger.TotalDisbursed())
		want += sum
	}
	assert.Equal(t, want, f.ledger.TotalDisbursed())
	assert.Equal(t, uint64(3), f.ledger.BatchCount())
}

func TestExecutePayroll_IdenticalBatchesGetDistinctIDs(t *testing.T) {
	f := newFixture(t)
	f.approve(t, types.MaxAmount)

	tx1 := ledger.NewTx("a", 1, payer, 5, 137)
	tx2 := ledger.NewTx("b", 2, payer, 5, 137)
	id1, err := f.ledger.ExecutePayroll(tx1, []types.Address{empA}, []types.Amount{1})
	require.NoError(t, err)
	id2, err := f.ledger.ExecutePayroll(tx2, []types.Address{empA}, []types.Amount{1})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestExecutePayroll_Errors(t *testing.T) {
	f := newFixture(t)
	f.approve(t, 1_000)

	_, err := f.ledger.ExecutePayroll(f.tx(stranger), []types.Address{empA}, []types.Amount{1})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = f.ledger.ExecutePayroll(f.tx(payer), nil, nil)
	require.ErrorIs(t, err, ledger.ErrEmptyRecipients)

	_, err = f.ledger.ExecutePayroll(f.tx(payer), []types.Address{empA}, []types.Amount{1, 2})
	require.ErrorIs(t, err, ledger.ErrLengthMismatch)

	_, err = f.ledger.ExecutePayroll(f.tx(payer), []types.Address{{}}, []types.Amount{1})
	require.ErrorIs(t, err, ledger.ErrZeroRecipient)

	_, err = f.ledger.ExecutePayroll(f.tx(payer), []types.Address{empA}, []types.Amount{0})
	require.ErrorIs(t, err, ledger.ErrZeroAmount)

	assert.Equal(t, types.Amount(0), f.ledger.TotalDisbursed())
}

func TestExecutePayroll_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.approve(t, 150)

	tx := f.tx(payer)
	_, err := f.ledger.ExecutePayroll(tx, []types.Address{empA, empB}, []types.Amount{100, 200})
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	tx.Revert()

	assert.Equal(t, types.Amount(0), f.token.BalanceOf(empA))
	assert.Equal(t, types.Amount(0), f.ledger.TotalDisbursed())
	assert.Equal(t, uint64(0), f.ledger.BatchCount())
	assert.Equal(t, types.Amount(150), f.token.Allowance(payer, ledgerAddr))
	assert.Empty(t, tx.Events())
}

func TestPause_GatesOnlyExecution(t *testing.T) {
	f := newFixture(t)
	f.approve(t, 100)
	require.NoError(t, f.guard.Pause(f.tx(admin)))

	_, err := f.ledger.ExecutePayroll(f.tx(payer), []types.Address{empA}, []types.Amount{1})
	require.ErrorIs(t, err, ledger.ErrPaused)
	assert.Equal(t, ledger.KindInvalidState, ledger.KindOf(err))

	require.NoError(t, f.ledger.AddRecipient(f.tx(admin), empA, "Emp1"))
	require.NoError(t, f.ledger.RemoveRecipient(f.tx(admin), empA))

	require.NoError(t, f.guard.Unpause(f.tx(admin)))
	_, err = f.ledger.ExecutePayroll(f.tx(payer), []types.Address{empA}, []types.Amount{1})
	require.NoError(t, err)
}

func TestBatch_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Batch(types.Hash{1})
	require.ErrorIs(t, err, ledger.ErrBatchNotFound)
	assert.Equal(t, ledger.KindNotFound, ledger.KindOf(err))
	assert.Equal(t, tokenAddr, f.ledger.Asset())
}
