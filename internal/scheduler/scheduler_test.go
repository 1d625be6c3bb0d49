package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/access"
	"github.com/roach88/flowguard/internal/asset"
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/sig"
	"github.com/roach88/flowguard/internal/types"
)

const (
	chainID = 137
	now     = int64(1_700_000_000)
)

var (
	schedAddr = types.Address{0x30}
	coreAddr  = types.Address{0x10}
	tokenAddr = types.Address{0x70}
	admin     = types.Address{0xaa}
	empA      = types.Address{0x01}
	empB      = types.Address{0x02}
	stranger  = types.Address{0x0f}

	agentKey = sig.MustDeriveKey([]byte("test"), "agent")
	agent    = agentKey.Address()
)

type fixture struct {
	sched *Scheduler
	guard *access.Guard
	token *asset.Token
	seq   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g, err := access.New(Component, admin)
	require.NoError(t, err)
	tok, err := asset.New(tokenAddr, "USDC", 6, admin)
	require.NoError(t, err)
	s, err := New(schedAddr, g, tok, coreAddr)
	require.NoError(t, err)

	f := &fixture{sched: s, guard: g, token: tok}
	require.NoError(t, tok.Mint(f.at(admin, now), admin, 10_000))
	require.NoError(t, tok.Approve(f.at(admin, now), admin, schedAddr, types.MaxAmount))
	require.NoError(t, s.RegisterAgent(f.at(admin, now), agent))
	return f
}

func (f *fixture) at(caller types.Address, time int64) *ledger.Tx {
	f.seq++
	return ledger.NewTx("tx", f.seq, caller, time, chainID)
}

func (f *fixture) schedule(t *testing.T, recipients []types.Address, amounts []types.Amount, after int64) types.Hash {
	t.Helper()
	id, err := f.sched.SchedulePayroll(f.at(admin, now), recipients, amounts, after)
	require.NoError(t, err)
	return id
}

func execProof(key *sig.Key, payrollID, nonce types.Hash) []byte {
	return key.Sign(canon.ExecutionMessage(payrollID, nonce, chainID, schedAddr))
}

func nonce(n byte) types.Hash { return types.Hash{0xee, n} }

func TestRegisterAgent(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.sched.IsAgent(agent))

	require.ErrorIs(t, f.sched.RegisterAgent(f.at(admin, now), agent), ledger.ErrAlreadyRegistered)
	require.ErrorIs(t, f.sched.RegisterAgent(f.at(admin, now), types.Address{}), ledger.ErrZeroAddress)
	require.ErrorIs(t, f.sched.RegisterAgent(f.at(stranger, now), empA), ledger.ErrUnauthorized)

	tx := f.at(admin, now)
	require.NoError(t, f.sched.RevokeAgent(tx, agent))
	assert.False(t, f.sched.IsAgent(agent))
	names := []string{}
	for _, e := range tx.Events() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"RoleRevoked", "AgentRevoked"}, names)

	err := f.sched.RevokeAgent(f.at(admin, now), agent)
	require.ErrorIs(t, err, ledger.ErrNotRegistered)
	assert.Equal(t, ledger.KindNotFound, ledger.KindOf(err))
}

func TestSchedulePayroll(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA, empB}, []types.Amount{100, 200}, now+3600)

	p, err := f.sched.Payroll(id)
	require.NoError(t, err)
	assert.Equal(t, admin, p.Creator)
	assert.Equal(t, types.Amount(300), p.TotalAmount)
	assert.Equal(t, StatusScheduled, p.Status)
	assert.False(t, p.Executed)
	assert.Equal(t, uint64(1), f.sched.TotalScheduled(), "counts payrolls, not amounts")
	assert.Equal(t, types.Amount(300), f.sched.TotalScheduledAmount())
	assert.Equal(t, types.Amount(0), f.token.BalanceOf(empA), "scheduling moves no funds")
	assert.Equal(t, []types.Hash{id}, f.sched.PayrollIDs(0, 10))
}

func TestSchedulePayroll_Errors(t *testing.T) {
	f := newFixture(t)
	one := []types.Address{empA}
	amt := []types.Amount{1}

	_, err := f.sched.SchedulePayroll(f.at(stranger, now), one, amt, now+1)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = f.sched.SchedulePayroll(f.at(admin, now), nil, nil, now+1)
	require.ErrorIs(t, err, ledger.ErrEmptyRecipients)

	_, err = f.sched.SchedulePayroll(f.at(admin, now), one, []types.Amount{1, 2}, now+1)
	require.ErrorIs(t, err, ledger.ErrLengthMismatch)

	_, err = f.sched.SchedulePayroll(f.at(admin, now), one, amt, now)
	require.ErrorIs(t, err, ledger.ErrInvalidScheduleTime)
	assert.Equal(t, ledger.KindInvalidInput, ledger.KindOf(err))

	_, err = f.sched.SchedulePayroll(f.at(admin, now), one, amt, now-10)
	require.ErrorIs(t, err, ledger.ErrInvalidScheduleTime)
}

func TestExecute_NotDueThenDue(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA}, []types.Amount{500}, now+3600)

	err := f.sched.ExecuteScheduledPayroll(f.at(agent, now+3599), id, nonce(1), execProof(agentKey, id, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrPayrollNotDue)
	assert.False(t, f.sched.IsNonceUsed(nonce(1)))

	tx := f.at(agent, now+3600)
	require.NoError(t, f.sched.ExecuteScheduledPayroll(tx, id, nonce(1), execProof(agentKey, id, nonce(1))))

	p, err := f.sched.Payroll(id)
	require.NoError(t, err)
	assert.True(t, p.Executed)
	assert.Equal(t, StatusExecuted, p.Status)
	assert.Equal(t, now+3600, p.ExecutedAt)
	assert.Equal(t, agent, p.ExecutedBy)
	assert.Equal(t, types.Amount(500), f.token.BalanceOf(empA))
	assert.Equal(t, uint64(1), f.sched.TotalExecuted())
	assert.Equal(t, types.Amount(500), f.sched.TotalExecutedAmount())
	assert.True(t, f.sched.IsNonceUsed(nonce(1)))
}

func TestExecute_NonceIsGloballyConsumed(t *testing.T) {
	f := newFixture(t)
	first := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)
	second := f.schedule(t, []types.Address{empB}, []types.Amount{1}, now+10)

	require.NoError(t, f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), first, nonce(7), execProof(agentKey, first, nonce(7))))

	for _, id := range []types.Hash{first, second} {
		err := f.sched.ExecuteScheduledPayroll(f.at(agent, now+20), id, nonce(7), execProof(agentKey, id, nonce(7)))
		require.ErrorIs(t, err, ledger.ErrNonceAlreadyUsed)
		assert.Equal(t, ledger.KindReplayDetected, ledger.KindOf(err))
	}

	require.NoError(t, f.sched.ExecuteScheduledPayroll(f.at(agent, now+20), second, nonce(8), execProof(agentKey, second, nonce(8))))
}

func TestExecute_AlreadyExecuted(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)
	require.NoError(t, f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), id, nonce(1), execProof(agentKey, id, nonce(1))))

	err := f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), id, nonce(2), execProof(agentKey, id, nonce(2)))
	require.ErrorIs(t, err, ledger.ErrAlreadyExecuted)
}

func TestExecute_SignatureMustBeCallers(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)

	other := sig.MustDeriveKey([]byte("test"), "other")
	err := f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), id, nonce(1), execProof(other, id, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrInvalidSignature)

	// signature over a different nonce
	err = f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), id, nonce(1), execProof(agentKey, id, nonce(2)))
	require.ErrorIs(t, err, ledger.ErrInvalidSignature)

	// a valid signature from a non-agent is rejected by the role check
	require.NoError(t, f.sched.RegisterAgent(f.at(admin, now), other.Address()))
	require.NoError(t, f.sched.RevokeAgent(f.at(admin, now), other.Address()))
	err = f.sched.ExecuteScheduledPayroll(f.at(other.Address(), now+10), id, nonce(1), execProof(other, id, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	assert.False(t, f.sched.IsNonceUsed(nonce(1)))
}

func TestExecute_NotFound(t *testing.T) {
	f := newFixture(t)
	err := f.sched.ExecuteScheduledPayroll(f.at(agent, now), types.Hash{1}, nonce(1), execProof(agentKey, types.Hash{1}, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrPayrollNotFound)
}

func TestExecute_FailedTransferRevertsNonce(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA, empB}, []types.Amount{9_000, 2_000}, now+10)

	tx := f.at(agent, now+10)
	err := f.sched.ExecuteScheduledPayroll(tx, id, nonce(1), execProof(agentKey, id, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	tx.Revert()

	assert.False(t, f.sched.IsNonceUsed(nonce(1)))
	p, err := f.sched.Payroll(id)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, p.Status)
	assert.Equal(t, uint64(0), f.sched.TotalExecuted())
	assert.Equal(t, types.Amount(0), f.sched.TotalExecutedAmount())
	assert.Equal(t, types.Amount(0), f.token.BalanceOf(empA))
}

func TestCancelScheduledPayroll(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)

	require.ErrorIs(t, f.sched.CancelScheduledPayroll(f.at(stranger, now), id), ledger.ErrUnauthorized)
	require.NoError(t, f.sched.CancelScheduledPayroll(f.at(admin, now+1), id))

	p, err := f.sched.Payroll(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, p.Status)
	assert.Equal(t, now+1, p.CancelledAt)

	require.ErrorIs(t, f.sched.CancelScheduledPayroll(f.at(admin, now), id), ledger.ErrPayrollCancelled)
	err = f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), id, nonce(1), execProof(agentKey, id, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrPayrollCancelled)

	require.ErrorIs(t, f.sched.CancelScheduledPayroll(f.at(admin, now), types.Hash{3}), ledger.ErrPayrollNotFound)

	done := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)
	require.NoError(t, f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), done, nonce(2), execProof(agentKey, done, nonce(2))))
	require.ErrorIs(t, f.sched.CancelScheduledPayroll(f.at(admin, now+11), done), ledger.ErrAlreadyExecuted)
}

func TestPause_GatesSchedulingAndExecution(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)
	require.NoError(t, f.guard.Pause(f.at(admin, now)))

	_, err := f.sched.SchedulePayroll(f.at(admin, now), []types.Address{empA}, []types.Amount{1}, now+10)
	require.ErrorIs(t, err, ledger.ErrPaused)
	err = f.sched.ExecuteScheduledPayroll(f.at(agent, now+10), id, nonce(1), execProof(agentKey, id, nonce(1)))
	require.ErrorIs(t, err, ledger.ErrPaused)
	require.ErrorIs(t, f.sched.CancelScheduledPayroll(f.at(admin, now), id), ledger.ErrPaused)

	// agent management stays available
	require.NoError(t, f.sched.RegisterAgent(f.at(admin, now), empB))
}

func TestPayroll_ReturnsCopy(t *testing.T) {
	f := newFixture(t)
	id := f.schedule(t, []types.Address{empA}, []types.Amount{1}, now+10)
	p, err := f.sched.Payroll(id)
	require.NoError(t, err)
	p.Amounts[0] = 999

	again, err := f.sched.Payroll(id)
	require.NoError(t, err)
	assert.Equal(t, types.Amount(1), again.Amounts[0])
	assert.Equal(t, coreAddr, f.sched.Core())
}
