package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/store"
	"github.com/roach88/flowguard/internal/testutil"
	"github.com/roach88/flowguard/internal/types"
)

const genesis = int64(1_700_000_000)

var (
	admin = types.MustParseAddress("0x00000000000000000000000000000000000000aa")
	alice = types.MustParseAddress("0x0000000000000000000000000000000000000001")
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// memLog is an in-memory Log that can be told to fail writes.
type memLog struct {
	mu   sync.Mutex
	recs []store.CallRecord
	fail error
}

func (l *memLog) WriteCall(_ context.Context, rec store.CallRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.recs = append(l.recs, rec)
	return nil
}

func (l *memLog) ReadCalls(_ context.Context, afterSeq int64) ([]store.CallRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []store.CallRecord{}
	for _, r := range l.recs {
		if r.Seq > afterSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

func newProtocol(t *testing.T) *protocol.Protocol {
	t.Helper()
	p, err := protocol.New(protocol.Options{
		ChainID:       137,
		Admin:         admin,
		AssetSymbol:   "USDC",
		AssetDecimals: 6,
		Genesis:       genesis,
	})
	require.NoError(t, err)
	return p
}

func newEngine(t *testing.T, log Log) (*Engine, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(genesis)
	e := New(newProtocol(t), log,
		WithIDGenerator(testutil.NewFixedIDs("tx")),
		WithTimeSource(clock),
	)
	return e, clock
}

func mustCall(t *testing.T, caller types.Address, name string, args canon.Object) protocol.Call {
	t.Helper()
	c, err := protocol.NewCall(name, caller, args)
	require.NoError(t, err)
	return c
}

func mint(t *testing.T, to types.Address, amount int64) protocol.Call {
	return mustCall(t, admin, "asset.mint", canon.Object{"to": canon.Addr(to), "amount": canon.Int(amount)})
}

func TestExecute_AppliesAndPersists(t *testing.T) {
	log := &memLog{}
	e, _ := newEngine(t, log)
	ctx := context.Background()

	rec, err := e.Execute(ctx, mint(t, alice, 500))
	require.NoError(t, err)
	require.NoError(t, rec.Err)

	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, "tx-0001", rec.TxID)
	assert.Equal(t, genesis, rec.Time)
	assert.Equal(t, int64(1), e.Seq())

	require.Len(t, log.recs, 1)
	stored := log.recs[0]
	assert.Equal(t, "asset.mint", stored.Name())
	assert.Equal(t, protocol.StatusApplied, stored.Status)
	assert.Equal(t, rec.Digest(), stored.EventsDigest)
	assert.Len(t, stored.Events, len(rec.Events))

	bal, err := e.Query("asset.balanceOf", canon.Object{"owner": canon.Addr(alice)})
	require.NoError(t, err)
	assert.Equal(t, canon.String("500"), bal)
}

func TestExecute_RejectionIsLogged(t *testing.T) {
	log := &memLog{}
	e, _ := newEngine(t, log)

	rec, err := e.Execute(context.Background(), mint(t, types.Address{}, 1))
	require.NoError(t, err, "a rejection is not an engine error")
	require.Error(t, rec.Err)

	require.Len(t, log.recs, 1)
	assert.Equal(t, protocol.StatusRejected, log.recs[0].Status)
	assert.Equal(t, "ZERO_ADDRESS", log.recs[0].ErrorCode)
	assert.Empty(t, log.recs[0].Events)
	assert.Equal(t, int64(1), e.Seq(), "rejected calls still consume a seq")
}

func TestExecute_PersistFailureReverts(t *testing.T) {
	log := &memLog{fail: errors.New("disk full")}
	e, _ := newEngine(t, log)

	_, err := e.Execute(context.Background(), mint(t, alice, 500))
	require.Error(t, err)
	assert.True(t, IsPersistError(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Zero(t, e.Seq(), "seq must not be consumed")

	bal, err := e.Query("asset.balanceOf", canon.Object{"owner": canon.Addr(alice)})
	require.NoError(t, err)
	assert.Equal(t, canon.String("0"), bal)

	log.fail = nil
	rec, err := e.Execute(context.Background(), mint(t, alice, 7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Seq)
}

func TestExecute_TimeNeverGoesBack(t *testing.T) {
	e, clock := newEngine(t, nil)
	ctx := context.Background()

	clock.Advance(100)
	first, err := e.Execute(ctx, mint(t, alice, 1))
	require.NoError(t, err)

	clock.Set(genesis)
	second, err := e.Execute(ctx, mint(t, alice, 1))
	require.NoError(t, err)

	assert.Equal(t, genesis+100, first.Time)
	assert.Equal(t, first.Time, second.Time)
	assert.Equal(t, genesis+100, e.Now())
}

func TestExecute_NilArgs(t *testing.T) {
	e, _ := newEngine(t, nil)

	rec, err := e.Execute(context.Background(), protocol.Call{Component: "payroll", Method: "executePayroll", Caller: admin})
	require.NoError(t, err)
	assert.Equal(t, canon.Object{}, rec.Call.Args)
	assert.Error(t, rec.Err)
}

func TestRun_ConcurrentSubmit(t *testing.T) {
	log := &memLog{}
	e, _ := newEngine(t, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	const submitters = 10
	const perSubmitter = 5
	call := mint(t, alice, 1)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs = make(map[int64]bool)
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSubmitter; j++ {
				rec, err := e.Submit(ctx, call)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seqs[rec.Seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	total := submitters * perSubmitter
	assert.Len(t, seqs, total)
	for s := int64(1); s <= int64(total); s++ {
		assert.True(t, seqs[s], "seq %d missing", s)
	}
	assert.Len(t, log.recs, total)

	bal, err := e.Query("asset.balanceOf", canon.Object{"owner": canon.Addr(alice)})
	require.NoError(t, err)
	assert.Equal(t, canon.String("50"), bal)

	e.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRun_ContextCancel(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err := e.Submit(context.Background(), mint(t, alice, 1))
	assert.True(t, IsStopped(err))
}

func TestSubmit_AfterStop(t *testing.T) {
	e, _ := newEngine(t, nil)
	e.Stop()

	_, err := e.Submit(context.Background(), mint(t, alice, 1))
	require.Error(t, err)
	assert.True(t, IsStopped(err))
}

func TestSubmit_ContextDone(t *testing.T) {
	e, _ := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No Run loop: the request waits until the submitter gives up.
	_, err := e.Submit(ctx, mint(t, alice, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecover_FromSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowguard.db")
	ctx := context.Background()

	st, err := store.Open(path)
	require.NoError(t, err)
	e1, clock := newEngine(t, st)
	for _, c := range []protocol.Call{
		mint(t, alice, 1000),
		mint(t, types.Address{}, 1),
		mustCall(t, admin, "payroll.addRecipient", canon.Object{"recipient": canon.Addr(alice), "label": canon.String("Alice")}),
	} {
		clock.Advance(10)
		_, err := e1.Execute(ctx, c)
		require.NoError(t, err)
	}
	require.NoError(t, st.Close())

	st, err = store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	e2, _ := newEngine(t, st)

	n, err := e2.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), e2.Seq())
	assert.Equal(t, genesis+30, e2.Now(), "ledger time resumes from the log")

	bal, err := e2.Query("asset.balanceOf", canon.Object{"owner": canon.Addr(alice)})
	require.NoError(t, err)
	assert.Equal(t, canon.String("1000"), bal)
	isRecipient, err := e2.Query("payroll.isRecipient", canon.Object{"recipient": canon.Addr(alice)})
	require.NoError(t, err)
	assert.Equal(t, canon.Bool(true), isRecipient)

	rec, err := e2.Execute(ctx, mint(t, alice, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.Seq)
}

func TestRecover_Divergence(t *testing.T) {
	log := &memLog{}
	e1, _ := newEngine(t, log)
	_, err := e1.Execute(context.Background(), mint(t, alice, 1000))
	require.NoError(t, err)

	tests := []struct {
		name   string
		tamper func(*store.CallRecord)
		field  string
	}{
		{"status", func(r *store.CallRecord) { r.Status = protocol.StatusRejected }, "status"},
		{"code", func(r *store.CallRecord) { r.ErrorCode = "PAUSED" }, "error code"},
		{"digest", func(r *store.CallRecord) { r.EventsDigest = types.Hash{0x01} }, "events digest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := log.recs[0]
			tt.tamper(&rec)
			e2, _ := newEngine(t, &memLog{recs: []store.CallRecord{rec}})

			n, err := e2.Recover(context.Background())
			require.Error(t, err)
			assert.Zero(t, n)
			assert.True(t, IsDivergence(err))

			var re *RuntimeError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, ErrCodeReplayDivergence, re.Code)
			assert.Equal(t, tt.field, re.Details["field"])
			assert.Equal(t, int64(1), re.Seq)
		})
	}
}

func TestRecover_SeqGap(t *testing.T) {
	log := &memLog{}
	e1, _ := newEngine(t, log)
	_, err := e1.Execute(context.Background(), mint(t, alice, 1))
	require.NoError(t, err)
	log.recs[0].Seq = 2

	e2, _ := newEngine(t, log)
	_, err = e2.Recover(context.Background())
	require.Error(t, err)
	assert.True(t, IsDivergence(err))
	assert.Contains(t, err.Error(), "SEQ_GAP")
}

func TestRecover_NoLog(t *testing.T) {
	e, _ := newEngine(t, nil)
	n, err := e.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
