package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/protocol"
	"github.com/roach88/flowguard/internal/sig"
	"github.com/roach88/flowguard/internal/types"
)

func newTestResolver(t *testing.T, now int64) *Resolver {
	t.Helper()
	s := &Scenario{
		Accounts: map[string]string{"alice": "0x00000000000000000000000000000000000000a1"},
		Keys:     []string{"signer"},
	}
	opts := protocol.Options{
		ChainID:     137,
		Admin:       types.MustParseAddress(DefaultAdmin),
		AssetSymbol: "USDC",
	}
	r, err := newResolver(s, opts, func() int64 { return now })
	require.NoError(t, err)
	return r
}

func TestResolver_Scalars(t *testing.T) {
	r := newTestResolver(t, 1000)

	tests := []struct {
		in   any
		want canon.Value
	}{
		{"plain", canon.String("plain")},
		{"$$literal", canon.String("$literal")},
		{"$alice", canon.String("0x00000000000000000000000000000000000000a1")},
		{"$admin", canon.String(DefaultAdmin)},
		{"$zero", canon.Addr(types.ZeroAddress)},
		{"$payroll", canon.Addr(protocol.PayrollAddress)},
		{"$asset", canon.Addr(protocol.AssetAddress("USDC"))},
		{"$now", canon.Int(1000)},
		{"$now+3600", canon.Int(4600)},
		{"$now-10", canon.Int(990)},
		{true, canon.Bool(true)},
		{42, canon.Int(42)},
		{int64(-7), canon.Int(-7)},
		{uint64(18446744073709551615), canon.String("18446744073709551615")},
		{[]any{"$alice", 1}, canon.Array{canon.String("0x00000000000000000000000000000000000000a1"), canon.Int(1)}},
		{map[string]any{"to": "$alice"}, canon.Object{"to": canon.String("0x00000000000000000000000000000000000000a1")}},
	}
	for _, tt := range tests {
		got, err := r.Resolve(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestResolver_Errors(t *testing.T) {
	r := newTestResolver(t, 1000)

	for _, in := range []any{
		nil,
		1.5,
		"$ghost",
		"$step.field",
		map[string]any{"hash_of": 3},
		map[string]any{"sign_claim": map[string]any{"key": "nobody"}},
		map[string]any{"sign_claim": map[string]any{"key": "signer", "payment_id": "0x01"}},
		map[string]any{"sign_execution": "x"},
	} {
		_, err := r.Resolve(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestResolver_StepResults(t *testing.T) {
	r := newTestResolver(t, 1000)
	id := canon.H(canon.HashWithDomain("test", []byte("batch")))
	r.record("run", canon.Object{"batch_id": id})

	got, err := r.Resolve("$run.batch_id")
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.Equal(t, "#run.batch_id", r.labels[string(id)])

	_, err = r.Resolve("$run.missing")
	assert.ErrorContains(t, err, `has no field "missing"`)
}

func TestResolver_HashOf(t *testing.T) {
	r := newTestResolver(t, 0)

	a, err := r.Resolve(map[string]any{"hash_of": "eph-1"})
	require.NoError(t, err)
	b, err := r.Resolve(map[string]any{"hash_of": "eph-1"})
	require.NoError(t, err)
	c, err := r.Resolve(map[string]any{"hash_of": "eph-2"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, hashPattern, string(a.(canon.String)))
	assert.Equal(t, "#eph-1", r.labels[string(a.(canon.String))])
}

func TestResolver_SignClaim(t *testing.T) {
	r := newTestResolver(t, 0)
	id := canon.HashWithDomain("test", []byte("payment"))

	v, err := r.Resolve(map[string]any{"sign_claim": map[string]any{
		"key":        "signer",
		"payment_id": id.String(),
		"recipient":  "$alice",
	}})
	require.NoError(t, err)

	proof, err := canon.Object{"p": v}.HexBytes("p")
	require.NoError(t, err)
	alice := types.MustParseAddress("0x00000000000000000000000000000000000000a1")
	signer, err := sig.Recover(canon.ClaimMessage(id, alice, 137), proof)
	require.NoError(t, err)

	want, err := r.Address("signer")
	require.NoError(t, err)
	assert.Equal(t, want, signer)
	assert.Equal(t, sig.MustDeriveKey([]byte(DefaultSeed), "signer").Address(), signer)
}

func TestResolver_SignExecution(t *testing.T) {
	r := newTestResolver(t, 0)
	id := canon.HashWithDomain("test", []byte("payroll"))

	v, err := r.Resolve(map[string]any{"sign_execution": map[string]any{
		"key":        "signer",
		"payroll_id": id.String(),
		"nonce":      map[string]any{"hash_of": "n1"},
	}})
	require.NoError(t, err)

	proof, err := canon.Object{"p": v}.HexBytes("p")
	require.NoError(t, err)
	nonce := canon.HashWithDomain(DomainHashOf, []byte("n1"))
	signer, err := sig.Recover(canon.ExecutionMessage(id, nonce, 137, protocol.SchedulerAddress), proof)
	require.NoError(t, err)

	want, _ := r.Address("signer")
	assert.Equal(t, want, signer)
}

func TestResolver_NamesPreferBuiltins(t *testing.T) {
	s := &Scenario{Accounts: map[string]string{"boss": DefaultAdmin}}
	opts := protocol.Options{ChainID: 1, Admin: types.MustParseAddress(DefaultAdmin), AssetSymbol: "USDC"}
	r, err := newResolver(s, opts, func() int64 { return 0 })
	require.NoError(t, err)

	assert.Equal(t, "admin", r.names[types.MustParseAddress(DefaultAdmin)])
	boss, err := r.Address("boss")
	require.NoError(t, err)
	assert.Equal(t, types.MustParseAddress(DefaultAdmin), boss)
}
