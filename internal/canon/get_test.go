package canon

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/types"
)

func TestObjectGetters(t *testing.T) {
	args := Object{
		"recipients": Addrs([]types.Address{alice, bob}),
		"amounts":    Array{String("100"), Int(200)},
		"label":      String("Emp1"),
		"verified":   Bool(true),
		"offset":     Int(3),
	}

	recipients, err := args.Addresses("recipients")
	require.NoError(t, err)
	assert.Equal(t, []types.Address{alice, bob}, recipients)

	amounts, err := args.Amounts("amounts")
	require.NoError(t, err)
	assert.Equal(t, []types.Amount{100, 200}, amounts)

	label, err := args.Str("label")
	require.NoError(t, err)
	assert.Equal(t, "Emp1", label)

	verified, err := args.Boolean("verified")
	require.NoError(t, err)
	assert.True(t, verified)

	limit, err := args.OptionalUint("limit", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), limit)
}

func TestObjectGetters_FieldErrors(t *testing.T) {
	args := Object{"amount": Int(-1), "who": String("nope")}

	_, err := args.Amount("amount")
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "amount", fe.Field)

	_, err = args.Address("who")
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "who", fe.Field)

	_, err = args.Hash("missing")
	require.True(t, errors.As(err, &fe))
	assert.Contains(t, err.Error(), "missing")
}

func TestObjectHexBytes(t *testing.T) {
	obj := Object{"sig": Bytes([]byte{0xde, 0xad}), "bad": String("0xzz")}

	raw, err := obj.HexBytes("sig")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, raw)

	_, err = obj.HexBytes("bad")
	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "bad", fe.Field)
}
