package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountAdd_Overflow(t *testing.T) {
	sum, ok := Amount(1).Add(2)
	require.True(t, ok)
	assert.Equal(t, Amount(3), sum)

	_, ok = MaxAmount.Add(1)
	assert.False(t, ok, "max+1 must overflow")
}

func TestAmountSub_Underflow(t *testing.T) {
	diff, ok := Amount(5).Sub(3)
	require.True(t, ok)
	assert.Equal(t, Amount(2), diff)

	_, ok = Amount(3).Sub(5)
	assert.False(t, ok)
}

func TestAmountMulDiv(t *testing.T) {
	got, ok := Amount(1000).MulDiv(3, 7)
	require.True(t, ok)
	assert.Equal(t, Amount(428), got, "floor(3000/7)")

	// 128-bit intermediate: (max * 2) / 4 fits.
	got, ok = MaxAmount.MulDiv(2, 4)
	require.True(t, ok)
	assert.Equal(t, MaxAmount/2, got)

	_, ok = MaxAmount.MulDiv(2, 1)
	assert.False(t, ok)

	_, ok = Amount(1).MulDiv(1, 0)
	assert.False(t, ok)
}

func TestSum(t *testing.T) {
	total, ok := Sum([]Amount{100, 200})
	require.True(t, ok)
	assert.Equal(t, Amount(300), total)

	_, ok = Sum([]Amount{MaxAmount, 1})
	assert.False(t, ok)
}

func TestParseAddress_RoundTrip(t *testing.T) {
	s := "0x3c499c542cef5e3811e1192ce70d8cc03d5c3359"
	a, err := ParseAddress(s)
	require.NoError(t, err)
	assert.Equal(t, s, a.String())
	assert.False(t, a.IsZero())

	_, err = ParseAddress("0x1234")
	assert.Error(t, err)

	_, err = ParseAddress("0xzz499c542cef5e3811e1192ce70d8cc03d5c3359")
	assert.Error(t, err)
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash("0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), h[0])
	assert.True(t, ZeroHash.IsZero())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("payer")
	require.NoError(t, err)
	assert.Equal(t, RolePayer, r)

	r, err = ParseRole("COMPLIANCE_OFFICER_ROLE")
	require.NoError(t, err)
	assert.Equal(t, RoleComplianceOfficer, r)

	_, err = ParseRole("root")
	assert.Error(t, err)
	assert.False(t, Role(99).Valid())
}

func TestPage_TruncatesSilently(t *testing.T) {
	items := []int{0, 1, 2, 3, 4}

	assert.Equal(t, []int{0, 1, 2}, Page(items, 0, 3))
	assert.Equal(t, []int{3, 4}, Page(items, 3, 3))
	assert.Equal(t, []int{}, Page(items, 5, 3))
	assert.Equal(t, []int{}, Page(items, 0, 0))
	assert.Equal(t, items, Page(items, 0, ^uint64(0)))
}

func TestPage_Concatenation(t *testing.T) {
	items := make([]int, 17)
	for i := range items {
		items[i] = i
	}
	for n := uint64(0); n <= 17; n++ {
		for m := uint64(0); m <= 20; m++ {
			joined := append(Page(items, 0, n), Page(items, n, m)...)
			assert.Equal(t, Page(items, 0, n+m), joined, "n=%d m=%d", n, m)
		}
	}
}

func TestPage_ReturnsCopy(t *testing.T) {
	items := []int{1, 2, 3}
	page := Page(items, 0, 2)
	page[0] = 99
	assert.Equal(t, 1, items[0])
}
