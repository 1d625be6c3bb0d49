package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

var (
	tokenAddr = types.Address{0x70}
	admin     = types.Address{0xaa}
	alice     = types.Address{0x01}
	bob       = types.Address{0x02}
	spender   = types.Address{0x03}
)

func newToken(t *testing.T) *Token {
	t.Helper()
	tok, err := New(tokenAddr, "USDC", 6, admin)
	require.NoError(t, err)
	return tok
}

func tx(caller types.Address) *ledger.Tx {
	return ledger.NewTx("tx", 1, caller, 1000, 137)
}

func mint(t *testing.T, tok *Token, to types.Address, amt types.Amount) {
	t.Helper()
	require.NoError(t, tok.Mint(tx(admin), to, amt))
}

func TestMint(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 500)

	assert.Equal(t, types.Amount(500), tok.BalanceOf(alice))
	assert.Equal(t, types.Amount(500), tok.TotalSupply())

	err := tok.Mint(tx(alice), alice, 1)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = tok.Mint(tx(admin), alice, types.MaxAmount)
	require.ErrorIs(t, err, ledger.ErrOverflow)
}

func TestTransfer(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 100)

	x := tx(alice)
	require.NoError(t, tok.Transfer(x, alice, bob, 40))
	assert.Equal(t, types.Amount(60), tok.BalanceOf(alice))
	assert.Equal(t, types.Amount(40), tok.BalanceOf(bob))
	require.Len(t, x.Events(), 1)
	assert.Equal(t, "Transfer", x.Events()[0].Name)

	err := tok.Transfer(tx(alice), alice, bob, 61)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, ledger.KindInsufficientFunds, ledger.KindOf(err))

	err = tok.Transfer(tx(alice), alice, types.Address{}, 1)
	require.ErrorIs(t, err, ledger.ErrZeroAddress)
}

func TestTransfer_Self(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 10)
	require.NoError(t, tok.Transfer(tx(alice), alice, alice, 10))
	assert.Equal(t, types.Amount(10), tok.BalanceOf(alice))
}

func TestTransferFrom(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 100)

	err := tok.TransferFrom(tx(spender), spender, alice, bob, 1)
	require.ErrorIs(t, err, ledger.ErrInsufficientAllowance)
	assert.Equal(t, ledger.KindInsufficientFunds, ledger.KindOf(err))

	require.NoError(t, tok.Approve(tx(alice), alice, spender, 50))
	require.NoError(t, tok.TransferFrom(tx(spender), spender, alice, bob, 30))
	assert.Equal(t, types.Amount(20), tok.Allowance(alice, spender))
	assert.Equal(t, types.Amount(30), tok.BalanceOf(bob))
}

func TestTransferFrom_UnlimitedAllowance(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 100)
	require.NoError(t, tok.Approve(tx(alice), alice, spender, types.MaxAmount))
	require.NoError(t, tok.TransferFrom(tx(spender), spender, alice, bob, 100))
	assert.Equal(t, types.MaxAmount, tok.Allowance(alice, spender))
}

func TestTransferFrom_FailedTransferKeepsAllowanceAfterRevert(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 10)
	require.NoError(t, tok.Approve(tx(alice), alice, spender, 50))

	x := tx(spender)
	err := tok.TransferFrom(x, spender, alice, bob, 20)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	x.Revert()
	assert.Equal(t, types.Amount(50), tok.Allowance(alice, spender))
}

func TestRevert_RestoresBalances(t *testing.T) {
	tok := newToken(t)
	mint(t, tok, alice, 100)

	x := tx(alice)
	require.NoError(t, tok.Transfer(x, alice, bob, 70))
	require.NoError(t, tok.Mint(ledger.NewTx("m", 2, admin, 0, 137), bob, 5))
	x.Revert()

	assert.Equal(t, types.Amount(100), tok.BalanceOf(alice))
	assert.Equal(t, types.Amount(5), tok.BalanceOf(bob))
}

func TestApprove_ZeroSpender(t *testing.T) {
	tok := newToken(t)
	require.ErrorIs(t, tok.Approve(tx(alice), alice, types.Address{}, 1), ledger.ErrZeroAddress)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(types.Address{}, "USDC", 6, admin)
	require.ErrorIs(t, err, ledger.ErrZeroAddress)
	_, err = New(tokenAddr, "USDC", 6, types.Address{})
	require.ErrorIs(t, err, ledger.ErrZeroAddress)
}
