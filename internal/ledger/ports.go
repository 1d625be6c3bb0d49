package ledger

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/flowguard/internal/types"
)

// Authorizer is the capability every component holds to check roles and
// its pause switch. access.Guard implements it.
type Authorizer interface {
	HasRole(role types.Role, account types.Address) bool
	RequireRole(role types.Role, account types.Address) error
	RequireNotPaused() error
	Paused() bool
}

// Asset is the fungible-token transfer primitive. Transfers either
// complete or return an error; a failed transfer changes nothing.
type Asset interface {
	Address() types.Address
	BalanceOf(owner types.Address) types.Amount
	Allowance(owner, spender types.Address) types.Amount
	Transfer(tx *Tx, from, to types.Address, amount types.Amount) error
	TransferFrom(tx *Tx, spender, from, to types.Address, amount types.Amount) error
	Approve(tx *Tx, owner, spender types.Address, amount types.Amount) error
}

// ReserveData is the pool's view of one reserve. Rates and indexes are in
// ray units: 1e27 represents 1.0 (a rate of 1e27 is 100% per year).
type ReserveData struct {
	CurrentLiquidityRate *apd.Decimal
	LiquidityIndex       *apd.Decimal
	ATokenAddress        types.Address
	LastUpdateTimestamp  int64
}

// Pool is the external lending-pool primitive. The caller argument is the
// account invoking the pool (the vault); the pool pulls supplied funds from
// it with TransferFrom, so the caller must approve the pool first.
type Pool interface {
	Address() types.Address
	Supply(tx *Tx, caller, asset types.Address, amount types.Amount, onBehalfOf types.Address) error
	Withdraw(tx *Tx, caller, asset types.Address, amount types.Amount, to types.Address) error
	ReserveData(asset types.Address, now int64) (ReserveData, error)
	ATokenBalance(holder types.Address, now int64) types.Amount
}
