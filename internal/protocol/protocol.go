package protocol

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/flowguard/internal/access"
	"github.com/roach88/flowguard/internal/asset"
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/compliance"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/payroll"
	"github.com/roach88/flowguard/internal/pool"
	"github.com/roach88/flowguard/internal/scheduler"
	"github.com/roach88/flowguard/internal/stealth"
	"github.com/roach88/flowguard/internal/types"
	"github.com/roach88/flowguard/internal/vault"
)

// Fixed component addresses. They are derived from labels so every
// deployment with the same asset symbol agrees on them.
var (
	PayrollAddress    = canon.LabelAddress("flowguard/payroll")
	StealthAddress    = canon.LabelAddress("flowguard/stealth")
	SchedulerAddress  = canon.LabelAddress("flowguard/scheduler")
	VaultAddress      = canon.LabelAddress("flowguard/vault")
	ComplianceAddress = canon.LabelAddress("flowguard/compliance")
	PoolAddress       = canon.LabelAddress("flowguard/pool")
)

// AssetAddress returns the token address for symbol.
func AssetAddress(symbol string) types.Address {
	return canon.LabelAddress("flowguard/asset/" + symbol)
}

// ATokenAddress returns the pool's interest-bearing token address for symbol.
func ATokenAddress(symbol string) types.Address {
	return canon.LabelAddress("flowguard/atoken/" + symbol)
}

// Options configures a protocol instance.
type Options struct {
	ChainID       uint64
	Admin         types.Address
	AssetSymbol   string
	AssetDecimals uint8
	// LiquidityRate is the pool's initial supply rate in ray.
	LiquidityRate *apd.Decimal
	// Genesis is the ledger time the pool starts accruing from.
	Genesis int64
}

// Protocol is one deployment of all components.
type Protocol struct {
	mu      sync.Mutex
	chainID uint64

	Asset      *asset.Token
	Pool       *pool.Pool
	Payroll    *payroll.Ledger
	Stealth    *stealth.Ledger
	Scheduler  *scheduler.Scheduler
	Vault      *vault.Vault
	Compliance *compliance.Registry

	guards    map[string]*access.Guard
	mutations map[string]mutation
	queries   map[string]query
}

// New deploys every component with opts.Admin as administrator.
func New(opts Options) (*Protocol, error) {
	if opts.ChainID == 0 {
		return nil, fmt.Errorf("chain id must be positive")
	}
	if opts.AssetSymbol == "" {
		return nil, fmt.Errorf("asset symbol is required")
	}
	rate := opts.LiquidityRate
	if rate == nil {
		rate = new(apd.Decimal)
	}

	p := &Protocol{chainID: opts.ChainID, guards: make(map[string]*access.Guard)}
	var err error

	if p.Asset, err = asset.New(AssetAddress(opts.AssetSymbol), opts.AssetSymbol, opts.AssetDecimals, opts.Admin); err != nil {
		return nil, fmt.Errorf("deploy asset: %w", err)
	}
	if p.Pool, err = pool.New(PoolAddress, opts.Admin); err != nil {
		return nil, fmt.Errorf("deploy pool: %w", err)
	}
	if err := p.Pool.AddReserve(p.Asset, ATokenAddress(opts.AssetSymbol), rate, opts.Genesis); err != nil {
		return nil, fmt.Errorf("list reserve: %w", err)
	}
	p.guards[asset.Component] = p.Asset.Guard()
	p.guards[pool.Component] = p.Pool.Guard()

	guard := func(component string, initial ...types.Role) (*access.Guard, error) {
		g, err := access.New(component, opts.Admin, initial...)
		if err != nil {
			return nil, fmt.Errorf("deploy %s: %w", component, err)
		}
		p.guards[component] = g
		return g, nil
	}

	g, err := guard(payroll.Component)
	if err != nil {
		return nil, err
	}
	if p.Payroll, err = payroll.New(PayrollAddress, g, p.Asset); err != nil {
		return nil, fmt.Errorf("deploy payroll: %w", err)
	}

	if g, err = guard(stealth.Component); err != nil {
		return nil, err
	}
	if p.Stealth, err = stealth.New(StealthAddress, g, p.Asset); err != nil {
		return nil, fmt.Errorf("deploy stealth: %w", err)
	}

	if g, err = guard(scheduler.Component); err != nil {
		return nil, err
	}
	if p.Scheduler, err = scheduler.New(SchedulerAddress, g, p.Asset, PayrollAddress); err != nil {
		return nil, fmt.Errorf("deploy scheduler: %w", err)
	}

	if g, err = guard(vault.Component); err != nil {
		return nil, err
	}
	if p.Vault, err = vault.New(VaultAddress, g, p.Asset, p.Pool); err != nil {
		return nil, fmt.Errorf("deploy vault: %w", err)
	}

	if g, err = guard(compliance.Component, types.RoleComplianceOfficer); err != nil {
		return nil, err
	}
	if p.Compliance, err = compliance.New(ComplianceAddress, g); err != nil {
		return nil, fmt.Errorf("deploy compliance: %w", err)
	}

	p.mutations = p.mutationTable()
	p.queries = p.queryTable()
	return p, nil
}

// ChainID returns the chain id claim and execution signatures bind to.
func (p *Protocol) ChainID() uint64 { return p.chainID }

// Guard returns the access guard of component.
func (p *Protocol) Guard(component string) (*access.Guard, bool) {
	g, ok := p.guards[component]
	return g, ok
}

// Apply executes call. Rejections are reported in the receipt, not as an
// error; the returned error is set only when commit fails, in which case
// the call has been reverted.
func (p *Protocol) Apply(call Call, meta Meta, commit func(Receipt) error) (Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := ledger.NewTx(meta.TxID, meta.Seq, call.Caller, meta.Time, p.chainID)
	rec := Receipt{Call: call, Seq: meta.Seq, TxID: meta.TxID, Time: meta.Time}

	result, err := p.dispatch(tx, call)
	if err != nil {
		tx.Revert()
		rec.Err = err
	} else {
		rec.Result = result
		rec.Events = tx.Events()
	}

	if commit != nil {
		if cerr := commit(rec); cerr != nil {
			if err == nil {
				tx.Revert()
			}
			return rec, fmt.Errorf("commit seq %d: %w", meta.Seq, cerr)
		}
	}
	return rec, nil
}

func (p *Protocol) dispatch(tx *ledger.Tx, call Call) (canon.Value, error) {
	m, ok := p.mutations[call.Name()]
	if !ok {
		return nil, ledger.ErrUnknownMethod.In(call.Component).WithField(call.Method)
	}
	args := call.Args
	if args == nil {
		args = canon.Object{}
	}
	result, err := m(tx, args)
	if err != nil {
		return nil, normalize(call.Component, err)
	}
	if result == nil {
		result = canon.Object{}
	}
	return result, nil
}

// Query runs a read-only method against the current state as of now.
func (p *Protocol) Query(name string, args canon.Object, now int64) (canon.Value, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.queries[name]
	if !ok {
		component, method, _ := ParseName(name)
		return nil, ledger.ErrUnknownMethod.In(component).WithField(method)
	}
	if args == nil {
		args = canon.Object{}
	}
	v, err := q(args, now)
	if err != nil {
		component, _, _ := ParseName(name)
		return nil, normalize(component, err)
	}
	return v, nil
}

// Methods lists the mutating call names.
func (p *Protocol) Methods() []string { return sortedKeys(p.mutations) }

// Queries lists the read-only call names.
func (p *Protocol) Queries() []string { return sortedKeys(p.queries) }
