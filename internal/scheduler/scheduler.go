// Package scheduler implements time-deferred payroll executed by
// registered agents.
//
// A payroll moves Scheduled → Executed or Scheduled → Cancelled; both are
// terminal. Execution requires the Agent role, a nonce never seen before by
// this scheduler, and a signature by the calling agent over
// ExecutionMessage(payrollID, nonce, chain id, scheduler address). Funds are
// pulled from the payroll's creator at execution time, so the creator keeps
// an allowance for the scheduler until then.
package scheduler

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/sig"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace.
const Component = "scheduler"

// Status is the lifecycle state of a scheduled payroll.
type Status uint8

const (
	StatusScheduled Status = iota
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Payroll is a scheduled payroll.
type Payroll struct {
	ID           types.Hash
	Creator      types.Address
	Recipients   []types.Address
	Amounts      []types.Amount
	TotalAmount  types.Amount
	ExecuteAfter int64
	Status       Status
	Executed     bool
	ExecutedAt   int64
	ExecutedBy   types.Address
	Nonce        types.Hash
	CancelledAt  int64
}

func (p Payroll) clone() Payroll {
	p.Recipients = append([]types.Address(nil), p.Recipients...)
	p.Amounts = append([]types.Amount(nil), p.Amounts...)
	return p
}

// Roles is the authorization port of the scheduler. Agent registration is
// membership in the Agent role.
type Roles interface {
	ledger.Authorizer
	Assign(tx *ledger.Tx, role types.Role, account types.Address) bool
	Unassign(tx *ledger.Tx, role types.Role, account types.Address) bool
}

// Scheduler holds scheduled payrolls and the consumed nonce set.
type Scheduler struct {
	address types.Address
	auth    Roles
	asset   ledger.Asset
	core    types.Address
	guard   ledger.Guard

	payrolls       map[types.Hash]Payroll
	ids            []types.Hash
	nonces         map[types.Hash]struct{}
	scheduledCount  uint64
	executedCount   uint64
	scheduledAmount types.Amount
	executedAmount  types.Amount
}

// New creates a scheduler at address. core is the payroll ledger address,
// recorded for provenance only.
func New(address types.Address, auth Roles, asset ledger.Asset, core types.Address) (*Scheduler, error) {
	if address.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("address")
	}
	if asset == nil || asset.Address().IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("asset")
	}
	if core.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("core")
	}
	return &Scheduler{
		address:  address,
		auth:     auth,
		asset:    asset,
		core:     core,
		payrolls: make(map[types.Hash]Payroll),
		nonces:   make(map[types.Hash]struct{}),
	}, nil
}

// RegisterAgent grants agent the Agent role. Admin only.
func (s *Scheduler) RegisterAgent(tx *ledger.Tx, agent types.Address) error {
	if err := s.auth.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if agent.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("agent")
	}
	if s.auth.HasRole(types.RoleAgent, agent) {
		return ledger.ErrAlreadyRegistered.In(Component).WithID(agent)
	}
	s.auth.Assign(tx, types.RoleAgent, agent)
	tx.Emit(Component, "AgentRegistered", canon.Object{"agent": canon.Addr(agent)}, "agent")
	return nil
}

// RevokeAgent removes agent's Agent role. Admin only.
func (s *Scheduler) RevokeAgent(tx *ledger.Tx, agent types.Address) error {
	if err := s.auth.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if !s.auth.HasRole(types.RoleAgent, agent) {
		return ledger.ErrNotRegistered.In(Component).WithID(agent)
	}
	s.auth.Unassign(tx, types.RoleAgent, agent)
	tx.Emit(Component, "AgentRevoked", canon.Object{"agent": canon.Addr(agent)}, "agent")
	return nil
}

// SchedulePayroll records a payroll that agents may execute once
// executeAfter has passed. No funds move. Admin only.
func (s *Scheduler) SchedulePayroll(tx *ledger.Tx, recipients []types.Address, amounts []types.Amount, executeAfter int64) (types.Hash, error) {
	if err := s.auth.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return types.Hash{}, err
	}
	if err := s.auth.RequireNotPaused(); err != nil {
		return types.Hash{}, err
	}
	total, err := ledger.CheckDistribution(Component, recipients, amounts)
	if err != nil {
		return types.Hash{}, err
	}
	if executeAfter <= tx.Time {
		e := ledger.ErrInvalidScheduleTime.In(Component).WithField("execute_after")
		e.Message = "execute_after must be later than the current ledger time"
		return types.Hash{}, e
	}
	scheduled, ok := s.scheduledAmount.Add(total)
	if !ok {
		return types.Hash{}, ledger.ErrOverflow.In(Component).WithField("total_scheduled_amount")
	}

	id := canon.PayrollID(tx.Caller, recipients, amounts, executeAfter, uint64(len(s.ids)))
	p := Payroll{
		ID:           id,
		Creator:      tx.Caller,
		Recipients:   recipients,
		Amounts:      amounts,
		TotalAmount:  total,
		ExecuteAfter: executeAfter,
		Status:       StatusScheduled,
	}
	prevAmount := s.scheduledAmount
	s.payrolls[id] = p.clone()
	s.ids = append(s.ids, id)
	s.scheduledCount++
	s.scheduledAmount = scheduled
	tx.OnRevert(func() {
		delete(s.payrolls, id)
		s.ids = s.ids[:len(s.ids)-1]
		s.scheduledCount--
		s.scheduledAmount = prevAmount
	})

	tx.Emit(Component, "PayrollScheduled", canon.Object{
		"payroll_id":      canon.H(id),
		"creator":         canon.Addr(tx.Caller),
		"recipients":      canon.Addrs(recipients),
		"amounts":         canon.Amts(amounts),
		"total_amount":    canon.Amt(total),
		"recipient_count": canon.Int(int64(len(recipients))),
		"execute_after":   canon.Int(executeAfter),
	}, "payroll_id", "creator")
	return id, nil
}

// ExecuteScheduledPayroll pays out a due payroll. The caller must hold Agent
// and proof must be the caller's own signature.
func (s *Scheduler) ExecuteScheduledPayroll(tx *ledger.Tx, payrollID, nonce types.Hash, proof []byte) error {
	if err := s.auth.RequireRole(types.RoleAgent, tx.Caller); err != nil {
		return err
	}
	if err := s.auth.RequireNotPaused(); err != nil {
		return err
	}
	p, ok := s.payrolls[payrollID]
	if !ok {
		return ledger.ErrPayrollNotFound.In(Component).WithID(payrollID)
	}
	if s.IsNonceUsed(nonce) {
		return ledger.ErrNonceAlreadyUsed.In(Component).WithField("nonce").WithID(nonce)
	}
	switch p.Status {
	case StatusExecuted:
		return ledger.ErrAlreadyExecuted.In(Component).WithID(payrollID)
	case StatusCancelled:
		return ledger.ErrPayrollCancelled.In(Component).WithID(payrollID)
	}
	if tx.Time < p.ExecuteAfter {
		return ledger.ErrPayrollNotDue.In(Component).WithID(payrollID)
	}
	signer, err := sig.Recover(canon.ExecutionMessage(payrollID, nonce, tx.ChainID, s.address), proof)
	if err != nil {
		e := ledger.ErrInvalidSignature.In(Component).WithField("signature")
		e.Message = err.Error()
		return e
	}
	if signer != tx.Caller {
		e := ledger.ErrInvalidSignature.In(Component).WithField("signature").WithID(signer)
		e.Message = "signer is not the calling agent"
		return e
	}
	executed, ok := s.executedAmount.Add(p.TotalAmount)
	if !ok {
		return ledger.ErrOverflow.In(Component).WithField("total_executed_amount")
	}
	release, err := s.guard.Enter(Component)
	if err != nil {
		return err
	}
	defer release()

	prev, prevAmount := p, s.executedAmount
	s.nonces[nonce] = struct{}{}
	p.Status = StatusExecuted
	p.Executed = true
	p.ExecutedAt = tx.Time
	p.ExecutedBy = tx.Caller
	p.Nonce = nonce
	s.payrolls[payrollID] = p
	s.executedCount++
	s.executedAmount = executed
	tx.OnRevert(func() {
		delete(s.nonces, nonce)
		s.payrolls[payrollID] = prev
		s.executedCount--
		s.executedAmount = prevAmount
	})

	for i, r := range p.Recipients {
		if err := s.asset.TransferFrom(tx, s.address, p.Creator, r, p.Amounts[i]); err != nil {
			return err
		}
	}

	tx.Emit(Component, "PayrollExecutedByAgent", canon.Object{
		"payroll_id":   canon.H(payrollID),
		"agent":        canon.Addr(tx.Caller),
		"nonce":        canon.H(nonce),
		"total_amount": canon.Amt(p.TotalAmount),
		"timestamp":    canon.Int(tx.Time),
	}, "payroll_id", "agent", "nonce")
	return nil
}

// CancelScheduledPayroll retires a payroll that has not been executed.
// Admin only.
func (s *Scheduler) CancelScheduledPayroll(tx *ledger.Tx, payrollID types.Hash) error {
	if err := s.auth.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if err := s.auth.RequireNotPaused(); err != nil {
		return err
	}
	p, ok := s.payrolls[payrollID]
	if !ok {
		return ledger.ErrPayrollNotFound.In(Component).WithID(payrollID)
	}
	switch p.Status {
	case StatusExecuted:
		return ledger.ErrAlreadyExecuted.In(Component).WithID(payrollID)
	case StatusCancelled:
		return ledger.ErrPayrollCancelled.In(Component).WithID(payrollID)
	}

	prev := p
	p.Status = StatusCancelled
	p.CancelledAt = tx.Time
	s.payrolls[payrollID] = p
	tx.OnRevert(func() { s.payrolls[payrollID] = prev })

	tx.Emit(Component, "PayrollCancelled", canon.Object{
		"payroll_id": canon.H(payrollID),
		"sender":     canon.Addr(tx.Caller),
		"timestamp":  canon.Int(tx.Time),
	}, "payroll_id", "sender")
	return nil
}

func (s *Scheduler) Address() types.Address { return s.address }

// Core returns the payroll ledger address this scheduler was deployed for.
func (s *Scheduler) Core() types.Address { return s.core }

// Payroll returns a copy of the payroll with id.
func (s *Scheduler) Payroll(id types.Hash) (Payroll, error) {
	p, ok := s.payrolls[id]
	if !ok {
		return Payroll{}, ledger.ErrPayrollNotFound.In(Component).WithID(id)
	}
	return p.clone(), nil
}

// TotalScheduled is the number of payrolls ever scheduled, including
// those later cancelled.
func (s *Scheduler) TotalScheduled() uint64 { return s.scheduledCount }

// TotalExecuted is the number of payrolls executed by agents.
func (s *Scheduler) TotalExecuted() uint64 { return s.executedCount }

// TotalScheduledAmount sums TotalAmount over every scheduled payroll.
func (s *Scheduler) TotalScheduledAmount() types.Amount { return s.scheduledAmount }

func (s *Scheduler) TotalExecutedAmount() types.Amount { return s.executedAmount }

func (s *Scheduler) IsNonceUsed(nonce types.Hash) bool {
	_, ok := s.nonces[nonce]
	return ok
}

func (s *Scheduler) IsAgent(a types.Address) bool { return s.auth.HasRole(types.RoleAgent, a) }

// PayrollIDs pages through payroll ids in scheduling order.
func (s *Scheduler) PayrollIDs(offset, limit uint64) []types.Hash {
	return types.Page(s.ids, offset, limit)
}
