// Package payroll implements the recipient directory and batch
// disbursement ledger.
package payroll

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace.
const Component = "payroll"

// Batch is the immutable record of one executed payroll.
type Batch struct {
	ID             types.Hash
	Payer          types.Address
	TotalAmount    types.Amount
	RecipientCount uint64
	ExecutedAt     int64
}

// Ledger disburses the asset to many recipients in one atomic call.
//
// Recipient membership is authoritative for the directory only; a batch
// may pay any non-zero address.
type Ledger struct {
	address types.Address
	auth    ledger.Authorizer
	asset   ledger.Asset
	guard   ledger.Guard

	recipients []types.Address
	position   map[types.Address]int
	labels     map[types.Address]string

	batches        map[types.Hash]Batch
	batchIDs       []types.Hash
	totalDisbursed types.Amount
}

// New creates a payroll ledger at address.
func New(address types.Address, auth ledger.Authorizer, asset ledger.Asset) (*Ledger, error) {
	if address.IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("address")
	}
	if asset == nil || asset.Address().IsZero() {
		return nil, ledger.ErrZeroAddress.In(Component).WithField("asset")
	}
	return &Ledger{
		address:  address,
		auth:     auth,
		asset:    asset,
		position: make(map[types.Address]int),
		labels:   make(map[types.Address]string),
		batches:  make(map[types.Hash]Batch),
	}, nil
}

// AddRecipient registers a recipient with a display label. Admin only.
func (l *Ledger) AddRecipient(tx *ledger.Tx, recipient types.Address, label string) error {
	if err := l.auth.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	if recipient.IsZero() {
		return ledger.ErrZeroAddress.In(Component).WithField("recipient")
	}
	if l.IsRecipient(recipient) {
		return ledger.ErrAlreadyRegistered.In(Component).WithID(recipient)
	}

	l.position[recipient] = len(l.recipients)
	l.recipients = append(l.recipients, recipient)
	l.labels[recipient] = label
	tx.OnRevert(func() {
		l.recipients = l.recipients[:len(l.recipients)-1]
		delete(l.position, recipient)
		delete(l.labels, recipient)
	})

	tx.Emit(Component, "RecipientAdded", canon.Object{
		"recipient": canon.Addr(recipient),
		"label":     canon.String(label),
	}, "recipient")
	return nil
}

// RemoveRecipient drops a recipient and its label. The last recipient takes
// the removed one's slot. Admin only.
func (l *Ledger) RemoveRecipient(tx *ledger.Tx, recipient types.Address) error {
	if err := l.auth.RequireRole(types.RoleAdmin, tx.Caller); err != nil {
		return err
	}
	i, ok := l.position[recipient]
	if !ok {
		return ledger.ErrNotRegistered.In(Component).WithID(recipient)
	}

	label := l.labels[recipient]
	last := len(l.recipients) - 1
	moved := l.recipients[last]
	l.recipients[i] = moved
	l.position[moved] = i
	l.recipients = l.recipients[:last]
	delete(l.position, recipient)
	delete(l.labels, recipient)
	tx.OnRevert(func() {
		l.recipients = append(l.recipients, moved)
		l.position[moved] = last
		l.recipients[i] = recipient
		l.position[recipient] = i
		l.labels[recipient] = label
	})

	tx.Emit(Component, "RecipientRemoved", canon.Object{
		"recipient": canon.Addr(recipient),
	}, "recipient")
	return nil
}

// ExecutePayroll pays amounts[i] to recipients[i] from the caller's
// balance. The caller must hold Payer and must have approved the ledger
// for the batch total.
func (l *Ledger) ExecutePayroll(tx *ledger.Tx, recipients []types.Address, amounts []types.Amount) (types.Hash, error) {
	if err := l.auth.RequireRole(types.RolePayer, tx.Caller); err != nil {
		return types.Hash{}, err
	}
	if err := l.auth.RequireNotPaused(); err != nil {
		return types.Hash{}, err
	}
	total, err := ledger.CheckDistribution(Component, recipients, amounts)
	if err != nil {
		return types.Hash{}, err
	}
	disbursed, ok := l.totalDisbursed.Add(total)
	if !ok {
		return types.Hash{}, ledger.ErrOverflow.In(Component).WithField("total_disbursed")
	}
	release, err := l.guard.Enter(Component)
	if err != nil {
		return types.Hash{}, err
	}
	defer release()

	id := canon.BatchID(tx.Caller, recipients, amounts, uint64(len(l.batchIDs)), tx.Time)
	batch := Batch{
		ID:             id,
		Payer:          tx.Caller,
		TotalAmount:    total,
		RecipientCount: uint64(len(recipients)),
		ExecutedAt:     tx.Time,
	}
	prevTotal := l.totalDisbursed
	l.batches[id] = batch
	l.batchIDs = append(l.batchIDs, id)
	l.totalDisbursed = disbursed
	tx.OnRevert(func() {
		delete(l.batches, id)
		l.batchIDs = l.batchIDs[:len(l.batchIDs)-1]
		l.totalDisbursed = prevTotal
	})

	for i, r := range recipients {
		if err := l.asset.TransferFrom(tx, l.address, tx.Caller, r, amounts[i]); err != nil {
			return types.Hash{}, err
		}
		tx.Emit(Component, "PaymentDisbursed", canon.Object{
			"batch_id":  canon.H(id),
			"recipient": canon.Addr(r),
			"amount":    canon.Amt(amounts[i]),
		}, "batch_id", "recipient")
	}

	tx.Emit(Component, "PayrollExecuted", canon.Object{
		"batch_id":        canon.H(id),
		"payer":           canon.Addr(tx.Caller),
		"total_amount":    canon.Amt(total),
		"recipient_count": canon.Int(int64(len(recipients))),
		"timestamp":       canon.Int(tx.Time),
	}, "batch_id", "payer")
	return id, nil
}

func (l *Ledger) Address() types.Address { return l.address }

// Asset returns the address of the disbursed asset.
func (l *Ledger) Asset() types.Address { return l.asset.Address() }

// Recipients returns the directory in slot order.
func (l *Ledger) Recipients() []types.Address {
	out := make([]types.Address, len(l.recipients))
	copy(out, l.recipients)
	return out
}

func (l *Ledger) IsRecipient(a types.Address) bool {
	_, ok := l.position[a]
	return ok
}

// RecipientLabel returns the label of a registered recipient, or "".
func (l *Ledger) RecipientLabel(a types.Address) string { return l.labels[a] }

func (l *Ledger) TotalDisbursed() types.Amount { return l.totalDisbursed }

func (l *Ledger) BatchCount() uint64 { return uint64(len(l.batchIDs)) }

// BatchIDs pages through batch ids in execution order.
func (l *Ledger) BatchIDs(offset, limit uint64) []types.Hash {
	return types.Page(l.batchIDs, offset, limit)
}

// Batch returns the batch with id.
func (l *Ledger) Batch(id types.Hash) (Batch, error) {
	b, ok := l.batches[id]
	if !ok {
		return Batch{}, ledger.ErrBatchNotFound.In(Component).WithID(id)
	}
	return b, nil
}
