// Package stealth implements sender-funded payments that are released to
// whoever presents a valid claim signature.
//
// A claim signature binds the payment id, the destination and the chain id.
// Any key may produce it: possession of a valid signature is the claim
// authority, and the ephemeral key hash recorded at send time is not
// checked against the signer.
package stealth

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/sig"
	"github.com/roach88/flowguard/internal/types"
)

// Component is the call-surface and event namespace.
const Component = "stealth"

// Payment is an escrowed stealth payment. The claim fields are zero until
// the payment is claimed.
type Payment struct {
	ID               types.Hash
	Sender           types.Address
	Amount           types.Amount
	EphemeralKeyHash types.Hash
	MetadataHash     types.Hash
	Timestamp        int64
	Claimed          bool

	ClaimedBy types.Address
	ClaimedTo types.Address
	Signer    types.Address
	ClaimedAt int64
}

// Ledger escrows stealth payments in its own asset balance.
type Ledger struct {
	address types.Address
	auth    ledger.Authorizer
	asset   ledger.Asset
	guard   ledger.Guard

	payments    map[types.Hash]Payment
	ids         []types.Hash
	totalVolume types.Amount
	escrowed    types.Amount
}

// New creates a stealth ledger at address.
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
		payments: make(map[types.Hash]Payment),
	}, nil
}

// SendStealthPayment escrows amount from the caller. The caller must have
// approved the ledger for amount.
func (l *Ledger) SendStealthPayment(tx *ledger.Tx, amount types.Amount, ephemeralKeyHash, metadataHash types.Hash) (types.Hash, error) {
	if err := l.auth.RequireNotPaused(); err != nil {
		return types.Hash{}, err
	}
	if amount == 0 {
		return types.Hash{}, ledger.ErrZeroAmount.In(Component).WithField("amount")
	}
	if ephemeralKeyHash.IsZero() {
		return types.Hash{}, ledger.ErrZeroEphemeralKey.In(Component).WithField("ephemeral_key_hash")
	}
	volume, ok := l.totalVolume.Add(amount)
	if !ok {
		return types.Hash{}, ledger.ErrOverflow.In(Component).WithField("amount")
	}
	escrowed, ok := l.escrowed.Add(amount)
	if !ok {
		return types.Hash{}, ledger.ErrOverflow.In(Component).WithField("amount")
	}
	release, err := l.guard.Enter(Component)
	if err != nil {
		return types.Hash{}, err
	}
	defer release()

	id := canon.PaymentID(tx.Caller, amount, ephemeralKeyHash, metadataHash, uint64(len(l.ids)), tx.Time)
	prevVolume, prevEscrow := l.totalVolume, l.escrowed
	l.payments[id] = Payment{
		ID:               id,
		Sender:           tx.Caller,
		Amount:           amount,
		EphemeralKeyHash: ephemeralKeyHash,
		MetadataHash:     metadataHash,
		Timestamp:        tx.Time,
	}
	l.ids = append(l.ids, id)
	l.totalVolume, l.escrowed = volume, escrowed
	tx.OnRevert(func() {
		delete(l.payments, id)
		l.ids = l.ids[:len(l.ids)-1]
		l.totalVolume, l.escrowed = prevVolume, prevEscrow
	})

	if err := l.asset.TransferFrom(tx, l.address, tx.Caller, l.address, amount); err != nil {
		return types.Hash{}, err
	}

	tx.Emit(Component, "StealthPaymentSent", canon.Object{
		"payment_id":         canon.H(id),
		"sender":             canon.Addr(tx.Caller),
		"amount":             canon.Amt(amount),
		"ephemeral_key_hash": canon.H(ephemeralKeyHash),
		"metadata_hash":      canon.H(metadataHash),
		"timestamp":          canon.Int(tx.Time),
	}, "payment_id", "sender")
	return id, nil
}

// ClaimStealthPayment releases an escrowed payment to recipient. proof is a
// signature over ClaimMessage(paymentID, recipient, chain id).
func (l *Ledger) ClaimStealthPayment(tx *ledger.Tx, paymentID types.Hash, recipient types.Address, proof []byte) error {
	if err := l.auth.RequireNotPaused(); err != nil {
		return err
	}
	p, ok := l.payments[paymentID]
	if !ok {
		return ledger.ErrPaymentNotFound.In(Component).WithID(paymentID)
	}
	if p.Claimed {
		return ledger.ErrAlreadyClaimed.In(Component).WithID(paymentID)
	}
	if recipient.IsZero() {
		return ledger.ErrZeroRecipient.In(Component).WithField("recipient")
	}
	signer, err := sig.Recover(canon.ClaimMessage(paymentID, recipient, tx.ChainID), proof)
	if err != nil {
		e := ledger.ErrInvalidSignature.In(Component).WithField("signature")
		e.Message = err.Error()
		return e
	}
	escrowed, ok := l.escrowed.Sub(p.Amount)
	if !ok {
		return ledger.ErrInsufficientBalance.In(Component).WithID(paymentID)
	}
	release, err := l.guard.Enter(Component)
	if err != nil {
		return err
	}
	defer release()

	prev, prevEscrow := p, l.escrowed
	p.Claimed = true
	p.ClaimedBy = tx.Caller
	p.ClaimedTo = recipient
	p.Signer = signer
	p.ClaimedAt = tx.Time
	l.payments[paymentID] = p
	l.escrowed = escrowed
	tx.OnRevert(func() {
		l.payments[paymentID] = prev
		l.escrowed = prevEscrow
	})

	if err := l.asset.Transfer(tx, l.address, recipient, p.Amount); err != nil {
		return err
	}

	tx.Emit(Component, "StealthPaymentClaimed", canon.Object{
		"payment_id": canon.H(paymentID),
		"claimer":    canon.Addr(tx.Caller),
		"recipient":  canon.Addr(recipient),
		"signer":     canon.Addr(signer),
		"amount":     canon.Amt(p.Amount),
		"timestamp":  canon.Int(tx.Time),
	}, "payment_id", "recipient", "signer")
	return nil
}

func (l *Ledger) Address() types.Address { return l.address }

// Payment returns the payment with id.
func (l *Ledger) Payment(id types.Hash) (Payment, error) {
	p, ok := l.payments[id]
	if !ok {
		return Payment{}, ledger.ErrPaymentNotFound.In(Component).WithID(id)
	}
	return p, nil
}

func (l *Ledger) PaymentCount() uint64 { return uint64(len(l.ids)) }

func (l *Ledger) TotalStealthVolume() types.Amount { return l.totalVolume }

// EscrowBalance is the sum of unclaimed payment amounts.
func (l *Ledger) EscrowBalance() types.Amount { return l.escrowed }

// PaymentIDs pages through payment ids in send order.
func (l *Ledger) PaymentIDs(offset, limit uint64) []types.Hash {
	return types.Page(l.ids, offset, limit)
}
