package canon

import (
	"crypto/sha256"
	"strconv"

	"github.com/roach88/flowguard/internal/types"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainBatch       = "flowguard/batch/v1"
	DomainPayment     = "flowguard/stealth-payment/v1"
	DomainPayroll     = "flowguard/scheduled-payroll/v1"
	DomainClaim       = "flowguard/stealth-claim/v1"
	DomainExecution   = "flowguard/agent-execution/v1"
	DomainEvents      = "flowguard/events/v1"
	DomainAddressSeed = "flowguard/address/v1"
)

// HashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) types.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashValue hashes the canonical encoding of v under domain.
func HashValue(domain string, v Value) types.Hash {
	return HashWithDomain(domain, MustMarshalCanonical(v))
}

// BatchID derives the id of a payroll batch. The batch counter makes ids
// unique even when the same payer repeats an identical batch in the same
// second.
func BatchID(payer types.Address, recipients []types.Address, amounts []types.Amount, counter uint64, timestamp int64) types.Hash {
	return HashValue(DomainBatch, Object{
		"payer":      Addr(payer),
		"recipients": Addrs(recipients),
		"amounts":    Amts(amounts),
		"counter":    String(strconv.FormatUint(counter, 10)),
		"timestamp":  Int(timestamp),
	})
}

// PaymentID derives the id of a stealth payment.
func PaymentID(sender types.Address, amount types.Amount, ephemeralKeyHash, metadataHash types.Hash, counter uint64, timestamp int64) types.Hash {
	return HashValue(DomainPayment, Object{
		"sender":             Addr(sender),
		"amount":             Amt(amount),
		"ephemeral_key_hash": H(ephemeralKeyHash),
		"metadata_hash":      H(metadataHash),
		"counter":            String(strconv.FormatUint(counter, 10)),
		"timestamp":          Int(timestamp),
	})
}

// PayrollID derives the id of a scheduled payroll.
func PayrollID(creator types.Address, recipients []types.Address, amounts []types.Amount, executeAfter int64, counter uint64) types.Hash {
	return HashValue(DomainPayroll, Object{
		"creator":       Addr(creator),
		"recipients":    Addrs(recipients),
		"amounts":       Amts(amounts),
		"execute_after": Int(executeAfter),
		"counter":       String(strconv.FormatUint(counter, 10)),
	})
}

// ClaimMessage is the digest a claimer signs to release a stealth payment.
// It binds the payment, the destination and the chain, and nothing else.
func ClaimMessage(paymentID types.Hash, recipient types.Address, chainID uint64) types.Hash {
	return HashValue(DomainClaim, Object{
		"payment_id": H(paymentID),
		"recipient":  Addr(recipient),
		"chain_id":   String(strconv.FormatUint(chainID, 10)),
	})
}

// ExecutionMessage is the digest an agent signs to execute a scheduled
// payroll. It binds the payroll, the nonce, the chain and the scheduler.
func ExecutionMessage(payrollID, nonce types.Hash, chainID uint64, scheduler types.Address) types.Hash {
	return HashValue(DomainExecution, Object{
		"payroll_id": H(payrollID),
		"nonce":      H(nonce),
		"chain_id":   String(strconv.FormatUint(chainID, 10)),
		"scheduler":  Addr(scheduler),
	})
}

// LabelAddress derives a deterministic address for a named component or
// primitive, e.g. "flowguard/payroll".
func LabelAddress(label string) types.Address {
	h := HashWithDomain(DomainAddressSeed, []byte(label))
	return types.BytesToAddress(h[:])
}
