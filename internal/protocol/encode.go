package protocol

import (
	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/compliance"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/payroll"
	"github.com/roach88/flowguard/internal/scheduler"
	"github.com/roach88/flowguard/internal/stealth"
	"github.com/roach88/flowguard/internal/types"
)

func uintValue(n uint64) canon.Value {
	return canon.String(types.Amount(n).String())
}

func batchValue(b payroll.Batch) canon.Object {
	return canon.Object{
		"batch_id":        canon.H(b.ID),
		"payer":           canon.Addr(b.Payer),
		"total_amount":    canon.Amt(b.TotalAmount),
		"recipient_count": uintValue(b.RecipientCount),
		"executed_at":     canon.Int(b.ExecutedAt),
	}
}

func paymentValue(p stealth.Payment) canon.Object {
	obj := canon.Object{
		"payment_id":         canon.H(p.ID),
		"sender":             canon.Addr(p.Sender),
		"amount":             canon.Amt(p.Amount),
		"ephemeral_key_hash": canon.H(p.EphemeralKeyHash),
		"metadata_hash":      canon.H(p.MetadataHash),
		"timestamp":          canon.Int(p.Timestamp),
		"claimed":            canon.Bool(p.Claimed),
	}
	if p.Claimed {
		obj["claimed_by"] = canon.Addr(p.ClaimedBy)
		obj["claimed_to"] = canon.Addr(p.ClaimedTo)
		obj["signer"] = canon.Addr(p.Signer)
		obj["claimed_at"] = canon.Int(p.ClaimedAt)
	}
	return obj
}

func scheduledValue(p scheduler.Payroll) canon.Object {
	obj := canon.Object{
		"payroll_id":    canon.H(p.ID),
		"creator":       canon.Addr(p.Creator),
		"recipients":    canon.Addrs(p.Recipients),
		"amounts":       canon.Amts(p.Amounts),
		"total_amount":  canon.Amt(p.TotalAmount),
		"execute_after": canon.Int(p.ExecuteAfter),
		"status":        canon.String(p.Status.String()),
		"executed":      canon.Bool(p.Executed),
		"executed_at":   canon.Int(p.ExecutedAt),
	}
	switch p.Status {
	case scheduler.StatusExecuted:
		obj["executed_by"] = canon.Addr(p.ExecutedBy)
		obj["nonce"] = canon.H(p.Nonce)
	case scheduler.StatusCancelled:
		obj["cancelled_at"] = canon.Int(p.CancelledAt)
	}
	return obj
}

func documentValue(d compliance.Document) canon.Object {
	obj := canon.Object{
		"doc_hash":      canon.H(d.Hash),
		"ipfs_cid":      canon.String(d.IPFSCid),
		"registered_by": canon.Addr(d.RegisteredBy),
		"registered_at": canon.Int(d.RegisteredAt),
		"verified":      canon.Bool(d.Verified),
	}
	if d.Verified {
		obj["verified_by"] = canon.Addr(d.VerifiedBy)
		obj["verified_at"] = canon.Int(d.VerifiedAt)
	}
	return obj
}

func entityValue(s compliance.EntityStatus) canon.Object {
	return canon.Object{
		"is_verified": canon.Bool(s.IsVerified),
		"verified_at": canon.Int(s.VerifiedAt),
		"verified_by": canon.Addr(s.VerifiedBy),
	}
}

func reserveValue(r ledger.ReserveData) canon.Object {
	return canon.Object{
		"current_liquidity_rate": canon.String(r.CurrentLiquidityRate.Text('f')),
		"liquidity_index":        canon.String(r.LiquidityIndex.Text('f')),
		"a_token_address":        canon.Addr(r.ATokenAddress),
		"last_update_timestamp":  canon.Int(r.LastUpdateTimestamp),
	}
}
