package protocol

import (
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

type mutation func(tx *ledger.Tx, args canon.Object) (canon.Value, error)

// pausable lists the components whose guard exposes pause and unpause.
var pausable = map[string]bool{
	payroll.Component:    true,
	stealth.Component:    true,
	scheduler.Component:  true,
	vault.Component:      true,
	compliance.Component: true,
}

func (p *Protocol) mutationTable() map[string]mutation {
	t := map[string]mutation{
		// payroll
		"payroll.addRecipient": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			r, err := a.Address("recipient")
			if err != nil {
				return nil, err
			}
			label, err := a.Str("label")
			if err != nil {
				return nil, err
			}
			return nil, p.Payroll.AddRecipient(tx, r, label)
		},
		"payroll.removeRecipient": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			r, err := a.Address("recipient")
			if err != nil {
				return nil, err
			}
			return nil, p.Payroll.RemoveRecipient(tx, r)
		},
		"payroll.executePayroll": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			recipients, amounts, err := distribution(a)
			if err != nil {
				return nil, err
			}
			id, err := p.Payroll.ExecutePayroll(tx, recipients, amounts)
			if err != nil {
				return nil, err
			}
			return canon.Object{"batch_id": canon.H(id)}, nil
		},

		// stealth
		"stealth.sendStealthPayment": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			eph, err := a.Hash("ephemeral_key_hash")
			if err != nil {
				return nil, err
			}
			meta, err := a.Hash("metadata_hash")
			if err != nil {
				return nil, err
			}
			id, err := p.Stealth.SendStealthPayment(tx, amount, eph, meta)
			if err != nil {
				return nil, err
			}
			return canon.Object{"payment_id": canon.H(id)}, nil
		},
		"stealth.claimStealthPayment": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			id, err := a.Hash("payment_id")
			if err != nil {
				return nil, err
			}
			to, err := a.Address("recipient")
			if err != nil {
				return nil, err
			}
			proof, err := a.HexBytes("signature")
			if err != nil {
				return nil, err
			}
			return nil, p.Stealth.ClaimStealthPayment(tx, id, to, proof)
		},

		// scheduler
		"scheduler.registerAgent": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			agent, err := a.Address("agent")
			if err != nil {
				return nil, err
			}
			return nil, p.Scheduler.RegisterAgent(tx, agent)
		},
		"scheduler.revokeAgent": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			agent, err := a.Address("agent")
			if err != nil {
				return nil, err
			}
			return nil, p.Scheduler.RevokeAgent(tx, agent)
		},
		"scheduler.schedulePayroll": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			recipients, amounts, err := distribution(a)
			if err != nil {
				return nil, err
			}
			after, err := a.Integer("execute_after")
			if err != nil {
				return nil, err
			}
			id, err := p.Scheduler.SchedulePayroll(tx, recipients, amounts, after)
			if err != nil {
				return nil, err
			}
			return canon.Object{"payroll_id": canon.H(id)}, nil
		},
		"scheduler.executeScheduledPayroll": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			id, err := a.Hash("payroll_id")
			if err != nil {
				return nil, err
			}
			nonce, err := a.Hash("nonce")
			if err != nil {
				return nil, err
			}
			proof, err := a.HexBytes("signature")
			if err != nil {
				return nil, err
			}
			return nil, p.Scheduler.ExecuteScheduledPayroll(tx, id, nonce, proof)
		},
		"scheduler.cancelScheduledPayroll": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			id, err := a.Hash("payroll_id")
			if err != nil {
				return nil, err
			}
			return nil, p.Scheduler.CancelScheduledPayroll(tx, id)
		},

		// vault
		"vault.deposit": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Vault.Deposit(tx, amount)
		},
		"vault.withdraw": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Vault.Withdraw(tx, amount)
		},

		// compliance
		"compliance.registerDocument": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			h, err := a.Hash("doc_hash")
			if err != nil {
				return nil, err
			}
			cid, err := a.Str("ipfs_cid")
			if err != nil {
				return nil, err
			}
			return nil, p.Compliance.RegisterDocument(tx, h, cid)
		},
		"compliance.verifyDocument": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			h, err := a.Hash("doc_hash")
			if err != nil {
				return nil, err
			}
			return nil, p.Compliance.VerifyDocument(tx, h)
		},
		"compliance.setEntityVerification": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			entity, err := a.Address("entity")
			if err != nil {
				return nil, err
			}
			verified, err := a.Boolean("verified")
			if err != nil {
				return nil, err
			}
			return nil, p.Compliance.SetEntityVerification(tx, entity, verified)
		},

		// asset
		"asset.transfer": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			to, err := a.Address("to")
			if err != nil {
				return nil, err
			}
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Asset.Transfer(tx, tx.Caller, to, amount)
		},
		"asset.transferFrom": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			from, err := a.Address("from")
			if err != nil {
				return nil, err
			}
			to, err := a.Address("to")
			if err != nil {
				return nil, err
			}
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Asset.TransferFrom(tx, tx.Caller, from, to, amount)
		},
		"asset.approve": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			spender, err := a.Address("spender")
			if err != nil {
				return nil, err
			}
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Asset.Approve(tx, tx.Caller, spender, amount)
		},
		"asset.mint": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			to, err := a.Address("to")
			if err != nil {
				return nil, err
			}
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Asset.Mint(tx, to, amount)
		},

		// pool
		"pool.supply": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			onBehalfOf, err := optionalAddress(a, "on_behalf_of", tx.Caller)
			if err != nil {
				return nil, err
			}
			return nil, p.Pool.Supply(tx, tx.Caller, p.Asset.Address(), amount, onBehalfOf)
		},
		"pool.withdraw": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			to, err := optionalAddress(a, "to", tx.Caller)
			if err != nil {
				return nil, err
			}
			return nil, p.Pool.Withdraw(tx, tx.Caller, p.Asset.Address(), amount, to)
		},
		"pool.fund": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			amount, err := a.Amount("amount")
			if err != nil {
				return nil, err
			}
			return nil, p.Pool.Fund(tx, p.Asset.Address(), amount)
		},
		"pool.setLiquidityRate": func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
			s, err := a.Str("rate")
			if err != nil {
				return nil, err
			}
			rate, err := pool.ParseRay(s)
			if err != nil {
				return nil, &canon.FieldError{Field: "rate", Err: err}
			}
			return nil, p.Pool.SetLiquidityRate(tx, p.Asset.Address(), rate)
		},
	}

	for component, g := range p.guards {
		prefix := "access." + component + "."
		t[prefix+"grantRole"] = roleMutation(g.GrantRole)
		t[prefix+"revokeRole"] = roleMutation(g.RevokeRole)
		if pausable[component] {
			t[prefix+"pause"] = func(tx *ledger.Tx, _ canon.Object) (canon.Value, error) {
				return nil, g.Pause(tx)
			}
			t[prefix+"unpause"] = func(tx *ledger.Tx, _ canon.Object) (canon.Value, error) {
				return nil, g.Unpause(tx)
			}
		}
	}
	return t
}

func roleMutation(fn func(*ledger.Tx, types.Role, types.Address) error) mutation {
	return func(tx *ledger.Tx, a canon.Object) (canon.Value, error) {
		role, err := roleArg(a)
		if err != nil {
			return nil, err
		}
		account, err := a.Address("account")
		if err != nil {
			return nil, err
		}
		return nil, fn(tx, role, account)
	}
}
