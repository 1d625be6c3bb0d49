package protocol

import (
	"github.com/roach88/flowguard/internal/canon"
)

type query func(args canon.Object, now int64) (canon.Value, error)

// static adapts a query that needs neither arguments nor time.
func static(fn func() canon.Value) query {
	return func(canon.Object, int64) (canon.Value, error) { return fn(), nil }
}

func (p *Protocol) queryTable() map[string]query {
	t := map[string]query{
		// payroll
		"payroll.getRecipients": static(func() canon.Value { return canon.Addrs(p.Payroll.Recipients()) }),
		"payroll.getRecipientLabel": func(a canon.Object, _ int64) (canon.Value, error) {
			r, err := a.Address("recipient")
			if err != nil {
				return nil, err
			}
			return canon.String(p.Payroll.RecipientLabel(r)), nil
		},
		"payroll.isRecipient": func(a canon.Object, _ int64) (canon.Value, error) {
			r, err := a.Address("recipient")
			if err != nil {
				return nil, err
			}
			return canon.Bool(p.Payroll.IsRecipient(r)), nil
		},
		"payroll.getTotalDisbursed": static(func() canon.Value { return canon.Amt(p.Payroll.TotalDisbursed()) }),
		"payroll.getBatchCount":     static(func() canon.Value { return uintValue(p.Payroll.BatchCount()) }),
		"payroll.getBatchIds": func(a canon.Object, _ int64) (canon.Value, error) {
			offset, limit, err := page(a)
			if err != nil {
				return nil, err
			}
			return canon.Hashes(p.Payroll.BatchIDs(offset, limit)), nil
		},
		"payroll.getBatch": func(a canon.Object, _ int64) (canon.Value, error) {
			id, err := a.Hash("batch_id")
			if err != nil {
				return nil, err
			}
			b, err := p.Payroll.Batch(id)
			if err != nil {
				return nil, err
			}
			return batchValue(b), nil
		},
		"payroll.asset": static(func() canon.Value { return canon.Addr(p.Payroll.Asset()) }),

		// stealth
		"stealth.getPayment": func(a canon.Object, _ int64) (canon.Value, error) {
			id, err := a.Hash("payment_id")
			if err != nil {
				return nil, err
			}
			pay, err := p.Stealth.Payment(id)
			if err != nil {
				return nil, err
			}
			return paymentValue(pay), nil
		},
		"stealth.getPaymentCount":       static(func() canon.Value { return uintValue(p.Stealth.PaymentCount()) }),
		"stealth.getTotalStealthVolume": static(func() canon.Value { return canon.Amt(p.Stealth.TotalStealthVolume()) }),
		"stealth.getEscrowBalance":      static(func() canon.Value { return canon.Amt(p.Stealth.EscrowBalance()) }),
		"stealth.getPaymentIds": func(a canon.Object, _ int64) (canon.Value, error) {
			offset, limit, err := page(a)
			if err != nil {
				return nil, err
			}
			return canon.Hashes(p.Stealth.PaymentIDs(offset, limit)), nil
		},

		// scheduler
		"scheduler.getPayroll": func(a canon.Object, _ int64) (canon.Value, error) {
			id, err := a.Hash("payroll_id")
			if err != nil {
				return nil, err
			}
			sp, err := p.Scheduler.Payroll(id)
			if err != nil {
				return nil, err
			}
			return scheduledValue(sp), nil
		},
		"scheduler.getTotalScheduled":       static(func() canon.Value { return uintValue(p.Scheduler.TotalScheduled()) }),
		"scheduler.getTotalExecuted":        static(func() canon.Value { return uintValue(p.Scheduler.TotalExecuted()) }),
		"scheduler.getTotalScheduledAmount": static(func() canon.Value { return canon.Amt(p.Scheduler.TotalScheduledAmount()) }),
		"scheduler.getTotalExecutedAmount":  static(func() canon.Value { return canon.Amt(p.Scheduler.TotalExecutedAmount()) }),
		"scheduler.isNonceUsed": func(a canon.Object, _ int64) (canon.Value, error) {
			n, err := a.Hash("nonce")
			if err != nil {
				return nil, err
			}
			return canon.Bool(p.Scheduler.IsNonceUsed(n)), nil
		},
		"scheduler.isAgent": func(a canon.Object, _ int64) (canon.Value, error) {
			agent, err := a.Address("agent")
			if err != nil {
				return nil, err
			}
			return canon.Bool(p.Scheduler.IsAgent(agent)), nil
		},
		"scheduler.getPayrollIds": func(a canon.Object, _ int64) (canon.Value, error) {
			offset, limit, err := page(a)
			if err != nil {
				return nil, err
			}
			return canon.Hashes(p.Scheduler.PayrollIDs(offset, limit)), nil
		},
		"scheduler.core": static(func() canon.Value { return canon.Addr(p.Scheduler.Core()) }),

		// vault
		"vault.getDeposit": func(a canon.Object, _ int64) (canon.Value, error) {
			u, err := a.Address("user")
			if err != nil {
				return nil, err
			}
			return canon.Amt(p.Vault.DepositOf(u)), nil
		},
		"vault.getTotalDeposits": static(func() canon.Value { return canon.Amt(p.Vault.TotalDeposits()) }),
		"vault.getTotalBalance": func(_ canon.Object, now int64) (canon.Value, error) {
			return canon.Amt(p.Vault.TotalBalance(now)), nil
		},
		"vault.getYield": func(a canon.Object, now int64) (canon.Value, error) {
			u, err := a.Address("user")
			if err != nil {
				return nil, err
			}
			return canon.Amt(p.Vault.Yield(u, now)), nil
		},
		"vault.getDepositors": static(func() canon.Value { return canon.Addrs(p.Vault.Depositors()) }),
		"vault.getCurrentAPY": func(_ canon.Object, now int64) (canon.Value, error) {
			apy, err := p.Vault.CurrentAPY(now)
			if err != nil {
				return nil, err
			}
			return canon.String(apy), nil
		},
		"vault.pool": static(func() canon.Value { return canon.Addr(p.Vault.Pool()) }),
		"vault.aToken": func(_ canon.Object, now int64) (canon.Value, error) {
			a, err := p.Vault.AToken(now)
			if err != nil {
				return nil, err
			}
			return canon.Addr(a), nil
		},

		// compliance
		"compliance.getDocument": func(a canon.Object, _ int64) (canon.Value, error) {
			h, err := a.Hash("doc_hash")
			if err != nil {
				return nil, err
			}
			d, err := p.Compliance.Document(h)
			if err != nil {
				return nil, err
			}
			return documentValue(d), nil
		},
		"compliance.isEntityVerified": func(a canon.Object, _ int64) (canon.Value, error) {
			e, err := a.Address("entity")
			if err != nil {
				return nil, err
			}
			return canon.Bool(p.Compliance.IsEntityVerified(e)), nil
		},
		"compliance.getEntityStatus": func(a canon.Object, _ int64) (canon.Value, error) {
			e, err := a.Address("entity")
			if err != nil {
				return nil, err
			}
			return entityValue(p.Compliance.EntityStatus(e)), nil
		},
		"compliance.getTotalDocuments":    static(func() canon.Value { return uintValue(p.Compliance.TotalDocuments()) }),
		"compliance.getVerifiedDocuments": static(func() canon.Value { return uintValue(p.Compliance.VerifiedDocuments()) }),
		"compliance.getDocumentHashes": func(a canon.Object, _ int64) (canon.Value, error) {
			offset, limit, err := page(a)
			if err != nil {
				return nil, err
			}
			return canon.Hashes(p.Compliance.DocumentHashes(offset, limit)), nil
		},
		"compliance.getEntityDocuments": func(a canon.Object, _ int64) (canon.Value, error) {
			e, err := a.Address("entity")
			if err != nil {
				return nil, err
			}
			offset, limit, err := page(a)
			if err != nil {
				return nil, err
			}
			return canon.Hashes(p.Compliance.EntityDocuments(e, offset, limit)), nil
		},

		// asset
		"asset.balanceOf": func(a canon.Object, _ int64) (canon.Value, error) {
			owner, err := a.Address("owner")
			if err != nil {
				return nil, err
			}
			return canon.Amt(p.Asset.BalanceOf(owner)), nil
		},
		"asset.allowance": func(a canon.Object, _ int64) (canon.Value, error) {
			owner, err := a.Address("owner")
			if err != nil {
				return nil, err
			}
			spender, err := a.Address("spender")
			if err != nil {
				return nil, err
			}
			return canon.Amt(p.Asset.Allowance(owner, spender)), nil
		},
		"asset.totalSupply": static(func() canon.Value { return canon.Amt(p.Asset.TotalSupply()) }),
		"asset.info": static(func() canon.Value {
			return canon.Object{
				"address":  canon.Addr(p.Asset.Address()),
				"symbol":   canon.String(p.Asset.Symbol()),
				"decimals": canon.Int(int64(p.Asset.Decimals())),
			}
		}),

		// pool
		"pool.getReserveData": func(_ canon.Object, now int64) (canon.Value, error) {
			r, err := p.Pool.ReserveData(p.Asset.Address(), now)
			if err != nil {
				return nil, err
			}
			return reserveValue(r), nil
		},
		"pool.balanceOf": func(a canon.Object, now int64) (canon.Value, error) {
			holder, err := a.Address("holder")
			if err != nil {
				return nil, err
			}
			bal, err := p.Pool.BalanceOf(p.Asset.Address(), holder, now)
			if err != nil {
				return nil, err
			}
			return canon.Amt(bal), nil
		},
	}

	for component, g := range p.guards {
		prefix := "access." + component + "."
		t[prefix+"hasRole"] = func(a canon.Object, _ int64) (canon.Value, error) {
			role, err := roleArg(a)
			if err != nil {
				return nil, err
			}
			account, err := a.Address("account")
			if err != nil {
				return nil, err
			}
			return canon.Bool(g.HasRole(role, account)), nil
		}
		t[prefix+"getRoleMembers"] = func(a canon.Object, _ int64) (canon.Value, error) {
			role, err := roleArg(a)
			if err != nil {
				return nil, err
			}
			return canon.Addrs(g.Members(role)), nil
		}
		t[prefix+"paused"] = static(func() canon.Value { return canon.Bool(g.Paused()) })
	}
	return t
}

