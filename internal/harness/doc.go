// Package harness runs FlowGuard scenarios: scripted call sequences with
// expected outcomes, executed through the real engine against a fresh
// protocol and an in-memory call log.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: payroll_basic
//	description: "What this scenario validates"
//	accounts:
//	  payer: "0x00000000000000000000000000000000000000b1"
//	keys: [claimer]
//	setup:
//	  - call: asset.mint
//	    args: { to: $payer, amount: "1000" }
//	flow:
//	  - id: run
//	    call: payroll.executePayroll
//	    as: payer
//	    args: { recipients: [$alice], amounts: ["100"] }
//	    expect:
//	      status: applied
//	assertions:
//	  - type: event_count
//	    event: payroll.PaymentDisbursed
//	    count: 1
//	  - type: query
//	    call: payroll.getTotalDisbursed
//	    expect: "100"
//
// Calls run as admin unless "as" names another alias. See Resolver for
// the argument substitutions ($alias, $now+N, $step.field, hash_of and
// the signing forms).
//
// # Assertion Types
//
//   - event_emitted: some logged event matches name and fields (subset)
//   - event_count: exactly N logged events match
//   - call_order: calls first appear in the given order
//   - call_count: exactly N logged calls of a name, optionally by status
//   - query: a read-only method returns the expected value
//
// # Deterministic Testing
//
// Ledger time starts at config.start_time and moves only by a step's
// "advance"; transaction ids are tx-0001, tx-0002, ... Two runs of a
// scenario produce byte-identical snapshots, which RunWithGolden compares
// with testdata/golden/<name>.golden.
package harness
