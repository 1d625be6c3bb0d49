// Package protocol wires the FlowGuard components around one asset and one
// lending pool and exposes them through a generic call surface.
//
// A Call names a component and a method and carries canonical JSON
// arguments. Apply runs one call under the protocol mutex inside a
// ledger.Tx: a rejected call is reverted in full and reported in the
// Receipt, a successful call is handed to the commit hook before it is
// final. The engine uses the hook to persist every call; if persisting
// fails the call is reverted.
//
// Component names:
//
//	payroll, stealth, scheduler, vault, compliance   ledger components
//	asset, pool                                      external primitives
//	access.<component>                               roles and pause switch
//
// Method names follow the component's operation names in lower camel case,
// e.g. "payroll.executePayroll" or "access.vault.pause".
package protocol
