// Package types defines the value types shared by every ledger component:
// 20-byte account addresses, 32-byte hashes, fixed-precision amounts with
// checked arithmetic, and the role enumeration.
//
// Amounts are unsigned integers in the asset's smallest unit. There are no
// floats anywhere in ledger state; every arithmetic helper reports overflow
// or underflow instead of wrapping.
package types
