// Package canon provides the constrained value model used for call
// arguments, event fields and content-addressed identifiers.
//
// Values are limited to String, Int, Bool, Array and Object. There is no
// float and no null. Amounts, addresses and hashes travel as strings so
// that every uint64 amount survives a JSON round trip exactly.
//
// MarshalCanonical produces RFC 8785 canonical JSON (keys ordered by UTF-16
// code units, NFC-normalized strings, no HTML escaping). It is the only
// encoding used for hashing: batch ids, payment ids, payroll ids, signed
// message digests and event digests are all SHA-256 over a domain prefix, a
// 0x00 separator and the canonical bytes.
package canon
