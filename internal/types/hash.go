package types

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the byte length of a Hash.
const HashLength = 32

// Hash is an opaque 32-byte value: content-derived ids, document hashes,
// ephemeral key hashes and nonces all use it.
type Hash [HashLength]byte

// ZeroHash is the all-zero hash.
var ZeroHash Hash

// IsZero reports whether h is all zeroes.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the 0x-prefixed lowercase hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashLength)
	copy(b, h[:])
	return b
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash parses a 0x-prefixed (or bare) 64 character hex string.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := decodeHex(s, HashLength)
	if err != nil {
		return h, fmt.Errorf("parse hash %q: %w", s, err)
	}
	copy(h[:], raw)
	return h, nil
}

// MustParseHash is like ParseHash but panics on error.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// BytesToHash copies b into a Hash. b must be exactly HashLength bytes.
func BytesToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}
