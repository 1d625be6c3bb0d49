package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of an account address.
const AddressLength = 20

// Address identifies an account, a component, or an external primitive.
type Address [AddressLength]byte

// ZeroAddress is the null address. Every operation that takes an address
// rejects it where the address would receive funds or a role.
var ZeroAddress Address

// IsZero reports whether a is the null address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String returns the 0x-prefixed lowercase hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a 0x-prefixed (or bare) 40 character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := decodeHex(s, AddressLength)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only in tests or for compile-time constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// BytesToAddress copies the last AddressLength bytes of b into an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func decodeHex(s string, size int) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != size*2 {
		return nil, fmt.Errorf("want %d hex characters, got %d", size*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
