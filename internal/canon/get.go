package canon

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/roach88/flowguard/internal/types"
)

// FieldError reports a missing or malformed argument.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("argument %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (obj Object) lookup(key string) (Value, error) {
	v, ok := obj[key]
	if !ok {
		return nil, &FieldError{Field: key, Err: fmt.Errorf("missing")}
	}
	return v, nil
}

// Str returns the string at key.
func (obj Object) Str(key string) (string, error) {
	v, err := obj.lookup(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(String)
	if !ok {
		return "", &FieldError{Field: key, Err: fmt.Errorf("want string, got %T", v)}
	}
	return string(s), nil
}

// Integer returns the integer at key.
func (obj Object) Integer(key string) (int64, error) {
	v, err := obj.lookup(key)
	if err != nil {
		return 0, err
	}
	n, ok := v.(Int)
	if !ok {
		return 0, &FieldError{Field: key, Err: fmt.Errorf("want integer, got %T", v)}
	}
	return int64(n), nil
}

// Uint returns the non-negative integer at key.
func (obj Object) Uint(key string) (uint64, error) {
	n, err := obj.Integer(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &FieldError{Field: key, Err: fmt.Errorf("negative value %d", n)}
	}
	return uint64(n), nil
}

// Boolean returns the boolean at key.
func (obj Object) Boolean(key string) (bool, error) {
	v, err := obj.lookup(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(Bool)
	if !ok {
		return false, &FieldError{Field: key, Err: fmt.Errorf("want bool, got %T", v)}
	}
	return bool(b), nil
}

// Address returns the address at key.
func (obj Object) Address(key string) (types.Address, error) {
	s, err := obj.Str(key)
	if err != nil {
		return types.Address{}, err
	}
	a, err := types.ParseAddress(s)
	if err != nil {
		return a, &FieldError{Field: key, Err: err}
	}
	return a, nil
}

// Hash returns the hash at key.
func (obj Object) Hash(key string) (types.Hash, error) {
	s, err := obj.Str(key)
	if err != nil {
		return types.Hash{}, err
	}
	h, err := types.ParseHash(s)
	if err != nil {
		return h, &FieldError{Field: key, Err: err}
	}
	return h, nil
}

// Amount returns the amount at key. Both decimal strings and integers are
// accepted; integers must be non-negative.
func (obj Object) Amount(key string) (types.Amount, error) {
	v, err := obj.lookup(key)
	if err != nil {
		return 0, err
	}
	return toAmount(key, v)
}

func toAmount(key string, v Value) (types.Amount, error) {
	switch val := v.(type) {
	case String:
		a, err := types.ParseAmount(string(val))
		if err != nil {
			return 0, &FieldError{Field: key, Err: err}
		}
		return a, nil
	case Int:
		if val < 0 {
			return 0, &FieldError{Field: key, Err: fmt.Errorf("negative amount %d", val)}
		}
		return types.Amount(val), nil
	}
	return 0, &FieldError{Field: key, Err: fmt.Errorf("want amount, got %T", v)}
}

func (obj Object) array(key string) (Array, error) {
	v, err := obj.lookup(key)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(Array)
	if !ok {
		return nil, &FieldError{Field: key, Err: fmt.Errorf("want array, got %T", v)}
	}
	return arr, nil
}

// Addresses returns the address list at key.
func (obj Object) Addresses(key string) ([]types.Address, error) {
	arr, err := obj.array(key)
	if err != nil {
		return nil, err
	}
	out := make([]types.Address, len(arr))
	for i, e := range arr {
		s, ok := e.(String)
		if !ok {
			return nil, &FieldError{Field: fmt.Sprintf("%s[%d]", key, i), Err: fmt.Errorf("want string, got %T", e)}
		}
		a, err := types.ParseAddress(string(s))
		if err != nil {
			return nil, &FieldError{Field: fmt.Sprintf("%s[%d]", key, i), Err: err}
		}
		out[i] = a
	}
	return out, nil
}

// Amounts returns the amount list at key.
func (obj Object) Amounts(key string) ([]types.Amount, error) {
	arr, err := obj.array(key)
	if err != nil {
		return nil, err
	}
	out := make([]types.Amount, len(arr))
	for i, e := range arr {
		a, err := toAmount(fmt.Sprintf("%s[%d]", key, i), e)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// OptionalUint returns the integer at key or def when the key is absent.
func (obj Object) OptionalUint(key string, def uint64) (uint64, error) {
	if _, ok := obj[key]; !ok {
		return def, nil
	}
	return obj.Uint(key)
}

// HexBytes returns the 0x-prefixed hex byte string at key.
func (obj Object) HexBytes(key string) ([]byte, error) {
	s, err := obj.Str(key)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, &FieldError{Field: key, Err: err}
	}
	return raw, nil
}

// Bytes encodes raw as a 0x-prefixed hex string.
func Bytes(raw []byte) String {
	return String("0x" + hex.EncodeToString(raw))
}
