package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/roach88/flowguard/internal/types"
)

// Value is a sealed interface over the permitted value kinds.
type Value interface {
	canonValue()
}

// String is a string value.
type String string

// Int is a signed 64-bit integer value.
type Int int64

// Bool is a boolean value.
type Bool bool

// Array is an ordered list of values.
type Array []Value

// Object maps string keys to values. Iterate with SortedKeys for a
// deterministic order.
type Object map[string]Value

func (String) canonValue() {}
func (Int) canonValue()    {}
func (Bool) canonValue()   {}
func (Array) canonValue()  {}
func (Object) canonValue() {}

// Addr encodes an address as its hex string.
func Addr(a types.Address) String { return String(a.String()) }

// H encodes a hash as its hex string.
func H(h types.Hash) String { return String(h.String()) }

// Amt encodes an amount as a base-10 string.
func Amt(a types.Amount) String { return String(a.String()) }

// Addrs encodes a list of addresses.
func Addrs(addrs []types.Address) Array {
	arr := make(Array, len(addrs))
	for i, a := range addrs {
		arr[i] = Addr(a)
	}
	return arr
}

// Amts encodes a list of amounts.
func Amts(amounts []types.Amount) Array {
	arr := make(Array, len(amounts))
	for i, a := range amounts {
		arr[i] = Amt(a)
	}
	return arr
}

// Hashes encodes a list of hashes.
func Hashes(hashes []types.Hash) Array {
	arr := make(Array, len(hashes))
	for i, h := range hashes {
		arr[i] = H(h)
	}
	return arr
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// MarshalJSON emits the canonical form so stored args and event fields are
// byte-stable.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON emits the canonical form.
func (arr Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// UnmarshalJSON implements json.Unmarshaler with the strict rules of
// Unmarshal.
func (obj *Object) UnmarshalJSON(data []byte) error {
	v, err := Unmarshal(data)
	if err != nil {
		return err
	}
	o, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %T", v)
	}
	*obj = o
	return nil
}

// Unmarshal decodes JSON into a Value. Floats and null are rejected.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON (or hand-built Go values) to a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a permitted value")
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not permitted: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not permitted: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}

// ToGo converts a Value to plain Go values (string, int64, bool, []any,
// map[string]any) for printing and templating.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToGo(e)
		}
		return out
	}
	return nil
}
