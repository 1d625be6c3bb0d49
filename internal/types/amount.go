package types

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Amount is a non-negative quantity of the asset in its smallest unit.
type Amount uint64

// MaxAmount is the largest representable amount.
const MaxAmount = Amount(^uint64(0))

// Add returns a+b and false if the sum overflows.
func (a Amount) Add(b Amount) (Amount, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 {
		return 0, false
	}
	return Amount(sum), true
}

// Sub returns a-b and false if b > a.
func (a Amount) Sub(b Amount) (Amount, bool) {
	diff, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		return 0, false
	}
	return Amount(diff), true
}

// MulDiv returns floor(a*b/d) using a 128-bit intermediate.
// It returns false when d is zero or the quotient does not fit in 64 bits.
func (a Amount) MulDiv(b, d Amount) (Amount, bool) {
	if d == 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(d) {
		return 0, false
	}
	quo, _ := bits.Div64(hi, lo, uint64(d))
	return Amount(quo), true
}

// Sum adds all amounts, reporting false on overflow.
func Sum(amounts []Amount) (Amount, bool) {
	var total Amount
	for _, amt := range amounts {
		var ok bool
		total, ok = total.Add(amt)
		if !ok {
			return 0, false
		}
	}
	return total, true
}

// String returns the base-10 representation in smallest units.
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// ParseAmount parses a base-10 integer in smallest units.
func ParseAmount(s string) (Amount, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount(v), nil
}
