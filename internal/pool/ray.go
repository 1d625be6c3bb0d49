package pool

import (
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/flowguard/internal/types"
)

// SecondsPerYear is the accrual period of the liquidity rate.
const SecondsPerYear = 31536000

// Ray is 1e27, the fixed-point unit of rates and indexes.
var Ray = apd.New(1, 27)

// raySquared converts between asset units and scaled balances, which carry
// ray precision on top of the ray-valued index.
var raySquared = apd.New(1, 54)

// All values handled here are non-negative integers; QuoInteger keeps
// division exact at any magnitude the precision covers.
var arith = apd.BaseContext.WithPrecision(100)

// ParseRay parses a non-negative integer ray value.
func ParseRay(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse ray %q: %w", s, err)
	}
	if d.Negative || d.Form != apd.Finite {
		return nil, fmt.Errorf("parse ray %q: must be a finite non-negative value", s)
	}
	var i apd.Decimal
	if _, err := arith.RoundToIntegralExact(&i, d); err != nil {
		return nil, fmt.Errorf("parse ray %q: %w", s, err)
	}
	if i.Cmp(d) != 0 {
		return nil, fmt.Errorf("parse ray %q: must be an integer", s)
	}
	return &i, nil
}

func fromAmount(a types.Amount) *apd.Decimal {
	d, _, _ := apd.NewFromString(strconv.FormatUint(uint64(a), 10))
	return d
}

func toAmount(d *apd.Decimal) (types.Amount, bool) {
	u, err := strconv.ParseUint(d.Text('f'), 10, 64)
	if err != nil {
		return 0, false
	}
	return types.Amount(u), true
}

// mulDiv returns a*b/c rounded down, or rounded up when ceil is set.
func mulDiv(a, b, c *apd.Decimal, ceil bool) (*apd.Decimal, error) {
	var prod, q, rem apd.Decimal
	if _, err := arith.Mul(&prod, a, b); err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	if _, err := arith.QuoInteger(&q, &prod, c); err != nil {
		return nil, fmt.Errorf("quo: %w", err)
	}
	if ceil {
		if _, err := arith.Rem(&rem, &prod, c); err != nil {
			return nil, fmt.Errorf("rem: %w", err)
		}
		if !rem.IsZero() {
			if _, err := arith.Add(&q, &q, apd.New(1, 0)); err != nil {
				return nil, fmt.Errorf("add: %w", err)
			}
		}
	}
	return &q, nil
}

// accrue returns index × (1 + rate × elapsed / SecondsPerYear), with rate and
// index in ray units.
func accrue(index, rate *apd.Decimal, elapsed int64) (*apd.Decimal, error) {
	if elapsed <= 0 || rate.IsZero() {
		return new(apd.Decimal).Set(index), nil
	}
	growth, err := mulDiv(rate, apd.New(elapsed, 0), apd.New(SecondsPerYear, 0), false)
	if err != nil {
		return nil, err
	}
	var factor apd.Decimal
	if _, err := arith.Add(&factor, Ray, growth); err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	return mulDiv(index, &factor, Ray, false)
}
