package protocol

import (
	"errors"
	"slices"

	"github.com/roach88/flowguard/internal/canon"
	"github.com/roach88/flowguard/internal/ledger"
	"github.com/roach88/flowguard/internal/types"
)

const defaultPageLimit = 100

func distribution(a canon.Object) ([]types.Address, []types.Amount, error) {
	recipients, err := a.Addresses("recipients")
	if err != nil {
		return nil, nil, err
	}
	amounts, err := a.Amounts("amounts")
	if err != nil {
		return nil, nil, err
	}
	return recipients, amounts, nil
}

func roleArg(a canon.Object) (types.Role, error) {
	s, err := a.Str("role")
	if err != nil {
		return 0, err
	}
	r, err := types.ParseRole(s)
	if err != nil {
		return 0, &canon.FieldError{Field: "role", Err: err}
	}
	return r, nil
}

func optionalAddress(a canon.Object, key string, def types.Address) (types.Address, error) {
	if _, ok := a[key]; !ok {
		return def, nil
	}
	return a.Address(key)
}

func page(a canon.Object) (offset, limit uint64, err error) {
	if offset, err = a.OptionalUint("offset", 0); err != nil {
		return 0, 0, err
	}
	if limit, err = a.OptionalUint("limit", defaultPageLimit); err != nil {
		return 0, 0, err
	}
	return offset, limit, nil
}

// normalize turns argument decoding failures into ledger errors so every
// rejection carries a code.
func normalize(component string, err error) error {
	var le *ledger.Error
	if errors.As(err, &le) {
		return err
	}
	var fe *canon.FieldError
	if errors.As(err, &fe) {
		e := ledger.ErrInvalidArgument.In(component).WithField(fe.Field)
		e.Message = fe.Err.Error()
		return e
	}
	return ledger.Errorf(ledger.CodeInvalidArgument, "%v", err).In(component)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
