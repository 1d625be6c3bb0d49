package ledger

import (
	"fmt"

	"github.com/roach88/flowguard/internal/types"
)

// CheckDistribution validates parallel recipient and amount lists and
// returns their exact sum.
func CheckDistribution(component string, recipients []types.Address, amounts []types.Amount) (types.Amount, error) {
	if len(recipients) == 0 {
		return 0, ErrEmptyRecipients.In(component).WithField("recipients")
	}
	if len(recipients) != len(amounts) {
		e := ErrLengthMismatch.In(component).WithField("amounts")
		e.Message = fmt.Sprintf("%d recipients, %d amounts", len(recipients), len(amounts))
		return 0, e
	}
	var total types.Amount
	for i, r := range recipients {
		if r.IsZero() {
			return 0, ErrZeroRecipient.In(component).WithField(fmt.Sprintf("recipients[%d]", i))
		}
		if amounts[i] == 0 {
			return 0, ErrZeroAmount.In(component).WithField(fmt.Sprintf("amounts[%d]", i))
		}
		var ok bool
		if total, ok = total.Add(amounts[i]); !ok {
			return 0, ErrOverflow.In(component).WithField("amounts")
		}
	}
	return total, nil
}
