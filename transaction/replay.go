package transaction

import (
	"fmt"

	"github.com/Kushagra2569/transaction-service/types"
)

// Replay applies entries to the opening balances and returns the
// resulting balances. Accounts missing from opening start at zero.
func Replay(opening map[string]types.Amount, entries []*Transaction) (map[string]types.Amount, error) {
	out := make(map[string]types.Amount, len(opening))
	for k, v := range opening {
		out[k] = v
	}

	for _, t := range entries {
		from, err := out[t.From].Add(t.Amount.Negate())
		if err != nil {
			return nil, fmt.Errorf("transaction: replay %s: %w", t.ID, err)
		}
		to, err := out[t.To].Add(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction: replay %s: %w", t.ID, err)
		}
		out[t.From] = from
		out[t.To] = to
	}

	return out, nil
}
