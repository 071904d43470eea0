package ledger

import "github.com/Kushagra2569/transaction-service/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount helpers
var (
	ParseAmount     = types.ParseAmount
	MustParseAmount = types.MustParseAmount
	Sum             = types.Sum
)

// Zero is the zero amount.
const Zero = types.Zero

// Re-export Entity constructor
var NewEntity = types.NewEntity
