// Package account defines the account record and its store contract.
package account

import (
	"github.com/Kushagra2569/transaction-service/types"
)

// Account is a user-owned balance keyed by an immutable identity.
type Account struct {
	types.Entity
	Identity       string       `json:"identity"`
	DisplayName    string       `json:"display_name"`
	Balance        types.Amount `json:"balance"`
	OpeningBalance types.Amount `json:"opening_balance"`
}

// Clone returns a copy so callers never share a stored record.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
