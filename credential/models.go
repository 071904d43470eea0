// Package credential holds password credentials for account identities.
package credential

import (
	"context"

	"github.com/Kushagra2569/transaction-service/types"
)

// Credential is the stored login secret for an identity.
type Credential struct {
	types.Entity
	Identity     string `json:"identity"`
	PasswordHash []byte `json:"-"`
}

// Store reads credentials. Credentials are written together with their
// account inside a store unit of work.
type Store interface {
	// GetCredential returns the credential or ledger.ErrCredentialNotFound.
	GetCredential(ctx context.Context, identity string) (*Credential, error)
}
