package ledger

import (
	"context"
	"strings"

	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/types"
)

// AccountOption configures account creation.
type AccountOption func(*accountCreate)

type accountCreate struct {
	passwordHash []byte
}

// WithPasswordHash stores a credential alongside the new account in the
// same unit of work.
func WithPasswordHash(hash []byte) AccountOption {
	return func(c *accountCreate) {
		c.passwordHash = hash
	}
}

// CreateAccount registers a new account with an initial balance.
func (l *Ledger) CreateAccount(ctx context.Context, identity, displayName string, initial types.Amount, opts ...AccountOption) (*account.Account, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, ValidationError{Field: "identity", Message: "must not be empty"}
	}
	if initial.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var cfg accountCreate
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &account.Account{
		Entity:         types.EntityAt(l.now()),
		Identity:       identity,
		DisplayName:    displayName,
		Balance:        initial,
		OpeningBalance: initial,
	}

	var err error
	if cfg.passwordHash == nil {
		err = l.store.CreateAccount(ctx, a)
	} else {
		cred := &credential.Credential{
			Entity:       a.Entity,
			Identity:     identity,
			PasswordHash: cfg.passwordHash,
		}
		err = l.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.CreateAccount(ctx, a); err != nil {
				return err
			}
			return tx.PutCredential(ctx, cred)
		})
	}
	if err != nil {
		return nil, err
	}

	l.logger.Info("account created",
		"identity", identity,
		"opening_balance", initial.String(),
	)
	l.plugins.EmitAccountCreated(ctx, a)

	return a.Clone(), nil
}

// Account returns the account for identity.
func (l *Ledger) Account(ctx context.Context, identity string) (*account.Account, error) {
	return l.store.GetAccount(ctx, identity)
}

// Balance returns the current balance for identity.
func (l *Ledger) Balance(ctx context.Context, identity string) (types.Amount, error) {
	a, err := l.store.GetAccount(ctx, identity)
	if err != nil {
		return types.Zero, err
	}
	return a.Balance, nil
}

// RenameAccount changes the display name if it still equals oldName.
func (l *Ledger) RenameAccount(ctx context.Context, identity, oldName, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return ValidationError{Field: "new_name", Message: "must not be empty"}
	}

	if err := l.store.RenameAccount(ctx, identity, oldName, newName); err != nil {
		return err
	}

	l.logger.Info("account renamed", "identity", identity)
	l.plugins.EmitAccountRenamed(ctx, identity, oldName, newName)
	return nil
}

// Credential returns the stored credential for identity.
func (l *Ledger) Credential(ctx context.Context, identity string) (*credential.Credential, error) {
	return l.store.GetCredential(ctx, identity)
}
