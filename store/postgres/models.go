package postgres

import (
	"time"

	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// ==================== Account models ====================

type accountModel struct {
	Identity       string    `db:"identity"`
	DisplayName    string    `db:"display_name"`
	Balance        int64     `db:"balance"`
	OpeningBalance int64     `db:"opening_balance"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const accountColumns = `identity, display_name, balance, opening_balance, created_at, updated_at`

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		Identity:       a.Identity,
		DisplayName:    a.DisplayName,
		Balance:        a.Balance.Minor(),
		OpeningBalance: a.OpeningBalance.Minor(),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *account.Account {
	return &account.Account{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		Identity:       m.Identity,
		DisplayName:    m.DisplayName,
		Balance:        types.Amount(m.Balance),
		OpeningBalance: types.Amount(m.OpeningBalance),
	}
}

// ==================== Credential models ====================

type credentialModel struct {
	Identity     string    `db:"identity"`
	PasswordHash []byte    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func fromCredentialModel(m *credentialModel) *credential.Credential {
	return &credential.Credential{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		Identity:     m.Identity,
		PasswordHash: m.PasswordHash,
	}
}

// ==================== Transaction models ====================

type transactionModel struct {
	ID           string    `db:"id"`
	FromIdentity string    `db:"from_identity"`
	ToIdentity   string    `db:"to_identity"`
	Amount       int64     `db:"amount"`
	CreatedAt    time.Time `db:"created_at"`
}

const transactionColumns = `id, from_identity, to_identity, amount, created_at`

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	return &transactionModel{
		ID:           t.ID.String(),
		FromIdentity: t.From,
		ToIdentity:   t.To,
		Amount:       t.Amount.Minor(),
		CreatedAt:    t.CreatedAt,
	}
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &transaction.Transaction{
		ID:        txnID,
		From:      m.FromIdentity,
		To:        m.ToIdentity,
		Amount:    types.Amount(m.Amount),
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}
