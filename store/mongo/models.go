package mongo

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
	Identity       string    `bson:"_id"`
	DisplayName    string    `bson:"display_name"`
	Balance        int64     `bson:"balance"`
	OpeningBalance int64     `bson:"opening_balance"`
	LockVersion    int64     `bson:"lock_version"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

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
	Identity     string    `bson:"_id"`
	PasswordHash []byte    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func toCredentialModel(c *credential.Credential) *credentialModel {
	return &credentialModel{
		Identity:     c.Identity,
		PasswordHash: c.PasswordHash,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
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
	ID           string    `bson:"_id"`
	FromIdentity string    `bson:"from_identity"`
	ToIdentity   string    `bson:"to_identity"`
	Amount       int64     `bson:"amount"`
	CreatedAt    time.Time `bson:"created_at"`
}

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
