// Package postgres implements store.Store on PostgreSQL through pgx. Each
// unit of work is a READ COMMITTED transaction; transfers serialize on
// SELECT ... FOR UPDATE row locks taken in identity order.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/id"
	ledgerstore "github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// compile-time interface check
var (
	_ ledgerstore.Store = (*Store)(nil)
	_ ledgerstore.Tx    = (*pgTx)(nil)
)

// Postgres error codes mapped at the store boundary.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeNumericOutOfRange   = "22003"
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements store.Store using PostgreSQL via pgx.
type Store struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithLockTimeout bounds how long a unit of work waits for a row lock.
// Zero leaves the server default.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates a new PostgreSQL store on an existing pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		logger:      slog.Default(),
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a pool to databaseURL and wraps it in a Store.
func Open(ctx context.Context, databaseURL string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger/postgres: ping: %w", err)
	}
	return New(pool, opts...), nil
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Atomicity reports that a failed unit is rolled back.
func (s *Store) Atomicity() ledgerstore.Atomicity {
	return ledgerstore.Transactional
}

// Atomic runs fn inside one database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("ledger/postgres: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck // no-op after commit
	}()

	if s.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("ledger/postgres: set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger/postgres: commit: %w", err)
	}
	return nil
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	return createAccount(ctx, s.pool, a)
}

func (s *Store) GetAccount(ctx context.Context, identity string) (*account.Account, error) {
	return getAccount(ctx, s.pool, identity, "")
}

func (s *Store) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	return applyDelta(ctx, s.pool, identity, delta)
}

func (s *Store) RenameAccount(ctx context.Context, identity, expectedOld, newName string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE ledger_accounts SET display_name = $3, updated_at = NOW()
WHERE identity = $1 AND display_name = $2`, identity, expectedOld, newName)
	if err != nil {
		return fmt.Errorf("ledger/postgres: rename account: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetAccount(ctx, identity); err != nil {
		return err
	}
	return ledger.ErrNameMismatch
}

func createAccount(ctx context.Context, q querier, a *account.Account) error {
	m := toAccountModel(a)
	_, err := q.Exec(ctx, `
INSERT INTO ledger_accounts (`+accountColumns+`)
VALUES ($1, $2, $3, $4, $5, $6)`,
		m.Identity, m.DisplayName, m.Balance, m.OpeningBalance, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isCode(err, codeUniqueViolation) {
			return ledger.ErrDuplicateIdentity
		}
		return fmt.Errorf("ledger/postgres: create account: %w", err)
	}
	return nil
}

// getAccount reads one account, optionally with a locking clause.
func getAccount(ctx context.Context, q querier, identity, lock string) (*account.Account, error) {
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE identity = $1 `+lock, identity)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: get account: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[accountModel])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrUnknownAccount
		}
		return nil, fmt.Errorf("ledger/postgres: get account: %w", err)
	}
	return fromAccountModel(m), nil
}

// applyDelta is a single guarded read-modify-write.
func applyDelta(ctx context.Context, q querier, identity string, delta types.Amount) (*account.Account, error) {
	rows, err := q.Query(ctx, `
UPDATE ledger_accounts SET balance = balance + $2, updated_at = NOW()
WHERE identity = $1 AND balance + $2 >= 0
RETURNING `+accountColumns, identity, delta.Minor())
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: apply delta: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[accountModel])
	switch {
	case err == nil:
		return fromAccountModel(m), nil
	case errors.Is(err, pgx.ErrNoRows):
		if _, gerr := getAccount(ctx, q, identity, ""); gerr != nil {
			return nil, gerr
		}
		return nil, ledger.ErrInsufficientFunds
	case isCode(err, codeCheckViolation):
		return nil, ledger.ErrInsufficientFunds
	case isCode(err, codeNumericOutOfRange):
		return nil, fmt.Errorf("ledger/postgres: apply delta: %w", types.ErrAmountOverflow)
	default:
		return nil, fmt.Errorf("ledger/postgres: apply delta: %w", err)
	}
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, t *transaction.Transaction) error {
	return appendTransaction(ctx, s.pool, t)
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions WHERE id = $1`, txnID.String())
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: get transaction: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[transactionModel])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledger/postgres: get transaction: %w", err)
	}
	return fromTransactionModel(m)
}

// ListTransactions pages with a (created_at, id) keyset so deep pages cost
// the same as the first.
func (s *Store) ListTransactions(ctx context.Context, identity string, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var afterAt *time.Time
	var afterID string
	if opts.After != nil {
		afterAt = &opts.After.CreatedAt
		afterID = opts.After.ID.String()
	}
	var limit any
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	rows, err := s.pool.Query(ctx, `
SELECT `+transactionColumns+` FROM ledger_transactions
WHERE (from_identity = $1 OR to_identity = $1)
  AND ($2::timestamptz IS NULL OR (created_at, id) > ($2::timestamptz, $3::text))
ORDER BY created_at, id
LIMIT $4`, identity, afterAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: list transactions: %w", err)
	}
	models, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[transactionModel])
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, 0, len(models))
	for _, m := range models {
		t, err := fromTransactionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func appendTransaction(ctx context.Context, q querier, t *transaction.Transaction) error {
	m := toTransactionModel(t)
	_, err := q.Exec(ctx, `
INSERT INTO ledger_transactions (`+transactionColumns+`)
VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.FromIdentity, m.ToIdentity, m.Amount, m.CreatedAt)
	if err != nil {
		switch {
		case isCode(err, codeUniqueViolation):
			return ledger.ErrDuplicateID
		case isCode(err, codeForeignKeyViolation):
			return ledger.ErrUnknownAccount
		}
		return fmt.Errorf("ledger/postgres: append transaction: %w", err)
	}
	return nil
}

// ==================== Credential Store ====================

func (s *Store) GetCredential(ctx context.Context, identity string) (*credential.Credential, error) {
	rows, err := s.pool.Query(ctx, `
SELECT identity, password_hash, created_at, updated_at
FROM ledger_credentials WHERE identity = $1`, identity)
	if err != nil {
		return nil, fmt.Errorf("ledger/postgres: get credential: %w", err)
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[credentialModel])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("ledger/postgres: get credential: %w", err)
	}
	return fromCredentialModel(m), nil
}

// ==================== Unit of work ====================

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockAccounts(ctx context.Context, identities ...string) ([]*account.Account, error) {
	sorted := slices.Clone(identities)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]*account.Account, 0, len(sorted))
	for _, identity := range sorted {
		a, err := getAccount(ctx, t.tx, identity, "FOR UPDATE")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *pgTx) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	return applyDelta(ctx, t.tx, identity, delta)
}

func (t *pgTx) AppendTransaction(ctx context.Context, txn *transaction.Transaction) error {
	return appendTransaction(ctx, t.tx, txn)
}

func (t *pgTx) CreateAccount(ctx context.Context, a *account.Account) error {
	return createAccount(ctx, t.tx, a)
}

func (t *pgTx) PutCredential(ctx context.Context, c *credential.Credential) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO ledger_credentials (identity, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (identity) DO UPDATE SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at`,
		c.Identity, c.PasswordHash, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isCode(err, codeForeignKeyViolation) {
			return ledger.ErrUnknownAccount
		}
		return fmt.Errorf("ledger/postgres: put credential: %w", err)
	}
	return nil
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
