// Package sqlite implements store.Store on an embedded SQLite database.
//
// Every unit of work opens with BEGIN IMMEDIATE, so writers serialize on
// the database lock while readers continue under WAL. Transfers are
// correct but do not run in parallel.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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
	_ ledgerstore.Tx    = (*sqliteTx)(nil)
)

const driverName = "sqlite"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements store.Store using SQLite via modernc.org/sqlite.
type Store struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// DSN builds a connection string for path with the pragmas the store
// relies on.
func DSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens the database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := DSN(path, 5*time.Second)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger/sqlite: ping: %w", err)
	}

	s := &Store{db: db, dsn: dsn, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Atomicity reports that a failed unit is rolled back.
func (s *Store) Atomicity() ledgerstore.Atomicity {
	return ledgerstore.Transactional
}

// Atomic runs fn inside one immediate transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger/sqlite: commit: %w", err)
	}
	return nil
}

// ==================== Account Store ====================

const accountColumns = `identity, display_name, balance, opening_balance, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	return createAccount(ctx, s.db, a)
}

func (s *Store) GetAccount(ctx context.Context, identity string) (*account.Account, error) {
	return getAccount(ctx, s.db, identity)
}

func (s *Store) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	return applyDelta(ctx, s.db, identity, delta)
}

func (s *Store) RenameAccount(ctx context.Context, identity, expectedOld, newName string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE ledger_accounts SET display_name = ?, updated_at = ?
WHERE identity = ? AND display_name = ?`,
		newName, nowNanos(), identity, expectedOld)
	if err != nil {
		return fmt.Errorf("ledger/sqlite: rename account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 { //nolint:errcheck // driver always reports rows
		return nil
	}
	if _, err := s.GetAccount(ctx, identity); err != nil {
		return err
	}
	return ledger.ErrNameMismatch
}

func createAccount(ctx context.Context, q querier, a *account.Account) error {
	_, err := q.ExecContext(ctx, `INSERT INTO ledger_accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.Identity, a.DisplayName, a.Balance.Minor(), a.OpeningBalance.Minor(),
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano())
	if err != nil {
		if isCode(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return ledger.ErrDuplicateIdentity
		}
		return fmt.Errorf("ledger/sqlite: create account: %w", err)
	}
	return nil
}

func getAccount(ctx context.Context, q querier, identity string) (*account.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM ledger_accounts WHERE identity = ?`, identity)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrUnknownAccount
		}
		return nil, fmt.Errorf("ledger/sqlite: get account: %w", err)
	}
	return a, nil
}

func applyDelta(ctx context.Context, q querier, identity string, delta types.Amount) (*account.Account, error) {
	row := q.QueryRowContext(ctx, `
UPDATE ledger_accounts SET balance = balance + ?, updated_at = ?
WHERE identity = ? AND balance + ? >= 0
RETURNING `+accountColumns, delta.Minor(), nowNanos(), identity, delta.Minor())
	a, err := scanAccount(row)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, sql.ErrNoRows):
		if _, gerr := getAccount(ctx, q, identity); gerr != nil {
			return nil, gerr
		}
		return nil, ledger.ErrInsufficientFunds
	case isCode(err, sqlite3.SQLITE_CONSTRAINT_CHECK):
		return nil, ledger.ErrInsufficientFunds
	default:
		return nil, fmt.Errorf("ledger/sqlite: apply delta: %w", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a                    account.Account
		balance, opening     int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&a.Identity, &a.DisplayName, &balance, &opening, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Balance = types.Amount(balance)
	a.OpeningBalance = types.Amount(opening)
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updatedAt)
	return &a, nil
}

// ==================== Transaction Store ====================

const transactionColumns = `id, from_identity, to_identity, amount, created_at`

func (s *Store) AppendTransaction(ctx context.Context, t *transaction.Transaction) error {
	return appendTransaction(ctx, s.db, t)
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM ledger_transactions WHERE id = ?`, txnID.String())
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledger/sqlite: get transaction: %w", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, identity string, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ledger_transactions
WHERE (from_identity = ? OR to_identity = ?)`
	args := []any{identity, identity}

	if opts.After != nil {
		query += ` AND (created_at, id) > (?, ?)`
		args = append(args, opts.After.CreatedAt.UnixNano(), opts.After.ID.String())
	}

	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	query += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger/sqlite: list transactions: %w", err)
	}
	defer rows.Close()

	result := make([]*transaction.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger/sqlite: list transactions: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger/sqlite: list transactions: %w", err)
	}
	return result, nil
}

func appendTransaction(ctx context.Context, q querier, t *transaction.Transaction) error {
	_, err := q.ExecContext(ctx, `INSERT INTO ledger_transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?)`,
		t.ID.String(), t.From, t.To, t.Amount.Minor(), t.CreatedAt.UnixNano())
	if err != nil {
		switch {
		case isCode(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE):
			return ledger.ErrDuplicateID
		case isCode(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY):
			return ledger.ErrUnknownAccount
		}
		return fmt.Errorf("ledger/sqlite: append transaction: %w", err)
	}
	return nil
}

func scanTransaction(row scanner) (*transaction.Transaction, error) {
	var (
		rawID     string
		t         transaction.Transaction
		amount    int64
		createdAt int64
	)
	if err := row.Scan(&rawID, &t.From, &t.To, &amount, &createdAt); err != nil {
		return nil, err
	}
	txnID, err := id.ParseTransactionID(rawID)
	if err != nil {
		return nil, err
	}
	t.ID = txnID
	t.Amount = types.Amount(amount)
	t.CreatedAt = fromNanos(createdAt)
	return &t, nil
}

// ==================== Credential Store ====================

func (s *Store) GetCredential(ctx context.Context, identity string) (*credential.Credential, error) {
	var (
		c                    credential.Credential
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT identity, password_hash, created_at, updated_at
FROM ledger_credentials WHERE identity = ?`, identity).
		Scan(&c.Identity, &c.PasswordHash, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("ledger/sqlite: get credential: %w", err)
	}
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}

// ==================== Unit of work ====================

type sqliteTx struct {
	tx *sql.Tx
}

// LockAccounts only verifies existence: the immediate transaction already
// holds the database write lock.
func (t *sqliteTx) LockAccounts(ctx context.Context, identities ...string) ([]*account.Account, error) {
	sorted := slices.Clone(identities)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]*account.Account, 0, len(sorted))
	for _, identity := range sorted {
		a, err := getAccount(ctx, t.tx, identity)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (t *sqliteTx) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	return applyDelta(ctx, t.tx, identity, delta)
}

func (t *sqliteTx) AppendTransaction(ctx context.Context, txn *transaction.Transaction) error {
	return appendTransaction(ctx, t.tx, txn)
}

func (t *sqliteTx) CreateAccount(ctx context.Context, a *account.Account) error {
	return createAccount(ctx, t.tx, a)
}

func (t *sqliteTx) PutCredential(ctx context.Context, c *credential.Credential) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO ledger_credentials (identity, password_hash, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (identity) DO UPDATE SET password_hash = excluded.password_hash, updated_at = excluded.updated_at`,
		c.Identity, c.PasswordHash, c.CreatedAt.UnixNano(), c.UpdatedAt.UnixNano())
	if err != nil {
		if isCode(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return ledger.ErrUnknownAccount
		}
		return fmt.Errorf("ledger/sqlite: put credential: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

func isCode(err error, codes ...int) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && slices.Contains(codes, se.Code())
}

func nowNanos() int64 {
	return time.Now().UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
