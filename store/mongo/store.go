// Package mongo implements store.Store on MongoDB. Units of work run as
// multi-document transactions, so the deployment must be a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/id"
	ledgerstore "github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// Collection name constants.
const (
	colAccounts     = "ledger_accounts"
	colCredentials  = "ledger_credentials"
	colTransactions = "ledger_transactions"
)

// compile-time interface check
var (
	_ ledgerstore.Store = (*Store)(nil)
	_ ledgerstore.Tx    = (*mongoTx)(nil)
)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new MongoDB store on database dbName.
func New(client *mongo.Client, dbName string, opts ...Option) *Store {
	s := &Store{
		client: client,
		db:     client.Database(dbName),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to uri and wraps the client in a Store.
func Open(ctx context.Context, uri, dbName string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ledger/mongo: ping: %w", err)
	}
	return New(client, dbName, opts...), nil
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates the ledger collections and their indexes. Collections
// are created up front because a transaction cannot create one on older
// servers.
func (s *Store) Migrate(ctx context.Context) error {
	for _, col := range []string{colAccounts, colCredentials, colTransactions} {
		if err := s.db.CreateCollection(ctx, col); err != nil && !isNamespaceExists(err) {
			return fmt.Errorf("%w: ledger/mongo: create %s: %w", ledger.ErrMigrationFailed, col, err)
		}
	}

	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: ledger/mongo: %s indexes: %w", ledger.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Atomicity reports that a failed unit is aborted.
func (s *Store) Atomicity() ledgerstore.Atomicity {
	return ledgerstore.Transactional
}

// Atomic runs fn inside a session transaction. The driver retries fn on
// transient write conflicts, so fn must be safe to run more than once.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx ledgerstore.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("ledger/mongo: start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, &mongoTx{s: s})
	}, txOpts)
	return err
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.Collection(colAccounts).InsertOne(ctx, toAccountModel(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateIdentity
		}
		return fmt.Errorf("ledger/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, identity string) (*account.Account, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).FindOne(ctx, bson.M{"_id": identity}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrUnknownAccount
		}
		return nil, fmt.Errorf("ledger/mongo: get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

// ApplyDelta is a single guarded $inc: the filter only matches when the
// result stays non-negative.
func (s *Store) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	var m accountModel
	err := s.db.Collection(colAccounts).FindOneAndUpdate(ctx,
		bson.M{"_id": identity, "balance": bson.M{"$gte": -delta.Minor()}},
		bson.M{
			"$inc": bson.M{"balance": delta.Minor()},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			if _, gerr := s.GetAccount(ctx, identity); gerr != nil {
				return nil, gerr
			}
			return nil, ledger.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("ledger/mongo: apply delta: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) RenameAccount(ctx context.Context, identity, expectedOld, newName string) error {
	res, err := s.db.Collection(colAccounts).UpdateOne(ctx,
		bson.M{"_id": identity, "display_name": expectedOld},
		bson.M{"$set": bson.M{"display_name": newName, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("ledger/mongo: rename account: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.GetAccount(ctx, identity); err != nil {
		return err
	}
	return ledger.ErrNameMismatch
}

// ==================== Transaction Store ====================

func (s *Store) AppendTransaction(ctx context.Context, t *transaction.Transaction) error {
	_, err := s.db.Collection(colTransactions).InsertOne(ctx, toTransactionModel(t))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ledger.ErrDuplicateID
		}
		return fmt.Errorf("ledger/mongo: append transaction: %w", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m transactionModel
	err := s.db.Collection(colTransactions).FindOne(ctx, bson.M{"_id": txnID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledger/mongo: get transaction: %w", err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, identity string, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"from_identity": identity},
		bson.M{"to_identity": identity},
	}}
	if opts.After != nil {
		filter = bson.M{"$and": bson.A{
			filter,
			bson.M{"$or": bson.A{
				bson.M{"created_at": bson.M{"$gt": opts.After.CreatedAt}},
				bson.M{"created_at": opts.After.CreatedAt, "_id": bson.M{"$gt": opts.After.ID.String()}},
			}},
		}}
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cursor, err := s.db.Collection(colTransactions).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("ledger/mongo: list transactions: %w", err)
	}

	var models []transactionModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("ledger/mongo: list transactions: %w", err)
	}

	result := make([]*transaction.Transaction, 0, len(models))
	for i := range models {
		t, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

// ==================== Credential Store ====================

func (s *Store) GetCredential(ctx context.Context, identity string) (*credential.Credential, error) {
	var m credentialModel
	err := s.db.Collection(colCredentials).FindOne(ctx, bson.M{"_id": identity}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, ledger.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("ledger/mongo: get credential: %w", err)
	}
	return fromCredentialModel(&m), nil
}

// ==================== Unit of work ====================

// mongoTx runs store operations with the session carried by ctx.
type mongoTx struct {
	s *Store
}

// LockAccounts bumps a version field on each account in identity order.
// The write claims the document for this transaction; a concurrent unit
// touching the same account hits a write conflict and is retried.
func (t *mongoTx) LockAccounts(ctx context.Context, identities ...string) ([]*account.Account, error) {
	sorted := slices.Clone(identities)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	out := make([]*account.Account, 0, len(sorted))
	for _, identity := range sorted {
		var m accountModel
		err := t.s.db.Collection(colAccounts).FindOneAndUpdate(ctx,
			bson.M{"_id": identity},
			bson.M{"$inc": bson.M{"lock_version": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				return nil, ledger.ErrUnknownAccount
			}
			return nil, fmt.Errorf("ledger/mongo: lock account: %w", err)
		}
		out = append(out, fromAccountModel(&m))
	}
	return out, nil
}

func (t *mongoTx) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	return t.s.ApplyDelta(ctx, identity, delta)
}

func (t *mongoTx) AppendTransaction(ctx context.Context, txn *transaction.Transaction) error {
	return t.s.AppendTransaction(ctx, txn)
}

func (t *mongoTx) CreateAccount(ctx context.Context, a *account.Account) error {
	return t.s.CreateAccount(ctx, a)
}

func (t *mongoTx) PutCredential(ctx context.Context, c *credential.Credential) error {
	_, err := t.s.db.Collection(colCredentials).ReplaceOne(ctx,
		bson.M{"_id": c.Identity},
		toCredentialModel(c),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ledger/mongo: put credential: %w", err)
	}
	return nil
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isNamespaceExists matches server error 48 (NamespaceExists).
func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == 48
}

// migrationIndexes returns the index definitions for all ledger collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colTransactions: {
			{Keys: bson.D{{Key: "from_identity", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "to_identity", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		},
	}
}
