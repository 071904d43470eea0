// Package memory implements store.Store in process memory. Transfers on
// disjoint accounts run in parallel under per-account locks. A unit of
// work stages its balance changes and ledger entries and publishes them
// together on commit, so readers only ever see committed state.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/credential"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// Compile-time interface checks.
var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*memTx)(nil)
)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts    map[string]*account.Account
	credentials map[string]*credential.Credential

	// Transaction log, kept sorted per identity
	transactions map[string]*transaction.Transaction
	byIdentity   map[string][]*transaction.Transaction

	// Per-account locks, one buffered channel each
	locksMu sync.Mutex
	locks   map[string]chan struct{}

	closed bool
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]*account.Account),
		credentials:  make(map[string]*credential.Credential),
		transactions: make(map[string]*transaction.Transaction),
		byIdentity:   make(map[string][]*transaction.Transaction),
		locks:        make(map[string]chan struct{}),
	}
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	if _, exists := s.accounts[a.Identity]; exists {
		return ledger.ErrDuplicateIdentity
	}
	s.accounts[a.Identity] = a.Clone()
	return nil
}

func (s *Store) GetAccount(_ context.Context, identity string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[identity]; ok {
		return a.Clone(), nil
	}
	return nil, ledger.ErrUnknownAccount
}

// ApplyDelta takes the account lock for the duration of the update.
func (s *Store) ApplyDelta(ctx context.Context, identity string, delta types.Amount) (*account.Account, error) {
	if _, err := s.GetAccount(ctx, identity); err != nil {
		return nil, err
	}

	unlock, err := s.acquire(ctx, identity)
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.applyDelta(identity, delta)
}

func (s *Store) applyDelta(identity string, delta types.Amount) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ledger.ErrStoreClosed
	}
	a, ok := s.accounts[identity]
	if !ok {
		return nil, ledger.ErrUnknownAccount
	}

	next, err := a.Balance.Add(delta)
	if err != nil {
		return nil, fmt.Errorf("ledger/memory: apply delta: %w", err)
	}
	if next.IsNegative() {
		return nil, ledger.ErrInsufficientFunds
	}

	a.Balance = next
	a.Touch()
	return a.Clone(), nil
}

func (s *Store) RenameAccount(_ context.Context, identity, expectedOld, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[identity]
	if !ok {
		return ledger.ErrUnknownAccount
	}
	if a.DisplayName != expectedOld {
		return ledger.ErrNameMismatch
	}
	a.DisplayName = newName
	a.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Transaction Store implementation
// ──────────────────────────────────────────────────

func (s *Store) AppendTransaction(_ context.Context, t *transaction.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	if _, exists := s.transactions[t.ID.String()]; exists {
		return ledger.ErrDuplicateID
	}
	s.appendLocked(t)
	return nil
}

func (s *Store) appendLocked(t *transaction.Transaction) {
	c := *t
	s.transactions[c.ID.String()] = &c
	s.insertSorted(c.From, &c)
	s.insertSorted(c.To, &c)
}

// insertSorted keeps each identity's history in (CreatedAt, ID) order.
// Entries almost always arrive in order, so this is an append.
func (s *Store) insertSorted(identity string, t *transaction.Transaction) {
	list := s.byIdentity[identity]
	i := len(list)
	for i > 0 && transaction.Less(t, list[i-1]) {
		i--
	}
	s.byIdentity[identity] = slices.Insert(list, i, t)
}

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.transactions[txnID.String()]; ok {
		c := *t
		return &c, nil
	}
	return nil, ledger.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, identity string, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transaction.Transaction, 0)
	for _, t := range s.byIdentity[identity] {
		if !opts.After.After(t) {
			continue
		}
		c := *t
		result = append(result, &c)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Credential Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetCredential(_ context.Context, identity string) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.credentials[identity]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, ledger.ErrCredentialNotFound
}

// ──────────────────────────────────────────────────
// Units of work
// ──────────────────────────────────────────────────

// Atomicity reports that a failed unit leaves no writes behind.
func (s *Store) Atomicity() store.Atomicity {
	return store.Transactional
}

// Atomic runs fn holding whatever account locks it takes. Every write is
// staged and published only if fn succeeds.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx := &memTx{
		s:        s,
		held:     make(map[string]func()),
		balances: make(map[string]*account.Account),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// acquire takes the lock for identity, giving up when ctx is done.
func (s *Store) acquire(ctx context.Context, identity string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[identity]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[identity] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// memTx is one unit of work against the memory store.
type memTx struct {
	s    *Store
	held map[string]func()

	// working copies of locked accounts, keyed by identity
	balances map[string]*account.Account
	dirty    []string

	transactions []*transaction.Transaction
	accounts     []*account.Account
	credentials  []*credential.Credential
}

func (tx *memTx) LockAccounts(ctx context.Context, identities ...string) ([]*account.Account, error) {
	sorted := slices.Clone(identities)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	for _, identity := range sorted {
		if _, err := tx.s.GetAccount(ctx, identity); err != nil {
			return nil, err
		}
	}

	for _, identity := range sorted {
		if _, ok := tx.held[identity]; ok {
			continue
		}
		unlock, err := tx.s.acquire(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("ledger/memory: lock %s: %w", identity, err)
		}
		tx.held[identity] = unlock
	}

	out := make([]*account.Account, 0, len(sorted))
	for _, identity := range sorted {
		w, ok := tx.balances[identity]
		if !ok {
			a, err := tx.s.GetAccount(ctx, identity)
			if err != nil {
				return nil, err
			}
			w = a
			tx.balances[identity] = w
		}
		out = append(out, w.Clone())
	}
	return out, nil
}

// ApplyDelta changes the unit's working copy of the account.
func (tx *memTx) ApplyDelta(_ context.Context, identity string, delta types.Amount) (*account.Account, error) {
	w, ok := tx.balances[identity]
	if !ok {
		return nil, fmt.Errorf("ledger/memory: apply delta: account %s not locked", identity)
	}

	next, err := w.Balance.Add(delta)
	if err != nil {
		return nil, fmt.Errorf("ledger/memory: apply delta: %w", err)
	}
	if next.IsNegative() {
		return nil, ledger.ErrInsufficientFunds
	}

	w.Balance = next
	w.Touch()
	if !slices.Contains(tx.dirty, identity) {
		tx.dirty = append(tx.dirty, identity)
	}
	return w.Clone(), nil
}

func (tx *memTx) AppendTransaction(_ context.Context, t *transaction.Transaction) error {
	tx.s.mu.RLock()
	_, exists := tx.s.transactions[t.ID.String()]
	tx.s.mu.RUnlock()

	if exists || slices.ContainsFunc(tx.transactions, func(o *transaction.Transaction) bool { return o.ID.String() == t.ID.String() }) {
		return ledger.ErrDuplicateID
	}
	c := *t
	tx.transactions = append(tx.transactions, &c)
	return nil
}

func (tx *memTx) CreateAccount(_ context.Context, a *account.Account) error {
	tx.s.mu.RLock()
	_, exists := tx.s.accounts[a.Identity]
	tx.s.mu.RUnlock()

	if exists || slices.ContainsFunc(tx.accounts, func(o *account.Account) bool { return o.Identity == a.Identity }) {
		return ledger.ErrDuplicateIdentity
	}
	tx.accounts = append(tx.accounts, a.Clone())
	return nil
}

func (tx *memTx) PutCredential(_ context.Context, c *credential.Credential) error {
	cp := *c
	tx.credentials = append(tx.credentials, &cp)
	return nil
}

// commit publishes staged writes under one store lock. Duplicates are
// re-checked because other writers may have raced the unit since staging.
// Balances need no re-check: the unit still holds their account locks.
func (tx *memTx) commit() error {
	if len(tx.dirty) == 0 && len(tx.transactions) == 0 &&
		len(tx.accounts) == 0 && len(tx.credentials) == 0 {
		return nil
	}

	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ledger.ErrStoreClosed
	}
	for _, a := range tx.accounts {
		if _, exists := s.accounts[a.Identity]; exists {
			return ledger.ErrDuplicateIdentity
		}
	}
	for _, t := range tx.transactions {
		if _, exists := s.transactions[t.ID.String()]; exists {
			return ledger.ErrDuplicateID
		}
	}
	for _, identity := range tx.dirty {
		if _, ok := s.accounts[identity]; !ok {
			return ledger.ErrUnknownAccount
		}
	}

	for _, identity := range tx.dirty {
		// Only balance fields are copied so a concurrent rename survives.
		w, a := tx.balances[identity], s.accounts[identity]
		a.Balance = w.Balance
		a.UpdatedAt = w.UpdatedAt
	}
	for _, t := range tx.transactions {
		s.appendLocked(t)
	}
	for _, a := range tx.accounts {
		s.accounts[a.Identity] = a
	}
	for _, c := range tx.credentials {
		s.credentials[c.Identity] = c
	}
	return nil
}

func (tx *memTx) release() {
	for identity, unlock := range tx.held {
		unlock()
		delete(tx.held, identity)
	}
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transactions)
}

// Accounts returns a copy of every account, for snapshots in tests and
// reconciliation tooling.
func (s *Store) Accounts() []*account.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	slices.SortFunc(out, func(a, b *account.Account) int {
		return strings.Compare(a.Identity, b.Identity)
	})
	return out
}
