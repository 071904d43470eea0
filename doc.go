// Package ledger provides a transfer engine for per-user monetary balances.
//
// Ledger is designed as a library, not a service. Import it directly into
// your Go application, or run cmd/ledgerd for the HTTP API. It provides:
//
//   - Atomic transfers between accounts with a fixed lock order
//   - An append-only transaction log that replays to every balance
//   - Compensation of half-applied transfers on lock-ordered stores
//   - Pluggable hooks for audit, metrics and event publishing
//
// # Quick Start
//
// Create a ledger instance with your preferred store:
//
//	import (
//	    ledger "github.com/Kushagra2569/transaction-service"
//	    "github.com/Kushagra2569/transaction-service/store/postgres"
//	)
//
//	store, err := postgres.Open(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	l := ledger.New(store)
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
// # Core Concepts
//
// Accounts are keyed by an immutable identity and carry a balance that is
// never negative:
//
//	acct, err := l.CreateAccount(ctx, "alice@example.com", "Alice", ledger.MustParseAmount("100.00"))
//
// Transfers move value between two accounts. The actor must own the
// debited account:
//
//	txn, err := l.Transfer(ctx, "alice@example.com", "alice@example.com", "bob@example.com", ledger.MustParseAmount("40.00"))
//
// History is a lazy, restartable sequence ordered by creation time:
//
//	for txn, err := range l.Transactions(ctx, "alice@example.com") {
//	    ...
//	}
//
// # Amounts
//
// All monetary calculations use integer arithmetic in minor units (two
// decimal places). Amounts cross the wire as decimal strings such as
// "40.00".
//
// # Failure model
//
// Rejections (ErrInvalidAmount, ErrSelfTransfer, ErrUnauthorized,
// ErrUnknownAccount, ErrInsufficientFunds) leave no trace. ErrTransferFailed
// means the transfer was rolled back and may be retried. ErrFatalInconsistency
// means compensation itself failed; it is reported through the
// OnFatalInconsistency plugin hook and must never be retried automatically.
//
// # TypeID
//
// Transactions use TypeID for globally unique, K-sortable identifiers:
//
//	txn_01h2xcejqtf2nbrexx3vqjhp41
package ledger
