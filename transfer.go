package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/plugin"
	"github.com/Kushagra2569/transaction-service/store"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// stepError tags a store failure with the transfer step it happened in.
type stepError struct {
	step Step
	err  error
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %v", e.step, e.err) }

func (e *stepError) Unwrap() error { return e.err }

// Transfer moves amount from one account to another on behalf of actor.
// Either both balances change and exactly one transaction is appended, or
// nothing observable changes.
func (l *Ledger) Transfer(ctx context.Context, actor, from, to string, amount types.Amount) (*transaction.Transaction, error) {
	attempt := plugin.TransferAttempt{Actor: actor, From: from, To: to, Amount: amount}
	start := time.Now()

	t, err := l.transfer(ctx, attempt)
	if err != nil {
		switch {
		case IsFatal(err):
			l.logger.Error("transfer left ledger inconsistent",
				"from", from,
				"to", to,
				"amount", amount.String(),
				"error", err,
			)
			l.plugins.EmitFatalInconsistency(ctx, attempt, err)
		case IsValidation(err):
			l.logger.Debug("transfer rejected",
				"from", from,
				"to", to,
				"error", err,
			)
			l.plugins.EmitTransferFailed(ctx, attempt, err)
		default:
			l.logger.Warn("transfer failed",
				"from", from,
				"to", to,
				"error", err,
			)
			l.plugins.EmitTransferFailed(ctx, attempt, err)
		}
		return nil, err
	}

	l.logger.Info("transfer committed",
		"transaction_id", t.ID.String(),
		"from", t.From,
		"to", t.To,
		"amount", t.Amount.String(),
		"duration", time.Since(start),
	)
	l.plugins.EmitTransferCompleted(ctx, t)

	return t, nil
}

func validateTransfer(a plugin.TransferAttempt) error {
	if !a.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.From == a.To {
		return ErrSelfTransfer
	}
	if a.Actor != a.From {
		return ErrUnauthorized
	}
	return nil
}

func (l *Ledger) transfer(ctx context.Context, a plugin.TransferAttempt) (*transaction.Transaction, error) {
	if err := validateTransfer(a); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.transferTimeout)
	defer cancel()

	t := &transaction.Transaction{
		ID:     id.NewTransactionID(),
		From:   a.From,
		To:     a.To,
		Amount: a.Amount,
	}
	compensate := l.store.Atomicity() == store.LockOrdered

	var fatal *InconsistencyError
	err := l.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockAccounts(ctx, lockOrder(a.From, a.To)...); err != nil {
			return err
		}

		if _, err := tx.ApplyDelta(ctx, a.From, a.Amount.Negate()); err != nil {
			return &stepError{StepDebit, err}
		}

		if _, err := tx.ApplyDelta(ctx, a.To, a.Amount); err != nil {
			if compensate {
				if cerr := undo(ctx, tx, delta{a.From, a.Amount}); cerr != nil {
					fatal = inconsistency(t, StepCredit, err, cerr)
					return fatal
				}
			}
			return &stepError{StepCredit, err}
		}

		t.CreatedAt = l.stamp()
		if err := tx.AppendTransaction(ctx, t); err != nil {
			if compensate {
				if cerr := undo(ctx, tx, delta{a.To, a.Amount.Negate()}, delta{a.From, a.Amount}); cerr != nil {
					fatal = inconsistency(t, StepAppend, err, cerr)
					return fatal
				}
			}
			return &stepError{StepAppend, err}
		}

		return nil
	})

	if err == nil {
		return t, nil
	}
	if fatal != nil {
		return nil, fatal
	}
	return nil, classifyTransferError(err)
}

// classifyTransferError maps a failed unit to the caller-facing outcome.
// Rejections found while locking or debiting pass through unchanged;
// anything later, or any infrastructure failure, is TransferFailed.
func classifyTransferError(err error) error {
	var se *stepError
	if errors.As(err, &se) {
		if se.step == StepDebit && IsValidation(se.err) {
			return se.err
		}
		return transferFailed(err)
	}
	if IsValidation(err) {
		return err
	}
	return transferFailed(err)
}

type delta struct {
	identity string
	amount   types.Amount
}

// undo applies compensating deltas in order. It runs detached from the
// transfer deadline so an expired context cannot strand a debit.
func undo(ctx context.Context, tx store.Tx, deltas ...delta) error {
	ctx = context.WithoutCancel(ctx)
	for _, d := range deltas {
		if _, err := tx.ApplyDelta(ctx, d.identity, d.amount); err != nil {
			return fmt.Errorf("compensate %s by %s: %w", d.identity, d.amount, err)
		}
	}
	return nil
}

func inconsistency(t *transaction.Transaction, step Step, cause, compensationErr error) *InconsistencyError {
	return &InconsistencyError{
		TransactionID:   t.ID,
		From:            t.From,
		To:              t.To,
		Amount:          t.Amount,
		Step:            step,
		Cause:           cause,
		CompensationErr: compensationErr,
	}
}

// lockOrder returns the identities in the global lock order.
func lockOrder(a, b string) []string {
	if b < a {
		return []string{b, a}
	}
	return []string{a, b}
}
