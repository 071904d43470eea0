package ledger

import (
	"errors"
	"fmt"

	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/types"
)

// Sentinel errors for common failure scenarios.
var (
	// Validation errors
	ErrInvalidAmount   = errors.New("ledger: invalid amount")
	ErrSelfTransfer    = errors.New("ledger: cannot transfer to the same account")
	ErrInvalidInput    = errors.New("ledger: invalid input")
	ErrNameMismatch    = errors.New("ledger: display name does not match")
	ErrUnauthorized    = errors.New("ledger: actor may not debit this account")
	ErrUnauthenticated = errors.New("ledger: unauthenticated")

	// Account errors
	ErrUnknownAccount     = errors.New("ledger: unknown account")
	ErrDuplicateIdentity  = errors.New("ledger: identity already registered")
	ErrInsufficientFunds  = errors.New("ledger: insufficient funds")
	ErrCredentialNotFound = errors.New("ledger: credential not found")
	ErrInvalidCredentials = errors.New("ledger: wrong email or password")

	// Transaction log errors
	ErrDuplicateID         = errors.New("ledger: duplicate transaction id")
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	ErrReconcileMismatch   = errors.New("ledger: replayed balance does not match stored balance")

	// Transfer outcome errors
	ErrTransferFailed     = errors.New("ledger: transfer failed")
	ErrFatalInconsistency = errors.New("ledger: fatal inconsistency")

	// Store errors
	ErrStoreClosed     = errors.New("ledger: store is closed")
	ErrMigrationFailed = errors.New("ledger: migration failed")
)

// Step names the point of a transfer at which a failure happened.
type Step string

// Transfer steps.
const (
	StepDebit  Step = "debit"
	StepCredit Step = "credit"
	StepAppend Step = "append"
	StepCommit Step = "commit"
)

// InconsistencyError reports a transfer whose compensation failed. Money may
// be in an undefined state; it must reach an operator and must not be
// retried automatically.
type InconsistencyError struct {
	TransactionID   id.TransactionID
	From            string
	To              string
	Amount          types.Amount
	Step            Step
	Cause           error
	CompensationErr error
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("ledger: fatal inconsistency in %s of %s (%s -> %s, %s): %v; compensation failed: %v",
		e.Step, e.TransactionID, e.From, e.To, e.Amount, e.Cause, e.CompensationErr)
}

// Is matches ErrFatalInconsistency.
func (e *InconsistencyError) Is(target error) bool {
	return target == ErrFatalInconsistency
}

// Unwrap exposes both the original failure and the compensation failure.
func (e *InconsistencyError) Unwrap() []error {
	return []error{e.Cause, e.CompensationErr}
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ledger: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets ValidationError match ErrInvalidInput.
func (e ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// transferFailed wraps cause as a retryable transfer failure.
func transferFailed(cause error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailed, cause)
}

// isFailure reports a transfer that failed or left state undefined. Such
// errors may wrap a validation sentinel from a later step, but the caller
// cannot fix them by changing its input.
func isFailure(err error) bool {
	return errors.Is(err, ErrTransferFailed) || errors.Is(err, ErrFatalInconsistency)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	if isFailure(err) {
		return false
	}
	return errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrCredentialNotFound)
}

// IsValidation returns true for outcomes the caller can fix by changing
// its input. None of them leave partial state behind.
func IsValidation(err error) bool {
	if isFailure(err) {
		return false
	}
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSelfTransfer) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrNameMismatch) ||
		errors.Is(err, ErrDuplicateIdentity) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
// A fatal inconsistency is never retryable even though it may wrap a
// retryable cause.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrFatalInconsistency) {
		return false
	}
	return errors.Is(err, ErrTransferFailed) ||
		errors.Is(err, ErrStoreClosed)
}

// IsFatal returns true if err reports money in an undefined state.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatalInconsistency)
}
