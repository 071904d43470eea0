package main

import (
	"errors"
	"fmt"

	audithook "github.com/Kushagra2569/transaction-service/audit_hook"
	"github.com/Kushagra2569/transaction-service/events"
)

// errSkip marks event types the worker does not record.
var errSkip = errors.New("auditworker: event type not audited")

// toAuditEvent maps a broker event to an audit entry. The entry reuses the
// event id so redelivered messages collapse into one document.
func toAuditEvent(e *events.Event) (*audithook.AuditEvent, error) {
	entry := &audithook.AuditEvent{
		ID:        e.ID,
		Timestamp: e.OccurredAt,
		Outcome:   audithook.OutcomeSuccess,
		Severity:  audithook.SeverityInfo,
	}

	switch e.Type {
	case events.TypeAccountCreated:
		var data events.AccountCreated
		if err := e.Unmarshal(&data); err != nil {
			return nil, err
		}
		entry.Action = audithook.ActionAccountCreated
		entry.Resource = audithook.ResourceAccount
		entry.Category = audithook.CategoryAccount
		entry.ResourceID = data.Identity
		entry.Actor = data.Identity
		entry.Metadata = map[string]any{
			"display_name":    data.DisplayName,
			"opening_balance": data.OpeningBalance.String(),
		}

	case events.TypeTransactionCreated:
		var data events.TransactionCreated
		if err := e.Unmarshal(&data); err != nil {
			return nil, err
		}
		entry.Action = audithook.ActionTransferCompleted
		entry.Resource = audithook.ResourceTransaction
		entry.Category = audithook.CategoryTransfer
		entry.ResourceID = data.TransactionID
		entry.Actor = data.From
		entry.Metadata = map[string]any{
			"from":   data.From,
			"to":     data.To,
			"amount": data.Amount.String(),
		}

	case events.TypeFatalInconsistency:
		var data events.FatalInconsistency
		if err := e.Unmarshal(&data); err != nil {
			return nil, err
		}
		entry.Action = audithook.ActionFatalInconsistency
		entry.Resource = audithook.ResourceTransaction
		entry.Category = audithook.CategoryAlert
		entry.ResourceID = data.TransactionID
		entry.Actor = data.Actor
		entry.Outcome = audithook.OutcomePartial
		entry.Severity = audithook.SeverityCritical
		entry.Reason = data.Error
		entry.Metadata = map[string]any{
			"from":   data.From,
			"to":     data.To,
			"amount": data.Amount.String(),
			"step":   data.Step,
		}

	default:
		return nil, fmt.Errorf("%w: %s", errSkip, e.Type)
	}

	return entry, nil
}
