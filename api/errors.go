package api

import (
	"encoding/json"
	"errors"
	"net/http"

	ledger "github.com/Kushagra2569/transaction-service"
)

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// statusOf maps a ledger error to an HTTP status and a client message.
// Messages are fixed per outcome so internal detail never reaches clients.
func statusOf(err error) (int, errorBody) {
	var verr ledger.ValidationError
	switch {
	case ledger.IsFatal(err):
		return http.StatusInternalServerError, errorBody{Error: "the transfer could not be completed; support has been notified"}
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable, errorBody{Error: "the transfer did not happen; please retry", Retryable: true}
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field}
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, errorBody{Error: "amount must be greater than zero"}
	case errors.Is(err, ledger.ErrSelfTransfer):
		return http.StatusBadRequest, errorBody{Error: "cannot transfer to the same account", Field: "to"}
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest, errorBody{Error: "invalid input"}
	case errors.Is(err, ledger.ErrUnauthenticated):
		return http.StatusUnauthorized, errorBody{Error: "authentication required"}
	case errors.Is(err, ledger.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: "wrong email or password"}
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden, errorBody{Error: "you may only transfer from your own account"}
	case errors.Is(err, ledger.ErrUnknownAccount):
		return http.StatusNotFound, errorBody{Error: "account not found"}
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return http.StatusNotFound, errorBody{Error: "transaction not found"}
	case errors.Is(err, ledger.ErrDuplicateIdentity):
		return http.StatusConflict, errorBody{Error: "Email is already taken"}
	case errors.Is(err, ledger.ErrNameMismatch):
		return http.StatusConflict, errorBody{Error: "current name does not match", Field: "old_name"}
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, errorBody{Error: "insufficient funds"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusOf(err)
	if status >= http.StatusInternalServerError {
		body.Reference = RequestID(r.Context())
		s.logger.Error("request failed",
			"request_id", body.Reference,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // the client is gone if this fails
	json.NewEncoder(w).Encode(v)
}
