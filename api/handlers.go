package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/id"
	"github.com/Kushagra2569/transaction-service/transaction"
	"github.com/Kushagra2569/transaction-service/types"
)

// History listing bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxBodyBytes        = 1 << 20
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	FullName string `json:"fullname" validate:"required,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Balance  string `json:"balance" validate:"omitempty,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type renameRequest struct {
	OldName string `json:"old_name" validate:"required,max=200"`
	NewName string `json:"new_name" validate:"required,max=200"`
}

type transferRequest struct {
	From   string `json:"from" validate:"omitempty,max=254"`
	To     string `json:"to" validate:"required,max=254"`
	Amount string `json:"amount" validate:"required,max=32"`
}

type accountResponse struct {
	Identity  string       `json:"email"`
	FullName  string       `json:"fullname"`
	Balance   types.Amount `json:"balance"`
	CreatedAt time.Time    `json:"created_at"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

type balanceResponse struct {
	Identity string       `json:"email"`
	Balance  types.Amount `json:"balance"`
}

type historyResponse struct {
	Transactions []*transaction.Transaction `json:"transactions"`
	HasMore      bool                       `json:"has_more"`
}

func toAccountResponse(a *account.Account) accountResponse {
	return accountResponse{
		Identity:  a.Identity,
		FullName:  a.DisplayName,
		Balance:   a.Balance,
		CreatedAt: a.CreatedAt,
	}
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ledger.ValidationError{Field: "body", Message: "malformed JSON: " + err.Error()}
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ledger.ValidationError{
				Field:   jsonField(fe),
				Message: fmt.Sprintf("failed %q check", fe.Tag()),
			}
		}
		return ledger.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func jsonField(fe validator.FieldError) string {
	switch fe.Field() {
	case "FullName":
		return "fullname"
	case "OldName":
		return "old_name"
	case "NewName":
		return "new_name"
	default:
		return strings.ToLower(fe.Field())
	}
}

func parseAmount(field, raw string) (types.Amount, error) {
	a, err := types.ParseAmount(raw)
	if err != nil {
		return types.Zero, ledger.ValidationError{Field: field, Message: err.Error()}
	}
	return a, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	balance := types.Zero
	if req.Balance != "" {
		var err error
		if balance, err = parseAmount("balance", req.Balance); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	a, err := s.auth.Register(r.Context(), req.Email, req.FullName, req.Password, balance)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(a))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tok, expires, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: tok, TokenType: "Bearer", ExpiresAt: expires})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), token(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.ledger.Account(r.Context(), Identity(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(a))
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	identity := Identity(r)
	b, err := s.ledger.Balance(r.Context(), identity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Identity: identity, Balance: b})
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.ledger.RenameAccount(r.Context(), Identity(r), req.OldName, req.NewName); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleAccount(w, r)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	actor := Identity(r)
	from := req.From
	if from == "" {
		from = actor
	}

	txn, err := s.ledger.Transfer(r.Context(), actor, from, req.To, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			s.writeError(w, r, ledger.ValidationError{
				Field:   "limit",
				Message: fmt.Sprintf("must be between 1 and %d", maxHistoryLimit),
			})
			return
		}
		limit = n
	}

	resp := historyResponse{Transactions: make([]*transaction.Transaction, 0, limit)}
	for t, err := range s.ledger.Transactions(r.Context(), Identity(r)) {
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(resp.Transactions) == limit {
			resp.HasMore = true
			break
		}
		resp.Transactions = append(resp.Transactions, t)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txnID, err := id.ParseTransactionID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, ledger.ErrTransactionNotFound)
		return
	}

	t, err := s.ledger.GetTransaction(r.Context(), txnID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// Other accounts' transactions are reported as missing.
	if !t.Involves(Identity(r)) {
		s.writeError(w, r, ledger.ErrTransactionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
