// Package auth registers accounts with a password and turns logins into
// revocable bearer tokens. Tokens are HS256 JWTs whose id names a session
// kept in a SessionStore; a token stops resolving once its session is gone.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	ledger "github.com/Kushagra2569/transaction-service"
	"github.com/Kushagra2569/transaction-service/account"
	"github.com/Kushagra2569/transaction-service/types"
)

// Defaults.
const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultIssuer   = "ledger"
	MinPasswordLen  = 8
)

// Service handles registration, login, logout and token resolution.
type Service struct {
	ledger   *ledger.Ledger
	sessions SessionStore
	secret   []byte
	ttl      time.Duration
	issuer   string
	cost     int
	now      func() time.Time
	logger   *slog.Logger

	// compared against when the identity is unknown so both paths cost
	// one bcrypt comparison
	dummyHash []byte
}

// Option configures a Service.
type Option func(*Service)

// WithTokenTTL sets how long issued tokens and sessions live.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithIssuer sets the JWT issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = issuer }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock sets the time source for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a Service. secret signs and verifies tokens.
func NewService(l *ledger.Ledger, sessions SessionStore, secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret must not be empty")
	}

	s := &Service{
		ledger:   l,
		sessions: sessions,
		secret:   secret,
		ttl:      DefaultTokenTTL,
		issuer:   DefaultIssuer,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// Register creates an account for email with a hashed password and an
// opening balance. A taken email returns ledger.ErrDuplicateIdentity.
func (s *Service) Register(ctx context.Context, email, fullName, password string, balance types.Amount) (*account.Account, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ledger.ValidationError{Field: "email", Message: "must be a valid address"}
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ledger.ValidationError{Field: "fullname", Message: "must not be empty"}
	}
	if len(password) < MinPasswordLen {
		return nil, ledger.ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLen)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ledger.ValidationError{Field: "password", Message: "must be at most 72 bytes"}
	}
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	return s.ledger.CreateAccount(ctx, email, fullName, balance, ledger.WithPasswordHash(hash))
}

// Login checks the password for email and returns a signed token with its
// expiry. Unknown emails and wrong passwords both return
// ledger.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	email = normalizeEmail(email)

	hash := s.dummyHash
	cred, err := s.ledger.Credential(ctx, email)
	switch {
	case err == nil:
		hash = cred.PasswordHash
	case !errors.Is(err, ledger.ErrCredentialNotFound):
		return "", time.Time{}, err
	}

	if cmpErr := bcrypt.CompareHashAndPassword(hash, []byte(password)); cmpErr != nil || cred == nil {
		s.logger.Debug("login rejected", "identity", email)
		return "", time.Time{}, ledger.ErrInvalidCredentials
	}

	token, claims, err := s.sign(email)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := s.sessions.Put(ctx, claims.ID, email, s.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("auth: store session: %w", err)
	}

	s.logger.Info("login", "identity", email, "session", claims.ID)
	return token, claims.ExpiresAt.Time, nil
}

// Logout revokes the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return ledger.ErrUnauthenticated
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	s.logger.Info("logout", "identity", claims.Subject, "session", claims.ID)
	return nil
}

// ResolveIdentity returns the identity a token was issued to. The token
// must carry a valid signature, be unexpired, and name a live session
// bound to the same identity.
func (s *Service) ResolveIdentity(ctx context.Context, token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", ledger.ErrUnauthenticated
	}

	identity, err := s.sessions.Lookup(ctx, claims.ID)
	if errors.Is(err, ErrSessionNotFound) {
		return "", ledger.ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("auth: lookup session: %w", err)
	}
	if identity != claims.Subject {
		return "", ledger.ErrUnauthenticated
	}
	return identity, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
