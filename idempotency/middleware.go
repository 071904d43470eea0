package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// HeaderKey is the request header carrying the idempotency key.
const HeaderKey = "Idempotency-Key"

// HeaderHit is set on replayed responses.
const HeaderHit = "X-Idempotency-Hit"

// maxKeyLen bounds client supplied keys.
const maxKeyLen = 255

// Middleware replays cached responses for repeated Idempotency-Key values.
type Middleware struct {
	store  Store
	locker Locker
	scope  func(*http.Request) string
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Middleware.
type Option func(*Middleware)

// WithTTL sets how long responses are kept.
func WithTTL(d time.Duration) Option {
	return func(m *Middleware) { m.ttl = d }
}

// WithScope namespaces keys per caller, typically by authenticated
// identity, so two callers can reuse the same key.
func WithScope(scope func(*http.Request) string) Option {
	return func(m *Middleware) { m.scope = scope }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) { m.logger = logger }
}

// New creates a Middleware. locker may be nil, in which case concurrent
// first attempts are not serialized.
func New(store Store, locker Locker, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		locker: locker,
		scope:  func(*http.Request) string { return "" },
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// responseRecorder captures what the handler writes.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Handler wraps next. Responses below 500 are cached; server errors are
// not, so the client may retry them.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLen {
			writeError(w, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		scoped := key
		if s := m.scope(r); s != "" {
			scoped = s + ":" + key
		}
		hash := fingerprint(r, body)

		if m.replay(ctx, w, scoped, hash) {
			return
		}

		if m.locker != nil {
			unlock, acquired, err := m.locker.TryLock(ctx, scoped)
			switch {
			case err != nil:
				m.logger.Error("idempotency lock failed", "key", scoped, "error", err)
			case !acquired:
				writeError(w, http.StatusConflict, "a request with this Idempotency-Key is in progress")
				return
			default:
				defer func() {
					if err := unlock(context.WithoutCancel(ctx)); err != nil {
						m.logger.Warn("idempotency unlock failed", "key", scoped, "error", err)
					}
				}()
				// The first attempt may have finished while we waited.
				if m.replay(ctx, w, scoped, hash) {
					return
				}
			}
		}

		rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.statusCode >= http.StatusInternalServerError {
			return
		}
		err = m.store.Save(context.WithoutCancel(ctx), scoped, CachedResponse{
			StatusCode:  rec.statusCode,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			RequestHash: hash,
		}, m.ttl)
		if err != nil {
			m.logger.Error("idempotency save failed", "key", scoped, "error", err)
		}
	})
}

// replay writes the cached response for key, if any, and reports whether
// it did. Store errors fail open.
func (m *Middleware) replay(ctx context.Context, w http.ResponseWriter, key, hash string) bool {
	cached, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Error("idempotency lookup failed", "key", key, "error", err)
		return false
	}
	if cached == nil {
		return false
	}

	if cached.RequestHash != hash {
		writeError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request")
		return true
	}

	m.logger.Debug("idempotency hit", "key", key)
	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(HeaderHit, "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.Body); err != nil {
		m.logger.Warn("idempotency replay write failed", "key", key, "error", err)
	}
	return true
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
