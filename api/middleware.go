package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	ledger "github.com/Kushagra2569/transaction-service"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxIdentity
	ctxToken
)

// requestID accepts a caller supplied id or generates one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(HeaderRequestID)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID, rid)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// authenticate runs later and records the identity here
		var identity string
		r = r.WithContext(context.WithValue(r.Context(), ctxIdentity, &identity))

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		if s.latency != nil {
			s.latency.Observe(float64(elapsed.Milliseconds()))
		}
		s.logger.Info("http request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"actor", identity,
		)
	})
}

// authenticate resolves the bearer token to an identity.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			s.writeError(w, r, ledger.ErrUnauthenticated)
			return
		}

		identity, err := s.auth.ResolveIdentity(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if slot, ok := r.Context().Value(ctxIdentity).(*string); ok {
			*slot = identity
		}
		ctx := context.WithValue(r.Context(), ctxToken, token)
		ctx = context.WithValue(ctx, ctxIdentity, &identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequestID returns the id assigned to the request.
func RequestID(ctx context.Context) string {
	rid, _ := ctx.Value(ctxRequestID).(string)
	return rid
}

// Identity returns the authenticated identity, or "" outside
// authenticated routes.
func Identity(r *http.Request) string {
	if p, ok := r.Context().Value(ctxIdentity).(*string); ok && p != nil {
		return *p
	}
	return ""
}

func token(r *http.Request) string {
	t, _ := r.Context().Value(ctxToken).(string)
	return t
}
