package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"auxparty/internal/core"
)

type contextKey string

const userContextKey contextKey = "user"

// requireAuth verifies the bearer token and loads the user onto the request
// context. Handlers behind it can assume userFrom returns non-nil.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, fmt.Errorf("%w: missing bearer token", core.ErrUnauthenticated))
			return
		}

		userID, err := s.issuer.Verify(token)
		if err != nil {
			s.writeError(w, err)
			return
		}

		user, err := s.store.FindUser(r.Context(), userID)
		if err != nil {
			s.writeError(w, fmt.Errorf("%w: unknown user", core.ErrUnauthenticated))
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next(w, r.WithContext(ctx))
	}
}

// optionalAuth loads the user when a valid token is present and proceeds
// anonymously otherwise. Public event views use it.
func (s *Server) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if ok && token != "" {
			if userID, err := s.issuer.Verify(token); err == nil {
				if user, err := s.store.FindUser(r.Context(), userID); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), userContextKey, user))
				}
			}
		}
		next(w, r)
	}
}

func userFrom(ctx context.Context) *core.User {
	user, _ := ctx.Value(userContextKey).(*core.User)
	return user
}

// floodLimited rejects requests once the per-user window for the operation is
// exhausted.
func (s *Server) floodLimited(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := userFrom(r.Context())
		if user != nil && !s.gate.Allow(operation, user.ID) {
			s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	}
}

// instrumented counts requests per route and status.
func (s *Server) instrumented(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		s.metrics.RequestsTotal.WithLabelValues(route, fmt.Sprint(recorder.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
