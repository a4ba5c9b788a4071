// Package middleware contains HTTP middleware for the pinreport server.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed with Stack.
package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/pinreport/internal/domain"
)

// UserHeader carries the authenticated user's ID, set by the identity
// proxy in front of the server.
const UserHeader = "X-User-ID"

// =============================================================================
// Context Helpers
// =============================================================================

type contextKey string

const userContextKey contextKey = "user"

// GetUser returns the authenticated user from the context, or nil.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// ContextIdentity reads the current user from the request context. It is
// the IdentityProvider handed to the submission coordinator.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) (*domain.User, error) {
	return GetUser(ctx), nil
}

// =============================================================================
// Identity Middleware
// =============================================================================

// UserLookup loads a user by ID, returning nil when none exists.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// IdentityMiddleware resolves the user named by UserHeader.
type IdentityMiddleware struct {
	users  UserLookup
	logger *slog.Logger
}

func NewIdentityMiddleware(users UserLookup, logger *slog.Logger) *IdentityMiddleware {
	return &IdentityMiddleware{users: users, logger: logger}
}

// Resolve puts the user in the request context when the header names a
// known user. Requests without one continue anonymously.
func (m *IdentityMiddleware) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserHeader))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			m.logger.Debug("ignoring malformed user header", "value", raw)
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetUser(r.Context(), id)
		if err != nil {
			m.logger.Error("failed to load user", "error", err, "user_id", id)
			writeJSONError(w, http.StatusInternalServerError, "internal", "An internal error occurred. Please try again later.")
			return
		}
		if user != nil {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects anonymous requests with 401. Use after Resolve.
func (m *IdentityMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			writeJSONError(w, http.StatusUnauthorized, domain.EUNAUTHORIZED, "You must be signed in to submit a report")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Helpers
// =============================================================================

// Stack composes middleware; the first is the outermost.
//
//	stack := Stack(logging.Handler, identity.Resolve, identity.RequireUser)
//	mux.Handle("POST /reports", stack(reportHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

var (
	_ func(http.Handler) http.Handler = (&IdentityMiddleware{}).Resolve
	_ func(http.Handler) http.Handler = (&IdentityMiddleware{}).RequireUser
)
