package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wardenhq/warden/internal/shared"
)

// Authorizer answers composite role queries for the middleware. *Service
// satisfies it.
type Authorizer interface {
	Allows(ctx context.Context, userID int64, expr RoleExpr) (bool, error)
}

// Middleware wires the two sequential request gates: authentication first,
// then route-level authorization. Business-rule checks (self-delete,
// current-password verification) stay inside handlers; their failure
// presentation is a flash-redirect, not a 403.
type Middleware struct {
	Resolver   PrincipalResolver
	Authorizer Authorizer
	Sessions   *shared.SessionManager
	Logger     *slog.Logger
}

// RequireAuth rejects unauthenticated requests with a redirect to /login
// and resolves the principal into the request context for handlers
// downstream. A session pointing at a deleted or deactivated account is
// treated as unauthenticated.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		userID, ok := sess.UserID()
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		principal, err := m.Resolver.ResolvePrincipal(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("stale session user", slog.Int64("user_id", userID), slog.Any("error", err))
			}
			// The session points at a deleted or deactivated account;
			// destroy it so the cookie and Redis entry go with it.
			m.Sessions.Destroy(sess)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		ctx := ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireGuest redirects authenticated users away from guest-only pages
// (login, register) to the dashboard.
func (m Middleware) RequireGuest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess.Authenticated() {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole gates a route on a composite role expression. It must be
// mounted behind RequireAuth; authentication is always evaluated before
// authorization.
func (m Middleware) RequireRole(expr RoleExpr) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expr.Empty() {
				next.ServeHTTP(w, r)
				return
			}
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			allowed, err := m.Authorizer.Allows(r.Context(), principal.ID, expr)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("role gate", slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
