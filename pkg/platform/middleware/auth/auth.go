package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"relay/pkg/domain"
	"relay/pkg/platform/httputil"
	"relay/pkg/platform/sentinel"
)

// TokenVerifier checks a bearer token and returns the user id it names.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// AccountResolver loads the current state of a principal.
type AccountResolver interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

type contextKeyPrincipal struct{}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal{}).(domain.Principal)
	return p, ok && !p.IsZero()
}

// WithPrincipal injects a principal into a context.
// Useful for handler tests that don't run the full middleware chain.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, p)
}

// RequireAuth verifies the bearer token and resolves its account, rejecting
// unknown and inactive accounts.
func RequireAuth(verifier TokenVerifier, accounts AccountResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := middleware.GetReqID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, httputil.Unauthorized("Missing or invalid Authorization header"))
				return
			}

			userID, err := verifier.VerifyToken(ctx, strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, httputil.Unauthorized("Invalid or expired token"))
				return
			}

			account, err := accounts.FindByID(ctx, userID)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				logger.ErrorContext(ctx, "failed to resolve principal",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, err)
				return
			}
			if account == nil || !account.Active {
				logger.WarnContext(ctx, "unauthorized access - stale principal",
					"user_id", userID,
					"request_id", requestID,
				)
				httputil.WriteError(w, httputil.Unauthorized("Account is not active"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, account.Principal)))
		})
	}
}

// RequireRole rejects principals without role. It must run after RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			p, ok := GetPrincipal(ctx)
			if !ok {
				httputil.WriteError(w, httputil.Unauthorized("authentication required"))
				return
			}
			if p.Role != role {
				logger.WarnContext(ctx, "forbidden - missing role",
					"user_id", p.ID,
					"role", p.Role,
					"required_role", role,
					"request_id", middleware.GetReqID(ctx),
				)
				httputil.WriteError(w, httputil.Forbidden("role "+role+" required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
