// Package gate decides who a connecting socket is before it is upgraded.
//
// A connection without a token is a guest. A connection with a token must
// verify and must map to an account that still exists and is active; the
// token alone is never trusted for role or identity.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"relay/pkg/domain"
	"relay/pkg/platform/sentinel"
)

var (
	// ErrAuthenticationRejected means a token was presented and did not verify.
	ErrAuthenticationRejected = errors.New("authentication rejected")
	// ErrStalePrincipal means the token verified but its account is gone or inactive.
	ErrStalePrincipal = errors.New("stale principal")
)

// TokenVerifier checks a bearer token and returns the user id it names.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// AccountResolver loads the current state of a principal.
type AccountResolver interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

// State is where a socket is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateGuest
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateGuest:
		return "guest"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "connecting"
	}
}

// Session is the outcome of a successful handshake.
type Session struct {
	State     State
	Principal domain.Principal
	// Rooms are joined as soon as the socket is registered.
	Rooms []string
}

// Authenticated reports whether a principal is attached.
func (s *Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Gate authenticates socket handshakes.
type Gate struct {
	verifier TokenVerifier
	accounts AccountResolver
	timeout  time.Duration
	logger   *slog.Logger
}

func New(verifier TokenVerifier, accounts AccountResolver, timeout time.Duration, logger *slog.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		accounts: accounts,
		timeout:  timeout,
		logger:   logger,
	}
}

// TokenFromRequest reads the bearer from the token or access_token query
// parameter, falling back to the Authorization header. Browsers cannot set
// headers on websocket requests, hence the query parameter.
func TokenFromRequest(r *http.Request) string {
	q := r.URL.Query()
	if token := strings.TrimSpace(q.Get("token")); token != "" {
		return token
	}
	if token := strings.TrimSpace(q.Get("access_token")); token != "" {
		return token
	}
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// Authenticate resolves the session for a handshake request, bounded by the
// handshake timeout.
func (g *Gate) Authenticate(ctx context.Context, r *http.Request) (*Session, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return &Session{State: StateGuest}, nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	userID, err := g.verifier.VerifyToken(ctx, token)
	if err != nil {
		g.logger.WarnContext(ctx, "socket token rejected", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationRejected, err)
	}

	account, err := g.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			g.logger.WarnContext(ctx, "socket token names unknown account", "user_id", userID)
			return nil, fmt.Errorf("%w: account %s not found", ErrStalePrincipal, userID)
		}
		// A handshake that outlives its timeout is dropped as unverified.
		if errors.Is(err, context.DeadlineExceeded) {
			g.logger.WarnContext(ctx, "socket handshake timed out resolving principal", "user_id", userID)
			return nil, fmt.Errorf("%w: handshake timed out: %w", ErrAuthenticationRejected, err)
		}
		return nil, fmt.Errorf("resolve principal %s: %w", userID, err)
	}
	if !account.Active {
		g.logger.WarnContext(ctx, "socket token names inactive account", "user_id", userID)
		return nil, fmt.Errorf("%w: account %s inactive", ErrStalePrincipal, userID)
	}

	principal := account.Principal
	rooms := []string{principal.UserRoom()}
	if strings.TrimSpace(principal.Role) != "" {
		rooms = append(rooms, principal.RoleRoom())
	}
	return &Session{
		State:     StateAuthenticated,
		Principal: principal,
		Rooms:     rooms,
	}, nil
}
