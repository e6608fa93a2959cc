package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"relay/pkg/platform/httputil"
	"relay/pkg/platform/middleware/auth"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Registrar mounts a set of routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps are the collaborators the HTTP surface is assembled from.
type Deps struct {
	Logger   *slog.Logger
	Sockets  http.Handler
	Admin    []Registrar
	Verifier auth.TokenVerifier
	Accounts auth.AccountResolver
	// AdminRole guards every Admin registrar.
	AdminRole string
	Health    map[string]HealthCheck
}

// NewRouter wires /healthz, /metrics, /ws and the admin routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())
	if deps.Sockets != nil {
		r.Handle("/ws", deps.Sockets)
	}

	if len(deps.Admin) > 0 {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.RequireAuth(deps.Verifier, deps.Accounts, deps.Logger))
			admin.Use(auth.RequireRole(deps.AdminRole, deps.Logger))
			for _, reg := range deps.Admin {
				reg.Register(admin)
			}
		})
	}
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		results := make([]string, len(names))
		// A failing check must not cancel the others.
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				results[i] = "ok"
				if err := checks[name](ctx); err != nil {
					results[i] = err.Error()
					return err
				}
				return nil
			})
		}
		failed := g.Wait() != nil

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		for i, name := range names {
			resp.Checks[name] = results[i]
		}
		status := http.StatusOK
		if failed {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
