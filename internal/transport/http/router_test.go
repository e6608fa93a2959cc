package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/platform/logger"
	"relay/pkg/domain"
	"relay/pkg/platform/sentinel"
)

type pingRoutes struct{}

func (pingRoutes) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
}

type tokens map[string]string

func (t tokens) VerifyToken(_ context.Context, token string) (string, error) {
	if id, ok := t[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

type accounts map[string]domain.Account

func (a accounts) FindByID(_ context.Context, id string) (*domain.Account, error) {
	if acc, ok := a[id]; ok {
		return &acc, nil
	}
	return nil, sentinel.ErrNotFound
}

func newTestRouter(health map[string]HealthCheck) http.Handler {
	return NewRouter(Deps{
		Logger: logger.Discard(),
		Sockets: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		Admin:     []Registrar{pingRoutes{}},
		Verifier:  tokens{"root": "u1", "user": "u2"},
		Accounts:  accounts{"u1": {Principal: domain.Principal{ID: "u1", Role: "admin"}, Active: true}, "u2": {Principal: domain.Principal{ID: "u2", Role: "customer"}, Active: true}},
		AdminRole: "admin",
		Health:    health,
	})
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestRouter(t *testing.T) {
	h := newTestRouter(map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	})

	assert.Equal(t, http.StatusOK, get(h, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/metrics", "").Code)
	assert.Equal(t, http.StatusTeapot, get(h, "/ws", "").Code)

	assert.Equal(t, http.StatusUnauthorized, get(h, "/admin/ping", "").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/admin/ping", "user").Code)
	assert.Equal(t, http.StatusNoContent, get(h, "/admin/ping", "root").Code)
}

func TestHealthDegraded(t *testing.T) {
	h := newTestRouter(map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})

	w := get(h, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"redis":"ok","postgres":"connection refused"}}`, w.Body.String())
}
