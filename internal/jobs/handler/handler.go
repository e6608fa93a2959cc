package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"relay/internal/jobs/dispatcher"
	"relay/internal/jobs/models"
	"relay/pkg/platform/httputil"
	"relay/pkg/platform/middleware/auth"
	"relay/pkg/platform/sentinel"
	liststr "relay/pkg/platform/strings"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Service defines the job operations exposed to operators.
type Service interface {
	Dispatch(ctx context.Context, queue string, job *models.Job) (*models.Job, error)
	Find(ctx context.Context, uid string) (*models.AuditRecord, error)
	List(ctx context.Context, limit int, statuses ...models.Status) ([]*models.AuditRecord, error)
}

// Handler wires the admin job endpoints to the dispatcher.
type Handler struct {
	service  Service
	app      string
	validate *validator.Validate
	logger   *slog.Logger
}

// New constructs a job handler. app is stamped on every job dispatched here.
func New(service Service, app string, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		app:      app,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register mounts the job endpoints on r. Callers guard r with auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/jobs", h.HandleList)
	r.Get("/jobs/{id}", h.HandleGet)
	r.Post("/jobs/{queue}", h.HandleDispatch)
}

// DispatchRequest is the body of POST /admin/jobs/{queue}.
type DispatchRequest struct {
	Action  string          `json:"action" validate:"required,max=128"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Files   json.RawMessage `json:"files,omitempty"`
	Logging *bool           `json:"logging,omitempty"`
}

type listResponse struct {
	Records []*models.AuditRecord `json:"records"`
}

// HandleGet handles GET /admin/jobs/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "failed to load audit record",
				"request_id", middleware.GetReqID(r.Context()),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// HandleList handles GET /admin/jobs?status=pending,errored&limit=50.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var statuses []models.Status
	for _, raw := range liststr.SplitList(q.Get("status")) {
		status := models.Status(raw)
		if !status.IsValid() {
			httputil.WriteError(w, httputil.BadRequest("unknown status "+raw))
			return
		}
		statuses = append(statuses, status)
	}

	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			httputil.WriteError(w, httputil.BadRequest("limit must be between 1 and "+strconv.Itoa(maxListLimit)))
			return
		}
		limit = n
	}

	records, err := h.service.List(r.Context(), limit, statuses...)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list audit records",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if records == nil {
		records = []*models.AuditRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Records: records})
}

// HandleDispatch handles POST /admin/jobs/{queue}.
func (h *Handler) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	principal, ok := auth.GetPrincipal(ctx)
	if !ok {
		httputil.WriteError(w, httputil.Unauthorized("authentication required"))
		return
	}

	var req DispatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		httputil.WriteError(w, httputil.BadRequest("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	}

	queue := chi.URLParam(r, "queue")
	job, err := h.service.Dispatch(ctx, queue, &models.Job{
		App:     h.app,
		Owner:   principal,
		Action:  req.Action,
		Payload: req.Payload,
		Files:   req.Files,
		Logging: req.Logging,
	})
	if err != nil {
		switch {
		case errors.Is(err, dispatcher.ErrInvalidJob):
			httputil.WriteError(w, httputil.BadRequest(err.Error()))
		case errors.Is(err, dispatcher.ErrDispatchPersistence):
			h.logger.ErrorContext(ctx, "dispatch aborted",
				"request_id", requestID,
				"queue", queue,
				"error", err,
			)
			httputil.WriteError(w, sentinel.ErrUnavailable)
		default:
			httputil.WriteError(w, err)
		}
		return
	}

	h.logger.InfoContext(ctx, "job dispatched by operator",
		"request_id", requestID,
		"user_id", principal.ID,
		"queue", queue,
		"action", job.Action,
		"uid", job.UID,
	)
	httputil.WriteJSON(w, http.StatusAccepted, job)
}
