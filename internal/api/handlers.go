package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/event"
	"github.com/robert-malhotra/ewoc-work-plan/internal/store"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// maxRequestBytes bounds the plan request body.
const maxRequestBytes = 1 << 20

// Planner builds work plans.
type Planner interface {
	Build(ctx context.Context, req workplan.Request) (*workplan.WorkPlan, error)
}

// PlanStore persists generated plans.
type PlanStore interface {
	Push(ctx context.Context, wp *workplan.WorkPlan) error
	Get(ctx context.Context, planID string) (*workplan.WorkPlan, error)
}

// Recorder receives plan level outcomes.
type Recorder interface {
	PlanBuilt(err error)
	EventPublished(eventType string, err error)
}

type nopRecorder struct{}

func (nopRecorder) PlanBuilt(error) {}
func (nopRecorder) EventPublished(string, error) {}

// Handlers contains the HTTP handlers of the plan service.
type Handlers struct {
	planner   Planner
	defaults  Defaults
	store     PlanStore
	publisher event.Publisher
	recorder  Recorder
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(planner Planner, defaults Defaults, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		planner:   planner,
		defaults:  defaults,
		publisher: event.Noop{},
		recorder:  nopRecorder{},
		logger:    logger,
	}
}

// WithStore enables plan persistence and GET /workplans/{planId}.
func (h *Handlers) WithStore(s PlanStore) *Handlers {
	h.store = s
	return h
}

// WithPublisher sets the plan event publisher.
func (h *Handlers) WithPublisher(p event.Publisher) *Handlers {
	if p != nil {
		h.publisher = p
	}
	return h
}

// WithRecorder sets the receiver of plan outcomes.
func (h *Handlers) WithRecorder(r Recorder) *Handlers {
	if r != nil {
		h.recorder = r
	}
	return h
}

// Health reports service health, including the database when one is used.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
	}
	status := http.StatusOK

	if pinger, ok := h.store.(interface{ Ping(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.Ping(ctx); err != nil {
			response["status"] = "degraded"
			response["database"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			response["database"] = "ok"
		}
	}

	WriteJSON(w, status, response)
}

// CreateWorkPlan builds a plan, stores it and announces it.
// POST /workplans
func (h *Handlers) CreateWorkPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With(slog.String("request_id", GetRequestID(ctx)))

	var body PlanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	req, err := body.ToRequest(h.defaults)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	wp, err := h.planner.Build(ctx, req)
	h.recorder.PlanBuilt(err)
	if err != nil {
		h.writeBuildError(w, r, logger, err)
		return
	}

	data, err := wp.Bytes()
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode plan", slog.String("error", err.Error()))
		WriteInternalError(w, "failed to encode work plan")
		return
	}

	location := ""
	if h.store != nil {
		if err := h.store.Push(ctx, wp); err != nil {
			logger.ErrorContext(ctx, "failed to store plan",
				slog.String("plan_id", wp.ID),
				slog.String("error", err.Error()),
			)
			WriteInternalError(w, "failed to store work plan")
			return
		}
		location = "/workplans/" + wp.ID
		w.Header().Set("Location", location)
	}

	err = h.publisher.PublishPlanCreated(ctx, wp, location)
	h.recorder.EventPublished(event.TypePlanCreated, err)
	if err != nil {
		logger.WarnContext(ctx, "failed to publish plan event",
			slog.String("plan_id", wp.ID),
			slog.String("error", err.Error()),
		)
	}

	WriteRawJSON(w, http.StatusCreated, data)
}

// GetWorkPlan returns a stored plan.
// GET /workplans/{planId}
func (h *Handlers) GetWorkPlan(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "plan storage is not configured")
		return
	}

	planID := chi.URLParam(r, "planId")
	wp, err := h.store.Get(r.Context(), planID)
	if errors.Is(err, store.ErrNotFound) {
		WriteNotFound(w, "work plan not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read plan",
			slog.String("plan_id", planID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to read work plan")
		return
	}

	data, err := wp.Bytes()
	if err != nil {
		WriteInternalError(w, "failed to encode work plan")
		return
	}
	WriteRawJSON(w, http.StatusOK, data)
}

// writeBuildError maps build failures to 400 for configuration errors, 422
// for tiles without usable optical products and 502 for catalog failures.
func (h *Handlers) writeBuildError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var tileErr *workplan.TileError
	tile := ""
	if errors.As(err, &tileErr) {
		tile = tileErr.Tile
	}

	switch {
	case errors.Is(err, workplan.ErrInvalidConfig), errors.Is(err, catalog.ErrUnsupportedProvider):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, workplan.ErrNoOpticalProducts):
		WriteErrorResponse(w, http.StatusUnprocessableEntity, ErrorResponse{
			Code:        ErrCodeUnprocessable,
			Description: err.Error(),
			RequestID:   GetRequestID(r.Context()),
			Tile:        tile,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.WarnContext(r.Context(), "plan build interrupted", slog.String("error", err.Error()))
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "plan build interrupted")
	case tileErr != nil:
		logger.ErrorContext(r.Context(), "catalog failure", slog.String("tile", tile), slog.String("error", err.Error()))
		WriteErrorResponse(w, http.StatusBadGateway, ErrorResponse{
			Code:        ErrCodeUpstreamError,
			Description: err.Error(),
			RequestID:   GetRequestID(r.Context()),
			Tile:        tile,
		})
	default:
		logger.ErrorContext(r.Context(), "plan build failed", slog.String("error", err.Error()))
		WriteInternalErrorWithRequestID(w, "plan build failed", GetRequestID(r.Context()))
	}
}
