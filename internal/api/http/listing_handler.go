package http

import (
	"net/http"
	"strconv"

	"jobboard/internal/usecase"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxVisible caps the visible query parameter.
const maxVisible = 1000

// ListingHandler serves the public, read-only routes.
type ListingHandler struct {
	service *usecase.ListingService
	logger  *zap.Logger
}

func NewListingHandler(service *usecase.ListingService, logger *zap.Logger) *ListingHandler {
	return &ListingHandler{
		service: service,
		logger:  logger.With(zap.String("component", "listing-handler")),
	}
}

// RegisterRoutes registers the public routes on mux.
func (h *ListingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /api/jobs", instrument("/api/jobs", h.handleList))
	mux.Handle("GET /api/jobs/{id}", instrument("/api/jobs/{id}", h.handleGet))
	mux.Handle("GET /api/snapshot", instrument("/api/snapshot", h.handleSnapshot))
}

// handleList renders a page (GET /api/jobs?q=&visible=)
func (h *ListingHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	visible := 0
	if raw := r.URL.Query().Get("visible"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "visible must be a non-negative integer"})
			return
		}
		visible = min(n, maxVisible)
	}

	writeJSON(w, http.StatusOK, h.service.Page(r.Context(), q, visible))
}

func (h *ListingHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("posting.id", id))

	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		if statusFor(err) >= 500 {
			span.SetStatus(codes.Error, "Failed to get posting")
			span.RecordError(err)
			h.logger.Error("error getting posting", zap.String("id", id), zap.Error(err))
		}
		writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *ListingHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	postings, err := h.service.Snapshot(r.Context())
	if err != nil {
		writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, postings)
}
