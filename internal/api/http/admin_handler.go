package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"jobboard/internal/auth"
	"jobboard/internal/domain"
	"jobboard/internal/usecase"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AdminHandler serves the administrator routes. Every route except login
// needs an "Authorization: Bearer <token>" header.
type AdminHandler struct {
	auth   *auth.Service
	flow   *usecase.AdminFlow
	logger *zap.Logger
}

func NewAdminHandler(authService *auth.Service, flow *usecase.AdminFlow, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		auth:   authService,
		flow:   flow,
		logger: logger.With(zap.String("component", "admin-handler")),
	}
}

// RegisterRoutes registers the admin routes on mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/admin/login", instrument("/api/admin/login", h.handleLogin))
	mux.Handle("POST /api/admin/logout", instrument("/api/admin/logout", h.handleLogout))
	mux.Handle("GET /api/admin/jobs", instrument("/api/admin/jobs", h.withSession(h.handleList)))
	mux.Handle("POST /api/admin/jobs", instrument("/api/admin/jobs", h.withSession(h.handleCreate)))
	mux.Handle("PUT /api/admin/jobs/{id}", instrument("/api/admin/jobs/{id}", h.withSession(h.handleUpdate)))
	mux.Handle("DELETE /api/admin/jobs/{id}", instrument("/api/admin/jobs/{id}", h.withSession(h.handleDelete)))
	mux.Handle("GET /api/admin/notifications/failures", instrument("/api/admin/notifications/failures", h.withSession(h.handleFailures)))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session domain.Session)

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func (h *AdminHandler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.auth.Resolve(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, err, false)
			return
		}
		next(w, r, session)
	}
}

func (h *AdminHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	session, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err, false)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     session.Token,
		Email:     session.Email,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AdminHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		writeError(w, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request, session domain.Session) {
	postings, err := h.flow.Load(r.Context(), session)
	if err != nil {
		writeError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, postings)
}

func (h *AdminHandler) handleCreate(w http.ResponseWriter, r *http.Request, session domain.Session) {
	var req SavePostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	created, err := h.flow.Create(r.Context(), session, req.ToFields())
	if err != nil {
		writeError(w, err, true)
		return
	}
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("posting.id", created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) handleUpdate(w http.ResponseWriter, r *http.Request, session domain.Session) {
	var req SavePostingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	updated, err := h.flow.Update(r.Context(), session, r.PathValue("id"), req.ToFields())
	if err != nil {
		writeError(w, err, true)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) handleDelete(w http.ResponseWriter, r *http.Request, session domain.Session) {
	if err := h.flow.Delete(r.Context(), session, r.PathValue("id")); err != nil {
		writeError(w, err, true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleFailures(w http.ResponseWriter, r *http.Request, session domain.Session) {
	failures := h.flow.NotifyFailures()
	if failures == nil {
		failures = []usecase.NotifyFailure{}
	}
	writeJSON(w, http.StatusOK, failures)
}
