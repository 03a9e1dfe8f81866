package http

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"jobboard/internal/domain"
	"jobboard/internal/errors"
	"jobboard/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	if stderrors.Is(err, domain.ErrPostingNotFound) {
		return http.StatusNotFound
	}
	switch errors.TypeOf(err) {
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrTypeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrTypeUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status code. Typed errors show their message;
// untyped ones show err verbatim when verbatim is set and a generic
// message otherwise.
func writeError(w http.ResponseWriter, err error, verbatim bool) {
	status := statusFor(err)
	resp := ErrorResponse{Error: "Internal server error"}

	var de *errors.DomainError
	switch {
	case stderrors.As(err, &de) && status != http.StatusInternalServerError:
		resp.Error = de.Message
	case verbatim:
		resp.Error = err.Error()
	}

	var verr *usecase.ValidationError
	if stderrors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}
