package http

import (
	"net/http"

	"jobboard/internal/listsync"
)

// RegisterHealth exposes GET /healthz. It reports 503 while the engine
// has no usable snapshot.
func RegisterHealth(mux *http.ServeMux, engine *listsync.Engine) {
	mux.Handle("GET /healthz", instrument("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, err := engine.Status()
		body := map[string]any{
			"status":   status.String(),
			"postings": len(engine.Postings()),
		}
		if err != nil {
			body["error"] = err.Error()
		}
		code := http.StatusOK
		if status == listsync.StatusFailed {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, body)
	}))
}
