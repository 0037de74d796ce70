package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Probes registers the fixed-response diagnostic endpoints listed in §6.1:
// GET /, /test, /api/test, /api. These are cheap liveness probes some
// recorder software polls before attempting an upload.
func Probes(mux chi.Router) {
	fixed := func(body map[string]any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			WriteJSON(w, http.StatusOK, body)
		}
	}

	mux.Get("/", fixed(map[string]any{"status": "ok", "service": "radio-ingest"}))
	mux.Get("/test", fixed(map[string]any{"status": "ok"}))
	mux.Get("/api", fixed(map[string]any{"status": "ok", "service": "radio-ingest"}))
	mux.Get("/api/test", fixed(map[string]any{"status": "ok"}))
}
