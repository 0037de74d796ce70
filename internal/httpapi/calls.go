package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/apierr"
	"github.com/snarg/radio-ingest/internal/store"
)

// CallsHandler serves the browse/query surface over the Store (§6.1).
type CallsHandler struct {
	Store *store.Store
	Log   zerolog.Logger
}

// Routes registers GET /api/calls and GET /api/calls/{id}.
func (h *CallsHandler) Routes(r chi.Router) {
	r.Get("/api/calls", h.List)
	r.Get("/api/calls/{id}", h.Get)
}

type callResponse struct {
	Data       []store.Call   `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

func (h *CallsHandler) List(w http.ResponseWriter, r *http.Request) {
	systemID := r.URL.Query().Get("system")
	if systemID == "" {
		WriteError(w, apierr.New(apierr.KindInvalidRequest, "missing required query param: system"))
		return
	}

	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	calls, err := h.Store.ListCallsBySystem(r.Context(), systemID, p.Limit, p.Offset)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to list calls", err))
		return
	}
	total, err := h.Store.CountCallsBySystem(r.Context(), systemID)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to count calls", err))
		return
	}

	WriteJSON(w, http.StatusOK, callResponse{
		Data:       calls,
		Pagination: BuildMeta(p, total),
	})
}

func (h *CallsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	call, err := h.Store.GetCall(r.Context(), id)
	if err == store.ErrNotFound {
		WriteError(w, apierr.New(apierr.KindNotFound, "call not found"))
		return
	}
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to get call", err))
		return
	}
	WriteJSON(w, http.StatusOK, call)
}
