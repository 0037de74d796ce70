package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/apierr"
	"github.com/snarg/radio-ingest/internal/store"
)

// StatsHandler serves GET /api/systems/{system_id}/stats and
// GET /api/stats/global (§6.1).
type StatsHandler struct {
	Store *store.Store
	Log   zerolog.Logger
}

func (h *StatsHandler) Routes(r chi.Router) {
	r.Get("/api/systems/{system_id}/stats", h.SystemStats)
	r.Get("/api/stats/global", h.GlobalStats)
}

type systemStatsResponse struct {
	SystemID      string          `json:"system_id"`
	Label         string          `json:"label"`
	TotalCalls    int64           `json:"total_calls"`
	CallsToday    int64           `json:"calls_today"`
	CallsThisHour int64           `json:"calls_this_hour"`
	LastCallAt    time.Time       `json:"last_call_at"`
	HourlyCalls   *int64          `json:"hourly_calls,omitempty"`
	TopTalkgroups json.RawMessage `json:"top_talkgroups,omitempty"`
	UploadSources json.RawMessage `json:"upload_sources,omitempty"`
}

func (h *StatsHandler) SystemStats(w http.ResponseWriter, r *http.Request) {
	systemID := chi.URLParam(r, "system_id")

	stats, err := h.Store.GetSystemStats(r.Context(), systemID)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to fetch system stats", err))
		return
	}

	resp := systemStatsResponse{
		SystemID:      stats.SystemID,
		Label:         stats.Label,
		TotalCalls:    stats.TotalCalls,
		CallsToday:    stats.CallsToday,
		CallsThisHour: stats.CallsThisHour,
		LastCallAt:    stats.LastCallAt,
	}

	if r.URL.Query().Get("include_hourly") == "true" {
		since := time.Now().UTC().Add(-1 * time.Hour)
		n, err := h.Store.CountSystemCallsSince(r.Context(), systemID, since)
		if err != nil {
			WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to compute hourly calls", err))
			return
		}
		resp.HourlyCalls = &n
	}
	if r.URL.Query().Get("include_talkgroups") == "true" {
		resp.TopTalkgroups = stats.TopTalkgroups
	}
	if r.URL.Query().Get("include_sources") == "true" {
		resp.UploadSources = stats.UploadSources
	}

	WriteJSON(w, http.StatusOK, resp)
}

type globalStatsResponse struct {
	TotalCalls    int64             `json:"total_calls"`
	TotalSystems  int64             `json:"total_systems"`
	RecentCalls1h int64             `json:"recent_calls_1h"`
	TopSystems    []store.SystemCount `json:"top_systems"`
}

func (h *StatsHandler) GlobalStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalCalls, err := h.Store.CountCalls(ctx)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to count calls", err))
		return
	}
	totalSystems, err := h.Store.CountSystems(ctx)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to count systems", err))
		return
	}
	recent, err := h.Store.CountRecentCalls(ctx, time.Hour)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to count recent calls", err))
		return
	}

	limit := 10
	if v := r.URL.Query().Get("top_n"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	top, err := h.Store.TopSystems(ctx, limit)
	if err != nil {
		WriteError(w, apierr.Wrap(apierr.KindStorageError, "failed to fetch top systems", err))
		return
	}

	WriteJSON(w, http.StatusOK, globalStatsResponse{
		TotalCalls:    totalCalls,
		TotalSystems:  totalSystems,
		RecentCalls1h: recent,
		TopSystems:    top,
	})
}
