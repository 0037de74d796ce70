package httpapi

import (
	"net/http"
	"time"

	"github.com/snarg/radio-ingest/internal/store"
)

// HealthResponse is the exact body returned by GET /health (§6.1).
type HealthResponse struct {
	Status        string        `json:"status"`
	Version       string        `json:"version"`
	Timestamp     time.Time     `json:"timestamp"`
	Database      DatabaseCheck `json:"database"`
	UptimeSeconds float64       `json:"uptime_seconds"`
}

type DatabaseCheck struct {
	Connected       bool           `json:"connected"`
	PoolStats       PoolStatsJSON  `json:"pool_stats"`
	ResponseTimeMs  float64        `json:"response_time_ms"`
}

type PoolStatsJSON struct {
	ConnectionsInUse int32 `json:"connections_in_use"`
	MaxConnections   int32 `json:"max_connections"`
	IdleConnections  int32 `json:"idle_connections"`
}

// ReadyResponse is the body returned by GET /ready.
type ReadyResponse struct {
	Ready     bool      `json:"ready"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler serves /health and /ready.
type HealthHandler struct {
	Store     *store.Store
	Version   string
	StartTime time.Time
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := h.Store.HealthCheck(r.Context())
	responseTime := time.Since(start)

	ps := h.Store.PoolStats()
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.Version,
		Timestamp: time.Now().UTC(),
		Database: DatabaseCheck{
			Connected:      err == nil,
			ResponseTimeMs: float64(responseTime.Microseconds()) / 1000,
			PoolStats: PoolStatsJSON{
				ConnectionsInUse: ps.ConnectionsInUse,
				MaxConnections:   ps.MaxConnections,
				IdleConnections:  ps.IdleConnections,
			},
		},
		UptimeSeconds: time.Since(h.StartTime).Seconds(),
	}

	status := http.StatusOK
	if err != nil {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.HealthCheck(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, ReadyResponse{Ready: false, Timestamp: time.Now().UTC()})
		return
	}
	WriteJSON(w, http.StatusOK, ReadyResponse{Ready: true, Timestamp: time.Now().UTC()})
}
