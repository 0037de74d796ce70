package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/ingest"
	"github.com/snarg/radio-ingest/internal/store"
)

// Server wraps chi's router with the ingest, browse, and ambient (health,
// metrics, probes) HTTP surface. Grounded on the teacher's api.Server
// composition in internal/api/server.go.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// Options configures NewServer.
type Options struct {
	Addr            string
	Store           *store.Store
	Core            *ingest.Core
	FindAPIKey      FindAPIKeyFunc
	RequireAPIKey   bool
	RateLimitRPS    float64
	CORSOrigins     []string
	EnableCORS      bool
	MaxUploadBytes  int64
	RequestTimeout  time.Duration
	Version         string
	StartTime       time.Time
	Log             zerolog.Logger
}

// NewServer builds the chi router and wraps it in an *http.Server.
func NewServer(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(opts.Log))
	r.Use(Recoverer(opts.Log))
	if opts.EnableCORS {
		r.Use(CORSWithOrigins(opts.CORSOrigins))
	}
	if opts.RateLimitRPS > 0 {
		r.Use(RateLimiter(opts.RateLimitRPS, int(opts.RateLimitRPS)*2))
	}
	r.Use(InstrumentHandler)

	Probes(r)

	health := &HealthHandler{Store: opts.Store, Version: opts.Version, StartTime: opts.StartTime}
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	uploadGroup := r.With(MaxBodySize(opts.MaxUploadBytes))
	upload := &UploadHandler{
		Core:          opts.Core,
		RequireAPIKey: opts.RequireAPIKey,
		FindAPIKey:    opts.FindAPIKey,
		Log:           opts.Log,
	}
	upload.Routes(uploadGroup)

	calls := &CallsHandler{Store: opts.Store, Log: opts.Log}
	calls.Routes(r)

	stats := &StatsHandler{Store: opts.Store, Log: opts.Log}
	stats.Routes(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w)
	})

	srv := &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  opts.RequestTimeout,
		WriteTimeout: 0, // allow long-lived responses; no SSE in this service but matches teacher's rationale
		IdleTimeout:  120 * time.Second,
	}

	return &Server{http: srv, log: opts.Log}
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("starting http server")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
