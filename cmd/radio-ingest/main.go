// Command radio-ingest runs the HTTP upload API and the filesystem Monitor
// Service side by side against one shared Postgres-backed Store. Grounded
// on the teacher's cmd/tr-engine/main.go composition root: flag parsing,
// config load, logger setup, signal-driven shutdown, then wire
// store -> blob -> dispatcher -> ingest core -> http server + monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/blob"
	"github.com/snarg/radio-ingest/internal/config"
	"github.com/snarg/radio-ingest/internal/httpapi"
	"github.com/snarg/radio-ingest/internal/ingest"
	"github.com/snarg/radio-ingest/internal/store"
	"github.com/snarg/radio-ingest/internal/transcribe"
	"github.com/snarg/radio-ingest/internal/watch"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		envFile     = flag.String("env-file", "", "path to .env file (default: .env)")
		httpAddr    = flag.String("http-addr", "", "override SERVER_HOST:SERVER_PORT")
		logLevel    = flag.String("log-level", "", "override LOG_LEVEL")
		databaseURL = flag.String("database-url", "", "override DATABASE_URL")
		watchDir    = flag.String("watch-dir", "", "override WATCH_DIRECTORY")
	)
	flag.Parse()

	cfg, err := config.Load(config.Overrides{
		EnvFile:     *envFile,
		HTTPAddr:    *httpAddr,
		LogLevel:    *logLevel,
		DatabaseURL: *databaseURL,
		WatchDir:    *watchDir,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal error")
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w = os.Stdout
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.Format != "json" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return logger
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now().UTC()

	log.Info().Str("version", version).Msg("starting radio-ingest")

	if err := store.Migrate(cfg.Database.URL, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	st, err := store.Connect(ctx, cfg.Database.URL, store.Options{
		MaxConns:       cfg.Database.MaxConnections,
		MinConns:       cfg.Database.MinConnections,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		IdleTimeout:    cfg.Database.IdleTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer st.Close()

	blobStore, err := blob.New(ctx, cfg.Storage, cfg.S3)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	var dispatcher *transcribe.Dispatcher
	if cfg.Transcr.Enabled {
		pool := transcribe.NewInMemoryPool(cfg.Transcr.QueueSize)
		dispatcher = transcribe.NewDispatcher(transcribe.Options{
			Pool:    pool,
			Update:  st.UpdateTranscription,
			Log:     log,
			Enabled: true,
		})
	} else {
		dispatcher = transcribe.NewDispatcher(transcribe.Options{Log: log, Enabled: false})
	}

	core := ingest.New(ingest.Options{
		Store:             st,
		Blob:              blobStore,
		Dispatcher:        dispatcher,
		Log:               log,
		MaxFileSize:       cfg.Storage.MaxFileSize,
		AllowedExtensions: cfg.Storage.AllowedExtensions,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := httpapi.NewServer(httpapi.Options{
		Addr:           addr,
		Store:          st,
		Core:           core,
		FindAPIKey:     st.FindActiveAPIKeyByHash,
		RequireAPIKey:  cfg.Security.RequireAPIKey,
		RateLimitRPS:   cfg.API.RateLimit / 60,
		CORSOrigins:    cfg.API.CORSOrigins,
		EnableCORS:     cfg.API.EnableCORS,
		MaxUploadBytes: cfg.Security.MaxUploadSize,
		RequestTimeout: cfg.Security.RequestTimeout,
		Version:        version,
		StartTime:      startTime,
		Log:            log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var monitor *watch.Monitor
	if cfg.Watch.Directory != "" {
		monitor, err = startMonitor(ctx, cfg, st, blobStore, log)
		if err != nil {
			return fmt.Errorf("start monitor service: %w", err)
		}
	} else {
		log.Warn().Msg("WATCH_DIRECTORY unset, filesystem monitor disabled")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("background task failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeoutSeconds)
	defer cancel()

	if monitor != nil {
		if err := monitor.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("monitor service shutdown error")
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("shutdown complete")
	return nil
}

// startMonitor assembles and starts the FS Watcher / Work Queue / File
// Processor / Monitor Service quartet (C7-C10).
func startMonitor(ctx context.Context, cfg *config.Config, st *store.Store, blobStore blob.Store, log zerolog.Logger) (*watch.Monitor, error) {
	watcher, err := watch.NewWatcher(watch.WatcherOptions{
		Directory:      cfg.Watch.Directory,
		FilePatterns:   cfg.Watch.FilePatterns,
		FileExtensions: cfg.Watch.FileExtensions,
		MinFileSize:    cfg.Watch.MinFileSize,
		MaxFileSize:    cfg.Watch.MaxFileSize,
		DebounceDelay:  cfg.Watch.DebounceDelay,
		Recursive:      cfg.Watch.Recursive,
		FollowSymlinks: cfg.Watch.FollowSymlinks,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	queue := watch.NewQueue(watch.QueueOptions{
		MaxSize:         cfg.Queue.MaxSize,
		MaxRetries:      cfg.Process.MaxRetryAttempts,
		PriorityByAge:   cfg.Queue.PriorityByAge,
		PriorityBySize:  cfg.Queue.PriorityBySize,
		RetryDelay:      cfg.Process.RetryDelaySeconds,
		RetryBackoffRPS: 1.0, // at most one retried item admitted to dequeue per second
	})

	processor := watch.NewProcessor(watch.ProcessorOptions{
		Blob:                  blobStore,
		Store:                 st,
		ArchiveDir:            cfg.Archive.Directory,
		FailedDir:             cfg.Archive.FailedDirectory,
		OrganizeByDate:        cfg.Archive.OrganizeByDate,
		MoveAfterProcessing:   cfg.Process.MoveAfterProcessing,
		DeleteAfterProcessing: cfg.Process.DeleteAfterProcessing,
		VerifyFileIntegrity:   cfg.Process.VerifyFileIntegrity,
		ProcessingTimeout:     cfg.Process.TimeoutSeconds,
	}, log)

	monitor := watch.NewMonitor(watch.MonitorOptions{
		Store:               st,
		Watcher:             watcher,
		Queue:               queue,
		Processor:           processor,
		WatchDir:            cfg.Watch.Directory,
		ArchiveDir:          cfg.Archive.Directory,
		FailedDir:           cfg.Archive.FailedDirectory,
		TempDir:             cfg.Archive.TempDirectory,
		PersistenceFile:     cfg.Queue.PersistenceFile,
		ProcessingWorkers:   workerCount(cfg.Process.Workers),
		ProcessingInterval:  cfg.Process.IntervalSeconds,
		HealthCheckInterval: cfg.Service.HealthCheckInterval,
		MetricsInterval:     cfg.Service.MetricsInterval,
		PersistenceInterval: 60 * time.Second,
		ShutdownTimeout:     cfg.Service.ShutdownTimeoutSeconds,
		AutoRestart:         cfg.Service.AutoRestart,
		MaxRestartAttempts:  cfg.Service.MaxRestartAttempts,
	}, log)

	if err := monitor.Start(ctx); err != nil && !errors.Is(err, watch.ErrServiceAlreadyRunning) {
		return nil, err
	}
	return monitor, nil
}

func workerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}
