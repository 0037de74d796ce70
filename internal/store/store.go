package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store owns the connection pool and exposes the persistence operations
// named in the data model (Call, UploadLog, SystemStats, ApiKey).
type Store struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Options configures pool sizing and timeouts for Connect, matching the
// teacher's database.Connect shape.
type Options struct {
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
}

// Connect parses databaseURL, builds a pool, and verifies connectivity with
// a ping before returning.
func Connect(ctx context.Context, databaseURL string, opts Options, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.IdleTimeout > 0 {
		cfg.MaxConnIdleTime = opts.IdleTimeout
	}

	connectCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().Str("database", maskDSN(databaseURL)).Msg("connected to database")
	return &Store{Pool: pool, log: log}, nil
}

// HealthCheck runs a trivial query with a short timeout, used by the /health
// and /ready endpoints and the Monitor Service's periodic health task.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	return wrapErr("health_check", s.Pool.QueryRow(ctx, "SELECT 1").Scan(&one))
}

// PoolStats reports a best-effort snapshot of connection usage. As noted in
// §9 Design Notes, connections_in_use and idle_connections are derived from
// pgxpool's own stat snapshot and are not perfectly synchronized with each
// other under concurrent load — acceptable for an operational gauge, not
// for billing or capacity alarms.
type PoolStats struct {
	ConnectionsInUse int32
	MaxConnections   int32
	IdleConnections  int32
}

func (s *Store) PoolStats() PoolStats {
	st := s.Pool.Stat()
	return PoolStats{
		ConnectionsInUse: st.AcquiredConns(),
		MaxConnections:   st.MaxConns(),
		IdleConnections:  st.IdleConns(),
	}
}

// Close releases the pool.
func (s *Store) Close() { s.Pool.Close() }

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "invalid-dsn"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
	}
	return u.String()
}
