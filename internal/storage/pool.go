package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sungwon/mailrelay/internal/metrics"
)

// PoolConfig describes the registry connection pool.
type PoolConfig struct {
	URL            string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
	// StatementTimeout is applied server side to every session; 0 leaves the
	// server default.
	StatementTimeout time.Duration
	// AppName shows up in pg_stat_activity.
	AppName string
}

// DB is the pgx pool behind the provider registry and its daily stats.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB opens the pool and pings it within ConnectTimeout.
func NewDB(ctx context.Context, cfg PoolConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MaxConnLifetime = time.Hour
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.HealthCheckPeriod = time.Minute

	params := pc.ConnConfig.RuntimeParams
	if cfg.AppName != "" {
		params["application_name"] = cfg.AppName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Queries binds the generated queries to the pool.
func (db *DB) Queries() *Queries {
	return New(db.Pool)
}

func (db *DB) Close() {
	db.Pool.Close()
}

// Ping satisfies the readiness check.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ReportPoolStats publishes acquired and idle connection gauges every
// interval until ctx is done.
func (db *DB) ReportPoolStats(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s := db.Pool.Stat()
		metrics.DBConnectionsActive.Set(float64(s.AcquiredConns()))
		metrics.DBConnectionsIdle.Set(float64(s.IdleConns()))

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
