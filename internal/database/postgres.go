package database

import (
	"context"
	"fmt"
	"time"

	"weldflow-api/internal/observability/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions sizes the pool and configures slow query logging.
// A zero SlowQueryThreshold or nil Log disables the tracer.
type PoolOptions struct {
	MaxConns           int32
	MinConns           int32
	SlowQueryThreshold time.Duration
	Log                *logger.Logger
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{MaxConns: 25, MinConns: 5}
}

const (
	pingAttempts = 3
	pingTimeout  = 5 * time.Second
)

// NewPool creates the pgx pool and waits for the first ping, retrying with
// exponential backoff.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = opts.MaxConns
	config.MinConns = opts.MinConns
	config.HealthCheckPeriod = time.Minute
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Transaction poolers (PgBouncer) reject cached prepared statements with
	// SQLSTATE 42P05.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	if opts.SlowQueryThreshold > 0 && opts.Log != nil {
		config.ConnConfig.Tracer = &slowQueryTracer{threshold: opts.SlowQueryThreshold, log: opts.Log}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	delay := time.Second
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return pool, nil
		}
		if attempt == pingAttempts {
			break
		}

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("database ping canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	pool.Close()
	return nil, fmt.Errorf("failed to ping database after %d attempts: %w", pingAttempts, err)
}
