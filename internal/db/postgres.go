package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the single relational backend: retry queue, sync log, webhook
// audit, transform rules, plus read-only lookups against the host
// application's user tables.
type Store struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	maxAttempts int
	multiplier  float64
}

func NewStore(ctx context.Context, connString string, maxAttempts int, multiplier float64, logger *slog.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres not responding: %w", err)
	}

	return &Store{
		pool:        pool,
		logger:      logger,
		maxAttempts: maxAttempts,
		multiplier:  multiplier,
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}
