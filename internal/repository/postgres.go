// Package repository is the Postgres-backed persistence layer: wallets,
// cursors, the job queue, the governor's shared rate-limit row, raw
// fills, and both rollup tables.
package repository

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

// NewRepository opens a connection pool, sized from DB_MAX_OPEN_CONNS /
// DB_MAX_IDLE_CONNS when set.
func NewRepository(dbURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConns = int32(n)
		}
	}
	if v := os.Getenv("DB_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinConns = int32(n)
		}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &Repository{db: pool}, nil
}

// NewRepositoryFromPool wraps an already-constructed pool.
func NewRepositoryFromPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) Migrate(schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := r.db.Exec(context.Background(), string(content)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() {
	r.db.Close()
}

// CreateFillsPartition provisions one monthly partition of hl_fills_raw
// covering [monthStart, monthStart+1 month). Never called automatically
// from the ingestion path — invoked by the provisioning tool ahead of
// expected data. monthStart names the first day of the month, YYYY-MM-01.
// Partition bounds must be literals (Postgres rejects bind parameters in
// DDL), so both bounds are formatted from the parsed date.
func (r *Repository) CreateFillsPartition(ctx context.Context, monthStart string) error {
	start, err := time.Parse("2006-01-02", monthStart)
	if err != nil {
		return fmt.Errorf("parse month start %q: %w", monthStart, err)
	}
	if start.Day() != 1 {
		return fmt.Errorf("month start %q is not the first day of a month", monthStart)
	}
	end := start.AddDate(0, 1, 0)

	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s PARTITION OF hl_fills_raw
		FOR VALUES FROM ('%s') TO ('%s')`,
		partitionName(start), start.Format("2006-01-02"), end.Format("2006-01-02"))
	_, err = r.db.Exec(ctx, stmt)
	return err
}

// partitionName derives the monthly partition's identifier, e.g.
// hl_fills_raw_2026_08.
func partitionName(start time.Time) string {
	return fmt.Sprintf("hl_fills_raw_%04d_%02d", start.Year(), int(start.Month()))
}
