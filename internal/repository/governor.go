package repository

import (
	"context"
	"fmt"
	"time"

	"hlfeeder/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// EnsureRateLimitRow inserts the single shared state row if absent,
// starting full (tokens = maxTokens).
func (r *Repository) EnsureRateLimitRow(ctx context.Context, maxTokens decimal.Decimal) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rate_limit_state (key, tokens, last_refill, minute_start)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (key) DO NOTHING`,
		models.RateLimitStateKey, maxTokens,
	)
	return err
}

// WithRateLimitLock runs fn against the current state row inside a
// transaction that SELECTs it FOR UPDATE, then persists whatever fn
// returns. The caller applies refill and minute-window resets inside fn
// before deciding the operation; the lock is released on commit.
func (r *Repository) WithRateLimitLock(ctx context.Context, fn func(models.RateLimitState) (models.RateLimitState, error)) (models.RateLimitState, error) {
	var result models.RateLimitState

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return result, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var s models.RateLimitState
	s.Key = models.RateLimitStateKey
	err = tx.QueryRow(ctx, `
		SELECT key, tokens, last_refill, requests_this_minute, weight_this_minute,
		       minute_start, is_rate_limited, rate_limited_until
		FROM rate_limit_state WHERE key = $1 FOR UPDATE`,
		models.RateLimitStateKey,
	).Scan(&s.Key, &s.Tokens, &s.LastRefill, &s.RequestsThisMinute, &s.WeightThisMinute,
		&s.MinuteStart, &s.IsRateLimited, &s.RateLimitedUntil)
	if err == pgx.ErrNoRows {
		now := time.Now().UTC()
		s = models.RateLimitState{Key: models.RateLimitStateKey, Tokens: decimal.Zero, LastRefill: now, MinuteStart: now}
	} else if err != nil {
		return result, fmt.Errorf("select rate limit row: %w", err)
	}

	next, err := fn(s)
	if err != nil {
		return result, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rate_limit_state (key, tokens, last_refill, requests_this_minute, weight_this_minute, minute_start, is_rate_limited, rate_limited_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key) DO UPDATE SET
			tokens = EXCLUDED.tokens,
			last_refill = EXCLUDED.last_refill,
			requests_this_minute = EXCLUDED.requests_this_minute,
			weight_this_minute = EXCLUDED.weight_this_minute,
			minute_start = EXCLUDED.minute_start,
			is_rate_limited = EXCLUDED.is_rate_limited,
			rate_limited_until = EXCLUDED.rate_limited_until`,
		next.Key, next.Tokens, next.LastRefill, next.RequestsThisMinute, next.WeightThisMinute,
		next.MinuteStart, next.IsRateLimited, next.RateLimitedUntil,
	)
	if err != nil {
		return result, fmt.Errorf("persist rate limit row: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit rate limit tx: %w", err)
	}
	return next, nil
}
