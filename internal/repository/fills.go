package repository

import (
	"context"
	"fmt"
	"time"

	"hlfeeder/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertFills bulk-inserts fills via pgx.Batch, silently dropping
// conflicts on (org_id, wallet_id, fill_id, ts) so retries and overlap
// re-fetches are safe. Returns the distinct UTC calendar dates present in
// the batch (used to size the rollup_wallet_day job), sorted ascending.
//
// If ts falls outside a provisioned hl_fills_raw partition, Postgres
// returns an error that the caller should classify via ingesterr as
// PartitionMissing; no partition is created here.
func (r *Repository) InsertFills(ctx context.Context, fills []models.Fill) ([]string, error) {
	if len(fills) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(`
			INSERT INTO hl_fills_raw (org_id, wallet_id, fill_id, ts, coin, side, px, sz, is_spot, is_perp)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (org_id, wallet_id, fill_id, ts) DO NOTHING`,
			f.OrgID, f.WalletID, f.FillID, f.TS, f.Coin, f.Side, f.Px, f.Sz, f.IsSpot, f.IsPerp,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for range fills {
		if _, err := br.Exec(); err != nil {
			return nil, fmt.Errorf("insert fill batch: %w", err)
		}
	}

	// The distinct-dates set is taken over every fill in the batch, not
	// just the rows that actually landed: re-rolling a day whose fills
	// were all conflict-skipped is harmless, since the rollup is a pure
	// function of current raw fills, and this avoids a second round trip
	// to ask Postgres which rows were new.
	inserted := make(map[string]struct{})
	for _, f := range fills {
		day := f.TS.UTC().Format("2006-01-02")
		inserted[day] = struct{}{}
	}

	days := make([]string, 0, len(inserted))
	for d := range inserted {
		days = append(days, d)
	}
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j-1] > days[j]; j-- {
			days[j-1], days[j] = days[j], days[j-1]
		}
	}
	return days, nil
}

// FillsForDay returns every raw fill for (org, wallet) within the UTC
// calendar day [day, day+1). The rollup handlers do not call it; the
// wallet-day aggregation runs in SQL inside UpsertWalletDay.
func (r *Repository) FillsForDay(ctx context.Context, orgID uuid.UUID, walletID int64, day time.Time) ([]models.Fill, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rows, err := r.db.Query(ctx, `
		SELECT org_id, wallet_id, fill_id, ts, coin, side, px, sz, is_spot, is_perp
		FROM hl_fills_raw
		WHERE org_id = $1 AND wallet_id = $2 AND ts >= $3 AND ts < $4`,
		orgID, walletID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("select fills for day: %w", err)
	}
	defer rows.Close()

	var fills []models.Fill
	for rows.Next() {
		var f models.Fill
		if err := rows.Scan(&f.OrgID, &f.WalletID, &f.FillID, &f.TS, &f.Coin, &f.Side, &f.Px, &f.Sz, &f.IsSpot, &f.IsPerp); err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
