package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertWalletDay recomputes one wallet's daily metrics from raw fills in
// one statement and overwrites the row. Returns true when the day had at
// least one trade. The rollup_wallet_day handler ignores this value; DAU is
// counted by UpsertGlobalDay from trades_count.
func (r *Repository) UpsertWalletDay(ctx context.Context, orgID uuid.UUID, walletID int64, day time.Time) (bool, error) {
	dayOnly := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var tradesCount int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO wallet_day_metrics (org_id, wallet_id, day, spot_volume_usd, perp_volume_usd, trades_count, last_trade_ts, updated_at)
		SELECT
			$1, $2, $3::date,
			COALESCE(SUM(px * sz) FILTER (WHERE is_spot), 0),
			COALESCE(SUM(px * sz) FILTER (WHERE is_perp), 0),
			COUNT(*),
			MAX(ts),
			now()
		FROM hl_fills_raw
		WHERE org_id = $1 AND wallet_id = $2
		  AND ts >= $3::date AND ts < $3::date + INTERVAL '1 day'
		ON CONFLICT (org_id, wallet_id, day) DO UPDATE SET
			spot_volume_usd = EXCLUDED.spot_volume_usd,
			perp_volume_usd = EXCLUDED.perp_volume_usd,
			trades_count    = EXCLUDED.trades_count,
			last_trade_ts   = EXCLUDED.last_trade_ts,
			updated_at      = now()
		RETURNING trades_count`,
		orgID, walletID, dayOnly,
	).Scan(&tradesCount)
	if err != nil {
		return false, fmt.Errorf("upsert wallet day: %w", err)
	}
	return tradesCount > 0, nil
}

// UpsertGlobalDay recomputes one org's global daily metrics from
// wallet_day_metrics in one statement.
func (r *Repository) UpsertGlobalDay(ctx context.Context, orgID uuid.UUID, day time.Time) error {
	dayOnly := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	_, err := r.db.Exec(ctx, `
		INSERT INTO global_day_metrics (org_id, day, dau, spot_volume_usd, perp_volume_usd, avg_spot_volume_per_user, avg_perp_volume_per_user, updated_at)
		SELECT
			$1, $2::date,
			COUNT(*) FILTER (WHERE trades_count > 0),
			COALESCE(SUM(spot_volume_usd), 0),
			COALESCE(SUM(perp_volume_usd), 0),
			CASE WHEN COUNT(*) FILTER (WHERE trades_count > 0) = 0 THEN 0
			     ELSE COALESCE(SUM(spot_volume_usd), 0) / COUNT(*) FILTER (WHERE trades_count > 0) END,
			CASE WHEN COUNT(*) FILTER (WHERE trades_count > 0) = 0 THEN 0
			     ELSE COALESCE(SUM(perp_volume_usd), 0) / COUNT(*) FILTER (WHERE trades_count > 0) END,
			now()
		FROM wallet_day_metrics
		WHERE org_id = $1 AND day = $2::date
		ON CONFLICT (org_id, day) DO UPDATE SET
			dau                      = EXCLUDED.dau,
			spot_volume_usd          = EXCLUDED.spot_volume_usd,
			perp_volume_usd          = EXCLUDED.perp_volume_usd,
			avg_spot_volume_per_user = EXCLUDED.avg_spot_volume_per_user,
			avg_perp_volume_per_user = EXCLUDED.avg_perp_volume_per_user,
			updated_at               = now()`,
		orgID, dayOnly,
	)
	if err != nil {
		return fmt.Errorf("upsert global day: %w", err)
	}
	return nil
}
