package repository

import (
	"context"
	"fmt"
	"time"

	"hlfeeder/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RegisterWallet creates (or reuses) a wallet row and links it to org,
// creating its cursor at epoch. Address is normalized lowercase by the
// caller's registration collaborator; this layer trusts it.
func (r *Repository) RegisterWallet(ctx context.Context, orgID uuid.UUID, address, addedBy, label string) (int64, error) {
	var walletID int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO wallets (address, is_active, label)
		VALUES ($1, TRUE, $2)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING wallet_id`,
		address, label,
	).Scan(&walletID)
	if err != nil {
		return 0, fmt.Errorf("upsert wallet: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO org_wallets (org_id, wallet_id, added_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, wallet_id) DO NOTHING`,
		orgID, walletID, addedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("link org wallet: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO hl_ingest_cursor (org_id, wallet_id, cursor_ts, status, next_run_at)
		VALUES ($1, $2, 'epoch', 'ok', now())
		ON CONFLICT (org_id, wallet_id) DO NOTHING`,
		orgID, walletID,
	)
	if err != nil {
		return 0, fmt.Errorf("init cursor: %w", err)
	}
	return walletID, nil
}

// ActiveWallets returns every active wallet linked to org, with its
// current cursor.
func (r *Repository) ActiveWallets(ctx context.Context, orgID uuid.UUID) ([]models.Wallet, map[int64]models.IngestCursor, error) {
	rows, err := r.db.Query(ctx, `
		SELECT w.wallet_id, w.address, w.is_active, COALESCE(w.label, ''),
		       c.cursor_ts, c.last_success_at, c.status, c.error_count, c.next_run_at
		FROM wallets w
		JOIN org_wallets ow ON ow.wallet_id = w.wallet_id AND ow.org_id = $1
		JOIN hl_ingest_cursor c ON c.org_id = ow.org_id AND c.wallet_id = w.wallet_id
		WHERE w.is_active`,
		orgID,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var wallets []models.Wallet
	cursors := make(map[int64]models.IngestCursor)
	for rows.Next() {
		var w models.Wallet
		var c models.IngestCursor
		c.OrgID = orgID
		if err := rows.Scan(&w.WalletID, &w.Address, &w.IsActive, &w.Label,
			&c.CursorTS, &c.LastSuccessAt, &c.Status, &c.ErrorCount, &c.NextRunAt); err != nil {
			return nil, nil, err
		}
		c.WalletID = w.WalletID
		wallets = append(wallets, w)
		cursors[w.WalletID] = c
	}
	return wallets, cursors, rows.Err()
}

// GetCursor reads a wallet's cursor, defaulting CursorTS to epoch when no
// row exists yet (should not happen post-registration, but the Fetcher
// defaults to epoch rather than failing).
func (r *Repository) GetCursor(ctx context.Context, orgID uuid.UUID, walletID int64) (models.IngestCursor, error) {
	var c models.IngestCursor
	c.OrgID, c.WalletID = orgID, walletID
	err := r.db.QueryRow(ctx, `
		SELECT cursor_ts, last_success_at, status, error_count, next_run_at
		FROM hl_ingest_cursor WHERE org_id = $1 AND wallet_id = $2`,
		orgID, walletID,
	).Scan(&c.CursorTS, &c.LastSuccessAt, &c.Status, &c.ErrorCount, &c.NextRunAt)
	if err == pgx.ErrNoRows {
		c.CursorTS = time.Unix(0, 0).UTC()
		c.Status = models.CursorOK
		return c, nil
	}
	return c, err
}

// UpdateCursorSuccess advances the cursor on a successful fetch and
// clears its error bookkeeping.
func (r *Repository) UpdateCursorSuccess(ctx context.Context, orgID uuid.UUID, walletID int64, newCursorTS time.Time, nextRunAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE hl_ingest_cursor
		SET cursor_ts = $3, error_count = 0, status = 'ok',
		    last_success_at = now(), next_run_at = $4
		WHERE org_id = $1 AND wallet_id = $2`,
		orgID, walletID, newCursorTS, nextRunAt,
	)
	return err
}

// UpdateCursorFailure records a failed fetch, bumping error_count and
// backing off next_run_at. cursor_ts is never touched on failure.
func (r *Repository) UpdateCursorFailure(ctx context.Context, orgID uuid.UUID, walletID int64, nextRunAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE hl_ingest_cursor
		SET error_count = error_count + 1, status = 'error', next_run_at = $3
		WHERE org_id = $1 AND wallet_id = $2`,
		orgID, walletID, nextRunAt,
	)
	return err
}

// DeactivateWallet flips is_active off, used by wallet unregistration
// alongside JobStore.CancelWalletJobs.
func (r *Repository) DeactivateWallet(ctx context.Context, walletID int64) error {
	_, err := r.db.Exec(ctx, `UPDATE wallets SET is_active = FALSE WHERE wallet_id = $1`, walletID)
	return err
}

// LastTradeTS returns the most recent last_trade_ts recorded across a
// wallet's day metrics, for the scheduler's hot/warm/cold classification.
// Nil when the wallet has no rollup history yet.
func (r *Repository) LastTradeTS(ctx context.Context, orgID uuid.UUID, walletID int64) (*time.Time, error) {
	var ts *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT max(last_trade_ts) FROM wallet_day_metrics
		WHERE org_id = $1 AND wallet_id = $2`,
		orgID, walletID,
	).Scan(&ts)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return ts, err
}
