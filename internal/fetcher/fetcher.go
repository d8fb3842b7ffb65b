// Package fetcher implements the ingest_wallet job handler: cursor read,
// overlap window, governor-gated upstream fetch, idempotent bulk insert,
// cursor advance, and rollup chaining.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"hlfeeder/internal/governor"
	"hlfeeder/internal/ingesterr"
	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/models"
	"hlfeeder/internal/repository"
	"hlfeeder/internal/upstream"

	"github.com/jackc/pgx/v5/pgconn"
)

const overlapWindow = 10 * time.Minute

// Handler runs the ingest_wallet job end to end.
type Handler struct {
	repo     *repository.Repository
	jobs     *jobstore.Store
	gov      governor.Governor
	upstream *upstream.Client
}

func New(repo *repository.Repository, jobs *jobstore.Store, gov governor.Governor, up *upstream.Client) *Handler {
	return &Handler{repo: repo, jobs: jobs, gov: gov, upstream: up}
}

// Name satisfies the worker's {type -> handler} registry.
func (h *Handler) Name() models.JobType { return models.JobIngestWallet }

// Handle runs the fetch for one wallet. Upstream errors are returned as they
// come and other failures are wrapped in the ingesterr taxonomy, so the job
// store can apply backoff/retry or fail fast. Once the payload decodes,
// every failure is also recorded in the cursor's failure bookkeeping.
func (h *Handler) Handle(ctx context.Context, job models.Job) error {
	payload, err := jobstore.DecodeIngestWallet(job)
	if err != nil {
		return &ingesterr.ConstraintViolationError{Err: fmt.Errorf("decode ingest_wallet payload: %w", err)}
	}

	cursor, err := h.repo.GetCursor(ctx, payload.OrgID, payload.WalletID)
	if err != nil {
		h.recordFailure(ctx, payload)
		return &ingesterr.DatabaseTransientError{Err: fmt.Errorf("read cursor: %w", err)}
	}

	startMillis := cursor.CursorTS.Add(-overlapWindow).UnixMilli()
	if startMillis < 0 {
		startMillis = 0
	}

	if _, err := h.gov.Acquire(ctx, governor.DefaultCost); err != nil {
		h.recordFailure(ctx, payload)
		return fmt.Errorf("governor acquire: %w", err)
	}

	fills, fetchErr := h.upstream.FetchFills(ctx, payload.Address, startMillis)
	if fetchErr != nil {
		var rl *ingesterr.RateLimitedError
		if errors.As(fetchErr, &rl) {
			if err := h.gov.ReportRateLimited(ctx); err != nil {
				log.Printf("[fetcher] report rate limited failed for wallet %d: %v", payload.WalletID, err)
			}
			h.recordFailure(ctx, payload)
			return rl
		}
		h.recordFailure(ctx, payload)
		return fetchErr
	}

	if err := h.gov.AdjustForResponse(ctx, len(fills)); err != nil {
		log.Printf("[fetcher] adjust for response failed for wallet %d: %v", payload.WalletID, err)
	}

	for i := range fills {
		fills[i].OrgID = payload.OrgID
		fills[i].WalletID = payload.WalletID
	}

	if len(fills) == 0 {
		nextRun := time.Now().Add(h.nextInterval(ctx, payload))
		if err := h.repo.UpdateCursorSuccess(ctx, payload.OrgID, payload.WalletID, cursor.CursorTS, nextRun); err != nil {
			h.recordFailure(ctx, payload)
			return &ingesterr.DatabaseTransientError{Err: fmt.Errorf("update cursor (empty): %w", err)}
		}
		return nil
	}

	days, err := h.repo.InsertFills(ctx, fills)
	if err != nil {
		h.recordFailure(ctx, payload)
		return classifyInsertErr(err)
	}

	newCursorTS := cursor.CursorTS
	for _, f := range fills {
		if f.TS.After(newCursorTS) {
			newCursorTS = f.TS
		}
	}

	nextRun := time.Now().Add(h.nextInterval(ctx, payload))
	if err := h.repo.UpdateCursorSuccess(ctx, payload.OrgID, payload.WalletID, newCursorTS, nextRun); err != nil {
		h.recordFailure(ctx, payload)
		return &ingesterr.DatabaseTransientError{Err: fmt.Errorf("update cursor: %w", err)}
	}

	if len(days) > 0 {
		if _, err := h.jobs.EnqueueRollupWalletDay(ctx, payload.OrgID, payload.WalletID, days); err != nil {
			h.recordFailure(ctx, payload)
			return &ingesterr.DatabaseTransientError{Err: fmt.Errorf("enqueue rollup_wallet_day: %w", err)}
		}
	}
	return nil
}

// nextInterval computes the steady-state re-fetch cadence for payload's
// wallet from its current activity class, mirroring the classification the
// scheduler itself uses. Falls back to the cold cadence if the lookup
// fails, the conservative (slowest) choice.
func (h *Handler) nextInterval(ctx context.Context, payload models.IngestWalletPayload) time.Duration {
	lastTrade, err := h.repo.LastTradeTS(ctx, payload.OrgID, payload.WalletID)
	if err != nil {
		log.Printf("[fetcher] last trade lookup failed for wallet %d: %v", payload.WalletID, err)
		return models.ClassCold.BaseInterval()
	}
	class := models.ClassifyWallet(lastTrade, time.Now().UTC())
	return class.BaseInterval()
}

// recordFailure updates the cursor's failure bookkeeping without advancing
// cursor_ts, independent of whatever backoff the job store itself applies
// to the job row, so error_count and next_run_at reflect reality even
// before the queue's retry decision.
func (h *Handler) recordFailure(ctx context.Context, payload models.IngestWalletPayload) {
	cursor, err := h.repo.GetCursor(ctx, payload.OrgID, payload.WalletID)
	if err != nil {
		log.Printf("[fetcher] read cursor for failure bookkeeping failed: %v", err)
		return
	}
	backoff := backoffFor(cursor.ErrorCount + 1)
	if err := h.repo.UpdateCursorFailure(ctx, payload.OrgID, payload.WalletID, time.Now().Add(backoff)); err != nil {
		log.Printf("[fetcher] update cursor failure bookkeeping failed: %v", err)
	}
}

// backoffFor is the failing wallet's cursor backoff, capped at one hour:
// cold base * 2^min(errorCount,6). Backoff dominates when failing, so the
// cold base applies regardless of activity class.
func backoffFor(errorCount int) time.Duration {
	shift := errorCount
	if shift > 6 {
		shift = 6
	}
	backoff := models.ClassCold.BaseInterval() * time.Duration(1<<uint(shift))
	if backoff > time.Hour {
		backoff = time.Hour
	}
	return backoff
}

// classifyInsertErr maps a pgx insert failure to the ingesterr taxonomy
// via its SQLSTATE. "no partition of relation" is Postgres's check_violation
// message for a range-partitioned table with no matching partition; any
// other check_violation is a genuine constraint violation.
func classifyInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23514": // check_violation
			if strings.Contains(pgErr.Message, "no partition of relation") {
				return &ingesterr.PartitionMissingError{Err: err}
			}
			return &ingesterr.ConstraintViolationError{Err: err}
		case "23503": // foreign_key_violation
			return &ingesterr.ConstraintViolationError{Err: err}
		}
	}
	return &ingesterr.DatabaseTransientError{Err: err}
}
