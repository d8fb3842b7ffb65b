// Package rollup implements the two chained aggregation handlers:
// rollup_wallet_day recomputes per-wallet daily metrics from raw fills,
// then chains into rollup_global_day, which recomputes per-org daily
// metrics from the wallet-day table.
package rollup

import (
	"context"
	"fmt"
	"time"

	"hlfeeder/internal/ingesterr"
	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/models"
	"hlfeeder/internal/repository"
)

const dayLayout = "2006-01-02"

// WalletDayHandler runs rollup_wallet_day.
type WalletDayHandler struct {
	repo *repository.Repository
	jobs *jobstore.Store
}

func NewWalletDayHandler(repo *repository.Repository, jobs *jobstore.Store) *WalletDayHandler {
	return &WalletDayHandler{repo: repo, jobs: jobs}
}

func (h *WalletDayHandler) Name() models.JobType { return models.JobRollupWalletDay }

func (h *WalletDayHandler) Handle(ctx context.Context, job models.Job) error {
	payload, err := jobstore.DecodeRollupWalletDay(job)
	if err != nil {
		return &ingesterr.ConstraintViolationError{Err: fmt.Errorf("decode rollup_wallet_day payload: %w", err)}
	}

	for _, dayStr := range payload.Days {
		day, err := time.Parse(dayLayout, dayStr)
		if err != nil {
			return &ingesterr.ConstraintViolationError{Err: fmt.Errorf("parse day %q: %w", dayStr, err)}
		}
		if _, err := h.repo.UpsertWalletDay(ctx, payload.OrgID, payload.WalletID, day); err != nil {
			return &ingesterr.DatabaseTransientError{Err: err}
		}
	}

	if len(payload.Days) > 0 {
		if _, err := h.jobs.EnqueueRollupGlobalDay(ctx, payload.OrgID, payload.Days); err != nil {
			return &ingesterr.DatabaseTransientError{Err: fmt.Errorf("enqueue rollup_global_day: %w", err)}
		}
	}
	return nil
}

// GlobalDayHandler runs rollup_global_day.
type GlobalDayHandler struct {
	repo *repository.Repository
}

func NewGlobalDayHandler(repo *repository.Repository) *GlobalDayHandler {
	return &GlobalDayHandler{repo: repo}
}

func (h *GlobalDayHandler) Name() models.JobType { return models.JobRollupGlobalDay }

func (h *GlobalDayHandler) Handle(ctx context.Context, job models.Job) error {
	payload, err := jobstore.DecodeRollupGlobalDay(job)
	if err != nil {
		return &ingesterr.ConstraintViolationError{Err: fmt.Errorf("decode rollup_global_day payload: %w", err)}
	}

	for _, dayStr := range payload.Days {
		day, err := time.Parse(dayLayout, dayStr)
		if err != nil {
			return &ingesterr.ConstraintViolationError{Err: fmt.Errorf("parse day %q: %w", dayStr, err)}
		}
		if err := h.repo.UpsertGlobalDay(ctx, payload.OrgID, day); err != nil {
			return &ingesterr.DatabaseTransientError{Err: err}
		}
	}
	return nil
}
