// Package jobstore is the typed front door onto the durable job queue.
// The underlying repository treats the payload as an opaque blob; this
// package is where callers encode/decode the three payload kinds strongly
// instead of passing stringly-typed bags around.
package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hlfeeder/internal/ingesterr"
	"hlfeeder/internal/models"
	"hlfeeder/internal/repository"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 10

// Store is the durable FIFO-by-run_at queue per org.
type Store struct {
	repo        *repository.Repository
	maxAttempts int
}

func New(repo *repository.Repository, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Store{repo: repo, maxAttempts: maxAttempts}
}

// EnqueueIngestWallet enqueues an ingest_wallet job for walletID.
func (s *Store) EnqueueIngestWallet(ctx context.Context, orgID uuid.UUID, walletID int64, address string) (int64, error) {
	payload, err := json.Marshal(models.IngestWalletPayload{OrgID: orgID, WalletID: walletID, Address: address})
	if err != nil {
		return 0, err
	}
	return s.repo.EnqueueJob(ctx, orgID, models.JobIngestWallet, payload, time.Time{}, s.maxAttempts)
}

// EnqueueRollupWalletDay enqueues a rollup_wallet_day job for the given
// wallet and set of dates.
func (s *Store) EnqueueRollupWalletDay(ctx context.Context, orgID uuid.UUID, walletID int64, days []string) (int64, error) {
	if len(days) == 0 {
		return 0, fmt.Errorf("rollup_wallet_day requires at least one day")
	}
	payload, err := json.Marshal(models.RollupWalletDayPayload{OrgID: orgID, WalletID: walletID, Days: days})
	if err != nil {
		return 0, err
	}
	return s.repo.EnqueueJob(ctx, orgID, models.JobRollupWalletDay, payload, time.Time{}, s.maxAttempts)
}

// EnqueueRollupGlobalDay enqueues a rollup_global_day job for the given
// set of dates.
func (s *Store) EnqueueRollupGlobalDay(ctx context.Context, orgID uuid.UUID, days []string) (int64, error) {
	if len(days) == 0 {
		return 0, fmt.Errorf("rollup_global_day requires at least one day")
	}
	payload, err := json.Marshal(models.RollupGlobalDayPayload{OrgID: orgID, Days: days})
	if err != nil {
		return 0, err
	}
	return s.repo.EnqueueJob(ctx, orgID, models.JobRollupGlobalDay, payload, time.Time{}, s.maxAttempts)
}

// Claim pulls up to limit claimable jobs for workerID, leasing them for
// lease (default 300s).
func (s *Store) Claim(ctx context.Context, orgID uuid.UUID, workerID string, limit int, lease time.Duration) ([]models.Job, error) {
	if lease <= 0 {
		lease = 300 * time.Second
	}
	return s.repo.ClaimJobs(ctx, orgID, workerID, limit, lease)
}

func (s *Store) Complete(ctx context.Context, id int64) error {
	return s.repo.CompleteJob(ctx, id)
}

func (s *Store) Fail(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.FailJob(ctx, id, msg)
}

// FailFast terminates a job immediately, bypassing the backoff/retry
// schedule, for error kinds IsFatal reports as non-retryable.
func (s *Store) FailFast(ctx context.Context, id int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.repo.FailJobFast(ctx, id, msg)
}

// IsFatal reports whether err belongs to the taxonomy's non-retryable
// class, re-exported so callers can route Fail vs. FailFast without
// importing ingesterr directly.
func IsFatal(err error) bool {
	return ingesterr.IsFatal(err)
}

func (s *Store) CancelWalletJobs(ctx context.Context, orgID uuid.UUID, walletID int64) (int64, error) {
	return s.repo.CancelWalletJobs(ctx, orgID, walletID)
}

func (s *Store) RecoverStuck(ctx context.Context, orgID uuid.UUID) (int64, error) {
	return s.repo.RecoverStuck(ctx, orgID)
}

func (s *Store) HasPendingIngestJob(ctx context.Context, orgID uuid.UUID, walletID int64) (bool, error) {
	return s.repo.HasPendingIngestJob(ctx, orgID, walletID)
}

func (s *Store) Monitor(ctx context.Context, orgID uuid.UUID) (repository.JobStatusCounts, error) {
	return s.repo.Monitor(ctx, orgID)
}

// DecodeIngestWallet decodes a job's payload as an ingest_wallet body.
func DecodeIngestWallet(j models.Job) (models.IngestWalletPayload, error) {
	var p models.IngestWalletPayload
	err := json.Unmarshal(j.Payload, &p)
	return p, err
}

// DecodeRollupWalletDay decodes a job's payload as a rollup_wallet_day body.
func DecodeRollupWalletDay(j models.Job) (models.RollupWalletDayPayload, error) {
	var p models.RollupWalletDayPayload
	err := json.Unmarshal(j.Payload, &p)
	return p, err
}

// DecodeRollupGlobalDay decodes a job's payload as a rollup_global_day body.
func DecodeRollupGlobalDay(j models.Job) (models.RollupGlobalDayPayload, error) {
	var p models.RollupGlobalDayPayload
	err := json.Unmarshal(j.Payload, &p)
	return p, err
}
