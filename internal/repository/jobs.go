package repository

import (
	"context"
	"fmt"
	"time"

	"hlfeeder/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnqueueJob inserts one queued row. runAt defaults to now when zero.
func (r *Repository) EnqueueJob(ctx context.Context, orgID uuid.UUID, jobType models.JobType, payload []byte, runAt time.Time, maxAttempts int) (int64, error) {
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO jobs (org_id, type, payload, run_at, status, attempts, max_attempts)
		VALUES ($1, $2, $3, $4, 'queued', 0, $5)
		RETURNING id`,
		orgID, jobType, payload, runAt, maxAttempts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

// ClaimJobs atomically selects up to limit claimable rows — queued, or
// running with an expired lease — and transitions them to running in a
// single statement, with no intermediate in-process state. SKIP LOCKED
// keeps concurrent claimers from blocking on each other's candidate rows;
// the attempts guard keeps a reclaimed job from ever exceeding its
// max_attempts CHECK.
func (r *Repository) ClaimJobs(ctx context.Context, orgID uuid.UUID, workerID string, limit int, lease time.Duration) ([]models.Job, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE jobs
		SET status = 'running',
		    locked_by = $2,
		    locked_at = now(),
		    lock_expires_at = now() + $3::interval,
		    attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM jobs
			WHERE org_id = $1
			  AND run_at <= now()
			  AND (status = 'queued' OR (status = 'running' AND lock_expires_at < now()))
			  AND attempts < max_attempts
			ORDER BY run_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, org_id, type, payload, run_at, status, attempts, max_attempts,
		          locked_by, locked_at, lock_expires_at, COALESCE(last_error, '')`,
		orgID, workerID, fmt.Sprintf("%d seconds", int(lease.Seconds())), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.OrgID, &j.Type, &j.Payload, &j.RunAt, &j.Status,
			&j.Attempts, &j.MaxAttempts, &j.LockedBy, &j.LockedAt, &j.LockExpiresAt, &j.LastError); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CompleteJob marks a job succeeded and clears its lock fields.
func (r *Repository) CompleteJob(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'succeeded', locked_by = NULL, locked_at = NULL, lock_expires_at = NULL
		WHERE id = $1`,
		id,
	)
	return err
}

// FailJob records a retryable failure: terminal once attempts >=
// max_attempts (run_at left unchanged), otherwise re-queued with
// exponential backoff run_at = now + 2^attempts seconds.
func (r *Repository) FailJob(ctx context.Context, id int64, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'queued' END,
		    run_at = CASE WHEN attempts >= max_attempts THEN run_at
		                  ELSE now() + (power(2, attempts) * INTERVAL '1 second')
		             END,
		    last_error = $2,
		    locked_by = NULL, locked_at = NULL, lock_expires_at = NULL
		WHERE id = $1`,
		id, errMsg,
	)
	return err
}

// FailJobFast marks a job failed immediately regardless of attempts vs.
// max_attempts, for non-retryable errors where operator intervention is
// required rather than backoff.
func (r *Repository) FailJobFast(ctx context.Context, id int64, errMsg string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'failed', last_error = $2,
		    locked_by = NULL, locked_at = NULL, lock_expires_at = NULL
		WHERE id = $1`,
		id, errMsg,
	)
	return err
}

// CancelWalletJobs marks queued ingest_wallet jobs referencing walletID
// as canceled, used on wallet unregistration.
func (r *Repository) CancelWalletJobs(ctx context.Context, orgID uuid.UUID, walletID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = 'canceled'
		WHERE org_id = $1 AND type = 'ingest_wallet' AND status = 'queued'
		  AND (payload->>'wallet_id')::bigint = $2`,
		orgID, walletID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecoverStuck transitions running jobs with expired leases back to
// queued — or straight to failed when their attempts are already
// exhausted, since ClaimJobs will never pick those up again. A one-shot
// belt-and-braces operation; normal operation relies on ClaimJobs's own
// expiry predicate.
func (r *Repository) RecoverStuck(ctx context.Context, orgID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'queued' END,
		    locked_by = NULL, locked_at = NULL, lock_expires_at = NULL
		WHERE org_id = $1 AND status = 'running' AND lock_expires_at < now()`,
		orgID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// HasPendingIngestJob reports whether walletID already has a queued or
// running ingest_wallet job, for the Scheduler's admission-control dedup.
func (r *Repository) HasPendingIngestJob(ctx context.Context, orgID uuid.UUID, walletID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE org_id = $1 AND type = 'ingest_wallet' AND status IN ('queued', 'running')
			  AND (payload->>'wallet_id')::bigint = $2
		)`,
		orgID, walletID,
	).Scan(&exists)
	return exists, err
}

// JobStatusCounts is the monitor operation's payload: counts by status,
// plus how many running jobs have an expired lease.
type JobStatusCounts struct {
	ByStatus       map[models.JobStatus]int64 `json:"by_status"`
	ExpiredRunning int64                      `json:"expired_running"`
}

// Monitor assembles the admin "monitor" operational surface snapshot.
func (r *Repository) Monitor(ctx context.Context, orgID uuid.UUID) (JobStatusCounts, error) {
	counts := JobStatusCounts{ByStatus: make(map[models.JobStatus]int64)}

	rows, err := r.db.Query(ctx, `
		SELECT status, count(*) FROM jobs WHERE org_id = $1 GROUP BY status`, orgID)
	if err != nil {
		return counts, err
	}
	for rows.Next() {
		var status models.JobStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return counts, err
		}
		counts.ByStatus[status] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return counts, err
	}

	err = r.db.QueryRow(ctx, `
		SELECT count(*) FROM jobs
		WHERE org_id = $1 AND status = 'running' AND lock_expires_at < now()`,
		orgID,
	).Scan(&counts.ExpiredRunning)
	if err == pgx.ErrNoRows {
		return counts, nil
	}
	return counts, err
}
