// Package scheduler implements the periodic tick that classifies wallets
// by recent activity and enqueues ingest_wallet jobs within the
// governor's available capacity.
package scheduler

import (
	"context"
	"log"
	"sort"
	"time"

	"hlfeeder/internal/governor"
	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/models"
	"hlfeeder/internal/repository"

	"github.com/google/uuid"
)

const defaultMaxJobsPerRun = 50

// Scheduler ticks for a single org; multi-org deployments run one
// scheduler per org.
type Scheduler struct {
	repo          *repository.Repository
	jobs          *jobstore.Store
	gov           governor.Governor
	orgID         uuid.UUID
	maxJobsPerRun int
}

func New(repo *repository.Repository, jobs *jobstore.Store, gov governor.Governor, orgID uuid.UUID, maxJobsPerRun int) *Scheduler {
	if maxJobsPerRun <= 0 {
		maxJobsPerRun = defaultMaxJobsPerRun
	}
	return &Scheduler{repo: repo, jobs: jobs, gov: gov, orgID: orgID, maxJobsPerRun: maxJobsPerRun}
}

// Run ticks every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Printf("[scheduler] tick failed: %v", err)
			}
		}
	}
}

type candidate struct {
	wallet models.Wallet
	cursor models.IngestCursor
	class  models.WalletClass
}

// Tick runs one scheduling pass: classify, select, admission control,
// dedup, enqueue.
func (s *Scheduler) Tick(ctx context.Context) error {
	capacity, err := s.gov.AvailableRequests(ctx, governor.DefaultCost)
	if err != nil {
		return err
	}
	if capacity == 0 {
		log.Printf("[scheduler] skipping tick: no governor capacity")
		return nil
	}

	wallets, cursors, err := s.repo.ActiveWallets(ctx, s.orgID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	var candidates []candidate
	for _, w := range wallets {
		cur, ok := cursors[w.WalletID]
		if !ok || cur.NextRunAt.After(now) {
			continue
		}
		lastTrade, err := s.repo.LastTradeTS(ctx, s.orgID, w.WalletID)
		if err != nil {
			log.Printf("[scheduler] last trade lookup failed for wallet %d: %v", w.WalletID, err)
			continue
		}
		candidates = append(candidates, candidate{wallet: w, cursor: cur, class: models.ClassifyWallet(lastTrade, now)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := classRank(candidates[i].class), classRank(candidates[j].class)
		if ci != cj {
			return ci < cj
		}
		return candidates[i].cursor.NextRunAt.Before(candidates[j].cursor.NextRunAt)
	})
	if len(candidates) > s.maxJobsPerRun {
		candidates = candidates[:s.maxJobsPerRun]
	}

	scheduled, skipped := 0, 0
	for _, c := range candidates {
		if scheduled >= capacity {
			skipped += len(candidates) - scheduled - skipped
			break
		}
		pending, err := s.jobs.HasPendingIngestJob(ctx, s.orgID, c.wallet.WalletID)
		if err != nil {
			log.Printf("[scheduler] pending-job check failed for wallet %d: %v", c.wallet.WalletID, err)
			skipped++
			continue
		}
		if pending {
			skipped++
			continue
		}
		if _, err := s.jobs.EnqueueIngestWallet(ctx, s.orgID, c.wallet.WalletID, c.wallet.Address); err != nil {
			log.Printf("[scheduler] enqueue failed for wallet %d: %v", c.wallet.WalletID, err)
			skipped++
			continue
		}
		scheduled++
	}

	log.Printf("[scheduler] tick complete: scheduled=%d skipped=%d", scheduled, skipped)
	return nil
}

func classRank(c models.WalletClass) int {
	switch c {
	case models.ClassHot:
		return 0
	case models.ClassWarm:
		return 1
	default:
		return 2
	}
}
