// Command worker runs the claim loop against the durable job queue,
// dispatching ingest_wallet, rollup_wallet_day, and rollup_global_day jobs.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"hlfeeder/internal/config"
	"hlfeeder/internal/fetcher"
	"hlfeeder/internal/governor"
	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/repository"
	"hlfeeder/internal/rollup"
	"hlfeeder/internal/upstream"
	"hlfeeder/internal/worker"

	"github.com/google/uuid"
)

func main() {
	cfg := config.LoadEnv(config.Default())

	orgID, err := uuid.Parse(cfg.OrgID)
	if err != nil {
		log.Fatalf("invalid ORG_ID: %v", err)
	}

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer repo.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if n, err := repo.RecoverStuck(ctx, orgID); err != nil {
		log.Printf("[worker] startup recover failed: %v", err)
	} else if n > 0 {
		log.Printf("[worker] startup recover reclaimed %d stuck jobs", n)
	}

	var gov governor.Governor
	if cfg.UseDistributedGovernor {
		gov, err = governor.NewDistributed(ctx, repo, governor.Options{
			MaxTokens:   cfg.GovernorMaxTokens,
			RefillRate:  cfg.GovernorRefillRate,
			DefaultCost: cfg.GovernorDefaultCost,
		})
		if err != nil {
			log.Fatalf("failed to initialize governor: %v", err)
		}
	} else {
		gov = governor.NewLocal(governor.Options{
			MaxTokens:   cfg.GovernorMaxTokens,
			RefillRate:  cfg.GovernorRefillRate,
			DefaultCost: cfg.GovernorDefaultCost,
		})
	}

	jobs := jobstore.New(repo, cfg.JobMaxAttempts)
	up := upstream.New(cfg.UpstreamURL)

	w := worker.New(jobs, orgID, cfg.WorkerID, cfg.JobLease(), cfg.WorkerPoll(), 10)
	w.Register(fetcher.New(repo, jobs, gov, up))
	w.Register(rollup.NewWalletDayHandler(repo, jobs))
	w.Register(rollup.NewGlobalDayHandler(repo))

	log.Printf("[worker] %s starting for org %s", cfg.WorkerID, orgID)
	w.Start(ctx)
	log.Printf("[worker] %s stopped", cfg.WorkerID)
}
