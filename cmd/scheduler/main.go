// Command scheduler ticks periodically, classifying wallets and
// enqueueing ingest_wallet jobs within the Governor's available capacity.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"hlfeeder/internal/config"
	"hlfeeder/internal/governor"
	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/repository"
	"hlfeeder/internal/scheduler"

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
	s := scheduler.New(repo, jobs, gov, orgID, cfg.MaxJobsPerRun)

	log.Printf("[scheduler] starting for org %s, tick=%s", orgID, cfg.SchedulerTick())
	s.Run(ctx, cfg.SchedulerTick())
	log.Printf("[scheduler] stopped")
}
