// Command admin serves the operator-facing monitor/recover surface:
// GET /admin/monitor, POST /admin/recover, and a live
// GET /admin/monitor/stream websocket.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hlfeeder/internal/adminapi"
	"hlfeeder/internal/config"
	"hlfeeder/internal/jobstore"
	"hlfeeder/internal/repository"

	"github.com/google/uuid"
)

func main() {
	cfg := config.LoadEnv(config.Default())

	orgID, err := uuid.Parse(cfg.OrgID)
	if err != nil {
		log.Fatalf("invalid ORG_ID: %v", err)
	}
	if cfg.AdminAuthToken == "" {
		log.Fatalf("ADMIN_AUTH_TOKEN must be set")
	}

	repo, err := repository.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer repo.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	jobs := jobstore.New(repo, cfg.JobMaxAttempts)
	srv := adminapi.New(jobs, orgID, cfg.AdminAuthToken)
	go srv.PublishMonitorSnapshots(ctx, 5*time.Second)

	httpServer := &http.Server{Addr: ":" + cfg.AdminPort, Handler: srv.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[admin] shutdown error: %v", err)
		}
	}()

	log.Printf("[admin] listening on :%s", cfg.AdminPort)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[admin] server error: %v", err)
	}
	log.Printf("[admin] stopped")
}
