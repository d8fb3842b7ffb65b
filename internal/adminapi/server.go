// Package adminapi exposes the operator surface: monitor, recover, and a
// live monitor stream, guarded by a bearer-JWT admin middleware.
package adminapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"hlfeeder/internal/jobstore"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Server hosts the admin-only HTTP surface. Both operations are
// one-shot utilities; normal operation is self-healing.
type Server struct {
	jobs  *jobstore.Store
	orgID uuid.UUID
	auth  *AuthMiddleware
	hub   *monitorHub
}

func New(jobs *jobstore.Store, orgID uuid.UUID, jwtSecret string) *Server {
	s := &Server{jobs: jobs, orgID: orgID, auth: NewAuthMiddleware(jwtSecret), hub: newMonitorHub()}
	go s.hub.run()
	return s
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(s.auth.Middleware)
	admin.HandleFunc("/monitor", s.handleMonitor).Methods(http.MethodGet)
	admin.HandleFunc("/recover", s.handleRecover).Methods(http.MethodPost)
	admin.HandleFunc("/monitor/stream", s.handleMonitorStream).Methods(http.MethodGet)
	return r
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.Monitor(r.Context(), s.orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(counts)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	n, err := s.jobs.RecoverStuck(r.Context(), s.orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("[adminapi] operator %s recovered %d stuck jobs", OperatorFromContext(r.Context()), n)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"recovered": n})
}

// PublishMonitorSnapshots pushes a fresh monitor snapshot to every
// connected dashboard every interval, until ctx is canceled.
func (s *Server) PublishMonitorSnapshots(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := s.jobs.Monitor(ctx, s.orgID)
			if err != nil {
				log.Printf("[adminapi] monitor snapshot failed: %v", err)
				continue
			}
			data, _ := json.Marshal(counts)
			s.hub.broadcast <- data
		}
	}
}
