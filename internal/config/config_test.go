package config

import (
	"os"
	"testing"
)

func TestLoadEnvOverridesDefaults(t *testing.T) {
	os.Setenv("DB_URL", "postgres://test/db")
	os.Setenv("ORG_ID", "11111111-1111-1111-1111-111111111111")
	os.Setenv("MAX_JOBS_PER_RUN", "7")
	defer os.Unsetenv("DB_URL")
	defer os.Unsetenv("ORG_ID")
	defer os.Unsetenv("MAX_JOBS_PER_RUN")

	cfg := LoadEnv(Default())

	if cfg.DatabaseURL != "postgres://test/db" {
		t.Fatalf("DatabaseURL=%q want postgres://test/db", cfg.DatabaseURL)
	}
	if cfg.OrgID != "11111111-1111-1111-1111-111111111111" {
		t.Fatalf("OrgID=%q", cfg.OrgID)
	}
	if cfg.MaxJobsPerRun != 7 {
		t.Fatalf("MaxJobsPerRun=%d want 7", cfg.MaxJobsPerRun)
	}
}

func TestLoadEnvLeavesUnsetFieldsAtDefault(t *testing.T) {
	os.Unsetenv("SCHEDULER_TICK_SECONDS")
	os.Unsetenv("WORKER_POLL_SECONDS")
	cfg := LoadEnv(Default())
	if cfg.SchedulerTickSeconds != 5 {
		t.Fatalf("SchedulerTickSeconds=%d want 5", cfg.SchedulerTickSeconds)
	}
	if cfg.WorkerPollSeconds != 5 {
		t.Fatalf("WorkerPollSeconds=%d want 5", cfg.WorkerPollSeconds)
	}
}

func TestLoadYAMLMissingFileIsNotError(t *testing.T) {
	cfg, err := LoadYAML(Default(), "/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxJobsPerRun != 50 {
		t.Fatalf("MaxJobsPerRun=%d want 50", cfg.MaxJobsPerRun)
	}
}

func TestSchedulerTickAndJobLease(t *testing.T) {
	cfg := Default()
	if got := cfg.SchedulerTick().Seconds(); got != 5 {
		t.Fatalf("SchedulerTick()=%v want 5s", got)
	}
	if got := cfg.JobLease().Seconds(); got != 300 {
		t.Fatalf("JobLease()=%v want 300s", got)
	}
}
