// Package models holds the persistence-layer entities shared across the
// ingestion core: wallets, raw fills, cursors, jobs, and the derived
// rollup tables.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is a dense-integer-identified address tracked by the system.
// Addresses are stored lowercase; case is never significant.
type Wallet struct {
	WalletID int64  `json:"wallet_id"`
	Address  string `json:"address"`
	IsActive bool   `json:"is_active"`
	Label    string `json:"label,omitempty"`
}

// OrgWallet links a Wallet into one org's scope.
type OrgWallet struct {
	OrgID     uuid.UUID `json:"org_id"`
	WalletID  int64     `json:"wallet_id"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Side is the upstream's ask/bid marker. The business interpretation
// across spot vs perp is undocumented upstream, so no trade direction is
// ever derived from it.
type Side string

const (
	SideAsk Side = "A"
	SideBid Side = "B"
)

// Fill is a single append-only executed trade. Never updated or deleted
// once inserted; uniqueness is (OrgID, WalletID, FillID, TS).
type Fill struct {
	OrgID    uuid.UUID       `json:"org_id"`
	WalletID int64           `json:"wallet_id"`
	FillID   string          `json:"fill_id"`
	TS       time.Time       `json:"ts"`
	Coin     string          `json:"coin"`
	Side     Side            `json:"side"`
	Px       decimal.Decimal `json:"px"`
	Sz       decimal.Decimal `json:"sz"`
	IsSpot   bool            `json:"is_spot"`
	IsPerp   bool            `json:"is_perp"`
}

// Notional returns px*sz, the volume contribution of this fill.
func (f Fill) Notional() decimal.Decimal {
	return f.Px.Mul(f.Sz)
}

// CursorStatus is the health of the most recent ingest attempt.
type CursorStatus string

const (
	CursorOK    CursorStatus = "ok"
	CursorError CursorStatus = "error"
)

// IngestCursor is the per-wallet high-water mark driving incremental fetch.
type IngestCursor struct {
	OrgID         uuid.UUID    `json:"org_id"`
	WalletID      int64        `json:"wallet_id"`
	CursorTS      time.Time    `json:"cursor_ts"`
	LastSuccessAt *time.Time   `json:"last_success_at,omitempty"`
	Status        CursorStatus `json:"status"`
	ErrorCount    int          `json:"error_count"`
	NextRunAt     time.Time    `json:"next_run_at"`
}

// JobType discriminates the three job kinds the queue carries.
type JobType string

const (
	JobIngestWallet    JobType = "ingest_wallet"
	JobRollupWalletDay JobType = "rollup_wallet_day"
	JobRollupGlobalDay JobType = "rollup_global_day"
)

// JobStatus is the lifecycle state of a queued unit of work.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// IngestWalletPayload is the ingest_wallet job body.
type IngestWalletPayload struct {
	OrgID    uuid.UUID `json:"org_id"`
	WalletID int64     `json:"wallet_id"`
	Address  string    `json:"address"`
}

// RollupWalletDayPayload is the rollup_wallet_day job body.
type RollupWalletDayPayload struct {
	OrgID    uuid.UUID `json:"org_id"`
	WalletID int64     `json:"wallet_id"`
	Days     []string  `json:"days"` // YYYY-MM-DD
}

// RollupGlobalDayPayload is the rollup_global_day job body.
type RollupGlobalDayPayload struct {
	OrgID uuid.UUID `json:"org_id"`
	Days  []string  `json:"days"`
}

// Job is a durable queue row. Payload is opaque to the store; handlers
// decode it strongly based on Type.
type Job struct {
	ID            int64      `json:"id"`
	OrgID         uuid.UUID  `json:"org_id"`
	Type          JobType    `json:"type"`
	Payload       []byte     `json:"payload"`
	RunAt         time.Time  `json:"run_at"`
	Status        JobStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	LockedBy      string     `json:"locked_by,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// WalletDayMetric is the per-wallet daily rollup, fully recomputed from
// Fills for that day on every run.
type WalletDayMetric struct {
	OrgID         uuid.UUID       `json:"org_id"`
	WalletID      int64           `json:"wallet_id"`
	Day           time.Time       `json:"day"`
	SpotVolumeUSD decimal.Decimal `json:"spot_volume_usd"`
	PerpVolumeUSD decimal.Decimal `json:"perp_volume_usd"`
	TradesCount   int64           `json:"trades_count"`
	LastTradeTS   time.Time       `json:"last_trade_ts"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// GlobalDayMetric is the per-org daily rollup derived from WalletDayMetrics.
type GlobalDayMetric struct {
	OrgID                uuid.UUID       `json:"org_id"`
	Day                  time.Time       `json:"day"`
	DAU                  int64           `json:"dau"`
	SpotVolumeUSD        decimal.Decimal `json:"spot_volume_usd"`
	PerpVolumeUSD        decimal.Decimal `json:"perp_volume_usd"`
	AvgSpotVolumePerUser decimal.Decimal `json:"avg_spot_volume_per_user"`
	AvgPerpVolumePerUser decimal.Decimal `json:"avg_perp_volume_per_user"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// RateLimitStateKey is the fixed key of the single shared Governor row.
const RateLimitStateKey = "upstream"

// RateLimitState is the process-wide shared token bucket, persisted in a
// single row so every worker coordinates against the same budget.
type RateLimitState struct {
	Key                string          `json:"key"`
	Tokens             decimal.Decimal `json:"tokens"`
	LastRefill         time.Time       `json:"last_refill"`
	RequestsThisMinute int             `json:"requests_this_minute"`
	WeightThisMinute   int             `json:"weight_this_minute"`
	MinuteStart        time.Time       `json:"minute_start"`
	IsRateLimited      bool            `json:"is_rate_limited"`
	RateLimitedUntil   *time.Time      `json:"rate_limited_until,omitempty"`
}

// WalletClass is the activity tier driving ingestion cadence.
type WalletClass string

const (
	ClassHot  WalletClass = "hot"
	ClassWarm WalletClass = "warm"
	ClassCold WalletClass = "cold"
)

// ClassifyWallet buckets a wallet by recency of last trade.
func ClassifyWallet(lastTradeTS *time.Time, now time.Time) WalletClass {
	if lastTradeTS == nil {
		return ClassCold
	}
	age := now.Sub(*lastTradeTS)
	switch {
	case age <= 24*time.Hour:
		return ClassHot
	case age <= 168*time.Hour:
		return ClassWarm
	default:
		return ClassCold
	}
}

// BaseInterval returns the steady-state re-fetch interval for a class.
func (c WalletClass) BaseInterval() time.Duration {
	switch c {
	case ClassHot:
		return 60 * time.Second
	case ClassWarm:
		return 900 * time.Second
	default:
		return 3600 * time.Second
	}
}
