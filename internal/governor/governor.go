// Package governor implements the shared upstream rate limiter: a
// Postgres row-locked token bucket coordinating every worker process, plus
// a process-local fallback for single-worker deployments.
package governor

import (
	"context"
	"log"
	"math"
	"time"

	"hlfeeder/internal/models"
	"hlfeeder/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Defaults calibrated to the upstream's 1200-weight-per-minute ceiling
// with roughly 33% headroom.
const (
	DefaultMaxTokens  = 100
	DefaultRefillRate = 0.67 // tokens/sec
	DefaultCost       = 20
	RateLimitBackoff  = 10 * time.Second
	minuteWindow      = 60 * time.Second
)

// Governor is the interface the Fetcher and Scheduler depend on. Both
// DistributedGovernor and LocalGovernor satisfy it.
type Governor interface {
	Acquire(ctx context.Context, cost int) (waitedMillis int64, err error)
	TryAcquire(ctx context.Context, cost int) (bool, error)
	ReportRateLimited(ctx context.Context) error
	AdjustForResponse(ctx context.Context, itemsReturned int) error
	AvailableRequests(ctx context.Context, cost int) (int, error)
}

// DistributedGovernor implements Governor against the single shared
// rate_limit_state row, so every worker process draws from the same
// bucket. Constructed once per process and never reinitialized.
type DistributedGovernor struct {
	repo       *repository.Repository
	maxTokens  decimal.Decimal
	refillRate decimal.Decimal
	cost       int
}

// Options carries the operator-tunable token-bucket parameters (the
// GOVERNOR_MAX_TOKENS/GOVERNOR_REFILL_RATE/GOVERNOR_DEFAULT_COST config
// knobs). Zero fields fall back to the package defaults.
type Options struct {
	MaxTokens   float64
	RefillRate  float64
	DefaultCost int
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.RefillRate <= 0 {
		o.RefillRate = DefaultRefillRate
	}
	if o.DefaultCost <= 0 {
		o.DefaultCost = DefaultCost
	}
	return o
}

func NewDistributed(ctx context.Context, repo *repository.Repository, opts Options) (*DistributedGovernor, error) {
	opts = opts.withDefaults()
	maxTokens := decimal.NewFromFloat(opts.MaxTokens)
	if err := repo.EnsureRateLimitRow(ctx, maxTokens); err != nil {
		return nil, err
	}
	return &DistributedGovernor{
		repo:       repo,
		maxTokens:  maxTokens,
		refillRate: decimal.NewFromFloat(opts.RefillRate),
		cost:       opts.DefaultCost,
	}, nil
}

// refill grows the bucket by elapsed time, caps it at maxTokens, and
// resets the per-minute counters at the minute boundary. Pure; callers
// persist the result themselves.
func (g *DistributedGovernor) refill(s models.RateLimitState, now time.Time) models.RateLimitState {
	elapsed := now.Sub(s.LastRefill).Seconds()
	if elapsed > 0 {
		grown := s.Tokens.Add(g.refillRate.Mul(decimal.NewFromFloat(elapsed)))
		if grown.GreaterThan(g.maxTokens) {
			grown = g.maxTokens
		}
		s.Tokens = grown
	}
	s.LastRefill = now

	if now.Sub(s.MinuteStart) >= minuteWindow {
		s.RequestsThisMinute = 0
		s.WeightThisMinute = 0
		s.MinuteStart = now
	}
	return s
}

// Acquire blocks until cost tokens are available, debiting them
// atomically. The commit releases the row lock before any sleep, so no
// worker ever holds the lock while waiting.
func (g *DistributedGovernor) Acquire(ctx context.Context, cost int) (int64, error) {
	if cost <= 0 {
		cost = g.cost
	}
	start := time.Now()

	for {
		var waitFor time.Duration
		_, err := g.repo.WithRateLimitLock(ctx, func(s models.RateLimitState) (models.RateLimitState, error) {
			now := time.Now().UTC()
			s = g.refill(s, now)

			if s.IsRateLimited && s.RateLimitedUntil != nil && s.RateLimitedUntil.After(now) {
				waitFor = s.RateLimitedUntil.Sub(now)
				return s, nil
			}
			if s.IsRateLimited {
				s.IsRateLimited = false
				s.RateLimitedUntil = nil
			}

			costDec := decimal.NewFromInt(int64(cost))
			if s.Tokens.GreaterThanOrEqual(costDec) {
				s.Tokens = s.Tokens.Sub(costDec)
				s.RequestsThisMinute++
				s.WeightThisMinute += cost
				waitFor = 0
				return s, nil
			}

			deficit := costDec.Sub(s.Tokens)
			secs := deficit.Div(g.refillRate).Ceil()
			waitFor = time.Duration(secs.IntPart()) * time.Second
			return s, nil
		})
		if err != nil {
			return 0, err
		}
		if waitFor <= 0 {
			return time.Since(start).Milliseconds(), nil
		}

		select {
		case <-time.After(waitFor):
		case <-ctx.Done():
			return time.Since(start).Milliseconds(), ctx.Err()
		}
	}
}

// TryAcquire is never supported in distributed mode.
func (g *DistributedGovernor) TryAcquire(ctx context.Context, cost int) (bool, error) {
	return false, nil
}

// ReportRateLimited sets is_rate_limited for the backoff window and
// drains the bucket to zero.
func (g *DistributedGovernor) ReportRateLimited(ctx context.Context) error {
	_, err := g.repo.WithRateLimitLock(ctx, func(s models.RateLimitState) (models.RateLimitState, error) {
		now := time.Now().UTC()
		until := now.Add(RateLimitBackoff)
		s.IsRateLimited = true
		s.RateLimitedUntil = &until
		s.Tokens = decimal.Zero
		s.LastRefill = now
		return s, nil
	})
	if err != nil {
		log.Printf("[governor] report rate limited failed: %v", err)
	}
	return err
}

// AdjustForResponse applies the upstream's response-weighted pricing
// post-hoc: debits max(0, (20 + floor(items/20)) - defaultCost).
func (g *DistributedGovernor) AdjustForResponse(ctx context.Context, itemsReturned int) error {
	actualCost := 20 + itemsReturned/20
	delta := actualCost - g.cost
	if delta <= 0 {
		return nil
	}
	_, err := g.repo.WithRateLimitLock(ctx, func(s models.RateLimitState) (models.RateLimitState, error) {
		now := time.Now().UTC()
		s = g.refill(s, now)
		deltaDec := decimal.NewFromInt(int64(delta))
		s.Tokens = s.Tokens.Sub(deltaDec)
		if s.Tokens.IsNegative() {
			s.Tokens = decimal.Zero
		}
		s.WeightThisMinute += delta
		return s, nil
	})
	return err
}

// AvailableRequests estimates how many cost-sized Acquire calls would
// succeed without blocking, right now.
func (g *DistributedGovernor) AvailableRequests(ctx context.Context, cost int) (int, error) {
	if cost <= 0 {
		cost = g.cost
	}
	var n int
	_, err := g.repo.WithRateLimitLock(ctx, func(s models.RateLimitState) (models.RateLimitState, error) {
		now := time.Now().UTC()
		s = g.refill(s, now)
		if s.IsRateLimited && s.RateLimitedUntil != nil && s.RateLimitedUntil.After(now) {
			n = 0
			return s, nil
		}
		n = int(math.Floor(s.Tokens.Div(decimal.NewFromInt(int64(cost))).InexactFloat64()))
		if n < 0 {
			n = 0
		}
		return s, nil
	})
	return n, err
}

// LocalGovernor is the process-local fallback for single-worker
// deployments, backed directly by golang.org/x/time/rate. Not safe when
// multiple worker processes share the upstream budget.
type LocalGovernor struct {
	limiter   *rate.Limiter
	cost      int
	maxTokens int
}

func NewLocal(opts Options) *LocalGovernor {
	opts = opts.withDefaults()
	return &LocalGovernor{
		limiter:   rate.NewLimiter(rate.Limit(opts.RefillRate), int(opts.MaxTokens)),
		cost:      opts.DefaultCost,
		maxTokens: int(opts.MaxTokens),
	}
}

func (g *LocalGovernor) Acquire(ctx context.Context, cost int) (int64, error) {
	if cost <= 0 {
		cost = g.cost
	}
	start := time.Now()
	if err := g.limiter.WaitN(ctx, cost); err != nil {
		return time.Since(start).Milliseconds(), err
	}
	return time.Since(start).Milliseconds(), nil
}

func (g *LocalGovernor) TryAcquire(ctx context.Context, cost int) (bool, error) {
	if cost <= 0 {
		cost = g.cost
	}
	return g.limiter.AllowN(time.Now(), cost), nil
}

// ReportRateLimited reserves the entire burst for RateLimitBackoff,
// approximating the distributed bucket's drain-to-zero.
func (g *LocalGovernor) ReportRateLimited(ctx context.Context) error {
	r := g.limiter.ReserveN(time.Now(), g.maxTokens)
	if r.OK() {
		time.AfterFunc(RateLimitBackoff, func() { r.Cancel() })
	}
	return nil
}

// AdjustForResponse is a best-effort local approximation: it reserves the
// extra weighted cost up front rather than rewriting already-spent tokens,
// since rate.Limiter has no debit-after-the-fact primitive.
func (g *LocalGovernor) AdjustForResponse(ctx context.Context, itemsReturned int) error {
	actualCost := 20 + itemsReturned/20
	delta := actualCost - g.cost
	if delta <= 0 {
		return nil
	}
	g.limiter.ReserveN(time.Now(), delta)
	return nil
}

func (g *LocalGovernor) AvailableRequests(ctx context.Context, cost int) (int, error) {
	if cost <= 0 {
		cost = g.cost
	}
	tokens := int(g.limiter.TokensAt(time.Now()))
	if tokens < 0 {
		tokens = 0
	}
	return tokens / cost, nil
}
