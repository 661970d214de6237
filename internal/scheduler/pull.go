package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/budget"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
	"golang.org/x/time/rate"
)

// pullIdempotencyTTL bounds how long a pull_job_id reservation blocks a
// repeat schedule() call for the same bucket: the id itself is already
// bucketed by time, so this TTL only needs to outlive one bucket.
const pullIdempotencyTTL = 24 * time.Hour

// PullOrchestrator implements schedule() (C9): rate limit, then
// idempotency reservation, then atomic budget consume, then job emission
// — in that fixed order.
type PullOrchestrator struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	idem     *idempotencyStore
	budgets  *BudgetService
	metrics  *metrics.Registry
	rps      rate.Limit
	burst    int
}

// NewPullOrchestrator builds a PullOrchestrator. rps/burst bound the
// per-connector poll rate; a zero rps disables rate limiting.
func NewPullOrchestrator(budgets *BudgetService, rps float64, burst int, m *metrics.Registry) *PullOrchestrator {
	return &PullOrchestrator{
		limiters: make(map[string]*rate.Limiter),
		idem:     newIdempotencyStore(),
		budgets:  budgets,
		metrics:  m,
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (p *PullOrchestrator) limiterFor(connector string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[connector]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[connector] = l
	}
	return l
}

// PullJobID derives the deterministic id from (tenant, account, connector,
// depth, floor(now/bucket)) — scheduling the same cell twice in the same
// bucket is idempotent at the id level.
func PullJobID(tenant, accountID, connector string, depth budget.Depth, now time.Time, bucket time.Duration) string {
	slot := now.Unix() / int64(bucket.Seconds())
	input := fmt.Sprintf("%s|%s|%s|%s|%d", tenant, accountID, connector, depth, slot)
	sum := sha256.Sum256([]byte(input))
	return "pull_" + hex.EncodeToString(sum[:])[:24]
}

// Schedule runs the four-step discipline: rate limit check, idempotency
// reservation, atomic budget consume, and job emission.
func (p *PullOrchestrator) Schedule(_ context.Context, tenant, accountID, connector string, depth budget.Depth, cadence time.Duration, depthUnits budget.DepthUnits, now time.Time) (budget.ScheduleResult, error) {
	if p.rps > 0 && !p.limiterFor(connector).Allow() {
		p.observe(tenant, connector, budget.ReasonRateLimit)
		return budget.ScheduleResult{Scheduled: false, Reason: budget.ReasonRateLimit}, nil
	}

	jobID := PullJobID(tenant, accountID, connector, depth, now, cadence)
	if !p.idem.reserve(jobID, now, pullIdempotencyTTL) {
		p.observe(tenant, connector, budget.ReasonDuplicatePullJobID)
		return budget.ScheduleResult{Scheduled: false, Reason: budget.ReasonDuplicatePullJobID}, nil
	}

	date := now.UTC().Format("2006-01-02")
	ok, remaining := p.budgets.TryConsume(tenant, date, connector, depth)
	if !ok {
		p.observe(tenant, connector, budget.ReasonBudgetExceeded)
		return budget.ScheduleResult{Scheduled: false, Reason: budget.ReasonBudgetExceeded}, nil
	}

	units := depthUnits.Shallow
	if depth == budget.Deep {
		units = depthUnits.Deep
	}
	job := &budget.Job{
		PullJobID:       jobID,
		Tenant:          tenant,
		AccountID:       accountID,
		Connector:       connector,
		Depth:           depth,
		DepthUnits:      units,
		ScheduledAt:     now,
		CorrelationID:   jobID,
		BudgetRemaining: remaining,
	}
	p.observe(tenant, connector, budget.ReasonScheduled)
	return budget.ScheduleResult{Scheduled: true, Reason: budget.ReasonScheduled, Job: job}, nil
}

func (p *PullOrchestrator) observe(tenant, connector string, reason budget.ScheduleReason) {
	if p.metrics != nil {
		p.metrics.PullJobsScheduled.WithLabelValues(tenant, connector, string(reason)).Inc()
	}
}
