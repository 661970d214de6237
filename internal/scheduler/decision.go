package scheduler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/budget"
	"github.com/lifecycleeng/account-engine/pkg/domain/decision"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// decisionIdempotencyTTL is the fixed 24h window a correlation id blocks a
// repeat RUN_DECISION dispatch.
const decisionIdempotencyTTL = 24 * time.Hour

// DecisionScheduler implements the RUN_DECISION cost gate (C10): rate
// limit, then correlation-id idempotency, then the same budget discipline
// as the pull orchestrator, applied to decision runs rather than connector
// polls. A deferred gate schedules a delayed re-queue via a one-shot cron
// entry instead of a bare timer, so the retry survives the same process
// supervision the rest of the engine's scheduled work does.
type DecisionScheduler struct {
	limiter *rate.Limiter
	idem    *idempotencyStore
	budgets *BudgetService
	cron    *cron.Cron
}

// NewDecisionScheduler builds a DecisionScheduler. rps/burst bound the
// decision dispatch rate; c is a running *cron.Cron the scheduler uses to
// place deferred re-queue entries.
func NewDecisionScheduler(budgets *BudgetService, rps float64, burst int, c *cron.Cron) *DecisionScheduler {
	return &DecisionScheduler{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		idem:    newIdempotencyStore(),
		budgets: budgets,
		cron:    c,
	}
}

func correlationKey(tenant, accountID, window string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", tenant, accountID, window)))
	return "decision_" + hex.EncodeToString(sum[:])[:24]
}

// Gate runs the cost gate ahead of dispatching RUN_DECISION for
// (tenant, account, window). When the gate defers rather than rejects
// outright, requeue is scheduled through the cron instance to run once,
// after the deferral delay.
func (d *DecisionScheduler) Gate(_ context.Context, tenant, accountID, window string, units int, now time.Time, requeue func()) decision.GateResult {
	if !d.limiter.Allow() {
		delay := 30 * time.Second
		d.deferRequeue(now, delay, requeue)
		return decision.GateResult{Dispatched: false, Reason: decision.ReasonDeferred, RetryAfter: &delay}
	}

	correlationID := correlationKey(tenant, accountID, window)
	if !d.idem.reserve(correlationID, now, decisionIdempotencyTTL) {
		return decision.GateResult{Dispatched: false, Reason: decision.ReasonDuplicateCorrelation}
	}

	date := now.UTC().Format("2006-01-02")
	ok, _ := d.budgets.TryConsume(tenant, date, "decision", depthForUnits(units))
	if !ok {
		return decision.GateResult{Dispatched: false, Reason: decision.ReasonBudgetExceeded}
	}

	return decision.GateResult{Dispatched: true, Reason: decision.ReasonDispatched}
}

// deferRequeue schedules requeue to run once, after delay, via a
// self-removing cron entry.
func (d *DecisionScheduler) deferRequeue(now time.Time, delay time.Duration, requeue func()) {
	if d.cron == nil || requeue == nil {
		return
	}
	runAt := now.Add(delay)
	var id cron.EntryID
	id = d.cron.Schedule(cron.Every(time.Until(runAt)), cron.FuncJob(func() {
		requeue()
		d.cron.Remove(id)
	}))
}

// depthForUnits is a small adapter: decision budget consumption is tracked
// through the same two-level BudgetService as pulls, with "units" mapped
// onto the SHALLOW/DEEP depth classes it already understands so no
// parallel accounting table is needed.
func depthForUnits(units int) budget.Depth {
	if units > 1 {
		return budget.Deep
	}
	return budget.Shallow
}
