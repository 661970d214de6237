// Package heat implements the heat-scoring engine (C8): a linear
// combination of posture, recency, and volume components mapped to a tier,
// with hysteresis so a cooling account doesn't flap between polling
// cadences.
package heat

import (
	"time"

	"github.com/lifecycleeng/account-engine/pkg/config"
	domheat "github.com/lifecycleeng/account-engine/pkg/domain/heat"
	"github.com/lifecycleeng/account-engine/pkg/domain/posture"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
)

// postureWeight maps a synthesized posture to its fixed contribution to
// heat. These mappings are not implementer-tunable — only the combiner
// weights (config.HeatWeights) are.
func postureWeight(p posture.Posture) float64 {
	switch p {
	case posture.AtRisk:
		return 0.8
	case posture.Expand:
		return 0.9
	case posture.Watch:
		return 0.5
	case posture.Dormant:
		return 0.05
	case posture.OK:
		return 0.2
	default:
		return 0.2
	}
}

// recencyComponent is a fixed step function of the most recent active
// signal's age, not a continuous decay.
func recencyComponent(mostRecentSignalAt *time.Time, now time.Time) float64 {
	if mostRecentSignalAt == nil {
		return 0
	}
	age := now.Sub(*mostRecentSignalAt)
	switch {
	case age <= time.Hour:
		return 1.0
	case age <= 6*time.Hour:
		return 0.7
	case age <= 24*time.Hour:
		return 0.4
	case age <= 7*24*time.Hour:
		return 0.1
	default:
		return 0.0
	}
}

// volumeComponent is min(1, active_signal_count/10).
func volumeComponent(activeSignalCount int) float64 {
	if activeSignalCount <= 0 {
		return 0
	}
	v := float64(activeSignalCount) / 10.0
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Engine computes heat scores and applies tier hysteresis.
type Engine struct {
	weights    config.HeatWeights
	tierPolicy map[string]config.TierPolicy
	metrics    *metrics.Registry
}

// New builds a heat Engine against the configured weights and per-tier
// demotion cooldowns. m may be nil.
func New(weights config.HeatWeights, tierPolicy map[string]config.TierPolicy, m *metrics.Registry) *Engine {
	return &Engine{weights: weights, tierPolicy: tierPolicy, metrics: m}
}

// Score composes a new heat.State from the latest posture synthesis and
// signal volume/recency, applying hysteresis against prior (nil if this is
// the account's first score): a demotion to a cooler tier is deferred
// until prior's current tier has been held for at least that tier's
// DemotionCooldown; a promotion to a hotter tier is never deferred.
func (e *Engine) Score(ps posture.State, activeSignalCount int, mostRecentSignalAt *time.Time, prior *domheat.State, now time.Time) domheat.State {
	factors := domheat.Factors{
		PostureComponent: postureWeight(ps.Posture),
		RecencyComponent: recencyComponent(mostRecentSignalAt, now),
		VolumeComponent:  volumeComponent(activeSignalCount),
	}
	raw := e.weights.Posture*factors.PostureComponent +
		e.weights.Recency*factors.RecencyComponent +
		e.weights.Volume*factors.VolumeComponent

	candidate := domheat.TierFromScore(raw)
	tier := candidate
	tierEnteredAt := now

	switch {
	case prior == nil:
		// first score for this account: no hysteresis to apply
	case candidate == prior.Tier:
		tier = prior.Tier
		tierEnteredAt = prior.TierEnteredAt
	case candidate.CoolerThan(prior.Tier):
		cooldown := e.tierPolicy[string(prior.Tier)].DemotionCooldown
		held := now.Sub(prior.TierEnteredAt)
		if cooldown > 0 && held < cooldown {
			// demotion blocked: held current (hotter) tier until cooldown elapses
			tier = prior.Tier
			tierEnteredAt = prior.TierEnteredAt
		}
	default:
		// promotion to a hotter tier applies immediately
	}

	if e.metrics != nil && prior != nil && tier != prior.Tier {
		e.metrics.HeatTierTransitions.WithLabelValues(ps.Tenant, string(prior.Tier), string(tier)).Inc()
	}

	return domheat.State{
		Tenant:        ps.Tenant,
		AccountID:     ps.AccountID,
		Score:         raw,
		Tier:          tier,
		Factors:       factors,
		ComputedAt:    now,
		UpdatedAt:     now,
		TierEnteredAt: tierEnteredAt,
	}
}
