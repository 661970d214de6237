// Package heat defines the per-account heat score/tier row (HeatState).
package heat

import "time"

// Tier is the cadence class driving how often an account is polled.
type Tier string

const (
	Hot  Tier = "HOT"
	Warm Tier = "WARM"
	Cold Tier = "COLD"
)

// Rank gives a total order over tiers so callers can ask "cooler than".
// Hot=2, Warm=1, Cold=0 — higher is hotter.
func (t Tier) Rank() int {
	switch t {
	case Hot:
		return 2
	case Warm:
		return 1
	default:
		return 0
	}
}

// CoolerThan reports whether t is strictly cooler than other.
func (t Tier) CoolerThan(other Tier) bool {
	return t.Rank() < other.Rank()
}

// Factors is the score's component breakdown, carried alongside the raw
// score for observability.
type Factors struct {
	PostureComponent float64
	RecencyComponent float64
	VolumeComponent  float64
}

// State is the latest heat row for an account.
type State struct {
	Tenant        string
	AccountID     string
	Score         float64
	Tier          Tier
	Factors       Factors
	ComputedAt    time.Time
	UpdatedAt     time.Time
	TierEnteredAt time.Time // when Tier last changed, for demotion-cooldown hysteresis
}

// TierFromScore maps a raw score to a tier per the fixed thresholds:
// >=0.7 HOT, >=0.4 WARM, else COLD.
func TierFromScore(raw float64) Tier {
	switch {
	case raw >= 0.7:
		return Hot
	case raw >= 0.4:
		return Warm
	default:
		return Cold
	}
}
