package heat

import (
	"testing"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/config"
	domheat "github.com/lifecycleeng/account-engine/pkg/domain/heat"
	"github.com/lifecycleeng/account-engine/pkg/domain/posture"
)

func testWeights() config.HeatWeights {
	return config.HeatWeights{Posture: 0.5, Recency: 0.3, Volume: 0.2}
}

func testTierPolicy() map[string]config.TierPolicy {
	return map[string]config.TierPolicy{
		"HOT":  {DemotionCooldown: 4 * time.Hour},
		"WARM": {DemotionCooldown: 24 * time.Hour},
		"COLD": {DemotionCooldown: 48 * time.Hour},
	}
}

func TestScoreFirstRunHasNoHysteresis(t *testing.T) {
	e := New(testWeights(), testTierPolicy(), nil)
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	ps := posture.State{Tenant: "t1", AccountID: "a1", Posture: posture.AtRisk}

	st := e.Score(ps, 10, &now, nil, now)
	if st.Tier != domheat.Hot {
		t.Fatalf("expected HOT for a fresh AT_RISK high-volume account, got %s", st.Tier)
	}
	if st.TierEnteredAt != now {
		t.Fatalf("expected TierEnteredAt to be now on first score")
	}
}

func TestScoreDemotionDeferredUntilCooldownElapses(t *testing.T) {
	e := New(testWeights(), testTierPolicy(), nil)
	enteredHot := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	prior := &domheat.State{Tier: domheat.Hot, TierEnteredAt: enteredHot}

	// Posture has gone cold (OK) and no recent signal activity, so the raw
	// candidate tier is COLD — but only 1 hour has elapsed since entering
	// HOT, well under its 4h cooldown.
	ps := posture.State{Tenant: "t1", AccountID: "a1", Posture: posture.OK}
	now := enteredHot.Add(1 * time.Hour)

	st := e.Score(ps, 0, nil, prior, now)
	if st.Tier != domheat.Hot {
		t.Fatalf("expected demotion deferred (still HOT), got %s", st.Tier)
	}
	if st.TierEnteredAt != enteredHot {
		t.Fatalf("expected TierEnteredAt preserved across a deferred demotion")
	}
}

func TestScoreDemotionAppliesAfterCooldownElapses(t *testing.T) {
	e := New(testWeights(), testTierPolicy(), nil)
	enteredHot := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	prior := &domheat.State{Tier: domheat.Hot, TierEnteredAt: enteredHot}

	ps := posture.State{Tenant: "t1", AccountID: "a1", Posture: posture.OK}
	now := enteredHot.Add(5 * time.Hour) // past the 4h HOT cooldown

	st := e.Score(ps, 0, nil, prior, now)
	if st.Tier == domheat.Hot {
		t.Fatalf("expected demotion to apply once cooldown elapsed, stayed HOT")
	}
	if st.TierEnteredAt != now {
		t.Fatalf("expected TierEnteredAt to reset to now once the demotion takes effect")
	}
}

func TestPostureWeightMatchesFixedMapping(t *testing.T) {
	cases := []struct {
		p    posture.Posture
		want float64
	}{
		{posture.OK, 0.2},
		{posture.Watch, 0.5},
		{posture.AtRisk, 0.8},
		{posture.Expand, 0.9},
		{posture.Dormant, 0.05},
	}
	for _, c := range cases {
		if got := postureWeight(c.p); got != c.want {
			t.Errorf("postureWeight(%s) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestRecencyComponentStepFunction(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		age  time.Duration
		want float64
	}{
		{30 * time.Minute, 1.0},
		{1 * time.Hour, 1.0},
		{3 * time.Hour, 0.7},
		{6 * time.Hour, 0.7},
		{12 * time.Hour, 0.4},
		{24 * time.Hour, 0.4},
		{3 * 24 * time.Hour, 0.1},
		{7 * 24 * time.Hour, 0.1},
		{8 * 24 * time.Hour, 0.0},
	}
	for _, c := range cases {
		ts := now.Add(-c.age)
		if got := recencyComponent(&ts, now); got != c.want {
			t.Errorf("recencyComponent(age=%s) = %v, want %v", c.age, got, c.want)
		}
	}
	if got := recencyComponent(nil, now); got != 0 {
		t.Errorf("recencyComponent(nil) = %v, want 0", got)
	}
}

func TestVolumeComponentIsCountOverTenCappedAtOne(t *testing.T) {
	cases := []struct {
		count int
		want  float64
	}{
		{0, 0.0},
		{1, 0.1},
		{5, 0.5},
		{10, 1.0},
		{20, 1.0},
	}
	for _, c := range cases {
		if got := volumeComponent(c.count); got != c.want {
			t.Errorf("volumeComponent(%d) = %v, want %v", c.count, got, c.want)
		}
	}
}

func TestScorePromotionIsNeverDeferred(t *testing.T) {
	e := New(testWeights(), testTierPolicy(), nil)
	enteredCold := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	prior := &domheat.State{Tier: domheat.Cold, TierEnteredAt: enteredCold}

	ps := posture.State{Tenant: "t1", AccountID: "a1", Posture: posture.AtRisk}
	now := enteredCold.Add(1 * time.Minute) // well under COLD's 48h cooldown
	st := e.Score(ps, 10, &now, prior, now)

	if st.Tier != domheat.Hot {
		t.Fatalf("expected immediate promotion to HOT regardless of cooldown, got %s", st.Tier)
	}
}
