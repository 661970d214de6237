package synthesis

import "github.com/lifecycleeng/account-engine/pkg/domain/posture"

// DefaultRuleset is the engine's built-in v1 rule table. It covers every
// named posture and guarantees at
// least one rule always matches (the catch-all OK/FLAT rule at the lowest
// priority), satisfying the "no-match-is-fatal" invariant in practice
// while still letting a deployment override via a YAML file at a higher
// ruleset version.
var DefaultRuleset = &Ruleset{
	Version: "v1",
	Rules: []Rule{
		{
			RuleID:          "r001_activation_no_engagement",
			Priority:        10,
			RequiredSignals: []string{"ACCOUNT_ACTIVATION_DETECTED", "NO_ENGAGEMENT_PRESENT"},
			Posture:         posture.AtRisk,
			Momentum:        posture.Down,
			Factors: []FactorSpec{
				{Kind: posture.KindRisk, SubType: "stalled_activation"},
			},
		},
		{
			RuleID:          "r010_first_engagement",
			Priority:        10,
			RequiredSignals: []string{"FIRST_ENGAGEMENT_OCCURRED"},
			ExcludedSignals: []string{"DISCOVERY_PROGRESS_STALLED"},
			Posture:         posture.Expand,
			Momentum:        posture.Up,
			Factors: []FactorSpec{
				{Kind: posture.KindOpportunity, SubType: "new_engagement"},
			},
		},
		{
			RuleID:          "r020_discovery_stalled",
			Priority:        20,
			RequiredSignals: []string{"DISCOVERY_PROGRESS_STALLED"},
			Posture:         posture.Watch,
			Momentum:        posture.Down,
			Factors: []FactorSpec{
				{Kind: posture.KindRisk, SubType: "discovery_stalled"},
			},
		},
		{
			RuleID:          "r021_stakeholder_gap",
			Priority:        20,
			RequiredSignals: []string{"STAKEHOLDER_GAP_DETECTED"},
			Posture:         posture.Watch,
			Momentum:        posture.Flat,
			Factors: []FactorSpec{
				{Kind: posture.KindRisk, SubType: "stakeholder_gap"},
			},
		},
		{
			RuleID:          "r030_support_risk",
			Priority:        15,
			RequiredSignals: []string{"SUPPORT_RISK_EMERGING"},
			Posture:         posture.AtRisk,
			Momentum:        posture.Down,
			Factors: []FactorSpec{
				{Kind: posture.KindRisk, SubType: "support_escalation"},
			},
		},
		{
			RuleID:          "r040_renewal_window",
			Priority:        25,
			RequiredSignals: []string{"RENEWAL_WINDOW_ENTERED"},
			ExcludedSignals: []string{"SUPPORT_RISK_EMERGING", "USAGE_TREND_CHANGE"},
			Posture:         posture.Watch,
			Momentum:        posture.Flat,
			Factors: []FactorSpec{
				{Kind: posture.KindOpportunity, SubType: "renewal_approaching"},
			},
		},
		{
			RuleID:          "r041_renewal_with_usage_growth",
			Priority:        24,
			RequiredSignals: []string{"RENEWAL_WINDOW_ENTERED", "USAGE_TREND_CHANGE"},
			Posture:         posture.Expand,
			Momentum:        posture.Up,
			Factors: []FactorSpec{
				{Kind: posture.KindOpportunity, SubType: "renewal_with_growth"},
			},
		},
		{
			RuleID:          "r050_prolonged_no_engagement",
			Priority:        30,
			Computed: []ComputedPredicate{
				{Computed: ComputedNoEngagementInDays, Days: 60},
			},
			Posture:  posture.Dormant,
			Momentum: posture.Down,
			Factors: []FactorSpec{
				{Kind: posture.KindRisk, SubType: "prolonged_silence"},
			},
		},
		{
			RuleID:   "r999_default_ok",
			Priority: 1000,
			Posture:  posture.OK,
			Momentum: posture.Flat,
		},
	},
}

func init() {
	RegisterRuleset(DefaultRuleset)
}
