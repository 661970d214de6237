// Package synthesis implements the synthesis engine (C7): turning an
// account's ACTIVE signals plus its lifecycle state into a deterministic
// AccountPostureState, against a versioned, rule-based ruleset: an
// append-only, process-wide cache keyed by version, no live reload,
// generalized from cost-rule matching to posture/momentum/factor synthesis.
package synthesis

import (
	"fmt"
	"os"
	"sort"
	"sync"

	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/domain/posture"
	"gopkg.in/yaml.v3"
)

// PropertyOperator enumerates the comparison operators property predicates
// support.
type PropertyOperator string

const (
	OpEquals           PropertyOperator = "equals"
	OpGreaterThan      PropertyOperator = "greater_than"
	OpLessThan         PropertyOperator = "less_than"
	OpLessThanOrEqual  PropertyOperator = "less_than_or_equal"
	OpWithinLastDays   PropertyOperator = "within_last_days"
	OpIn               PropertyOperator = "in"
	OpExists           PropertyOperator = "exists"
	OpNotExists        PropertyOperator = "not_exists"
)

// ComputedKind enumerates the derived predicates the condition model
// supports beyond raw property lookups.
type ComputedKind string

const (
	ComputedNoEngagementInDays   ComputedKind = "no_engagement_in_days"
	ComputedHasEngagementInDays ComputedKind = "has_engagement_in_days"
)

// ComputedPredicate evaluates a derived fact, e.g. "no engagement recorded
// in at least N days". no_engagement_in_days matches when the last recorded
// engagement is at least Days old or there is none; has_engagement_in_days
// is its complement: a recorded engagement less than Days old.
type ComputedPredicate struct {
	Computed ComputedKind `yaml:"computed"`
	Days     int          `yaml:"days"`
}

// PropertyPredicate evaluates a named property of the evaluation context
// against a value using one of the 8 operators.
type PropertyPredicate struct {
	Property string           `yaml:"property"`
	Operator PropertyOperator `yaml:"operator"`
	Value    interface{}      `yaml:"value"`
}

// FactorSpec is a rule's templated factor output (the id is derived at
// match time, not stored in the rule).
type FactorSpec struct {
	Kind    posture.FactorKind `yaml:"kind"`
	SubType string             `yaml:"sub_type"`
}

// Rule is a single entry in a ruleset: a condition plus the posture output
// it produces when matched.
type Rule struct {
	RuleID          string              `yaml:"rule_id"`
	Priority        int                 `yaml:"priority"`
	RequiredSignals []string            `yaml:"required_signals"`
	ExcludedSignals []string            `yaml:"excluded_signals"`
	Computed        []ComputedPredicate `yaml:"computed"`
	Properties      []PropertyPredicate `yaml:"properties"`
	Posture         posture.Posture     `yaml:"posture"`
	Momentum        posture.Momentum    `yaml:"momentum"`
	Factors         []FactorSpec        `yaml:"factors"`
	TTLDays         *int                `yaml:"ttl_days"`
}

// Ruleset is a versioned, ordered set of rules.
type Ruleset struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// sorted returns rules ordered by (priority asc, rule_id asc) — the exact
// order rule selection requires.
func (r *Ruleset) sorted() []Rule {
	out := append([]Rule(nil), r.Rules...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]*Ruleset{}
)

// LoadRuleset returns the cached ruleset for version, loading it from path
// on first use. The cache is append-only and process-wide for the lifetime
// of the engine — a version
// is parsed once and never re-read, so a rollout always bumps the version
// string rather than mutating a file in place.
func LoadRuleset(version, path string) (*Ruleset, error) {
	cacheMu.RLock()
	if rs, ok := cache[version]; ok {
		cacheMu.RUnlock()
		return rs, nil
	}
	cacheMu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engerrors.New(engerrors.Config, fmt.Sprintf("read ruleset %s", path), err)
	}
	var rs Ruleset
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, engerrors.New(engerrors.Config, fmt.Sprintf("parse ruleset %s", path), err)
	}
	if rs.Version == "" {
		rs.Version = version
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if existing, ok := cache[version]; ok {
		return existing, nil // another goroutine won the race
	}
	cache[version] = &rs
	return &rs, nil
}

// RegisterRuleset installs an in-memory ruleset directly, bypassing file
// loading — used to seed a known-good default ruleset at startup and by
// tests that want a fixed rule table without a fixture file on disk.
func RegisterRuleset(rs *Ruleset) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache[rs.Version] = rs
}

// ClearCache resets the process-wide ruleset cache. Test-only: production
// code never calls this, since a cached ruleset is never supposed to
// change underneath a running engine.
func ClearCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = map[string]*Ruleset{}
}
