// Package posture defines the synthesis output record (AccountPostureState)
// and its deterministic id/hash derivations.
package posture

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
)

// Posture is the account's synthesized health classification.
type Posture string

const (
	OK       Posture = "OK"
	Watch    Posture = "WATCH"
	AtRisk   Posture = "AT_RISK"
	Expand   Posture = "EXPAND"
	Dormant  Posture = "DORMANT"
)

// Momentum is the direction of change implied by the matched rule.
type Momentum string

const (
	Up   Momentum = "UP"
	Flat Momentum = "FLAT"
	Down Momentum = "DOWN"
)

// FactorKind distinguishes the three enumerated output buckets.
type FactorKind string

const (
	KindRisk        FactorKind = "risk"
	KindOpportunity FactorKind = "opportunity"
	KindUnknown     FactorKind = "unknown"
)

// Factor is one enumerated risk/opportunity/unknown entry.
type Factor struct {
	ID      string
	Kind    FactorKind
	SubType string
	RuleID  string
}

// State is the deterministic synthesis output.
type State struct {
	Tenant            string
	AccountID         string
	Posture           Posture
	Momentum          Momentum
	Factors           []Factor
	EvidenceSignalIDs []string // sorted, capped at 10
	EvidenceRefs      []evidence.Ref // deduped by sha256, capped at 10
	ActiveSignalsHash string
	InputsHash        string
	RulesetVersion    string
	RuleID            string
	EvaluatedAt       time.Time
	TTL               *time.Duration
}

// FactorID derives the deterministic id for a risk/opportunity/unknown
// factor: SHA-256 over (tenant, account, ruleset version, kind, sub-type, rule id).
func FactorID(tenant, accountID, rulesetVersion string, kind FactorKind, subType, ruleID string) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s", tenant, accountID, rulesetVersion, kind, subType, ruleID)
	sum := sha256.Sum256([]byte(input))
	return "pf_" + hex.EncodeToString(sum[:])[:24]
}

// ActiveSignalsHash computes SHA-256 over the sorted JSON array of active
// signal ids — the snapshot identity that two synthesis runs must share to
// guarantee bit-identical output.
func ActiveSignalsHash(activeSignalIDs []string) (string, error) {
	sorted := append([]string(nil), activeSignalIDs...)
	sort.Strings(sorted)
	b, err := json.Marshal(sorted)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// InputsHash computes SHA-256 over (active_signals_hash, lifecycle_state, ruleset_version).
func InputsHash(activeSignalsHash, lifecycleState, rulesetVersion string) string {
	input := fmt.Sprintf("%s|%s|%s", activeSignalsHash, lifecycleState, rulesetVersion)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// DedupeEvidenceRefs returns refs deduped by SHA256, in first-seen order,
// capped at max entries.
func DedupeEvidenceRefs(refs []evidence.Ref, max int) []evidence.Ref {
	seen := make(map[string]bool, len(refs))
	out := make([]evidence.Ref, 0, max)
	for _, r := range refs {
		if seen[r.SHA256] {
			continue
		}
		seen[r.SHA256] = true
		out = append(out, r)
		if len(out) >= max {
			break
		}
	}
	return out
}
