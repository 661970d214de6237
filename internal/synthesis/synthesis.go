package synthesis

import (
	"context"
	"fmt"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	domevidence "github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	"github.com/lifecycleeng/account-engine/pkg/domain/posture"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
	"github.com/lifecycleeng/account-engine/pkg/metrics"
	"github.com/lifecycleeng/account-engine/internal/signalstore"
)

// maxEvidenceRefs is the cap on posture.State.EvidenceRefs.
const maxEvidenceRefs = 10

// maxEvidenceSignalIDs mirrors the same cap for the sorted signal-id list.
const maxEvidenceSignalIDs = 10

// SignalReader is the narrow capability synthesis needs from the signal
// store — signalstore.Service satisfies this.
type SignalReader interface {
	GetSignalsForAccount(ctx context.Context, ref account.Ref, filters signalstore.Filters, now time.Time) ([]signal.Signal, error)
	GetAccountState(ctx context.Context, ref account.Ref) (*account.State, error)
}

// Engine runs synthesize().
type Engine struct {
	reader  SignalReader
	path    string
	metrics *metrics.Registry
}

// New builds a synthesis Engine. rulesetPath is the file LoadRuleset reads
// from on first use of a given version.
func New(reader SignalReader, rulesetPath string, m *metrics.Registry) *Engine {
	return &Engine{reader: reader, path: rulesetPath, metrics: m}
}

// Synthesize loads active signals, loads
// lifecycle state, load the ruleset (fail loudly if unknown), select the
// first matching rule in (priority asc, rule_id asc) order, and compose
// the deterministic posture.State.
func (e *Engine) Synthesize(ctx context.Context, ref account.Ref, rulesetVersion string, now time.Time) (posture.State, error) {
	active, err := e.reader.GetSignalsForAccount(ctx, ref, signalstore.Filters{}, now)
	if err != nil {
		return posture.State{}, err
	}
	acctState, err := e.reader.GetAccountState(ctx, ref)
	if err != nil {
		return posture.State{}, err
	}

	rs, err := LoadRuleset(rulesetVersion, e.path)
	if err != nil {
		return posture.State{}, err
	}

	activeTypes := make(map[signal.Type]bool, len(active))
	var activeIDs []string
	for _, s := range active {
		if !s.InferenceActive {
			continue
		}
		activeTypes[s.Type] = true
		activeIDs = append(activeIDs, s.SignalID)
	}

	rule, matched := e.selectRule(rs, activeTypes, acctState, now)
	if !matched {
		return posture.State{}, engerrors.Invariantf("synthesis", "no rule matched for account %s under ruleset %s", ref.AccountID, rulesetVersion)
	}

	activeHash, err := posture.ActiveSignalsHash(activeIDs)
	if err != nil {
		return posture.State{}, engerrors.New(engerrors.Internal, "compute active signals hash", err)
	}
	inputsHash := posture.InputsHash(activeHash, string(acctState.Lifecycle), rs.Version)

	factors := make([]posture.Factor, 0, len(rule.Factors))
	for _, fs := range rule.Factors {
		factors = append(factors, posture.Factor{
			ID:      posture.FactorID(ref.Tenant, ref.AccountID, rs.Version, fs.Kind, fs.SubType, rule.RuleID),
			Kind:    fs.Kind,
			SubType: fs.SubType,
			RuleID:  rule.RuleID,
		})
	}

	var evidenceRefs []domevidence.Ref
	for _, s := range active {
		if activeTypes[s.Type] {
			evidenceRefs = append(evidenceRefs, s.EvidenceRef)
		}
	}
	sortedIDs := sortedSignalIDs(activeIDs, maxEvidenceSignalIDs)
	refs := posture.DedupeEvidenceRefs(evidenceRefs, maxEvidenceRefs)

	var ttl *time.Duration
	if rule.TTLDays != nil {
		d := time.Duration(*rule.TTLDays) * 24 * time.Hour
		ttl = &d
	}

	if e.metrics != nil {
		e.metrics.SynthesisRuns.WithLabelValues(ref.Tenant, string(rule.Posture)).Inc()
	}

	return posture.State{
		Tenant:            ref.Tenant,
		AccountID:         ref.AccountID,
		Posture:           rule.Posture,
		Momentum:          rule.Momentum,
		Factors:           factors,
		EvidenceSignalIDs: sortedIDs,
		EvidenceRefs:      refs,
		ActiveSignalsHash: activeHash,
		InputsHash:        inputsHash,
		RulesetVersion:    rs.Version,
		RuleID:            rule.RuleID,
		EvaluatedAt:       now,
		TTL:               ttl,
	}, nil
}

// selectRule walks rules in (priority asc, rule_id asc) order and returns
// the first whose condition is fully satisfied.
func (e *Engine) selectRule(rs *Ruleset, activeTypes map[signal.Type]bool, st *account.State, now time.Time) (Rule, bool) {
	for _, r := range rs.sorted() {
		if conditionMatches(r, activeTypes, st, now) {
			return r, true
		}
	}
	return Rule{}, false
}

func conditionMatches(r Rule, activeTypes map[signal.Type]bool, st *account.State, now time.Time) bool {
	for _, req := range r.RequiredSignals {
		if !activeTypes[signal.Type(req)] {
			return false
		}
	}
	for _, exc := range r.ExcludedSignals {
		if activeTypes[signal.Type(exc)] {
			return false
		}
	}
	for _, c := range r.Computed {
		if !computedMatches(c, st, now) {
			return false
		}
	}
	for _, p := range r.Properties {
		if !propertyMatches(p, st) {
			return false
		}
	}
	return true
}

func computedMatches(c ComputedPredicate, st *account.State, now time.Time) bool {
	switch c.Computed {
	case ComputedNoEngagementInDays:
		if st.LastEngagementAt == nil {
			return true
		}
		return daysSince(*st.LastEngagementAt, now) >= c.Days
	case ComputedHasEngagementInDays:
		if st.LastEngagementAt == nil {
			return false
		}
		return daysSince(*st.LastEngagementAt, now) < c.Days
	default:
		return false
	}
}

func daysSince(t, now time.Time) int {
	return int(now.Sub(t).Hours() / 24)
}

func propertyMatches(p PropertyPredicate, st *account.State) bool {
	var actual interface{}
	switch p.Property {
	case "lifecycle_state":
		actual = string(st.Lifecycle)
	case "has_active_contract":
		actual = st.HasActiveContract
	default:
		actual = nil
	}

	switch p.Operator {
	case OpExists:
		return actual != nil
	case OpNotExists:
		return actual == nil
	case OpEquals:
		return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", p.Value)
	case OpIn:
		values, ok := p.Value.([]interface{})
		if !ok {
			return false
		}
		for _, v := range values {
			if fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", v) {
				return true
			}
		}
		return false
	default:
		// greater_than / less_than / less_than_or_equal / within_last_days
		// operate on numeric lifecycle facts this engine doesn't yet expose
		// as properties; rules that need them target computed predicates
		// instead — computed predicates are the documented escape hatch for
		// date-window comparisons.
		return false
	}
}

func sortedSignalIDs(ids []string, max int) []string {
	out := append([]string(nil), ids...)
	// insertion sort is fine here: caller-bounded list sizes per account
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}
