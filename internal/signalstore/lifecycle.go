package signalstore

import (
	"context"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/account"
	dledger "github.com/lifecycleeng/account-engine/pkg/domain/ledger"
	"github.com/lifecycleeng/account-engine/pkg/domain/signal"
)

// LifecycleTransition is the outcome of ShouldTransition.
type LifecycleTransition struct {
	Tenant    string
	AccountID string
	From      account.LifecycleState
	To        account.LifecycleState
	Changed   bool
}

// nextLifecycleState advances PROSPECT to SUSPECT once
// ACCOUNT_ACTIVATION_DETECTED is ACTIVE, and SUSPECT to CUSTOMER once
// HasActiveContract is set. HasActiveContract is set by callers; none of
// the evidence types this engine consumes sets it, so SUSPECT -> CUSTOMER
// is never inferred from signals.
func nextLifecycleState(current account.LifecycleState, st *account.State) account.LifecycleState {
	switch current {
	case account.Prospect:
		if len(st.ActiveSignalIndex[string(signal.AccountActivationDetected)]) > 0 {
			return account.Suspect
		}
	case account.Suspect:
		if st.HasActiveContract {
			return account.Customer
		}
	}
	return current
}

// ShouldTransition derives "before" from the account's stored current
// lifecycle state and "after" by re-evaluating the transition table
// against the active-signal index as it stands right now — it does not
// infer twice against the same snapshot, since by the time a caller
// invokes this (after CreateSignal/UpdateStatus has returned) the index
// already reflects whatever write triggered the call. Always stamps
// LastInferenceAt/InferenceRuleVersion, even when no transition occurs, so
// every re-inference is recorded.
func (s *Service) ShouldTransition(ctx context.Context, ref account.Ref, ruleVersion string, now time.Time) (LifecycleTransition, error) {
	s.mu.Lock()
	st := s.accountStateLocked(ref)
	before := st.Lifecycle
	after := nextLifecycleState(before, st)

	st.LastInferenceAt = &now
	st.InferenceRuleVersion = ruleVersion
	changed := after != before
	if changed {
		st.Lifecycle = after
	}
	s.mu.Unlock()

	if changed {
		if err := s.appendLedger(ref.Tenant, ref.AccountID, "", dledger.EventTransition, map[string]string{
			"from": string(before), "to": string(after),
		}, nil, now); err != nil {
			return LifecycleTransition{}, err
		}
	}

	return LifecycleTransition{Tenant: ref.Tenant, AccountID: ref.AccountID, From: before, To: after, Changed: changed}, nil
}
