// Package account defines the per-(tenant, account) lifecycle read-model.
package account

import "time"

// LifecycleState is the account's coarse lifecycle stage.
type LifecycleState string

const (
	Prospect LifecycleState = "PROSPECT"
	Suspect  LifecycleState = "SUSPECT"
	Customer LifecycleState = "CUSTOMER"
)

// Ref identifies an account uniquely within the engine.
type Ref struct {
	Tenant    string
	AccountID string
}

// State is the lifecycle read-model derived from the signal store. It is
// never the source of truth for signals — only a coupled projection kept
// in sync inside the same transaction that writes a signal.
type State struct {
	Ref               Ref
	Lifecycle         LifecycleState
	ActiveSignalIndex  map[string][]string // signal_type -> ordered signal_ids, most recent first
	LastEngagementAt   *time.Time
	HasActiveContract  bool
	LastInferenceAt    *time.Time
	InferenceRuleVersion string
}

// NewState returns the default read-model for an account with no prior
// history: lifecycle defaults to PROSPECT.
func NewState(ref Ref) *State {
	return &State{
		Ref:               ref,
		Lifecycle:         Prospect,
		ActiveSignalIndex: make(map[string][]string),
	}
}

// IndexInsert records signalID as ACTIVE under signalType, most-recent-first.
func (s *State) IndexInsert(signalType, signalID string) {
	ids := s.ActiveSignalIndex[signalType]
	for _, id := range ids {
		if id == signalID {
			return
		}
	}
	s.ActiveSignalIndex[signalType] = append([]string{signalID}, ids...)
}

// IndexRemove drops signalID from the ACTIVE index for signalType — called
// when a signal leaves ACTIVE (expire or suppress).
func (s *State) IndexRemove(signalType, signalID string) {
	ids := s.ActiveSignalIndex[signalType]
	out := ids[:0]
	for _, id := range ids {
		if id != signalID {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		delete(s.ActiveSignalIndex, signalType)
	} else {
		s.ActiveSignalIndex[signalType] = out
	}
}

// ActiveSignalIDs returns every ACTIVE signal id across all types. Ids of
// one type keep their index order; the order of the types follows map
// iteration and is not stable — callers sort if they need a canonical
// ordering (e.g. for active_signals_hash).
func (s *State) ActiveSignalIDs() []string {
	var all []string
	for _, ids := range s.ActiveSignalIndex {
		all = append(all, ids...)
	}
	return all
}
