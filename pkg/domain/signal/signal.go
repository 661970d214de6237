// Package signal defines the Signal detection record, its dedupe-key
// derivation, and its state machine.
package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lifecycleeng/account-engine/pkg/domain/evidence"
)

// Status is a Signal's position in the state machine.
//
//	ACTIVE --expire--> EXPIRED      (TTL elapsed, not SUPPRESSED)
//	ACTIVE --suppress--> SUPPRESSED  (terminal for inference)
//	EXPIRED --suppress--> SUPPRESSED (allowed)
//	SUPPRESSED --anything--> reject  (never ACTIVE again)
type Status string

const (
	Active     Status = "ACTIVE"
	Suppressed Status = "SUPPRESSED"
	Expired    Status = "EXPIRED"
)

// ConfidenceSource is how a signal's confidence was derived.
type ConfidenceSource string

const (
	SourceDirect   ConfidenceSource = "direct"
	SourceDerived  ConfidenceSource = "derived"
	SourceInferred ConfidenceSource = "inferred"
)

// Severity is the signal's severity band.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Type enumerates the signal types the detector set (C4) produces.
type Type string

const (
	AccountActivationDetected Type = "ACCOUNT_ACTIVATION_DETECTED"
	NoEngagementPresent       Type = "NO_ENGAGEMENT_PRESENT"
	FirstEngagementOccurred   Type = "FIRST_ENGAGEMENT_OCCURRED"
	DiscoveryProgressStalled  Type = "DISCOVERY_PROGRESS_STALLED"
	StakeholderGapDetected    Type = "STAKEHOLDER_GAP_DETECTED"
	UsageTrendChange          Type = "USAGE_TREND_CHANGE"
	SupportRiskEmerging       Type = "SUPPORT_RISK_EMERGING"
	RenewalWindowEntered      Type = "RENEWAL_WINDOW_ENTERED"
	ActionExecuted            Type = "ACTION_EXECUTED"
	ActionFailed              Type = "ACTION_FAILED"
)

// SuppressionInfo records why and when a signal was suppressed.
type SuppressionInfo struct {
	Reason      string
	SuppressedAt time.Time
	SuppressedBy string // e.g. lifecycle transition key, or "replay"
}

// Signal is a single detection record.
type Signal struct {
	SignalID        string
	Tenant          string
	AccountID       string
	Type            Type
	Status          Status
	WindowKey       string
	DedupeKey       string
	Confidence      float64
	ConfidenceSource ConfidenceSource
	Severity        Severity
	TTLDays         *int // nil = permanent
	EvidenceRef     evidence.Ref
	DetectorVersion string
	Context         map[string]string
	Metadata        map[string]string
	Suppression     *SuppressionInfo
	TraceID         string
	CreatedAt       time.Time
	// InferenceActive is false for historical signals that should not
	// influence lifecycle re-inference — a FIRST_ENGAGEMENT_OCCURRED signal
	// recorded when lifecycle is already CUSTOMER.
	InferenceActive bool
}

// DedupeKey derives the deterministic idempotency key:
// hash(account, signal_type, window_key, evidence_hash).
func DedupeKey(accountID string, t Type, windowKey, evidenceHash string) string {
	input := fmt.Sprintf("%s|%s|%s|%s", accountID, t, windowKey, evidenceHash)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// SignalID derives a deterministic signal id from the same inputs as the
// dedupe key, plus tenant — distinct signals never collide, and re-running
// a detector over the same (account, type, window, evidence) is idempotent
// at the id level too, since a dedupe lookup becomes a direct keyed read.
func SignalID(tenant, accountID string, t Type, windowKey, evidenceHash string) string {
	input := fmt.Sprintf("%s|%s", tenant, DedupeKey(accountID, t, windowKey, evidenceHash))
	sum := sha256.Sum256([]byte(input))
	return "sig_" + hex.EncodeToString(sum[:])[:24]
}

// IsExpired reports whether the signal's TTL has elapsed as of now, given
// it is not already SUPPRESSED.
func (s Signal) IsExpired(now time.Time) bool {
	if s.TTLDays == nil {
		return false
	}
	deadline := s.CreatedAt.AddDate(0, 0, *s.TTLDays)
	return !now.Before(deadline)
}

// CanTransition enforces the one-way state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case Active:
		return to == Expired || to == Suppressed
	case Expired:
		return to == Suppressed
	case Suppressed:
		return false
	default:
		return false
	}
}
