// Package evidence defines the immutable, content-addressed evidence
// snapshot.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Ref is a pointer to an evidence payload. Opaque and safe to log. Refs
// normally come from Store.Put; the execution pipeline builds a synthetic
// execution:// Ref for its outcome signals.
type Ref struct {
	URI               string    `json:"uri"`
	SHA256            string    `json:"sha256"`
	CapturedAt        time.Time `json:"captured_at"`
	SchemaVersion     string    `json:"schema_version"`
	DetectorInputVersion string  `json:"detector_input_version"`
}

// Snapshot is an immutable payload addressed by content hash. It is never
// mutated after creation; only ever created by connectors and referenced
// by signals, posture, and outcomes.
type Snapshot struct {
	Tenant               string
	EntityType           string
	EntityID             string
	SchemaVersion        string
	CapturedAt           time.Time
	DetectorInputVersion string
	Payload              []byte
}

// Hash computes the SHA-256 of the canonical payload bytes.
func Hash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// URI builds the canonical object-store key: evidence/<entity-type>/<entity-id>/<evidence-id>.json
func URI(entityType, entityID, evidenceID string) string {
	return fmt.Sprintf("evidence/%s/%s/%s.json", entityType, entityID, evidenceID)
}

// Verify recomputes the SHA-256 of payload and compares it to ref. Every
// evidence read in the system goes through this gate.
func Verify(ref Ref, payload []byte) error {
	if got := Hash(payload); got != ref.SHA256 {
		return fmt.Errorf("evidence integrity: sha256 mismatch, expected %s got %s", ref.SHA256, got)
	}
	return nil
}
