// Package evidence implements the content-addressed evidence store (C2).
// The default Store is in-memory, keyed by SHA-256, following a
// content-addressed log pattern — only the contract and a reference
// implementation are specified here.
package evidence

import (
	"sync"
	"time"

	domevidence "github.com/lifecycleeng/account-engine/pkg/domain/evidence"
	engerrors "github.com/lifecycleeng/account-engine/pkg/errors"
)

// Store is the evidence object-store contract.
type Store interface {
	// Put writes payload under evidence/<entityType>/<entityID>/<evidenceID>.json
	// and returns the ref describing it.
	Put(entityType, entityID, evidenceID string, payload []byte, schemaVersion, detectorInputVersion string, capturedAt time.Time) (domevidence.Ref, error)

	// Get fetches the payload for ref and verifies its SHA-256 before
	// returning it: a failed verification is a failed read.
	Get(ref domevidence.Ref) ([]byte, error)
}

// InMemory is the default Store implementation.
type InMemory struct {
	mu   sync.RWMutex
	byURI map[string][]byte
}

// NewInMemory builds an empty in-memory evidence store.
func NewInMemory() *InMemory {
	return &InMemory{byURI: make(map[string][]byte)}
}

// Put implements Store.
func (s *InMemory) Put(entityType, entityID, evidenceID string, payload []byte, schemaVersion, detectorInputVersion string, capturedAt time.Time) (domevidence.Ref, error) {
	uri := domevidence.URI(entityType, entityID, evidenceID)
	ref := domevidence.Ref{
		URI:                  uri,
		SHA256:               domevidence.Hash(payload),
		CapturedAt:           capturedAt,
		SchemaVersion:        schemaVersion,
		DetectorInputVersion: detectorInputVersion,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.byURI[uri] = cp
	return ref, nil
}

// Get implements Store.
func (s *InMemory) Get(ref domevidence.Ref) ([]byte, error) {
	s.mu.RLock()
	payload, ok := s.byURI[ref.URI]
	s.mu.RUnlock()
	if !ok {
		return nil, engerrors.New(engerrors.Internal, "get evidence", nil)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	if err := domevidence.Verify(ref, cp); err != nil {
		return nil, engerrors.New(engerrors.Invariant, "verify evidence integrity", err)
	}
	return cp, nil
}
