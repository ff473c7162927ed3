package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/fhevm/core"
	"github.com/layer-3/fhevm/ports"
)

type memoryEntry struct {
	outcome core.DecryptionOutcome
	expires time.Time
}

// MemoryStore is an in-memory implementation of the ResultStore interface
type MemoryStore struct {
	outcomes map[string]memoryEntry
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() ports.ResultStore {
	return &MemoryStore{
		outcomes: make(map[string]memoryEntry),
	}
}

// SaveOutcome archives a settled decryption for ttl
func (s *MemoryStore) SaveOutcome(ctx context.Context, outcome core.DecryptionOutcome, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := time.Now().Add(ttl)
	s.outcomes[outcome.RequestID] = memoryEntry{outcome: copyOutcome(outcome), expires: expires}

	// Drop the entry once it expires, unless it was saved again meanwhile
	time.AfterFunc(ttl, func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if stored, exists := s.outcomes[outcome.RequestID]; exists && !stored.expires.After(expires) {
			delete(s.outcomes, outcome.RequestID)
		}
	})

	return nil
}

// LoadOutcome returns the archived outcome of requestID
func (s *MemoryStore) LoadOutcome(ctx context.Context, requestID string) (*core.DecryptionOutcome, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, exists := s.outcomes[requestID]
	if !exists || time.Now().After(stored.expires) {
		return nil, false, nil
	}

	outcome := copyOutcome(stored.outcome)
	return &outcome, true, nil
}

func copyOutcome(o core.DecryptionOutcome) core.DecryptionOutcome {
	if o.Result != nil {
		result := *o.Result
		if result.Value != nil {
			result.Value = result.Value.Clone()
		}
		o.Result = &result
	}
	return o
}
