package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	matrixerrors "github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/errors"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// InMemoryStore implements CaseStore using in-memory storage
type InMemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewInMemoryStore creates a new in-memory case store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

// SaveCase stores the case, replacing any earlier record with the same id.
func (s *InMemoryStore) SaveCase(ctx context.Context, c *triage.CaseState) error {
	if c == nil || c.CaseID == "" {
		return fmt.Errorf("%w: case must have an id", matrixerrors.ErrInvalidInput)
	}
	r := FromCase(c)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.CaseID] = r
	return nil
}

// Get returns a copy of the record.
func (s *InMemoryStore) Get(ctx context.Context, caseID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[caseID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, matrixerrors.ErrNotFound)
	}
	out := *r
	return &out, nil
}

// List returns records by completion time, newest first.
func (s *InMemoryStore) List(ctx context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].CaseID < out[j].CaseID
	})
	if limit = normalizeLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored cases
func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Clear removes all cases
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	return nil
}
