package mocks

import (
	"context"
	"sync"

	"github.com/flowgraph-io/flowgraph/types"
)

// MemoryStore is an in-memory append-only persistence capability.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string][]types.ExecutionRecord
	summaries map[string]types.BottleneckSummary
	AppendErr error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string][]types.ExecutionRecord),
		summaries: make(map[string]types.BottleneckSummary),
	}
}

// AppendRecord implements capability.Store.
func (s *MemoryStore) AppendRecord(_ context.Context, rec types.ExecutionRecord) error {
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RunID] = append(s.records[rec.RunID], rec)
	return nil
}

// WriteSummary implements capability.Store.
func (s *MemoryStore) WriteSummary(_ context.Context, runID string, sum types.BottleneckSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[runID] = sum
	return nil
}

// Records implements capability.Store.
func (s *MemoryStore) Records(_ context.Context, runID string) ([]types.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ExecutionRecord(nil), s.records[runID]...), nil
}

// Summary returns the stored summary for a run, if written.
func (s *MemoryStore) Summary(runID string) (types.BottleneckSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[runID]
	return sum, ok
}
