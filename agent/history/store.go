// Package history persists completed workflow records. The store is
// append-only: a record is written exactly once, after the workflow
// reaches a terminal status, and never mutated.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/tanpawarit/Difflin-Workflow-Engine/agent/contract"
)

// MemoryStore keeps workflow records in process, in arrival order.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]contractx.WorkflowRecord
	ordered []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]contractx.WorkflowRecord)}
}

func (s *MemoryStore) Append(ctx context.Context, rec contractx.WorkflowRecord) error {
	if strings.TrimSpace(rec.RequestID) == "" {
		return fmt.Errorf("%w: workflow record has no request id", contractx.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.RequestID]; exists {
		return fmt.Errorf("%w: record for request %s already appended", contractx.ErrValidation, rec.RequestID)
	}
	s.byID[rec.RequestID] = rec
	s.ordered = append(s.ordered, rec.RequestID)
	return nil
}

func (s *MemoryStore) ByRequest(ctx context.Context, requestID string) (contractx.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[requestID]
	if !ok {
		return contractx.WorkflowRecord{}, fmt.Errorf("%w: request %s", contractx.ErrRecordNotFound, requestID)
	}
	return rec, nil
}

// All returns records in append order.
func (s *MemoryStore) All(ctx context.Context) ([]contractx.WorkflowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contractx.WorkflowRecord, 0, len(s.ordered))
	for _, id := range s.ordered {
		out = append(out, s.byID[id])
	}
	return out, nil
}
