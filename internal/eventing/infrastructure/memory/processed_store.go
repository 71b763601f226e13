package memory

import (
	"context"
	"errors"
	"sync"
)

// ProcessedStore is an in-memory idempotency store for demo/testing.
type ProcessedStore struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewProcessedStore constructs a store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed checks if event was already processed.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	_ = ctx
	if eventID == "" || consumerName == "" {
		return false, errors.New("processed store: invalid arguments")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[eventID+"|"+consumerName]
	return ok, nil
}

// MarkProcessed records an event as processed.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	_ = ctx
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID+"|"+consumerName] = struct{}{}
	return nil
}
