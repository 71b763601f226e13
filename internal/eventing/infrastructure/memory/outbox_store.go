package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"medtrack/internal/eventing"
)

// OutboxStore is an in-memory outbox for demo/testing.
type OutboxStore struct {
	mu      sync.Mutex
	records []outboxRecord
}

type outboxRecord struct {
	id       string
	envelope eventing.Envelope
	status   string
}

// NewOutboxStore constructs a store.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{}
}

// Insert appends a pending envelope.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	_ = ctx
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, outboxRecord{id: env.EventID, envelope: env, status: "PENDING"})
	return env.EventID, nil
}

// ListPending returns pending records oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []eventing.OutboxRecord
	for _, record := range s.records {
		if record.status != "PENDING" {
			continue
		}
		result = append(result, eventing.OutboxRecord{ID: record.id, Envelope: record.envelope})
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// MarkSent marks a record delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.mark(ctx, id, "SENT")
}

// MarkFailed marks a record failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.mark(ctx, id, "FAILED")
}

func (s *OutboxStore) mark(ctx context.Context, id, status string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].id == id {
			s.records[i].status = status
			return nil
		}
	}
	return errors.New("outbox store: unknown record " + id)
}

// DLQStore is an in-memory dead letter store for demo/testing.
type DLQStore struct {
	mu      sync.Mutex
	entries []DLQEntry
}

// DLQEntry is one recorded failure.
type DLQEntry struct {
	Envelope eventing.Envelope
	Error    string
	FailedAt time.Time
}

// NewDLQStore constructs a store.
func NewDLQStore() *DLQStore {
	return &DLQStore{}
}

// RecordFailure stores a failed envelope.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	_ = ctx
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, DLQEntry{Envelope: env, Error: message, FailedAt: time.Now().UTC()})
	return nil
}

// Entries returns recorded failures.
func (s *DLQStore) Entries() []DLQEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DLQEntry(nil), s.entries...)
}
