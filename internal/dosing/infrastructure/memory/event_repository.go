package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	dosing "medtrack/internal/dosing/domain"
)

// EventRepository is an in-memory dose-history log for demo/testing.
type EventRepository struct {
	mu     sync.RWMutex
	events []dosing.DoseEvent
}

// NewEventRepository constructs a repository.
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

// Append appends an event to the log.
func (r *EventRepository) Append(ctx context.Context, event *dosing.DoseEvent) error {
	_ = ctx
	if event == nil {
		return errors.New("dose event repo: nil event")
	}
	if err := event.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, *event)
	r.mu.Unlock()
	return nil
}

// LastAccepted returns the most recent accepted event for a pair, or nil.
func (r *EventRepository) LastAccepted(ctx context.Context, personID, medicationID string) (*dosing.DoseEvent, error) {
	_ = ctx
	if personID == "" || medicationID == "" {
		return nil, errors.New("dose event repo: empty pair")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *dosing.DoseEvent
	for i := range r.events {
		event := r.events[i]
		if event.PersonID != personID || event.MedicationID != medicationID || !event.Accepted() {
			continue
		}
		if last == nil || event.RecordedAt.After(last.RecordedAt) {
			copy := event
			last = &copy
		}
	}
	return last, nil
}

// ListAcceptedSince returns accepted pair events at or after since.
func (r *EventRepository) ListAcceptedSince(ctx context.Context, personID, medicationID string, since time.Time) ([]dosing.DoseEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []dosing.DoseEvent
	for _, event := range r.events {
		if event.PersonID != personID || event.MedicationID != medicationID || !event.Accepted() {
			continue
		}
		if event.RecordedAt.Before(since) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// List returns all events inside [from, to), oldest first.
func (r *EventRepository) List(ctx context.Context, from, to time.Time) ([]dosing.DoseEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []dosing.DoseEvent
	for _, event := range r.events {
		if !from.IsZero() && event.RecordedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !event.RecordedAt.Before(to) {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}
