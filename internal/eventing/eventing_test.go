package eventing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medtrack/internal/eventing"
	"medtrack/internal/eventing/eventbus"
	eventingmem "medtrack/internal/eventing/infrastructure/memory"
)

type noteAdded struct {
	NoteID     string    `json:"note_id"`
	PersonID   string    `json:"person_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func TestBuildEnvelopeExtractsMetadata(t *testing.T) {
	occurred := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	env, err := eventing.BuildEnvelope(noteAdded{NoteID: "n-1", PersonID: "alice", OccurredAt: occurred}, eventing.Meta{HouseholdID: "home-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != "eventing_test.noteAdded" {
		t.Fatalf("event type = %q", env.EventType)
	}
	if env.PersonID != "alice" {
		t.Fatalf("person id = %q, want alice", env.PersonID)
	}
	if !env.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred at = %s", env.OccurredAt)
	}
	if env.HouseholdID != "home-1" || env.EventID == "" || env.CorrelationID != env.EventID {
		t.Fatalf("envelope meta = %+v", env)
	}
	if env.SchemaVersion != 1 {
		t.Fatalf("schema version = %d", env.SchemaVersion)
	}
}

func TestRegistryDecodeRoundTrip(t *testing.T) {
	registry := eventing.NewRegistry()
	registry.Register(noteAdded{})

	env, err := eventing.BuildEnvelope(noteAdded{NoteID: "n-1", PersonID: "alice"}, eventing.Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	decoded, err := registry.DecodePayload(env)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	event, ok := decoded.(noteAdded)
	if !ok {
		t.Fatalf("decoded type %T", decoded)
	}
	if event.NoteID != "n-1" || event.PersonID != "alice" {
		t.Fatalf("decoded = %+v", event)
	}
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	registry := eventing.NewRegistry()
	if registry.Knows("nope") {
		t.Fatal("empty registry must not know any type")
	}
	if _, err := registry.DecodePayload(eventing.Envelope{EventType: "nope"}); err == nil {
		t.Fatal("expected unknown type error")
	}
	registry.Register(noteAdded{})
	if !registry.Knows("eventing_test.noteAdded") {
		t.Fatal("registered type must be known")
	}
}

func TestOutboxPublishDispatchesToBus(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(noteAdded{})

	outbox := eventingmem.NewOutboxStore()
	dlq := eventingmem.NewDLQStore()
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq)
	publisher := eventing.NewPublisher(outbox, dispatcher, "home-1", bus)

	var got []noteAdded
	eventing.Subscribe(bus, eventbus.EventTypeOf[noteAdded](), "test.notes", func(ctx context.Context, event any) error {
		evt, ok := event.(noteAdded)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		got = append(got, evt)
		return nil
	}, eventingmem.NewProcessedStore())

	if err := publisher.Publish(context.Background(), noteAdded{NoteID: "n-1", PersonID: "alice"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0].NoteID != "n-1" {
		t.Fatalf("got = %+v", got)
	}

	pending, err := outbox.ListPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %d, want 0 after dispatch", len(pending))
	}
	if entries := dlq.Entries(); len(entries) != 0 {
		t.Fatalf("dlq entries = %d, want 0", len(entries))
	}
}

func TestDispatcherRoutesUnknownTypeToDLQ(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()

	outbox := eventingmem.NewOutboxStore()
	dlq := eventingmem.NewDLQStore()
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq)
	publisher := eventing.NewPublisher(outbox, dispatcher, "home-1", bus)

	if err := publisher.Publish(context.Background(), noteAdded{NoteID: "n-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entries := dlq.Entries()
	if len(entries) != 1 {
		t.Fatalf("dlq entries = %d, want 1", len(entries))
	}
	if entries[0].Envelope.EventType != "eventing_test.noteAdded" {
		t.Fatalf("dlq envelope = %+v", entries[0].Envelope)
	}
}

func TestSubscribeSkipsProcessedEvents(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	store := eventingmem.NewProcessedStore()

	calls := 0
	eventing.Subscribe(bus, eventbus.EventTypeOf[noteAdded](), "test.idem", func(ctx context.Context, event any) error {
		calls++
		return nil
	}, store)

	env := eventing.Envelope{EventID: "evt-1"}
	ctx := eventing.WithEnvelope(context.Background(), env)
	for i := 0; i < 2; i++ {
		if err := bus.Publish(ctx, noteAdded{NoteID: "n-1"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
}

func TestSubscribeRetriesFailedHandler(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	store := eventingmem.NewProcessedStore()

	calls := 0
	eventing.Subscribe(bus, eventbus.EventTypeOf[noteAdded](), "test.retry", func(ctx context.Context, event any) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, store)

	ctx := eventing.WithEnvelope(context.Background(), eventing.Envelope{EventID: "evt-2"})
	if err := bus.Publish(ctx, noteAdded{}); err == nil {
		t.Fatal("expected first publish to surface handler error")
	}
	if err := bus.Publish(ctx, noteAdded{}); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}
