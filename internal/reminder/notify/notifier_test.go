package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	household "medtrack/internal/household/domain"
	reminder "medtrack/internal/reminder/domain"
)

type recordingChannel struct {
	sent []string
	err  error
}

func (r *recordingChannel) Send(_ context.Context, content string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, content)
	return nil
}

func sampleAlert() reminder.Alert {
	return reminder.Alert{
		Kind:         reminder.KindLowInventory,
		MedicationID: "ibuprofen",
		Severity:     reminder.SeverityWarning,
		Message:      "Ibuprofen is low: 4 units remaining",
		GeneratedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		ForecastAt:   time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestDeliverRendersNames(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil, WithHousehold(
		map[string]household.Person{"alice": {ID: "alice", Name: "Alice"}},
		map[string]household.Medication{"ibuprofen": {ID: "ibuprofen", Name: "Ibuprofen"}},
	))
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	alert := sampleAlert()
	alert.Kind = reminder.KindMissedDose
	alert.PersonID = "alice"
	if err := notifier.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(channel.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(channel.sent))
	}
	content := channel.sent[0]
	if !strings.Contains(content, "Missed Dose") {
		t.Fatalf("content missing kind label: %q", content)
	}
	if !strings.Contains(content, "Alice") || !strings.Contains(content, "Ibuprofen") {
		t.Fatalf("content missing resolved names: %q", content)
	}
}

func TestDeliverIncludesForecast(t *testing.T) {
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Deliver(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !strings.Contains(channel.sent[0], "2026-03-30") {
		t.Fatalf("content missing forecast date: %q", channel.sent[0])
	}
}

func TestDeliverRejectsInvalidAlert(t *testing.T) {
	notifier, err := NewNotifier(&recordingChannel{}, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Deliver(context.Background(), reminder.Alert{}); err == nil {
		t.Fatal("expected validation error for empty alert")
	}
}

func TestDeliverPropagatesChannelError(t *testing.T) {
	channel := &recordingChannel{err: errors.New("boom")}
	notifier, err := NewNotifier(channel, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	if err := notifier.Deliver(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected channel error to surface")
	}
}

func TestWebhookChannelPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	if err := channel.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" || payload.Text.Content != "hello" {
			t.Fatalf("unexpected payload %+v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook payload not received")
	}
}

func TestMultiSinkReturnsFirstError(t *testing.T) {
	good := &recordingChannel{}
	okNotifier, err := NewNotifier(good, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}
	badNotifier, err := NewNotifier(&recordingChannel{err: errors.New("down")}, nil)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	multi := NewMultiSink(badNotifier, okNotifier)
	if err := multi.Deliver(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected first error to surface")
	}
	if len(good.sent) != 1 {
		t.Fatalf("second sink deliveries = %d, want 1", len(good.sent))
	}
}
