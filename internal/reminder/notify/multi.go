package notify

import (
	"context"

	reminder "medtrack/internal/reminder/domain"
)

// MultiSink fans alerts out to multiple sinks.
type MultiSink struct {
	sinks []reminder.Sink
}

// NewMultiSink constructs a MultiSink.
func NewMultiSink(sinks ...reminder.Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Deliver forwards the alert to all sinks, returning the first failure.
func (m *MultiSink) Deliver(ctx context.Context, alert reminder.Alert) error {
	if m == nil {
		return nil
	}
	var firstErr error
	for _, sink := range m.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Deliver(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
