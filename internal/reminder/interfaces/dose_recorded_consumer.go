package interfaces

import (
	"context"
	"fmt"
	"log"

	"medtrack/internal/dosing/application/events"
	dosing "medtrack/internal/dosing/domain"
	"medtrack/internal/eventing"
	"medtrack/internal/eventing/eventbus"
	reminder "medtrack/internal/reminder/domain"
)

const doseRecordedConsumerName = "reminder-dose-recorded"

// DoseRecordedConsumer raises immediate alerts from the dose event stream:
// a warning for duplicate doses and an informational alert for doses that
// no schedule predicted.
type DoseRecordedConsumer struct {
	sink   reminder.Sink
	logger *log.Logger
}

// NewDoseRecordedConsumer constructs a consumer.
func NewDoseRecordedConsumer(sink reminder.Sink, logger *log.Logger) *DoseRecordedConsumer {
	return &DoseRecordedConsumer{sink: sink, logger: logger}
}

// Register subscribes the consumer with idempotency when a store is given.
func (c *DoseRecordedConsumer) Register(bus eventbus.EventBus, store eventing.ProcessedStore) {
	if c == nil || bus == nil {
		return
	}
	eventing.Subscribe(bus, eventbus.EventTypeOf[events.DoseRecorded](), doseRecordedConsumerName, c.handle, store)
}

func (c *DoseRecordedConsumer) handle(ctx context.Context, event any) error {
	evt, ok := event.(events.DoseRecorded)
	if !ok {
		return nil
	}

	var alert reminder.Alert
	switch dosing.Classification(evt.Classification) {
	case dosing.ClassificationDuplicate:
		alert = reminder.Alert{
			Kind:         reminder.KindDuplicateDose,
			PersonID:     evt.PersonID,
			MedicationID: evt.MedicationID,
			Severity:     reminder.SeverityWarning,
			Message:      fmt.Sprintf("duplicate dose of %s recorded at %s; inventory was not decremented", evt.MedicationID, evt.RecordedAt.Format("15:04")),
			GeneratedAt:  evt.OccurredAt,
		}
	case dosing.ClassificationUnexpected:
		alert = reminder.Alert{
			Kind:         reminder.KindUnexpectedDose,
			PersonID:     evt.PersonID,
			MedicationID: evt.MedicationID,
			Severity:     reminder.SeverityInfo,
			Message:      fmt.Sprintf("unscheduled dose of %s recorded at %s", evt.MedicationID, evt.RecordedAt.Format("15:04")),
			GeneratedAt:  evt.OccurredAt,
		}
	default:
		return nil
	}

	if c.sink == nil {
		return nil
	}
	if err := c.sink.Deliver(ctx, alert); err != nil {
		if c.logger != nil {
			c.logger.Printf("dose alert delivery failed: %v", err)
		}
		return err
	}
	return nil
}
