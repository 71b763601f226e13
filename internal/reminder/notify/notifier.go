package notify

import (
	"context"
	"errors"
	"time"

	household "medtrack/internal/household/domain"
	"medtrack/internal/observability/metrics"
	reminder "medtrack/internal/reminder/domain"
)

// Notifier renders alerts and delivers them through a channel.
type Notifier struct {
	channel     Channel
	channelName string
	template    *Template
	people      map[string]household.Person
	meds        map[string]household.Medication
}

// Option configures the notifier.
type Option func(*Notifier)

// WithChannelName labels the channel in delivery metrics.
func WithChannelName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.channelName = name
		}
	}
}

// WithHousehold provides name lookups for rendered content.
func WithHousehold(people map[string]household.Person, meds map[string]household.Medication) Option {
	return func(n *Notifier) {
		n.people = people
		n.meds = meds
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:     channel,
		channelName: "webhook",
		template:    template,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Deliver implements reminder.Sink.
func (n *Notifier) Deliver(ctx context.Context, alert reminder.Alert) error {
	if n == nil || n.channel == nil {
		return errors.New("alert notifier: nil channel")
	}
	if err := alert.Validate(); err != nil {
		return err
	}

	content, err := n.template.Render(n.templateData(alert))
	if err != nil {
		return err
	}
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncNotifyDelivery(n.channelName, metrics.ResultError)
		return err
	}
	metrics.IncNotifyDelivery(n.channelName, metrics.ResultSuccess)
	return nil
}

func (n *Notifier) templateData(alert reminder.Alert) TemplateData {
	personName := ""
	if alert.PersonID != "" {
		personName = alert.PersonID
		if person, ok := n.people[alert.PersonID]; ok && person.Name != "" {
			personName = person.Name
		}
	}
	medicationName := alert.MedicationID
	if med, ok := n.meds[alert.MedicationID]; ok && med.Name != "" {
		medicationName = med.Name
	}
	forecast := ""
	if !alert.ForecastAt.IsZero() {
		forecast = alert.ForecastAt.Format("2006-01-02")
	}
	return TemplateData{
		Person:       personName,
		PersonID:     alert.PersonID,
		Medication:   medicationName,
		MedicationID: alert.MedicationID,
		Kind:         string(alert.Kind),
		KindLabel:    kindLabel(alert.Kind),
		Severity:     string(alert.Severity),
		Message:      alert.Message,
		Generated:    alert.GeneratedAt.UTC().Format(time.RFC3339),
		Forecast:     forecast,
	}
}

func kindLabel(kind reminder.Kind) string {
	switch kind {
	case reminder.KindMissedDose:
		return "Missed Dose"
	case reminder.KindDuplicateDose:
		return "Duplicate Dose"
	case reminder.KindUnexpectedDose:
		return "Unexpected Dose"
	case reminder.KindLowInventory:
		return "Low Inventory"
	case reminder.KindRenewalDue:
		return "Renewal Due"
	default:
		return string(kind)
	}
}
