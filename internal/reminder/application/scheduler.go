package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	dosing "medtrack/internal/dosing/domain"
	household "medtrack/internal/household/domain"
	inventory "medtrack/internal/inventory/domain"
	"medtrack/internal/observability/metrics"
	reminder "medtrack/internal/reminder/domain"
	schedule "medtrack/internal/schedule/domain"
)

const (
	defaultInterval            = 5 * time.Minute
	defaultMissedCooldown      = time.Hour
	defaultStockCooldown       = 24 * time.Hour
	defaultRenewalCooldown     = 24 * time.Hour
	defaultRenewalLead         = 14 * 24 * time.Hour
	defaultConsumptionEvents   = dosing.DefaultConsumptionEvents
	defaultConsumptionLookback = dosing.DefaultConsumptionLookback
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Scheduler sweeps schedules, inventory and renewals on a periodic tick
// and emits alerts to the sink. Alerts are recomputed from scratch on
// every sweep; the cooldown table is the scheduler's only mutable state.
type Scheduler struct {
	schedules []schedule.Schedule
	people    map[string]household.Person
	meds      map[string]household.Medication
	events    dosing.EventRepository
	ledger    *inventory.Ledger
	sink      reminder.Sink
	clock     Clock
	logger    *log.Logger

	interval            time.Duration
	missedCooldown      time.Duration
	stockCooldown       time.Duration
	renewalCooldown     time.Duration
	renewalLead         time.Duration
	consumptionEvents   int
	consumptionLookback time.Duration

	running  atomic.Bool
	mu       sync.Mutex
	lastSent map[string]time.Time
}

// SchedulerOption customizes the scheduler.
type SchedulerOption func(*Scheduler)

// WithClock assigns a clock.
func WithClock(clock Clock) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithInterval overrides the tick interval.
func WithInterval(interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithMissedCooldown overrides the missed-dose re-notify cooldown.
func WithMissedCooldown(cooldown time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if cooldown > 0 {
			s.missedCooldown = cooldown
		}
	}
}

// WithStockCooldown overrides the low-inventory re-notify cooldown.
func WithStockCooldown(cooldown time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if cooldown > 0 {
			s.stockCooldown = cooldown
		}
	}
}

// WithRenewalCooldown overrides the renewal-due re-notify cooldown.
func WithRenewalCooldown(cooldown time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if cooldown > 0 {
			s.renewalCooldown = cooldown
		}
	}
}

// WithRenewalLead overrides the renewal reminder lead time.
func WithRenewalLead(lead time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if lead > 0 {
			s.renewalLead = lead
		}
	}
}

// WithConsumptionEvents overrides how many recent doses feed the
// consumption rate.
func WithConsumptionEvents(limit int) SchedulerOption {
	return func(s *Scheduler) {
		if limit > 0 {
			s.consumptionEvents = limit
		}
	}
}

// WithConsumptionLookback overrides how far back doses are fetched for
// the consumption rate.
func WithConsumptionLookback(window time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if window > 0 {
			s.consumptionLookback = window
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// NewScheduler constructs a reminder scheduler.
func NewScheduler(
	schedules []schedule.Schedule,
	people map[string]household.Person,
	meds map[string]household.Medication,
	events dosing.EventRepository,
	ledger *inventory.Ledger,
	sink reminder.Sink,
	opts ...SchedulerOption,
) (*Scheduler, error) {
	if events == nil {
		return nil, errors.New("reminder: nil event repository")
	}
	if ledger == nil {
		return nil, errors.New("reminder: nil inventory ledger")
	}
	if sink == nil {
		return nil, errors.New("reminder: nil sink")
	}
	scheduler := &Scheduler{
		schedules:           schedules,
		people:              people,
		meds:                meds,
		events:              events,
		ledger:              ledger,
		sink:                sink,
		clock:               systemClock{},
		interval:            defaultInterval,
		missedCooldown:      defaultMissedCooldown,
		stockCooldown:       defaultStockCooldown,
		renewalCooldown:     defaultRenewalCooldown,
		renewalLead:         defaultRenewalLead,
		consumptionEvents:   defaultConsumptionEvents,
		consumptionLookback: defaultConsumptionLookback,
		lastSent:            make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	return scheduler, nil
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Tick(ctx, now.UTC()); err != nil && s.logger != nil {
				s.logger.Printf("reminder tick error: %v", err)
			}
		}
	}
}

// Tick runs one sweep. Reentrancy is forbidden; an overlapping tick is
// skipped rather than queued.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	if s == nil {
		return errors.New("reminder: nil scheduler")
	}
	if !s.running.CompareAndSwap(false, true) {
		metrics.IncSchedulerSkipped()
		return nil
	}
	defer s.running.Store(false)

	if now.IsZero() {
		now = s.clock.Now()
	}
	now = now.UTC()
	started := time.Now()

	alerts, err := s.Evaluate(ctx, now)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}

	for _, alert := range alerts {
		if !s.pastCooldown(alert, now) {
			continue
		}
		metrics.IncAlert(string(alert.Kind), string(alert.Severity))
		if deliverErr := s.sink.Deliver(ctx, alert); deliverErr != nil {
			// Best effort; the next sweep re-evaluates and re-emits.
			if s.logger != nil {
				s.logger.Printf("alert delivery failed: kind=%s medication=%s err=%v", alert.Kind, alert.MedicationID, deliverErr)
			}
			continue
		}
		s.markSent(alert, now)
	}

	metrics.ObserveSchedulerTick(result, time.Since(started))
	return err
}

// Evaluate recomputes all outstanding alerts at the given instant.
func (s *Scheduler) Evaluate(ctx context.Context, now time.Time) ([]reminder.Alert, error) {
	var alerts []reminder.Alert
	var firstErr error

	missed, err := s.missedDoses(ctx, now)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	alerts = append(alerts, missed...)

	stock, err := s.lowInventory(ctx, now)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	alerts = append(alerts, stock...)

	alerts = append(alerts, s.renewals(now)...)
	return alerts, firstErr
}

func (s *Scheduler) missedDoses(ctx context.Context, now time.Time) ([]reminder.Alert, error) {
	var alerts []reminder.Alert
	var firstErr error

	for _, sched := range s.schedules {
		last, err := s.events.LastAccepted(ctx, sched.PersonID, sched.MedicationID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		var ref time.Time
		switch {
		case last != nil:
			ref = last.RecordedAt
		case sched.Kind == schedule.KindDaily:
			year, month, day := now.Date()
			ref = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		}

		expected := sched.NextExpected(ref)
		// An accepted early dose carries the slot it was taken against in
		// ExpectedAt. That slot counts as served even though NextExpected
		// from the dose's own timestamp still returns it; min-spacing would
		// reject a second scan, so the alert could never be cleared.
		if last != nil && !last.ExpectedAt.IsZero() && !last.ExpectedAt.Before(expected) {
			expected = sched.NextExpected(last.ExpectedAt)
		}
		deadline := expected.Add(sched.Grace)
		if !now.After(deadline) {
			continue
		}

		overdue := now.Sub(deadline)
		alerts = append(alerts, reminder.Alert{
			Kind:         reminder.KindMissedDose,
			PersonID:     sched.PersonID,
			MedicationID: sched.MedicationID,
			Severity:     missedSeverity(overdue, sched.Grace),
			Message: fmt.Sprintf("%s missed the %s dose of %s expected at %s (%s overdue)",
				s.personName(sched.PersonID),
				sched.Kind,
				s.medicationName(sched.MedicationID),
				expected.Format(time.RFC3339),
				overdue.Round(time.Minute)),
			GeneratedAt: now,
		})
	}
	return alerts, firstErr
}

func (s *Scheduler) lowInventory(ctx context.Context, now time.Time) ([]reminder.Alert, error) {
	var alerts []reminder.Alert
	var firstErr error

	for medicationID, med := range s.meds {
		low, err := s.ledger.IsLow(ctx, medicationID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !low {
			continue
		}

		count, err := s.ledger.Count(ctx, medicationID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		rate := s.consumptionRate(ctx, medicationID, now)
		forecast, hasForecast, err := s.ledger.DepletionForecast(ctx, medicationID, rate)
		if err != nil && firstErr == nil {
			firstErr = err
		}

		message := fmt.Sprintf("%s is low: %d units remaining", med.Name, count)
		if hasForecast {
			message += fmt.Sprintf(", projected to run out by %s", forecast.Format("2006-01-02"))
		}
		if med.RefillsRemaining > 0 {
			message += fmt.Sprintf("; %d refills remaining", med.RefillsRemaining)
		} else {
			message += "; no refills remaining, contact the prescriber"
		}

		severity := reminder.SeverityWarning
		if count == 0 {
			severity = reminder.SeverityCritical
		}
		alerts = append(alerts, reminder.Alert{
			Kind:         reminder.KindLowInventory,
			MedicationID: medicationID,
			Severity:     severity,
			Message:      message,
			GeneratedAt:  now,
			ForecastAt:   forecast,
		})
	}
	return alerts, firstErr
}

func (s *Scheduler) renewals(now time.Time) []reminder.Alert {
	var alerts []reminder.Alert
	for medicationID, med := range s.meds {
		if !med.RenewalDue(now, s.renewalLead) {
			continue
		}
		alerts = append(alerts, reminder.Alert{
			Kind:         reminder.KindRenewalDue,
			MedicationID: medicationID,
			Severity:     reminder.SeverityWarning,
			Message: fmt.Sprintf("prescription renewal for %s due by %s",
				med.Name,
				med.LastRenewal.Add(med.RenewalInterval).Format("2006-01-02")),
			GeneratedAt: now,
		})
	}
	return alerts
}

// consumptionRate derives average daily consumption from the last N
// accepted doses of every pair that references the medication.
func (s *Scheduler) consumptionRate(ctx context.Context, medicationID string, now time.Time) float64 {
	since := now.Add(-s.consumptionLookback)
	var history []dosing.DoseEvent
	for _, sched := range s.schedules {
		if sched.MedicationID != medicationID {
			continue
		}
		events, err := s.events.ListAcceptedSince(ctx, sched.PersonID, sched.MedicationID, since)
		if err != nil {
			continue
		}
		history = append(history, events...)
	}
	return dosing.ConsumptionRate(history, s.consumptionEvents, now)
}

func (s *Scheduler) pastCooldown(alert reminder.Alert, now time.Time) bool {
	cooldown := s.cooldownFor(alert.Kind)
	if cooldown <= 0 {
		return true
	}
	s.mu.Lock()
	sentAt, ok := s.lastSent[alert.Key()]
	s.mu.Unlock()
	if !ok {
		return true
	}
	return now.Sub(sentAt) >= cooldown
}

func (s *Scheduler) markSent(alert reminder.Alert, now time.Time) {
	s.mu.Lock()
	s.lastSent[alert.Key()] = now
	s.mu.Unlock()
}

func (s *Scheduler) cooldownFor(kind reminder.Kind) time.Duration {
	switch kind {
	case reminder.KindMissedDose:
		return s.missedCooldown
	case reminder.KindLowInventory:
		return s.stockCooldown
	case reminder.KindRenewalDue:
		return s.renewalCooldown
	default:
		return 0
	}
}

func (s *Scheduler) personName(personID string) string {
	if person, ok := s.people[personID]; ok && person.Name != "" {
		return person.Name
	}
	return personID
}

func (s *Scheduler) medicationName(medicationID string) string {
	if med, ok := s.meds[medicationID]; ok && med.Name != "" {
		return med.Name
	}
	return medicationID
}

func missedSeverity(overdue, grace time.Duration) reminder.Severity {
	if grace <= 0 {
		return reminder.SeverityWarning
	}
	switch {
	case overdue >= 4*grace:
		return reminder.SeverityCritical
	case overdue >= 2*grace:
		return reminder.SeverityWarning
	default:
		return reminder.SeverityInfo
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
