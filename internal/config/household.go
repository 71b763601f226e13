package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	household "medtrack/internal/household/domain"
	schedule "medtrack/internal/schedule/domain"
)

// HouseholdFile is the on-disk household definition.
type HouseholdFile struct {
	HouseholdID string            `yaml:"household_id"`
	People      []PersonEntry     `yaml:"people"`
	Medications []MedicationEntry `yaml:"medications"`
	Schedules   []ScheduleEntry   `yaml:"schedules"`
	Bindings    []BindingEntry    `yaml:"bindings"`
}

// PersonEntry defines one household member.
type PersonEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MedicationEntry defines one tracked medication.
type MedicationEntry struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	DoseUnits         int    `yaml:"dose_units"`
	UnitsPerContainer int    `yaml:"units_per_container"`
	LowStockThreshold int    `yaml:"low_stock_threshold"`
	RefillsRemaining  int    `yaml:"refills_remaining"`
	RenewalInterval   string `yaml:"renewal_interval"`
	LastRenewal       string `yaml:"last_renewal"`
}

// ScheduleEntry defines the dosing cadence for one pair.
type ScheduleEntry struct {
	PersonID     string   `yaml:"person_id"`
	MedicationID string   `yaml:"medication_id"`
	Kind         string   `yaml:"kind"`
	Times        []string `yaml:"times"`
	Every        string   `yaml:"every"`
	Anchor       string   `yaml:"anchor"`
	Grace        string   `yaml:"grace"`
	GraceBefore  string   `yaml:"grace_before"`
	MinSpacing   string   `yaml:"min_spacing"`
}

// BindingEntry maps an NFC tag to a pair.
type BindingEntry struct {
	TagID        string `yaml:"tag_id"`
	PersonID     string `yaml:"person_id"`
	MedicationID string `yaml:"medication_id"`
}

// Household is the validated runtime form of a household file.
type Household struct {
	HouseholdID string
	People      map[string]household.Person
	Medications map[string]household.Medication
	Schedules   []schedule.Schedule
	Bindings    []household.TagBinding
}

// LoadHousehold reads and validates a household yaml file.
func LoadHousehold(path string) (Household, error) {
	if path == "" {
		return Household{}, errors.New("config: household path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Household{}, err
	}
	var file HouseholdFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Household{}, fmt.Errorf("config: parse household: %w", err)
	}
	return file.Build()
}

// Build converts the file form into validated domain objects.
func (f HouseholdFile) Build() (Household, error) {
	out := Household{
		HouseholdID: f.HouseholdID,
		People:      make(map[string]household.Person, len(f.People)),
		Medications: make(map[string]household.Medication, len(f.Medications)),
	}
	if out.HouseholdID == "" {
		out.HouseholdID = "household-default"
	}

	for _, entry := range f.People {
		person := household.Person{ID: entry.ID, Name: entry.Name}
		if err := person.Validate(); err != nil {
			return Household{}, err
		}
		if _, exists := out.People[person.ID]; exists {
			return Household{}, fmt.Errorf("config: duplicate person %q", person.ID)
		}
		out.People[person.ID] = person
	}

	for _, entry := range f.Medications {
		med := household.Medication{
			ID:                entry.ID,
			Name:              entry.Name,
			DoseUnits:         entry.DoseUnits,
			UnitsPerContainer: entry.UnitsPerContainer,
			LowStockThreshold: entry.LowStockThreshold,
			RefillsRemaining:  entry.RefillsRemaining,
		}
		if entry.RenewalInterval != "" {
			interval, err := time.ParseDuration(entry.RenewalInterval)
			if err != nil {
				return Household{}, fmt.Errorf("config: medication %q renewal interval: %w", entry.ID, err)
			}
			med.RenewalInterval = interval
		}
		if entry.LastRenewal != "" {
			renewal, err := parseDate(entry.LastRenewal)
			if err != nil {
				return Household{}, fmt.Errorf("config: medication %q last renewal: %w", entry.ID, err)
			}
			med.LastRenewal = renewal
		}
		if err := med.Validate(); err != nil {
			return Household{}, err
		}
		if _, exists := out.Medications[med.ID]; exists {
			return Household{}, fmt.Errorf("config: duplicate medication %q", med.ID)
		}
		out.Medications[med.ID] = med
	}

	seenPairs := make(map[string]struct{}, len(f.Schedules))
	for _, entry := range f.Schedules {
		sched, err := entry.build()
		if err != nil {
			return Household{}, err
		}
		if _, ok := out.People[sched.PersonID]; !ok {
			return Household{}, fmt.Errorf("config: schedule references unknown person %q", sched.PersonID)
		}
		if _, ok := out.Medications[sched.MedicationID]; !ok {
			return Household{}, fmt.Errorf("config: schedule references unknown medication %q", sched.MedicationID)
		}
		key := sched.PairKey()
		if _, exists := seenPairs[key]; exists {
			return Household{}, fmt.Errorf("config: duplicate schedule for pair %s", key)
		}
		seenPairs[key] = struct{}{}
		out.Schedules = append(out.Schedules, sched)
	}

	seenTags := make(map[string]struct{}, len(f.Bindings))
	for _, entry := range f.Bindings {
		binding := household.TagBinding{
			TagID:        entry.TagID,
			PersonID:     entry.PersonID,
			MedicationID: entry.MedicationID,
		}
		if err := binding.Validate(); err != nil {
			return Household{}, err
		}
		if _, ok := out.People[binding.PersonID]; !ok {
			return Household{}, fmt.Errorf("config: binding %q references unknown person %q", binding.TagID, binding.PersonID)
		}
		if _, ok := out.Medications[binding.MedicationID]; !ok {
			return Household{}, fmt.Errorf("config: binding %q references unknown medication %q", binding.TagID, binding.MedicationID)
		}
		if _, exists := seenTags[binding.TagID]; exists {
			return Household{}, fmt.Errorf("config: duplicate tag binding %q", binding.TagID)
		}
		seenTags[binding.TagID] = struct{}{}
		out.Bindings = append(out.Bindings, binding)
	}

	return out, nil
}

// Resolver builds a tag resolver from the configured bindings.
func (h Household) Resolver() *household.StaticTagResolver {
	return household.NewStaticTagResolver(h.Bindings)
}

func (e ScheduleEntry) build() (schedule.Schedule, error) {
	sched := schedule.Schedule{
		PersonID:     e.PersonID,
		MedicationID: e.MedicationID,
		Kind:         schedule.Kind(e.Kind),
	}
	for _, raw := range e.Times {
		tod, err := schedule.ParseTimeOfDay(raw)
		if err != nil {
			return schedule.Schedule{}, err
		}
		sched.Times = append(sched.Times, tod)
	}
	var err error
	if sched.Every, err = parseOptionalDuration(e.Every); err != nil {
		return schedule.Schedule{}, fmt.Errorf("config: schedule %s/%s every: %w", e.PersonID, e.MedicationID, err)
	}
	if sched.Grace, err = parseOptionalDuration(e.Grace); err != nil {
		return schedule.Schedule{}, fmt.Errorf("config: schedule %s/%s grace: %w", e.PersonID, e.MedicationID, err)
	}
	if sched.GraceBefore, err = parseOptionalDuration(e.GraceBefore); err != nil {
		return schedule.Schedule{}, fmt.Errorf("config: schedule %s/%s grace_before: %w", e.PersonID, e.MedicationID, err)
	}
	if sched.MinSpacing, err = parseOptionalDuration(e.MinSpacing); err != nil {
		return schedule.Schedule{}, fmt.Errorf("config: schedule %s/%s min_spacing: %w", e.PersonID, e.MedicationID, err)
	}
	if e.Anchor != "" {
		if sched.Anchor, err = parseDate(e.Anchor); err != nil {
			return schedule.Schedule{}, fmt.Errorf("config: schedule %s/%s anchor: %w", e.PersonID, e.MedicationID, err)
		}
	}
	if err := sched.Validate(); err != nil {
		return schedule.Schedule{}, err
	}
	return sched, nil
}

func parseOptionalDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
