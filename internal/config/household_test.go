package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	schedule "medtrack/internal/schedule/domain"
)

const sampleHousehold = `household_id: home-1
people:
  - id: alice
    name: Alice
medications:
  - id: ibuprofen
    name: Ibuprofen
    dose_units: 1
    units_per_container: 30
    low_stock_threshold: 5
    refills_remaining: 2
    renewal_interval: 2160h
    last_renewal: 2026-01-15
schedules:
  - person_id: alice
    medication_id: ibuprofen
    kind: daily
    times: ["08:00", "20:00"]
    grace: 30m
    grace_before: 15m
    min_spacing: 4h
bindings:
  - tag_id: tag-1
    person_id: alice
    medication_id: ibuprofen
`

func writeTempHousehold(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "household.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write household file: %v", err)
	}
	return path
}

func TestLoadHousehold(t *testing.T) {
	hh, err := LoadHousehold(writeTempHousehold(t, sampleHousehold))
	if err != nil {
		t.Fatalf("load household: %v", err)
	}
	if hh.HouseholdID != "home-1" {
		t.Fatalf("household id = %q, want home-1", hh.HouseholdID)
	}
	if len(hh.People) != 1 || hh.People["alice"].Name != "Alice" {
		t.Fatalf("people = %+v", hh.People)
	}
	med, ok := hh.Medications["ibuprofen"]
	if !ok {
		t.Fatal("ibuprofen missing")
	}
	if med.RenewalInterval != 2160*time.Hour {
		t.Fatalf("renewal interval = %s", med.RenewalInterval)
	}
	if med.LastRenewal != time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("last renewal = %s", med.LastRenewal)
	}
	if len(hh.Schedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(hh.Schedules))
	}
	sched := hh.Schedules[0]
	if sched.Kind != schedule.KindDaily || len(sched.Times) != 2 {
		t.Fatalf("schedule = %+v", sched)
	}
	if sched.Grace != 30*time.Minute || sched.GraceBefore != 15*time.Minute || sched.MinSpacing != 4*time.Hour {
		t.Fatalf("schedule windows = %+v", sched)
	}

	binding, ok := hh.Resolver().Resolve("tag-1")
	if !ok {
		t.Fatal("tag-1 not resolvable")
	}
	if binding.PersonID != "alice" || binding.MedicationID != "ibuprofen" {
		t.Fatalf("binding = %+v", binding)
	}
}

func TestLoadHouseholdRejectsUnknownPerson(t *testing.T) {
	content := strings.Replace(sampleHousehold, "person_id: alice\n    medication_id: ibuprofen\n    kind: daily", "person_id: ghost\n    medication_id: ibuprofen\n    kind: daily", 1)
	_, err := LoadHousehold(writeTempHousehold(t, content))
	if err == nil || !strings.Contains(err.Error(), "unknown person") {
		t.Fatalf("err = %v, want unknown person", err)
	}
}

func TestLoadHouseholdRejectsInvalidSchedule(t *testing.T) {
	content := strings.Replace(sampleHousehold, "min_spacing: 4h", "min_spacing: 45m", 1)
	_, err := LoadHousehold(writeTempHousehold(t, content))
	if err == nil {
		t.Fatal("expected grace/min-spacing validation error")
	}
	if !strings.Contains(err.Error(), schedule.ErrInvalidSchedule.Error()) {
		t.Fatalf("err = %v, want invalid schedule", err)
	}
}

func TestLoadHouseholdRejectsDuplicateTag(t *testing.T) {
	content := sampleHousehold + `  - tag_id: tag-1
    person_id: alice
    medication_id: ibuprofen
`
	_, err := LoadHousehold(writeTempHousehold(t, content))
	if err == nil || !strings.Contains(err.Error(), "duplicate tag binding") {
		t.Fatalf("err = %v, want duplicate tag binding", err)
	}
}

func TestBuildDefaultsHouseholdID(t *testing.T) {
	hh, err := HouseholdFile{}.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if hh.HouseholdID != "household-default" {
		t.Fatalf("household id = %q", hh.HouseholdID)
	}
}
