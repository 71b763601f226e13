package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	dosing "medtrack/internal/dosing/domain"
	household "medtrack/internal/household/domain"
	schedule "medtrack/internal/schedule/domain"
)

// BuildDoseHistoryXLSX renders a dose history workbook.
func BuildDoseHistoryXLSX(events []dosing.DoseEvent, people map[string]household.Person, meds map[string]household.Medication) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "doses"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Recorded At", "Person", "Medication", "Source", "Classification", "Expected At", "Units"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, event := range events {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), event.RecordedAt.UTC().Format(time.RFC3339))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), displayName(people, event.PersonID))
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), medicationName(meds, event.MedicationID))
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), string(event.Source))
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), string(event.Classification))
		if !event.ExpectedAt.IsZero() {
			_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), event.ExpectedAt.UTC().Format(time.RFC3339))
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), event.Units)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AdherenceReport is the input for the adherence PDF.
type AdherenceReport struct {
	From      time.Time
	To        time.Time
	Generated time.Time
	Sections  []AdherenceSection
}

// AdherenceSection is one pair's adherence rows.
type AdherenceSection struct {
	Schedule schedule.Schedule
	Person   household.Person
	Med      household.Medication
	Days     []dosing.DayAdherence
}

// BuildAdherencePDF renders a per-pair adherence report.
func BuildAdherencePDF(report AdherenceReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Medication Adherence Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", report.From.Format("2006-01-02"), report.To.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.Generated.Format(time.RFC3339)))
	pdf.Ln(8)

	for _, section := range report.Sections {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 7, fmt.Sprintf("%s / %s", section.Person.Name, section.Med.Name))
		pdf.Ln(7)

		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 6, "Day", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Expected", "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "Accepted", "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, "Status", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, day := range section.Days {
			pdf.CellFormat(40, 6, day.Day.Format("2006-01-02"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%d", day.Expected), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, fmt.Sprintf("%d", day.Accepted), "1", 0, "R", false, 0, "")
			pdf.CellFormat(50, 6, string(day.Status), "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func displayName(people map[string]household.Person, personID string) string {
	if person, ok := people[personID]; ok && person.Name != "" {
		return person.Name
	}
	return personID
}

func medicationName(meds map[string]household.Medication, medicationID string) string {
	if med, ok := meds[medicationID]; ok && med.Name != "" {
		return med.Name
	}
	return medicationID
}
