package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Medication {{.KindLabel}}]
{{ if .Person }}Person: {{.Person}}
{{ end }}Medication: {{.Medication}}
Severity: {{.Severity}}
{{.Message}}
Generated: {{.Generated}}
{{ if .Forecast }}Depletion Forecast: {{.Forecast}}
{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Person       string
	PersonID     string
	Medication   string
	MedicationID string
	Kind         string
	KindLabel    string
	Severity     string
	Message      string
	Generated    string
	Forecast     string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
