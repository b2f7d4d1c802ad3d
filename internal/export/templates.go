package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/readiness"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("case_report.html").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("Jan 2, 2006 15:04 UTC")
	},
}).ParseFS(templateFS, "templates/case_report.html"))

// TemplateData is the view model handed to the report template.
type TemplateData struct {
	Report
	Title          string
	ReadinessClass string
	AuditRows      []audit.Row
	AuditMessage   string
}

func newTemplateData(r Report) TemplateData {
	data := TemplateData{
		Report:    r,
		Title:     reportTitle(r),
		AuditRows: r.Audit.Rows,
	}
	if data.StatusLabel == "" {
		data.StatusLabel = readiness.FormatStatus(r.Case.Status)
	}
	if summary := r.Readiness.Summary; r.Readiness.Available && summary != nil {
		data.ReadinessClass = "blocked"
		if summary.Ready() {
			data.ReadinessClass = "ready"
		}
	}
	switch r.Audit.State {
	case audit.StateLoaded:
		if len(data.AuditRows) == 0 {
			for _, entry := range r.Audit.Entries {
				data.AuditRows = append(data.AuditRows, audit.FormatRow(entry))
			}
		}
	case audit.StateEmpty:
		data.AuditMessage = audit.EmptyMessage
	default:
		data.AuditMessage = r.Audit.Message
		if data.AuditMessage == "" {
			data.AuditMessage = "Audit timeline not loaded."
		}
	}
	return data
}

func reportTitle(r Report) string {
	name := strings.TrimSpace(r.Case.EmployeeName)
	if name == "" {
		name = r.Case.ID
	}
	if r.Case.CaseNo != "" {
		return "Offboarding " + r.Case.CaseNo + ": " + name
	}
	return "Offboarding: " + name
}

// RenderHTML renders the case report.
func RenderHTML(r Report) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, newTemplateData(r)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
