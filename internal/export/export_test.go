package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/readiness"
)

func sampleReport() Report {
	tasks := []gateway.Task{
		{ID: "t1", Title: "Return laptop", Status: "DONE", IsRequired: true},
		{ID: "t2", Title: "Revoke <VPN> access", Status: "open", IsRequired: true},
	}
	return Report{
		Case: gateway.CaseRecord{
			ID:           "c1",
			CaseNo:       "OC-42",
			EmployeeName: "Ada Lovelace",
			Dept:         "Engineering",
			Status:       "under_review",
		},
		Tasks:     tasks,
		Readiness: readiness.Describe(readiness.Summarize(tasks), "under_review"),
		Audit: audit.Trail{
			CaseID: "c1",
			State:  audit.StateLoaded,
			Entries: []gateway.AuditLogEntry{
				{CreatedAt: "2024-01-02T10:00:00Z", Actor: "owner@example.com", Action: "case.transition", EntityType: "case", EntityID: "c1"},
			},
		},
		GeneratedAt: time.Date(2024, 1, 3, 9, 30, 0, 0, time.UTC),
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleReport())
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	for _, want := range []string{
		"Offboarding OC-42: Ada Lovelace",
		"Under Review",
		"Engineering",
		"Return laptop",
		"Revoke &lt;VPN&gt; access",
		"owner@example.com",
		"Jan 3, 2024 09:30 UTC",
		`class="panel blocked"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestRenderHTMLAuditStates(t *testing.T) {
	tests := []struct {
		name  string
		trail audit.Trail
		want  string
	}{
		{name: "empty", trail: audit.Trail{State: audit.StateEmpty}, want: audit.EmptyMessage},
		{name: "failed", trail: audit.Trail{State: audit.StateFailed, Message: "Unable to load audit timeline (403)."}, want: "Unable to load audit timeline (403)."},
		{name: "not loaded", trail: audit.Trail{}, want: "Audit timeline not loaded."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := sampleReport()
			r.Audit = tt.trail
			html, err := RenderHTML(r)
			if err != nil {
				t.Fatalf("RenderHTML: %v", err)
			}
			if !strings.Contains(html, tt.want) {
				t.Fatalf("rendered report missing %q", tt.want)
			}
		})
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(zap.NewNop())
	res, err := svc.Export(context.Background(), sampleReport(), FormatHTML)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Filename != "Offboarding-OC-42-Ada-Lovelace.html" {
		t.Fatalf("filename = %q", res.Filename)
	}
	if !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("mime = %q", res.MimeType)
	}
}

func TestExportPDFFallsBackToHTMLWithoutChrome(t *testing.T) {
	svc := NewService(nil)
	svc.pdf = func(context.Context, string) ([]byte, error) {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}
	res, err := svc.Export(context.Background(), sampleReport(), FormatPDF)
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("err = %v, want ErrPDFDependencyMissing", err)
	}
	if res == nil || !strings.HasSuffix(res.Filename, ".html") {
		t.Fatalf("expected html fallback, got %+v", res)
	}
}

func TestExportPDF(t *testing.T) {
	svc := NewService(nil)
	var rendered string
	svc.pdf = func(_ context.Context, html string) ([]byte, error) {
		rendered = html
		return []byte("%PDF-1.7"), nil
	}
	res, err := svc.Export(context.Background(), sampleReport(), FormatPDF)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.MimeType != "application/pdf" || string(res.Data) != "%PDF-1.7" {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(rendered, "Ada Lovelace") {
		t.Fatalf("pdf renderer did not receive the report html")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatPDF},
		{in: "PDF", want: FormatPDF},
		{in: " html ", want: FormatHTML},
		{in: "docx", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseFormat(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDataURLEncoding(t *testing.T) {
	got := dataURL("<p>a b</p>")
	want := "data:text/html;charset=utf-8,%3Cp%3Ea%20b%3C%2Fp%3E"
	if got != want {
		t.Fatalf("dataURL = %q, want %q", got, want)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Offboarding: Ada": "Offboarding-Ada",
		"":                 "case-report",
		"***":              "case-report",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
