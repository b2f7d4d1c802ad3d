// Package export renders a printable offboarding case report as HTML or PDF.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/readiness"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat accepts "pdf" or "html" in any case. Empty means PDF.
func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// Report is everything the case report shows. The caller assembles it from
// fresh reads; export does no I/O against the backend.
type Report struct {
	Case        gateway.CaseRecord
	StatusLabel string
	Tasks       []gateway.Task
	Readiness   readiness.Panel
	Audit       audit.Trail
	OrgName     string
	GeneratedBy string
	GeneratedAt time.Time
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing means no Chrome/Chromium binary was found.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
