package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Service renders case reports.
type Service struct {
	logger *zap.Logger
	pdf    func(ctx context.Context, html string) ([]byte, error)
	now    func() time.Time
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger.Named("export"), pdf: printPDF, now: time.Now}
}

// Export renders r in the requested format. When PDF is requested and no
// Chrome binary is available the HTML report is returned instead, together
// with an error wrapping ErrPDFDependencyMissing.
func (s *Service) Export(ctx context.Context, r Report, format Format) (*Result, error) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = s.now()
	}
	html, err := RenderHTML(r)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	base := sanitizeFilename(reportTitle(r))

	htmlResult := &Result{Data: []byte(html), Filename: base + ".html", MimeType: "text/html; charset=utf-8"}
	switch format {
	case FormatHTML:
		return htmlResult, nil
	case FormatPDF:
		start := time.Now()
		data, err := s.pdf(ctx, html)
		if errors.Is(err, ErrPDFDependencyMissing) {
			s.logger.Warn("pdf export unavailable, returning html", zap.String("case_id", r.Case.ID))
			return htmlResult, err
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("case report exported",
			zap.String("case_id", r.Case.ID),
			zap.Int("bytes", len(data)),
			zap.Duration("duration", time.Since(start)),
		)
		return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// sanitizeFilename creates a safe filename from a title.
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	result := b.String()
	if len(result) > 60 {
		result = result[:60]
	}
	if result == "" {
		result = "case-report"
	}
	return result
}
