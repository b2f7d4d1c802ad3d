// Package email sends reviewer assignment notices over SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"offboarding/ocm/internal/util"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
	logger *zap.Logger
}

func NewService(config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		logger: logger.Named("email"),
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// ReviewerNotice tells a reviewer they were assigned to a case.
type ReviewerNotice struct {
	To           string
	CaseID       string
	CaseNo       string
	EmployeeName string
	Status       string
	OrgName      string
	AssignedBy   string
	CaseURL      string
}

func (n ReviewerNotice) subject() string {
	ref := n.CaseNo
	if ref == "" {
		ref = n.CaseID
	}
	return fmt.Sprintf("Offboarding review assigned: %s (%s)", n.EmployeeName, ref)
}

// SendReviewerNotice emails the assigned reviewer. ctx only gates the start
// of the send; net/smtp has no cancellation.
func (s *Service) SendReviewerNotice(ctx context.Context, n ReviewerNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	html, err := renderTemplate(reviewerNoticeTemplate, n)
	if err != nil {
		return fmt.Errorf("render reviewer notice: %w", err)
	}
	text := fmt.Sprintf("You have been assigned to review the offboarding case for %s.\r\nCase: %s\r\nStatus: %s\r\n",
		n.EmployeeName, firstNonEmpty(n.CaseNo, n.CaseID), n.Status)
	if n.CaseURL != "" {
		text += "Open: " + n.CaseURL + "\r\n"
	}
	if err := s.SendHTMLEmail([]string{n.To}, n.subject(), text, html); err != nil {
		return err
	}
	s.logger.Info("reviewer notice sent", zap.String("case_id", n.CaseID))
	return nil
}

// SendHTMLEmail sends a multipart/alternative message with a text and an HTML part.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	for _, addr := range to {
		if _, err := mail.ParseAddress(addr); err != nil {
			return fmt.Errorf("invalid recipient %q: %w", addr, err)
		}
	}
	msg := s.buildMessage(to, subject, textBody, htmlBody, "ocm-"+util.NewObjectID())
	return s.send(s.server, s.auth, s.config.From, to, msg)
}

func (s *Service) buildMessage(to []string, subject, textBody, htmlBody, boundary string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = (&mail.Address{Name: s.config.FromName, Address: s.config.From}).String()
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

const reviewerNoticeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Offboarding review assigned</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #3e4c59; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #3e4c59; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        dt { color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Offboarding Case Manager</h1>
    </div>

    <p>You have been assigned as reviewer for the offboarding case of <strong>{{.EmployeeName}}</strong>{{if .OrgName}} in {{.OrgName}}{{end}}.</p>

    <dl>
        <dt>Case</dt><dd>{{if .CaseNo}}{{.CaseNo}}{{else}}{{.CaseID}}{{end}}</dd>
        {{if .Status}}<dt>Status</dt><dd>{{.Status}}</dd>{{end}}
        {{if .AssignedBy}}<dt>Assigned by</dt><dd>{{.AssignedBy}}</dd>{{end}}
    </dl>

    {{if .CaseURL}}<p><a href="{{.CaseURL}}" class="button">Open case</a></p>{{end}}

    <div class="footer">
        <p>Case status changes are recorded by the server; this notice is informational only.</p>
    </div>
</body>
</html>`
