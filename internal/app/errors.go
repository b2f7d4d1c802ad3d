package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"offboarding/ocm/internal/export"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gitrepo"
	"offboarding/ocm/internal/identity"
	"offboarding/ocm/internal/lifecycle"
	"offboarding/ocm/internal/session"
	"offboarding/ocm/internal/storage"
)

type Kind string

const (
	KindNetwork         Kind = "network"
	KindUnauthenticated Kind = "unauthenticated"
	KindNotFound        Kind = "not_found"
	KindAccessDenied    Kind = "access_denied"
	KindValidation      Kind = "validation"
	KindInvite          Kind = "invite"
	KindBusy            Kind = "busy"
	KindUnavailable     Kind = "unavailable"
	KindUnknown         Kind = "unknown"
)

const genericFailure = "Request failed. Please try again."

// DomainError is what callers show to the user. Detail keeps the backend's own text.
type DomainError struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Detail  string
	Err     error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// HTTPText renders the error the way the lifecycle panel shows it.
func (e *DomainError) HTTPText() string {
	detail := e.Detail
	if detail == "" {
		detail = e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("HTTP %d: %s", e.Status, detail)
	}
	return "HTTP error: " + detail
}

func domainError(kind Kind, status int, code, message string) *DomainError {
	return &DomainError{Kind: kind, Status: status, Code: code, Message: message}
}

type messageRule struct {
	needles []string
	kind    Kind
	code    string
	// message is the user copy; empty means echo the lowercased backend text.
	message string
}

// messageRules is evaluated top to bottom; the first match wins.
var messageRules = []messageRule{
	{[]string{"case not found"}, KindNotFound, "NOT_FOUND", "Not found: case not found."},
	{[]string{"user not found"}, KindNotFound, "NOT_FOUND", "Not found: user not found."},
	{[]string{"org not found", "organization not found"}, KindNotFound, "NOT_FOUND", "Not found: org not found."},
	{[]string{"not found"}, KindNotFound, "NOT_FOUND", "Not found."},
	{[]string{"access denied", "insufficient", "permission"}, KindAccessDenied, "ACCESS_DENIED", "Access denied."},
	{[]string{"reviewer not in org", "reviewer must"}, KindValidation, "REVIEWER_NOT_IN_ORG", "reviewer not in org."},
	{[]string{"invalid role"}, KindValidation, "INVALID_ROLE", ""},
	{[]string{"invalid code"}, KindValidation, "INVALID_CODE", ""},
	{[]string{"multi-org not supported"}, KindValidation, "MULTI_ORG_NOT_SUPPORTED", ""},
	{[]string{"already redeemed"}, KindInvite, "INVITE_REDEEMED", "This invite has already been redeemed."},
	{[]string{"expired"}, KindInvite, "INVITE_EXPIRED", "This invite has expired. Ask for a new code."},
}

// Classify maps any error to a DomainError. Local conditions and transport failures
// are decided first; backend failures are then matched on their message text.
func Classify(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}

	status := gateway.StatusOf(err)
	classified := classify(err, status)
	classified.Err = err
	if classified.Status == 0 {
		classified.Status = status
	}
	return classified
}

func classify(err error, status int) *DomainError {
	switch {
	case errors.Is(err, gateway.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return domainError(KindNetwork, 0, "NETWORK", genericFailure)
	case errors.Is(err, session.ErrNoSession), errors.Is(err, gateway.ErrMissingToken):
		return domainError(KindUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in required.")
	case errors.Is(err, lifecycle.ErrInFlight):
		return domainError(KindBusy, http.StatusConflict, "IN_FLIGHT", "Updating case status...")
	case errors.Is(err, lifecycle.ErrTransitionUnavailable):
		return domainError(KindValidation, http.StatusConflict, "TRANSITION_UNAVAILABLE", "No lifecycle actions available.")
	case errors.Is(err, lifecycle.ErrNotReady):
		message := "Required tasks incomplete."
		var notReady *lifecycle.NotReadyError
		if errors.As(err, &notReady) {
			message = fmt.Sprintf("Required tasks incomplete (%d/%d).", notReady.Summary.RequiredIncompleteCount, notReady.Summary.RequiredCount)
		}
		return domainError(KindValidation, http.StatusConflict, "NOT_READY", message)
	case errors.Is(err, lifecycle.ErrCaseNotVisible):
		return domainError(KindNotFound, http.StatusNotFound, "NOT_FOUND", "Not found: case not found.")
	case errors.Is(err, identity.ErrProfileUnavailable) && status == 0:
		return domainError(KindUnavailable, 0, "PROFILE_UNAVAILABLE", "Profile unavailable. Please try again.")
	case errors.Is(err, gitrepo.ErrNoArchive):
		return domainError(KindNotFound, http.StatusNotFound, "NOT_FOUND", "Not found: no archived snapshot for this case.")
	case errors.Is(err, export.ErrUnsupportedFormat):
		return domainError(KindValidation, http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Export format must be pdf or html.")
	case errors.Is(err, storage.ErrEmptyUpload):
		return domainError(KindValidation, http.StatusBadRequest, "EMPTY_UPLOAD", "Attachment is empty.")
	case errors.Is(err, gateway.ErrMissingBackend):
		return domainError(KindUnavailable, 0, "NOT_CONFIGURED", "Backend URL and anon key are not configured.")
	}

	detail := backendDetail(err)
	lowered := strings.ToLower(detail)
	if status == http.StatusUnauthorized || strings.Contains(lowered, "jwt expired") || strings.Contains(lowered, "invalid jwt") {
		de := domainError(KindUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED", "Session expired. Please sign in again.")
		de.Detail = detail
		return de
	}

	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lowered, needle) {
				message := rule.message
				if message == "" {
					message = lowered
				}
				de := domainError(rule.kind, 0, rule.code, message)
				de.Detail = detail
				return de
			}
		}
	}

	kind := KindUnknown
	switch status {
	case http.StatusForbidden:
		kind = KindAccessDenied
	case http.StatusNotFound:
		kind = KindNotFound
	}
	code, message := "REQUEST_FAILED", lowered
	var rpcErr *gateway.RPCError
	if errors.As(err, &rpcErr) {
		// RPC rows keep their code in the text, e.g. "[ORG_LOCKED] Organisation is locked".
		message = rpcErr.Error()
		if rpcErr.Code != "" {
			code = rpcErr.Code
		}
	}
	if message == "" {
		message = genericFailure
	}
	de := domainError(kind, 0, code, message)
	de.Detail = detail
	return de
}

// backendDetail prefers the backend's message over the Go error text.
func backendDetail(err error) string {
	if msg := strings.TrimSpace(gateway.MessageOf(err)); msg != "" {
		return msg
	}
	var httpErr *gateway.Error
	var rpcErr *gateway.RPCError
	if errors.As(err, &httpErr) || errors.As(err, &rpcErr) {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
