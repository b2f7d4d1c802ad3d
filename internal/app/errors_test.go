package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gitrepo"
	"offboarding/ocm/internal/lifecycle"
	"offboarding/ocm/internal/readiness"
	"offboarding/ocm/internal/session"
)

func httpErr(status int, message string) error {
	payload, _ := json.Marshal(map[string]string{"message": message})
	return &gateway.Error{Status: status, Payload: payload, Message: message}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		code    string
		message string
	}{
		{"network", fmt.Errorf("cases.list: %w", gateway.ErrNetwork), KindNetwork, "NETWORK", genericFailure},
		{"deadline", context.DeadlineExceeded, KindNetwork, "NETWORK", genericFailure},
		{"no session", session.ErrNoSession, KindUnauthenticated, "UNAUTHENTICATED", "Sign in required."},
		{"401", httpErr(http.StatusUnauthorized, "nope"), KindUnauthenticated, "UNAUTHENTICATED", "Session expired. Please sign in again."},
		{"jwt expired text", httpErr(http.StatusBadRequest, "JWT expired"), KindUnauthenticated, "UNAUTHENTICATED", "Session expired. Please sign in again."},
		{"case not found", httpErr(http.StatusBadRequest, "Case not found"), KindNotFound, "NOT_FOUND", "Not found: case not found."},
		{"not found beats access denied", httpErr(http.StatusForbidden, "access denied: case not found"), KindNotFound, "NOT_FOUND", "Not found: case not found."},
		{"access denied", httpErr(http.StatusBadRequest, "Access denied for org"), KindAccessDenied, "ACCESS_DENIED", "Access denied."},
		{"insufficient", httpErr(http.StatusBadRequest, "insufficient privilege"), KindAccessDenied, "ACCESS_DENIED", "Access denied."},
		{"reviewer not in org", httpErr(http.StatusBadRequest, "Reviewer not in org"), KindValidation, "REVIEWER_NOT_IN_ORG", "reviewer not in org."},
		{"invalid role echoes", httpErr(http.StatusBadRequest, "Invalid role: boss"), KindValidation, "INVALID_ROLE", "invalid role: boss"},
		{"redeemed", httpErr(http.StatusBadRequest, "Invite already redeemed"), KindInvite, "INVITE_REDEEMED", "This invite has already been redeemed."},
		{"expired invite", httpErr(http.StatusBadRequest, "Invite code expired"), KindInvite, "INVITE_EXPIRED", "This invite has expired. Ask for a new code."},
		{"rpc row", &gateway.RPCError{Function: "redeem_invite", Code: "INVALID_CODE", Message: "Invalid code"}, KindValidation, "INVALID_CODE", "invalid code"},
		{"unmatched rpc row keeps code", &gateway.RPCError{Function: "transition_offboarding_case_status", Code: "ORG_LOCKED", Message: "Organisation is locked"}, KindUnknown, "ORG_LOCKED", "[ORG_LOCKED] Organisation is locked"},
		{"rpc row without message", &gateway.RPCError{Function: "redeem_invite"}, KindUnknown, "REQUEST_FAILED", "[UNKNOWN] Unknown redeem_invite error"},
		{"applied but not re-read", &lifecycle.RefreshError{Err: lifecycle.ErrCaseNotVisible}, KindNotFound, "NOT_FOUND", "Not found: case not found."},
		{"bare 403", httpErr(http.StatusForbidden, "row level security"), KindAccessDenied, "REQUEST_FAILED", "row level security"},
		{"unmatched", errors.New("Something Odd"), KindUnknown, "REQUEST_FAILED", "something odd"},
		{"in flight", lifecycle.ErrInFlight, KindBusy, "IN_FLIGHT", "Updating case status..."},
		{"not ready", &lifecycle.NotReadyError{Summary: readiness.Summary{RequiredCount: 3, RequiredIncompleteCount: 2}}, KindValidation, "NOT_READY", "Required tasks incomplete (2/3)."},
		{"no archive", fmt.Errorf("read: %w", gitrepo.ErrNoArchive), KindNotFound, "NOT_FOUND", "Not found: no archived snapshot for this case."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.kind || got.Code != tt.code || got.Message != tt.message {
				t.Fatalf("Classify(%v) = {%s %s %q}, want {%s %s %q}", tt.err, got.Kind, got.Code, got.Message, tt.kind, tt.code, tt.message)
			}
			if !errors.Is(got, tt.err) && got.Err != tt.err {
				t.Errorf("classified error should wrap the original")
			}
		})
	}
}

func TestClassifyKeepsDomainErrors(t *testing.T) {
	original := deniedError("Org not set.")
	if got := Classify(fmt.Errorf("wrapped: %w", original)); got != original {
		t.Fatalf("expected the same DomainError back, got %+v", got)
	}
	if Classify(nil) != nil {
		t.Fatal("nil error should classify to nil")
	}
}

func TestHTTPText(t *testing.T) {
	de := Classify(httpErr(http.StatusBadRequest, "Reviewer not in org"))
	if got, want := de.HTTPText(), "HTTP 400: Reviewer not in org"; got != want {
		t.Fatalf("HTTPText() = %q, want %q", got, want)
	}
	network := Classify(gateway.ErrNetwork)
	if got, want := network.HTTPText(), "HTTP error: "+genericFailure; got != want {
		t.Fatalf("HTTPText() = %q, want %q", got, want)
	}
}
