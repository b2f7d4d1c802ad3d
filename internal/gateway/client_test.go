package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gateway/gatewaytest"
)

func TestNewRequiresBackend(t *testing.T) {
	if _, err := gateway.New(gateway.Options{BaseURL: "https://x.example"}); !errors.Is(err, gateway.ErrMissingBackend) {
		t.Fatalf("expected ErrMissingBackend, got %v", err)
	}
}

func TestRequestHeaders(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.JSON(http.MethodGet, "/auth/v1/user", http.StatusOK, map[string]any{"id": "u1", "email": "a@example.com"})

	client := backend.Client(t, "tok-1")
	user, err := client.GetUser(context.Background())
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Email != "a@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}

	req := backend.Requests()[0]
	if got := req.Header.Get("apikey"); got != gatewaytest.AnonKey {
		t.Errorf("apikey header = %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("authorization header = %q", got)
	}
	if req.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id")
	}
}

func TestMissingTokenSkipsNetwork(t *testing.T) {
	backend := gatewaytest.New(t)
	client := backend.Client(t, "")
	if _, err := client.ListTasks(context.Background(), "o1", "c1"); !errors.Is(err, gateway.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	if n := len(backend.Requests()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestHTTPErrorMessage(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    any
		message string
	}{
		{"message field", http.StatusBadRequest, map[string]string{"message": "Reviewer not in org"}, "Reviewer not in org"},
		{"error description", http.StatusUnauthorized, map[string]string{"error_description": "Invalid login credentials", "error": "invalid_grant"}, "Invalid login credentials"},
		{"error field", http.StatusForbidden, map[string]string{"error": "permission denied"}, "permission denied"},
		{"no body", http.StatusInternalServerError, nil, "Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := gatewaytest.New(t)
			backend.RPC("owner_assign_case_reviewer", tc.status, tc.body)

			err := backend.Client(t, "tok").AssignCaseReviewer(context.Background(), "c1", "u2")
			var httpErr *gateway.Error
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *gateway.Error, got %v", err)
			}
			if httpErr.Status != tc.status || httpErr.Message != tc.message {
				t.Fatalf("got status %d message %q", httpErr.Status, httpErr.Message)
			}
			if gateway.StatusOf(err) != tc.status {
				t.Fatalf("StatusOf = %d", gateway.StatusOf(err))
			}
		})
	}
}

func TestRPCErrorRow(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.RPC("admin_inspect_user", http.StatusOK, []map[string]any{{"error_code": "NOT_FOUND", "error_message": "user not found"}})

	_, err := backend.Client(t, "tok").AdminInspectUser(context.Background(), "x@example.com", "")
	var rpcErr *gateway.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *gateway.RPCError, got %v", err)
	}
	if rpcErr.Error() != "[NOT_FOUND] user not found" {
		t.Fatalf("unexpected error text %q", rpcErr.Error())
	}
	if gateway.MessageOf(err) != "user not found" {
		t.Fatalf("MessageOf = %q", gateway.MessageOf(err))
	}
}

func TestRPCArguments(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.RPC("admin_access_check", http.StatusOK, []map[string]any{{"user_id": "u1", "case_id": "c1", "is_visible": true, "reason": "member"}})

	rows, err := backend.Client(t, "tok").AdminAccessCheck(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("AdminAccessCheck: %v", err)
	}
	if len(rows) != 1 || !rows[0].IsVisible {
		t.Fatalf("unexpected rows %+v", rows)
	}

	var body map[string]any
	if err := json.Unmarshal(backend.Requests()[0].Body, &body); err != nil {
		t.Fatal(err)
	}
	if body["p_user_id"] != "u1" {
		t.Errorf("p_user_id = %v", body["p_user_id"])
	}
	if v, ok := body["p_case_id"]; !ok || v != nil {
		t.Errorf("expected explicit null p_case_id, got %v (present=%v)", v, ok)
	}
}

func TestMembershipAcceptsObjectOrArray(t *testing.T) {
	cases := []struct {
		name string
		body any
		ok   bool
	}{
		{"object", map[string]string{"org_id": "o1", "org_name": "Acme", "role": "owner"}, true},
		{"array", []map[string]string{{"org_id": "o1", "org_name": "Acme", "role": "owner"}}, true},
		{"empty array", []map[string]string{}, false},
		{"null", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := gatewaytest.New(t)
			backend.RPC("get_current_org_context", http.StatusOK, tc.body)
			m, ok, err := backend.Client(t, "tok").CurrentMembership(context.Background())
			if err != nil {
				t.Fatalf("CurrentMembership: %v", err)
			}
			if ok != tc.ok {
				t.Fatalf("ok = %v", ok)
			}
			if ok && (m.OrgID != "o1" || m.Role != "owner") {
				t.Fatalf("unexpected membership %+v", m)
			}
		})
	}
}

func TestListCasesQuery(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.JSON(http.MethodGet, "/rest/v1/offboarding_cases", http.StatusOK, []map[string]string{{"id": "c1", "status": "draft"}})

	c, ok, err := backend.Client(t, "tok").GetCase(context.Background(), "c1")
	if err != nil || !ok {
		t.Fatalf("GetCase: ok=%v err=%v", ok, err)
	}
	if c.Status != "draft" {
		t.Fatalf("status = %q", c.Status)
	}
	query, _ := url.ParseQuery(backend.Requests()[0].Query)
	if query.Get("id") != "eq.c1" || query.Get("limit") != "1" || query.Get("select") != "*" {
		t.Fatalf("unexpected query %v", query)
	}
}

func TestListCasesByIDs(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.JSON(http.MethodGet, "/rest/v1/offboarding_cases", http.StatusOK, []map[string]string{})

	if _, err := backend.Client(t, "tok").ListCases(context.Background(), gateway.CaseFilter{CaseIDs: []string{"c1", "c2"}}); err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	query, _ := url.ParseQuery(backend.Requests()[0].Query)
	if got := query.Get("id"); got != `in.("c1","c2")` {
		t.Fatalf("id filter = %q", got)
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.Handle(http.MethodGet, "/rest/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client, err := gateway.New(gateway.Options{BaseURL: backend.Server.URL, AnonKey: gatewaytest.AnonKey, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.WithToken("tok").ListTasks(context.Background(), "", "c1")
	if !errors.Is(err, gateway.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestSignInWithPassword(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.JSON(http.MethodPost, "/auth/v1/token", http.StatusOK, map[string]any{
		"access_token":  "at",
		"refresh_token": "rt",
		"expires_in":    3600,
		"token_type":    "bearer",
	})
	session, err := backend.Client(t, "").SignInWithPassword(context.Background(), "a@example.com", "pw")
	if err != nil {
		t.Fatalf("SignInWithPassword: %v", err)
	}
	if session.AccessToken != "at" || session.ExpiresIn != 3600 {
		t.Fatalf("unexpected session %+v", session)
	}
	req := backend.Requests()[0]
	if !strings.Contains(req.Query, "grant_type=password") {
		t.Fatalf("missing grant type in %q", req.Query)
	}
	if req.Header.Get("Authorization") != "Bearer "+gatewaytest.AnonKey {
		t.Fatalf("anonymous call should use anon key, got %q", req.Header.Get("Authorization"))
	}
}

func TestListRolesAcceptsStrings(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.RPC("list_roles", http.StatusOK, []string{"owner", "admin", "member"})
	roles, err := backend.Client(t, "tok").ListRoles(context.Background())
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 3 || roles[1].Role != "admin" {
		t.Fatalf("unexpected roles %+v", roles)
	}
}
