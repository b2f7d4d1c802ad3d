package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gateway/gatewaytest"
)

func TestLoadStates(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    any
		state   State
		message string
		rows    int
	}{
		{"empty", http.StatusOK, []any{}, StateEmpty, "No audit activity found.", 0},
		{"forbidden", http.StatusForbidden, map[string]string{"message": "permission denied"}, StateFailed, "Unable to load audit timeline (403).", 0},
		{"loaded", http.StatusOK, []map[string]any{
			{"created_at": "2024-05-01T10:00:00+00:00", "action": "case.create", "actor_user_id": "u1", "entity_type": "case", "entity_id": "c1"},
		}, StateLoaded, "", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := gatewaytest.New(t)
			backend.JSON(http.MethodGet, "/rest/v1/audit_logs", tc.status, tc.body)

			trail := NewMirror(nil).Load(context.Background(), backend.Client(t, "tok"), "c1")
			if trail.State != tc.state || trail.Message != tc.message || len(trail.Rows) != tc.rows {
				t.Fatalf("unexpected trail %+v", trail)
			}
		})
	}
}

type failingSource struct{}

func (failingSource) ListAuditLogs(context.Context, string) ([]gateway.AuditLogEntry, error) {
	return nil, gateway.ErrNetwork
}

func TestNetworkFailureIsNotEmpty(t *testing.T) {
	trail := NewMirror(nil).Load(context.Background(), failingSource{}, "c1")
	if trail.State != StateFailed {
		t.Fatalf("expected failed state, got %s", trail.State)
	}
	if trail.Message != "Unable to load audit timeline (error)." {
		t.Fatalf("message = %q", trail.Message)
	}
	if !errors.Is(trail.Err, gateway.ErrNetwork) {
		t.Fatalf("expected network error, got %v", trail.Err)
	}
}

func TestMissingCaseIDFailsWithoutRequest(t *testing.T) {
	backend := gatewaytest.New(t)
	trail := NewMirror(nil).Load(context.Background(), backend.Client(t, "tok"), "")
	if trail.State != StateFailed {
		t.Fatalf("expected failed, got %s", trail.State)
	}
	if n := len(backend.Requests()); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

type staticSource []gateway.AuditLogEntry

func (s staticSource) ListAuditLogs(context.Context, string) ([]gateway.AuditLogEntry, error) {
	out := make([]gateway.AuditLogEntry, len(s))
	copy(out, s)
	return out, nil
}

func TestEntriesAreNewestFirst(t *testing.T) {
	src := staticSource{
		{ID: "a", CreatedAt: "2024-05-01T10:00:00Z"},
		{ID: "b", CreatedAt: "2024-05-03T10:00:00.123456+00:00"},
		{ID: "c", CreatedAt: "garbage"},
		{ID: "d", CreatedAt: "2024-05-02 10:00:00.5"},
	}
	trail := NewMirror(nil).Load(context.Background(), src, "c1")
	var order string
	for _, e := range trail.Entries {
		order += e.ID
	}
	if order != "bdac" {
		t.Fatalf("expected order bdac, got %s", order)
	}
}

func TestFormatting(t *testing.T) {
	entry := gateway.AuditLogEntry{Actor: "ops@example.com", Action: "task.create", EntityType: "task"}
	row := FormatRow(entry)
	if row.Actor != "ops@example.com" || row.Action != "Task created" || row.Target != "task (unknown)" || row.CreatedAt != "Unknown time" {
		t.Fatalf("unexpected row %+v", row)
	}
	if got := FormatActor(gateway.AuditLogEntry{}); got != "Unknown actor" {
		t.Errorf("FormatActor = %q", got)
	}
	if got := FormatAction(""); got != "Unknown action" {
		t.Errorf("FormatAction(\"\") = %q", got)
	}
	if got := FormatAction("case.archive"); got != "case.archive" {
		t.Errorf("unlabelled action should pass through, got %q", got)
	}

	metadata := map[string]string{
		"":                "—",
		"null":            "—",
		`"free text"`:     "free text",
		`{"to":"closed"}`: "{\n  \"to\": \"closed\"\n}",
	}
	for raw, want := range metadata {
		if got := FormatMetadata(json.RawMessage(raw)); got != want {
			t.Errorf("FormatMetadata(%q) = %q, want %q", raw, got, want)
		}
	}
}
