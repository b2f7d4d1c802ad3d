package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"offboarding/ocm/internal/identity"
	"offboarding/ocm/internal/rbac"
)

func TestFileStoreRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		passphrase string
	}{
		{"plain", ""},
		{"sealed", "correct horse"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "session.json")
			store := NewFileStore(path, tc.passphrase)
			ctx := context.Background()

			if got, err := store.Load(ctx); err != nil || got != nil {
				t.Fatalf("expected empty store, got %+v, %v", got, err)
			}
			if err := store.Save(ctx, Session{AccessToken: "secret-token", TokenType: "bearer"}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if sealed := tc.passphrase != ""; sealed == strings.Contains(string(raw), "secret-token") {
				t.Fatalf("sealed=%v but token visible=%v", sealed, !sealed)
			}

			got, err := store.Load(ctx)
			if err != nil || got == nil || got.AccessToken != "secret-token" {
				t.Fatalf("Load: %+v, %v", got, err)
			}
			if got.SavedAt.IsZero() {
				t.Error("expected SavedAt to be stamped")
			}

			if err := store.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if got, _ := store.Load(ctx); got != nil {
				t.Fatalf("expected nil after clear, got %+v", got)
			}
		})
	}
}

func TestFileStoreKeepsIdentity(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"), "pw")
	ctx := context.Background()
	id := identity.Identity{State: identity.StateResolved, UserID: "u1", Email: "a@example.com", Role: rbac.RoleMember, OrgID: "o1"}
	if err := store.Save(ctx, Session{AccessToken: "tok", TokenType: "bearer", Identity: &id}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil || got == nil || got.Identity == nil {
		t.Fatalf("Load: %+v, %v", got, err)
	}
	if *got.Identity != id {
		t.Fatalf("identity = %+v, want %+v", *got.Identity, id)
	}
}

func TestFileStoreFailsSoft(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"not json", "{nope"},
		{"no token", `{"tokenType":"bearer"}`},
		{"array", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := NewFileStore(path, "").Load(context.Background())
			if err != nil || got != nil {
				t.Fatalf("expected nil, nil; got %+v, %v", got, err)
			}
		})
	}
}

func TestFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()
	if err := NewFileStore(path, "right").Save(ctx, Session{AccessToken: "at"}); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(path, "wrong").Load(ctx)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", got, err)
	}
}

func TestRequire(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	if _, err := Require(ctx, mem); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := mem.Save(ctx, Session{AccessToken: "at"}); err != nil {
		t.Fatal(err)
	}
	s, err := Require(ctx, mem)
	if err != nil || s.AccessToken != "at" {
		t.Fatalf("Require: %+v, %v", s, err)
	}
	if s.AuthorizationHeader() != "Bearer at" {
		t.Fatalf("header = %q", s.AuthorizationHeader())
	}
}

func TestSaveRejectsEmptyToken(t *testing.T) {
	if err := NewMemory().Save(context.Background(), Session{}); err == nil {
		t.Fatal("expected error")
	}
}
