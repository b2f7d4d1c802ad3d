package util

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewRequestIDIsULID(t *testing.T) {
	first := NewRequestID()
	second := NewRequestID()
	if first == second {
		t.Fatalf("expected distinct ids, got %q twice", first)
	}
	if _, err := ulid.Parse(first); err != nil {
		t.Fatalf("ulid.Parse(%q) error = %v", first, err)
	}
}

func TestIsUUID(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{input: "3f2a1c5e-8b1d-4c1e-9a55-0b7f0b3f6d21", want: true},
		{input: " 3f2a1c5e-8b1d-4c1e-9a55-0b7f0b3f6d21 ", want: true},
		{input: "c1", want: false},
		{input: "", want: false},
	}
	for _, tc := range cases {
		if got := IsUUID(tc.input); got != tc.want {
			t.Fatalf("IsUUID(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestNewObjectIDIsLowercase(t *testing.T) {
	id := NewObjectID()
	if id != strings.ToLower(id) {
		t.Fatalf("NewObjectID() = %q, want lowercase", id)
	}
	if _, err := ulid.ParseStrict(strings.ToUpper(id)); err != nil {
		t.Fatalf("ulid.ParseStrict(%q) error = %v", id, err)
	}
}
