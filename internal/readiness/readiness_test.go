package readiness

import (
	"fmt"
	"math/rand"
	"testing"

	"offboarding/ocm/internal/gateway"
)

func TestSummarize(t *testing.T) {
	tasks := []gateway.Task{
		{IsRequired: true, Status: "open"},
		{IsRequired: true, Status: "complete"},
		{IsRequired: false, Status: "complete"},
	}
	got := Summarize(tasks)
	want := Summary{
		TotalCount:              3,
		CompletedCount:          2,
		RequiredCount:           2,
		RequiredCompleteCount:   1,
		RequiredIncompleteCount: 1,
		OptionalCount:           1,
		OptionalCompleteCount:   1,
	}
	if got != want {
		t.Fatalf("Summarize() = %+v, want %+v", got, want)
	}
	if got.Ready() {
		t.Fatal("summary with an open required task is not ready")
	}
}

func TestSummaryCountsAddUp(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	statuses := []string{"open", "complete", "in_progress", ""}
	for i := 0; i < 200; i++ {
		tasks := make([]gateway.Task, rng.Intn(12))
		for j := range tasks {
			tasks[j] = gateway.Task{IsRequired: rng.Intn(2) == 0, Status: statuses[rng.Intn(len(statuses))]}
		}
		s := Summarize(tasks)
		if s.RequiredCompleteCount+s.RequiredIncompleteCount != s.RequiredCount {
			t.Fatalf("required counts do not add up: %+v", s)
		}
		if s.RequiredCount+s.OptionalCount != s.TotalCount {
			t.Fatalf("required+optional != total: %+v", s)
		}
		if s.RequiredCompleteCount+s.OptionalCompleteCount != s.CompletedCount {
			t.Fatalf("complete counts do not add up: %+v", s)
		}
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name       string
		tasks      []gateway.Task
		status     string
		headline   string
		details    string
		completion string
	}{
		{
			name:       "no tasks",
			status:     "draft",
			headline:   "No required tasks detected.",
			details:    "Server status: Draft (read-only).",
			completion: "No tasks available for this case.",
		},
		{
			name:       "incomplete",
			tasks:      []gateway.Task{{IsRequired: true, Status: "open"}, {IsRequired: true, Status: "complete"}},
			status:     "under_review",
			headline:   "Required tasks incomplete (1/2).",
			details:    "Server status: Under Review (read-only).",
			completion: "Tasks complete: 1/2. Required complete: 1/2. Optional complete: 0/0.",
		},
		{
			name:       "closed",
			tasks:      []gateway.Task{{IsRequired: true, Status: "complete"}},
			status:     "closed",
			headline:   "All required tasks complete.",
			details:    "Read-only / Case closed.",
			completion: "Tasks complete: 1/1. Required complete: 1/1. Optional complete: 0/0.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Describe(Summarize(tc.tasks), tc.status)
			if p.Headline != tc.headline || p.Details != tc.details || p.Completion != tc.completion {
				t.Fatalf("unexpected panel:\n%s\n%s\n%s", p.Headline, p.Details, p.Completion)
			}
		})
	}
}

func TestUnavailablePanels(t *testing.T) {
	if got := LoadFailed(403).Headline; got != "Closure readiness unavailable (403)." {
		t.Errorf("LoadFailed(403) = %q", got)
	}
	if got := LoadFailed(0).Completion; got != "Completion summary unavailable (error)." {
		t.Errorf("LoadFailed(0) = %q", got)
	}
	for _, hasCase := range []bool{true, false} {
		p := MissingIdentifier(hasCase)
		want := "case"
		if hasCase {
			want = "org"
		}
		if p.Headline != fmt.Sprintf("Closure readiness unavailable (missing %s identifier).", want) {
			t.Errorf("MissingIdentifier(%v) = %q", hasCase, p.Headline)
		}
		if p.Available {
			t.Error("missing identifier panel should not be available")
		}
	}
}

func TestFormatStatus(t *testing.T) {
	cases := map[string]string{
		"":             "unknown",
		"draft":        "Draft",
		"under_review": "Under Review",
		"CLOSED":       "Closed",
	}
	for in, want := range cases {
		if got := FormatStatus(in); got != want {
			t.Errorf("FormatStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
