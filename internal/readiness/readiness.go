// Package readiness mirrors task completion for a case. The numbers explain why the
// backend may refuse a transition; they never decide it.
package readiness

import (
	"fmt"
	"strings"

	"offboarding/ocm/internal/gateway"
)

const StatusComplete = "complete"

type Summary struct {
	TotalCount              int `json:"totalCount"`
	CompletedCount          int `json:"completedCount"`
	RequiredCount           int `json:"requiredCount"`
	RequiredCompleteCount   int `json:"requiredCompleteCount"`
	RequiredIncompleteCount int `json:"requiredIncompleteCount"`
	OptionalCount           int `json:"optionalCount"`
	OptionalCompleteCount   int `json:"optionalCompleteCount"`
}

func Summarize(tasks []gateway.Task) Summary {
	var s Summary
	for _, task := range tasks {
		complete := task.Status == StatusComplete
		s.TotalCount++
		if complete {
			s.CompletedCount++
		}
		if task.IsRequired {
			s.RequiredCount++
			if complete {
				s.RequiredCompleteCount++
			}
		} else if complete {
			s.OptionalCompleteCount++
		}
	}
	s.RequiredIncompleteCount = s.RequiredCount - s.RequiredCompleteCount
	s.OptionalCount = s.TotalCount - s.RequiredCount
	return s
}

// Ready reports whether no required task is left open.
func (s Summary) Ready() bool {
	return s.RequiredIncompleteCount == 0
}

// Panel is the advisory text shown next to a case.
type Panel struct {
	Available  bool     `json:"available"`
	Summary    *Summary `json:"summary,omitempty"`
	Headline   string   `json:"headline"`
	Details    string   `json:"details"`
	Completion string   `json:"completion"`
}

func Describe(summary Summary, caseStatus string) Panel {
	p := Panel{Available: true, Summary: &summary}

	switch {
	case summary.RequiredCount == 0:
		p.Headline = "No required tasks detected."
	case summary.RequiredIncompleteCount > 0:
		p.Headline = fmt.Sprintf("Required tasks incomplete (%d/%d).", summary.RequiredIncompleteCount, summary.RequiredCount)
	default:
		p.Headline = "All required tasks complete."
	}

	if caseStatus == "closed" {
		p.Details = "Read-only / Case closed."
	} else {
		p.Details = fmt.Sprintf("Server status: %s (read-only).", FormatStatus(caseStatus))
	}

	if summary.TotalCount == 0 {
		p.Completion = "No tasks available for this case."
	} else {
		p.Completion = fmt.Sprintf("Tasks complete: %d/%d. Required complete: %d/%d. Optional complete: %d/%d.",
			summary.CompletedCount, summary.TotalCount,
			summary.RequiredCompleteCount, summary.RequiredCount,
			summary.OptionalCompleteCount, summary.OptionalCount)
	}
	return p
}

// LoadFailed describes a task read that did not succeed. status is the HTTP status, or 0.
func LoadFailed(status int) Panel {
	code := "error"
	if status > 0 {
		code = fmt.Sprint(status)
	}
	return Panel{
		Headline:   fmt.Sprintf("Closure readiness unavailable (%s).", code),
		Details:    "Server state could not be mirrored due to task load failure.",
		Completion: fmt.Sprintf("Completion summary unavailable (%s).", code),
	}
}

// MissingIdentifier describes a case that lacks the id or org needed to read tasks.
func MissingIdentifier(hasCaseID bool) Panel {
	missing := "case"
	if hasCaseID {
		missing = "org"
	}
	return Panel{
		Headline:   fmt.Sprintf("Closure readiness unavailable (missing %s identifier).", missing),
		Details:    "Server state cannot be mirrored without identifiers.",
		Completion: fmt.Sprintf("Completion summary unavailable (missing %s identifier).", missing),
	}
}

// FormatStatus title-cases a snake_case status; empty input yields "unknown".
func FormatStatus(status string) string {
	normalized := strings.ToLower(strings.TrimSpace(status))
	if normalized == "" {
		return "unknown"
	}
	parts := strings.Split(normalized, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}
