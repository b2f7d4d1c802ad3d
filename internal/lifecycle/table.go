package lifecycle

import (
	"fmt"
	"sort"
	"strings"

	"offboarding/ocm/internal/rbac"
	"offboarding/ocm/internal/readiness"
)

// Transport selects how a transition reaches the backend.
type Transport string

const (
	TransportRPC   Transport = "rpc"
	TransportPatch Transport = "patch"
)

type Transition struct {
	Label    string `json:"label"`
	ToStatus string `json:"toStatus"`
	// Action is the capability the gate checks before offering the transition.
	Action rbac.Action `json:"-"`
	// RequiresReadiness blocks the transition while required tasks are open.
	RequiresReadiness bool `json:"-"`
}

// Table is one deployment's status vocabulary and legal moves between statuses.
type Table struct {
	Name      string
	Initial   string
	Transport Transport

	transitions map[string][]Transition
	labels      map[string]string
}

// NewTable validates that every target status is itself a state of the table.
func NewTable(name, initial string, transport Transport, transitions map[string][]Transition, labels map[string]string) (*Table, error) {
	if _, ok := transitions[initial]; !ok {
		return nil, fmt.Errorf("lifecycle %s: initial status %q is not a state", name, initial)
	}
	for from, moves := range transitions {
		for _, move := range moves {
			if _, ok := transitions[move.ToStatus]; !ok {
				return nil, fmt.Errorf("lifecycle %s: %s -> %s targets an unknown state", name, from, move.ToStatus)
			}
			if move.Label == "" {
				return nil, fmt.Errorf("lifecycle %s: %s -> %s has no label", name, from, move.ToStatus)
			}
		}
	}
	return &Table{
		Name:        name,
		Initial:     initial,
		Transport:   transport,
		transitions: transitions,
		labels:      labels,
	}, nil
}

func mustTable(t *Table, err error) *Table {
	if err != nil {
		panic(err)
	}
	return t
}

// Review is the six-state machine with owner/admin decisions.
func Review() *Table {
	return mustTable(NewTable("review", "draft", TransportRPC, map[string][]Transition{
		"draft":        {{Label: "Submit", ToStatus: "submitted", Action: rbac.ActionTransition}},
		"submitted":    {{Label: "Move to Under Review", ToStatus: "under_review", Action: rbac.ActionTransition}},
		"under_review": {{Label: "Approve", ToStatus: "approved", Action: rbac.ActionDecide}, {Label: "Reject", ToStatus: "rejected", Action: rbac.ActionDecide}},
		"rejected":     {{Label: "Reopen", ToStatus: "draft", Action: rbac.ActionTransition}},
		"approved":     {{Label: "Close", ToStatus: "closed", Action: rbac.ActionDecide}},
		"closed":       {},
	}, nil))
}

// Legacy is the open/closed machine that patches the row directly and waits for
// required tasks before closing.
func Legacy() *Table {
	closeCase := Transition{Label: "Close", ToStatus: "closed", Action: rbac.ActionTransition, RequiresReadiness: true}
	return mustTable(NewTable("legacy", "open", TransportPatch, map[string][]Transition{
		"open":           {closeCase},
		"in_review":      {closeCase},
		"ready_to_close": {closeCase},
		"closed":         {},
	}, map[string]string{
		"open":           "Open",
		"in_review":      "In Review",
		"ready_to_close": "In Review",
		"closed":         "Closed",
	}))
}

func ByName(name string) (*Table, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "review":
		return Review(), nil
	case "legacy":
		return Legacy(), nil
	default:
		return nil, fmt.Errorf("unknown lifecycle %q", name)
	}
}

// Available returns the moves out of status. Unknown and terminal statuses yield an
// empty, non-nil slice.
func (t *Table) Available(status string) []Transition {
	moves := t.transitions[normalize(status)]
	out := make([]Transition, len(moves))
	copy(out, moves)
	return out
}

// Find returns the move from status to toStatus, if the table has one.
func (t *Table) Find(status, toStatus string) (Transition, bool) {
	for _, move := range t.transitions[normalize(status)] {
		if move.ToStatus == normalize(toStatus) {
			return move, true
		}
	}
	return Transition{}, false
}

func (t *Table) Known(status string) bool {
	_, ok := t.transitions[normalize(status)]
	return ok
}

func (t *Table) Terminal(status string) bool {
	moves, ok := t.transitions[normalize(status)]
	return ok && len(moves) == 0
}

func (t *Table) States() []string {
	states := make([]string, 0, len(t.transitions))
	for state := range t.transitions {
		states = append(states, state)
	}
	sort.Strings(states)
	return states
}

// Label is the display name for a status.
func (t *Table) Label(status string) string {
	normalized := normalize(status)
	if label, ok := t.labels[normalized]; ok {
		return label
	}
	return readiness.FormatStatus(normalized)
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
