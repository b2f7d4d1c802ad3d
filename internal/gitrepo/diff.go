package gitrepo

import (
	"fmt"
	"sort"
	"strings"
)

// Change is one difference between two snapshots.
type Change struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// Changes compares case fields, per-task status and audit length.
func Changes(from, to Snapshot) []Change {
	result := make([]Change, 0)
	add := func(field, before, after string) {
		if before != after {
			result = append(result, Change{Field: field, Before: before, After: after})
		}
	}

	add("case.status", from.Case.Status, to.Case.Status)
	add("case.employee_name", from.Case.EmployeeName, to.Case.EmployeeName)
	add("case.dept", from.Case.Dept, to.Case.Dept)
	add("case.position", from.Case.Position, to.Case.Position)
	add("case.last_working_day", from.Case.LastWorkingDay, to.Case.LastWorkingDay)

	before := make(map[string]string, len(from.Tasks))
	for _, task := range from.Tasks {
		before[task.ID] = strings.ToLower(task.Status)
	}
	seen := make(map[string]bool, len(to.Tasks))
	for _, task := range to.Tasks {
		seen[task.ID] = true
		prev, ok := before[task.ID]
		if !ok {
			prev = "(none)"
		}
		add("task."+task.ID, prev, strings.ToLower(task.Status))
	}
	for id, status := range before {
		if !seen[id] {
			add("task."+id, status, "(removed)")
		}
	}

	add("audit.entries", fmt.Sprint(len(from.Audit)), fmt.Sprint(len(to.Audit)))

	sort.SliceStable(result, func(i, j int) bool { return result[i].Field < result[j].Field })
	return result
}
