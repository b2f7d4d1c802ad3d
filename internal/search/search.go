// Package search finds offboarding cases by employee, case number or department.
// Meilisearch serves queries when it is configured and healthy; otherwise the
// backend's ilike filter on employee_name answers them.
package search

import (
	"context"

	"offboarding/ocm/internal/gateway"
)

const (
	EngineMeili   = "meilisearch"
	EngineBackend = "backend"
)

// Result is a single case hit.
type Result struct {
	ID           string `json:"id"`
	CaseNo       string `json:"caseNo,omitempty"`
	OrgID        string `json:"orgId"`
	EmployeeName string `json:"employeeName"`
	Dept         string `json:"dept,omitempty"`
	Position     string `json:"position,omitempty"`
	Status       string `json:"status"`
	Snippet      string `json:"snippet,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text   string
	OrgID  string
	Status string
	Limit  int
	Offset int
}

// Response is the envelope returned to callers.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text case search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Fallback is the backend listing used when no index is available.
type Fallback interface {
	ListCases(ctx context.Context, filter gateway.CaseFilter) ([]gateway.CaseRecord, error)
}

// CaseDocument is the record pushed into the case index.
type CaseDocument struct {
	ID           string `json:"id"`
	CaseNo       string `json:"case_no"`
	OrgID        string `json:"org_id"`
	EmployeeName string `json:"employee_name"`
	Dept         string `json:"dept"`
	Position     string `json:"position"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

// DocumentFromCase converts a backend case row into an index record.
func DocumentFromCase(c gateway.CaseRecord) CaseDocument {
	return CaseDocument{
		ID:           c.ID,
		CaseNo:       c.CaseNo,
		OrgID:        c.OrgID,
		EmployeeName: c.EmployeeName,
		Dept:         c.Dept,
		Position:     c.Position,
		Status:       c.Status,
		CreatedAt:    c.CreatedAt,
	}
}

func resultFromCase(c gateway.CaseRecord) Result {
	return Result{
		ID:           c.ID,
		CaseNo:       c.CaseNo,
		OrgID:        c.OrgID,
		EmployeeName: c.EmployeeName,
		Dept:         c.Dept,
		Position:     c.Position,
		Status:       c.Status,
	}
}
