package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

func (c *Client) ListCases(ctx context.Context, filter CaseFilter) ([]CaseRecord, error) {
	query := url.Values{"select": {"*"}}
	if filter.OrgID != "" {
		query.Set("org_id", eq(filter.OrgID))
	}
	if filter.CaseID != "" {
		query.Set("id", eq(filter.CaseID))
	}
	if len(filter.CaseIDs) > 0 {
		query.Set("id", inList(filter.CaseIDs))
	}
	if like := strings.TrimSpace(filter.EmployeeLike); like != "" {
		query.Set("employee_name", "ilike.*"+like+"*")
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	raw, err := c.rest(ctx, "cases.list", http.MethodGet, "offboarding_cases", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows[CaseRecord](raw)
}

// GetCase reads one case by id. ok is false when the backend returned no row.
func (c *Client) GetCase(ctx context.Context, caseID string) (CaseRecord, bool, error) {
	if caseID == "" {
		return CaseRecord{}, false, errors.New("case id is required")
	}
	rows, err := c.ListCases(ctx, CaseFilter{CaseID: caseID, Limit: 1})
	if err != nil || len(rows) == 0 {
		return CaseRecord{}, false, err
	}
	return rows[0], true, nil
}

func (c *Client) CreateCase(ctx context.Context, input NewCase) (CaseRecord, error) {
	raw, err := c.rest(ctx, "cases.create", http.MethodPost, "offboarding_cases", nil, input)
	if err != nil {
		return CaseRecord{}, err
	}
	rows, err := decodeRows[CaseRecord](raw)
	if err != nil {
		return CaseRecord{}, err
	}
	if len(rows) == 0 {
		return CaseRecord{}, errors.New("create case returned no row")
	}
	return rows[0], nil
}

// PatchCaseStatus is the direct status update used by the open/closed lifecycle.
func (c *Client) PatchCaseStatus(ctx context.Context, caseID, status string) error {
	if caseID == "" {
		return errors.New("case id is required")
	}
	query := url.Values{"id": {eq(caseID)}}
	_, err := c.rest(ctx, "cases.patch_status", http.MethodPatch, "offboarding_cases", query, map[string]string{"status": status})
	return err
}

func (c *Client) ListTasks(ctx context.Context, orgID, caseID string) ([]Task, error) {
	query := url.Values{"select": {"*"}}
	if orgID != "" {
		query.Set("org_id", eq(orgID))
	}
	if caseID != "" {
		query.Set("case_id", eq(caseID))
	}
	raw, err := c.rest(ctx, "tasks.list", http.MethodGet, "tasks", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows[Task](raw)
}

// GetTask reads one task by id. ok is false when the backend returned no row.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, bool, error) {
	query := url.Values{"select": {"*"}, "id": {eq(taskID)}, "limit": {"1"}}
	raw, err := c.rest(ctx, "tasks.get", http.MethodGet, "tasks", query, nil)
	if err != nil {
		return Task{}, false, err
	}
	rows, err := decodeRows[Task](raw)
	if err != nil || len(rows) == 0 {
		return Task{}, false, err
	}
	return rows[0], true, nil
}

func (c *Client) CreateTask(ctx context.Context, input NewTask) (Task, error) {
	if input.Status == "" {
		input.Status = "open"
	}
	raw, err := c.rest(ctx, "tasks.create", http.MethodPost, "tasks", nil, input)
	if err != nil {
		return Task{}, err
	}
	rows, err := decodeRows[Task](raw)
	if err != nil {
		return Task{}, err
	}
	if len(rows) == 0 {
		return Task{}, errors.New("create task returned no row")
	}
	return rows[0], nil
}

func (c *Client) ListEvidence(ctx context.Context, orgID, taskID string) ([]Evidence, error) {
	query := url.Values{"select": {"*"}}
	if orgID != "" {
		query.Set("org_id", eq(orgID))
	}
	if taskID != "" {
		query.Set("task_id", eq(taskID))
	}
	raw, err := c.rest(ctx, "evidence.list", http.MethodGet, "evidence", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows[Evidence](raw)
}

func (c *Client) CreateEvidence(ctx context.Context, input NewEvidence) (Evidence, error) {
	raw, err := c.rest(ctx, "evidence.create", http.MethodPost, "evidence", nil, input)
	if err != nil {
		return Evidence{}, err
	}
	rows, err := decodeRows[Evidence](raw)
	if err != nil {
		return Evidence{}, err
	}
	if len(rows) == 0 {
		return Evidence{}, errors.New("create evidence returned no row")
	}
	return rows[0], nil
}

// ListAuditLogs returns the trail for a case, newest first as ordered by the backend.
func (c *Client) ListAuditLogs(ctx context.Context, caseID string) ([]AuditLogEntry, error) {
	if caseID == "" {
		return nil, errors.New("case id is required")
	}
	query := url.Values{
		"select":  {"*"},
		"case_id": {eq(caseID)},
		"order":   {"created_at.desc"},
	}
	raw, err := c.rest(ctx, "audit.list", http.MethodGet, "audit_logs", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows[AuditLogEntry](raw)
}

func (c *Client) ListCaseSLA(ctx context.Context, orgID string) ([]CaseSLA, error) {
	query := url.Values{"select": {"*"}}
	if orgID != "" {
		query.Set("org_id", eq(orgID))
	}
	raw, err := c.rest(ctx, "reporting.sla", http.MethodGet, "reporting_case_sla", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows[CaseSLA](raw)
}

func (c *Client) ListCaseEscalation(ctx context.Context, orgID string) ([]CaseEscalation, error) {
	query := url.Values{"select": {"*"}}
	if orgID != "" {
		query.Set("org_id", eq(orgID))
	}
	raw, err := c.rest(ctx, "reporting.escalation", http.MethodGet, "reporting_case_escalation", query, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows[CaseEscalation](raw)
}
