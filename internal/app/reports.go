package app

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/export"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gitrepo"
	"offboarding/ocm/internal/readiness"
	"offboarding/ocm/internal/search"
)

// DashboardRow joins one case's SLA and escalation state. Either half may be
// missing when its source had no row or failed.
type DashboardRow struct {
	CaseID                string `json:"caseId"`
	Status                string `json:"status,omitempty"`
	SLABreached           *bool  `json:"slaBreached,omitempty"`
	LatestEscalationLevel *int   `json:"latestEscalationLevel,omitempty"`
	IsAcknowledged        *bool  `json:"isAcknowledged,omitempty"`
	LatestEscalatedAt     string `json:"latestEscalatedAt,omitempty"`
	LatestAcknowledgedAt  string `json:"latestAcknowledgedAt,omitempty"`
}

type Dashboard struct {
	Rows    []DashboardRow `json:"rows"`
	Partial bool           `json:"partial"`
	Notice  string         `json:"notice,omitempty"`
	Errors  []string       `json:"errors,omitempty"`
}

// Dashboard loads both reporting views in parallel and keeps whatever succeeded.
func (s *Service) Dashboard(ctx context.Context, orgID string) (Dashboard, error) {
	c, err := s.client(ctx)
	if err != nil {
		return Dashboard{}, s.fail(ctx, err)
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		id, err := s.currentIdentity(ctx, c)
		if err != nil {
			return Dashboard{}, s.fail(ctx, err)
		}
		orgID = id.OrgID
	}

	var (
		sla         []gateway.CaseSLA
		escalations []gateway.CaseEscalation
		slaErr      error
		escErr      error
	)
	var g errgroup.Group
	g.Go(func() error {
		sla, slaErr = c.ListCaseSLA(ctx, orgID)
		return nil
	})
	g.Go(func() error {
		escalations, escErr = c.ListCaseEscalation(ctx, orgID)
		return nil
	})
	_ = g.Wait()

	if slaErr != nil && escErr != nil {
		return Dashboard{Rows: []DashboardRow{}}, s.fail(ctx, errors.Join(slaErr, escErr))
	}

	out := Dashboard{Rows: joinDashboard(sla, escalations)}
	for _, part := range []struct {
		name string
		err  error
	}{{"SLA", slaErr}, {"escalation", escErr}} {
		if part.err == nil {
			continue
		}
		de := Classify(s.fail(ctx, part.err))
		out.Partial = true
		out.Errors = append(out.Errors, part.name+": "+de.Message)
		s.logger.Warn("dashboard source failed", zap.String("source", part.name), zap.Error(part.err))
	}
	if out.Partial {
		out.Notice = "Some reporting data could not be loaded; showing partial results."
	}
	return out, nil
}

func joinDashboard(sla []gateway.CaseSLA, escalations []gateway.CaseEscalation) []DashboardRow {
	byCase := make(map[string]*DashboardRow)
	row := func(caseID string) *DashboardRow {
		r, ok := byCase[caseID]
		if !ok {
			r = &DashboardRow{CaseID: caseID}
			byCase[caseID] = r
		}
		return r
	}
	for _, item := range sla {
		if item.CaseID == "" {
			continue
		}
		r := row(item.CaseID)
		breached := item.SLABreached
		r.Status = item.Status
		r.SLABreached = &breached
	}
	for _, item := range escalations {
		if item.CaseID == "" {
			continue
		}
		r := row(item.CaseID)
		acknowledged := item.IsAcknowledged
		r.LatestEscalationLevel = item.LatestEscalationLevel
		r.IsAcknowledged = &acknowledged
		r.LatestEscalatedAt = item.LatestEscalatedAt
		r.LatestAcknowledgedAt = item.LatestAcknowledgedAt
	}

	rows := make([]DashboardRow, 0, len(byCase))
	for _, r := range byCase {
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CaseID < rows[j].CaseID })
	return rows
}

// SearchCases queries the case index scoped to the caller's org. Platform admins may
// pass another org.
func (s *Service) SearchCases(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, unavailableError("Case search is not configured.")
	}
	c, err := s.client(ctx)
	if err != nil {
		return search.Response{}, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return search.Response{}, s.fail(ctx, err)
	}
	if q.OrgID == "" || !id.IsPlatformAdmin() {
		q.OrgID = id.OrgID
	}
	if q.OrgID == "" && !id.IsPlatformAdmin() {
		return search.Response{}, deniedError("Org not set.")
	}
	resp, err := s.search.SearchWith(ctx, c, q)
	if err != nil {
		return resp, s.fail(ctx, err)
	}
	return resp, nil
}

// ExportCase renders a report from fresh reads of the case, its tasks and its audit trail.
func (s *Service) ExportCase(ctx context.Context, caseID string, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, unavailableError("Export is not configured.")
	}
	view, err := s.CaseDetail(ctx, caseID)
	if err != nil {
		return nil, err
	}
	id, _ := s.identities.Cached()
	report := export.Report{
		Case:        view.Case,
		StatusLabel: view.StatusLabel,
		Tasks:       view.Tasks,
		Readiness:   view.Readiness,
		Audit:       view.Audit,
		OrgName:     id.OrgName,
		GeneratedBy: id.Email,
		GeneratedAt: s.now(),
	}
	result, err := s.exporter.Export(ctx, report, format)
	if err != nil {
		if result != nil && errors.Is(err, export.ErrPDFDependencyMissing) {
			s.logger.Warn("pdf export unavailable, returning html", zap.String("case_id", view.Case.ID))
			return result, nil
		}
		return nil, s.fail(ctx, err)
	}
	return result, nil
}

// ArchiveResult is a committed snapshot plus what changed since the previous one.
type ArchiveResult struct {
	Commit  gitrepo.CommitInfo `json:"commit"`
	Changes []gitrepo.Change   `json:"changes"`
}

// ArchiveCase commits the current server state of a case to its local history.
func (s *Service) ArchiveCase(ctx context.Context, caseID, message string) (ArchiveResult, error) {
	if s.archive == nil {
		return ArchiveResult{}, unavailableError("Case archive is not configured.")
	}
	view, err := s.CaseDetail(ctx, caseID)
	if err != nil {
		return ArchiveResult{}, err
	}
	if view.Audit.State == audit.StateFailed {
		return ArchiveResult{}, s.fail(ctx, view.Audit.Err)
	}

	snap := gitrepo.Snapshot{
		Case:  view.Case,
		Tasks: view.Tasks,
		Audit: view.Audit.Entries,
	}
	if view.Readiness.Available {
		snap.Readiness = view.Readiness.Summary
	} else {
		s.logger.Warn("archiving without readiness", zap.String("case_id", view.Case.ID))
	}

	previous, _, prevErr := s.archive.Read(view.Case.ID, "")
	if prevErr != nil && !errors.Is(prevErr, gitrepo.ErrNoArchive) {
		return ArchiveResult{}, s.fail(ctx, prevErr)
	}

	id, _ := s.identities.Cached()
	author := id.Email
	if author == "" {
		author = id.UserID
	}
	info, err := s.archive.Commit(snap, author, message)
	if err != nil {
		return ArchiveResult{}, s.fail(ctx, err)
	}
	out := ArchiveResult{Commit: info, Changes: []gitrepo.Change{}}
	if prevErr == nil && !info.Unchanged {
		out.Changes = gitrepo.Changes(previous, snap)
	}
	return out, nil
}

func (s *Service) ArchiveHistory(ctx context.Context, caseID string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.archive == nil {
		return nil, unavailableError("Case archive is not configured.")
	}
	history, err := s.archive.History(strings.TrimSpace(caseID), limit)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return history, nil
}

// ArchivedSnapshot reads one archived snapshot. An empty hash means the latest.
func (s *Service) ArchivedSnapshot(ctx context.Context, caseID, hash string) (gitrepo.Snapshot, readiness.Panel, error) {
	if s.archive == nil {
		return gitrepo.Snapshot{}, readiness.Panel{}, unavailableError("Case archive is not configured.")
	}
	snap, _, err := s.archive.Read(strings.TrimSpace(caseID), strings.TrimSpace(hash))
	if err != nil {
		return gitrepo.Snapshot{}, readiness.Panel{}, s.fail(ctx, err)
	}
	panel := readiness.Summarize(snap.Tasks)
	return snap, readiness.Describe(panel, snap.Case.Status), nil
}
