package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/identity"
	"offboarding/ocm/internal/lifecycle"
	"offboarding/ocm/internal/readiness"
)

const defaultTaskStatus = "open"

const auditCaseUnknown = "Audit trail unavailable (case of this task could not be determined)."

// CaseSummary is one row of the case list.
type CaseSummary struct {
	gateway.CaseRecord
	StatusLabel string `json:"statusLabel"`
}

// CaseView is everything the case detail screen needs in one value.
type CaseView struct {
	Case        gateway.CaseRecord `json:"case"`
	StatusLabel string             `json:"statusLabel"`
	Transitions []lifecycle.Option `json:"transitions"`
	Readiness   readiness.Panel    `json:"readiness"`
	Tasks       []gateway.Task     `json:"tasks"`
	Audit       audit.Trail        `json:"audit"`
	Busy        bool               `json:"busy"`
}

// TransitionResult carries the re-read case and the audit trail fetched after it.
type TransitionResult struct {
	Case        gateway.CaseRecord `json:"case"`
	StatusLabel string             `json:"statusLabel"`
	Audit       audit.Trail        `json:"audit"`
	// Unconfirmed is set when the move was applied but the case could not be re-read;
	// Case is then the record as it was before the move.
	Unconfirmed bool   `json:"unconfirmed,omitempty"`
	Notice      string `json:"notice,omitempty"`
}

type CaseInput struct {
	EmployeeName   string
	CaseNo         string
	Dept           string
	Position       string
	LastWorkingDay string
}

type TaskInput struct {
	CaseID     string
	Title      string
	Status     string
	IsRequired bool
}

// Attachment is an optional file stored next to an evidence note.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type EvidenceInput struct {
	CaseID     string
	TaskID     string
	Note       string
	Attachment *Attachment
}

func (s *Service) ListCases(ctx context.Context, orgID string, limit int) ([]CaseSummary, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	records, err := c.ListCases(ctx, gateway.CaseFilter{OrgID: strings.TrimSpace(orgID), Limit: limit})
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.remember(records...)
	if s.search != nil {
		s.search.IndexCases(records)
	}
	table := s.controller.Table()
	out := make([]CaseSummary, 0, len(records))
	for _, record := range records {
		out = append(out, CaseSummary{CaseRecord: record, StatusLabel: table.Label(record.Status)})
	}
	return out, nil
}

// getCase always reads from the backend; the cache is only written from here and from
// lifecycle events.
func (s *Service) getCase(ctx context.Context, c *gateway.Client, caseID string) (gateway.CaseRecord, error) {
	record, found, err := c.GetCase(ctx, caseID)
	if err != nil {
		return gateway.CaseRecord{}, err
	}
	if !found {
		s.forgetCase(caseID)
		return gateway.CaseRecord{}, lifecycle.ErrCaseNotVisible
	}
	s.remember(record)
	return record, nil
}

func (s *Service) CaseDetail(ctx context.Context, caseID string) (CaseView, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return CaseView{Readiness: readiness.MissingIdentifier(false)}, validationError("case id is required")
	}
	c, err := s.client(ctx)
	if err != nil {
		return CaseView{}, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return CaseView{}, s.fail(ctx, err)
	}
	record, err := s.getCase(ctx, c, caseID)
	if err != nil {
		return CaseView{}, s.fail(ctx, err)
	}

	view := CaseView{
		Case:        record,
		StatusLabel: s.controller.Table().Label(record.Status),
		Busy:        s.controller.Busy(record.ID),
	}

	var summary *readiness.Summary
	if record.OrgID == "" {
		view.Readiness = readiness.MissingIdentifier(true)
	} else {
		tasks, err := c.ListTasks(ctx, record.OrgID, record.ID)
		if err != nil {
			s.logger.Warn("load tasks for readiness", zap.String("case_id", record.ID), zap.Error(err))
			view.Readiness = readiness.LoadFailed(gateway.StatusOf(err))
		} else {
			sum := readiness.Summarize(tasks)
			summary = &sum
			view.Tasks = tasks
			view.Readiness = readiness.Describe(sum, record.Status)
		}
	}
	view.Transitions = s.options(record, id, summary)
	view.Audit = s.refreshAudit(ctx, c, record.ID)
	return view, nil
}

// options applies the identity gate and, for transitions that need it, the readiness gate.
// An unknown readiness keeps such transitions disabled.
func (s *Service) options(record gateway.CaseRecord, id identity.Identity, summary *readiness.Summary) []lifecycle.Option {
	options := s.controller.Options(record, id.Subject())
	for i := range options {
		opt := &options[i]
		if !opt.Enabled || !opt.RequiresReadiness {
			continue
		}
		switch {
		case summary == nil:
			opt.Enabled, opt.Reason = false, "Closure readiness unavailable."
		case !summary.Ready():
			opt.Enabled = false
			opt.Reason = fmt.Sprintf("Required tasks incomplete (%d/%d).", summary.RequiredIncompleteCount, summary.RequiredCount)
		}
	}
	return options
}

// Transition moves a case to toStatus. The stored record is replaced only by the
// re-read that follows a successful write.
func (s *Service) Transition(ctx context.Context, caseID, toStatus string) (TransitionResult, error) {
	caseID = strings.TrimSpace(caseID)
	toStatus = strings.TrimSpace(toStatus)
	if caseID == "" || toStatus == "" {
		return TransitionResult{}, validationError("case id and target status are required")
	}
	if table := s.Lifecycle(); !table.Known(toStatus) {
		return TransitionResult{}, validationError(fmt.Sprintf("unknown status %q (expected one of: %s)", toStatus, strings.Join(table.States(), ", ")))
	}
	c, err := s.client(ctx)
	if err != nil {
		return TransitionResult{}, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return TransitionResult{}, s.fail(ctx, err)
	}
	current, err := s.getCase(ctx, c, caseID)
	if err != nil {
		return TransitionResult{}, s.fail(ctx, err)
	}

	var offered *lifecycle.Option
	for _, opt := range s.controller.Options(current, id.Subject()) {
		if strings.EqualFold(opt.ToStatus, toStatus) {
			offered = &opt
			break
		}
	}
	if offered == nil {
		return TransitionResult{}, s.fail(ctx, fmt.Errorf("%w: %s -> %s", lifecycle.ErrTransitionUnavailable, current.Status, toStatus))
	}
	if !offered.Enabled {
		if s.controller.Busy(current.ID) {
			return TransitionResult{}, s.fail(ctx, lifecycle.ErrInFlight)
		}
		return TransitionResult{}, deniedError(offered.Reason)
	}

	updated, err := s.controller.Perform(ctx, c, current, offered.ToStatus)
	if errors.Is(err, lifecycle.ErrRefreshFailed) {
		s.logger.Warn("case transitioned without refresh",
			zap.String("case_id", current.ID),
			zap.String("to", offered.ToStatus),
			zap.Error(err),
		)
		return TransitionResult{
			Case:        current,
			StatusLabel: s.controller.Table().Label(current.Status),
			Audit:       s.refreshAudit(ctx, c, current.ID),
			Unconfirmed: true,
			Notice:      fmt.Sprintf("Moved to %s, but the case could not be reloaded: %s", s.controller.Table().Label(offered.ToStatus), Classify(err).Message),
		}, nil
	}
	if err != nil {
		return TransitionResult{}, s.fail(ctx, err)
	}
	s.logger.Info("case transitioned",
		zap.String("case_id", updated.ID),
		zap.String("from", current.Status),
		zap.String("to", updated.Status),
		zap.String("user_id", id.UserID),
	)
	return TransitionResult{
		Case:        updated,
		StatusLabel: s.controller.Table().Label(updated.Status),
		Audit:       s.refreshAudit(ctx, c, updated.ID),
	}, nil
}

// Audit always re-reads the trail; there is no cached answer.
func (s *Service) Audit(ctx context.Context, caseID string) (audit.Trail, error) {
	c, err := s.client(ctx)
	if err != nil {
		return audit.Trail{}, s.fail(ctx, err)
	}
	trail := s.refreshAudit(ctx, c, strings.TrimSpace(caseID))
	if trail.State == audit.StateFailed && trail.Err != nil && Classify(trail.Err).Kind == KindUnauthenticated {
		return trail, s.fail(ctx, trail.Err)
	}
	return trail, nil
}

func (s *Service) refreshAudit(ctx context.Context, c *gateway.Client, caseID string) audit.Trail {
	return s.audits.Load(ctx, c, caseID)
}

// CaseResult is a created case plus the audit trail read right after the write.
type CaseResult struct {
	Case  gateway.CaseRecord `json:"case"`
	Audit audit.Trail        `json:"audit"`
}

// TaskResult is a created task plus its case's audit trail.
type TaskResult struct {
	Task  gateway.Task `json:"task"`
	Audit audit.Trail  `json:"audit"`
}

// EvidenceResult is recorded evidence plus the audit trail of the task's case.
type EvidenceResult struct {
	Evidence gateway.Evidence `json:"evidence"`
	CaseID   string           `json:"caseId"`
	Audit    audit.Trail      `json:"audit"`
}

func (s *Service) CreateCase(ctx context.Context, input CaseInput) (CaseResult, error) {
	name := strings.TrimSpace(input.EmployeeName)
	if name == "" {
		return CaseResult{}, validationError("employee name is required")
	}
	c, err := s.client(ctx)
	if err != nil {
		return CaseResult{}, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return CaseResult{}, s.fail(ctx, err)
	}
	if id.OrgID == "" {
		return CaseResult{}, deniedError("Org not set.")
	}
	record, err := c.CreateCase(ctx, gateway.NewCase{
		OrgID:          id.OrgID,
		CreatedBy:      id.UserID,
		EmployeeName:   name,
		Status:         s.controller.Table().Initial,
		CaseNo:         strings.TrimSpace(input.CaseNo),
		Dept:           strings.TrimSpace(input.Dept),
		Position:       strings.TrimSpace(input.Position),
		LastWorkingDay: strings.TrimSpace(input.LastWorkingDay),
	})
	if err != nil {
		return CaseResult{}, s.fail(ctx, err)
	}
	s.remember(record)
	if s.search != nil {
		s.search.IndexCases([]gateway.CaseRecord{record})
	}
	return CaseResult{Case: record, Audit: s.refreshAudit(ctx, c, record.ID)}, nil
}

func (s *Service) ListTasks(ctx context.Context, caseID string) ([]gateway.Task, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	record, err := s.getCase(ctx, c, strings.TrimSpace(caseID))
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	tasks, err := c.ListTasks(ctx, record.OrgID, record.ID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return tasks, nil
}

func (s *Service) CreateTask(ctx context.Context, input TaskInput) (TaskResult, error) {
	title := strings.TrimSpace(input.Title)
	if strings.TrimSpace(input.CaseID) == "" || title == "" {
		return TaskResult{}, validationError("case id and title are required")
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = defaultTaskStatus
	}
	c, err := s.client(ctx)
	if err != nil {
		return TaskResult{}, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return TaskResult{}, s.fail(ctx, err)
	}
	if id.OrgID == "" {
		return TaskResult{}, deniedError("Org not set.")
	}
	task, err := c.CreateTask(ctx, gateway.NewTask{
		OrgID:      id.OrgID,
		CreatedBy:  id.UserID,
		CaseID:     strings.TrimSpace(input.CaseID),
		Title:      title,
		Status:     status,
		IsRequired: input.IsRequired,
	})
	if err != nil {
		return TaskResult{}, s.fail(ctx, err)
	}
	caseID := task.CaseID
	if caseID == "" {
		caseID = strings.TrimSpace(input.CaseID)
	}
	return TaskResult{Task: task, Audit: s.refreshAudit(ctx, c, caseID)}, nil
}

func (s *Service) ListEvidence(ctx context.Context, taskID string) ([]gateway.Evidence, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, validationError("task id is required")
	}
	c, err := s.client(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	evidence, err := c.ListEvidence(ctx, id.OrgID, taskID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return evidence, nil
}

// AddEvidence records a note and, when given, uploads the attachment first. A failed
// insert removes the uploaded object again. The audit trail of the task's case is
// re-read afterwards; the case is looked up from the task when input.CaseID is empty.
func (s *Service) AddEvidence(ctx context.Context, input EvidenceInput) (EvidenceResult, error) {
	taskID := strings.TrimSpace(input.TaskID)
	note := strings.TrimSpace(input.Note)
	if taskID == "" || note == "" {
		return EvidenceResult{}, validationError("task id and note are required")
	}
	if input.Attachment != nil && s.attachments == nil {
		return EvidenceResult{}, unavailableError("Attachment storage is not configured.")
	}
	c, err := s.client(ctx)
	if err != nil {
		return EvidenceResult{}, s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return EvidenceResult{}, s.fail(ctx, err)
	}
	if id.OrgID == "" {
		return EvidenceResult{}, deniedError("Org not set.")
	}

	var objectPath string
	if a := input.Attachment; a != nil {
		objectPath, err = s.attachments.Upload(ctx, id.OrgID, taskID, a.Name, a.Body, a.Size, a.ContentType)
		if err != nil {
			return EvidenceResult{}, s.fail(ctx, fmt.Errorf("upload attachment: %w", err))
		}
	}

	evidence, err := c.CreateEvidence(ctx, gateway.NewEvidence{
		OrgID:       id.OrgID,
		CreatedBy:   id.UserID,
		TaskID:      taskID,
		Note:        note,
		StoragePath: objectPath,
	})
	if err != nil {
		if objectPath != "" {
			if rmErr := s.attachments.Remove(context.WithoutCancel(ctx), objectPath); rmErr != nil {
				s.logger.Warn("remove orphaned attachment", zap.String("path", objectPath), zap.Error(rmErr))
			}
		}
		return EvidenceResult{}, s.fail(ctx, err)
	}
	out := EvidenceResult{Evidence: evidence, CaseID: strings.TrimSpace(input.CaseID)}
	if out.CaseID == "" {
		task, ok, err := c.GetTask(ctx, taskID)
		switch {
		case err != nil:
			s.logger.Warn("look up case for evidence", zap.String("task_id", taskID), zap.Error(err))
		case ok:
			out.CaseID = task.CaseID
		}
	}
	if out.CaseID == "" {
		out.Audit = audit.Trail{State: audit.StateFailed, Message: auditCaseUnknown}
		return out, nil
	}
	out.Audit = s.refreshAudit(ctx, c, out.CaseID)
	return out, nil
}

const evidenceLinkTTL = 15 * time.Minute

// EvidenceLink returns a short-lived download link for an uploaded attachment.
func (s *Service) EvidenceLink(ctx context.Context, storagePath string) (string, error) {
	storagePath = strings.TrimSpace(storagePath)
	if storagePath == "" {
		return "", validationError("storage path is required")
	}
	if s.attachments == nil {
		return "", unavailableError("Attachment storage is not configured.")
	}
	if _, err := s.client(ctx); err != nil {
		return "", s.fail(ctx, err)
	}
	link, err := s.attachments.SignedURL(ctx, storagePath, evidenceLinkTTL)
	if err != nil {
		return "", s.fail(ctx, err)
	}
	return link, nil
}
