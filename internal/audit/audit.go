// Package audit mirrors the backend's append-only action log for a case.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"offboarding/ocm/internal/gateway"
)

type State string

const (
	StateLoaded State = "loaded"
	StateEmpty  State = "empty"
	StateFailed State = "failed"
)

const (
	EmptyMessage = "No audit activity found."
	noMetadata   = "—"
)

var actionLabels = map[string]string{
	"case.create":     "Case created",
	"case.close":      "Case closed",
	"case.transition": "Case status changed",
	"case.assign":     "Reviewer assigned",
	"task.create":     "Task created",
	"evidence.create": "Evidence created",
}

type Row struct {
	CreatedAt string `json:"createdAt"`
	Actor     string `json:"actor"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Metadata  string `json:"metadata"`
}

// Trail is one fresh read. Failed and Empty are distinct so an unreachable backend is
// never shown as an empty history.
type Trail struct {
	CaseID  string                  `json:"caseId"`
	State   State                   `json:"state"`
	Entries []gateway.AuditLogEntry `json:"entries,omitempty"`
	Rows    []Row                   `json:"rows,omitempty"`
	Status  int                     `json:"status,omitempty"`
	Message string                  `json:"message,omitempty"`
	Err     error                   `json:"-"`
}

type Source interface {
	ListAuditLogs(ctx context.Context, caseID string) ([]gateway.AuditLogEntry, error)
}

type Mirror struct {
	logger *zap.Logger
}

func NewMirror(logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{logger: logger}
}

// Load always reads from the backend; results are never merged with earlier reads.
func (m *Mirror) Load(ctx context.Context, src Source, caseID string) Trail {
	trail := Trail{CaseID: caseID}
	if strings.TrimSpace(caseID) == "" {
		return failed(trail, errors.New("case id is required"))
	}
	entries, err := src.ListAuditLogs(ctx, caseID)
	if err != nil {
		m.logger.Warn("audit trail load failed", zap.String("case_id", caseID), zap.Error(err))
		return failed(trail, err)
	}
	if len(entries) == 0 {
		trail.State = StateEmpty
		trail.Message = EmptyMessage
		return trail
	}
	sortNewestFirst(entries)
	trail.State = StateLoaded
	trail.Entries = entries
	trail.Rows = make([]Row, len(entries))
	for i, entry := range entries {
		trail.Rows[i] = FormatRow(entry)
	}
	return trail
}

func failed(trail Trail, err error) Trail {
	trail.State = StateFailed
	trail.Err = err
	trail.Status = gateway.StatusOf(err)
	code := "error"
	if trail.Status > 0 {
		code = fmt.Sprint(trail.Status)
	}
	trail.Message = fmt.Sprintf("Unable to load audit timeline (%s).", code)
	return trail
}

func sortNewestFirst(entries []gateway.AuditLogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return parseTime(entries[i].CreatedAt).After(parseTime(entries[j].CreatedAt))
	})
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

// parseTime returns the zero time for values it cannot read, which sorts them last.
func parseTime(value string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func FormatRow(entry gateway.AuditLogEntry) Row {
	createdAt := entry.CreatedAt
	if createdAt == "" {
		createdAt = "Unknown time"
	}
	return Row{
		CreatedAt: createdAt,
		Actor:     FormatActor(entry),
		Action:    FormatAction(entry.Action),
		Target:    FormatTarget(entry),
		Metadata:  FormatMetadata(entry.Metadata),
	}
}

func FormatAction(action string) string {
	if action == "" {
		return "Unknown action"
	}
	if label, ok := actionLabels[action]; ok {
		return label
	}
	return action
}

func FormatActor(entry gateway.AuditLogEntry) string {
	for _, candidate := range []string{entry.ActorUserID, entry.Actor, entry.ActorID} {
		if candidate != "" {
			return candidate
		}
	}
	return "Unknown actor"
}

func FormatTarget(entry gateway.AuditLogEntry) string {
	entityType := entry.EntityType
	if entityType == "" {
		entityType = "unknown"
	}
	entityID := entry.EntityID
	if entityID == "" {
		entityID = "unknown"
	}
	return fmt.Sprintf("%s (%s)", entityType, entityID)
}

func FormatMetadata(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return noMetadata
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(trimmed)
	}
	return out.String()
}
