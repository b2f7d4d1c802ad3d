// Package lifecycle owns case status transitions: which moves are legal, who is offered
// them, and how the cached case is re-read after the backend applies one.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/obs"
	"offboarding/ocm/internal/rbac"
	"offboarding/ocm/internal/readiness"
)

var (
	ErrInFlight              = errors.New("a transition for this case is already in progress")
	ErrTransitionUnavailable = errors.New("transition not available from the current status")
	ErrNotReady              = errors.New("required tasks incomplete")
	ErrCaseNotVisible        = errors.New("case not found after transition")
	ErrRefreshFailed         = errors.New("transition applied but the case could not be re-read")
)

// RefreshError reports a transition the backend accepted whose follow-up read failed.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("transition applied, refresh failed: %v", e.Err)
}

func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// NotReadyError carries the task counts behind ErrNotReady.
type NotReadyError struct {
	Summary readiness.Summary
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("required tasks incomplete (%d/%d)", e.Summary.RequiredIncompleteCount, e.Summary.RequiredCount)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// Backend is the part of the gateway the controller calls.
type Backend interface {
	GetCase(ctx context.Context, caseID string) (gateway.CaseRecord, bool, error)
	TransitionCaseStatus(ctx context.Context, caseID, toStatus string) error
	PatchCaseStatus(ctx context.Context, caseID, status string) error
	ListTasks(ctx context.Context, orgID, caseID string) ([]gateway.Task, error)
}

type EventKind string

const (
	EventTransitioned EventKind = "transitioned"
	EventFailed       EventKind = "failed"
	// EventUnconfirmed: the backend applied the move but the case could not be re-read.
	EventUnconfirmed EventKind = "unconfirmed"
)

// Event is published after every settled transition so views can redraw from the
// re-read record instead of from the request.
type Event struct {
	Kind       EventKind
	CaseID     string
	FromStatus string
	ToStatus   string
	Case       gateway.CaseRecord
	Err        error
}

// Option is a transition as offered to one caller.
type Option struct {
	Transition
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

type Controller struct {
	table  *Table
	logger *zap.Logger

	mu        sync.Mutex
	inFlight  map[string]struct{}
	listeners map[int]func(Event)
	nextID    int
}

func NewController(table *Table, logger *zap.Logger) *Controller {
	if table == nil {
		table = Review()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		table:     table,
		logger:    logger,
		inFlight:  make(map[string]struct{}),
		listeners: make(map[int]func(Event)),
	}
}

func (c *Controller) Table() *Table {
	return c.table
}

func (c *Controller) Available(status string) []Transition {
	return c.table.Available(status)
}

// Subscribe registers fn for transition events and returns a func that removes it.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Busy reports whether a transition for caseID has not yet settled.
func (c *Controller) Busy(caseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[caseID]
	return ok
}

// Options lists the moves out of the case's status and whether subject is offered each.
// Every option is disabled while a transition for the case is in flight.
func (c *Controller) Options(record gateway.CaseRecord, subject rbac.Subject) []Option {
	moves := c.table.Available(record.Status)
	busy := c.Busy(record.ID)
	options := make([]Option, 0, len(moves))
	for _, move := range moves {
		opt := Option{Transition: move, Enabled: true}
		switch {
		case busy:
			opt.Enabled, opt.Reason = false, "Updating case status..."
		case subject.OrgID == "":
			opt.Enabled, opt.Reason = false, "Org not set."
		case !rbac.Allows(subject, move.Action):
			opt.Enabled, opt.Reason = false, "Owner or admin role required."
		}
		options = append(options, opt)
	}
	return options
}

func (c *Controller) acquire(caseID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inFlight[caseID]; ok {
		return false
	}
	c.inFlight[caseID] = struct{}{}
	return true
}

func (c *Controller) release(caseID string) {
	c.mu.Lock()
	delete(c.inFlight, caseID)
	c.mu.Unlock()
}

// Perform applies the move from current.Status to toStatus and returns the case as
// re-read from the backend. On failure current is returned unchanged. When the move was
// applied but the re-read failed the error satisfies ErrRefreshFailed. A second call
// for the same case while one is in flight returns ErrInFlight without a request.
func (c *Controller) Perform(ctx context.Context, backend Backend, current gateway.CaseRecord, toStatus string) (gateway.CaseRecord, error) {
	if current.ID == "" {
		return current, errors.New("case id is required")
	}
	if !c.acquire(current.ID) {
		return current, ErrInFlight
	}
	defer c.release(current.ID)

	refreshed, err := c.perform(ctx, backend, current, toStatus)
	outcome := "ok"
	event := Event{Kind: EventTransitioned, CaseID: current.ID, FromStatus: current.Status, ToStatus: toStatus, Case: refreshed}
	switch {
	case errors.Is(err, ErrRefreshFailed):
		outcome = "unconfirmed"
		event = Event{Kind: EventUnconfirmed, CaseID: current.ID, FromStatus: current.Status, ToStatus: toStatus, Case: current, Err: err}
		c.logger.Warn("case transitioned but refresh failed",
			zap.String("case_id", current.ID),
			zap.String("from", current.Status),
			zap.String("to", toStatus),
			zap.Error(err),
		)
	case err != nil:
		outcome = "error"
		event = Event{Kind: EventFailed, CaseID: current.ID, FromStatus: current.Status, ToStatus: toStatus, Case: current, Err: err}
		c.logger.Warn("case transition failed",
			zap.String("case_id", current.ID),
			zap.String("from", current.Status),
			zap.String("to", toStatus),
			zap.Error(err),
		)
	default:
		c.logger.Info("case transitioned",
			zap.String("case_id", current.ID),
			zap.String("from", current.Status),
			zap.String("requested", toStatus),
			zap.String("status", refreshed.Status),
		)
	}
	obs.ObserveTransition(toStatus, outcome)
	c.publish(event)

	if err != nil {
		return current, err
	}
	return refreshed, nil
}

func (c *Controller) perform(ctx context.Context, backend Backend, current gateway.CaseRecord, toStatus string) (gateway.CaseRecord, error) {
	move, ok := c.table.Find(current.Status, toStatus)
	if !ok {
		return current, fmt.Errorf("%w: %s -> %s", ErrTransitionUnavailable, current.Status, toStatus)
	}

	if move.RequiresReadiness {
		tasks, err := backend.ListTasks(ctx, current.OrgID, current.ID)
		if err != nil {
			return current, fmt.Errorf("load tasks for readiness: %w", err)
		}
		if summary := readiness.Summarize(tasks); !summary.Ready() {
			return current, &NotReadyError{Summary: summary}
		}
	}

	var err error
	switch c.table.Transport {
	case TransportPatch:
		err = backend.PatchCaseStatus(ctx, current.ID, move.ToStatus)
	default:
		err = backend.TransitionCaseStatus(ctx, current.ID, move.ToStatus)
	}
	if err != nil {
		return current, err
	}

	refreshed, found, err := backend.GetCase(ctx, current.ID)
	if err != nil {
		return current, &RefreshError{Err: err}
	}
	if !found {
		return current, &RefreshError{Err: ErrCaseNotVisible}
	}
	return refreshed, nil
}

func (c *Controller) publish(event Event) {
	c.mu.Lock()
	listeners := make([]func(Event), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}
