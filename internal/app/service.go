package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/auth"
	"offboarding/ocm/internal/email"
	"offboarding/ocm/internal/export"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/gitrepo"
	"offboarding/ocm/internal/identity"
	"offboarding/ocm/internal/lifecycle"
	"offboarding/ocm/internal/search"
	"offboarding/ocm/internal/session"
)

// AttachmentStore uploads evidence files. storage.Uploader implements it.
type AttachmentStore interface {
	Upload(ctx context.Context, orgID, taskID, name string, body io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, objectPath string) error
	SignedURL(ctx context.Context, objectPath string, ttl time.Duration) (string, error)
}

// Exporter renders case reports. export.Service implements it.
type Exporter interface {
	Export(ctx context.Context, r export.Report, format export.Format) (*export.Result, error)
}

// Archiver keeps case snapshots. gitrepo.Archive implements it.
type Archiver interface {
	Commit(snap gitrepo.Snapshot, author, message string) (gitrepo.CommitInfo, error)
	Read(caseID, hash string) (gitrepo.Snapshot, gitrepo.CommitInfo, error)
	History(caseID string, limit int) ([]gitrepo.CommitInfo, error)
}

// Notifier sends reviewer notices. email.Service implements it.
type Notifier interface {
	IsConfigured() bool
	SendReviewerNotice(ctx context.Context, n email.ReviewerNotice) error
}

// CaseSearch answers case queries. search.Service implements it.
type CaseSearch interface {
	SearchWith(ctx context.Context, fallback search.Fallback, q search.Query) (search.Response, error)
	IndexCases(cases []gateway.CaseRecord)
	DeleteCase(id string)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies wires the service. Gateway and Sessions are required; the
// rest are optional and their operations report KindUnavailable when nil.
type Dependencies struct {
	Gateway     *gateway.Client
	Sessions    session.Store
	Lifecycle   *lifecycle.Table
	Search      CaseSearch
	Attachments AttachmentStore
	Exporter    Exporter
	Archive     Archiver
	Notifier    Notifier
	Logger      *zap.Logger
}

// Service is the orchestration layer the CLI talks to. It owns the session,
// the resolved identity and the case read cache; every mutation is followed
// by a re-read of the affected case and its audit trail.
type Service struct {
	gateway     *gateway.Client
	sessions    session.Store
	identities  *identity.Resolver
	controller  *lifecycle.Controller
	audits      *audit.Mirror
	search      CaseSearch
	attachments AttachmentStore
	exporter    Exporter
	archive     Archiver
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time

	mu       sync.Mutex
	cases    map[string]gateway.CaseRecord
	stopSync func()
}

func New(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		gateway:     deps.Gateway,
		sessions:    deps.Sessions,
		identities:  identity.NewResolver(logger.Named("identity")),
		controller:  lifecycle.NewController(deps.Lifecycle, logger.Named("lifecycle")),
		audits:      audit.NewMirror(logger.Named("audit")),
		search:      deps.Search,
		attachments: deps.Attachments,
		exporter:    deps.Exporter,
		archive:     deps.Archive,
		notifier:    deps.Notifier,
		logger:      logger,
		now:         time.Now,
		cases:       make(map[string]gateway.CaseRecord),
	}
	s.stopSync = s.controller.Subscribe(s.onTransition)
	return s
}

// Close detaches the service from lifecycle events.
func (s *Service) Close() {
	if s.stopSync != nil {
		s.stopSync()
	}
}

// Lifecycle exposes the active transition table.
func (s *Service) Lifecycle() *lifecycle.Table {
	return s.controller.Table()
}

// Subscribe forwards lifecycle events, e.g. so a watcher can redraw.
func (s *Service) Subscribe(fn func(lifecycle.Event)) func() {
	return s.controller.Subscribe(fn)
}

// onTransition keeps the case cache in step with the re-read record.
func (s *Service) onTransition(ev lifecycle.Event) {
	if ev.Kind == lifecycle.EventUnconfirmed {
		// the cached status is stale; the next read reloads it
		s.mu.Lock()
		delete(s.cases, ev.CaseID)
		s.mu.Unlock()
		return
	}
	if ev.Kind != lifecycle.EventTransitioned {
		return
	}
	s.remember(ev.Case)
	if s.search != nil {
		s.search.IndexCases([]gateway.CaseRecord{ev.Case})
	}
}

func (s *Service) remember(records ...gateway.CaseRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		if record.ID != "" {
			s.cases[record.ID] = record
		}
	}
}

// forgetCase drops a case the backend no longer returns for this caller.
func (s *Service) forgetCase(caseID string) {
	s.mu.Lock()
	delete(s.cases, caseID)
	s.mu.Unlock()
	if s.search != nil {
		s.search.DeleteCase(caseID)
	}
}

// CachedCase returns the last record read from the backend for caseID.
func (s *Service) CachedCase(caseID string) (gateway.CaseRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.cases[caseID]
	return record, ok
}

// SignIn exchanges credentials, stores the session and resolves the identity.
func (s *Service) SignIn(ctx context.Context, email, password string) (identity.Identity, error) {
	grant, err := s.gateway.SignInWithPassword(ctx, email, password)
	if err != nil {
		return identity.Unresolved(), s.fail(ctx, err)
	}
	return s.adopt(ctx, session.Session{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresIn:    grant.ExpiresIn,
		TokenType:    grant.TokenType,
	})
}

// SignInWithToken stores a token obtained elsewhere, e.g. from a magic-link redirect.
func (s *Service) SignInWithToken(ctx context.Context, accessToken, refreshToken string, expiresIn int64) (identity.Identity, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return identity.Unresolved(), validationError("access token is required")
	}
	return s.adopt(ctx, session.Session{
		AccessToken:  accessToken,
		RefreshToken: strings.TrimSpace(refreshToken),
		ExpiresIn:    expiresIn,
		TokenType:    "bearer",
	})
}

func (s *Service) adopt(ctx context.Context, sess session.Session) (identity.Identity, error) {
	s.identities.Forget()
	s.resetCaches()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return identity.Unresolved(), s.fail(ctx, err)
	}
	id, err := s.resolve(ctx, s.gateway.WithToken(sess.AccessToken))
	if err != nil {
		return id, s.fail(ctx, err)
	}
	s.logger.Info("signed in", zap.String("user_id", id.UserID), zap.String("org_id", id.OrgID))
	return id, nil
}

// SendMagicLink asks the backend to email a sign-in link.
func (s *Service) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	if err := s.gateway.SendMagicLink(ctx, email, redirectTo); err != nil {
		return s.fail(ctx, err)
	}
	return nil
}

// SignOut destroys the session and everything derived from it.
func (s *Service) SignOut(ctx context.Context) error {
	s.identities.Forget()
	s.resetCaches()
	if err := s.sessions.Clear(ctx); err != nil {
		return s.fail(ctx, err)
	}
	return nil
}

func (s *Service) resetCaches() {
	s.mu.Lock()
	s.cases = make(map[string]gateway.CaseRecord)
	s.mu.Unlock()
}

// SessionInfo describes the stored token without calling the backend.
type SessionInfo struct {
	Active      bool      `json:"active"`
	Subject     string    `json:"subject,omitempty"`
	Email       string    `json:"email,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt,omitempty"`
	Expired     bool      `json:"expired"`
	Fingerprint string    `json:"fingerprint,omitempty"`
}

func (s *Service) SessionInfo(ctx context.Context) (SessionInfo, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		return SessionInfo{}, s.fail(ctx, err)
	}
	if sess == nil {
		return SessionInfo{}, nil
	}
	info := SessionInfo{
		Active:      true,
		ExpiresAt:   sess.ExpiresAt(),
		Fingerprint: auth.HashToken(sess.AccessToken)[:12],
	}
	if claims, err := auth.ParseClaims(sess.AccessToken); err == nil {
		info.Subject = claims.Subject
		info.Email = claims.Email
		if !claims.ExpiresAt.IsZero() {
			info.ExpiresAt = claims.ExpiresAt
		}
	}
	info.Expired = !info.ExpiresAt.IsZero() && !s.now().Before(info.ExpiresAt)
	return info, nil
}

// client returns a gateway client bound to the stored session. A token whose
// exp claim has passed is discarded here instead of being sent.
func (s *Service) client(ctx context.Context) (*gateway.Client, error) {
	sess, err := session.Require(ctx, s.sessions)
	if err != nil {
		return nil, err
	}
	if claims, err := auth.ParseClaims(sess.AccessToken); err == nil && claims.Expired(s.now()) {
		s.dropSession(ctx)
		return nil, &DomainError{
			Kind:    KindUnauthenticated,
			Status:  http.StatusUnauthorized,
			Code:    "UNAUTHENTICATED",
			Message: "Session expired. Please sign in again.",
			Err:     session.ErrNoSession,
		}
	}
	return s.gateway.WithToken(sess.AccessToken), nil
}

// Identity re-resolves the caller against the backend.
func (s *Service) Identity(ctx context.Context) (identity.Identity, error) {
	c, err := s.client(ctx)
	if err != nil {
		return identity.Unresolved(), s.fail(ctx, err)
	}
	id, err := s.resolve(ctx, c)
	if err != nil {
		return id, s.fail(ctx, err)
	}
	return id, nil
}

// currentIdentity returns the identity cached for this process, resolving it once.
func (s *Service) currentIdentity(ctx context.Context, c *gateway.Client) (identity.Identity, error) {
	if id, ok := s.identities.Cached(); ok {
		return id, nil
	}
	return s.resolve(ctx, c)
}

// refreshIdentity runs after actions that can change membership.
func (s *Service) refreshIdentity(ctx context.Context, c *gateway.Client) identity.Identity {
	id, err := s.resolve(ctx, c)
	if err != nil {
		s.logger.Warn("identity refresh failed", zap.Error(err))
	}
	return id
}

// resolve seeds the resolver with the identity stored in the session, resolves
// against the backend and stores the result for the next process.
func (s *Service) resolve(ctx context.Context, c *gateway.Client) (identity.Identity, error) {
	sess, err := s.sessions.Load(ctx)
	if err != nil {
		s.logger.Warn("load session for identity", zap.Error(err))
	}
	if sess != nil && sess.Identity != nil {
		s.identities.Seed(*sess.Identity)
	}
	id, err := s.identities.Resolve(ctx, c)
	if err != nil || id.State != identity.StateResolved || sess == nil {
		return id, err
	}
	if sess.Identity != nil && *sess.Identity == id {
		return id, nil
	}
	sess.Identity = &id
	if err := s.sessions.Save(ctx, *sess); err != nil {
		s.logger.Warn("store identity in session", zap.Error(err))
	}
	return id, nil
}

// fail classifies err for display. A backend rejection of the token destroys the session.
func (s *Service) fail(ctx context.Context, err error) error {
	de := Classify(err)
	if de == nil {
		return nil
	}
	var httpErr *gateway.Error
	if de.Kind == KindUnauthenticated && errors.As(err, &httpErr) {
		s.dropSession(ctx)
	}
	return de
}

func (s *Service) dropSession(ctx context.Context) {
	s.identities.Forget()
	s.resetCaches()
	if err := s.sessions.Clear(ctx); err != nil {
		s.logger.Warn("clear rejected session", zap.Error(err))
	}
}

func validationError(message string) *DomainError {
	return &DomainError{Kind: KindValidation, Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

func deniedError(message string) *DomainError {
	return &DomainError{Kind: KindAccessDenied, Status: http.StatusForbidden, Code: "ACCESS_DENIED", Message: message}
}

func unavailableError(message string) *DomainError {
	return &DomainError{Kind: KindUnavailable, Code: "UNAVAILABLE", Message: message}
}

// Ping checks the session backend and attachment storage when they support it, then the auth service.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.sessions.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	if p, ok := s.attachments.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return s.gateway.Health(ctx)
}
