// Package identity derives the caller's effective role, org and admin flags from the
// backend profile and membership records.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/rbac"
)

var ErrProfileUnavailable = errors.New("profile unavailable")

type State string

const (
	StateUnresolved State = "unresolved"
	StateResolved   State = "resolved"
	StateError      State = "error"
)

// Identity is display-safe and carries no timestamps, so two resolutions against
// unchanged backend state compare equal.
type Identity struct {
	State           State     `json:"state"`
	UserID          string    `json:"userId,omitempty"`
	Email           string    `json:"email"`
	Role            rbac.Role `json:"role"`
	OrgID           string    `json:"orgId,omitempty"`
	OrgName         string    `json:"orgName,omitempty"`
	OrgNotSet       bool      `json:"orgNotSet"`
	PlatformAdmin   bool      `json:"platformAdmin"`
	MembershipError string    `json:"membershipError,omitempty"`
}

func Unresolved() Identity {
	return Identity{State: StateUnresolved, Role: rbac.RoleUnknown, OrgNotSet: true}
}

func (i Identity) Subject() rbac.Subject {
	return rbac.Subject{Role: i.Role, OrgID: i.OrgID, PlatformAdmin: i.PlatformAdmin}
}

func (i Identity) IsOwnerOrAdmin() bool  { return rbac.IsOwnerOrAdmin(i.Subject()) }
func (i Identity) IsPlatformAdmin() bool { return rbac.IsPlatformAdmin(i.Subject()) }
func (i Identity) CanManageUsers() bool  { return rbac.CanManageUsers(i.Subject()) }

// Source is the part of the gateway the resolver needs.
type Source interface {
	GetUser(ctx context.Context) (gateway.User, error)
	CurrentMembership(ctx context.Context) (gateway.Membership, bool, error)
}

type Resolver struct {
	logger *zap.Logger

	mu     sync.Mutex
	cached *Identity
	seed   *Identity
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Cached returns the last successfully resolved identity, if any.
func (r *Resolver) Cached() (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil {
		return Unresolved(), false
	}
	return *r.cached, true
}

// Seed supplies an identity persisted by an earlier process. It is only returned when
// the profile fetch fails before anything was resolved here.
func (r *Resolver) Seed(id Identity) {
	if id.State != StateResolved {
		return
	}
	r.mu.Lock()
	r.seed = &id
	r.mu.Unlock()
}

// Forget drops the cache and any seed, e.g. on logout.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.cached = nil
	r.seed = nil
	r.mu.Unlock()
}

func (r *Resolver) fallback() (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.cached != nil:
		return *r.cached, true
	case r.seed != nil:
		return *r.seed, true
	}
	return Unresolved(), false
}

// Resolve always calls the backend. A membership failure still yields an identity with
// OrgNotSet and MembershipError set. A profile failure falls back to the cached identity,
// then to the seed.
func (r *Resolver) Resolve(ctx context.Context, src Source) (Identity, error) {
	var (
		user          gateway.User
		userErr       error
		membership    gateway.Membership
		hasMembership bool
		membershipErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		user, userErr = src.GetUser(ctx)
		return nil
	})
	g.Go(func() error {
		membership, hasMembership, membershipErr = src.CurrentMembership(ctx)
		return nil
	})
	_ = g.Wait()

	if userErr != nil {
		r.logger.Warn("profile fetch failed", zap.Error(userErr))
		if last, ok := r.fallback(); ok {
			return last, nil
		}
		failed := Unresolved()
		failed.State = StateError
		return failed, fmt.Errorf("%w: %w", ErrProfileUnavailable, userErr)
	}

	resolved := merge(user, membership, hasMembership, membershipErr)
	if membershipErr != nil {
		r.logger.Warn("membership fetch failed", zap.Error(membershipErr))
	}

	r.mu.Lock()
	r.cached = &resolved
	r.mu.Unlock()
	return resolved, nil
}

func merge(user gateway.User, membership gateway.Membership, hasMembership bool, membershipErr error) Identity {
	id := Identity{
		State:         StateResolved,
		UserID:        user.ID,
		Email:         user.Email,
		Role:          rbac.RoleUnknown,
		OrgNotSet:     true,
		PlatformAdmin: user.PlatformAdmin(),
	}
	if membershipErr != nil {
		id.MembershipError = membershipErr.Error()
		return id
	}
	if hasMembership {
		id.Role = rbac.Normalize(membership.Role)
		id.OrgID = membership.OrgID
		id.OrgName = membership.OrgName
		id.OrgNotSet = false
	}
	return id
}
