package rbac

import "strings"

type Role string
type Action string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleUnknown Role = "unknown"
)

const (
	ActionRead           Action = "read"
	ActionWrite          Action = "write"
	ActionTransition     Action = "transition"
	ActionDecide         Action = "decide"
	ActionAssignReviewer Action = "assign_reviewer"
	ActionManageUsers    Action = "manage_users"
)

// Can is the per-role action table. It only decides which controls are offered;
// the backend still enforces every request.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner, RoleAdmin:
		return true
	case RoleMember:
		return action == ActionRead || action == ActionWrite || action == ActionTransition
	default:
		return action == ActionRead
	}
}

// Normalize maps anything outside the known roles to RoleUnknown.
func Normalize(role string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r
	default:
		return RoleUnknown
	}
}

// Subject is the slice of a resolved identity the gate looks at.
type Subject struct {
	Role          Role
	OrgID         string
	PlatformAdmin bool
}

func IsOwnerOrAdmin(s Subject) bool {
	return s.Role == RoleOwner || s.Role == RoleAdmin
}

func IsPlatformAdmin(s Subject) bool {
	return s.PlatformAdmin
}

func CanManageUsers(s Subject) bool {
	return IsOwnerOrAdmin(s) && s.OrgID != ""
}

func CanAssignReviewer(s Subject) bool {
	return IsOwnerOrAdmin(s) && Can(s.Role, ActionAssignReviewer)
}

// Allows combines the role table with the org requirement shared by all mutations.
func Allows(s Subject, action Action) bool {
	if action != ActionRead && s.OrgID == "" {
		return false
	}
	return Can(s.Role, action)
}
