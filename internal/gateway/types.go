package gateway

import "encoding/json"

// AuthSession is the token grant returned by the auth endpoint.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type"`
	User         *User  `json:"user,omitempty"`
}

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// PlatformAdmin reports app_metadata.platform_admin == true. Any other value is false.
func (u *User) PlatformAdmin() bool {
	if u == nil || u.AppMetadata == nil {
		return false
	}
	flag, ok := u.AppMetadata["platform_admin"].(bool)
	return ok && flag
}

// Membership is one row of get_current_org_context.
type Membership struct {
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name"`
	Role    string `json:"role"`
}

type CaseRecord struct {
	ID             string `json:"id"`
	CaseNo         string `json:"case_no"`
	OrgID          string `json:"org_id"`
	EmployeeName   string `json:"employee_name"`
	Dept           string `json:"dept"`
	Position       string `json:"position"`
	LastWorkingDay string `json:"last_working_day"`
	Status         string `json:"status"`
	CreatedBy      string `json:"created_by,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type NewCase struct {
	OrgID          string `json:"org_id"`
	CreatedBy      string `json:"created_by"`
	EmployeeName   string `json:"employee_name"`
	Status         string `json:"status"`
	CaseNo         string `json:"case_no,omitempty"`
	Dept           string `json:"dept,omitempty"`
	Position       string `json:"position,omitempty"`
	LastWorkingDay string `json:"last_working_day,omitempty"`
}

type Task struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	CaseID     string `json:"case_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	IsRequired bool   `json:"is_required"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type NewTask struct {
	OrgID      string `json:"org_id"`
	CreatedBy  string `json:"created_by"`
	CaseID     string `json:"case_id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	IsRequired bool   `json:"is_required"`
}

type Evidence struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	TaskID      string `json:"task_id"`
	Note        string `json:"note"`
	StoragePath string `json:"storage_path,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type NewEvidence struct {
	OrgID       string `json:"org_id"`
	CreatedBy   string `json:"created_by"`
	TaskID      string `json:"task_id"`
	Note        string `json:"note"`
	StoragePath string `json:"storage_path,omitempty"`
}

type AuditLogEntry struct {
	ID          string          `json:"id,omitempty"`
	CaseID      string          `json:"case_id,omitempty"`
	CreatedAt   string          `json:"created_at"`
	ActorUserID string          `json:"actor_user_id,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	ActorID     string          `json:"actor_id,omitempty"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// CaseFilter narrows a case listing. Zero fields are not sent.
type CaseFilter struct {
	OrgID        string
	CaseID       string
	CaseIDs      []string
	EmployeeLike string
	Limit        int
}

type InspectUserRow struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	IsPlatformAdmin bool   `json:"is_platform_admin"`
	OrgCount        int    `json:"org_count"`
	OrgID           string `json:"org_id"`
	Role            string `json:"role"`
}

type InspectOrgRow struct {
	OrgID               string `json:"org_id"`
	MemberCount         int    `json:"member_count"`
	CaseCount           int    `json:"case_count"`
	CasesWithoutMembers bool   `json:"cases_without_members"`
	MembersWithoutCases bool   `json:"members_without_cases"`
}

type AccessCheckRow struct {
	UserID    string `json:"user_id"`
	CaseID    string `json:"case_id"`
	CaseOrgID string `json:"case_org_id"`
	IsVisible bool   `json:"is_visible"`
	Reason    string `json:"reason"`
}

type ReportingSanityRow struct {
	OrgID                        string `json:"org_id"`
	CaseCount                    int    `json:"case_count"`
	ReportingCaseSLACount        int    `json:"reporting_case_sla_count"`
	ReportingCaseEscalationCount int    `json:"reporting_case_escalation_count"`
	ReportingEmpty               bool   `json:"reporting_empty"`
	ReportingEmptyReason         string `json:"reporting_empty_reason"`
}

type ManageableOrg struct {
	OrgID   string `json:"org_id"`
	OrgName string `json:"org_name"`
	Role    string `json:"role,omitempty"`
}

type UserMatch struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type RoleOption struct {
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
}

type CaseSLA struct {
	CaseID      string `json:"case_id"`
	Status      string `json:"status"`
	SLABreached bool   `json:"sla_breached"`
}

type CaseEscalation struct {
	CaseID                string `json:"case_id"`
	LatestEscalationLevel *int   `json:"latest_escalation_level"`
	IsAcknowledged        bool   `json:"is_acknowledged"`
	LatestEscalatedAt     string `json:"latest_escalated_at"`
	LatestAcknowledgedAt  string `json:"latest_acknowledged_at"`
}

// UnmarshalJSON accepts either a bare role string or a {role, description} object.
func (r *RoleOption) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = RoleOption{Role: name}
		return nil
	}
	type plain RoleOption
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = RoleOption(decoded)
	return nil
}
