package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/email"
	"offboarding/ocm/internal/gateway"
	"offboarding/ocm/internal/identity"
	"offboarding/ocm/internal/rbac"
	"offboarding/ocm/internal/util"
)

// ReviewerAssignment is the outcome of AssignReviewer. NoticeError is set when the
// assignment succeeded but the email could not be sent.
type ReviewerAssignment struct {
	CaseID      string      `json:"caseId"`
	ReviewerID  string      `json:"reviewerId"`
	Audit       audit.Trail `json:"audit"`
	NoticeSent  bool        `json:"noticeSent"`
	NoticeError string      `json:"noticeError,omitempty"`
}

type ReviewerInput struct {
	CaseID         string
	ReviewerUserID string
	// NotifyEmail, when set, receives a reviewer notice after the assignment.
	NotifyEmail string
	CaseURL     string
}

// UserInspection combines the profile row with the memberships the RPC returns.
type UserInspection struct {
	Rows []gateway.InspectUserRow `json:"rows"`
}

// gated resolves the caller and checks allow before any backend mutation.
func (s *Service) gated(ctx context.Context, allow func(rbac.Subject) bool, denied string) (*gateway.Client, identity.Identity, error) {
	c, err := s.client(ctx)
	if err != nil {
		return nil, identity.Unresolved(), s.fail(ctx, err)
	}
	id, err := s.currentIdentity(ctx, c)
	if err != nil {
		return nil, id, s.fail(ctx, err)
	}
	if !allow(id.Subject()) {
		return nil, id, deniedError(denied)
	}
	return c, id, nil
}

func (s *Service) AssignReviewer(ctx context.Context, input ReviewerInput) (ReviewerAssignment, error) {
	caseID := strings.TrimSpace(input.CaseID)
	reviewer := strings.TrimSpace(input.ReviewerUserID)
	if caseID == "" || reviewer == "" {
		return ReviewerAssignment{}, validationError("case id and reviewer user id are required")
	}
	c, id, err := s.gated(ctx, rbac.CanAssignReviewer, "Owner role required to assign reviewers.")
	if err != nil {
		return ReviewerAssignment{}, err
	}
	if err := c.AssignCaseReviewer(ctx, caseID, reviewer); err != nil {
		return ReviewerAssignment{}, s.fail(ctx, err)
	}
	s.logger.Info("reviewer assigned", zap.String("case_id", caseID), zap.String("reviewer_id", reviewer))

	out := ReviewerAssignment{
		CaseID:     caseID,
		ReviewerID: reviewer,
		Audit:      s.refreshAudit(ctx, c, caseID),
	}
	to := strings.TrimSpace(input.NotifyEmail)
	if to == "" || s.notifier == nil || !s.notifier.IsConfigured() {
		return out, nil
	}
	notice := email.ReviewerNotice{
		To:         to,
		CaseID:     caseID,
		OrgName:    id.OrgName,
		AssignedBy: id.Email,
		CaseURL:    input.CaseURL,
	}
	if record, err := s.getCase(ctx, c, caseID); err == nil {
		notice.CaseNo = record.CaseNo
		notice.EmployeeName = record.EmployeeName
		notice.Status = s.controller.Table().Label(record.Status)
	}
	if err := s.notifier.SendReviewerNotice(ctx, notice); err != nil {
		s.logger.Warn("reviewer notice failed", zap.String("case_id", caseID), zap.Error(err))
		out.NoticeError = err.Error()
		return out, nil
	}
	out.NoticeSent = true
	return out, nil
}

const platformAdminRequired = "Platform admin required."

func (s *Service) InspectUser(ctx context.Context, emailOrID string) (UserInspection, error) {
	emailOrID = strings.TrimSpace(emailOrID)
	if emailOrID == "" {
		return UserInspection{}, validationError("email or user id is required")
	}
	var userEmail, userID string
	switch {
	case strings.Contains(emailOrID, "@"):
		userEmail = emailOrID
	case util.IsUUID(emailOrID):
		userID = emailOrID
	default:
		return UserInspection{}, validationError("enter an email address or a user id")
	}
	c, _, err := s.gated(ctx, rbac.IsPlatformAdmin, platformAdminRequired)
	if err != nil {
		return UserInspection{}, err
	}
	rows, err := c.AdminInspectUser(ctx, userEmail, userID)
	if err != nil {
		return UserInspection{}, s.fail(ctx, err)
	}
	return UserInspection{Rows: rows}, nil
}

func (s *Service) InspectOrg(ctx context.Context, orgID string) ([]gateway.InspectOrgRow, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, validationError("org id is required")
	}
	c, _, err := s.gated(ctx, rbac.IsPlatformAdmin, platformAdminRequired)
	if err != nil {
		return nil, err
	}
	rows, err := c.AdminInspectOrg(ctx, orgID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return rows, nil
}

func (s *Service) AccessCheck(ctx context.Context, userID, caseID string) ([]gateway.AccessCheckRow, error) {
	userID, caseID = strings.TrimSpace(userID), strings.TrimSpace(caseID)
	if userID == "" || caseID == "" {
		return nil, validationError("user id and case id are required")
	}
	c, _, err := s.gated(ctx, rbac.IsPlatformAdmin, platformAdminRequired)
	if err != nil {
		return nil, err
	}
	rows, err := c.AdminAccessCheck(ctx, userID, caseID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return rows, nil
}

func (s *Service) ReportingSanity(ctx context.Context, orgID string) ([]gateway.ReportingSanityRow, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, validationError("org id is required")
	}
	c, _, err := s.gated(ctx, rbac.IsPlatformAdmin, platformAdminRequired)
	if err != nil {
		return nil, err
	}
	rows, err := c.AdminReportingSanity(ctx, orgID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return rows, nil
}

const manageUsersRequired = "Owner or admin role required."

func (s *Service) ManageableOrgs(ctx context.Context) ([]gateway.ManageableOrg, error) {
	c, _, err := s.gated(ctx, rbac.CanManageUsers, manageUsersRequired)
	if err != nil {
		return nil, err
	}
	orgs, err := c.ListManageableOrgs(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return orgs, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]gateway.UserMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationError("email query is required")
	}
	c, _, err := s.gated(ctx, rbac.CanManageUsers, manageUsersRequired)
	if err != nil {
		return nil, err
	}
	users, err := c.SearchUsersByEmail(ctx, query)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return users, nil
}

func (s *Service) Roles(ctx context.Context) ([]gateway.RoleOption, error) {
	c, _, err := s.gated(ctx, rbac.CanManageUsers, manageUsersRequired)
	if err != nil {
		return nil, err
	}
	roles, err := c.ListRoles(ctx)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return roles, nil
}

// AssignUserToOrg adds or updates a membership. The caller's own identity is
// re-resolved afterwards since they may have assigned themselves.
func (s *Service) AssignUserToOrg(ctx context.Context, userID, orgID, role string) (identity.Identity, error) {
	userID, orgID, role = strings.TrimSpace(userID), strings.TrimSpace(orgID), strings.TrimSpace(role)
	if userID == "" || orgID == "" || role == "" {
		return identity.Unresolved(), validationError("user id, org id and role are required")
	}
	c, id, err := s.gated(ctx, rbac.CanManageUsers, manageUsersRequired)
	if err != nil {
		return id, err
	}
	if err := c.AssignUserToOrg(ctx, userID, orgID, role); err != nil {
		return id, s.fail(ctx, err)
	}
	s.logger.Info("user assigned to org", zap.String("user_id", userID), zap.String("org_id", orgID), zap.String("role", role))
	return s.refreshIdentity(ctx, c), nil
}

// RedeemInvite joins the org behind code and returns the refreshed identity.
func (s *Service) RedeemInvite(ctx context.Context, code string) (identity.Identity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return identity.Unresolved(), validationError("invite code is required")
	}
	c, err := s.client(ctx)
	if err != nil {
		return identity.Unresolved(), s.fail(ctx, err)
	}
	if err := c.RedeemInvite(ctx, code); err != nil {
		return identity.Unresolved(), s.fail(ctx, err)
	}
	return s.refreshIdentity(ctx, c), nil
}
