package gateway

import (
	"context"
	"errors"
)

// nullable maps "" to JSON null, the way the RPC functions expect absent arguments.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func rpcRows[T any](ctx context.Context, c *Client, function string, params map[string]any) ([]T, error) {
	raw, err := c.rpc(ctx, function, params)
	if err != nil {
		return nil, err
	}
	if err := rpcRowError(function, raw); err != nil {
		return nil, err
	}
	return decodeRows[T](raw)
}

// rpcExec runs a function whose result is not needed beyond its error marker.
func rpcExec(ctx context.Context, c *Client, function string, params map[string]any) error {
	raw, err := c.rpc(ctx, function, params)
	if err != nil {
		return err
	}
	return rpcRowError(function, raw)
}

// CurrentMembership returns the caller's membership, or ok=false when none exists.
func (c *Client) CurrentMembership(ctx context.Context) (Membership, bool, error) {
	rows, err := rpcRows[Membership](ctx, c, "get_current_org_context", nil)
	if err != nil {
		return Membership{}, false, err
	}
	for _, row := range rows {
		if row.OrgID != "" {
			return row, true, nil
		}
	}
	return Membership{}, false, nil
}

// TransitionCaseStatus asks the backend to move a case to toStatus.
// The returned payload is ignored; callers re-read the case.
func (c *Client) TransitionCaseStatus(ctx context.Context, caseID, toStatus string) error {
	if caseID == "" {
		return errors.New("case id is required")
	}
	return rpcExec(ctx, c, "transition_offboarding_case_status", map[string]any{
		"case_id":   caseID,
		"to_status": toStatus,
	})
}

func (c *Client) AdminInspectUser(ctx context.Context, email, userID string) ([]InspectUserRow, error) {
	return rpcRows[InspectUserRow](ctx, c, "admin_inspect_user", map[string]any{
		"p_email":   nullable(email),
		"p_user_id": nullable(userID),
	})
}

func (c *Client) AdminInspectOrg(ctx context.Context, orgID string) ([]InspectOrgRow, error) {
	return rpcRows[InspectOrgRow](ctx, c, "admin_inspect_org", map[string]any{
		"p_org_id": nullable(orgID),
	})
}

func (c *Client) AdminAccessCheck(ctx context.Context, userID, caseID string) ([]AccessCheckRow, error) {
	return rpcRows[AccessCheckRow](ctx, c, "admin_access_check", map[string]any{
		"p_user_id": nullable(userID),
		"p_case_id": nullable(caseID),
	})
}

func (c *Client) AdminReportingSanity(ctx context.Context, orgID string) ([]ReportingSanityRow, error) {
	return rpcRows[ReportingSanityRow](ctx, c, "admin_reporting_sanity", map[string]any{
		"p_org_id": nullable(orgID),
	})
}

func (c *Client) AssignCaseReviewer(ctx context.Context, caseID, reviewerUserID string) error {
	return rpcExec(ctx, c, "owner_assign_case_reviewer", map[string]any{
		"p_case_id":          nullable(caseID),
		"p_reviewer_user_id": nullable(reviewerUserID),
	})
}

func (c *Client) ListManageableOrgs(ctx context.Context) ([]ManageableOrg, error) {
	return rpcRows[ManageableOrg](ctx, c, "list_manageable_orgs", nil)
}

func (c *Client) SearchUsersByEmail(ctx context.Context, emailQuery string) ([]UserMatch, error) {
	return rpcRows[UserMatch](ctx, c, "search_users_by_email", map[string]any{
		"p_email_query": nullable(emailQuery),
	})
}

func (c *Client) ListRoles(ctx context.Context) ([]RoleOption, error) {
	return rpcRows[RoleOption](ctx, c, "list_roles", nil)
}

func (c *Client) AssignUserToOrg(ctx context.Context, userID, orgID, role string) error {
	return rpcExec(ctx, c, "assign_user_to_org", map[string]any{
		"p_user_id": nullable(userID),
		"p_org_id":  nullable(orgID),
		"p_role":    nullable(role),
	})
}

func (c *Client) RedeemInvite(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("invite code is required")
	}
	return rpcExec(ctx, c, "redeem_invite", map[string]any{
		"p_code": code,
	})
}
