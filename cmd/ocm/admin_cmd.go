package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"offboarding/ocm/internal/app"
)

func newReviewerCmd(rt *runtime) *cobra.Command {
	var input app.ReviewerInput
	cmd := &cobra.Command{
		Use:   "reviewer <case-id> <reviewer-user-id>",
		Short: "Assign a reviewer to a case (owner only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			input.CaseID, input.ReviewerUserID = args[0], args[1]
			result, err := svc.AssignReviewer(cmd.Context(), input)
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				fmt.Fprintf(w, "Reviewer %s assigned to case %s.\n", result.ReviewerID, result.CaseID)
				switch {
				case result.NoticeSent:
					fmt.Fprintf(w, "Notice sent to %s.\n", input.NotifyEmail)
				case result.NoticeError != "":
					fmt.Fprintf(w, "Notice not sent: %s\n", result.NoticeError)
				}
			})
		},
	}
	cmd.Flags().StringVar(&input.NotifyEmail, "notify", "", "email the reviewer at this address")
	cmd.Flags().StringVar(&input.CaseURL, "case-url", "", "link to include in the notice")
	return cmd
}

func newAdminCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Platform admin diagnostics",
	}

	inspectUser := &cobra.Command{
		Use:   "inspect-user <email-or-user-id>",
		Short: "Show a user's profile row and memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.InspectUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				fmt.Fprintln(w, "USER\tEMAIL\tPLATFORM ADMIN\tORGS\tORG\tROLE")
				for _, r := range result.Rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", r.UserID, r.Email, yesNo(r.IsPlatformAdmin), r.OrgCount, orDash(r.OrgID), orDash(r.Role))
				}
			})
		},
	}

	inspectOrg := &cobra.Command{
		Use:   "inspect-org <org-id>",
		Short: "Show member and case counts with anomaly flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.InspectOrg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, rows, func(w io.Writer) {
				fmt.Fprintln(w, "ORG\tMEMBERS\tCASES\tCASES WITHOUT MEMBERS\tMEMBERS WITHOUT CASES")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", r.OrgID, r.MemberCount, r.CaseCount, yesNo(r.CasesWithoutMembers), yesNo(r.MembersWithoutCases))
				}
			})
		},
	}

	accessCheck := &cobra.Command{
		Use:   "access-check <user-id> <case-id>",
		Short: "Explain whether a user can see a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.AccessCheck(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(rt, rows, func(w io.Writer) {
				fmt.Fprintln(w, "USER\tCASE\tCASE ORG\tVISIBLE\tREASON")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.UserID, r.CaseID, orDash(r.CaseOrgID), yesNo(r.IsVisible), r.Reason)
				}
			})
		},
	}

	sanity := &cobra.Command{
		Use:   "reporting-sanity <org-id>",
		Short: "Compare case counts with the reporting views",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.ReportingSanity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, rows, func(w io.Writer) {
				fmt.Fprintln(w, "ORG\tCASES\tSLA ROWS\tESCALATION ROWS\tEMPTY\tREASON")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n", r.OrgID, r.CaseCount, r.ReportingCaseSLACount, r.ReportingCaseEscalationCount, yesNo(r.ReportingEmpty), orDash(r.ReportingEmptyReason))
				}
			})
		},
	}

	cmd.AddCommand(inspectUser, inspectOrg, accessCheck, sanity)
	return cmd
}

func newUsersCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage org memberships (owner or admin)",
	}

	orgs := &cobra.Command{
		Use:   "orgs",
		Short: "List orgs you can manage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.ManageableOrgs(cmd.Context())
			if err != nil {
				return err
			}
			return emit(rt, rows, func(w io.Writer) {
				fmt.Fprintln(w, "ORG\tNAME\tROLE")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.OrgID, orDash(r.OrgName), orDash(r.Role))
				}
			})
		},
	}

	search := &cobra.Command{
		Use:   "search <email-fragment>",
		Short: "Find users by email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.SearchUsers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, rows, func(w io.Writer) {
				if len(rows) == 0 {
					fmt.Fprintln(w, "No users found.")
					return
				}
				fmt.Fprintln(w, "USER\tEMAIL")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\n", r.UserID, r.Email)
				}
			})
		},
	}

	roles := &cobra.Command{
		Use:   "roles",
		Short: "List assignable roles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := svc.Roles(cmd.Context())
			if err != nil {
				return err
			}
			return emit(rt, rows, func(w io.Writer) {
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\n", r.Role, r.Description)
				}
			})
		},
	}

	assign := &cobra.Command{
		Use:   "assign <user-id> <org-id> <role>",
		Short: "Add a user to an org with a role",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			id, err := svc.AssignUserToOrg(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if !rt.jsonOut {
				fmt.Printf("Assigned %s to %s as %s.\n", args[0], args[1], args[2])
			}
			return printIdentity(rt, id)
		},
	}

	cmd.AddCommand(orgs, search, roles, assign)
	return cmd
}

func newInviteCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Join an org with an invite code",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "redeem <code>",
		Short: "Redeem an invite code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			id, err := svc.RedeemInvite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printIdentity(rt, id)
		},
	})
	return cmd
}
