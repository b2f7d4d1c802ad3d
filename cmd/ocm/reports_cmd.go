package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"offboarding/ocm/internal/export"
	"offboarding/ocm/internal/gitrepo"
	"offboarding/ocm/internal/search"
)

func newDashboardCmd(rt *runtime) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show SLA and escalation state per case",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			board, err := svc.Dashboard(cmd.Context(), orgID)
			if err != nil {
				return err
			}
			return emit(rt, board, func(w io.Writer) {
				if board.Partial {
					fmt.Fprintln(w, board.Notice)
				}
				if len(board.Rows) == 0 {
					fmt.Fprintln(w, "No reporting data.")
					return
				}
				fmt.Fprintln(w, "CASE\tSTATUS\tSLA BREACHED\tESCALATION\tACKNOWLEDGED\tESCALATED AT")
				for _, r := range board.Rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
						r.CaseID, orDash(r.Status), optBool(r.SLABreached), optInt(r.LatestEscalationLevel),
						optBool(r.IsAcknowledged), orDash(r.LatestEscalatedAt))
				}
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org to report on (defaults to your org)")
	return cmd
}

func optBool(v *bool) string {
	if v == nil {
		return "-"
	}
	return yesNo(*v)
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

func newSearchCmd(rt *runtime) *cobra.Command {
	var q search.Query
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search cases by employee, case number or department",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				q.Text = args[0]
			}
			resp, err := svc.SearchCases(cmd.Context(), q)
			if err != nil {
				return err
			}
			return emit(rt, resp, func(w io.Writer) {
				fmt.Fprintf(w, "%d result(s) via %s\n", resp.Total, resp.Engine)
				if len(resp.Results) == 0 {
					return
				}
				fmt.Fprintln(w, "ID\tCASE NO\tEMPLOYEE\tDEPT\tSTATUS")
				for _, r := range resp.Results {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, orDash(r.CaseNo), r.EmployeeName, orDash(r.Dept), r.Status)
				}
			})
		},
	}
	cmd.Flags().StringVar(&q.Status, "status", "", "only cases in this status")
	cmd.Flags().StringVar(&q.OrgID, "org", "", "org to search (platform admins only)")
	cmd.Flags().IntVar(&q.Limit, "limit", 20, "maximum number of results")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "results to skip")
	return cmd
}

func newExportCmd(rt *runtime) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <case-id>",
		Short: "Render a case report as PDF or HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.ExportCase(cmd.Context(), args[0], f)
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = result.Filename
			}
			if err := os.WriteFile(path, result.Data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			summary := map[string]any{"path": path, "mimeType": result.MimeType, "bytes": len(result.Data)}
			return emit(rt, summary, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote %s (%s, %d bytes)\n", path, result.MimeType, len(result.Data))
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "pdf", "pdf or html")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to the report name)")
	return cmd
}

func newArchiveCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Keep a local versioned history of a case",
	}

	var message string
	commit := &cobra.Command{
		Use:   "commit <case-id>",
		Short: "Snapshot the current state of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.ArchiveCase(cmd.Context(), args[0], message)
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				if result.Commit.Unchanged {
					fmt.Fprintf(w, "No changes since %s.\n", shortHash(result.Commit.Hash))
					return
				}
				fmt.Fprintf(w, "Committed %s.\n", shortHash(result.Commit.Hash))
				printChanges(w, result.Changes)
			})
		},
	}
	commit.Flags().StringVarP(&message, "message", "m", "", "commit message")

	var limit int
	history := &cobra.Command{
		Use:   "history <case-id>",
		Short: "List archived snapshots of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			commits, err := svc.ArchiveHistory(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return emit(rt, commits, func(w io.Writer) {
				fmt.Fprintln(w, "HASH\tWHEN\tAUTHOR\tMESSAGE")
				for _, c := range commits {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", shortHash(c.Hash), c.CreatedAt.Format("2006-01-02 15:04"), orDash(c.Author), c.Message)
				}
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "maximum number of snapshots")

	var hash string
	show := &cobra.Command{
		Use:   "show <case-id>",
		Short: "Print an archived snapshot (latest by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			snap, panel, err := svc.ArchivedSnapshot(cmd.Context(), args[0], hash)
			if err != nil {
				return err
			}
			return emit(rt, snap, func(w io.Writer) {
				fmt.Fprintf(w, "Case\t%s (%s)\n", orDash(snap.Case.CaseNo), snap.Case.ID)
				fmt.Fprintf(w, "Employee\t%s\n", snap.Case.EmployeeName)
				fmt.Fprintf(w, "Status\t%s\n", snap.Case.Status)
				fmt.Fprintf(w, "Readiness\t%s\n\t%s\n", panel.Headline, panel.Details)
				fmt.Fprintf(w, "Audit entries\t%d\n\n", len(snap.Audit))
				printTasks(w, snap.Tasks)
			})
		},
	}
	show.Flags().StringVar(&hash, "hash", "", "snapshot commit hash")

	cmd.AddCommand(commit, history, show)
	return cmd
}

func printChanges(w io.Writer, changes []gitrepo.Change) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintln(w, "FIELD\tBEFORE\tAFTER")
	for _, c := range changes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Field, orDash(c.Before), orDash(c.After))
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
