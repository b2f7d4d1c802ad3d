package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"offboarding/ocm/internal/app"
	"offboarding/ocm/internal/audit"
	"offboarding/ocm/internal/gateway"
)

func newCasesCmd(rt *runtime) *cobra.Command {
	var (
		orgID string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List visible offboarding cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			cases, err := svc.ListCases(cmd.Context(), orgID, limit)
			if err != nil {
				return err
			}
			return emit(rt, cases, func(w io.Writer) {
				if len(cases) == 0 {
					fmt.Fprintln(w, "No cases.")
					return
				}
				fmt.Fprintln(w, "ID\tCASE NO\tEMPLOYEE\tDEPT\tLAST DAY\tSTATUS")
				for _, c := range cases {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, orDash(c.CaseNo), c.EmployeeName, orDash(c.Dept), orDash(c.LastWorkingDay), c.StatusLabel)
				}
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "only cases of this org")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of cases")
	return cmd
}

func newCaseCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Inspect, create and move a single case",
	}
	cmd.AddCommand(newCaseShowCmd(rt), newCaseCreateCmd(rt), newCaseTransitionCmd(rt), newCaseAuditCmd(rt))
	return cmd
}

func newCaseShowCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case with its transitions, readiness and audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			view, err := svc.CaseDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, view, func(w io.Writer) { printCaseView(w, view) })
		},
	}
}

func printCaseView(w io.Writer, view app.CaseView) {
	c := view.Case
	fmt.Fprintf(w, "Case\t%s (%s)\n", orDash(c.CaseNo), c.ID)
	fmt.Fprintf(w, "Employee\t%s\n", c.EmployeeName)
	fmt.Fprintf(w, "Department\t%s\n", orDash(c.Dept))
	fmt.Fprintf(w, "Position\t%s\n", orDash(c.Position))
	fmt.Fprintf(w, "Last working day\t%s\n", orDash(c.LastWorkingDay))
	fmt.Fprintf(w, "Status\t%s\n", view.StatusLabel)
	if view.Busy {
		fmt.Fprintln(w, "\tUpdating case status...")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Readiness")
	fmt.Fprintf(w, "\t%s\n\t%s\n\t%s\n", view.Readiness.Headline, view.Readiness.Details, view.Readiness.Completion)

	fmt.Fprintln(w)
	if len(view.Transitions) == 0 {
		fmt.Fprintln(w, "No lifecycle actions available.")
	} else {
		fmt.Fprintln(w, "Actions")
		for _, opt := range view.Transitions {
			state := "available"
			if !opt.Enabled {
				state = "disabled: " + opt.Reason
			}
			fmt.Fprintf(w, "\t%s -> %s\t%s\n", opt.Label, opt.ToStatus, state)
		}
	}

	if len(view.Tasks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "TASK\tTITLE\tSTATUS\tREQUIRED")
		for _, task := range view.Tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.ID, task.Title, task.Status, yesNo(task.IsRequired))
		}
	}

	fmt.Fprintln(w)
	printTrail(w, view.Audit)
}

func printTrail(w io.Writer, trail audit.Trail) {
	switch trail.State {
	case audit.StateLoaded:
		fmt.Fprintln(w, "WHEN\tACTOR\tACTION\tTARGET\tDETAILS")
		for _, row := range trail.Rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", row.CreatedAt, row.Actor, row.Action, row.Target, row.Metadata)
		}
	default:
		fmt.Fprintln(w, trail.Message)
	}
}

func newCaseCreateCmd(rt *runtime) *cobra.Command {
	var input app.CaseInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a new offboarding case in your org",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.CreateCase(cmd.Context(), input)
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				record := result.Case
				fmt.Fprintf(w, "Created case %s for %s (%s).\n\n", record.ID, record.EmployeeName, svc.Lifecycle().Label(record.Status))
				printTrail(w, result.Audit)
			})
		},
	}
	cmd.Flags().StringVar(&input.EmployeeName, "employee", "", "employee name (required)")
	cmd.Flags().StringVar(&input.CaseNo, "case-no", "", "case number")
	cmd.Flags().StringVar(&input.Dept, "dept", "", "department")
	cmd.Flags().StringVar(&input.Position, "position", "", "position")
	cmd.Flags().StringVar(&input.LastWorkingDay, "last-day", "", "last working day (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("employee")
	return cmd
}

func newCaseTransitionCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <case-id> <to-status>",
		Short: "Move a case to another lifecycle status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			result, err := svc.Transition(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				if result.Unconfirmed {
					fmt.Fprintf(w, "%s\n\n", result.Notice)
				} else {
					fmt.Fprintf(w, "Case %s is now %s.\n\n", result.Case.ID, result.StatusLabel)
				}
				printTrail(w, result.Audit)
			})
		},
	}
}

func newCaseAuditCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <case-id>",
		Short: "Show the audit trail of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			trail, err := svc.Audit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, trail, func(w io.Writer) { printTrail(w, trail) })
		},
	}
}

func newTaskCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "List and add checklist tasks",
	}

	list := &cobra.Command{
		Use:   "list <case-id>",
		Short: "List the tasks of a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := svc.ListTasks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, tasks, func(w io.Writer) { printTasks(w, tasks) })
		},
	}

	var input app.TaskInput
	add := &cobra.Command{
		Use:   "add <case-id>",
		Short: "Add a task to a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			input.CaseID = args[0]
			result, err := svc.CreateTask(cmd.Context(), input)
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				fmt.Fprintf(w, "Added task %s (%s).\n\n", result.Task.ID, result.Task.Title)
				printTrail(w, result.Audit)
			})
		},
	}
	add.Flags().StringVar(&input.Title, "title", "", "task title (required)")
	add.Flags().StringVar(&input.Status, "status", "", "initial status (default open)")
	add.Flags().BoolVar(&input.IsRequired, "required", false, "task blocks closure until complete")
	_ = add.MarkFlagRequired("title")

	link := &cobra.Command{
		Use:   "link <storage-path>",
		Short: "Print a temporary download link for an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			url, err := svc.EvidenceLink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, map[string]string{"url": url}, func(w io.Writer) {
				fmt.Fprintln(w, url)
			})
		},
	}

	cmd.AddCommand(list, add, link)
	return cmd
}

func printTasks(w io.Writer, tasks []gateway.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks available for this case.")
		return
	}
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tREQUIRED")
	for _, task := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.ID, task.Title, task.Status, yesNo(task.IsRequired))
	}
}

func newEvidenceCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "List and record evidence for a task",
	}

	list := &cobra.Command{
		Use:   "list <task-id>",
		Short: "List evidence recorded for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			items, err := svc.ListEvidence(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, items, func(w io.Writer) {
				if len(items) == 0 {
					fmt.Fprintln(w, "No evidence.")
					return
				}
				fmt.Fprintln(w, "ID\tNOTE\tFILE\tCREATED")
				for _, e := range items {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Note, orDash(e.StoragePath), orDash(e.CreatedAt))
				}
			})
		},
	}

	var (
		caseID string
		note   string
		file   string
	)
	add := &cobra.Command{
		Use:   "add <task-id>",
		Short: "Record a note, optionally with an attached file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			input := app.EvidenceInput{CaseID: caseID, TaskID: args[0], Note: note}
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				info, err := f.Stat()
				if err != nil {
					return err
				}
				if info.IsDir() {
					return errors.New("--file must be a regular file")
				}
				input.Attachment = &app.Attachment{
					Name:        filepath.Base(file),
					ContentType: mime.TypeByExtension(filepath.Ext(file)),
					Size:        info.Size(),
					Body:        f,
				}
			}
			result, err := svc.AddEvidence(cmd.Context(), input)
			if err != nil {
				return err
			}
			return emit(rt, result, func(w io.Writer) {
				fmt.Fprintf(w, "Recorded evidence %s.\n", result.Evidence.ID)
				if result.Evidence.StoragePath != "" {
					fmt.Fprintf(w, "Stored at %s.\n", result.Evidence.StoragePath)
				}
				fmt.Fprintln(w)
				printTrail(w, result.Audit)
			})
		},
	}
	add.Flags().StringVar(&note, "note", "", "evidence note (required)")
	add.Flags().StringVar(&file, "file", "", "file to attach")
	add.Flags().StringVar(&caseID, "case", "", "case id (looked up from the task when omitted)")
	_ = add.MarkFlagRequired("note")

	link := &cobra.Command{
		Use:   "link <storage-path>",
		Short: "Print a temporary download link for an attachment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := rt.service(cmd.Context())
			if err != nil {
				return err
			}
			url, err := svc.EvidenceLink(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(rt, map[string]string{"url": url}, func(w io.Writer) {
				fmt.Fprintln(w, url)
			})
		},
	}

	cmd.AddCommand(list, add, link)
	return cmd
}
