package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/repo"
)

func checklistCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "checklist", Short: "Manage the project checklist"}
	cmd.AddCommand(checklistAddCmd())
	cmd.AddCommand(checklistListCmd())
	cmd.AddCommand(checklistUpdateCmd())
	cmd.AddCommand(checklistDeleteCmd())
	return cmd
}

// reportSync prints a progress refresh failure as a warning; the checklist
// write itself is already stored at that point.
func reportSync(err error) error {
	var se *engine.ProgressSyncError
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", se)
		return nil
	}
	return err
}

func checklistAddCmd() *cobra.Command {
	var opts engine.ChecklistCreateOptions
	var planned string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a checklist item",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				opts.ProjectID = projectID
				opts.PlannedDate = optionalString(planned)
				opts.ActorID = viper.GetString("actor-id")
				item, err := e.AddChecklistItem(ctx, opts)
				if err := reportSync(err); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(item)
				}
				fmt.Printf("Added %s: %s\n", item.ID, item.Description)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "item id (generated when empty)")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category ("+strings.Join(domain.ChecklistCategories, ", ")+")")
	cmd.Flags().StringVar(&opts.Description, "description", "", "what has to be done")
	cmd.Flags().BoolVar(&opts.Required, "required", false, "counts towards project progress")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status (defaults to Offen)")
	cmd.Flags().StringVar(&opts.Responsible, "responsible", "", "responsible person")
	cmd.Flags().StringVar(&planned, "planned-date", "", "planned date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&opts.Documents, "document", nil, "document link (repeatable)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func checklistListCmd() *cobra.Command {
	var f repo.ChecklistFilters
	var requiredOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List checklist items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				f.ProjectID = projectID
				if requiredOnly {
					req := true
					f.Required = &req
				}
				items, err := e.Repo.ListChecklist(ctx, f)
				if err != nil {
					return err
				}
				summary, err := e.ChecklistProgress(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": items, "summary": summary})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Category", "Description", "Req", "Status", "Responsible", "Planned", "Done"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Category, it.Description, yesNo(it.Required), colorStatus(it.Status), it.Responsible, deref(it.PlannedDate), deref(it.CompletedDate)})
				}
				tw.AppendFooter(table.Row{"", "", "Progress", "", fmt.Sprintf("%d/%d = %d%%", summary.RequiredDone, summary.Required, summary.Percent)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().BoolVar(&requiredOnly, "required", false, "only required items")
	return cmd
}

func colorStatus(status string) string {
	if viper.GetBool("no-color") {
		return status
	}
	switch status {
	case domain.ItemDone:
		return text.FgGreen.Sprint(status)
	case domain.ItemBlocked:
		return text.FgRed.Sprint(status)
	case domain.ItemInProgress:
		return text.FgYellow.Sprint(status)
	}
	return status
}

func checklistUpdateCmd() *cobra.Command {
	var category, description, status, responsible, planned, completed, notes string
	var required bool
	var documents []string
	cmd := &cobra.Command{
		Use:   "update <item-id>",
		Short: "Update a checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := cmd.Flags()
			str := func(flag, v string) *string {
				if !fs.Changed(flag) {
					return nil
				}
				return &v
			}
			opts := engine.ChecklistUpdateOptions{
				ID:            args[0],
				Category:      str("category", category),
				Description:   str("description", description),
				Status:        str("status", status),
				Responsible:   str("responsible", responsible),
				PlannedDate:   str("planned-date", planned),
				CompletedDate: str("completed-date", completed),
				Notes:         str("notes", notes),
				ActorID:       viper.GetString("actor-id"),
			}
			if fs.Changed("required") {
				opts.Required = &required
			}
			if fs.Changed("document") {
				opts.Documents = &documents
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				item, err := e.UpdateChecklistItem(ctx, opts)
				if err := reportSync(err); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(item)
				}
				fmt.Printf("Updated %s: %s (%s)\n", item.ID, item.Description, item.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&required, "required", false, "counts towards project progress")
	cmd.Flags().StringVar(&status, "status", "", "status ("+strings.Join(domain.ChecklistStatuses, ", ")+")")
	cmd.Flags().StringVar(&responsible, "responsible", "", "responsible person")
	cmd.Flags().StringVar(&planned, "planned-date", "", "planned date (empty clears)")
	cmd.Flags().StringVar(&completed, "completed-date", "", "completion date (empty clears)")
	cmd.Flags().StringSliceVar(&documents, "document", nil, "document links, replaces the list")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func checklistDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <item-id>",
		Short: "Delete a checklist item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := reportSync(e.DeleteChecklistItem(ctx, args[0], viper.GetString("actor-id"))); err != nil {
					return err
				}
				fmt.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show phase completion and checklist progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				ov, err := e.Overview(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ov)
				}
				fmt.Printf("Project: %s %s (%s)\n", ov.Project.ID, ov.Project.Name, ov.Project.Status)
				tw := newTable()
				tw.AppendHeader(table.Row{"Phase", "Completion", "Missing required"})
				for _, ph := range ov.Phases {
					title := ph.Title
					if !ph.Stored {
						title += " (not saved)"
					}
					tw.AppendRow(table.Row{title, bar(ph.Percent), strings.Join(ph.MissingRequired, ", ")})
				}
				tw.AppendFooter(table.Row{"Checklist", bar(ov.Checklist.Percent), fmt.Sprintf("%d/%d required done", ov.Checklist.RequiredDone, ov.Checklist.Required)})
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func bar(percent int) string {
	const width = 20
	filled := percent * width / 100
	return fmt.Sprintf("%s%s %3d%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), percent)
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show project counts and overdue checklist items across all projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Projects: %d total, %d active, %d completed\n", d.TotalProjects, d.ActiveProjects, d.CompletedProjects)
				if d.OverdueTasks == 0 {
					fmt.Println("No overdue tasks")
					return nil
				}
				tw := newTable()
				tw.SetTitle(fmt.Sprintf("Overdue tasks (%d)", d.OverdueTasks))
				tw.AppendHeader(table.Row{"Project", "ID", "Category", "Description", "Status", "Responsible", "Planned"})
				for _, it := range d.Overdue {
					tw.AppendRow(table.Row{it.ProjectID, it.ID, it.Category, it.Description, colorStatus(it.Status), it.Responsible, deref(it.PlannedDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}
