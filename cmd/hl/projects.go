package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/report"
	"heatline/internal/repo"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectExportCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Status", "Location", "Start", "Progress"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Status, p.Location, deref(p.StartDate), fmt.Sprintf("%d%%", p.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum number of projects")
	return cmd
}

// projectFlags are the master data flags shared by create and update.
type projectFlags struct {
	name, status, start, end, manager, location, client, notes string
	buildingType, renovation, energySource, goal               string
	constructionYear                                           int
}

func (pf *projectFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&pf.name, "name", "", "project name")
	fs.StringVar(&pf.status, "status", "", "status (Geplant, In Umsetzung, Abgeschlossen, Pausiert)")
	fs.StringVar(&pf.start, "start-date", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&pf.end, "end-date", "", "end date (YYYY-MM-DD)")
	fs.StringVar(&pf.manager, "manager", "", "project manager")
	fs.StringVar(&pf.location, "location", "", "site address")
	fs.StringVar(&pf.client, "client", "", "client")
	fs.StringVar(&pf.notes, "notes", "", "notes")
	fs.StringVar(&pf.buildingType, "building-type", "", "building type (EFH, MFH, Gewerbe, Industrie)")
	fs.StringVar(&pf.renovation, "renovation-status", "", "renovation status (unsaniert, teilsaniert, vollsaniert)")
	fs.StringVar(&pf.energySource, "previous-energy-source", "", "previous energy source")
	fs.StringVar(&pf.goal, "goal", "", "project goal")
	fs.IntVar(&pf.constructionYear, "construction-year", 0, "construction year (0 clears)")
}

// update collects only the flags given on the command line.
func (pf *projectFlags) update(fs *pflag.FlagSet) repo.ProjectUpdate {
	var u repo.ProjectUpdate
	str := func(flag string, v string) *string {
		if !fs.Changed(flag) {
			return nil
		}
		return &v
	}
	u.Name = str("name", pf.name)
	u.Status = str("status", pf.status)
	u.StartDate = str("start-date", pf.start)
	u.EndDate = str("end-date", pf.end)
	u.Manager = str("manager", pf.manager)
	u.Location = str("location", pf.location)
	u.Client = str("client", pf.client)
	u.Notes = str("notes", pf.notes)
	u.BuildingType = str("building-type", pf.buildingType)
	u.RenovationStatus = str("renovation-status", pf.renovation)
	u.PreviousEnergySource = str("previous-energy-source", pf.energySource)
	u.ProjectGoal = str("goal", pf.goal)
	if fs.Changed("construction-year") {
		year := pf.constructionYear
		u.ConstructionYear = &year
	}
	return u
}

func projectCreateCmd() *cobra.Command {
	var id string
	var pf projectFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u := pf.update(cmd.Flags())
				opts := engine.ProjectCreateOptions{
					ID:                   id,
					Name:                 pf.name,
					Status:               pf.status,
					StartDate:            u.StartDate,
					EndDate:              u.EndDate,
					Manager:              pf.manager,
					Location:             pf.location,
					Client:               pf.client,
					Notes:                pf.notes,
					BuildingType:         u.BuildingType,
					ConstructionYear:     u.ConstructionYear,
					RenovationStatus:     u.RenovationStatus,
					PreviousEnergySource: u.PreviousEnergySource,
					ProjectGoal:          pf.goal,
					ActorID:              viper.GetString("actor-id"),
				}
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Created project %s (%s)\n", p.ID, p.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (generated when empty)")
	pf.bind(cmd.Flags())
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.Repo.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProject(p)
				return nil
			})
		},
	}
	return cmd
}

func printProject(p domain.Project) {
	tw := newTable()
	tw.AppendRows([]table.Row{
		{"ID", p.ID},
		{"Name", p.Name},
		{"Status", p.Status},
		{"Start", deref(p.StartDate)},
		{"End", deref(p.EndDate)},
		{"Manager", p.Manager},
		{"Location", p.Location},
		{"Client", p.Client},
		{"Building", deref(p.BuildingType)},
		{"Renovation", deref(p.RenovationStatus)},
		{"Previous energy", deref(p.PreviousEnergySource)},
		{"Goal", p.ProjectGoal},
		{"Progress", fmt.Sprintf("%d%%", p.Progress)},
		{"Updated", p.UpdatedAt},
	})
	if p.ConstructionYear != nil {
		tw.AppendRow(table.Row{"Construction year", *p.ConstructionYear})
	}
	tw.Render()
}

func projectUpdateCmd() *cobra.Command {
	var pf projectFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update project master data",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := pf.update(cmd.Flags())
			if u.Empty() {
				return fmt.Errorf("nothing to update; pass at least one field flag")
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				p, err := e.UpdateProject(ctx, projectID, u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				printProject(p)
				return nil
			})
		},
	}
	pf.bind(cmd.Flags())
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project with its phase records and checklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete without --yes")
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				if err := e.DeleteProject(ctx, projectID, viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("Deleted project %s\n", projectID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func projectExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an XLSX report of the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				data, err := report.Collect(ctx, e, projectID)
				if err != nil {
					return err
				}
				wb, err := report.Build(data)
				if err != nil {
					return err
				}
				defer wb.Close()
				target := out
				if target == "" {
					target = filepath.Join(viper.GetString("workspace"), projectID+".xlsx")
				}
				if err := wb.SaveAs(target); err != nil {
					return fmt.Errorf("save report: %w", err)
				}
				fmt.Printf("Wrote %s\n", target)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (defaults to <project>.xlsx in the workspace)")
	return cmd
}
