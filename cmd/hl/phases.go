package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"heatline/internal/config"
	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/progress"
)

func phaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phase",
		Short: "Show and edit phase forms",
		Long:  "Phases: " + strings.Join(domain.PhaseNames(), ", "),
	}
	cmd.AddCommand(phaseShowCmd())
	cmd.AddCommand(phaseSetCmd())
	cmd.AddCommand(phasePreviewCmd())
	return cmd
}

func phaseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "show <phase>",
		Short:     "Show a phase record with its completion",
		Args:      cobra.ExactArgs(1),
		ValidArgs: domain.PhaseNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.LoadPhase(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				return printPhase(e, view)
			})
		},
	}
	return cmd
}

func phaseSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <phase> field=value...",
		Short: "Set phase fields and save the record",
		Long: `Set phase fields and save the record.
An empty value or "null" clears a field, e.g. hl phase set system_design cop=3.8 heat_source=Luft electricity_tariff=`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseAssignments(args[0], args[1:])
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.SavePhase(ctx, engine.SavePhaseOptions{
					ProjectID: projectID,
					Phase:     args[0],
					Changes:   changes,
					ActorID:   viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printPhase(e, view)
			})
		},
	}
	return cmd
}

func phasePreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <phase> field=value...",
		Short: "Show the completion a set of changes would give without saving",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := parseAssignments(args[0], args[1:])
			if err != nil {
				return err
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				current, err := e.LoadPhase(ctx, projectID, args[0])
				if err != nil {
					return err
				}
				view, err := e.PreviewPhase(args[0], current.Record.Fields, changes)
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("%d%% -> %d%%\n", current.Summary.Percent, view.Summary.Percent)
				}
				return printPhase(e, view)
			})
		},
	}
	return cmd
}

// parseAssignments reads field=value pairs using the column kinds of the phase.
func parseAssignments(phaseName string, args []string) ([]progress.FieldChange, error) {
	p, ok := domain.PhaseByName(phaseName)
	if !ok {
		return nil, fmt.Errorf("%w %q (one of %s)", engine.ErrUnknownPhase, phaseName, strings.Join(domain.PhaseNames(), ", "))
	}
	out := make([]progress.FieldChange, 0, len(args))
	for _, arg := range args {
		name, raw, found := strings.Cut(arg, "=")
		if !found {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		col, ok := p.Column(name)
		if !ok {
			return nil, &engine.FieldError{Phase: p.Name, Field: name, Reason: "unknown field"}
		}
		if domain.IsDocumentField(name) && raw != "" {
			return nil, &engine.FieldError{Phase: p.Name, Field: name, Reason: "set with hl upload"}
		}
		v, err := col.Parse(raw)
		if err != nil {
			return nil, &engine.FieldError{Phase: p.Name, Field: name, Reason: err.Error()}
		}
		out = append(out, progress.FieldChange{Name: name, Value: v})
	}
	return out, nil
}

func printPhase(e engine.Engine, view engine.PhaseView) error {
	if viper.GetBool("json") {
		return printJSON(view)
	}
	p, _ := domain.PhaseByName(view.Phase)
	descs, err := e.Descriptors(view.Phase)
	if err != nil {
		return err
	}
	tracked := map[string]progress.Descriptor{}
	for _, d := range descs {
		tracked[d.Name] = d
	}
	missing := map[string]bool{}
	for _, name := range view.Summary.Missing {
		missing[name] = true
	}

	tw := newTable()
	tw.SetTitle(fmt.Sprintf("%s: %d%% (%d/%d)", p.Title, view.Summary.Percent, view.Summary.Filled, view.Summary.Total))
	tw.AppendHeader(table.Row{"Field", "Value", "Tracked", ""})
	for _, col := range p.Columns {
		mark := ""
		d, isTracked := tracked[col.Name]
		switch {
		case isTracked && d.Required && missing[col.Name]:
			mark = text.FgRed.Sprint("required")
		case isTracked && missing[col.Name]:
			mark = text.FgYellow.Sprint("missing")
		case isTracked:
			mark = text.FgGreen.Sprint("ok")
		}
		tw.AppendRow(table.Row{col.Name, formatValue(view.Record.Fields[col.Name]), yesNo(isTracked), mark})
	}
	tw.Render()
	if !view.Stored {
		fmt.Println("(not saved yet, showing defaults)")
	}
	return nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func uploadCmd() *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload <handover_protocol_file|commissioning_protocol_file> <file>",
		Short: "Upload a protocol document for the implementation phase",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, path := args[0], args[1]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if contentType == "" {
				contentType = mime.TypeByExtension(filepath.Ext(path))
			}
			return withProject(cmd.Context(), func(ctx context.Context, e engine.Engine, projectID string) error {
				view, err := e.UploadDocument(ctx, engine.UploadOptions{
					ProjectID:   projectID,
					Field:       field,
					Filename:    filepath.Base(path),
					ContentType: contentType,
					Body:        f,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				fmt.Printf("%s: %v\n", field, view.Record.Fields[field])
				fmt.Printf("%s: %d%%\n", domain.PhaseImplementation, view.Summary.Percent)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type (guessed from the extension when empty)")
	return cmd
}

func formsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "forms", Short: "Inspect the tracked form fields"}
	cmd.AddCommand(formsShowCmd())
	return cmd
}

func formsShowCmd() *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "show [phase]",
		Short: "Show tracked fields per phase",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if defaults {
				fmt.Print(config.GenerateDefault())
				return nil
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			names := domain.PhaseNames()
			if len(args) == 1 {
				if _, ok := domain.PhaseByName(args[0]); !ok {
					return fmt.Errorf("%w %q", engine.ErrUnknownPhase, args[0])
				}
				names = args
			}
			if viper.GetBool("json") {
				out := map[string]config.Form{}
				for _, n := range names {
					out[n] = cfg.Forms[n]
				}
				return printJSON(out)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Phase", "Field", "Kind", "Required", "Rule"})
			for _, n := range names {
				p, _ := domain.PhaseByName(n)
				fields := append([]config.Field(nil), cfg.Forms[n].Fields...)
				sort.SliceStable(fields, func(i, j int) bool { return fields[i].Required && !fields[j].Required })
				for _, f := range fields {
					col, _ := p.Column(f.Name)
					tw.AppendRow(table.Row{n, f.Name, col.Kind, yesNo(f.Required), f.Rule})
				}
				tw.AppendSeparator()
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&defaults, "default", false, "print the built-in heatline.yml")
	return cmd
}
