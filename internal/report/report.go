// Package report renders a project into an XLSX workbook.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/progress"
	"heatline/internal/repo"
)

const (
	OverviewSheet  = "Übersicht"
	FormsSheet     = "Formulare"
	ChecklistSheet = "Checkliste"
)

// Data is everything a report shows.
type Data struct {
	Overview  engine.Overview
	Phases    []engine.PhaseView
	Forms     map[string][]progress.Descriptor
	Checklist []domain.ChecklistItem
}

// Collect loads the report data of a project.
func Collect(ctx context.Context, e engine.Engine, projectID string) (Data, error) {
	ov, err := e.Overview(ctx, projectID)
	if err != nil {
		return Data{}, err
	}
	d := Data{Overview: ov, Forms: map[string][]progress.Descriptor{}}
	for _, p := range domain.Phases() {
		view, err := e.LoadPhase(ctx, projectID, p.Name)
		if err != nil {
			return Data{}, err
		}
		descs, err := e.Descriptors(p.Name)
		if err != nil {
			return Data{}, err
		}
		d.Phases = append(d.Phases, view)
		d.Forms[p.Name] = descs
	}
	d.Checklist, err = e.Repo.ListChecklist(ctx, repo.ChecklistFilters{ProjectID: projectID})
	if err != nil {
		return Data{}, err
	}
	return d, nil
}

// Build writes the overview, form and checklist sheets.
func Build(d Data) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", OverviewSheet); err != nil {
		return nil, err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := writeOverview(f, d.Overview); err != nil {
		return nil, err
	}
	f.SetColWidth(OverviewSheet, "A", "A", 32)
	f.SetColWidth(OverviewSheet, "B", "D", 18)

	if _, err := f.NewSheet(FormsSheet); err != nil {
		return nil, err
	}
	if err := writeRows(f, FormsSheet, formRows(d)); err != nil {
		return nil, err
	}
	f.SetRowStyle(FormsSheet, 1, 1, headerStyle)
	f.SetColWidth(FormsSheet, "A", "B", 30)
	f.SetColWidth(FormsSheet, "C", "C", 40)
	f.SetColWidth(FormsSheet, "D", "E", 12)

	if _, err := f.NewSheet(ChecklistSheet); err != nil {
		return nil, err
	}
	if err := writeRows(f, ChecklistSheet, checklistRows(d.Checklist)); err != nil {
		return nil, err
	}
	f.SetRowStyle(ChecklistSheet, 1, 1, headerStyle)
	f.SetColWidth(ChecklistSheet, "A", "A", 16)
	f.SetColWidth(ChecklistSheet, "B", "B", 40)
	f.SetColWidth(ChecklistSheet, "C", "I", 16)
	return f, nil
}

func writeOverview(f *excelize.File, ov engine.Overview) error {
	p := ov.Project
	rows := [][]any{
		{"Projekt", p.Name},
		{"ID", p.ID},
		{"Status", p.Status},
		{"Projektleitung", p.Manager},
		{"Standort", p.Location},
		{"Auftraggeber", p.Client},
		{"Start", deref(p.StartDate)},
		{"Ende", deref(p.EndDate)},
		{"Fortschritt (%)", p.Progress},
		{},
		{"Phase", "Fortschritt (%)", "Gespeichert", "Fehlende Pflichtfelder"},
	}
	for _, ph := range ov.Phases {
		rows = append(rows, []any{ph.Title, ph.Percent, yesNo(ph.Stored), strings.Join(ph.MissingRequired, ", ")})
	}
	rows = append(rows,
		[]any{},
		[]any{"Checkliste", "Gesamt", "Pflicht", "Pflicht erledigt", "Fortschritt (%)"},
		[]any{"", ov.Checklist.Total, ov.Checklist.Required, ov.Checklist.RequiredDone, ov.Checklist.Percent},
	)
	return writeRows(f, OverviewSheet, rows)
}

func formRows(d Data) [][]any {
	rows := [][]any{{"Phase", "Feld", "Wert", "Pflicht", "Ausgefüllt"}}
	for _, view := range d.Phases {
		missing := map[string]bool{}
		for _, name := range view.Summary.Missing {
			missing[name] = true
		}
		title := view.Phase
		if p, ok := domain.PhaseByName(view.Phase); ok {
			title = p.Title
		}
		for _, desc := range d.Forms[view.Phase] {
			rows = append(rows, []any{title, desc.Name, cellValue(view.Record.Fields[desc.Name]), yesNo(desc.Required), yesNo(!missing[desc.Name])})
		}
	}
	return rows
}

func checklistRows(items []domain.ChecklistItem) [][]any {
	sorted := append([]domain.ChecklistItem(nil), items...)
	order := map[string]int{}
	for i, c := range domain.ChecklistCategories {
		order[c] = i
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return order[sorted[i].Category] < order[sorted[j].Category]
	})
	rows := [][]any{{"Kategorie", "Beschreibung", "Pflicht", "Status", "Verantwortlich", "Geplant", "Erledigt am", "Dokumente", "Notizen"}}
	for _, it := range sorted {
		rows = append(rows, []any{
			it.Category, it.Description, yesNo(it.Required), it.Status, it.Responsible,
			deref(it.PlannedDate), deref(it.CompletedDate), strings.Join(it.Documents, "\n"), it.Notes,
		})
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("%s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return yesNo(t)
	default:
		return t
	}
}

func yesNo(b bool) string {
	if b {
		return "Ja"
	}
	return "Nein"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
