package report_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"heatline/internal/config"
	"heatline/internal/db"
	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/migrate"
	"heatline/internal/progress"
	"heatline/internal/report"
)

func TestExportProjectWorkbook(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := engine.New(conn, dialect, config.Default())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	if _, err := e.CreateProject(ctx, engine.ProjectCreateOptions{ID: "p1", Name: "MFH Lindenweg", Location: "Freiburg"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.SavePhase(ctx, engine.SavePhaseOptions{
		ProjectID: "p1",
		Phase:     domain.PhaseTechnicalData,
		Changes: []progress.FieldChange{
			{Name: "heating_load_calculated", Value: 14.2},
			{Name: "heating_surfaces", Value: "FBH"},
			{Name: "number_of_units", Value: 6},
		},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := e.AddChecklistItem(ctx, engine.ChecklistCreateOptions{ProjectID: "p1", Category: "Abnahme", Description: "Abnahmeprotokoll", Required: true, Status: domain.ItemDone}); err != nil {
		t.Fatalf("checklist: %v", err)
	}
	if _, err := e.AddChecklistItem(ctx, engine.ChecklistCreateOptions{ProjectID: "p1", Category: "Planung", Description: "Heizlast", Required: true}); err != nil {
		t.Fatalf("checklist: %v", err)
	}

	data, err := report.Collect(ctx, e, "p1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	wb, err := report.Build(data)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// round trip through bytes to check the workbook is well formed
	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	wb, err = excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	want := []string{report.OverviewSheet, report.FormsSheet, report.ChecklistSheet}
	got := wb.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheet[%d]=%q, want %q", i, got[i], want[i])
		}
	}

	if v, _ := wb.GetCellValue(report.OverviewSheet, "B1"); v != "MFH Lindenweg" {
		t.Fatalf("project name cell=%q", v)
	}
	if v, _ := wb.GetCellValue(report.OverviewSheet, "B9"); v != "50" {
		t.Fatalf("project progress cell=%q", v)
	}
	// technical data: three fields filled of six
	if v, _ := wb.GetCellValue(report.OverviewSheet, "B12"); v != "50" {
		t.Fatalf("technical data percent=%q", v)
	}

	rows, err := wb.GetRows(report.ChecklistSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two items, got %d", len(rows))
	}
	// Planung sorts before Abnahme
	if rows[1][0] != "Planung" || rows[2][0] != "Abnahme" || rows[2][6] != "2024-03-01" {
		t.Fatalf("unexpected checklist rows: %v", rows)
	}

	forms, err := wb.GetRows(report.FormsSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	// header plus 6 + 9 + 8 + 9 tracked fields
	if len(forms) != 33 {
		t.Fatalf("expected 33 form rows, got %d", len(forms))
	}
	if forms[1][1] != "heating_load_calculated" || forms[1][2] != "14.2" || forms[1][4] != "Ja" {
		t.Fatalf("unexpected first form row: %v", forms[1])
	}
}
