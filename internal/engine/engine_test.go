package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"heatline/internal/blob"
	"heatline/internal/config"
	"heatline/internal/db"
	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/migrate"
	"heatline/internal/notify"
	"heatline/internal/progress"
	"heatline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Notes  *notify.Memory
	Dir    string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, dialect, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, dialect); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng, err := engine.New(conn, dialect, config.Default())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	notes := &notify.Memory{}
	eng.Notify = notes
	eng.Blobs = blob.NewFileStore(dir+"/blobs", "http://files.test")
	ctx := context.Background()
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Name: "EFH Müller", ActorID: "tester"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Notes: notes, Dir: dir}
}

func changes(kv ...any) []progress.FieldChange {
	var out []progress.FieldChange
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, progress.FieldChange{Name: kv[i].(string), Value: kv[i+1]})
	}
	return out
}

func TestLoadPhaseDefaults(t *testing.T) {
	env := newTestEnv(t)
	view, err := env.Engine.LoadPhase(env.Ctx, "proj-1", domain.PhaseSystemDesign)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if view.Stored {
		t.Fatalf("expected unstored view")
	}
	// space and sound requirement checkboxes start as answered false
	if view.Summary.Percent != 22 {
		t.Fatalf("expected 22%%, got %d", view.Summary.Percent)
	}
	if len(view.Summary.MissingRequired) != 3 {
		t.Fatalf("expected 3 missing required, got %v", view.Summary.MissingRequired)
	}

	if _, err := env.Engine.LoadPhase(env.Ctx, "proj-1", "commissioning"); !errors.Is(err, engine.ErrUnknownPhase) {
		t.Fatalf("expected unknown phase, got %v", err)
	}
	if _, err := env.Engine.LoadPhase(env.Ctx, "nope", domain.PhaseSystemDesign); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSavePhaseUpsertsAndMerges(t *testing.T) {
	env := newTestEnv(t)
	view, err := env.Engine.SavePhase(env.Ctx, engine.SavePhaseOptions{
		ProjectID: "proj-1",
		Phase:     domain.PhaseSystemDesign,
		Changes:   changes("heat_pump_type", "Luft/Wasser", "heat_source", "Luft"),
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !view.Stored || view.Record.ID == "" {
		t.Fatalf("expected stored record, got %+v", view)
	}
	// 2 selects + 2 default checkboxes of 9
	if view.Summary.Percent != 44 {
		t.Fatalf("expected 44%%, got %d", view.Summary.Percent)
	}
	firstID := view.Record.ID

	view, err = env.Engine.SavePhase(env.Ctx, engine.SavePhaseOptions{
		ProjectID: "proj-1",
		Phase:     domain.PhaseSystemDesign,
		Changes:   changes("heating_capacity_planned", 9.5, "heat_source", nil),
	})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if view.Record.ID != firstID {
		t.Fatalf("upsert replaced id %s with %s", firstID, view.Record.ID)
	}
	if _, ok := view.Record.Fields["heat_source"]; ok {
		t.Fatalf("heat_source should be cleared")
	}
	if view.Record.Fields["heat_pump_type"] != "Luft/Wasser" {
		t.Fatalf("earlier field lost: %v", view.Record.Fields)
	}

	loaded, err := env.Engine.LoadPhase(env.Ctx, "proj-1", domain.PhaseSystemDesign)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Summary.Percent != view.Summary.Percent {
		t.Fatalf("loaded %d != saved %d", loaded.Summary.Percent, view.Summary.Percent)
	}
	if loaded.Record.Fields["space_requirements_met"] != false {
		t.Fatalf("default checkbox not persisted: %v", loaded.Record.Fields)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, "proj-1", "phase.saved", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("expected 2 phase.saved events, got %d", len(evts))
	}
}

func TestSavePhaseRejectsBadFields(t *testing.T) {
	env := newTestEnv(t)
	cases := [][]progress.FieldChange{
		changes("heat_pump_type", "Gas-Brennwert"),
		changes("wifi_password", "x"),
		changes("cop", "vier"),
	}
	for _, c := range cases {
		_, err := env.Engine.SavePhase(env.Ctx, engine.SavePhaseOptions{ProjectID: "proj-1", Phase: domain.PhaseSystemDesign, Changes: c})
		var fe *engine.FieldError
		if !errors.As(err, &fe) {
			t.Fatalf("expected field error for %v, got %v", c, err)
		}
	}
	if _, err := env.Engine.Repo.GetPhaseRecord(env.Ctx, mustPhase(t, domain.PhaseSystemDesign), "proj-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("rejected save must not store: %v", err)
	}
}

func TestPreviewPhaseIsPure(t *testing.T) {
	env := newTestEnv(t)
	base := map[string]any{"heat_pump_type": "Luft/Wasser"}
	view, err := env.Engine.PreviewPhase(domain.PhaseSystemDesign, base, changes("cop", 4.2, "heat_source", "Luft"))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if view.Summary.Percent != 33 {
		t.Fatalf("expected 33%%, got %d", view.Summary.Percent)
	}
	if len(base) != 1 {
		t.Fatalf("base mutated: %v", base)
	}
	if _, err := env.Engine.Repo.GetPhaseRecord(env.Ctx, mustPhase(t, domain.PhaseSystemDesign), "proj-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("preview must not store")
	}
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t)
	view, err := env.Engine.UploadDocument(env.Ctx, engine.UploadOptions{
		ProjectID: "proj-1",
		Field:     "handover_protocol_file",
		Filename:  "Übergabe.PDF",
		Body:      strings.NewReader("%PDF-1.7"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := "http://files.test/proj-1/handover_protocol_file_1704067200000.pdf"
	if got := view.Record.Fields["handover_protocol_file"]; got != want {
		t.Fatalf("expected %s, got %v", want, got)
	}

	_, err = env.Engine.UploadDocument(env.Ctx, engine.UploadOptions{ProjectID: "proj-1", Field: "heat_meter_data", Body: strings.NewReader("x")})
	var fe *engine.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected field error, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Upload(context.Context, string, io.Reader, string) error {
	return errors.New("bucket unavailable")
}
func (failingStore) PublicURL(p string) string { return "http://nowhere/" + p }

func TestUploadFailureLeavesFieldUnset(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Blobs = failingStore{}
	_, err := env.Engine.UploadDocument(env.Ctx, engine.UploadOptions{
		ProjectID: "proj-1", Field: "commissioning_protocol_file", Filename: "ibn.pdf", Body: strings.NewReader("x"),
	})
	if err == nil {
		t.Fatalf("expected upload error")
	}
	view, err := env.Engine.LoadPhase(env.Ctx, "proj-1", domain.PhaseImplementation)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := view.Record.Fields["commissioning_protocol_file"]; ok {
		t.Fatalf("field should stay unset")
	}
	msgs := env.Notes.Messages()
	if len(msgs) == 0 || msgs[len(msgs)-1].Level != "error" {
		t.Fatalf("expected error notification, got %+v", msgs)
	}
}

func TestChecklistDrivesProjectProgress(t *testing.T) {
	env := newTestEnv(t)
	add := func(desc string, required bool, status string) domain.ChecklistItem {
		item, err := env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{
			ProjectID: "proj-1", Category: "Planung", Description: desc, Required: required, Status: status,
		})
		if err != nil {
			t.Fatalf("add %s: %v", desc, err)
		}
		return item
	}
	optional := add("Fotos", false, domain.ItemDone)
	if p := projectProgress(t, env); p != 0 {
		t.Fatalf("no required items must give 0, got %d", p)
	}
	a := add("Heizlast", true, domain.ItemOpen)
	add("Förderantrag", true, domain.ItemDone)
	add("Schallgutachten", true, domain.ItemBlocked)
	if p := projectProgress(t, env); p != 33 {
		t.Fatalf("expected 33, got %d", p)
	}

	done := domain.ItemDone
	updated, err := env.Engine.UpdateChecklistItem(env.Ctx, engine.ChecklistUpdateOptions{ID: a.ID, Status: &done})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.CompletedDate == nil || *updated.CompletedDate != "2024-01-01" {
		t.Fatalf("completion date not stamped: %v", updated.CompletedDate)
	}
	if p := projectProgress(t, env); p != 67 {
		t.Fatalf("expected 67, got %d", p)
	}

	if err := env.Engine.DeleteChecklistItem(env.Ctx, optional.ID, ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if p := projectProgress(t, env); p != 67 {
		t.Fatalf("optional item must not count, got %d", p)
	}

	open := domain.ItemOpen
	reopened, err := env.Engine.UpdateChecklistItem(env.Ctx, engine.ChecklistUpdateOptions{ID: a.ID, Status: &open})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.CompletedDate != nil {
		t.Fatalf("completion date should clear on reopen")
	}
}

func TestProgressSyncFailureKeepsChecklistWrite(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.DB.Exec(`CREATE TRIGGER lock_progress BEFORE UPDATE OF progress ON projects BEGIN SELECT RAISE(ABORT, 'progress locked'); END;`); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	item, err := env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{
		ProjectID: "proj-1", Category: "Technik", Description: "Zählerplatz", Required: true, Status: domain.ItemDone,
	})
	var se *engine.ProgressSyncError
	if !errors.As(err, &se) {
		t.Fatalf("expected progress sync error, got %v", err)
	}
	if se.ProjectID != "proj-1" {
		t.Fatalf("unexpected project %s", se.ProjectID)
	}
	if _, err := env.Engine.Repo.GetChecklistItem(env.Ctx, item.ID); err != nil {
		t.Fatalf("checklist write must stand: %v", err)
	}
	if p := projectProgress(t, env); p != 0 {
		t.Fatalf("progress should be unchanged, got %d", p)
	}
}

func TestChecklistValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{ProjectID: "proj-1", Category: "Marketing", Description: "x"})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid category, got %v", err)
	}
	_, err = env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{ProjectID: "proj-1", Category: "Planung"})
	if !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected missing description, got %v", err)
	}
	_, err = env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{ProjectID: "other", Category: "Planung", Description: "x"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected missing project, got %v", err)
	}
}

func TestOverview(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SavePhase(env.Ctx, engine.SavePhaseOptions{
		ProjectID: "proj-1", Phase: domain.PhaseTechnicalData,
		Changes: changes("heating_load_calculated", 8.0, "heat_demand_estimated", 14000, "number_of_units", 1),
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	ov, err := env.Engine.Overview(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(ov.Phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(ov.Phases))
	}
	if ov.Phases[0].Phase != domain.PhaseTechnicalData || ov.Phases[0].Percent != 50 || !ov.Phases[0].Stored {
		t.Fatalf("unexpected technical progress %+v", ov.Phases[0])
	}
	if ov.Phases[2].Stored {
		t.Fatalf("implementation should be unstored")
	}
	if ov.Checklist.Percent != 0 {
		t.Fatalf("expected empty checklist at 0")
	}
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	bad := "Villa"
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "x", BuildingType: &bad}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected invalid building type, got %v", err)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: " "}); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected name required, got %v", err)
	}
	status := domain.StatusInProgress
	p, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{Status: &status}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Status != status {
		t.Fatalf("status not updated")
	}
	if err := env.Engine.DeleteProject(env.Ctx, "proj-1", "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetProject(env.Ctx, "proj-1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("project should be gone")
	}
}

func TestProjectDatesValidatedAgainstStored(t *testing.T) {
	env := newTestEnv(t)
	start := "2024-05-01"
	if _, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{StartDate: &start}, "tester"); err != nil {
		t.Fatalf("set start: %v", err)
	}
	end := "2024-04-30"
	if _, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{EndDate: &end}, "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected end before stored start to fail, got %v", err)
	}
	// clearing the start date lifts the constraint
	none := ""
	p, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{StartDate: &none, EndDate: &end}, "tester")
	if err != nil {
		t.Fatalf("clear start: %v", err)
	}
	if p.StartDate != nil || p.EndDate == nil || *p.EndDate != end {
		t.Fatalf("unexpected dates %v %v", p.StartDate, p.EndDate)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, "missing", repo.ProjectUpdate{EndDate: &end}, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConstructionYearCanBeCleared(t *testing.T) {
	env := newTestEnv(t)
	year := 1965
	p, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{ConstructionYear: &year}, "tester")
	if err != nil {
		t.Fatalf("set year: %v", err)
	}
	if p.ConstructionYear == nil || *p.ConstructionYear != 1965 {
		t.Fatalf("year not stored: %v", p.ConstructionYear)
	}
	var u repo.ProjectUpdate
	if err := json.Unmarshal([]byte(`{"construction_year": null}`), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Empty() {
		t.Fatalf("explicit null should count as a change")
	}
	p, err = env.Engine.UpdateProject(env.Ctx, "proj-1", u, "tester")
	if err != nil {
		t.Fatalf("clear year: %v", err)
	}
	if p.ConstructionYear != nil {
		t.Fatalf("year should be cleared, got %d", *p.ConstructionYear)
	}
	bad := 85
	if _, err := env.Engine.UpdateProject(env.Ctx, "proj-1", repo.ProjectUpdate{ConstructionYear: &bad}, "tester"); !errors.Is(err, engine.ErrInvalid) {
		t.Fatalf("expected two-digit year to fail, got %v", err)
	}
}

func TestConcurrentSavesKeepDisjointFields(t *testing.T) {
	env := newTestEnv(t)
	saves := [][]progress.FieldChange{
		changes("heat_source", "Erdsonde"),
		changes("cop", 4.3),
		changes("electricity_tariff", "PV"),
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(saves))
	for _, c := range saves {
		wg.Add(1)
		go func(c []progress.FieldChange) {
			defer wg.Done()
			_, err := env.Engine.SavePhase(env.Ctx, engine.SavePhaseOptions{ProjectID: "proj-1", Phase: domain.PhaseSystemDesign, Changes: c})
			errs <- err
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	view, err := env.Engine.LoadPhase(env.Ctx, "proj-1", domain.PhaseSystemDesign)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, c := range saves {
		if got := view.Record.Fields[c[0].Name]; got != c[0].Value {
			t.Fatalf("%s lost: %v", c[0].Name, view.Record.Fields)
		}
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	for id, status := range map[string]string{"proj-2": domain.StatusInProgress, "proj-3": domain.StatusCompleted, "proj-4": domain.StatusInProgress} {
		if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: id, Name: id, Status: status}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	// the test clock is 2024-01-01
	plan := func(project, desc, date, status string) {
		t.Helper()
		if _, err := env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{
			ProjectID: project, Category: "Ausführung", Description: desc, Status: status, PlannedDate: &date,
		}); err != nil {
			t.Fatalf("add %s: %v", desc, err)
		}
	}
	plan("proj-1", "Sondenbohrung", "2023-12-31", domain.ItemOpen)
	plan("proj-2", "Hydraulik", "2023-11-15", domain.ItemBlocked)
	plan("proj-2", "Elektroanschluss", "2024-01-01", domain.ItemOpen)
	plan("proj-3", "Abnahme", "2023-10-01", domain.ItemDone)
	plan("proj-4", "Inbetriebnahme", "2024-02-01", domain.ItemInProgress)
	if _, err := env.Engine.AddChecklistItem(env.Ctx, engine.ChecklistCreateOptions{
		ProjectID: "proj-4", Category: "Planung", Description: "ohne Termin",
	}); err != nil {
		t.Fatalf("add undated: %v", err)
	}

	d, err := env.Engine.Dashboard(env.Ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.TotalProjects != 4 || d.ActiveProjects != 2 || d.CompletedProjects != 1 {
		t.Fatalf("unexpected project counts %+v", d)
	}
	if d.Today != "2024-01-01" {
		t.Fatalf("unexpected today %s", d.Today)
	}
	if d.OverdueTasks != 2 || len(d.Overdue) != 2 {
		t.Fatalf("expected 2 overdue tasks, got %+v", d.Overdue)
	}
	if d.Overdue[0].Description != "Hydraulik" || d.Overdue[1].Description != "Sondenbohrung" {
		t.Fatalf("overdue should be ordered by planned date: %s, %s", d.Overdue[0].Description, d.Overdue[1].Description)
	}
}

func projectProgress(t *testing.T, env testEnv) int {
	t.Helper()
	p, err := env.Engine.Repo.GetProject(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	return p.Progress
}

func mustPhase(t *testing.T, name string) domain.Phase {
	t.Helper()
	p, ok := domain.PhaseByName(name)
	if !ok {
		t.Fatalf("phase %s", name)
	}
	return p
}
