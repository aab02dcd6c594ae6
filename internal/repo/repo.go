package repo

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"heatline/internal/db"
	"heatline/internal/domain"
)

type Repo struct {
	DB      *sql.DB
	Dialect db.Dialect
}

var ErrNotFound = errors.New("not found")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func (r Repo) q(query string) string {
	return r.Dialect.Rebind(query)
}

func (r Repo) conn(tx DBTX) DBTX {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,name,status,start_date,end_date,manager,location,client,notes,building_type,construction_year,renovation_status,previous_energy_source,project_goal,progress,created_at,updated_at`

func scanProject(row scanner) (domain.Project, error) {
	var p domain.Project
	var start, end, building, renovation, energy sql.NullString
	var year sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.Status, &start, &end, &p.Manager, &p.Location, &p.Client, &p.Notes,
		&building, &year, &renovation, &energy, &p.ProjectGoal, &p.Progress, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.StartDate = stringPtr(start)
	p.EndDate = stringPtr(end)
	p.BuildingType = stringPtr(building)
	p.RenovationStatus = stringPtr(renovation)
	p.PreviousEnergySource = stringPtr(energy)
	if year.Valid {
		y := int(year.Int64)
		p.ConstructionYear = &y
	}
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx DBTX, p domain.Project) error {
	_, err := r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO projects(`+projectColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		p.ID, p.Name, p.Status, nullableStringPtr(p.StartDate), nullableStringPtr(p.EndDate), p.Manager, p.Location, p.Client, p.Notes,
		nullableStringPtr(p.BuildingType), nullableYear(p.ConstructionYear), nullableStringPtr(p.RenovationStatus),
		nullableStringPtr(p.PreviousEnergySource), p.ProjectGoal, p.Progress, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id))
}

func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx, ProjectFilters{Limit: 2})
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

type ProjectFilters struct {
	Status string
	Limit  int
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate carries the fields to change; nil leaves a field untouched.
// An empty string clears an optional column and a construction year of 0
// clears the year.
type ProjectUpdate struct {
	Name                 *string `json:"name,omitempty"`
	Status               *string `json:"status,omitempty" enum:"Geplant,In Umsetzung,Abgeschlossen,Pausiert"`
	StartDate            *string `json:"start_date,omitempty"`
	EndDate              *string `json:"end_date,omitempty"`
	Manager              *string `json:"manager,omitempty"`
	Location             *string `json:"location,omitempty"`
	Client               *string `json:"client,omitempty"`
	Notes                *string `json:"notes,omitempty"`
	BuildingType         *string `json:"building_type,omitempty"`
	ConstructionYear     *int    `json:"construction_year,omitempty" nullable:"true"`
	RenovationStatus     *string `json:"renovation_status,omitempty"`
	PreviousEnergySource *string `json:"previous_energy_source,omitempty"`
	ProjectGoal          *string `json:"project_goal,omitempty"`
}

// UnmarshalJSON reads an explicit "construction_year": null as a clear.
func (u *ProjectUpdate) UnmarshalJSON(data []byte) error {
	type plain ProjectUpdate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["construction_year"]; ok && bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		unset := 0
		p.ConstructionYear = &unset
	}
	*u = ProjectUpdate(p)
	return nil
}

func (u ProjectUpdate) Empty() bool {
	return u == ProjectUpdate{}
}

func (r Repo) UpdateProject(ctx context.Context, tx DBTX, id string, u ProjectUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Status != nil {
		set("status", *u.Status)
	}
	if u.StartDate != nil {
		set("start_date", nullableStringPtr(u.StartDate))
	}
	if u.EndDate != nil {
		set("end_date", nullableStringPtr(u.EndDate))
	}
	if u.Manager != nil {
		set("manager", *u.Manager)
	}
	if u.Location != nil {
		set("location", *u.Location)
	}
	if u.Client != nil {
		set("client", *u.Client)
	}
	if u.Notes != nil {
		set("notes", *u.Notes)
	}
	if u.BuildingType != nil {
		set("building_type", nullableStringPtr(u.BuildingType))
	}
	if u.ConstructionYear != nil {
		set("construction_year", nullableYear(u.ConstructionYear))
	}
	if u.RenovationStatus != nil {
		set("renovation_status", nullableStringPtr(u.RenovationStatus))
	}
	if u.PreviousEnergySource != nil {
		set("previous_energy_source", nullableStringPtr(u.PreviousEnergySource))
	}
	if u.ProjectGoal != nil {
		set("project_goal", *u.ProjectGoal)
	}
	if len(fields) == 0 {
		return nil
	}
	set("updated_at", updatedAt)
	args = append(args, id)
	res, err := r.conn(tx).ExecContext(ctx, r.q(fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ","))), args...)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProjectProgress writes the denormalised progress cache.
func (r Repo) SetProjectProgress(ctx context.Context, tx DBTX, id string, progress int, updatedAt string) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE projects SET progress=?, updated_at=? WHERE id=?`), progress, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx DBTX, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`DELETE FROM projects WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectID, evtType, entityKind, entityID)
}

// LatestEventsFrom lists events newest first, starting at cursorID
// (inclusive) when it is positive.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursorID int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if cursorID > 0 {
		clauses = append(clauses, "id<=?")
		args = append(args, cursorID)
	}
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var project, entity, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &project, &e.EntityKind, &entity, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.ProjectID = project.String
		e.EntityID = entity.String
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableYear(v *int) any {
	if v == nil || *v == 0 {
		return nil
	}
	return *v
}
