package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"heatline/internal/domain"
)

const checklistColumns = `id,project_id,category,description,required,status,responsible,planned_date,completed_date,documents_json,notes,created_at,updated_at`

func scanChecklistItem(row scanner) (domain.ChecklistItem, error) {
	var c domain.ChecklistItem
	var planned, completed sql.NullString
	var docs string
	err := row.Scan(&c.ID, &c.ProjectID, &c.Category, &c.Description, &c.Required, &c.Status, &c.Responsible,
		&planned, &completed, &docs, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.PlannedDate = stringPtr(planned)
	c.CompletedDate = stringPtr(completed)
	c.Documents = []string{}
	if docs != "" {
		if err := json.Unmarshal([]byte(docs), &c.Documents); err != nil {
			return c, err
		}
	}
	return c, nil
}

func documentsJSON(docs []string) (string, error) {
	if docs == nil {
		docs = []string{}
	}
	data, err := json.Marshal(docs)
	return string(data), err
}

func (r Repo) InsertChecklistItem(ctx context.Context, tx DBTX, c domain.ChecklistItem) error {
	docs, err := documentsJSON(c.Documents)
	if err != nil {
		return err
	}
	_, err = r.conn(tx).ExecContext(ctx, r.q(`INSERT INTO checklist_items(`+checklistColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`),
		c.ID, c.ProjectID, c.Category, c.Description, c.Required, c.Status, c.Responsible,
		nullableStringPtr(c.PlannedDate), nullableStringPtr(c.CompletedDate), docs, c.Notes, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetChecklistItem(ctx context.Context, id string) (domain.ChecklistItem, error) {
	return scanChecklistItem(r.DB.QueryRowContext(ctx, r.q(`SELECT `+checklistColumns+` FROM checklist_items WHERE id=?`), id))
}

type ChecklistFilters struct {
	ProjectID string
	Status    string
	Category  string
	Required  *bool
}

func (r Repo) ListChecklist(ctx context.Context, f ChecklistFilters) ([]domain.ChecklistItem, error) {
	clauses := []string{"project_id=?"}
	args := []any{f.ProjectID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Required != nil {
		clauses = append(clauses, "required=?")
		args = append(args, *f.Required)
	}
	query := `SELECT ` + checklistColumns + ` FROM checklist_items WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, r.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ChecklistItem{}
	for rows.Next() {
		c, err := scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListOverdueChecklist returns open items of every project whose planned
// date lies before today (YYYY-MM-DD).
func (r Repo) ListOverdueChecklist(ctx context.Context, today string) ([]domain.ChecklistItem, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+checklistColumns+` FROM checklist_items WHERE status<>? AND planned_date IS NOT NULL AND planned_date<? ORDER BY planned_date, project_id, id`), domain.ItemDone, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ChecklistItem{}
	for rows.Next() {
		c, err := scanChecklistItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateChecklistItem rewrites every mutable column of the item.
func (r Repo) UpdateChecklistItem(ctx context.Context, tx DBTX, c domain.ChecklistItem) error {
	docs, err := documentsJSON(c.Documents)
	if err != nil {
		return err
	}
	res, err := r.conn(tx).ExecContext(ctx, r.q(`UPDATE checklist_items SET category=?, description=?, required=?, status=?, responsible=?, planned_date=?, completed_date=?, documents_json=?, notes=?, updated_at=? WHERE id=?`),
		c.Category, c.Description, c.Required, c.Status, c.Responsible,
		nullableStringPtr(c.PlannedDate), nullableStringPtr(c.CompletedDate), docs, c.Notes, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteChecklistItem(ctx context.Context, tx DBTX, id string) error {
	res, err := r.conn(tx).ExecContext(ctx, r.q(`DELETE FROM checklist_items WHERE id=?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
