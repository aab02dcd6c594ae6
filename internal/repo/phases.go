package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"heatline/internal/domain"
)

func phaseColumnList(p domain.Phase) []string {
	cols := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		cols = append(cols, c.Name)
	}
	return cols
}

// GetPhaseRecord returns the single record of a phase for a project, or
// ErrNotFound when none was stored yet. NULL columns are left out of Fields.
func (r Repo) GetPhaseRecord(ctx context.Context, p domain.Phase, projectID string) (domain.PhaseRecord, error) {
	query := fmt.Sprintf(`SELECT id,project_id,%s,created_at,updated_at FROM %s WHERE project_id=? LIMIT 1`, strings.Join(phaseColumnList(p), ","), p.Table)
	rec, err := scanPhaseRecord(r.DB.QueryRowContext(ctx, r.q(query), projectID), p)
	if err == sql.ErrNoRows {
		return rec, ErrNotFound
	}
	return rec, err
}

// UpsertPhaseRecord inserts or updates the phase record of a project in a
// single statement keyed on the unique project_id. A new row gets every
// column of rec. On an existing row only the columns named in changed are
// overwritten and a nil changed overwrites every column. The returned
// record is the row as stored after the statement.
func (r Repo) UpsertPhaseRecord(ctx context.Context, tx DBTX, p domain.Phase, rec domain.PhaseRecord, changed []string) (domain.PhaseRecord, error) {
	cols := phaseColumnList(p)
	insertCols := append([]string{"id", "project_id"}, cols...)
	insertCols = append(insertCols, "created_at", "updated_at")

	setCols := cols
	if changed != nil {
		setCols = make([]string, 0, len(changed))
		for _, name := range changed {
			if _, ok := p.Column(name); ok && !domain.Contains(setCols, name) {
				setCols = append(setCols, name)
			}
		}
	}
	updates := make([]string, 0, len(setCols)+1)
	for _, c := range setCols {
		updates = append(updates, fmt.Sprintf("%s=excluded.%s", c, c))
	}
	updates = append(updates, "updated_at=excluded.updated_at")

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(insertCols)), ",")
	query := fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s) ON CONFLICT(project_id) DO UPDATE SET %s RETURNING id,project_id,%s,created_at,updated_at`,
		p.Table, strings.Join(insertCols, ","), placeholders, strings.Join(updates, ", "), strings.Join(cols, ","))

	args := make([]any, 0, len(insertCols))
	args = append(args, rec.ID, rec.ProjectID)
	for _, c := range cols {
		args = append(args, rec.Fields[c])
	}
	args = append(args, rec.CreatedAt, rec.UpdatedAt)

	out, err := scanPhaseRecord(r.conn(tx).QueryRowContext(ctx, r.q(query), args...), p)
	if err != nil {
		return rec, fmt.Errorf("upsert %s: %w", p.Table, err)
	}
	return out, nil
}

func scanPhaseRecord(row scanner, p domain.Phase) (domain.PhaseRecord, error) {
	rec := domain.PhaseRecord{Phase: p.Name, Fields: map[string]any{}}
	holders := make([]any, len(p.Columns))
	for i, c := range p.Columns {
		holders[i] = holderFor(c.Kind)
	}
	dest := append([]any{&rec.ID, &rec.ProjectID}, holders...)
	dest = append(dest, &rec.CreatedAt, &rec.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return rec, err
	}
	for i, c := range p.Columns {
		if v, ok := holderValue(holders[i]); ok {
			rec.Fields[c.Name] = v
		}
	}
	return rec, nil
}

func holderFor(k domain.Kind) any {
	switch k {
	case domain.KindNumber:
		return new(sql.NullFloat64)
	case domain.KindInteger:
		return new(sql.NullInt64)
	case domain.KindBool:
		return new(sql.NullBool)
	default:
		return new(sql.NullString)
	}
}

func holderValue(h any) (any, bool) {
	switch v := h.(type) {
	case *sql.NullFloat64:
		return v.Float64, v.Valid
	case *sql.NullInt64:
		return v.Int64, v.Valid
	case *sql.NullBool:
		return v.Bool, v.Valid
	case *sql.NullString:
		return v.String, v.Valid
	}
	return nil, false
}
