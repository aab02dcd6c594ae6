package engine

import (
	"context"

	"heatline/internal/domain"
	"heatline/internal/repo"
)

// Dashboard counts projects by status across the whole workspace and lists
// the checklist items that are past their planned date.
type Dashboard struct {
	TotalProjects     int                    `json:"total_projects"`
	ActiveProjects    int                    `json:"active_projects"`
	CompletedProjects int                    `json:"completed_projects"`
	OverdueTasks      int                    `json:"overdue_tasks"`
	Today             string                 `json:"today"`
	Overdue           []domain.ChecklistItem `json:"overdue"`
}

// Dashboard builds the portfolio summary. An item is overdue when it is not
// done and its planned date is before today; an item planned for today is
// not overdue yet.
func (e Engine) Dashboard(ctx context.Context) (Dashboard, error) {
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return Dashboard{}, err
	}
	today := e.now().UTC().Format(domain.DateLayout)
	d := Dashboard{TotalProjects: len(projects), Today: today}
	for _, p := range projects {
		switch p.Status {
		case domain.StatusInProgress:
			d.ActiveProjects++
		case domain.StatusCompleted:
			d.CompletedProjects++
		}
	}
	d.Overdue, err = e.Repo.ListOverdueChecklist(ctx, today)
	if err != nil {
		return Dashboard{}, err
	}
	d.OverdueTasks = len(d.Overdue)
	return d, nil
}
