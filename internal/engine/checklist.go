package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"heatline/internal/domain"
	"heatline/internal/events"
	"heatline/internal/progress"
	"heatline/internal/repo"
)

type ChecklistCreateOptions struct {
	ID          string
	ProjectID   string
	Category    string
	Description string
	Required    bool
	Status      string
	Responsible string
	PlannedDate *string
	Documents   []string
	Notes       string
	ActorID     string
}

type ChecklistUpdateOptions struct {
	ID            string
	Category      *string
	Description   *string
	Required      *bool
	Status        *string
	Responsible   *string
	PlannedDate   *string
	CompletedDate *string
	Documents     *[]string
	Notes         *string
	ActorID       string
}

// AddChecklistItem stores a new item and then refreshes the project's
// progress. A failed refresh is returned as *ProgressSyncError together with
// the stored item.
func (e Engine) AddChecklistItem(ctx context.Context, opts ChecklistCreateOptions) (domain.ChecklistItem, error) {
	if opts.Status == "" {
		opts.Status = domain.ItemOpen
	}
	if opts.ProjectID == "" {
		return domain.ChecklistItem{}, invalidf("project is required")
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.ChecklistItem{}, invalidf("description is required")
	}
	if err := validateChecklist(&opts.Category, &opts.Status, opts.PlannedDate, nil); err != nil {
		return domain.ChecklistItem{}, err
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.ChecklistItem{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	item := domain.ChecklistItem{
		ID:          id,
		ProjectID:   opts.ProjectID,
		Category:    opts.Category,
		Description: strings.TrimSpace(opts.Description),
		Required:    opts.Required,
		Status:      opts.Status,
		Responsible: opts.Responsible,
		PlannedDate: emptyToNil(opts.PlannedDate),
		Documents:   opts.Documents,
		Notes:       opts.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if item.Documents == nil {
		item.Documents = []string{}
	}
	e.stampCompletion(&item, "")

	err := e.inTx(ctx, func(tx repo.DBTX) error {
		if err := e.Repo.InsertChecklistItem(ctx, tx, item); err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
		return nil
	}, events.ChecklistAdded, item.ProjectID, item.ID, opts.ActorID, events.EventPayload{"category": item.Category, "required": item.Required, "status": item.Status})
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	return item, e.afterChecklistWrite(ctx, item.ProjectID, opts.ActorID)
}

func (e Engine) UpdateChecklistItem(ctx context.Context, opts ChecklistUpdateOptions) (domain.ChecklistItem, error) {
	item, err := e.Repo.GetChecklistItem(ctx, opts.ID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	if opts.Description != nil && strings.TrimSpace(*opts.Description) == "" {
		return domain.ChecklistItem{}, invalidf("description must not be empty")
	}
	if err := validateChecklist(opts.Category, opts.Status, opts.PlannedDate, opts.CompletedDate); err != nil {
		return domain.ChecklistItem{}, err
	}
	previous := item.Status
	if opts.Category != nil {
		item.Category = *opts.Category
	}
	if opts.Description != nil {
		item.Description = strings.TrimSpace(*opts.Description)
	}
	if opts.Required != nil {
		item.Required = *opts.Required
	}
	if opts.Status != nil {
		item.Status = *opts.Status
	}
	if opts.Responsible != nil {
		item.Responsible = *opts.Responsible
	}
	if opts.PlannedDate != nil {
		item.PlannedDate = emptyToNil(opts.PlannedDate)
	}
	if opts.Documents != nil {
		item.Documents = *opts.Documents
	}
	if opts.Notes != nil {
		item.Notes = *opts.Notes
	}
	if opts.CompletedDate != nil {
		item.CompletedDate = emptyToNil(opts.CompletedDate)
	} else {
		e.stampCompletion(&item, previous)
	}
	item.UpdatedAt = e.timestamp()

	err = e.inTx(ctx, func(tx repo.DBTX) error {
		return e.Repo.UpdateChecklistItem(ctx, tx, item)
	}, events.ChecklistEdited, item.ProjectID, item.ID, opts.ActorID, events.EventPayload{"status": item.Status, "previous_status": previous})
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	return item, e.afterChecklistWrite(ctx, item.ProjectID, opts.ActorID)
}

func (e Engine) DeleteChecklistItem(ctx context.Context, id, actorID string) error {
	item, err := e.Repo.GetChecklistItem(ctx, id)
	if err != nil {
		return err
	}
	err = e.inTx(ctx, func(tx repo.DBTX) error {
		return e.Repo.DeleteChecklistItem(ctx, tx, id)
	}, events.ChecklistRemove, item.ProjectID, id, actorID, events.EventPayload{"description": item.Description})
	if err != nil {
		return err
	}
	return e.afterChecklistWrite(ctx, item.ProjectID, actorID)
}

// stampCompletion sets the completion date when an item becomes done and
// clears it when it leaves the done state.
func (e Engine) stampCompletion(item *domain.ChecklistItem, previous string) {
	switch {
	case item.Done() && item.CompletedDate == nil:
		today := e.now().UTC().Format(domain.DateLayout)
		item.CompletedDate = &today
	case !item.Done() && previous == domain.ItemDone:
		item.CompletedDate = nil
	}
}

func (e Engine) afterChecklistWrite(ctx context.Context, projectID, actorID string) error {
	if _, err := e.SyncProjectProgress(ctx, projectID, actorID); err != nil {
		return &ProgressSyncError{ProjectID: projectID, Err: err}
	}
	return nil
}

func (e Engine) inTx(ctx context.Context, fn func(tx repo.DBTX) error, evtType, projectID, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, projectID, "checklist_item", entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

// ChecklistProgress is the share of completed items among the required ones.
func (e Engine) ChecklistProgress(ctx context.Context, projectID string) (ChecklistSummary, error) {
	items, err := e.Repo.ListChecklist(ctx, repo.ChecklistFilters{ProjectID: projectID})
	if err != nil {
		return ChecklistSummary{}, err
	}
	return summarizeChecklist(items), nil
}

// SyncProjectProgress recomputes the checklist aggregate and writes it onto
// the project. It is a separate step from the checklist write it follows.
func (e Engine) SyncProjectProgress(ctx context.Context, projectID, actorID string) (int, error) {
	summary, err := e.ChecklistProgress(ctx, projectID)
	if err != nil {
		e.Metrics.ProgressSynced(projectID, 0, err)
		return 0, err
	}
	err = e.syncProgress(ctx, projectID, actorID, summary.Percent)
	e.Metrics.ProgressSynced(projectID, summary.Percent, err)
	if err != nil {
		e.notifier().Error("Projektfortschritt konnte nicht aktualisiert werden", err)
		return 0, err
	}
	return summary.Percent, nil
}

func (e Engine) syncProgress(ctx context.Context, projectID, actorID string, percent int) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetProjectProgress(ctx, tx, projectID, percent, e.timestamp()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ProgressSynced, projectID, "project", projectID, actorID, events.EventPayload{"progress": percent}); err != nil {
		return err
	}
	return tx.Commit()
}

type ChecklistSummary struct {
	Total        int `json:"total"`
	Required     int `json:"required"`
	RequiredDone int `json:"required_done"`
	Percent      int `json:"percent"`
}

func summarizeChecklist(items []domain.ChecklistItem) ChecklistSummary {
	s := ChecklistSummary{Total: len(items)}
	agg := make([]progress.Item, 0, len(items))
	for _, it := range items {
		agg = append(agg, progress.Item{Required: it.Required, Completed: it.Done()})
		if it.Required {
			s.Required++
			if it.Done() {
				s.RequiredDone++
			}
		}
	}
	s.Percent = progress.Aggregate(agg)
	return s
}

type PhaseProgress struct {
	Phase           string   `json:"phase"`
	Title           string   `json:"title"`
	Percent         int      `json:"percent"`
	Stored          bool     `json:"stored"`
	MissingRequired []string `json:"missing_required"`
}

type Overview struct {
	Project   domain.Project   `json:"project"`
	Phases    []PhaseProgress  `json:"phases"`
	Checklist ChecklistSummary `json:"checklist"`
}

// Overview gathers per-phase completion and the checklist aggregate.
func (e Engine) Overview(ctx context.Context, projectID string) (Overview, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{Project: p, Phases: []PhaseProgress{}}
	for _, ph := range domain.Phases() {
		view, err := e.LoadPhase(ctx, projectID, ph.Name)
		if err != nil {
			return Overview{}, err
		}
		out.Phases = append(out.Phases, PhaseProgress{
			Phase:           ph.Name,
			Title:           ph.Title,
			Percent:         view.Summary.Percent,
			Stored:          view.Stored,
			MissingRequired: view.Summary.MissingRequired,
		})
	}
	out.Checklist, err = e.ChecklistProgress(ctx, projectID)
	if err != nil {
		return Overview{}, err
	}
	return out, nil
}

func validateChecklist(category, status, planned, completed *string) error {
	if category != nil && !domain.Contains(domain.ChecklistCategories, *category) {
		return invalidf("category must be one of %s", strings.Join(domain.ChecklistCategories, ", "))
	}
	if status != nil && !domain.Contains(domain.ChecklistStatuses, *status) {
		return invalidf("status must be one of %s", strings.Join(domain.ChecklistStatuses, ", "))
	}
	if err := validateDate("planned_date", planned); err != nil {
		return err
	}
	return validateDate("completed_date", completed)
}
