package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"heatline/internal/blob"
	"heatline/internal/config"
	"heatline/internal/db"
	"heatline/internal/domain"
	"heatline/internal/events"
	"heatline/internal/metrics"
	"heatline/internal/notify"
	"heatline/internal/progress"
	"heatline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Blobs   blob.Store
	Notify  notify.Notifier
	Metrics *metrics.Recorder
	Now     func() time.Time

	catalog map[string][]progress.Descriptor
}

var (
	ErrUnknownPhase = errors.New("unknown phase")
	ErrInvalid      = errors.New("invalid input")
)

// FieldError rejects one field of a phase change.
type FieldError struct {
	Phase  string
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid field %s.%s: %s", e.Phase, e.Field, e.Reason)
}

// ProgressSyncError reports that a checklist write was committed but the
// project's progress cache could not be refreshed.
type ProgressSyncError struct {
	ProjectID string
	Err       error
}

func (e *ProgressSyncError) Error() string {
	return fmt.Sprintf("project %s progress not updated: %v", e.ProjectID, e.Err)
}

func (e *ProgressSyncError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// New builds an engine over an open, migrated database. A nil cfg falls back
// to the built-in configuration.
func New(conn *sql.DB, dialect db.Dialect, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return Engine{}, err
	}
	return Engine{
		DB:      conn,
		Repo:    repo.Repo{DB: conn, Dialect: dialect},
		Events:  events.Writer{DB: conn, Dialect: dialect},
		Config:  cfg,
		Notify:  notify.Nop{},
		Now:     time.Now,
		catalog: catalog,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) notifier() notify.Notifier {
	if e.Notify == nil {
		return notify.Nop{}
	}
	return e.Notify
}

// Descriptors returns the tracked fields of a phase.
func (e Engine) Descriptors(phase string) ([]progress.Descriptor, error) {
	if _, ok := domain.PhaseByName(phase); !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPhase, phase)
	}
	if d, ok := e.catalog[phase]; ok {
		return d, nil
	}
	return []progress.Descriptor{}, nil
}

type ProjectCreateOptions struct {
	ID                   string
	Name                 string
	Status               string
	StartDate            *string
	EndDate              *string
	Manager              string
	Location             string
	Client               string
	Notes                string
	BuildingType         *string
	ConstructionYear     *int
	RenovationStatus     *string
	PreviousEnergySource *string
	ProjectGoal          string
	ActorID              string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, invalidf("name is required")
	}
	if opts.Status == "" {
		opts.Status = domain.StatusPlanned
	}
	update := repo.ProjectUpdate{
		Status:               &opts.Status,
		StartDate:            opts.StartDate,
		EndDate:              opts.EndDate,
		BuildingType:         opts.BuildingType,
		ConstructionYear:     opts.ConstructionYear,
		RenovationStatus:     opts.RenovationStatus,
		PreviousEnergySource: opts.PreviousEnergySource,
	}
	if err := validateProject(update); err != nil {
		return domain.Project{}, err
	}
	if err := validateSpan(domain.Project{}, update); err != nil {
		return domain.Project{}, err
	}
	if opts.ConstructionYear != nil && *opts.ConstructionYear == 0 {
		opts.ConstructionYear = nil
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := e.timestamp()
	p := domain.Project{
		ID:                   id,
		Name:                 strings.TrimSpace(opts.Name),
		Status:               opts.Status,
		StartDate:            emptyToNil(opts.StartDate),
		EndDate:              emptyToNil(opts.EndDate),
		Manager:              opts.Manager,
		Location:             opts.Location,
		Client:               opts.Client,
		Notes:                opts.Notes,
		BuildingType:         emptyToNil(opts.BuildingType),
		ConstructionYear:     opts.ConstructionYear,
		RenovationStatus:     emptyToNil(opts.RenovationStatus),
		PreviousEnergySource: emptyToNil(opts.PreviousEnergySource),
		ProjectGoal:          opts.ProjectGoal,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.ProjectCreated, p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"name": p.Name, "status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.notifier().Success(fmt.Sprintf("Projekt %s angelegt", p.Name))
	return p, nil
}

func (e Engine) UpdateProject(ctx context.Context, id string, u repo.ProjectUpdate, actorID string) (domain.Project, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return domain.Project{}, invalidf("name must not be empty")
	}
	if err := validateProject(u); err != nil {
		return domain.Project{}, err
	}
	current, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if u.Empty() {
		return current, nil
	}
	if err := validateSpan(current, u); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProject(ctx, tx, id, u, e.timestamp()); err != nil {
		return domain.Project{}, err
	}
	payload := events.EventPayload{}
	if u.Status != nil {
		payload["status"] = *u.Status
	}
	if err := e.Events.Append(ctx, tx, events.ProjectUpdated, id, "project", id, actorID, payload); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.ProjectDeleted, id, "project", id, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Metrics.ProjectDeleted(id)
	return nil
}

func validateProject(u repo.ProjectUpdate) error {
	if u.Status != nil && !domain.Contains(domain.ProjectStatuses, *u.Status) {
		return invalidf("status must be one of %s", strings.Join(domain.ProjectStatuses, ", "))
	}
	checks := []struct {
		name    string
		value   *string
		allowed []string
	}{
		{"building_type", u.BuildingType, domain.BuildingTypes},
		{"renovation_status", u.RenovationStatus, domain.RenovationStates},
		{"previous_energy_source", u.PreviousEnergySource, domain.EnergySources},
	}
	for _, c := range checks {
		if c.value != nil && *c.value != "" && !domain.Contains(c.allowed, *c.value) {
			return invalidf("%s must be one of %s", c.name, strings.Join(c.allowed, ", "))
		}
	}
	for name, v := range map[string]*string{"start_date": u.StartDate, "end_date": u.EndDate} {
		if err := validateDate(name, v); err != nil {
			return err
		}
	}
	if u.ConstructionYear != nil && *u.ConstructionYear != 0 && (*u.ConstructionYear < 1000 || *u.ConstructionYear > 9999) {
		return invalidf("construction_year must have four digits")
	}
	return nil
}

// validateSpan checks the dates a project ends up with once u is applied to
// current.
func validateSpan(current domain.Project, u repo.ProjectUpdate) error {
	start, end := current.StartDate, current.EndDate
	if u.StartDate != nil {
		start = emptyToNil(u.StartDate)
	}
	if u.EndDate != nil {
		end = emptyToNil(u.EndDate)
	}
	if start != nil && end != nil && *end < *start {
		return invalidf("end_date %s is before start_date %s", *end, *start)
	}
	return nil
}

func validateDate(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse(domain.DateLayout, *v); err != nil {
		return invalidf("%s must be YYYY-MM-DD", name)
	}
	return nil
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}
