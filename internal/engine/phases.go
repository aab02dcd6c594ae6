package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"heatline/internal/domain"
	"heatline/internal/events"
	"heatline/internal/progress"
	"heatline/internal/repo"
)

// PhaseView is a phase record together with its derived completion.
type PhaseView struct {
	Phase   string             `json:"phase"`
	Record  domain.PhaseRecord `json:"record"`
	Summary progress.Summary   `json:"summary"`
	// Stored is false while the project has no record for the phase yet.
	Stored bool `json:"stored"`
}

func (e Engine) phase(name string) (domain.Phase, []progress.Descriptor, error) {
	p, ok := domain.PhaseByName(name)
	if !ok {
		return domain.Phase{}, nil, fmt.Errorf("%w %q", ErrUnknownPhase, name)
	}
	d, err := e.Descriptors(name)
	return p, d, err
}

func (e Engine) view(p domain.Phase, descs []progress.Descriptor, rec domain.PhaseRecord, stored bool) PhaseView {
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	rec.Phase = p.Name
	return PhaseView{
		Phase:   p.Name,
		Record:  rec,
		Summary: progress.Summarize(descs, rec.Fields),
		Stored:  stored,
	}
}

// LoadPhase returns the stored record of a phase, or the phase defaults when
// nothing was stored yet. When the store cannot be read the default view is
// returned along with the error.
func (e Engine) LoadPhase(ctx context.Context, projectID, phaseName string) (PhaseView, error) {
	p, descs, err := e.phase(phaseName)
	if err != nil {
		return PhaseView{}, err
	}
	fallback := e.view(p, descs, domain.PhaseRecord{ProjectID: projectID, Fields: p.DefaultRecord()}, false)
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			e.notifier().Error("Fehler beim Laden des Projekts", err)
		}
		return fallback, err
	}
	rec, err := e.Repo.GetPhaseRecord(ctx, p, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		e.notifier().Error(fmt.Sprintf("Fehler beim Laden von %s", p.Title), err)
		return fallback, fmt.Errorf("load %s: %w", p.Name, err)
	}
	return e.view(p, descs, rec, true), nil
}

// Coerce validates changes against the phase schema and normalises their
// values. An empty string clears a field.
func (e Engine) Coerce(phaseName string, changes []progress.FieldChange) ([]progress.FieldChange, error) {
	p, ok := domain.PhaseByName(phaseName)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPhase, phaseName)
	}
	out := make([]progress.FieldChange, 0, len(changes))
	for _, c := range changes {
		col, ok := p.Column(c.Name)
		if !ok {
			return nil, &FieldError{Phase: p.Name, Field: c.Name, Reason: "unknown field"}
		}
		v, err := col.Coerce(c.Value)
		if err != nil {
			return nil, &FieldError{Phase: p.Name, Field: c.Name, Reason: err.Error()}
		}
		if s, isString := v.(string); isString && s == "" {
			v = nil
		}
		out = append(out, progress.FieldChange{Name: c.Name, Value: v})
	}
	return out, nil
}

// PreviewPhase applies changes to base and reports the resulting completion
// without touching the store.
func (e Engine) PreviewPhase(phaseName string, base map[string]any, changes []progress.FieldChange) (PhaseView, error) {
	p, descs, err := e.phase(phaseName)
	if err != nil {
		return PhaseView{}, err
	}
	coerced, err := e.Coerce(phaseName, changes)
	if err != nil {
		return PhaseView{}, err
	}
	next := progress.Apply(base, coerced...)
	return e.view(p, descs, domain.PhaseRecord{Fields: next}, false), nil
}

type SavePhaseOptions struct {
	ProjectID string
	Phase     string
	Changes   []progress.FieldChange
	ActorID   string
}

// SavePhase applies the changes to the stored record and upserts it. Only
// the changed columns of an existing record are written. On a store failure the returned view still holds the attempted record so the
// caller can keep the edits and resubmit.
func (e Engine) SavePhase(ctx context.Context, opts SavePhaseOptions) (PhaseView, error) {
	return e.savePhase(ctx, opts, events.PhaseSaved, nil)
}

func (e Engine) savePhase(ctx context.Context, opts SavePhaseOptions, evtType string, extra events.EventPayload) (PhaseView, error) {
	p, descs, err := e.phase(opts.Phase)
	if err != nil {
		return PhaseView{}, err
	}
	changes, err := e.Coerce(opts.Phase, opts.Changes)
	if err != nil {
		return PhaseView{}, err
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return PhaseView{}, err
	}
	base := p.DefaultRecord()
	stored, err := e.Repo.GetPhaseRecord(ctx, p, opts.ProjectID)
	switch {
	case err == nil:
		base = stored.Fields
	case errors.Is(err, repo.ErrNotFound):
	default:
		return PhaseView{}, fmt.Errorf("load %s: %w", p.Name, err)
	}

	now := e.timestamp()
	rec := domain.PhaseRecord{
		ID:        uuid.NewString(),
		ProjectID: opts.ProjectID,
		Phase:     p.Name,
		Fields:    progress.Apply(base, changes...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	attempted := e.view(p, descs, rec, false)

	saved, err := e.persistPhase(ctx, p, rec, opts.ActorID, evtType, changes, attempted.Summary.Percent, extra)
	e.Metrics.PhaseSaved(p.Name, attempted.Summary.Percent, err)
	if err != nil {
		e.notifier().Error(fmt.Sprintf("%s konnte nicht gespeichert werden", p.Title), err)
		return attempted, err
	}
	e.notifier().Success(fmt.Sprintf("%s gespeichert", p.Title))
	return e.view(p, descs, saved, true), nil
}

func (e Engine) persistPhase(ctx context.Context, p domain.Phase, rec domain.PhaseRecord, actorID, evtType string, changes []progress.FieldChange, percent int, extra events.EventPayload) (domain.PhaseRecord, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		names = append(names, c.Name)
	}
	saved, err := e.Repo.UpsertPhaseRecord(ctx, tx, p, rec, names)
	if err != nil {
		return rec, err
	}
	payload := events.EventPayload{"phase": p.Name, "fields": names, "percent": percent}
	for k, v := range extra {
		payload[k] = v
	}
	if err := e.Events.Append(ctx, tx, evtType, rec.ProjectID, p.Name, saved.ID, actorID, payload); err != nil {
		return rec, err
	}
	if err := tx.Commit(); err != nil {
		return rec, err
	}
	return saved, nil
}

type UploadOptions struct {
	ProjectID   string
	Field       string
	Filename    string
	ContentType string
	Body        io.Reader
	ActorID     string
}

// UploadDocument stores a protocol file and records its public URL on the
// implementation phase. When the upload fails the field is left unchanged.
func (e Engine) UploadDocument(ctx context.Context, opts UploadOptions) (PhaseView, error) {
	if !domain.IsDocumentField(opts.Field) {
		return PhaseView{}, &FieldError{Phase: domain.PhaseImplementation, Field: opts.Field, Reason: "not a document field"}
	}
	if e.Blobs == nil {
		return PhaseView{}, errors.New("blob storage not configured")
	}
	if opts.Body == nil {
		return PhaseView{}, invalidf("document body is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return PhaseView{}, err
	}
	objectPath := fmt.Sprintf("%s/%s_%d%s", opts.ProjectID, opts.Field, e.now().UnixMilli(), extension(opts.Filename))
	if err := e.Blobs.Upload(ctx, objectPath, opts.Body, opts.ContentType); err != nil {
		e.Metrics.DocumentUploaded(opts.Field, err)
		e.notifier().Error("Datei konnte nicht hochgeladen werden", err)
		return PhaseView{}, fmt.Errorf("upload %s: %w", opts.Field, err)
	}
	e.Metrics.DocumentUploaded(opts.Field, nil)
	publicURL := e.Blobs.PublicURL(objectPath)
	return e.savePhase(ctx, SavePhaseOptions{
		ProjectID: opts.ProjectID,
		Phase:     domain.PhaseImplementation,
		Changes:   []progress.FieldChange{{Name: opts.Field, Value: publicURL}},
		ActorID:   opts.ActorID,
	}, events.DocumentStored, events.EventPayload{"object": objectPath, "filename": opts.Filename})
}

func extension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\ ") {
		return ""
	}
	return ext
}
