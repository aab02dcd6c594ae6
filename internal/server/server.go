package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heatline/internal/domain"
	"heatline/internal/engine"
	"heatline/internal/progress"
	"heatline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// Registry, when set, is served on /metrics.
	Registry *prometheus.Registry
	Logger   *slog.Logger
	// FilesDir, when set, is served on /files/ for the local document store.
	FilesDir string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_field"`
	Message string         `json:"message" example:"invalid field technical_data.heating_load_calculated: expected number, got string"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"field\":\"heating_load_calculated\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Heatline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	hcfg := huma.DefaultConfig("Heatline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerPhases(group, cfg.Engine)
	registerDocuments(group, cfg.Engine)
	registerChecklist(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerForms(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	if cfg.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}
	if cfg.FilesDir != "" {
		router.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.FilesDir))))
	}
	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe *engine.FieldError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusBadRequest, "invalid_field", err.Error(), map[string]any{"phase": fe.Phase, "field": fe.Field, "reason": fe.Reason})
	}
	if errors.Is(err, engine.ErrUnknownPhase) {
		return newAPIError(http.StatusNotFound, "unknown_phase", err.Error(), map[string]any{"phases": domain.PhaseNames()})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, engine.ErrInvalid) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	var se *engine.ProgressSyncError
	if errors.As(err, &se) {
		return newAPIError(http.StatusInternalServerError, "progress_sync_failed", err.Error(), map[string]any{"project_id": se.ProjectID})
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"), strings.Contains(lowered, "duplicate key"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

// saveError keeps the attempted record in the error details so a client can
// resubmit it.
func saveError(err error, attempted engine.PhaseView) huma.StatusError {
	return viewError(err, "attempted", attempted)
}

// loadError reports the default form a failed read falls back to.
func loadError(err error, fallback engine.PhaseView) huma.StatusError {
	if errors.Is(err, repo.ErrNotFound) {
		return handleError(err)
	}
	return viewError(err, "defaults", fallback)
}

func viewError(err error, key string, v engine.PhaseView) huma.StatusError {
	herr := handleError(err)
	ae, ok := herr.(*apiError)
	if !ok || v.Phase == "" {
		return herr
	}
	if ae.Body.Details == nil {
		ae.Body.Details = map[string]any{}
	}
	ae.Body.Details[key] = v.Record.Fields
	ae.Body.Details["percent"] = v.Summary.Percent
	return ae
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Heatline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"Geplant,In Umsetzung,Abgeschlossen,Pausiert"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedProjects `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{Status: input.Status, Limit: normalizeLimit(input.Limit)})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedProjects `json:"body"`
		}{Body: paginatedProjects{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ActorID string               `header:"X-Actor-Id"`
		Body    CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		b := input.Body
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:                   strPtrValue(b.ID),
			Name:                 b.Name,
			Status:               b.Status,
			StartDate:            b.StartDate,
			EndDate:              b.EndDate,
			Manager:              b.Manager,
			Location:             b.Location,
			Client:               b.Client,
			Notes:                b.Notes,
			BuildingType:         b.BuildingType,
			ConstructionYear:     b.ConstructionYear,
			RenovationStatus:     b.RenovationStatus,
			PreviousEnergySource: b.PreviousEnergySource,
			ProjectGoal:          b.ProjectGoal,
			ActorID:              input.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get a project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project master data",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		ActorID   string             `header:"X-Actor-Id"`
		Body      repo.ProjectUpdate `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if input.Body.Empty() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no fields to update", nil)
		}
		p, err := e.UpdateProject(ctx, input.ProjectID, input.Body, input.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete a project with its phase records and checklist",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID, input.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "project-overview",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/overview",
		Summary:     "Completion of every phase and the checklist aggregate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.Overview `json:"body"`
	}, error) {
		ov, err := e.Overview(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Overview `json:"body"`
		}{Body: ov}, nil
	})
}

func registerPhases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-phase",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/phases/{phase}",
		Summary:     "Get a phase record with its completion",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Phase     string `path:"phase"`
	}) (*struct {
		Body engine.PhaseView `json:"body"`
	}, error) {
		view, err := e.LoadPhase(ctx, input.ProjectID, input.Phase)
		if err != nil {
			return nil, loadError(err, view)
		}
		return &struct {
			Body engine.PhaseView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "save-phase",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/phases/{phase}",
		Summary:     "Apply field changes to a phase record and store it",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Phase     string              `path:"phase"`
		ActorID   string              `header:"X-Actor-Id"`
		Body      PhaseChangesRequest `json:"body"`
	}) (*struct {
		Body engine.PhaseView `json:"body"`
	}, error) {
		view, err := e.SavePhase(ctx, engine.SavePhaseOptions{
			ProjectID: input.ProjectID,
			Phase:     input.Phase,
			Changes:   progress.Changes(input.Body.Fields),
			ActorID:   input.ActorID,
		})
		if err != nil {
			return nil, saveError(err, view)
		}
		return &struct {
			Body engine.PhaseView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "preview-phase",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/phases/{phase}/preview",
		Summary:     "Completion a set of changes would give, without storing them",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Phase     string              `path:"phase"`
		Body      PhaseChangesRequest `json:"body"`
	}) (*struct {
		Body engine.PhaseView `json:"body"`
	}, error) {
		current, err := e.LoadPhase(ctx, input.ProjectID, input.Phase)
		if err != nil {
			return nil, handleError(err)
		}
		view, err := e.PreviewPhase(input.Phase, current.Record.Fields, progress.Changes(input.Body.Fields))
		if err != nil {
			return nil, handleError(err)
		}
		view.Record.ProjectID = input.ProjectID
		return &struct {
			Body engine.PhaseView `json:"body"`
		}{Body: view}, nil
	})
}

func registerDocuments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:  "upload-document",
		Method:       http.MethodPut,
		Path:         "/projects/{project_id}/phases/implementation/documents/{field}",
		Summary:      "Upload a protocol file and record its URL on the implementation phase",
		MaxBodyBytes: 32 << 20,
		Errors:       []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		Field       string `path:"field" enum:"handover_protocol_file,commissioning_protocol_file"`
		Filename    string `query:"filename"`
		ContentType string `header:"Content-Type"`
		ActorID     string `header:"X-Actor-Id"`
		RawBody     []byte
	}) (*struct {
		Body engine.PhaseView `json:"body"`
	}, error) {
		if len(input.RawBody) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "document body is empty", nil)
		}
		view, err := e.UploadDocument(ctx, engine.UploadOptions{
			ProjectID:   input.ProjectID,
			Field:       input.Field,
			Filename:    input.Filename,
			ContentType: input.ContentType,
			Body:        bytes.NewReader(input.RawBody),
			ActorID:     input.ActorID,
		})
		if err != nil {
			return nil, saveError(err, view)
		}
		return &struct {
			Body engine.PhaseView `json:"body"`
		}{Body: view}, nil
	})
}

// syncWarning turns a progress refresh failure after a committed checklist
// write into a warning; every other error is passed through.
func syncWarning(err error) (string, error) {
	var se *engine.ProgressSyncError
	if errors.As(err, &se) {
		return se.Error(), nil
	}
	return "", err
}

func registerChecklist(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-checklist",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/checklist",
		Summary:     "List checklist items with the progress aggregate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"Offen,In Bearbeitung,Erledigt,Blockiert"`
		Category  string `query:"category"`
	}) (*struct {
		Body paginatedChecklist `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListChecklist(ctx, repo.ChecklistFilters{ProjectID: input.ProjectID, Status: input.Status, Category: input.Category})
		if err != nil {
			return nil, handleError(err)
		}
		summary, err := e.ChecklistProgress(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedChecklist `json:"body"`
		}{Body: paginatedChecklist{Items: nonNilSlice(items), Summary: summary}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-checklist-item",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/checklist",
		Summary:       "Add a checklist item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                     `path:"project_id"`
		ActorID   string                     `header:"X-Actor-Id"`
		Body      CreateChecklistItemRequest `json:"body"`
	}) (*struct {
		Body ChecklistItemResponse `json:"body"`
	}, error) {
		b := input.Body
		item, err := e.AddChecklistItem(ctx, engine.ChecklistCreateOptions{
			ID:          strPtrValue(b.ID),
			ProjectID:   input.ProjectID,
			Category:    b.Category,
			Description: b.Description,
			Required:    b.Required,
			Status:      b.Status,
			Responsible: b.Responsible,
			PlannedDate: b.PlannedDate,
			Documents:   b.Documents,
			Notes:       b.Notes,
			ActorID:     input.ActorID,
		})
		warning, err := syncWarning(err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistItemResponse `json:"body"`
		}{Body: ChecklistItemResponse{Item: item, Warning: warning}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-checklist-item",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/checklist/{item_id}",
		Summary:     "Update a checklist item",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string                     `path:"project_id"`
		ItemID    string                     `path:"item_id"`
		ActorID   string                     `header:"X-Actor-Id"`
		Body      UpdateChecklistItemRequest `json:"body"`
	}) (*struct {
		Body ChecklistItemResponse `json:"body"`
	}, error) {
		if err := checklistItemInProject(ctx, e, input.ProjectID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		b := input.Body
		item, err := e.UpdateChecklistItem(ctx, engine.ChecklistUpdateOptions{
			ID:            input.ItemID,
			Category:      b.Category,
			Description:   b.Description,
			Required:      b.Required,
			Status:        b.Status,
			Responsible:   b.Responsible,
			PlannedDate:   b.PlannedDate,
			CompletedDate: b.CompletedDate,
			Documents:     b.Documents,
			Notes:         b.Notes,
			ActorID:       input.ActorID,
		})
		warning, err := syncWarning(err)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChecklistItemResponse `json:"body"`
		}{Body: ChecklistItemResponse{Item: item, Warning: warning}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-checklist-item",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/checklist/{item_id}",
		Summary:     "Delete a checklist item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ItemID    string `path:"item_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := checklistItemInProject(ctx, e, input.ProjectID, input.ItemID); err != nil {
			return nil, handleError(err)
		}
		warning, err := syncWarning(e.DeleteChecklistItem(ctx, input.ItemID, input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		body := map[string]string{"id": input.ItemID}
		if warning != "" {
			body["warning"] = warning
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: body}, nil
	})
}

func checklistItemInProject(ctx context.Context, e engine.Engine, projectID, itemID string) error {
	item, err := e.Repo.GetChecklistItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.ProjectID != projectID {
		return fmt.Errorf("checklist item %s: %w", itemID, repo.ErrNotFound)
	}
	return nil
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Project counts by status and overdue checklist items across all projects",
	}, func(ctx context.Context, input *struct{}) (*struct {
		Body engine.Dashboard `json:"body"`
	}, error) {
		d, err := e.Dashboard(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Dashboard `json:"body"`
		}{Body: d}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,checklist_item,technical_data,system_design,implementation,operation"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerForms(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-forms",
		Method:      http.MethodGet,
		Path:        "/forms",
		Summary:     "Tracked fields of every phase",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []FormResponse `json:"body"`
	}, error) {
		out := []FormResponse{}
		for _, p := range domain.Phases() {
			out = append(out, formResponse(p, e.Config.Forms[p.Name]))
		}
		return &struct {
			Body []FormResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-form",
		Method:      http.MethodGet,
		Path:        "/forms/{phase}",
		Summary:     "Tracked fields of a phase with their required flags",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Phase string `path:"phase"`
	}) (*struct {
		Body FormResponse `json:"body"`
	}, error) {
		p, ok := domain.PhaseByName(input.Phase)
		if !ok {
			return nil, handleError(fmt.Errorf("%w %q", engine.ErrUnknownPhase, input.Phase))
		}
		return &struct {
			Body FormResponse `json:"body"`
		}{Body: formResponse(p, e.Config.Forms[p.Name])}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
