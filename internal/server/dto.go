package server

import (
	"heatline/internal/config"
	"heatline/internal/domain"
	"heatline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID                   *string `json:"id,omitempty"`
	Name                 string  `json:"name" minLength:"1"`
	Status               string  `json:"status,omitempty" enum:"Geplant,In Umsetzung,Abgeschlossen,Pausiert"`
	StartDate            *string `json:"start_date,omitempty" format:"date"`
	EndDate              *string `json:"end_date,omitempty" format:"date"`
	Manager              string  `json:"manager,omitempty"`
	Location             string  `json:"location,omitempty"`
	Client               string  `json:"client,omitempty"`
	Notes                string  `json:"notes,omitempty"`
	BuildingType         *string `json:"building_type,omitempty" enum:"EFH,MFH,Gewerbe,Industrie"`
	ConstructionYear     *int    `json:"construction_year,omitempty"`
	RenovationStatus     *string `json:"renovation_status,omitempty" enum:"unsaniert,teilsaniert,vollsaniert"`
	PreviousEnergySource *string `json:"previous_energy_source,omitempty" enum:"Gas,Öl,Fernwärme,Strom,Sonstiges"`
	ProjectGoal          string  `json:"project_goal,omitempty"`
}

// PhaseChangesRequest carries field values keyed by column name. A null or
// empty string clears the field.
type PhaseChangesRequest struct {
	Fields map[string]any `json:"fields" jsonschema:"type=object,additionalProperties=true"`
}

type CreateChecklistItemRequest struct {
	ID          *string  `json:"id,omitempty"`
	Category    string   `json:"category" enum:"Projektstart,Planung,Technik,Subunternehmer,Ausführung,Abnahme,Abrechnung,Betrieb"`
	Description string   `json:"description" minLength:"1"`
	Required    bool     `json:"required,omitempty"`
	Status      string   `json:"status,omitempty" enum:"Offen,In Bearbeitung,Erledigt,Blockiert"`
	Responsible string   `json:"responsible,omitempty"`
	PlannedDate *string  `json:"planned_date,omitempty" format:"date"`
	Documents   []string `json:"documents,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

type UpdateChecklistItemRequest struct {
	Category      *string   `json:"category,omitempty" enum:"Projektstart,Planung,Technik,Subunternehmer,Ausführung,Abnahme,Abrechnung,Betrieb"`
	Description   *string   `json:"description,omitempty"`
	Required      *bool     `json:"required,omitempty"`
	Status        *string   `json:"status,omitempty" enum:"Offen,In Bearbeitung,Erledigt,Blockiert"`
	Responsible   *string   `json:"responsible,omitempty"`
	PlannedDate   *string   `json:"planned_date,omitempty"`
	CompletedDate *string   `json:"completed_date,omitempty"`
	Documents     *[]string `json:"documents,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
}

// Response payloads

type ChecklistItemResponse struct {
	Item domain.ChecklistItem `json:"item"`
	// Warning is set when the item was stored but the project's progress
	// could not be refreshed.
	Warning string `json:"warning,omitempty"`
}

type paginatedProjects struct {
	Items []domain.Project `json:"items"`
}

type paginatedChecklist struct {
	Items   []domain.ChecklistItem  `json:"items"`
	Summary engine.ChecklistSummary `json:"summary"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type FormFieldResponse struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Rule     string   `json:"rule,omitempty"`
	Choices  []string `json:"choices,omitempty"`
}

type FormResponse struct {
	Phase  string              `json:"phase"`
	Title  string              `json:"title"`
	Fields []FormFieldResponse `json:"fields"`
}

func formResponse(p domain.Phase, form config.Form) FormResponse {
	out := FormResponse{Phase: p.Name, Title: p.Title, Fields: []FormFieldResponse{}}
	for _, f := range form.Fields {
		col, _ := p.Column(f.Name)
		out.Fields = append(out.Fields, FormFieldResponse{
			Name:     f.Name,
			Kind:     string(col.Kind),
			Required: f.Required,
			Rule:     f.Rule,
			Choices:  col.Choices,
		})
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
