package domain

const (
	StatusPlanned    = "Geplant"
	StatusInProgress = "In Umsetzung"
	StatusCompleted  = "Abgeschlossen"
	StatusPaused     = "Pausiert"
)

var ProjectStatuses = []string{StatusPlanned, StatusInProgress, StatusCompleted, StatusPaused}

var (
	BuildingTypes     = []string{"EFH", "MFH", "Gewerbe", "Industrie"}
	RenovationStates  = []string{"unsaniert", "teilsaniert", "vollsaniert"}
	EnergySources     = []string{"Gas", "Öl", "Fernwärme", "Strom", "Sonstiges"}
	HeatPumpTypes     = []string{"Luft/Wasser", "Sole/Wasser", "Wasser/Wasser"}
	HeatSources       = []string{"Luft", "Erdkollektor", "Erdsonde", "Grundwasser", "Abwasser", "Abwärme"}
	ElectricityTariff = []string{"HT/NT", "PV", "Direktverbrauch", "Dynamisch"}
	PermissionStates  = []string{"Ja", "Nein", "Unklar"}
	HeatingSurfaces   = []string{"Radiatoren", "FBH", "Wandheizung", "Gemischt"}
	DrillAccess       = []string{"möglich", "eingeschränkt", "nicht möglich"}
)

const (
	ItemOpen       = "Offen"
	ItemInProgress = "In Bearbeitung"
	ItemDone       = "Erledigt"
	ItemBlocked    = "Blockiert"
)

var ChecklistStatuses = []string{ItemOpen, ItemInProgress, ItemDone, ItemBlocked}

var ChecklistCategories = []string{
	"Projektstart", "Planung", "Technik", "Subunternehmer",
	"Ausführung", "Abnahme", "Abrechnung", "Betrieb",
}

type Project struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Status               string  `json:"status" enum:"Geplant,In Umsetzung,Abgeschlossen,Pausiert"`
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
	Progress             int     `json:"progress" minimum:"0" maximum:"100"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	UpdatedAt            string  `json:"updated_at" format:"date-time"`
}

type PhaseRecord struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Phase     string         `json:"phase" enum:"technical_data,system_design,implementation,operation"`
	Fields    map[string]any `json:"fields"`
	CreatedAt string         `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt string         `json:"updated_at,omitempty" format:"date-time"`
}

type ChecklistItem struct {
	ID            string   `json:"id"`
	ProjectID     string   `json:"project_id"`
	Category      string   `json:"category" enum:"Projektstart,Planung,Technik,Subunternehmer,Ausführung,Abnahme,Abrechnung,Betrieb"`
	Description   string   `json:"description"`
	Required      bool     `json:"required"`
	Status        string   `json:"status" enum:"Offen,In Bearbeitung,Erledigt,Blockiert"`
	Responsible   string   `json:"responsible,omitempty"`
	PlannedDate   *string  `json:"planned_date,omitempty" format:"date"`
	CompletedDate *string  `json:"completed_date,omitempty" format:"date"`
	Documents     []string `json:"documents"`
	Notes         string   `json:"notes,omitempty"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

// Done reports whether the item counts as completed for project progress.
func (c ChecklistItem) Done() bool {
	return c.Status == ItemDone
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Contains reports whether v is one of the allowed values.
func Contains(allowed []string, v string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
