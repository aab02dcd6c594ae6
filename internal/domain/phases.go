package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	PhaseTechnicalData  = "technical_data"
	PhaseSystemDesign   = "system_design"
	PhaseImplementation = "implementation"
	PhaseOperation      = "operation"
)

const DateLayout = "2006-01-02"

type Kind string

const (
	KindText    Kind = "text"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBool    Kind = "bool"
	KindDate    Kind = "date"
)

type Column struct {
	Name    string   `json:"name" yaml:"name"`
	Kind    Kind     `json:"kind" yaml:"kind" enum:"text,number,integer,bool,date"`
	Choices []string `json:"choices,omitempty" yaml:"choices,omitempty"`
}

type Phase struct {
	Name     string
	Title    string
	Table    string
	Columns  []Column
	Defaults map[string]any
}

// Document fields are filled by uploads, never typed in directly by the CLI.
var DocumentFields = []string{"handover_protocol_file", "commissioning_protocol_file"}

var phases = []Phase{
	{
		Name:  PhaseTechnicalData,
		Title: "Technische Bestandsaufnahme",
		Table: "technical_data",
		Columns: []Column{
			{Name: "heating_load_calculated", Kind: KindNumber},
			{Name: "heat_demand_estimated", Kind: KindNumber},
			{Name: "number_of_units", Kind: KindInteger},
			{Name: "heating_surfaces", Kind: KindText, Choices: HeatingSurfaces},
			{Name: "buffer_tank_available", Kind: KindBool},
			{Name: "hot_water_integrated", Kind: KindBool},
			{Name: "grid_connection_capacity", Kind: KindNumber},
			{Name: "three_phase_connection", Kind: KindBool},
			{Name: "indoor_unit_space_available", Kind: KindBool},
			{Name: "outdoor_unit_space_available", Kind: KindBool},
			{Name: "drill_access", Kind: KindText, Choices: DrillAccess},
			{Name: "notes", Kind: KindText},
		},
		Defaults: map[string]any{
			"buffer_tank_available":        false,
			"hot_water_integrated":         false,
			"three_phase_connection":       false,
			"indoor_unit_space_available":  false,
			"outdoor_unit_space_available": false,
		},
	},
	{
		Name:  PhaseSystemDesign,
		Title: "Anlagenplanung",
		Table: "system_design",
		Columns: []Column{
			{Name: "heat_pump_type", Kind: KindText, Choices: HeatPumpTypes},
			{Name: "heating_capacity_planned", Kind: KindNumber},
			{Name: "cop", Kind: KindNumber},
			{Name: "estimated_spf", Kind: KindNumber},
			{Name: "heat_source", Kind: KindText, Choices: HeatSources},
			{Name: "electricity_tariff", Kind: KindText, Choices: ElectricityTariff},
			{Name: "space_requirements_met", Kind: KindBool},
			{Name: "sound_requirements_met", Kind: KindBool},
			{Name: "permissions_required", Kind: KindText, Choices: PermissionStates},
		},
		Defaults: map[string]any{
			"space_requirements_met": false,
			"sound_requirements_met": false,
		},
	},
	{
		Name:  PhaseImplementation,
		Title: "Umsetzung",
		Table: "implementation",
		Columns: []Column{
			{Name: "construction_progress_documented", Kind: KindBool},
			{Name: "handover_protocol_file", Kind: KindText},
			{Name: "commissioning_protocol_file", Kind: KindText},
			{Name: "regulation_performed", Kind: KindBool},
			{Name: "customer_instruction_done", Kind: KindBool},
			{Name: "monitoring_activated", Kind: KindBool},
			{Name: "heat_meter_data", Kind: KindNumber},
			{Name: "electricity_meter_data", Kind: KindNumber},
		},
		Defaults: map[string]any{
			"construction_progress_documented": false,
			"regulation_performed":             false,
			"customer_instruction_done":        false,
			"monitoring_activated":             false,
		},
	},
	{
		Name:  PhaseOperation,
		Title: "Betrieb",
		Table: "operation",
		Columns: []Column{
			{Name: "measured_spf", Kind: KindNumber},
			{Name: "measured_cop", Kind: KindNumber},
			{Name: "performance_as_expected", Kind: KindBool},
			{Name: "monitoring_active", Kind: KindBool},
			{Name: "monitoring_system", Kind: KindText},
			{Name: "remote_access_configured", Kind: KindBool},
			{Name: "maintenance_schedule_set", Kind: KindBool},
			{Name: "next_maintenance_date", Kind: KindDate},
			{Name: "maintenance_provider", Kind: KindText},
			{Name: "maintenance_contract_signed", Kind: KindBool},
			{Name: "spf_realized_first_year", Kind: KindNumber},
			{Name: "fault_messages", Kind: KindText},
		},
		Defaults: map[string]any{
			"monitoring_active":        false,
			"maintenance_schedule_set": false,
			"remote_access_configured": false,
		},
	},
}

// Phases returns the workflow phases in order.
func Phases() []Phase {
	out := make([]Phase, len(phases))
	copy(out, phases)
	return out
}

func PhaseNames() []string {
	out := make([]string, 0, len(phases))
	for _, p := range phases {
		out = append(out, p.Name)
	}
	return out
}

func PhaseByName(name string) (Phase, bool) {
	for _, p := range phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

func (p Phase) Column(name string) (Column, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// DefaultRecord is the form state shown before anything is stored.
func (p Phase) DefaultRecord() map[string]any {
	out := make(map[string]any, len(p.Defaults))
	for k, v := range p.Defaults {
		out[k] = v
	}
	return out
}

func IsDocumentField(name string) bool {
	return Contains(DocumentFields, name)
}

// Coerce normalises a decoded value for storage. Nil passes through and
// clears the column.
func (c Column) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind {
	case KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected text, got %T", v)
		}
		if s != "" && len(c.Choices) > 0 && !Contains(c.Choices, s) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(c.Choices, ", "))
		}
		return s, nil
	case KindNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected number, got %T", v)
		}
		return f, nil
	case KindInteger:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("expected integer, got %v", v)
		}
		return int64(f), nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case KindDate:
		switch d := v.(type) {
		case time.Time:
			return d.UTC().Format(DateLayout), nil
		case string:
			if d == "" {
				return "", nil
			}
			t, err := parseDate(d)
			if err != nil {
				return nil, err
			}
			return t.Format(DateLayout), nil
		}
		return nil, fmt.Errorf("expected date, got %T", v)
	}
	return nil, fmt.Errorf("unknown column kind %q", c.Kind)
}

// Parse reads a command-line value. An empty string or "null" clears.
func (c Column) Parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	switch c.Kind {
	case KindNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number: %w", err)
		}
		return c.Coerce(f)
	case KindInteger:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("expected integer: %w", err)
		}
		return n, nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected boolean: %w", err)
		}
		return b, nil
	}
	return c.Coerce(raw)
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected date YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
