package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"heatline/internal/domain"
)

// Config models heatline.yml.
type Config struct {
	Forms   map[string]Form `yaml:"forms" json:"forms"`
	Storage Storage         `yaml:"storage" json:"storage"`
	Blobs   Blobs           `yaml:"blobs" json:"blobs"`
	Server  Server          `yaml:"server" json:"server"`
}

type Form struct {
	Fields []Field `yaml:"fields" json:"fields"`
}

// Field is one tracked form field. Rule is an optional CEL expression over
// `value` that decides on its own whether the field counts as filled.
type Field struct {
	Name     string `yaml:"name" json:"name"`
	Required bool   `yaml:"required,omitempty" json:"required"`
	Rule     string `yaml:"rule,omitempty" json:"rule,omitempty"`
}

type Storage struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn,omitempty" json:"-"`
}

type Blobs struct {
	Backend       string `yaml:"backend" json:"backend"`
	Dir           string `yaml:"dir,omitempty" json:"dir,omitempty"`
	Bucket        string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region        string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint      string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Prefix        string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	PublicBaseURL string `yaml:"public_base_url,omitempty" json:"public_base_url,omitempty"`
}

type Server struct {
	Addr     string `yaml:"addr" json:"addr"`
	BasePath string `yaml:"base_path" json:"base_path"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for phaseName, form := range c.Forms {
		phase, ok := domain.PhaseByName(phaseName)
		if !ok {
			return fmt.Errorf("forms.%s: unknown phase (expected one of %s)", phaseName, strings.Join(domain.PhaseNames(), ", "))
		}
		seen := map[string]struct{}{}
		for i, f := range form.Fields {
			if f.Name == "" {
				return fmt.Errorf("forms.%s.fields[%d] has empty name", phaseName, i)
			}
			if _, dup := seen[f.Name]; dup {
				return fmt.Errorf("forms.%s field %s is declared twice", phaseName, f.Name)
			}
			seen[f.Name] = struct{}{}
			if _, ok := phase.Column(f.Name); !ok {
				return fmt.Errorf("forms.%s field %s is not a column of %s", phaseName, f.Name, phase.Table)
			}
			if f.Rule != "" {
				if _, err := CompileRule(f.Rule); err != nil {
					return fmt.Errorf("forms.%s field %s: %w", phaseName, f.Name, err)
				}
			}
		}
	}
	switch c.Storage.Driver {
	case "", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	switch c.Blobs.Backend {
	case "", "file":
	case "s3":
		if c.Blobs.Bucket == "" {
			return fmt.Errorf("blobs.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("blobs.backend must be file or s3, got %q", c.Blobs.Backend)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "heatline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections the
// document leaves out keep their defaults; a phase listed under forms
// replaces that phase's default field list.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `forms:
  technical_data:
    fields:
      - name: heating_load_calculated
      - name: heat_demand_estimated
      - name: number_of_units
      - name: heating_surfaces
      - name: grid_connection_capacity
      - name: drill_access

  system_design:
    fields:
      - name: heat_pump_type
        required: true
      - name: heating_capacity_planned
        required: true
      - name: cop
      - name: estimated_spf
      - name: heat_source
        required: true
      - name: electricity_tariff
      - name: space_requirements_met
      - name: sound_requirements_met
      - name: permissions_required

  implementation:
    fields:
      - name: construction_progress_documented
      - name: handover_protocol_file
      - name: commissioning_protocol_file
      - name: regulation_performed
      - name: customer_instruction_done
      - name: monitoring_activated
      - name: heat_meter_data
      - name: electricity_meter_data

  operation:
    fields:
      - name: measured_spf
      - name: measured_cop
      - name: performance_as_expected
      - name: monitoring_active
      - name: monitoring_system
      - name: remote_access_configured
      - name: maintenance_schedule_set
      - name: next_maintenance_date
      - name: maintenance_provider

storage:
  driver: sqlite

blobs:
  backend: file
  bucket: project_documents

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
