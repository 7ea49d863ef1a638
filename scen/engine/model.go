package engine

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Group types recognized in model descriptors.
const (
	GroupConsumer = "consumer"
	GroupProducer = "producer"
	GroupDetritus = "detritus"
)

// GroupSpec describes one functional group of the baseline (mass-balance)
// model.
type GroupSpec struct {
	Name    string  `yaml:"name"`
	Type    string  `yaml:"type"`
	Biomass float64 `yaml:"biomass"`
	PB      float64 `yaml:"pb"`
	QB      float64 `yaml:"qb,omitempty"`
}

// FleetSpec describes one fishing fleet and its baseline catch rates keyed
// by functional group name. Groups absent from the map are not caught.
type FleetSpec struct {
	Name       string             `yaml:"name"`
	CatchRates map[string]float64 `yaml:"catch_rates,omitempty"`
}

// Model is the on-disk model descriptor loaded by the in-memory reference
// engine. Loaded from YAML via LoadModel(path).
type Model struct {
	Name      string      `yaml:"name"`
	Country   string      `yaml:"country,omitempty"`
	FirstYear int         `yaml:"first_year"`
	Years     int         `yaml:"years"`
	Groups    []GroupSpec `yaml:"groups"`
	Fleets    []FleetSpec `yaml:"fleets,omitempty"`
}

// LoadModel reads and parses a YAML model descriptor. Uses strict parsing:
// unrecognized keys (typos) are rejected.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	var m Model
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, fmt.Errorf("parsing model file: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the descriptor defines a loadable model.
func (m *Model) Validate() error {
	if m.Name == "" {
		return Configf("model name is required")
	}
	if m.Years < 1 {
		return Configf("model years must be >= 1, got %d", m.Years)
	}
	if len(m.Groups) == 0 {
		return Configf("model must define at least one functional group")
	}
	seen := make(map[string]bool, len(m.Groups))
	for i, g := range m.Groups {
		prefix := fmt.Sprintf("group[%d]", i)
		if g.Name == "" {
			return Configf("%s: name is required", prefix)
		}
		if seen[g.Name] {
			return Configf("%s: duplicate group name %q", prefix, g.Name)
		}
		seen[g.Name] = true
		switch g.Type {
		case GroupConsumer, GroupProducer, GroupDetritus:
		default:
			return Configf("%s: unknown type %q; valid: consumer, producer, detritus", prefix, g.Type)
		}
		if g.Biomass <= 0 {
			return Configf("%s: biomass must be positive, got %f", prefix, g.Biomass)
		}
		if g.Type != GroupDetritus && g.PB <= 0 {
			return Configf("%s: pb must be positive for living groups, got %f", prefix, g.PB)
		}
		if g.Type == GroupConsumer && g.QB <= 0 {
			return Configf("%s: qb must be positive for consumers, got %f", prefix, g.QB)
		}
	}
	for i, f := range m.Fleets {
		prefix := fmt.Sprintf("fleet[%d]", i)
		if f.Name == "" {
			return Configf("%s: name is required", prefix)
		}
		for gname := range f.CatchRates {
			if !seen[gname] {
				return Configf("%s: catch rate references unknown group %q", prefix, gname)
			}
		}
	}
	return nil
}

// SaveModel writes the descriptor as YAML. Used by tests and tooling to
// stage model fixtures.
func SaveModel(m *Model, path string) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding model file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing model file: %w", err)
	}
	return nil
}
