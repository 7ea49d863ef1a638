package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel() *Model {
	return &Model{
		Name:      "test",
		FirstYear: 2000,
		Years:     5,
		Groups: []GroupSpec{
			{Name: "Fish", Type: GroupConsumer, Biomass: 10, PB: 1.5, QB: 8},
			{Name: "Algae", Type: GroupProducer, Biomass: 30, PB: 20},
			{Name: "Detritus", Type: GroupDetritus, Biomass: 50},
		},
		Fleets: []FleetSpec{
			{Name: "Boats", CatchRates: map[string]float64{"Fish": 0.2}},
		},
	}
}

func TestModelRoundTrip(t *testing.T) {
	m := validModel()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, SaveModel(m, path))

	loaded, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, m, loaded)
}

func TestLoadModelRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	bad := "name: x\nyears: 5\nfirst_year: 2000\nbogus_key: 1\ngroups:\n  - name: A\n    type: producer\n    biomass: 1\n    pb: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))

	_, err := LoadModel(path)
	assert.Error(t, err)
}

func TestModelValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Model)
	}{
		{"missing name", func(m *Model) { m.Name = "" }},
		{"zero years", func(m *Model) { m.Years = 0 }},
		{"no groups", func(m *Model) { m.Groups = nil }},
		{"duplicate group", func(m *Model) { m.Groups[1].Name = "Fish" }},
		{"bad type", func(m *Model) { m.Groups[0].Type = "plant" }},
		{"zero biomass", func(m *Model) { m.Groups[0].Biomass = 0 }},
		{"consumer without qb", func(m *Model) { m.Groups[0].QB = 0 }},
		{"producer without pb", func(m *Model) { m.Groups[1].PB = 0 }},
		{"catch on unknown group", func(m *Model) { m.Fleets[0].CatchRates = map[string]float64{"Whale": 1} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validModel()
			tc.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}
