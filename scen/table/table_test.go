package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoscen/ecoscen/scen/engine"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCSV(t, "scenario,init_c_1_Fish,env_decay_r\n1,0.1,0.5\n2,0.2,0.5\n5,0.3,0.9\n")

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.NScenarios())
	assert.Equal(t, []string{"scenario", "init_c_1_Fish", "env_decay_r"}, tbl.Columns())
	assert.Equal(t, []string{"init_c_1_Fish", "env_decay_r"}, tbl.ParamColumns())
	assert.Equal(t, []int{1, 2, 5}, tbl.ScenarioIDs())
	assert.Equal(t, []float64{2, 0.2, 0.5}, tbl.Row(1))
}

func TestLoadRejectsBadTables(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing scenario column", "id,init_c_1_Fish\n1,0.1\n"},
		{"no rows", "scenario,init_c_1_Fish\n"},
		{"non-numeric cell", "scenario,init_c_1_Fish\n1,abc\n"},
		{"non-integer id", "scenario,init_c_1_Fish\n1.5,0.1\n"},
		{"descending ids", "scenario,init_c_1_Fish\n2,0.1\n1,0.2\n"},
		{"duplicate ids", "scenario,init_c_1_Fish\n1,0.1\n1,0.2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeCSV(t, tc.content))
			require.Error(t, err)
			var cfgErr *engine.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoadRejectsRaggedRows(t *testing.T) {
	// csv.Reader reports inconsistent field counts itself.
	_, err := Load(writeCSV(t, "scenario,a,b\n1,0.1\n"))
	assert.Error(t, err)
}

func TestEmptyAndSet(t *testing.T) {
	tbl, err := Empty([]string{"init_c_1_Fish"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, tbl.ScenarioIDs())
	assert.Equal(t, []float64{2, 0}, tbl.Row(1))

	require.NoError(t, tbl.Set(1, "init_c_1_Fish", 0.7))
	assert.Equal(t, []float64{2, 0.7}, tbl.Row(1))

	err = tbl.Set(1, "nope", 1)
	var lookupErr *engine.LookupError
	assert.ErrorAs(t, err, &lookupErr)

	_, err = Empty([]string{"x"}, 0)
	assert.Error(t, err)
}
