package scen

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoscen/ecoscen/scen/engine"
)

func newTestInterface(t *testing.T) *ScenarioInterface {
	t.Helper()
	si, err := New(stageTestModel(t), testConfig(), engine.OpenMemorySession)
	require.NoError(t, err)
	t.Cleanup(func() { si.Cleanup() })
	return si
}

func TestNewStagesACopy(t *testing.T) {
	model := stageTestModel(t)
	si, err := New(model, testConfig(), engine.OpenMemorySession)
	require.NoError(t, err)

	staged := filepath.Join(filepath.Dir(model), "model_staged.yaml")
	_, statErr := os.Stat(staged)
	assert.NoError(t, statErr, "working copy exists next to the source")
	assert.Equal(t, staged, si.Session().ModelPath(), "the session never touches the source file")

	require.NoError(t, si.Cleanup())
	_, statErr = os.Stat(staged)
	assert.True(t, os.IsNotExist(statErr), "cleanup removes the working copy")
	_, statErr = os.Stat(model)
	assert.NoError(t, statErr, "the source file survives")

	assert.NoError(t, si.Cleanup(), "cleanup is idempotent")
}

func TestStagingDirOverride(t *testing.T) {
	cfg := testConfig()
	cfg.StagingDir = t.TempDir()
	si, err := New(stageTestModel(t), cfg, engine.OpenMemorySession)
	require.NoError(t, err)
	defer si.Cleanup()

	assert.Equal(t, cfg.StagingDir, filepath.Dir(si.Session().ModelPath()))
}

func TestSetEcosimGroupInfo(t *testing.T) {
	si := newTestInterface(t)

	columns := []string{"Max. rel. P/B", "not_a_field", "switching_power"}
	rows := [][]float64{
		{3.0, 1, 0.5},
		{math.NaN(), 2, 0.6},
		{5.0, 3, math.NaN()},
		{6.0, 4, 0.8},
	}
	require.NoError(t, si.SetEcosimGroupInfo(columns, rows))

	got, err := si.Session().GroupValues(engine.FieldMaxRelPB, nil)
	require.NoError(t, err)
	// NaN cells keep the engine default of 2.
	assert.Equal(t, []float64{3, 2, 5, 6}, got)

	got, err = si.Session().GroupValues(engine.FieldSwitchingPower, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.6, 0, 0.8}, got)

	assert.Error(t, si.SetEcosimGroupInfo(columns, rows[:2]), "row count must match groups")
}

func TestSetEcosimVulnerabilities(t *testing.T) {
	si := newTestInterface(t)
	n := si.Session().NGroups()

	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		for j := range matrix[i] {
			matrix[i][j] = math.NaN()
		}
	}
	matrix[0][1] = 7.5
	require.NoError(t, si.SetEcosimVulnerabilities(matrix))

	v, err := si.Session().Vulnerability(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)
	v, err = si.Session().Vulnerability(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v, "NaN cells keep the default")

	assert.Error(t, si.SetEcosimVulnerabilities(matrix[:1]))
}

func TestFormatParamNames(t *testing.T) {
	si := newTestInterface(t)

	out, err := si.FormatParamNames([]string{"Initial conc. (t/t)", "max_rel_pb", "QBmax/QBio"})
	require.NoError(t, err)
	assert.Equal(t, []string{"init_c", "max_rel_pb", "qbmax_qbio"}, out)

	_, err = si.FormatParamNames([]string{"Not A Field"})
	assert.Error(t, err)
}

func TestLongParameterTable(t *testing.T) {
	si := newTestInterface(t)

	rows := si.LongParameterTable()
	require.Len(t, rows, 5+4*(8+6))
	assert.Equal(t, "Environment", rows[0].Group)
	assert.Equal(t, "Sharks", rows[5].Group)
}

func TestEmptyScenarioTable(t *testing.T) {
	si := newTestInterface(t)

	tbl, err := si.EmptyScenarioTable([]string{"init_c_1_Sharks", "env_decay_r"}, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.NScenarios())
	assert.Equal(t, []string{"init_c_1_Sharks", "env_decay_r"}, tbl.ParamColumns())

	_, err = si.EmptyScenarioTable([]string{"nope"}, 2)
	assert.Error(t, err)
}

func TestRunScenariosSequential(t *testing.T) {
	si := newTestInterface(t)
	require.NoError(t, si.SetSimulationDuration(3))
	require.NoError(t, si.SetConstantParams(map[string]float64{"env_init_c": 1.0}))

	tbl, err := si.EmptyScenarioTable([]string{"init_c_1_Sharks"}, 3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tbl.Set(i, "init_c_1_Sharks", 0.1*float64(i+1)))
	}

	rs, err := si.RunScenarios(context.Background(), tbl, []string{"Concentration", "Biomass"})
	require.NoError(t, err)
	assert.Empty(t, rs.Failed)

	c, err := rs.Variable("Concentration")
	require.NoError(t, err)
	assert.Equal(t, []int{3, si.Session().NGroups() + 1, 36}, c.Shape)

	// Scenario-varying input produces scenario-varying output: Sharks is
	// env_group row 1.
	assert.NotEqual(t, c.At(0, 1, 0), c.At(1, 1, 0))
	assert.NotEqual(t, c.At(1, 1, 0), c.At(2, 1, 0))
}

func TestRunScenariosDefaultsSaveVariables(t *testing.T) {
	si := newTestInterface(t)
	require.NoError(t, si.SetSimulationDuration(2))

	tbl, err := si.EmptyScenarioTable([]string{"env_init_c"}, 2)
	require.NoError(t, err)

	rs, err := si.RunScenarios(context.Background(), tbl, nil)
	require.NoError(t, err)
	assert.Len(t, rs.VariableNames(), 11)
}

func TestRunScenariosRejectsUnknownSaveVariable(t *testing.T) {
	si := newTestInterface(t)
	tbl, err := si.EmptyScenarioTable([]string{"env_init_c"}, 1)
	require.NoError(t, err)

	_, err = si.RunScenarios(context.Background(), tbl, []string{"Bogus"})
	assert.Error(t, err)
}

func TestResetParameters(t *testing.T) {
	si := newTestInterface(t)
	require.NoError(t, si.SetConstantParams(map[string]float64{"env_init_c": 1.0}))
	p, ok := si.comp.Lookup("env_init_c")
	require.True(t, ok)
	require.Equal(t, ModeConstant, p.Mode)

	si.ResetParameters()
	assert.Equal(t, ModeUnset, p.Mode)
}
