package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, SaveModel(validModel(), path))
	return path
}

func openSession(t *testing.T) Session {
	t.Helper()
	sess, err := OpenMemorySession(stageModel(t))
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestOpenMemorySessionMetadata(t *testing.T) {
	sess := openSession(t)

	assert.Equal(t, 3, sess.NGroups())
	assert.Equal(t, 1, sess.NConsumers())
	assert.Equal(t, 1, sess.NProducers())
	assert.Equal(t, []string{"Fish", "Algae", "Detritus"}, sess.GroupNames())
	assert.Equal(t, []string{"Boats"}, sess.FleetNames())
	assert.Equal(t, 2000, sess.FirstYear())
	assert.Equal(t, 5, sess.NYears())
	assert.True(t, sess.State().ModelLoaded)

	idx, err := sess.GroupIndices([]string{"Detritus", "Fish"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, idx)

	_, err = sess.GroupIndices([]string{"Whale"})
	var lookupErr *LookupError
	assert.ErrorAs(t, err, &lookupErr)
}

func TestGroupValuesRequireScenario(t *testing.T) {
	sess := openSession(t)

	err := sess.SetGroupValues(FieldMaxRelPB, []float64{1}, []int{1})
	var noScen *NoScenarioError
	require.ErrorAs(t, err, &noScen)
	assert.Equal(t, StageEcosim, noScen.Stage)

	err = sess.SetGroupValues(FieldInitialConc, []float64{1}, []int{1})
	require.ErrorAs(t, err, &noScen)
	assert.Equal(t, StageEcotracer, noScen.Stage)
}

func TestScenarioStateAndDefaults(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcosimScenario("base", ""))
	assert.True(t, sess.State().EcosimScenarioLoaded)

	// Scenario creation seeds engine defaults.
	vals, err := sess.GroupValues(FieldMaxRelFeedingTime, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, vals)

	v, err := sess.Vulnerability(1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	// Batched write lands on the addressed groups only.
	require.NoError(t, sess.SetGroupValues(FieldMaxRelPB, []float64{3.5, 4.5}, []int{1, 3}))
	vals, err = sess.GroupValues(FieldMaxRelPB, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, 2, 4.5}, vals)

	// Length mismatch and bad indices are rejected before any write.
	assert.Error(t, sess.SetGroupValues(FieldMaxRelPB, []float64{1}, []int{1, 2}))
	var idxErr *IndexError
	assert.ErrorAs(t, sess.SetGroupValues(FieldMaxRelPB, []float64{1}, []int{0}), &idxErr)
	assert.ErrorAs(t, sess.SetGroupValues(FieldMaxRelPB, []float64{1}, []int{4}), &idxErr)
}

func TestScenariosAreIndependent(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcosimScenario("a", ""))
	require.NoError(t, sess.SetGroupValues(FieldSwitchingPower, []float64{1}, []int{1}))

	require.NoError(t, sess.NewEcosimScenario("b", ""))
	vals, err := sess.GroupValues(FieldSwitchingPower, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, vals, "new scenario must not inherit writes")

	require.NoError(t, sess.LoadEcosimScenario("a"))
	vals, err = sess.GroupValues(FieldSwitchingPower, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vals)

	require.NoError(t, sess.RemoveEcosimScenario("a"))
	assert.False(t, sess.State().EcosimScenarioLoaded)
	assert.Error(t, sess.LoadEcosimScenario("a"))
}

func TestRemoveEcotracerScenario(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcotracerScenario("t", ""))
	assert.True(t, sess.State().EcotracerScenarioLoaded)

	require.NoError(t, sess.RemoveEcotracerScenario("t"))
	assert.False(t, sess.State().EcotracerScenarioLoaded)
	assert.Error(t, sess.LoadEcotracerScenario("t"))

	var lookupErr *LookupError
	assert.ErrorAs(t, sess.RemoveEcotracerScenario("t"), &lookupErr)
}

func TestResultsGatedOnRun(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcosimScenario("base", ""))

	_, err := sess.EcosimResults()
	var notReady *StageNotReadyError
	require.ErrorAs(t, err, &notReady)
	assert.Equal(t, StageEcosim, notReady.Stage)

	require.True(t, sess.RunEcosim())
	assert.True(t, sess.State().EcopathRan)
	assert.True(t, sess.State().EcosimRan)

	d, err := sess.EcosimResults()
	require.NoError(t, err)
	assert.Equal(t, []int{NumPackedStats, 3, 60}, d.GroupStats.Shape)
	assert.Equal(t, []int{1, 3, 60}, d.Catch.Shape)
	assert.Equal(t, []int{60}, d.TLC.Shape)

	_, err = sess.TracerResults()
	assert.ErrorAs(t, err, &notReady)
}

func TestRunEcotracerDrivesFullChain(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcosimScenario("base", ""))
	require.NoError(t, sess.NewEcotracerScenario("base", ""))
	require.NoError(t, sess.SetGroupValues(FieldInitialConc, []float64{0.2}, []int{1}))
	require.NoError(t, sess.SetScalarValue(FieldEnvInitialConc, 1.0))

	require.True(t, sess.RunEcotracer())
	st := sess.State()
	assert.True(t, st.EcopathRan)
	assert.True(t, st.EcosimRan)
	assert.True(t, st.EcotracerRan)

	d, err := sess.TracerResults()
	require.NoError(t, err)
	// nGroups+2 rows (environment, groups, spare), nMonths+1 columns.
	assert.Equal(t, []int{5, 61}, d.Conc.Shape)
	assert.Equal(t, []int{5, 61}, d.ConcBiomass.Shape)
}

func TestRunFailsWithoutScenario(t *testing.T) {
	sess := openSession(t)
	assert.False(t, sess.RunEcosim())
	assert.False(t, sess.RunEcotracer())

	require.NoError(t, sess.NewEcosimScenario("base", ""))
	assert.False(t, sess.RunEcotracer(), "tracer needs its own scenario")

	require.NoError(t, sess.Close())
	assert.False(t, sess.RunEcosim())
}

func TestSetNYearsResizesResults(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcosimScenario("base", ""))
	require.True(t, sess.RunEcosim())

	require.NoError(t, sess.SetNYears(2))
	assert.False(t, sess.State().EcosimRan)

	require.True(t, sess.RunEcosim())
	d, err := sess.EcosimResults()
	require.NoError(t, err)
	assert.Equal(t, []int{NumPackedStats, 3, 24}, d.GroupStats.Shape)

	assert.Error(t, sess.SetNYears(0))
}

func TestRunsAreDeterministic(t *testing.T) {
	run := func() []float64 {
		sess := openSession(t)
		require.NoError(t, sess.NewEcosimScenario("base", ""))
		require.NoError(t, sess.NewEcotracerScenario("base", ""))
		require.NoError(t, sess.SetGroupValues(FieldMaxRelPB, []float64{3}, []int{1}))
		require.NoError(t, sess.SetGroupValues(FieldDirectAbsRate, []float64{0.1, 0.2}, []int{1, 2}))
		require.NoError(t, sess.SetScalarValue(FieldEnvInitialConc, 0.5))
		require.True(t, sess.RunEcotracer())
		d, err := sess.TracerResults()
		require.NoError(t, err)
		out := make([]float64, len(d.Conc.Data))
		copy(out, d.Conc.Data)
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSettingsChangeResults(t *testing.T) {
	run := func(maxPB float64) float64 {
		sess := openSession(t)
		require.NoError(t, sess.NewEcosimScenario("base", ""))
		require.NoError(t, sess.SetGroupValues(FieldMaxRelPB, []float64{maxPB}, []int{1}))
		require.True(t, sess.RunEcosim())
		d, err := sess.EcosimResults()
		require.NoError(t, err)
		return d.GroupStats.At(PackedBiomass, 0, 59)
	}
	assert.NotEqual(t, run(2), run(6), "parameter writes must influence the trajectory")
}

func TestForcingFunctions(t *testing.T) {
	sess := openSession(t)
	require.NoError(t, sess.NewEcotracerScenario("base", ""))

	idx, err := sess.AddForcingFunction("pulse", []float64{1, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	require.NoError(t, sess.SetScalarValue(FieldEnvInflowForcingIdx, float64(idx)))

	var idxErr *IndexError
	assert.ErrorAs(t, sess.SetScalarValue(FieldEnvInflowForcingIdx, 9), &idxErr)
	_, err = sess.AddForcingFunction("", []float64{1})
	assert.Error(t, err)
}
