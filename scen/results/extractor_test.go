package results

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/internal/testutil"
)

func openRunSession(t *testing.T, run bool) engine.Session {
	t.Helper()
	path := testutil.TempModelFile(t, testutil.FourGroupModelYAML)
	sess, err := engine.OpenMemorySession(path)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	require.NoError(t, sess.NewEcosimScenario("base", ""))
	require.NoError(t, sess.NewEcotracerScenario("base", ""))
	require.NoError(t, sess.SetGroupValues(engine.FieldInitialConc, []float64{0.4}, []int{2}))
	require.NoError(t, sess.SetScalarValue(engine.FieldEnvInitialConc, 1.0))
	if run {
		require.True(t, sess.RunEcotracer())
	}
	return sess
}

func TestRefreshBeforeRunLeavesBufferUntouched(t *testing.T) {
	sess := openRunSession(t, false)
	e, err := NewExtractor(ExtractorTracerConc)
	require.NoError(t, err)

	err = e.Refresh(sess)
	var notReady *engine.StageNotReadyError
	require.ErrorAs(t, err, &notReady)

	_, err = e.Result()
	assert.Error(t, err)
}

func TestTracerExtractorTrimsSpares(t *testing.T) {
	sess := openRunSession(t, true)
	e, err := NewExtractor(ExtractorTracerConc)
	require.NoError(t, err)
	require.NoError(t, e.Refresh(sess))

	got, err := e.Result()
	require.NoError(t, err)

	src, err := sess.TracerResults()
	require.NoError(t, err)

	// Source is (nGroups+2, nMonths+1); the trailing spare row and the
	// time-zero column are dropped.
	nG, nM := sess.NGroups(), sess.NYears()*12
	require.Equal(t, []int{nG + 2, nM + 1}, src.Conc.Shape)
	require.Equal(t, []int{nG + 1, nM}, got.Shape)

	assert.Equal(t, src.Conc.At(0, 1), got.At(0, 0), "environment row survives the trim")
	assert.Equal(t, src.Conc.At(2, 1), got.At(2, 0))
	assert.Equal(t, src.Conc.At(nG, nM), got.At(nG, nM-1))
}

func TestExtractorOwnsItsCopy(t *testing.T) {
	sess := openRunSession(t, true)
	e, err := NewExtractor(ExtractorTracerConc)
	require.NoError(t, err)
	require.NoError(t, e.Refresh(sess))

	first, err := e.Result()
	require.NoError(t, err)
	want := first.At(1, 0)

	// Clobber the engine's live buffer; the extracted copy must not move.
	src, err := sess.TracerResults()
	require.NoError(t, err)
	src.Conc.Set(-999, 1, 1)
	assert.Equal(t, want, first.At(1, 0))

	// Refresh overwrites in place, reusing the same buffer.
	require.NoError(t, e.Refresh(sess))
	again, err := e.Result()
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, -999.0, again.At(1, 0))
}

func TestPackedResultSelectsStatistic(t *testing.T) {
	sess := openRunSession(t, true)
	e, err := NewExtractor(ExtractorEcosimGroupStats)
	require.NoError(t, err)
	require.NoError(t, e.Refresh(sess))

	biomass, err := e.PackedResult(engine.PackedBiomass)
	require.NoError(t, err)
	nG, nM := sess.NGroups(), sess.NYears()*12
	require.Equal(t, []int{nG, nM}, biomass.Shape)

	d, err := sess.EcosimResults()
	require.NoError(t, err)
	assert.Equal(t, d.GroupStats.At(engine.PackedBiomass, 1, 5), biomass.At(1, 5))

	tl, err := e.PackedResult(engine.PackedTL)
	require.NoError(t, err)
	assert.Equal(t, d.GroupStats.At(engine.PackedTL, 0, 0), tl.At(0, 0))
}
