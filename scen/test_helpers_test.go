package scen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/internal/testutil"
)

func testConfig() Config {
	return Config{Workers: 2, CleanupRetries: 2, CleanupBackoff: 0}
}

func stageTestModel(t *testing.T) string {
	t.Helper()
	return testutil.TempModelFile(t, testutil.FourGroupModelYAML)
}

// newTestSession opens a reference-engine session with both scenarios
// loaded, ready for parameter application.
func newTestSession(t *testing.T) engine.Session {
	t.Helper()
	sess, err := engine.OpenMemorySession(stageTestModel(t))
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	require.NoError(t, sess.NewEcosimScenario("base", ""))
	require.NoError(t, sess.NewEcotracerScenario("base", ""))
	return sess
}

type groupCall struct {
	field  engine.GroupField
	values []float64
	groups []int
}

type scalarCall struct {
	field engine.ScalarField
	value float64
}

type vulnCall struct {
	prey, pred int
	value      float64
}

// recordingSession wraps a real session and logs every parameter write, so
// tests can assert on batching without depending on engine internals.
type recordingSession struct {
	engine.Session
	groupCalls  []groupCall
	scalarCalls []scalarCall
	vulnCalls   []vulnCall
}

func newRecordingSession(t *testing.T) *recordingSession {
	return &recordingSession{Session: newTestSession(t)}
}

func (r *recordingSession) SetGroupValues(f engine.GroupField, values []float64, groups []int) error {
	vals := append([]float64(nil), values...)
	grps := append([]int(nil), groups...)
	if err := r.Session.SetGroupValues(f, values, groups); err != nil {
		return err
	}
	r.groupCalls = append(r.groupCalls, groupCall{field: f, values: vals, groups: grps})
	return nil
}

func (r *recordingSession) SetScalarValue(f engine.ScalarField, value float64) error {
	if err := r.Session.SetScalarValue(f, value); err != nil {
		return err
	}
	r.scalarCalls = append(r.scalarCalls, scalarCall{field: f, value: value})
	return nil
}

func (r *recordingSession) SetVulnerability(prey, pred int, value float64) error {
	if err := r.Session.SetVulnerability(prey, pred, value); err != nil {
		return err
	}
	r.vulnCalls = append(r.vulnCalls, vulnCall{prey: prey, pred: pred, value: value})
	return nil
}

// flakySession fails any run where group 1's initial concentration is
// negative, standing in for an engine that rejects a scenario.
type flakySession struct {
	engine.Session
}

func (f *flakySession) poisoned() bool {
	v, err := f.Session.GroupValues(engine.FieldInitialConc, []int{1})
	return err == nil && v[0] < 0
}

func (f *flakySession) RunEcosim() bool {
	if f.poisoned() {
		return false
	}
	return f.Session.RunEcosim()
}

func (f *flakySession) RunEcotracer() bool {
	if f.poisoned() {
		return false
	}
	return f.Session.RunEcotracer()
}

func flakyFactory(modelPath string) (engine.Session, error) {
	sess, err := engine.OpenMemorySession(modelPath)
	if err != nil {
		return nil, err
	}
	return &flakySession{Session: sess}, nil
}
