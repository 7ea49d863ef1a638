package scen

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/results"
	"github.com/ecoscen/ecoscen/scen/table"
)

// Default scenario names attached to the working session and recreated by
// each worker.
const (
	defaultEcosimScenario    = "ecoscen_ecosim"
	defaultEcotracerScenario = "ecoscen_ecotracer"
)

// ScenarioInterface is the user-facing facade: one staged model copy, one
// bootstrap session for configuration and sequential runs, and a compositor
// holding the parameter bindings a batch will apply.
//
// The source model file is never touched; all engine work happens on copies.
type ScenarioInterface struct {
	cfg     Config
	factory engine.SessionFactory

	sourcePath string
	stagedPath string

	sess   engine.Session
	comp   *Compositor
	nYears int
	closed bool
}

// New stages a working copy of the model file, opens a session on it, and
// prepares empty Ecosim and Ecotracer scenarios for configuration.
func New(modelPath string, cfg Config, factory engine.SessionFactory) (*ScenarioInterface, error) {
	staged := stagedPath(modelPath, cfg.StagingDir)
	if err := copyFile(modelPath, staged); err != nil {
		return nil, err
	}

	sess, err := factory(staged)
	if err != nil {
		removeStagedQuiet(staged, cfg)
		return nil, fmt.Errorf("opening session on staged model: %w", err)
	}
	if err := sess.NewEcosimScenario(defaultEcosimScenario, "batch working scenario"); err != nil {
		sess.Close()
		removeStagedQuiet(staged, cfg)
		return nil, err
	}
	if err := sess.NewEcotracerScenario(defaultEcotracerScenario, "batch working scenario"); err != nil {
		sess.Close()
		removeStagedQuiet(staged, cfg)
		return nil, err
	}

	si := &ScenarioInterface{
		cfg:        cfg,
		factory:    factory,
		sourcePath: modelPath,
		stagedPath: staged,
		sess:       sess,
		comp:       NewCompositor(sess.GroupNames()),
		nYears:     sess.NYears(),
	}
	logrus.Infof("staged model %s with %d groups, %d fleets", filepath.Base(modelPath),
		sess.NGroups(), len(sess.FleetNames()))
	return si, nil
}

func stagedPath(modelPath, stagingDir string) string {
	base := filepath.Base(modelPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := stem + "_staged" + ext
	if stagingDir != "" {
		return filepath.Join(stagingDir, name)
	}
	return filepath.Join(filepath.Dir(modelPath), name)
}

func removeStagedQuiet(path string, cfg Config) {
	if err := removeWithRetry(path, cfg.CleanupRetries, cfg.CleanupBackoff); err != nil {
		logrus.Warn(err)
	}
}

// Session exposes the bootstrap session for inspection.
func (si *ScenarioInterface) Session() engine.Session { return si.sess }

// GroupNames lists the model's functional groups in engine order.
func (si *ScenarioInterface) GroupNames() []string { return si.sess.GroupNames() }

// SetSimulationDuration sets the horizon, in years, for all runs.
func (si *ScenarioInterface) SetSimulationDuration(years int) error {
	if err := si.sess.SetNYears(years); err != nil {
		return err
	}
	si.nYears = years
	return nil
}

// SetConstantParams binds fixed values by parameter name, applied once per
// session before scenarios run. Unknown names are rejected as a group.
func (si *ScenarioInterface) SetConstantParams(values map[string]float64) error {
	return si.comp.SetConstants(values)
}

// AvailableParameterNames lists settable parameter names, filtered.
func (si *ScenarioInterface) AvailableParameterNames(filter ParameterFilter) ([]string, error) {
	return si.comp.AvailableParameterNames(filter)
}

// LongParameterTable lists the full parameter catalog in long form, one
// row per (Group, Parameter) pair with the environment scalars under the
// "Environment" group. See Compositor.LongParameterRows.
func (si *ScenarioInterface) LongParameterTable() []LongParameterRow {
	return si.comp.LongParameterRows()
}

// FormatParamNames converts engine display names for per-group fields into
// the prefixes used in parameter names.
func (si *ScenarioInterface) FormatParamNames(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		abbrev, ok := AbbrevFieldName(n)
		if !ok {
			return nil, &engine.LookupError{Kind: "parameter field", Name: n}
		}
		out[i] = abbrev
	}
	return out, nil
}

// SetEcosimGroupInfo writes a column-per-field block of per-group values
// into the session. Columns are engine display names or prefixes; row i
// holds group i+1. Unsupported columns are skipped with a warning; NaN
// cells leave the engine default for that group.
func (si *ScenarioInterface) SetEcosimGroupInfo(columns []string, rows [][]float64) error {
	n := si.sess.NGroups()
	if len(rows) != n {
		return engine.Configf("group info has %d rows, model has %d groups", len(rows), n)
	}
	for _, r := range rows {
		if len(r) != len(columns) {
			return engine.Configf("group info row has %d cells, expected %d", len(r), len(columns))
		}
	}
	for j, col := range columns {
		field, ok := lookupGroupField(col)
		if !ok {
			logrus.Warnf("group info column %q is not a settable field; skipping", col)
			continue
		}
		var groups []int
		var values []float64
		for i := 0; i < n; i++ {
			if math.IsNaN(rows[i][j]) {
				continue
			}
			groups = append(groups, i+1)
			values = append(values, rows[i][j])
		}
		if len(groups) == 0 {
			continue
		}
		if err := si.sess.SetGroupValues(field, values, groups); err != nil {
			return fmt.Errorf("setting group info column %q: %w", col, err)
		}
	}
	return nil
}

func lookupGroupField(name string) (engine.GroupField, bool) {
	abbrev, ok := AbbrevFieldName(name)
	if !ok {
		return 0, false
	}
	for f := engine.GroupField(0); f < engine.NumGroupFields; f++ {
		if f.String() == abbrev {
			return f, true
		}
	}
	return 0, false
}

// SetEcosimVulnerabilities writes a full prey-by-predator vulnerability
// matrix. NaN cells leave the engine default.
func (si *ScenarioInterface) SetEcosimVulnerabilities(matrix [][]float64) error {
	n := si.sess.NGroups()
	if len(matrix) != n {
		return engine.Configf("vulnerability matrix has %d rows, model has %d groups", len(matrix), n)
	}
	for prey, row := range matrix {
		if len(row) != n {
			return engine.Configf("vulnerability row %d has %d cells, model has %d groups", prey+1, len(row), n)
		}
		for pred, v := range row {
			if math.IsNaN(v) {
				continue
			}
			if err := si.sess.SetVulnerability(prey+1, pred+1, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddForcingFunction registers a named forcing series and returns its
// 1-based index, usable as the env_inflow_forcing_idx parameter value.
func (si *ScenarioInterface) AddForcingFunction(name string, values []float64) (int, error) {
	return si.sess.AddForcingFunction(name, values)
}

// EmptyScenarioTable builds a zero-filled table with one column per named
// parameter and n scenario rows, for the caller to fill in. Names must be
// recognized.
func (si *ScenarioInterface) EmptyScenarioTable(paramNames []string, n int) (*table.Table, error) {
	var unknown []string
	for _, name := range paramNames {
		if _, ok := si.comp.Lookup(name); !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, engine.Configf("unrecognized parameter(s): %s", strings.Join(unknown, ", "))
	}
	return table.Empty(paramNames, n)
}

// ResetParameters drops all constant and variable bindings.
func (si *ScenarioInterface) ResetParameters() {
	si.comp.ResetBindings()
}

// prepare binds the table's parameter columns as variable parameters and
// resolves the variable set to collect.
func (si *ScenarioInterface) prepare(tbl *table.Table, saveVars []string) ([]string, error) {
	if si.closed {
		return nil, engine.Configf("interface already cleaned up")
	}
	si.comp.resetVariables()
	if err := si.comp.SetVariables(tbl.ParamColumns()); err != nil {
		return nil, err
	}
	if err := si.comp.ValidateTable(tbl); err != nil {
		return nil, err
	}
	if len(saveVars) == 0 {
		saveVars = results.DefaultSaveVariables
	}
	for _, name := range saveVars {
		if _, ok := results.LookupVariable(name); !ok {
			return nil, &engine.LookupError{Kind: "result variable", Name: name}
		}
	}
	return saveVars, nil
}

// RunScenarios executes the table sequentially on the bootstrap session and
// returns the collected results. Failed engine runs leave NaN windows and
// are listed in the result set.
func (si *ScenarioInterface) RunScenarios(ctx context.Context, tbl *table.Table, saveVars []string) (*results.ResultSet, error) {
	names, err := si.prepare(tbl, saveVars)
	if err != nil {
		return nil, err
	}
	if err := si.comp.ApplyConstants(si.sess); err != nil {
		return nil, err
	}
	si.comp.WarnUnset()

	mgr, err := results.NewManager(si.sess, names, tbl)
	if err != nil {
		return nil, err
	}
	runner := NewRunner(si.sess, si.comp, tbl, mgr, names)
	if _, err := runner.RunRange(ctx, 0, tbl.NScenarios()-1); err != nil {
		return nil, err
	}
	return mgr.ToResultSet(), nil
}

// RunScenariosParallel executes the table on a worker pool, each worker
// owning a private model copy and session, scattering result windows into
// shared stores by scenario index.
func (si *ScenarioInterface) RunScenariosParallel(ctx context.Context, tbl *table.Table, saveVars []string, workers int) (*results.ResultSet, error) {
	names, err := si.prepare(tbl, saveVars)
	if err != nil {
		return nil, err
	}
	si.comp.WarnUnset()
	if workers <= 0 {
		workers = si.cfg.EffectiveWorkers()
	}

	dims := results.StoreDims{
		NScenarios: tbl.NScenarios(),
		NGroups:    si.sess.NGroups(),
		NFleets:    len(si.sess.FleetNames()),
		NMonths:    si.nYears * 12,
	}
	stores, err := results.NewStores(names, dims)
	if err != nil {
		return nil, err
	}

	recipe := Recipe{
		SourceModelPath:   si.stagedPath,
		EcosimScenario:    defaultEcosimScenario,
		EcotracerScenario: defaultEcotracerScenario,
		NYears:            si.nYears,
		Factory:           si.factory,
		Compositor:        si.comp,
		Variables:         names,
		Table:             tbl,
		Stores:            stores,
		CleanupRetries:    si.cfg.CleanupRetries,
		CleanupBackoff:    si.cfg.CleanupBackoff,
	}
	pool, err := NewPool(recipe, workers)
	if err != nil {
		return nil, err
	}
	failed, err := pool.Run(ctx)
	if err != nil {
		return nil, err
	}

	meta := results.Meta{
		RunDate:    time.Now(),
		FirstYear:  si.sess.FirstYear(),
		Country:    si.sess.Country(),
		GroupNames: si.sess.GroupNames(),
		FleetNames: si.sess.FleetNames(),
	}
	return results.NewResultSet(meta, tbl, names, stores, failed), nil
}

// Cleanup closes the session and removes the staged model copy. Safe to
// call more than once.
func (si *ScenarioInterface) Cleanup() error {
	if si.closed {
		return nil
	}
	si.closed = true
	var firstErr error
	if err := si.sess.Close(); err != nil {
		firstErr = err
	}
	if err := removeWithRetry(si.stagedPath, si.cfg.CleanupRetries, si.cfg.CleanupBackoff); err != nil {
		if firstErr == nil {
			firstErr = err
		} else {
			logrus.Warn(err)
		}
	}
	sweepWorkerCopies(si.stagedPath)
	return firstErr
}
