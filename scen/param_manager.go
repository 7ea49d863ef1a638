package scen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/table"
)

// VulnPrefix starts every vulnerability parameter name.
const VulnPrefix = "vuln"

var ecosimGroupFields = []engine.GroupField{
	engine.FieldDensityDepCatchability,
	engine.FieldFeedingTimeAdjRate,
	engine.FieldMaxRelFeedingTime,
	engine.FieldMaxRelPB,
	engine.FieldPredEffectFeedingTime,
	engine.FieldOtherMortFeedingTime,
	engine.FieldQBMaxQBio,
	engine.FieldSwitchingPower,
}

var ecotracerGroupFields = []engine.GroupField{
	engine.FieldInitialConc,
	engine.FieldImmigConc,
	engine.FieldDirectAbsRate,
	engine.FieldPhysicalDecayRate,
	engine.FieldMetabolicDecayRate,
	engine.FieldExcretionRate,
}

var ecotracerScalarFields = []engine.ScalarField{
	engine.FieldEnvInitialConc,
	engine.FieldEnvBaseInflowRate,
	engine.FieldEnvDecayRate,
	engine.FieldEnvVolumeExchangeLoss,
	engine.FieldEnvInflowForcingIdx,
}

// fullGroupFieldNames maps the engine's display names for per-group fields
// to their catalog prefixes, so callers can address parameters by either.
var fullGroupFieldNames = map[string]engine.GroupField{
	"Density-dep. catchability":        engine.FieldDensityDepCatchability,
	"Feeding time adjust rate":         engine.FieldFeedingTimeAdjRate,
	"Max. rel. feeding time":           engine.FieldMaxRelFeedingTime,
	"Max. rel. P/B":                    engine.FieldMaxRelPB,
	"Pred. effect feeding time":        engine.FieldPredEffectFeedingTime,
	"Other mort. feeding time":         engine.FieldOtherMortFeedingTime,
	"QBmax/QBio":                       engine.FieldQBMaxQBio,
	"Switching power":                  engine.FieldSwitchingPower,
	"Initial conc. (t/t)":              engine.FieldInitialConc,
	"Conc. of immig. biomass (t/t)":    engine.FieldImmigConc,
	"Direct absorption rate":           engine.FieldDirectAbsRate,
	"Physical decay rate (/year)":      engine.FieldPhysicalDecayRate,
	"Metabolic decay rate (/year)":     engine.FieldMetabolicDecayRate,
	"Excretion rate (proportion of C)": engine.FieldExcretionRate,
}

// AbbrevFieldName resolves an engine display name for a per-group field to
// its catalog prefix. Names already in prefix form pass through unchanged.
func AbbrevFieldName(name string) (string, bool) {
	if f, ok := fullGroupFieldNames[name]; ok {
		return f.String(), true
	}
	for f := engine.GroupField(0); f < engine.NumGroupFields; f++ {
		if f.String() == name {
			return name, true
		}
	}
	return "", false
}

// ParameterManager owns the parameter catalog for one subsystem: every
// settable knob the engine exposes there, addressed by a stable generated
// name. Constant bindings are pushed once per session; variable bindings are
// re-read from a scenario table row before every run through a cached
// category plan.
type ParameterManager struct {
	stage  engine.Stage
	groups []string

	params map[string]*Parameter
	order  []string

	// plan caches the per-category gather layout for variable parameters.
	// Invalidated whenever a binding changes.
	plan *applyPlan
}

// applyPlan holds the gather layout resolved against one concrete table:
// column names are turned into integer indices up front so the per-scenario
// path is pure slice indexing. tbl records which table the indices belong
// to; a different table forces a rebuild.
type applyPlan struct {
	tbl        *table.Table
	groupCats  []groupCategoryPlan
	scalarCols []scalarColumn
	vulnCols   []vulnColumn
}

type groupCategoryPlan struct {
	field   engine.GroupField
	groups  []int
	cols    []int
	scratch []float64
}

type scalarColumn struct {
	field engine.ScalarField
	col   int
}

type vulnColumn struct {
	prey, pred int
	col        int
}

// NewEcosimManager builds the Ecosim parameter catalog for the named model
// groups: one parameter per (feeding-dynamics field, group) plus one per
// vulnerability matrix entry.
func NewEcosimManager(groupNames []string) *ParameterManager {
	m := newManagerBase(engine.StageEcosim, groupNames)
	for _, f := range ecosimGroupFields {
		m.addGroupParams(f)
	}
	w := indexWidth(len(groupNames))
	for prey := 1; prey <= len(groupNames); prey++ {
		for pred := 1; pred <= len(groupNames); pred++ {
			name := fmt.Sprintf("%s_%0*d_%s_%0*d_%s", VulnPrefix,
				w, prey, sanitizeName(groupNames[prey-1]),
				w, pred, sanitizeName(groupNames[pred-1]))
			m.add(name, &Parameter{Name: name, Prey: prey, Pred: pred})
		}
	}
	return m
}

// NewEcotracerManager builds the Ecotracer parameter catalog: one parameter
// per (contaminant field, group) plus the environment scalars.
func NewEcotracerManager(groupNames []string) *ParameterManager {
	m := newManagerBase(engine.StageEcotracer, groupNames)
	for _, f := range ecotracerGroupFields {
		m.addGroupParams(f)
	}
	for _, f := range ecotracerScalarFields {
		name := f.String()
		m.add(name, &Parameter{Name: name, IsEnv: true, Scalar: f})
	}
	return m
}

func newManagerBase(stage engine.Stage, groupNames []string) *ParameterManager {
	return &ParameterManager{
		stage:  stage,
		groups: append([]string(nil), groupNames...),
		params: make(map[string]*Parameter),
	}
}

func (m *ParameterManager) addGroupParams(f engine.GroupField) {
	w := indexWidth(len(m.groups))
	for i, g := range m.groups {
		name := fmt.Sprintf("%s_%0*d_%s", f.String(), w, i+1, sanitizeName(g))
		m.add(name, &Parameter{Name: name, Group: i + 1, Field: f})
	}
}

func (m *ParameterManager) add(name string, p *Parameter) {
	m.params[name] = p
	m.order = append(m.order, name)
}

// indexWidth is the zero-pad width for 1-based group indices, chosen so all
// indices up to n sort lexicographically.
func indexWidth(n int) int {
	return len(strconv.Itoa(n))
}

func sanitizeName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

// Stage reports which subsystem the catalog addresses.
func (m *ParameterManager) Stage() engine.Stage { return m.stage }

// AllNames lists the full catalog in construction order.
func (m *ParameterManager) AllNames() []string {
	return append([]string(nil), m.order...)
}

// EnvNames lists the environment scalar parameter names.
func (m *ParameterManager) EnvNames() []string {
	var names []string
	for _, n := range m.order {
		if m.params[n].IsEnv {
			names = append(names, n)
		}
	}
	return names
}

// GroupParamNames lists per-group parameter names, optionally filtered by
// field prefixes and by groups. Groups may be referenced by name or by
// 1-based index rendered in decimal.
func (m *ParameterManager) GroupParamNames(prefixes, groups []string) ([]string, error) {
	fieldSet, err := m.resolveFields(prefixes)
	if err != nil {
		return nil, err
	}
	groupSet, err := m.resolveGroups(groups)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, n := range m.order {
		p := m.params[n]
		if p.Group == 0 {
			continue
		}
		if fieldSet != nil && !fieldSet[p.Field] {
			continue
		}
		if groupSet != nil && !groupSet[p.Group] {
			continue
		}
		names = append(names, n)
	}
	return names, nil
}

func (m *ParameterManager) resolveFields(prefixes []string) (map[engine.GroupField]bool, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}
	set := make(map[engine.GroupField]bool, len(prefixes))
	for _, pfx := range prefixes {
		abbrev, ok := AbbrevFieldName(pfx)
		if !ok {
			return nil, &engine.LookupError{Kind: "parameter field", Name: pfx}
		}
		for f := engine.GroupField(0); f < engine.NumGroupFields; f++ {
			if f.String() == abbrev {
				set[f] = true
			}
		}
	}
	return set, nil
}

func (m *ParameterManager) resolveGroups(groups []string) (map[int]bool, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	set := make(map[int]bool, len(groups))
	for _, g := range groups {
		if idx, err := strconv.Atoi(g); err == nil {
			if idx < 1 || idx > len(m.groups) {
				return nil, &engine.IndexError{What: "group", Index: idx, N: len(m.groups)}
			}
			set[idx] = true
			continue
		}
		found := false
		for i, name := range m.groups {
			if name == g || sanitizeName(name) == sanitizeName(g) {
				set[i+1] = true
				found = true
				break
			}
		}
		if !found {
			return nil, &engine.LookupError{Kind: "group", Name: g}
		}
	}
	return set, nil
}

// UnsetNames lists catalog entries with no binding.
func (m *ParameterManager) UnsetNames() []string {
	var names []string
	for _, n := range m.order {
		if !m.params[n].IsSet() {
			names = append(names, n)
		}
	}
	return names
}

// Lookup returns the parameter for a catalog name.
func (m *ParameterManager) Lookup(name string) (*Parameter, bool) {
	p, ok := m.params[name]
	return p, ok
}

// SetConstants binds fixed values to the named parameters. Names absent
// from this catalog are returned rather than rejected, so a caller holding
// several managers can intersect the leftovers.
func (m *ParameterManager) SetConstants(values map[string]float64) []string {
	var unknown []string
	for name, v := range values {
		p, ok := m.params[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		p.SetConstant(v)
	}
	m.plan = nil
	sort.Strings(unknown)
	return unknown
}

// SetVariables binds the named parameters to same-named scenario table
// columns. Unknown names are returned, not rejected.
func (m *ParameterManager) SetVariables(names []string) []string {
	var unknown []string
	for _, name := range names {
		p, ok := m.params[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		p.SetVariable(name)
	}
	m.plan = nil
	sort.Strings(unknown)
	return unknown
}

// ResetBindings returns every parameter to the engine default.
func (m *ParameterManager) ResetBindings() {
	for _, p := range m.params {
		p.Unset()
	}
	m.plan = nil
}

// ApplyConstants pushes every constant binding into the session, batching
// one engine crossing per per-group field.
func (m *ParameterManager) ApplyConstants(sess engine.Session) error {
	for _, f := range m.fields() {
		var groups []int
		var values []float64
		for _, n := range m.order {
			p := m.params[n]
			if p.Field == f && p.Group > 0 && p.Mode == ModeConstant {
				groups = append(groups, p.Group)
				values = append(values, p.Value)
			}
		}
		if len(groups) == 0 {
			continue
		}
		if err := sess.SetGroupValues(f, values, groups); err != nil {
			return fmt.Errorf("applying constant %s values: %w", f, err)
		}
	}
	for _, n := range m.order {
		p := m.params[n]
		if p.Mode != ModeConstant || p.Group > 0 {
			continue
		}
		switch {
		case p.IsEnv:
			if err := sess.SetScalarValue(p.Scalar, p.Value); err != nil {
				return fmt.Errorf("applying constant %s: %w", n, err)
			}
		case p.IsVulnerability():
			if err := sess.SetVulnerability(p.Prey, p.Pred, p.Value); err != nil {
				return fmt.Errorf("applying constant %s: %w", n, err)
			}
		}
	}
	return nil
}

func (m *ParameterManager) fields() []engine.GroupField {
	if m.stage == engine.StageEcotracer {
		return ecotracerGroupFields
	}
	return ecosimGroupFields
}

// buildPlan lays out the variable bindings by category and resolves every
// bound column name to its index in tbl, so ApplyVariables can gather a row
// and push one batch per field without any name lookups.
func (m *ParameterManager) buildPlan(tbl *table.Table) (*applyPlan, error) {
	cols := tbl.Columns()
	colIdx := make(map[string]int, len(cols))
	for i, c := range cols {
		colIdx[c] = i
	}
	resolve := func(column string) (int, error) {
		i, ok := colIdx[column]
		if !ok {
			return 0, &engine.LookupError{Kind: "table column", Name: column}
		}
		return i, nil
	}

	plan := &applyPlan{tbl: tbl}
	for _, f := range m.fields() {
		cat := groupCategoryPlan{field: f}
		for _, n := range m.order {
			p := m.params[n]
			if p.Field == f && p.Group > 0 && p.Mode == ModeVariable {
				c, err := resolve(p.Column)
				if err != nil {
					return nil, err
				}
				cat.groups = append(cat.groups, p.Group)
				cat.cols = append(cat.cols, c)
			}
		}
		if len(cat.groups) > 0 {
			cat.scratch = make([]float64, len(cat.groups))
			plan.groupCats = append(plan.groupCats, cat)
		}
	}
	for _, n := range m.order {
		p := m.params[n]
		if p.Mode != ModeVariable || p.Group > 0 {
			continue
		}
		c, err := resolve(p.Column)
		if err != nil {
			return nil, err
		}
		if p.IsEnv {
			plan.scalarCols = append(plan.scalarCols, scalarColumn{field: p.Scalar, col: c})
		} else if p.IsVulnerability() {
			plan.vulnCols = append(plan.vulnCols, vulnColumn{prey: p.Prey, pred: p.Pred, col: c})
		}
	}
	return plan, nil
}

// ApplyVariables reads the scenario table row and pushes every variable
// binding into the session, one engine crossing per per-group field. The
// hot path indexes the row with the plan's precomputed column indices.
func (m *ParameterManager) ApplyVariables(sess engine.Session, tbl *table.Table, row int) error {
	if m.plan == nil || m.plan.tbl != tbl {
		plan, err := m.buildPlan(tbl)
		if err != nil {
			return err
		}
		m.plan = plan
	}
	values := tbl.Row(row)

	for i := range m.plan.groupCats {
		cat := &m.plan.groupCats[i]
		for j, c := range cat.cols {
			cat.scratch[j] = values[c]
		}
		if err := sess.SetGroupValues(cat.field, cat.scratch, cat.groups); err != nil {
			return fmt.Errorf("applying %s row %d: %w", cat.field, row, err)
		}
	}
	for _, sc := range m.plan.scalarCols {
		if err := sess.SetScalarValue(sc.field, values[sc.col]); err != nil {
			return fmt.Errorf("applying %s row %d: %w", sc.field, row, err)
		}
	}
	for _, vc := range m.plan.vulnCols {
		if err := sess.SetVulnerability(vc.prey, vc.pred, values[vc.col]); err != nil {
			return fmt.Errorf("applying vulnerability (%d,%d) row %d: %w", vc.prey, vc.pred, row, err)
		}
	}
	return nil
}

// VariableColumns lists the table columns the variable bindings will read.
func (m *ParameterManager) VariableColumns() []string {
	var cols []string
	for _, n := range m.order {
		if p := m.params[n]; p.Mode == ModeVariable {
			cols = append(cols, p.Column)
		}
	}
	return cols
}

// Clone copies the catalog with its bindings so a worker can apply them to
// a private session without sharing mutable state.
func (m *ParameterManager) Clone() *ParameterManager {
	c := newManagerBase(m.stage, m.groups)
	c.order = append([]string(nil), m.order...)
	for name, p := range m.params {
		cp := *p
		c.params[name] = &cp
	}
	return c
}

// WarnUnset logs the catalog entries still on engine defaults. Callers
// invoke it once before the first run of a batch.
func (m *ParameterManager) WarnUnset() {
	unset := m.UnsetNames()
	if len(unset) == 0 {
		return
	}
	logrus.Warnf("%d %s parameter(s) left on engine defaults", len(unset), m.stage)
}
