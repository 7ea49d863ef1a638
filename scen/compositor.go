package scen

import (
	"math"
	"sort"
	"strings"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/table"
)

// Compositor fans parameter operations out over the subsystem managers.
// A name is legal if any manager recognizes it; only names rejected by
// every manager are an error.
type Compositor struct {
	managers []*ParameterManager
}

// NewCompositor builds the standard two-subsystem compositor for a model's
// group names.
func NewCompositor(groupNames []string) *Compositor {
	return &Compositor{managers: []*ParameterManager{
		NewEcosimManager(groupNames),
		NewEcotracerManager(groupNames),
	}}
}

// Managers exposes the subsystem managers in fan-out order.
func (c *Compositor) Managers() []*ParameterManager {
	return append([]*ParameterManager(nil), c.managers...)
}

// SetConstants broadcasts fixed-value bindings. Names no manager recognizes
// produce a configuration error listing them all.
func (c *Compositor) SetConstants(values map[string]float64) error {
	unknown := c.broadcast(func(m *ParameterManager) []string {
		return m.SetConstants(values)
	}, len(values))
	return unknownError("constant", unknown)
}

// SetVariables broadcasts table-column bindings.
func (c *Compositor) SetVariables(names []string) error {
	unknown := c.broadcast(func(m *ParameterManager) []string {
		return m.SetVariables(names)
	}, len(names))
	return unknownError("variable", unknown)
}

// broadcast runs op on every manager and intersects the unknown-name sets:
// a name is truly unknown only if every manager returned it.
func (c *Compositor) broadcast(op func(*ParameterManager) []string, total int) []string {
	counts := make(map[string]int, total)
	for _, m := range c.managers {
		for _, n := range op(m) {
			counts[n]++
		}
	}
	var unknown []string
	for n, k := range counts {
		if k == len(c.managers) {
			unknown = append(unknown, n)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func unknownError(kind string, unknown []string) error {
	if len(unknown) == 0 {
		return nil
	}
	return engine.Configf("unrecognized %s parameter(s): %s", kind, strings.Join(unknown, ", "))
}

// ParameterFilter narrows AvailableParameterNames. Zero value means no
// filtering.
type ParameterFilter struct {
	// Stage limits the listing to one subsystem's catalog.
	Stage *engine.Stage
	// EnvOnly keeps only environment scalars; GroupOnly only per-group
	// fields (vulnerabilities excluded by both).
	EnvOnly   bool
	GroupOnly bool
	// Prefixes and Groups filter per-group names; groups accept names or
	// 1-based decimal indices.
	Prefixes []string
	Groups   []string
}

// AvailableParameterNames lists catalog names across the managers, filtered.
func (c *Compositor) AvailableParameterNames(filter ParameterFilter) ([]string, error) {
	var names []string
	for _, m := range c.managers {
		if filter.Stage != nil && m.Stage() != *filter.Stage {
			continue
		}
		switch {
		case filter.EnvOnly:
			names = append(names, m.EnvNames()...)
		case filter.GroupOnly || len(filter.Prefixes) > 0 || len(filter.Groups) > 0:
			gp, err := m.GroupParamNames(filter.Prefixes, filter.Groups)
			if err != nil {
				return nil, err
			}
			names = append(names, gp...)
		default:
			names = append(names, m.AllNames()...)
		}
	}
	return names, nil
}

// LongParameterRow is one entry of the long-format catalog listing: an
// environment scalar under the synthetic "Environment" group, or a
// (group, field prefix) pair. Rows are a template for building scenario
// inputs by hand; Scenario is 0 and Value is NaN until the caller fills
// them in.
type LongParameterRow struct {
	Scenario  int
	Group     string
	Parameter string
	Value     float64
}

// LongParameterRows lists both catalogs in long form: the environment
// scalars first, then every (group, field prefix) pair with the subsystems
// interleaved per group. Vulnerability entries are omitted; they are
// addressed by prey/pred pair, not by group.
func (c *Compositor) LongParameterRows() []LongParameterRow {
	var rows []LongParameterRow
	for _, m := range c.managers {
		for _, n := range m.EnvNames() {
			rows = append(rows, LongParameterRow{Group: "Environment", Parameter: n, Value: math.NaN()})
		}
	}
	for _, g := range c.managers[0].groups {
		for _, m := range c.managers {
			for _, f := range m.fields() {
				rows = append(rows, LongParameterRow{Group: g, Parameter: f.String(), Value: math.NaN()})
			}
		}
	}
	return rows
}

// Lookup finds a parameter by name in whichever manager owns it.
func (c *Compositor) Lookup(name string) (*Parameter, bool) {
	for _, m := range c.managers {
		if p, ok := m.Lookup(name); ok {
			return p, true
		}
	}
	return nil, false
}

// resetVariables unbinds variable parameters only, leaving constants in
// place. Used when a new scenario table re-binds its own columns.
func (c *Compositor) resetVariables() {
	for _, m := range c.managers {
		for _, p := range m.params {
			if p.Mode == ModeVariable {
				p.Unset()
			}
		}
		m.plan = nil
	}
}

// ResetBindings returns every catalog to engine defaults.
func (c *Compositor) ResetBindings() {
	for _, m := range c.managers {
		m.ResetBindings()
	}
}

// ApplyConstants pushes all constant bindings into the session.
func (c *Compositor) ApplyConstants(sess engine.Session) error {
	for _, m := range c.managers {
		if err := m.ApplyConstants(sess); err != nil {
			return err
		}
	}
	return nil
}

// ApplyVariables pushes one scenario table row into the session.
func (c *Compositor) ApplyVariables(sess engine.Session, tbl *table.Table, row int) error {
	for _, m := range c.managers {
		if err := m.ApplyVariables(sess, tbl, row); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTable checks that every variable binding has a table column and
// that no table parameter column is left unbound.
func (c *Compositor) ValidateTable(tbl *table.Table) error {
	bound := make(map[string]bool)
	for _, m := range c.managers {
		for _, col := range m.VariableColumns() {
			bound[col] = true
		}
	}
	have := make(map[string]bool)
	for _, col := range tbl.ParamColumns() {
		have[col] = true
	}
	var missing, unbound []string
	for col := range bound {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	for col := range have {
		if !bound[col] {
			unbound = append(unbound, col)
		}
	}
	sort.Strings(missing)
	sort.Strings(unbound)
	if len(missing) > 0 {
		return engine.Configf("variable parameter(s) missing from scenario table: %s", strings.Join(missing, ", "))
	}
	if len(unbound) > 0 {
		return engine.Configf("scenario table column(s) bound to no parameter: %s", strings.Join(unbound, ", "))
	}
	return nil
}

// Clone deep-copies the compositor and its bindings for a worker session.
func (c *Compositor) Clone() *Compositor {
	clone := &Compositor{managers: make([]*ParameterManager, len(c.managers))}
	for i, m := range c.managers {
		clone.managers[i] = m.Clone()
	}
	return clone
}

// WarnUnset logs defaults still in effect, once per manager.
func (c *Compositor) WarnUnset() {
	for _, m := range c.managers {
		m.WarnUnset()
	}
}
