package results

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/table"
)

// Manager owns the extractors and stores for one requested variable set.
// Collect must run immediately after a scenario's run, before the next run
// overwrites the engine's internal storage: extraction is destructive, not
// append-only.
type Manager struct {
	sess   engine.Session
	names  []string
	tbl    *table.Table
	dims   StoreDims
	stores map[string]*Store

	// Variables backed by the same engine array share one extractor.
	extractors map[ExtractorID]*Extractor
	order      []ExtractorID

	meta   Meta
	failed []int
}

// NewManager builds a manager with exclusive stores, for the sequential
// path.
func NewManager(sess engine.Session, names []string, tbl *table.Table) (*Manager, error) {
	dims := sessionDims(sess, tbl)
	stores, err := NewStores(names, dims)
	if err != nil {
		return nil, err
	}
	return newManager(sess, names, tbl, dims, stores)
}

// NewSharedManager builds a manager over caller-supplied stores. Workers in
// a parallel run each get a private manager (private session, private
// extractor buffers) bound to the same shared stores, addressed by absolute
// scenario index.
func NewSharedManager(sess engine.Session, names []string, tbl *table.Table, stores map[string]*Store) (*Manager, error) {
	dims := sessionDims(sess, tbl)
	for _, name := range names {
		if _, ok := stores[name]; !ok {
			return nil, &engine.LookupError{Kind: "shared result store", Name: name}
		}
	}
	return newManager(sess, names, tbl, dims, stores)
}

func newManager(sess engine.Session, names []string, tbl *table.Table, dims StoreDims, stores map[string]*Store) (*Manager, error) {
	m := &Manager{
		sess:       sess,
		names:      append([]string(nil), names...),
		tbl:        tbl,
		dims:       dims,
		stores:     stores,
		extractors: make(map[ExtractorID]*Extractor),
		meta: Meta{
			RunDate:    time.Now(),
			FirstYear:  sess.FirstYear(),
			Country:    sess.Country(),
			GroupNames: sess.GroupNames(),
			FleetNames: sess.FleetNames(),
		},
	}
	for _, name := range names {
		v, ok := LookupVariable(name)
		if !ok {
			return nil, &engine.LookupError{Kind: "result variable", Name: name}
		}
		if _, ok := m.extractors[v.Extractor]; !ok {
			e, err := NewExtractor(v.Extractor)
			if err != nil {
				return nil, err
			}
			m.extractors[v.Extractor] = e
			m.order = append(m.order, v.Extractor)
		}
	}
	sort.Slice(m.order, func(i, j int) bool { return m.order[i] < m.order[j] })
	logrus.Debugf("result manager: %d variables over %d unique extractors", len(names), len(m.extractors))
	return m, nil
}

func sessionDims(sess engine.Session, tbl *table.Table) StoreDims {
	return StoreDims{
		NScenarios: tbl.NScenarios(),
		NGroups:    sess.NGroups(),
		NFleets:    len(sess.FleetNames()),
		NMonths:    sess.NYears() * 12,
	}
}

// Refresh copies every unique engine array once into the extractor-owned
// buffers.
func (m *Manager) Refresh() error {
	for _, id := range m.order {
		if err := m.extractors[id].Refresh(m.sess); err != nil {
			return err
		}
	}
	return nil
}

// Collect refreshes the extractors and copies each requested variable's
// current value into its store at the given scenario index.
func (m *Manager) Collect(scenario int) error {
	if scenario < 0 || scenario >= m.dims.NScenarios {
		return engine.Configf("scenario index %d out of range [0, %d)", scenario, m.dims.NScenarios)
	}
	if err := m.Refresh(); err != nil {
		return err
	}
	for _, name := range m.names {
		v := m.stores[name].Variable()
		e := m.extractors[v.Extractor]

		var (
			arr *engine.Array
			err error
		)
		if v.Packed >= 0 {
			arr, err = e.PackedResult(v.Packed)
		} else {
			arr, err = e.Result()
		}
		if err != nil {
			return err
		}

		window := m.stores[name].Slice(scenario)
		if len(window) != len(arr.Data) {
			return engine.Configf("variable %q: extracted shape %v does not fit store window of %d values",
				name, arr.Shape, len(window))
		}
		copy(window, arr.Data)
	}
	return nil
}

// MarkFailed invalidates one scenario's window in every store and records
// the index. Called when the engine run for that scenario returned false,
// so stale internal buffers are never collected.
func (m *Manager) MarkFailed(scenario int) {
	for _, name := range m.names {
		m.stores[name].FillNaN(scenario)
	}
	m.failed = append(m.failed, scenario)
}

// Stores exposes the managed stores, keyed by variable name.
func (m *Manager) Stores() map[string]*Store { return m.stores }

// Failed returns the scenario indices marked failed on this manager.
func (m *Manager) Failed() []int { return append([]int(nil), m.failed...) }

// ToResultSet freezes the stores, scenario table, and run metadata into an
// immutable result set.
func (m *Manager) ToResultSet() *ResultSet {
	return NewResultSet(m.meta, m.tbl, m.names, m.stores, m.failed)
}
