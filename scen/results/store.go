package results

import (
	"math"

	"github.com/ecoscen/ecoscen/scen/engine"
)

// StoreDims carries the axis lengths needed to size result stores.
type StoreDims struct {
	NScenarios int
	NGroups    int
	NFleets    int
	NMonths    int
}

func (d StoreDims) dimLen(dim string) int {
	switch dim {
	case DimScenario:
		return d.NScenarios
	case DimGroup:
		return d.NGroups
	case DimEnvGroup:
		return d.NGroups + 1 // functional groups + environment compartment
	case DimFleet:
		return d.NFleets
	case DimTime:
		return d.NMonths
	}
	return 0
}

// Store is the durable, scenario-indexed buffer for one result variable: a
// dense array with the scenario axis leading. Per-scenario windows are
// disjoint, so a parallel run's workers write to a shared store without
// locks (each scenario index is written exactly once by exactly one
// worker).
type Store struct {
	v       Variable
	shape   []int
	perScen int // elements per scenario window
	data    []float64
}

// NewStore allocates a store for one catalog variable.
func NewStore(v Variable, dims StoreDims) (*Store, error) {
	shape := make([]int, len(v.Dims))
	perScen := 1
	for i, dim := range v.Dims {
		n := dims.dimLen(dim)
		if n <= 0 {
			return nil, engine.Configf("variable %q needs dimension %q but the model has none", v.Name, dim)
		}
		shape[i] = n
		if i > 0 {
			perScen *= n
		}
	}
	return &Store{
		v:       v,
		shape:   shape,
		perScen: perScen,
		data:    make([]float64, dims.NScenarios*perScen),
	}, nil
}

// NewStores allocates one store per requested variable name. Used by the
// parallel path to build the shared buffers before workers start.
func NewStores(names []string, dims StoreDims) (map[string]*Store, error) {
	stores := make(map[string]*Store, len(names))
	for _, name := range names {
		v, ok := LookupVariable(name)
		if !ok {
			return nil, &engine.LookupError{Kind: "result variable", Name: name}
		}
		s, err := NewStore(v, dims)
		if err != nil {
			return nil, err
		}
		stores[name] = s
	}
	return stores, nil
}

// Variable returns the catalog entry the store was built for.
func (s *Store) Variable() Variable { return s.v }

// Shape returns the full store shape, scenario axis first.
func (s *Store) Shape() []int {
	out := make([]int, len(s.shape))
	copy(out, s.shape)
	return out
}

// Data returns the backing array. Read-only for callers.
func (s *Store) Data() []float64 { return s.data }

// Slice returns the writable window for one scenario index. Windows of
// distinct indices never overlap.
func (s *Store) Slice(scenario int) []float64 {
	return s.data[scenario*s.perScen : (scenario+1)*s.perScen]
}

// FillNaN marks one scenario's window as invalid.
func (s *Store) FillNaN(scenario int) {
	w := s.Slice(scenario)
	for i := range w {
		w[i] = math.NaN()
	}
}
