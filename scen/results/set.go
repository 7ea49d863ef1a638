package results

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/table"
)

// Meta is run-level metadata frozen into a ResultSet.
type Meta struct {
	RunDate    time.Time
	FirstYear  int
	Country    string
	GroupNames []string
	FleetNames []string
}

// LabeledArray is one result variable as a dense array with named axes and
// per-axis coordinate labels.
type LabeledArray struct {
	Name     string
	FileName string
	Unit     string
	Category Category
	Dims     []string
	Coords   map[string][]string
	Shape    []int
	Data     []float64
}

// At returns the element at the given multi-index.
func (a *LabeledArray) At(idx ...int) float64 {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("results: index rank %d does not match array rank %d", len(idx), len(a.Shape)))
	}
	off := 0
	acc := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		off += idx[i] * acc
		acc *= a.Shape[i]
	}
	return a.Data[off]
}

// Summary holds NaN-aware summary statistics for one variable.
type Summary struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Valid  int
	NaNs   int
}

// ResultSet is the immutable outcome of a scenario batch: labeled result
// arrays, the scenario table they were produced from, run metadata, and
// the indices of scenarios whose engine run failed (their windows are NaN).
type ResultSet struct {
	Meta   Meta
	Table  *table.Table
	Failed []int

	vars map[string]*LabeledArray
}

// NewResultSet freezes stores into a ResultSet. The store data is referenced,
// not copied; the stores must not be written afterwards.
func NewResultSet(meta Meta, tbl *table.Table, names []string, stores map[string]*Store, failed []int) *ResultSet {
	ids := tbl.ScenarioIDs()
	scenCoords := make([]string, len(ids))
	for i, id := range ids {
		scenCoords[i] = strconv.Itoa(id)
	}

	vars := make(map[string]*LabeledArray, len(names))
	for _, name := range names {
		s := stores[name]
		v := s.Variable()
		coords := make(map[string][]string, len(v.Dims))
		for i, dim := range v.Dims {
			coords[dim] = dimCoords(dim, scenCoords, meta, s.shape[i])
		}
		vars[name] = &LabeledArray{
			Name:     v.Name,
			FileName: v.FileName,
			Unit:     v.Unit,
			Category: v.Category,
			Dims:     append([]string(nil), v.Dims...),
			Coords:   coords,
			Shape:    s.Shape(),
			Data:     s.Data(),
		}
	}

	sortedFailed := append([]int(nil), failed...)
	sort.Ints(sortedFailed)
	return &ResultSet{Meta: meta, Table: tbl, Failed: sortedFailed, vars: vars}
}

func dimCoords(dim string, scenCoords []string, meta Meta, n int) []string {
	switch dim {
	case DimScenario:
		return scenCoords
	case DimGroup:
		return append([]string(nil), meta.GroupNames...)
	case DimEnvGroup:
		return append([]string{"Environment"}, meta.GroupNames...)
	case DimFleet:
		return append([]string(nil), meta.FleetNames...)
	case DimTime:
		out := make([]string, n)
		for i := range out {
			out[i] = strconv.Itoa(i)
		}
		return out
	}
	return nil
}

// Variable returns the labeled array for a collected variable name.
func (r *ResultSet) Variable(name string) (*LabeledArray, error) {
	v, ok := r.vars[name]
	if !ok {
		return nil, &engine.LookupError{Kind: "result variable", Name: name}
	}
	return v, nil
}

// VariableNames returns the collected variable names, sorted.
func (r *ResultSet) VariableNames() []string {
	names := make([]string, 0, len(r.vars))
	for n := range r.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summarize computes NaN-aware summary statistics over a variable's full
// array. Failed scenarios contribute to NaNs, not to the moments.
func (r *ResultSet) Summarize(name string) (Summary, error) {
	v, err := r.Variable(name)
	if err != nil {
		return Summary{}, err
	}
	valid := make([]float64, 0, len(v.Data))
	nans := 0
	for _, x := range v.Data {
		if math.IsNaN(x) {
			nans++
			continue
		}
		valid = append(valid, x)
	}
	if len(valid) == 0 {
		return Summary{NaNs: nans}, nil
	}
	s := Summary{
		Mean:  stat.Mean(valid, nil),
		Min:   valid[0],
		Max:   valid[0],
		Valid: len(valid),
		NaNs:  nans,
	}
	s.StdDev = stat.StdDev(valid, nil)
	for _, x := range valid {
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
	}
	return s, nil
}

// WriteCSV writes one flattened CSV per shape category into dir: each row a
// coordinate tuple, one column per variable in the category. Variables with
// an environment compartment leave ordinary-group-only variables blank on
// the Environment rows.
func (r *ResultSet) WriteCSV(dir string) error {
	byCat := make(map[Category][]*LabeledArray)
	for _, name := range r.VariableNames() {
		v := r.vars[name]
		byCat[v.Category] = append(byCat[v.Category], v)
	}

	for cat, vars := range byCat {
		path := filepath.Join(dir, cat.String()+".csv")
		if err := r.writeCategory(path, cat, vars); err != nil {
			return err
		}
		logrus.Infof("wrote %d variable(s) to %s", len(vars), path)
	}
	return nil
}

// categoryAxes resolves the row coordinate space of one category file: the
// union of the member variables' coordinates per axis.
func (r *ResultSet) categoryAxes(cat Category, vars []*LabeledArray) ([]string, [][]string) {
	dims := cat.Dims()
	coords := make([][]string, len(dims))
	for i, dim := range dims {
		if dim == DimGroup {
			// Tracer variables extend the group axis with the environment
			// compartment; the file uses the superset.
			for _, v := range vars {
				if hasDim(v, DimEnvGroup) {
					dim = DimEnvGroup
					break
				}
			}
		}
		switch dim {
		case DimScenario:
			coords[i] = r.vars[vars[0].Name].Coords[DimScenario]
		case DimGroup:
			coords[i] = append([]string(nil), r.Meta.GroupNames...)
		case DimEnvGroup:
			coords[i] = append([]string{"Environment"}, r.Meta.GroupNames...)
		case DimFleet:
			coords[i] = append([]string(nil), r.Meta.FleetNames...)
		case DimTime:
			n := vars[0].Shape[len(vars[0].Shape)-1]
			out := make([]string, n)
			for j := range out {
				out[j] = strconv.Itoa(j)
			}
			coords[i] = out
		}
	}
	return dims, coords
}

func hasDim(v *LabeledArray, dim string) bool {
	for _, d := range v.Dims {
		if d == dim {
			return true
		}
	}
	return false
}

func (r *ResultSet) writeCategory(path string, cat Category, vars []*LabeledArray) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating result file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	dims, coords := r.categoryAxes(cat, vars)

	header := make([]string, 0, len(dims)+len(vars))
	for _, d := range dims {
		header = append(header, exportDimName(d))
	}
	for _, v := range vars {
		header = append(header, v.FileName)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	idx := make([]int, len(dims))
	row := make([]string, len(header))
	var emit func(axis int) error
	emit = func(axis int) error {
		if axis == len(dims) {
			for i := range dims {
				row[i] = coords[i][idx[i]]
			}
			for j, v := range vars {
				row[len(dims)+j] = r.cellValue(v, dims, coords, idx)
			}
			return w.Write(row)
		}
		for i := 0; i < len(coords[axis]); i++ {
			idx[axis] = i
			if err := emit(axis + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := emit(0); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// cellValue maps one file-row coordinate tuple onto a variable's array. The
// group axis may need shifting: variables without an environment row skip
// the file's Environment coordinate.
func (r *ResultSet) cellValue(v *LabeledArray, dims []string, coords [][]string, idx []int) string {
	pos := make([]int, 0, len(v.Dims))
	for axis, dim := range dims {
		i := idx[axis]
		switch dim {
		case DimGroup:
			if hasDim(v, DimEnvGroup) {
				pos = append(pos, i)
				continue
			}
			// File axis may carry an Environment row the variable lacks.
			if len(coords[axis]) == v.Shape[len(pos)]+1 {
				if i == 0 {
					return "" // no value for the environment compartment
				}
				i--
			}
			pos = append(pos, i)
		default:
			pos = append(pos, i)
		}
	}
	x := v.At(pos...)
	if math.IsNaN(x) {
		return "NaN"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

func exportDimName(dim string) string {
	switch dim {
	case DimScenario:
		return "Scenario"
	case DimGroup, DimEnvGroup:
		return "Group"
	case DimFleet:
		return "Fleet"
	case DimTime:
		return "Time"
	}
	return dim
}
