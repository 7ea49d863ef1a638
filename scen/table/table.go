// Package table implements the scenario table: one row per scenario, the
// leading column holding ascending integer scenario ids, remaining columns
// mapping 1:1 to parameter names.
package table

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/ecoscen/ecoscen/scen/engine"
)

// ScenarioColumn is the required name of the leading id column.
const ScenarioColumn = "scenario"

// Table is an immutable scenario table. Column 0 carries the scenario ids;
// the remaining columns carry per-scenario parameter values.
type Table struct {
	columns []string
	rows    [][]float64
}

// New builds and validates a table from column names and rows. The row
// slices are retained, not copied; callers must not mutate them afterwards.
func New(columns []string, rows [][]float64) (*Table, error) {
	t := &Table{columns: columns, rows: rows}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads a scenario table from a CSV file with a header row.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scenario table: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing scenario table: %w", err)
	}
	if len(records) < 2 {
		return nil, engine.Configf("scenario table %s needs a header row and at least one scenario", path)
	}

	columns := records[0]
	rows := make([][]float64, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(columns) {
			return nil, engine.Configf("scenario table row %d has %d fields, header has %d", i+1, len(rec), len(columns))
		}
		row := make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, engine.Configf("scenario table row %d, column %q: %v", i+1, columns[j], err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return New(columns, rows)
}

// Empty builds a zero-filled table for the given parameter names with
// scenario ids 1..n.
func Empty(paramNames []string, n int) (*Table, error) {
	if n < 1 {
		return nil, engine.Configf("scenario count must be >= 1, got %d", n)
	}
	columns := append([]string{ScenarioColumn}, paramNames...)
	rows := make([][]float64, n)
	for i := range rows {
		row := make([]float64, len(columns))
		row[0] = float64(i + 1)
		rows[i] = row
	}
	return New(columns, rows)
}

func (t *Table) validate() error {
	if len(t.columns) == 0 || t.columns[0] != ScenarioColumn {
		got := "<none>"
		if len(t.columns) > 0 {
			got = t.columns[0]
		}
		return engine.Configf("the first column of the scenario table must be %q, got %q", ScenarioColumn, got)
	}
	if len(t.rows) == 0 {
		return engine.Configf("scenario table has no scenarios")
	}
	prev := math.Inf(-1)
	for i, row := range t.rows {
		if len(row) != len(t.columns) {
			return engine.Configf("scenario row %d has %d values, expected %d", i, len(row), len(t.columns))
		}
		id := row[0]
		if id != math.Trunc(id) {
			return engine.Configf("scenario row %d: id %v is not an integer", i, id)
		}
		if id <= prev {
			return engine.Configf("scenario ids must be ascending: row %d has id %v after %v", i, id, prev)
		}
		prev = id
	}
	return nil
}

// Columns returns the column names, scenario id column included.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// ParamColumns returns the column names excluding the scenario id column.
func (t *Table) ParamColumns() []string {
	out := make([]string, len(t.columns)-1)
	copy(out, t.columns[1:])
	return out
}

// NScenarios returns the number of scenario rows.
func (t *Table) NScenarios() int { return len(t.rows) }

// ScenarioIDs returns the integer id of every scenario in row order.
func (t *Table) ScenarioIDs() []int {
	ids := make([]int, len(t.rows))
	for i, row := range t.rows {
		ids[i] = int(row[0])
	}
	return ids
}

// Row returns the full values of scenario row i, id column included.
func (t *Table) Row(i int) []float64 { return t.rows[i] }

// Set writes one parameter value. Only intended for building tables
// programmatically before a run.
func (t *Table) Set(row int, column string, v float64) error {
	for j, c := range t.columns {
		if c == column {
			t.rows[row][j] = v
			return nil
		}
	}
	return &engine.LookupError{Kind: "scenario table column", Name: column}
}
