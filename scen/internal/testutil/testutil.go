// Package testutil provides shared test infrastructure for the scenario
// batch packages: float comparison with relative tolerance and a canned
// four-group model file.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// FourGroupModelYAML is a small balanced model used across the test suites:
// two consumers, one producer, one detritus pool, one fleet.
const FourGroupModelYAML = `name: reef_test
country: Testland
first_year: 2000
years: 10
groups:
  - name: Sharks
    type: consumer
    biomass: 1.5
    pb: 0.4
    qb: 3.0
  - name: Reef Fish
    type: consumer
    biomass: 12.0
    pb: 1.2
    qb: 6.5
  - name: Plankton
    type: producer
    biomass: 40.0
    pb: 25.0
  - name: Detritus
    type: detritus
    biomass: 80.0
fleets:
  - name: Trawlers
    catch_rates:
      Sharks: 0.05
      Reef Fish: 0.3
`

// FourGroupNames matches FourGroupModelYAML's group order.
var FourGroupNames = []string{"Sharks", "Reef Fish", "Plankton", "Detritus"}

// TempModelFile writes a model definition into a temp directory and returns
// its path. The directory is cleaned up with the test.
func TempModelFile(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing model file: %v", err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// FloatsEqual reports elementwise equality treating NaN as equal to NaN.
func FloatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.IsNaN(a[i]) && math.IsNaN(b[i]) {
			continue
		}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
