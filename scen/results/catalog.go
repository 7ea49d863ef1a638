// Package results implements result extraction and aggregation: copying the
// engine's ephemeral internal result buffers into durable scenario-indexed
// stores and freezing them into an immutable, exportable ResultSet.
package results

import "sort"

// Dimension names used in variable shapes and export headers.
const (
	DimScenario = "scenario"
	DimGroup    = "group"
	DimEnvGroup = "env_group" // functional groups plus the environment compartment
	DimFleet    = "fleet"
	DimTime     = "time"
)

// Category is the shape category of a result variable. Flat exports emit
// one file per category.
type Category int

const (
	CategoryEcosystem Category = iota
	CategoryGroup
	CategoryFleet
)

func (c Category) String() string {
	switch c {
	case CategoryEcosystem:
		return "ecosystem_stats"
	case CategoryGroup:
		return "group_stats"
	case CategoryFleet:
		return "fishing_stats"
	}
	return "unknown"
}

// Dims returns the category's axis names, scenario first.
func (c Category) Dims() []string {
	switch c {
	case CategoryEcosystem:
		return []string{DimScenario, DimTime}
	case CategoryGroup:
		return []string{DimScenario, DimGroup, DimTime}
	case CategoryFleet:
		return []string{DimScenario, DimFleet, DimGroup, DimTime}
	}
	return nil
}

// Variable describes one extractable result variable: its shape, unit, and
// the binding to the engine array it is read from. The catalog is fixed;
// extraction behavior is never inferred from the engine at run time.
type Variable struct {
	Name     string
	FileName string
	Unit     string
	Category Category
	// Dims is the variable's own shape, scenario first. It refines the
	// category dims (e.g. tracer variables carry the environment row).
	Dims []string
	// Extractor binds the variable to an engine-internal array; variables
	// sharing an extractor are read from the same physical array.
	Extractor ExtractorID
	// Packed selects the leading index for packed extractors, -1 for
	// single-variable extractors.
	Packed int
}

var catalog = map[string]Variable{
	"Concentration": {
		Name:      "Concentration",
		FileName:  "Concentration",
		Unit:      "t/t",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimEnvGroup, DimTime},
		Extractor: ExtractorTracerConc,
		Packed:    -1,
	},
	"Concentration Biomass": {
		Name:      "Concentration Biomass",
		FileName:  "Concentration_Biomass",
		Unit:      "t/t",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimEnvGroup, DimTime},
		Extractor: ExtractorTracerConcBiomass,
		Packed:    -1,
	},
	"Biomass": {
		Name:      "Biomass",
		FileName:  "Biomass",
		Unit:      "t/km2",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimGroup, DimTime},
		Extractor: ExtractorEcosimGroupStats,
		Packed:    packedBiomass,
	},
	"Catch": {
		Name:      "Catch",
		FileName:  "Catch",
		Unit:      "t/km2/year",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimGroup, DimTime},
		Extractor: ExtractorEcosimGroupStats,
		Packed:    packedYield,
	},
	"Consumption Biomass": {
		Name:      "Consumption Biomass",
		FileName:  "Consumption_Biomass",
		Unit:      "t/km2/year",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimGroup, DimTime},
		Extractor: ExtractorEcosimGroupStats,
		Packed:    packedConsumpBiomass,
	},
	"Mortality": {
		Name:      "Mortality",
		FileName:  "Mortality",
		Unit:      "1/year",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimGroup, DimTime},
		Extractor: ExtractorEcosimGroupStats,
		Packed:    packedTotalMort,
	},
	"Trophic Level": {
		Name:      "Trophic Level",
		FileName:  "Trophic_Level",
		Unit:      "",
		Category:  CategoryGroup,
		Dims:      []string{DimScenario, DimGroup, DimTime},
		Extractor: ExtractorEcosimGroupStats,
		Packed:    packedTL,
	},
	"Trophic Level Catch": {
		Name:      "Trophic Level Catch",
		FileName:  "Trophic_Level_Catch",
		Unit:      "",
		Category:  CategoryEcosystem,
		Dims:      []string{DimScenario, DimTime},
		Extractor: ExtractorTLC,
		Packed:    -1,
	},
	"FIB": {
		Name:      "FIB",
		FileName:  "FIB",
		Unit:      "",
		Category:  CategoryEcosystem,
		Dims:      []string{DimScenario, DimTime},
		Extractor: ExtractorFIB,
		Packed:    -1,
	},
	"KemptonsQ": {
		Name:      "KemptonsQ",
		FileName:  "KemptonsQ",
		Unit:      "",
		Category:  CategoryEcosystem,
		Dims:      []string{DimScenario, DimTime},
		Extractor: ExtractorKemptons,
		Packed:    -1,
	},
	"Shannon Diversity": {
		Name:      "Shannon Diversity",
		FileName:  "Shannon_Diversity",
		Unit:      "",
		Category:  CategoryEcosystem,
		Dims:      []string{DimScenario, DimTime},
		Extractor: ExtractorShannon,
		Packed:    -1,
	},
	"Fleet Catch": {
		Name:      "Fleet Catch",
		FileName:  "Fleet_Catch",
		Unit:      "t/km2/year",
		Category:  CategoryFleet,
		Dims:      []string{DimScenario, DimFleet, DimGroup, DimTime},
		Extractor: ExtractorFleetCatch,
		Packed:    -1,
	},
}

// DefaultSaveVariables is the variable set collected when the caller does
// not ask for a specific one.
var DefaultSaveVariables = []string{
	"Concentration",
	"Concentration Biomass",
	"Biomass",
	"Catch",
	"Consumption Biomass",
	"Mortality",
	"Trophic Level",
	"Trophic Level Catch",
	"FIB",
	"KemptonsQ",
	"Shannon Diversity",
}

// LookupVariable returns the catalog entry for a public variable name.
func LookupVariable(name string) (Variable, bool) {
	v, ok := catalog[name]
	return v, ok
}

// NeedsTracer reports whether any of the named variables is read from
// Ecotracer's internal storage, so the runner knows which stage chain to
// trigger per scenario.
func NeedsTracer(names []string) bool {
	for _, n := range names {
		v, ok := catalog[n]
		if !ok {
			continue
		}
		if v.Extractor == ExtractorTracerConc || v.Extractor == ExtractorTracerConcBiomass {
			return true
		}
	}
	return false
}

// VariableNames returns all catalog names, sorted.
func VariableNames() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
