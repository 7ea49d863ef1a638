// Package engine defines the boundary to the EwE-style simulation engine.
//
// A Session is a live handle to one engine instance bound to a private model
// file. Sessions are stateful and cannot be shared or serialized: callers
// that need several concurrent engine instances must construct one session
// per worker from its own copy of the model file (see SessionFactory).
//
// Settable parameters are addressed through typed field enums (GroupField,
// ScalarField) rather than method-per-parameter accessors, so parameter
// managers can dispatch through a fixed category table.
package engine

import "fmt"

// Stage identifies one phase of the simulation chain. Each stage must run
// before its results are extractable.
type Stage int

const (
	StageEcopath Stage = iota
	StageEcosim
	StageEcotracer
)

func (s Stage) String() string {
	switch s {
	case StageEcopath:
		return "Ecopath"
	case StageEcosim:
		return "Ecosim"
	case StageEcotracer:
		return "Ecotracer"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// GroupField is a settable per-functional-group parameter field.
type GroupField int

const (
	// Ecosim feeding dynamics.
	FieldDensityDepCatchability GroupField = iota
	FieldFeedingTimeAdjRate
	FieldMaxRelFeedingTime
	FieldMaxRelPB
	FieldPredEffectFeedingTime
	FieldOtherMortFeedingTime
	FieldQBMaxQBio
	FieldSwitchingPower

	// Ecotracer contaminant tracing.
	FieldInitialConc
	FieldImmigConc
	FieldDirectAbsRate
	FieldPhysicalDecayRate
	FieldMetabolicDecayRate
	FieldExcretionRate

	NumGroupFields
)

var groupFieldNames = [NumGroupFields]string{
	"density_dep_catchability",
	"feeding_time_adj_rate",
	"max_rel_feeding_time",
	"max_rel_pb",
	"pred_effect_feeding_time",
	"other_mort_feeding_time",
	"qbmax_qbio",
	"switching_power",
	"init_c",
	"immig_c",
	"direct_abs_r",
	"phys_decay_r",
	"meta_decay_r",
	"excretion_r",
}

func (f GroupField) String() string {
	if f < 0 || f >= NumGroupFields {
		return fmt.Sprintf("GroupField(%d)", int(f))
	}
	return groupFieldNames[f]
}

// Stage reports which subsystem owns the field.
func (f GroupField) Stage() Stage {
	if f >= FieldInitialConc {
		return StageEcotracer
	}
	return StageEcosim
}

// ScalarField is a settable environment-level scalar field. All scalar
// fields belong to the Ecotracer subsystem.
type ScalarField int

const (
	FieldEnvInitialConc ScalarField = iota
	FieldEnvBaseInflowRate
	FieldEnvDecayRate
	FieldEnvVolumeExchangeLoss
	FieldEnvInflowForcingIdx

	NumScalarFields
)

var scalarFieldNames = [NumScalarFields]string{
	"env_init_c",
	"env_base_inflow_r",
	"env_decay_r",
	"base_vol_ex_loss",
	"env_inflow_forcing_idx",
}

func (f ScalarField) String() string {
	if f < 0 || f >= NumScalarFields {
		return fmt.Sprintf("ScalarField(%d)", int(f))
	}
	return scalarFieldNames[f]
}

// Packed indices into EcosimData.GroupStats. The leading axis of the packed
// group-statistics array selects the statistic.
const (
	PackedBiomass = iota
	PackedBiomassRel
	PackedYield
	PackedYieldRel
	PackedFeedingTime
	PackedConsumpBiomass
	PackedTotalMort
	PackedPredMort
	PackedFishMort
	PackedProdConsump
	PackedAvgWeight
	PackedMortVPred
	PackedMortVFishing
	PackedEcoSysStructure
	PackedTL

	NumPackedStats
)

// EcosimData exposes the engine's internal Ecosim result storage. The
// arrays are live engine buffers: they are valid only until the next Ecosim
// run and must be copied before further use.
type EcosimData struct {
	// GroupStats packs the per-group time series; shape
	// (NumPackedStats, nGroups, nMonths).
	GroupStats *Array
	// Catch holds landings per (fleet, group, month).
	Catch *Array
	// Ecosystem-level monthly series, each shaped (nMonths).
	TLC              *Array
	FIB              *Array
	Kemptons         *Array
	ShannonDiversity *Array
}

// TracerData exposes the engine's internal Ecotracer result storage, valid
// only until the next Ecotracer run.
//
// Both arrays are shaped (nGroups+2, nMonths+1): row 0 is the environment
// compartment, rows 1..n the functional groups, the final row an unused
// engine spare; column 0 is an unused time-zero placeholder.
type TracerData struct {
	Conc        *Array
	ConcBiomass *Array
}

// Session is a live handle to one engine instance. All group indices are
// 1-based; 0 is invalid.
type Session interface {
	// Model metadata.
	ModelPath() string
	Country() string
	FirstYear() int
	GroupNames() []string
	GroupIndices(names []string) ([]int, error)
	FleetNames() []string
	NGroups() int
	NConsumers() int
	NProducers() int

	// Simulation horizon.
	NYears() int
	SetNYears(years int) error

	// Scenario management.
	NewEcosimScenario(name, description string) error
	LoadEcosimScenario(name string) error
	RemoveEcosimScenario(name string) error
	NewEcotracerScenario(name, description string) error
	LoadEcotracerScenario(name string) error
	RemoveEcotracerScenario(name string) error

	// Batched parameter access. SetGroupValues writes values[i] to group
	// groups[i] in one engine crossing.
	SetGroupValues(f GroupField, values []float64, groups []int) error
	GroupValues(f GroupField, groups []int) ([]float64, error)
	SetScalarValue(f ScalarField, value float64) error
	ScalarValue(f ScalarField) (float64, error)
	SetVulnerability(prey, pred int, value float64) error
	Vulnerability(prey, pred int) (float64, error)

	// AddForcingFunction registers a forcing series and returns its
	// 1-based index for use with FieldEnvInflowForcingIdx.
	AddForcingFunction(name string, values []float64) (int, error)

	// Stage triggers. A false return signals a failed run; the engine's
	// internal result buffers are then unreliable for that scenario.
	RunEcosim() bool
	RunEcotracer() bool

	// Internal result storage access, gated on the owning stage having run.
	EcosimResults() (*EcosimData, error)
	TracerResults() (*TracerData, error)

	State() StateFlags
	Close() error
}

// SessionFactory constructs a private session from a model file path. Used
// to hand workers a recipe instead of a live (non-shareable) handle.
type SessionFactory func(modelPath string) (Session, error)
