package scen

import "github.com/ecoscen/ecoscen/scen/engine"

// Mode records how a parameter obtains its value for a batch run.
type Mode int

const (
	// ModeUnset leaves the engine default in place.
	ModeUnset Mode = iota
	// ModeConstant applies one fixed value before any scenario runs.
	ModeConstant
	// ModeVariable reads a fresh value from a scenario table column per run.
	ModeVariable
)

func (m Mode) String() string {
	switch m {
	case ModeUnset:
		return "unset"
	case ModeConstant:
		return "constant"
	case ModeVariable:
		return "variable"
	}
	return "unknown"
}

// Parameter is one addressable engine knob in a ParameterManager's catalog.
// Exactly one of three shapes applies: a per-group field (Group >= 1), an
// environment scalar (IsEnv), or a vulnerability entry (Prey and Pred >= 1).
type Parameter struct {
	Name  string
	IsEnv bool

	// Group is the 1-based group index for per-group fields, 0 otherwise.
	Group int
	Field engine.GroupField

	Scalar engine.ScalarField

	// Prey and Pred are 1-based indices for vulnerability entries, 0 otherwise.
	Prey int
	Pred int

	Mode  Mode
	Value float64

	// Column names the scenario table column a variable binding reads.
	// The name is resolved to an integer column index once, when the
	// manager lays out its apply plan against a concrete table.
	Column string
}

// IsVulnerability reports whether the parameter addresses a vulnerability
// matrix entry.
func (p *Parameter) IsVulnerability() bool { return p.Prey > 0 && p.Pred > 0 }

// IsSet reports whether the parameter will be written to the engine at all.
func (p *Parameter) IsSet() bool { return p.Mode != ModeUnset }

// SetConstant binds the parameter to a fixed value. A later SetConstant or
// SetVariable call replaces the binding; the last call wins.
func (p *Parameter) SetConstant(v float64) {
	p.Mode = ModeConstant
	p.Value = v
	p.Column = ""
}

// SetVariable binds the parameter to a scenario table column.
func (p *Parameter) SetVariable(column string) {
	p.Mode = ModeVariable
	p.Column = column
	p.Value = 0
}

// Unset returns the parameter to the engine default.
func (p *Parameter) Unset() {
	p.Mode = ModeUnset
	p.Value = 0
	p.Column = ""
}
