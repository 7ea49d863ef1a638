package engine

import "fmt"

// ConfigurationError reports invalid caller-supplied configuration: unknown
// parameter names, malformed scenario tables, shape mismatches. These fail
// fast at the call site, before any engine write.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return e.Msg }

// Configf builds a ConfigurationError with fmt-style formatting.
func Configf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// StageNotReadyError reports an attempt to read a stage's results before
// that stage has run. It carries a snapshot of the engine state flags at
// the time of the failure.
type StageNotReadyError struct {
	Stage Stage
	State StateFlags
}

func (e *StageNotReadyError) Error() string {
	return fmt.Sprintf("%s must be run before accessing its results\n%s", e.Stage, e.State.Summary())
}

// NoScenarioError reports an operation that requires a loaded scenario for
// a subsystem that has none.
type NoScenarioError struct {
	Stage Stage
	State StateFlags
}

func (e *NoScenarioError) Error() string {
	return fmt.Sprintf("no %s scenario loaded\n%s", e.Stage, e.State.Summary())
}

// LookupError reports a named entity (scenario, group, forcing function)
// that does not exist.
type LookupError struct {
	Kind string
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IndexError reports a 1-based index outside [1, N]. Index 0 is always
// invalid.
type IndexError struct {
	What  string
	Index int
	N     int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s index %d out of range [1, %d]", e.What, e.Index, e.N)
}
