package engine

import (
	"fmt"
	"strings"
)

// StateFlags is a snapshot of the engine's high-level state, mirroring the
// engine's own stage monitor. It is attached to stage errors so failures
// carry enough context to diagnose which prerequisite was missed.
type StateFlags struct {
	ModelLoaded bool

	EcopathRan bool

	EcosimScenarioLoaded bool
	EcosimRan            bool

	EcotracerScenarioLoaded bool
	EcotracerRan            bool
}

// Ran reports whether the given stage has completed since the last
// invalidating change.
func (s StateFlags) Ran(stage Stage) bool {
	switch stage {
	case StageEcopath:
		return s.EcopathRan
	case StageEcosim:
		return s.EcosimRan
	case StageEcotracer:
		return s.EcotracerRan
	}
	return false
}

// Summary renders the flags as a multi-line report for error messages.
func (s StateFlags) Summary() string {
	var b strings.Builder
	line := func(name string, v bool) {
		fmt.Fprintf(&b, "  %-28s %t\n", name+":", v)
	}
	b.WriteString("engine state:\n")
	line("model loaded", s.ModelLoaded)
	line("ecopath ran", s.EcopathRan)
	line("ecosim scenario loaded", s.EcosimScenarioLoaded)
	line("ecosim ran", s.EcosimRan)
	line("ecotracer scenario loaded", s.EcotracerScenarioLoaded)
	line("ecotracer ran", s.EcotracerRan)
	return b.String()
}
