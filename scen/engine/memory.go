package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Engine-side defaults for group fields that have not been written since
// scenario creation.
var groupFieldDefaults = [NumGroupFields]float64{
	FieldDensityDepCatchability: 1.0,
	FieldFeedingTimeAdjRate:     0.5,
	FieldMaxRelFeedingTime:      2.0,
	FieldMaxRelPB:               2.0,
	FieldPredEffectFeedingTime:  0.5,
	FieldOtherMortFeedingTime:   1.0,
	FieldQBMaxQBio:              1000.0,
	FieldSwitchingPower:         0.0,
	// Ecotracer fields default to zero.
}

const defaultVulnerability = 2.0

// ecosimScenario holds the settable state owned by one Ecosim scenario.
type ecosimScenario struct {
	description string
	values      map[GroupField][]float64
	vuln        [][]float64 // [prey-1][pred-1]
	touched     map[GroupField]bool
}

// tracerScenario holds the settable state owned by one Ecotracer scenario.
type tracerScenario struct {
	description string
	values      map[GroupField][]float64
	scalars     [NumScalarFields]float64
	touched     map[GroupField]bool
}

type forcingFunction struct {
	name   string
	values []float64
}

// memSession is the in-memory reference engine. It implements Session with
// deterministic closed-form dynamics: the point is a faithful rendition of
// the engine's *contract* (stateful, non-reentrant, ephemeral internal
// result buffers), not of EwE's numerics.
type memSession struct {
	path  string
	model *Model

	years     int
	consumers int
	producers int
	fleets    []FleetSpec

	ecosimScens map[string]*ecosimScenario
	tracerScens map[string]*tracerScenario
	curEcosim   *ecosimScenario
	curTracer   *tracerScenario

	forcing []forcingFunction

	// Internal result storage, allocated on first run and overwritten in
	// place by every subsequent run.
	ecosimData *EcosimData
	tracerData *TracerData

	state          StateFlags
	warnedBaseline bool
	warnedDefaults bool
	closed         bool
}

// OpenMemorySession loads a YAML model descriptor and opens a reference
// engine session bound to it. It satisfies SessionFactory.
func OpenMemorySession(modelPath string) (Session, error) {
	m, err := LoadModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", modelPath, err)
	}
	s := &memSession{
		path:        modelPath,
		model:       m,
		years:       m.Years,
		fleets:      m.Fleets,
		ecosimScens: make(map[string]*ecosimScenario),
		tracerScens: make(map[string]*tracerScenario),
	}
	for _, g := range m.Groups {
		switch g.Type {
		case GroupConsumer:
			s.consumers++
		case GroupProducer:
			s.producers++
		}
	}
	s.state.ModelLoaded = true
	logrus.Debugf("opened model %q (%d groups, %d fleets) from %s", m.Name, len(m.Groups), len(m.Fleets), modelPath)
	return s, nil
}

func (s *memSession) ModelPath() string { return s.path }
func (s *memSession) Country() string   { return s.model.Country }
func (s *memSession) FirstYear() int    { return s.model.FirstYear }
func (s *memSession) NGroups() int      { return len(s.model.Groups) }
func (s *memSession) NConsumers() int   { return s.consumers }
func (s *memSession) NProducers() int   { return s.producers }
func (s *memSession) NYears() int       { return s.years }

func (s *memSession) GroupNames() []string {
	names := make([]string, len(s.model.Groups))
	for i, g := range s.model.Groups {
		names[i] = g.Name
	}
	return names
}

func (s *memSession) GroupIndices(names []string) ([]int, error) {
	all := s.GroupNames()
	idx := make([]int, len(names))
	for i, n := range names {
		found := -1
		for j, g := range all {
			if g == n {
				found = j + 1
				break
			}
		}
		if found < 0 {
			return nil, &LookupError{Kind: "functional group", Name: n}
		}
		idx[i] = found
	}
	return idx, nil
}

func (s *memSession) FleetNames() []string {
	names := make([]string, len(s.fleets))
	for i, f := range s.fleets {
		names[i] = f.Name
	}
	return names
}

func (s *memSession) SetNYears(years int) error {
	if years < 1 {
		return Configf("simulation duration must be >= 1 year, got %d", years)
	}
	s.years = years
	// Result buffers are sized from the horizon; force reallocation.
	s.ecosimData = nil
	s.tracerData = nil
	s.state.EcosimRan = false
	s.state.EcotracerRan = false
	return nil
}

func newEcosimScenario(description string, n int) *ecosimScenario {
	sc := &ecosimScenario{
		description: description,
		values:      make(map[GroupField][]float64),
		vuln:        make([][]float64, n),
		touched:     make(map[GroupField]bool),
	}
	for f := FieldDensityDepCatchability; f <= FieldSwitchingPower; f++ {
		vals := make([]float64, n)
		floats.AddConst(groupFieldDefaults[f], vals)
		sc.values[f] = vals
	}
	for i := range sc.vuln {
		row := make([]float64, n)
		floats.AddConst(defaultVulnerability, row)
		sc.vuln[i] = row
	}
	return sc
}

func newTracerScenario(description string, n int) *tracerScenario {
	sc := &tracerScenario{
		description: description,
		values:      make(map[GroupField][]float64),
		touched:     make(map[GroupField]bool),
	}
	for f := FieldInitialConc; f <= FieldExcretionRate; f++ {
		sc.values[f] = make([]float64, n)
	}
	return sc
}

func (s *memSession) NewEcosimScenario(name, description string) error {
	if name == "" {
		return Configf("scenario name is required")
	}
	if _, ok := s.ecosimScens[name]; ok {
		return Configf("ecosim scenario %q already exists", name)
	}
	sc := newEcosimScenario(description, s.NGroups())
	s.ecosimScens[name] = sc
	s.curEcosim = sc
	s.state.EcosimScenarioLoaded = true
	s.state.EcosimRan = false
	return nil
}

func (s *memSession) LoadEcosimScenario(name string) error {
	sc, ok := s.ecosimScens[name]
	if !ok {
		return &LookupError{Kind: "ecosim scenario", Name: name}
	}
	s.curEcosim = sc
	s.state.EcosimScenarioLoaded = true
	s.state.EcosimRan = false
	return nil
}

func (s *memSession) RemoveEcosimScenario(name string) error {
	sc, ok := s.ecosimScens[name]
	if !ok {
		return &LookupError{Kind: "ecosim scenario", Name: name}
	}
	delete(s.ecosimScens, name)
	if s.curEcosim == sc {
		s.curEcosim = nil
		s.state.EcosimScenarioLoaded = false
		s.state.EcosimRan = false
	}
	return nil
}

func (s *memSession) NewEcotracerScenario(name, description string) error {
	if name == "" {
		return Configf("scenario name is required")
	}
	if _, ok := s.tracerScens[name]; ok {
		return Configf("ecotracer scenario %q already exists", name)
	}
	sc := newTracerScenario(description, s.NGroups())
	s.tracerScens[name] = sc
	s.curTracer = sc
	s.state.EcotracerScenarioLoaded = true
	s.state.EcotracerRan = false
	return nil
}

func (s *memSession) LoadEcotracerScenario(name string) error {
	sc, ok := s.tracerScens[name]
	if !ok {
		return &LookupError{Kind: "ecotracer scenario", Name: name}
	}
	s.curTracer = sc
	s.state.EcotracerScenarioLoaded = true
	s.state.EcotracerRan = false
	return nil
}

func (s *memSession) RemoveEcotracerScenario(name string) error {
	sc, ok := s.tracerScens[name]
	if !ok {
		return &LookupError{Kind: "ecotracer scenario", Name: name}
	}
	delete(s.tracerScens, name)
	if s.curTracer == sc {
		s.curTracer = nil
		s.state.EcotracerScenarioLoaded = false
		s.state.EcotracerRan = false
	}
	return nil
}

// fieldStore resolves the scenario storage owning the field, failing when
// that subsystem has no loaded scenario.
func (s *memSession) fieldStore(f GroupField) (map[GroupField][]float64, map[GroupField]bool, error) {
	if f < 0 || f >= NumGroupFields {
		return nil, nil, Configf("unknown group field %d", int(f))
	}
	if f.Stage() == StageEcosim {
		if s.curEcosim == nil {
			return nil, nil, &NoScenarioError{Stage: StageEcosim, State: s.state}
		}
		return s.curEcosim.values, s.curEcosim.touched, nil
	}
	if s.curTracer == nil {
		return nil, nil, &NoScenarioError{Stage: StageEcotracer, State: s.state}
	}
	return s.curTracer.values, s.curTracer.touched, nil
}

func (s *memSession) checkGroups(groups []int) error {
	n := s.NGroups()
	for _, g := range groups {
		if g < 1 || g > n {
			return &IndexError{What: "functional group", Index: g, N: n}
		}
	}
	return nil
}

func (s *memSession) SetGroupValues(f GroupField, values []float64, groups []int) error {
	if len(values) != len(groups) {
		return Configf("values and groups must have equal length, got %d and %d", len(values), len(groups))
	}
	store, touched, err := s.fieldStore(f)
	if err != nil {
		return err
	}
	if err := s.checkGroups(groups); err != nil {
		return err
	}
	dst := store[f]
	for i, g := range groups {
		dst[g-1] = values[i]
	}
	touched[f] = true
	return nil
}

func (s *memSession) GroupValues(f GroupField, groups []int) ([]float64, error) {
	store, _, err := s.fieldStore(f)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		out := make([]float64, s.NGroups())
		copy(out, store[f])
		return out, nil
	}
	if err := s.checkGroups(groups); err != nil {
		return nil, err
	}
	out := make([]float64, len(groups))
	for i, g := range groups {
		out[i] = store[f][g-1]
	}
	return out, nil
}

func (s *memSession) SetScalarValue(f ScalarField, value float64) error {
	if f < 0 || f >= NumScalarFields {
		return Configf("unknown scalar field %d", int(f))
	}
	if s.curTracer == nil {
		return &NoScenarioError{Stage: StageEcotracer, State: s.state}
	}
	if f == FieldEnvInflowForcingIdx {
		idx := int(value)
		if idx < 0 || idx > len(s.forcing) {
			return &IndexError{What: "forcing function", Index: idx, N: len(s.forcing)}
		}
	}
	s.curTracer.scalars[f] = value
	return nil
}

func (s *memSession) ScalarValue(f ScalarField) (float64, error) {
	if f < 0 || f >= NumScalarFields {
		return 0, Configf("unknown scalar field %d", int(f))
	}
	if s.curTracer == nil {
		return 0, &NoScenarioError{Stage: StageEcotracer, State: s.state}
	}
	return s.curTracer.scalars[f], nil
}

func (s *memSession) SetVulnerability(prey, pred int, value float64) error {
	if s.curEcosim == nil {
		return &NoScenarioError{Stage: StageEcosim, State: s.state}
	}
	if err := s.checkGroups([]int{prey, pred}); err != nil {
		return err
	}
	s.curEcosim.vuln[prey-1][pred-1] = value
	return nil
}

func (s *memSession) Vulnerability(prey, pred int) (float64, error) {
	if s.curEcosim == nil {
		return 0, &NoScenarioError{Stage: StageEcosim, State: s.state}
	}
	if err := s.checkGroups([]int{prey, pred}); err != nil {
		return 0, err
	}
	return s.curEcosim.vuln[prey-1][pred-1], nil
}

func (s *memSession) AddForcingFunction(name string, values []float64) (int, error) {
	if name == "" {
		return 0, Configf("forcing function name is required")
	}
	if len(values) == 0 {
		return 0, Configf("forcing function %q has no values", name)
	}
	vals := make([]float64, len(values))
	copy(vals, values)
	s.forcing = append(s.forcing, forcingFunction{name: name, values: vals})
	return len(s.forcing), nil
}

func (s *memSession) State() StateFlags { return s.state }

func (s *memSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = StateFlags{}
	s.ecosimData = nil
	s.tracerData = nil
	logrus.Debugf("closed model session for %s", s.path)
	return nil
}

// --- run stages ---

func (s *memSession) nMonths() int { return s.years * 12 }

func (s *memSession) warnOnFirstRun() {
	if !s.warnedBaseline {
		s.warnedBaseline = true
		for _, g := range s.model.Groups {
			if g.Type == GroupConsumer && g.PB > g.QB {
				logrus.Warnf("baseline may be unbalanced: group %q has P/B %.3f > Q/B %.3f", g.Name, g.PB, g.QB)
			}
		}
	}
	if !s.warnedDefaults {
		s.warnedDefaults = true
		var untouched []string
		for f := GroupField(0); f < NumGroupFields; f++ {
			store, touched, err := s.fieldStore(f)
			if err != nil || store == nil {
				continue
			}
			if !touched[f] {
				untouched = append(untouched, f.String())
			}
		}
		if len(untouched) > 0 {
			sort.Strings(untouched)
			logrus.Warnf("parameters left at engine defaults: %v", untouched)
		}
	}
}

func (s *memSession) RunEcosim() bool {
	if s.closed || s.curEcosim == nil {
		return false
	}
	s.warnOnFirstRun()
	s.runEcosimInto(s.ensureEcosimData())
	s.state.EcopathRan = true
	s.state.EcosimRan = true
	return true
}

func (s *memSession) RunEcotracer() bool {
	if s.closed || s.curEcosim == nil || s.curTracer == nil {
		return false
	}
	// Running the tracer drives the whole chain: mass balance, dynamic
	// stage, then contaminant tracing over the dynamic trajectory.
	if !s.RunEcosim() {
		return false
	}
	s.runTracerInto(s.ensureTracerData())
	s.state.EcotracerRan = true
	return true
}

func (s *memSession) ensureEcosimData() *EcosimData {
	nG, nM, nF := s.NGroups(), s.nMonths(), len(s.fleets)
	if s.ecosimData == nil {
		s.ecosimData = &EcosimData{
			GroupStats:       NewArray(NumPackedStats, nG, nM),
			Catch:            NewArray(nF, nG, nM),
			TLC:              NewArray(nM),
			FIB:              NewArray(nM),
			Kemptons:         NewArray(nM),
			ShannonDiversity: NewArray(nM),
		}
	}
	return s.ecosimData
}

func (s *memSession) ensureTracerData() *TracerData {
	nG, nM := s.NGroups(), s.nMonths()
	if s.tracerData == nil {
		s.tracerData = &TracerData{
			Conc:        NewArray(nG+2, nM+1),
			ConcBiomass: NewArray(nG+2, nM+1),
		}
	}
	return s.tracerData
}

// fishMort sums baseline fleet catch rates for group g (0-based).
func (s *memSession) fishMort(g int) float64 {
	name := s.model.Groups[g].Name
	total := 0.0
	for _, f := range s.fleets {
		total += f.CatchRates[name]
	}
	return total
}

func (s *memSession) trophicLevel(g int) float64 {
	grp := s.model.Groups[g]
	if grp.Type != GroupConsumer {
		return 1.0
	}
	return 2.0 + 0.5*float64(g%3)
}

// runEcosimInto fills the internal Ecosim buffers in place. The dynamics
// are simple closed forms chosen so every settable field influences the
// trajectory deterministically.
func (s *memSession) runEcosimInto(d *EcosimData) {
	sc := s.curEcosim
	nG, nM := s.NGroups(), s.nMonths()

	biomass := make([]float64, nG)
	yield := make([]float64, nG)
	props := make([]float64, nG)

	for t := 0; t < nM; t++ {
		tYears := float64(t) / 12.0
		season := math.Sin(2 * math.Pi * float64(t%12) / 12.0)

		for g := 0; g < nG; g++ {
			grp := s.model.Groups[g]
			ftAdj := sc.values[FieldFeedingTimeAdjRate][g]
			maxPB := sc.values[FieldMaxRelPB][g]
			predEff := sc.values[FieldPredEffectFeedingTime][g]
			otherMort := sc.values[FieldOtherMortFeedingTime][g]
			ddc := sc.values[FieldDensityDepCatchability][g]
			qbMax := sc.values[FieldQBMaxQBio][g]
			switching := sc.values[FieldSwitchingPower][g]
			maxFT := sc.values[FieldMaxRelFeedingTime][g]

			vulnMean := stat.Mean(sc.vuln[g], nil)
			fMort := s.fishMort(g)
			qEff := ddc / (1.0 + 0.1*ddc)

			drift := 0.02*grp.PB*(maxPB/2.0-1.0) - 0.1*fMort*qEff - 0.005*otherMort
			b := grp.Biomass * (1.0 + 0.1*ftAdj*season) * math.Exp(drift*tYears)
			biomass[g] = b

			predMort := 0.02 * vulnMean * predEff * (1.0 + 0.05*math.Cos(2*math.Pi*float64(t%12)/12.0))
			totalMort := 0.5*grp.PB + predMort + fMort
			y := fMort * qEff * b
			yield[g] = y

			feedingTime := maxFT / (1.0 + math.Exp(-switching*season))
			consump := grp.QB * b * qbMax / (qbMax + 1.0)
			tl := s.trophicLevel(g) + 0.001*tYears

			set := func(k int, v float64) { d.GroupStats.Set(v, k, g, t) }
			set(PackedBiomass, b)
			set(PackedBiomassRel, b/grp.Biomass)
			set(PackedYield, y)
			set(PackedYieldRel, y/grp.Biomass)
			set(PackedFeedingTime, feedingTime)
			set(PackedConsumpBiomass, consump)
			set(PackedTotalMort, totalMort)
			set(PackedPredMort, predMort)
			set(PackedFishMort, fMort)
			if grp.QB > 0 {
				set(PackedProdConsump, grp.PB/grp.QB)
			} else {
				set(PackedProdConsump, 0)
			}
			set(PackedAvgWeight, b/(1.0+0.01*float64(t)))
			set(PackedMortVPred, predMort*vulnMean/defaultVulnerability)
			set(PackedMortVFishing, fMort*qEff)
			set(PackedTL, tl)

			for fl := range s.fleets {
				d.Catch.Set(s.fleets[fl].CatchRates[grp.Name]*qEff*b, fl, g, t)
			}
		}

		// Ecosystem-level series.
		totalB := floats.Sum(biomass)
		copy(props, biomass)
		floats.Scale(1.0/totalB, props)
		shannon := stat.Entropy(props)

		totalY := floats.Sum(yield)
		tlc := 0.0
		if totalY > 0 {
			for g := 0; g < nG; g++ {
				tlc += yield[g] * s.trophicLevel(g)
			}
			tlc /= totalY
		}

		d.TLC.Set(tlc, t)
		d.FIB.Set(math.Log1p(totalY)-0.01*tYears, t)
		d.Kemptons.Set(float64(nG)/2.0/math.Log1p(floats.Max(biomass)/floats.Min(biomass)), t)
		d.ShannonDiversity.Set(shannon, t)

		for g := 0; g < nG; g++ {
			d.GroupStats.Set(shannon, PackedEcoSysStructure, g, t)
		}
	}
}

// forcingFactor evaluates the configured inflow forcing at month t.
// Index 0 means no forcing.
func (s *memSession) forcingFactor(t int) float64 {
	idx := int(s.curTracer.scalars[FieldEnvInflowForcingIdx])
	if idx < 1 || idx > len(s.forcing) {
		return 1.0
	}
	vals := s.forcing[idx-1].values
	return vals[t%len(vals)]
}

// runTracerInto fills the internal Ecotracer buffers in place. Rows and the
// leading column carry the engine's spare slices (see TracerData).
func (s *memSession) runTracerInto(d *TracerData) {
	sc := s.curTracer
	nG, nM := s.NGroups(), s.nMonths()

	const eps = 1e-9
	envInit := sc.scalars[FieldEnvInitialConc]
	inflow := sc.scalars[FieldEnvBaseInflowRate]
	kEnv := sc.scalars[FieldEnvDecayRate] + sc.scalars[FieldEnvVolumeExchangeLoss]

	for t := 1; t <= nM; t++ {
		tYears := float64(t) / 12.0
		decay := math.Exp(-kEnv * tYears)
		inEff := inflow * s.forcingFactor(t-1)
		cEnv := envInit*decay + inEff*(1.0-decay)/math.Max(kEnv, eps)
		d.Conc.Set(cEnv, 0, t)
		d.ConcBiomass.Set(cEnv, 0, t)

		for g := 0; g < nG; g++ {
			kg := sc.values[FieldPhysicalDecayRate][g] +
				sc.values[FieldMetabolicDecayRate][g] +
				sc.values[FieldExcretionRate][g]
			gDecay := math.Exp(-kg * tYears)
			uptake := sc.values[FieldDirectAbsRate][g]*cEnv + sc.values[FieldImmigConc][g]
			c := sc.values[FieldInitialConc][g]*gDecay + uptake*(1.0-gDecay)/math.Max(kg, eps)
			d.Conc.Set(c, g+1, t)

			b := s.ecosimData.GroupStats.At(PackedBiomass, g, t-1)
			d.ConcBiomass.Set(c/b, g+1, t)
		}
	}
}

func (s *memSession) EcosimResults() (*EcosimData, error) {
	if !s.state.EcosimRan || s.ecosimData == nil {
		return nil, &StageNotReadyError{Stage: StageEcosim, State: s.state}
	}
	return s.ecosimData, nil
}

func (s *memSession) TracerResults() (*TracerData, error) {
	if !s.state.EcotracerRan || s.tracerData == nil {
		return nil, &StageNotReadyError{Stage: StageEcotracer, State: s.state}
	}
	return s.tracerData, nil
}
