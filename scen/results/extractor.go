package results

import (
	"fmt"

	"github.com/ecoscen/ecoscen/scen/engine"
)

// Catalog bindings into the engine's packed group-statistics array.
const (
	packedBiomass        = engine.PackedBiomass
	packedYield          = engine.PackedYield
	packedConsumpBiomass = engine.PackedConsumpBiomass
	packedTotalMort      = engine.PackedTotalMort
	packedTL             = engine.PackedTL
)

// ExtractorID identifies one physical engine array. Variables backed by the
// same array share one extractor so the array is read once per scenario.
type ExtractorID int

const (
	ExtractorEcosimGroupStats ExtractorID = iota
	ExtractorTracerConc
	ExtractorTracerConcBiomass
	ExtractorTLC
	ExtractorFIB
	ExtractorKemptons
	ExtractorShannon
	ExtractorFleetCatch
)

// DropFlag trims one slice off an axis when copying out of the engine.
// Which axes are trimmed is fixed per extractor, never inferred from data.
type DropFlag int

const (
	NoDrop DropFlag = iota
	DropFirst
	DropLast
)

// Extractor copies one engine-internal result array into an owned buffer.
// The first Refresh allocates the buffer from the source shape; subsequent
// calls overwrite it in place, so a batch of thousands of scenarios reuses
// one allocation.
type Extractor struct {
	id     ExtractorID
	source func(engine.Session) (*engine.Array, error)
	drops  []DropFlag
	buf    *engine.Array
}

// NewExtractor builds the extractor for one engine array binding.
func NewExtractor(id ExtractorID) (*Extractor, error) {
	e := &Extractor{id: id}
	switch id {
	case ExtractorEcosimGroupStats:
		e.source = func(s engine.Session) (*engine.Array, error) {
			d, err := s.EcosimResults()
			if err != nil {
				return nil, err
			}
			return d.GroupStats, nil
		}
	case ExtractorTracerConc:
		// Tracer arrays carry an unused trailing group row and a time-zero
		// placeholder column.
		e.drops = []DropFlag{DropLast, DropFirst}
		e.source = func(s engine.Session) (*engine.Array, error) {
			d, err := s.TracerResults()
			if err != nil {
				return nil, err
			}
			return d.Conc, nil
		}
	case ExtractorTracerConcBiomass:
		e.drops = []DropFlag{DropLast, DropFirst}
		e.source = func(s engine.Session) (*engine.Array, error) {
			d, err := s.TracerResults()
			if err != nil {
				return nil, err
			}
			return d.ConcBiomass, nil
		}
	case ExtractorTLC:
		e.source = ecosimSeries(func(d *engine.EcosimData) *engine.Array { return d.TLC })
	case ExtractorFIB:
		e.source = ecosimSeries(func(d *engine.EcosimData) *engine.Array { return d.FIB })
	case ExtractorKemptons:
		e.source = ecosimSeries(func(d *engine.EcosimData) *engine.Array { return d.Kemptons })
	case ExtractorShannon:
		e.source = ecosimSeries(func(d *engine.EcosimData) *engine.Array { return d.ShannonDiversity })
	case ExtractorFleetCatch:
		e.source = ecosimSeries(func(d *engine.EcosimData) *engine.Array { return d.Catch })
	default:
		return nil, fmt.Errorf("unknown extractor id %d", int(id))
	}
	return e, nil
}

func ecosimSeries(pick func(*engine.EcosimData) *engine.Array) func(engine.Session) (*engine.Array, error) {
	return func(s engine.Session) (*engine.Array, error) {
		d, err := s.EcosimResults()
		if err != nil {
			return nil, err
		}
		return pick(d), nil
	}
}

// ID returns the extractor's array binding.
func (e *Extractor) ID() ExtractorID { return e.id }

// Refresh copies the engine's current internal storage into the owned
// buffer. The engine array is live and will be overwritten by the next run
// of its stage; after Refresh the extractor holds a durable copy. If the
// stage has not run, the error is returned and the buffer is untouched.
func (e *Extractor) Refresh(sess engine.Session) error {
	src, err := e.source(sess)
	if err != nil {
		return err
	}
	shape := trimmedShape(src.Shape, e.drops)
	if e.buf == nil {
		e.buf = engine.NewArray(shape...)
	} else if !shapeEqual(e.buf.Shape, shape) {
		return engine.Configf("engine result shape changed from %v to %v between refreshes", e.buf.Shape, shape)
	}
	copyTrimmed(e.buf, src, e.drops)
	return nil
}

// Result returns the owned buffer. Valid after the first successful
// Refresh; the same backing array is returned every call.
func (e *Extractor) Result() (*engine.Array, error) {
	if e.buf == nil {
		return nil, fmt.Errorf("extractor buffer not populated; call Refresh after a run")
	}
	return e.buf, nil
}

// PackedResult returns a view of one logical variable multiplexed over the
// buffer's leading axis.
func (e *Extractor) PackedResult(index int) (*engine.Array, error) {
	buf, err := e.Result()
	if err != nil {
		return nil, err
	}
	return buf.SubArray(index), nil
}

func trimmedShape(shape []int, drops []DropFlag) []int {
	out := make([]int, len(shape))
	copy(out, shape)
	for i, d := range drops {
		if d != NoDrop {
			out[i]--
		}
	}
	return out
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// copyTrimmed copies src into dst, skipping the dropped leading/trailing
// slice on each flagged axis. dst must already have the trimmed shape.
func copyTrimmed(dst, src *engine.Array, drops []DropFlag) {
	rank := len(src.Shape)
	starts := make([]int, rank)
	for i, d := range drops {
		if d == DropFirst {
			starts[i] = 1
		}
	}
	srcStrides := src.Strides()
	dstStrides := dst.Strides()

	var walk func(axis, srcOff, dstOff int)
	walk = func(axis, srcOff, dstOff int) {
		if axis == rank-1 {
			copy(dst.Data[dstOff:dstOff+dst.Shape[axis]], src.Data[srcOff+starts[axis]:])
			return
		}
		for i := 0; i < dst.Shape[axis]; i++ {
			walk(axis+1, srcOff+(i+starts[axis])*srcStrides[axis], dstOff+i*dstStrides[axis])
		}
	}
	if rank == 0 {
		return
	}
	walk(0, 0, 0)
}
