package scen

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/results"
	"github.com/ecoscen/ecoscen/scen/table"
)

// Runner drives one session through a contiguous range of scenario table
// rows: apply the row's variable bindings, trigger the stage chain, collect
// results into the manager's stores. A failed engine run NaN-fills that
// scenario's result windows and the batch continues.
type Runner struct {
	sess    engine.Session
	comp    *Compositor
	tbl     *table.Table
	mgr     *results.Manager
	tracer  bool
	logName string
}

// NewRunner binds a session, bound compositor, scenario table and result
// manager into a runner. The manager's variable set decides whether each
// scenario triggers Ecotracer or stops after Ecosim.
func NewRunner(sess engine.Session, comp *Compositor, tbl *table.Table, mgr *results.Manager, names []string) *Runner {
	return &Runner{
		sess:    sess,
		comp:    comp,
		tbl:     tbl,
		mgr:     mgr,
		tracer:  results.NeedsTracer(names),
		logName: "runner",
	}
}

func (r *Runner) setLogName(name string) { r.logName = name }

// RunRange executes scenarios table rows first..last inclusive. It returns
// the row indices whose engine run failed; other errors abort the range.
func (r *Runner) RunRange(ctx context.Context, first, last int) ([]int, error) {
	var failed []int
	for row := first; row <= last; row++ {
		select {
		case <-ctx.Done():
			return failed, ctx.Err()
		default:
		}
		ok, err := r.runOne(row)
		if err != nil {
			return failed, err
		}
		if !ok {
			failed = append(failed, row)
		}
	}
	return failed, nil
}

// RunOne executes a single table row.
func (r *Runner) RunOne(ctx context.Context, row int) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}
	return r.runOne(row)
}

func (r *Runner) runOne(row int) (bool, error) {
	if row < 0 || row >= r.tbl.NScenarios() {
		return false, engine.Configf("scenario row %d out of range [0, %d)", row, r.tbl.NScenarios())
	}
	if err := r.comp.ApplyVariables(r.sess, r.tbl, row); err != nil {
		return false, fmt.Errorf("scenario row %d: %w", row, err)
	}

	var ran bool
	if r.tracer {
		ran = r.sess.RunEcotracer()
	} else {
		ran = r.sess.RunEcosim()
	}
	if !ran {
		logrus.Warnf("%s: engine run failed for scenario row %d; results set to NaN", r.logName, row)
		r.mgr.MarkFailed(row)
		return false, nil
	}
	if err := r.mgr.Collect(row); err != nil {
		return false, fmt.Errorf("collecting scenario row %d: %w", row, err)
	}
	return true, nil
}
