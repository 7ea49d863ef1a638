package scen

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ecoscen/ecoscen/scen/engine"
	"github.com/ecoscen/ecoscen/scen/results"
	"github.com/ecoscen/ecoscen/scen/table"
)

// WorkerState tracks a worker's lifecycle. Transitions only move forward.
type WorkerState int

const (
	WorkerUninitialized WorkerState = iota
	WorkerInitializing
	WorkerReady
	WorkerRunning
	WorkerShutdown
)

func (s WorkerState) String() string {
	switch s {
	case WorkerUninitialized:
		return "uninitialized"
	case WorkerInitializing:
		return "initializing"
	case WorkerReady:
		return "ready"
	case WorkerRunning:
		return "running"
	case WorkerShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("WorkerState(%d)", int(s))
}

// Recipe holds everything a worker needs to rebuild a private engine
// environment from scratch. Sessions cannot cross goroutines, so a recipe
// carries construction inputs instead of a live handle. Stores are the only
// shared mutable state; workers write disjoint scenario windows into them.
type Recipe struct {
	SourceModelPath   string
	EcosimScenario    string
	EcotracerScenario string
	NYears            int

	Factory    engine.SessionFactory
	Compositor *Compositor
	Variables  []string
	Table      *table.Table
	Stores     map[string]*results.Store

	CleanupRetries int
	CleanupBackoff time.Duration
}

// worker owns one private session built from a recipe and the model-file
// copy backing it.
type worker struct {
	id     int
	recipe Recipe
	state  WorkerState

	copyPath string
	sess     engine.Session
	runner   *Runner
}

func newWorker(id int, recipe Recipe) *worker {
	return &worker{id: id, recipe: recipe, state: WorkerUninitialized}
}

// init builds the worker's private environment: model copy, session,
// scenarios, constant bindings, shared-store result manager.
func (w *worker) init() error {
	w.state = WorkerInitializing

	w.copyPath = workerCopyPath(w.recipe.SourceModelPath, w.id)
	if err := copyFile(w.recipe.SourceModelPath, w.copyPath); err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}

	sess, err := w.recipe.Factory(w.copyPath)
	if err != nil {
		return fmt.Errorf("worker %d: opening session: %w", w.id, err)
	}
	w.sess = sess

	if err := w.loadScenarios(); err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	if w.recipe.NYears > 0 {
		if err := sess.SetNYears(w.recipe.NYears); err != nil {
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
	}

	comp := w.recipe.Compositor.Clone()
	if err := comp.ApplyConstants(sess); err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}

	mgr, err := results.NewSharedManager(sess, w.recipe.Variables, w.recipe.Table, w.recipe.Stores)
	if err != nil {
		return fmt.Errorf("worker %d: %w", w.id, err)
	}
	w.runner = NewRunner(sess, comp, w.recipe.Table, mgr, w.recipe.Variables)
	w.runner.setLogName(fmt.Sprintf("worker %d", w.id))

	w.state = WorkerReady
	return nil
}

// loadScenarios attaches the recipe's named scenarios, creating them when
// the model copy does not carry them.
func (w *worker) loadScenarios() error {
	if err := w.sess.LoadEcosimScenario(w.recipe.EcosimScenario); err != nil {
		if err := w.sess.NewEcosimScenario(w.recipe.EcosimScenario, "worker scenario"); err != nil {
			return fmt.Errorf("preparing Ecosim scenario: %w", err)
		}
	}
	if w.recipe.EcotracerScenario == "" {
		return nil
	}
	if err := w.sess.LoadEcotracerScenario(w.recipe.EcotracerScenario); err != nil {
		if err := w.sess.NewEcotracerScenario(w.recipe.EcotracerScenario, "worker scenario"); err != nil {
			return fmt.Errorf("preparing Ecotracer scenario: %w", err)
		}
	}
	return nil
}

// run consumes scenario rows until the jobs channel closes, reporting failed
// engine runs on the failures channel.
func (w *worker) run(ctx context.Context, jobs <-chan int, failures chan<- int) error {
	w.state = WorkerRunning
	for row := range jobs {
		ok, err := w.runner.RunOne(ctx, row)
		if err != nil {
			return err
		}
		if !ok {
			failures <- row
		}
	}
	return nil
}

// close tears the worker down: session first, then its model copy.
func (w *worker) close() {
	w.state = WorkerShutdown
	if w.sess != nil {
		if err := w.sess.Close(); err != nil {
			logrus.Warnf("worker %d: closing session: %v", w.id, err)
		}
	}
	if w.copyPath != "" {
		if err := removeWithRetry(w.copyPath, w.recipe.CleanupRetries, w.recipe.CleanupBackoff); err != nil {
			logrus.Warnf("worker %d: %v", w.id, err)
		}
	}
}
