package scen

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Pool fans a scenario batch out over N workers, each rebuilding a private
// engine environment from the shared Recipe. Scenario rows are scattered
// through a jobs channel; result windows in the shared stores are disjoint
// per scenario, so workers never contend on them.
type Pool struct {
	recipe  Recipe
	workers int
}

// NewPool validates the recipe and sizes the pool. workers must be >= 1;
// size the count with Config.EffectiveWorkers upstream.
func NewPool(recipe Recipe, workers int) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("pool needs at least one worker, got %d", workers)
	}
	if recipe.Factory == nil {
		return nil, fmt.Errorf("pool recipe has no session factory")
	}
	if recipe.Table == nil || recipe.Table.NScenarios() == 0 {
		return nil, fmt.Errorf("pool recipe has no scenarios to run")
	}
	if workers > recipe.Table.NScenarios() {
		workers = recipe.Table.NScenarios()
	}
	return &Pool{recipe: recipe, workers: workers}, nil
}

// Run executes every scenario row in the recipe's table and returns the rows
// whose engine run failed, sorted. Worker setup or apply errors cancel the
// remaining jobs and are returned after all workers have shut down.
func (p *Pool) Run(ctx context.Context) ([]int, error) {
	n := p.recipe.Table.NScenarios()
	logrus.Infof("running %d scenario(s) on %d worker(s)", n, p.workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	failures := make(chan int, n)
	errs := make(chan error, p.workers)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := newWorker(id, p.recipe)
			defer w.close()
			if err := w.init(); err != nil {
				errs <- err
				cancel()
				return
			}
			if err := w.run(ctx, jobs, failures); err != nil {
				if ctx.Err() == nil || err != ctx.Err() {
					errs <- err
				}
				cancel()
			}
		}(i)
	}

feed:
	for row := 0; row < n; row++ {
		select {
		case jobs <- row:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(failures)
	close(errs)

	sweepWorkerCopies(p.recipe.SourceModelPath)

	if err := <-errs; err != nil {
		return nil, err
	}
	var failed []int
	for row := range failures {
		failed = append(failed, row)
	}
	sort.Ints(failed)
	return failed, nil
}
