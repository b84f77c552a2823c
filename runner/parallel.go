package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
)

// rootWork is one root handed to a worker
type rootWork struct {
	index int
	root  *types.Node
}

// rootWorkResult carries the contract error, if any, of an executed root
type rootWorkResult struct {
	work rootWork
	err  error
}

// ParallelExecutor executes independent roots over a fixed pool of workers
// sharing one TreeExecutor.
type ParallelExecutor struct {
	executor    *TreeExecutor
	concurrency int
	log         log.Logger
}

// NewParallelExecutor creates a parallel executor. A concurrency of 0 selects
// DefaultConcurrency.
func NewParallelExecutor(executor *TreeExecutor, concurrency int, logger log.Logger) *ParallelExecutor {
	if executor == nil {
		panic("executor cannot be nil")
	}
	if concurrency < 0 {
		panic("concurrency cannot be negative")
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = log.New()
	}

	if concurrency > MaxReasonableConcurrency {
		logger.Warn("Very high concurrency requested", "concurrency", concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}

	return &ParallelExecutor{
		executor:    executor,
		concurrency: concurrency,
		log:         logger.New("component", "parallel-executor"),
	}
}

// Concurrency returns the number of workers
func (pe *ParallelExecutor) Concurrency() int {
	return pe.concurrency
}

// ExecuteRoots runs every root to completion. Roots that could not be
// dispatched before ctx was done are marked skipped. The returned error joins
// the contract violations of every root, nil when there were none.
func (pe *ParallelExecutor) ExecuteRoots(ctx context.Context, roots []*types.Node) error {
	if len(roots) == 0 {
		pe.log.Debug("No roots to execute")
		return nil
	}

	workers := min(pe.concurrency, len(roots))
	pe.log.Debug("Starting parallel tree execution", "roots", len(roots), "workers", workers)

	bufferSize := min(workers*2, 100)
	workChan := make(chan rootWork, bufferSize)
	resultChan := make(chan rootWorkResult, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go pe.worker(ctx, i, &wg, workChan, resultChan)
	}

	go func() {
		defer close(workChan)
		for i, root := range roots {
			select {
			case workChan <- rootWork{index: i, root: root}:
			case <-ctx.Done():
				pe.log.Debug("Context cancelled while dispatching roots", "dispatched", i)
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var errs []error
	for res := range resultChan {
		if res.err != nil {
			pe.log.Error("Tree execution failed", "root", res.work.root.Name, "error", res.err)
			errs = append(errs, fmt.Errorf("root %s: %w", res.work.root.Name, res.err))
		}
	}

	for _, root := range roots {
		if root.Status() == types.StatusNotStarted {
			pe.log.Warn("Root not executed", "root", root.Name, "skipped", root.SkipTree())
		}
	}

	return errors.Join(errs...)
}

// worker executes roots until workChan is closed or ctx is done
func (pe *ParallelExecutor) worker(ctx context.Context, id int, wg *sync.WaitGroup, workChan <-chan rootWork, resultChan chan<- rootWorkResult) {
	defer wg.Done()

	workerID := fmt.Sprintf("worker-%d", id)
	pe.log.Debug("Worker starting", "workerID", workerID)
	defer pe.log.Debug("Worker exiting", "workerID", workerID)

	for {
		select {
		case work, ok := <-workChan:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				// left not started, skipped by ExecuteRoots
				continue
			}
			pe.log.Debug("Worker executing root", "workerID", workerID, "root", work.root.Name)
			// resultChan is drained until every worker exits, so this never blocks forever
			resultChan <- rootWorkResult{work: work, err: pe.executor.Execute(ctx, work.root)}
		case <-ctx.Done():
			pe.log.Debug("Worker received context cancellation", "workerID", workerID)
			return
		}
	}
}
