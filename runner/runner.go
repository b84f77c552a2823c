package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunResult is the outcome of executing a set of roots
type RunResult struct {
	RunID    string
	Roots    []*types.Node
	Status   types.NodeStatus
	Duration time.Duration
	Stats    ResultStats
}

// StatusCounts tallies nodes of one kind by terminal status
type StatusCounts struct {
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

func (c *StatusCounts) add(status types.NodeStatus) {
	c.Total++
	switch status {
	case types.StatusPassed:
		c.Passed++
	case types.StatusFailed:
		c.Failed++
	case types.StatusSkipped:
		c.Skipped++
	}
}

// ResultStats tracks test case and step statistics of a run
type ResultStats struct {
	Tests     StatusCounts
	Steps     StatusCounts
	StartTime time.Time
	EndTime   time.Time
}

// TreeRunner runs sets of execution trees
type TreeRunner interface {
	Run(ctx context.Context, roots []*types.Node) (*RunResult, error)
}

// Config holds configuration for creating a new runner
type Config struct {
	Publisher   events.Publisher
	Store       *ExecutionStore // optional, a fresh store is created when nil
	Concurrency int             // roots executed at once, 0 selects DefaultConcurrency
	Log         log.Logger
}

// Runner executes roots as a single run
type Runner struct {
	executor *TreeExecutor
	parallel *ParallelExecutor
	log      log.Logger
	tracer   trace.Tracer
}

var _ TreeRunner = (*Runner)(nil)

// NewRunner creates a new runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", cfg.Concurrency)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	executor := NewTreeExecutor(ExecutorConfig{
		Store:     cfg.Store,
		Publisher: cfg.Publisher,
		Log:       cfg.Log,
	})
	return &Runner{
		executor: executor,
		parallel: NewParallelExecutor(executor, cfg.Concurrency, cfg.Log),
		log:      cfg.Log,
		tracer:   otel.Tracer("tree runner"),
	}, nil
}

// Executor returns the tree executor used by the runner
func (r *Runner) Executor() *TreeExecutor {
	return r.executor
}

// Run executes every root and summarises the outcome. The error is non-nil
// only when the execution contract was broken.
func (r *Runner) Run(ctx context.Context, roots []*types.Node) (*RunResult, error) {
	runID := uuid.New().String()
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("run %s", runID), trace.WithAttributes(
		attribute.Int("run.roots", len(roots)),
	))
	defer span.End()

	r.log.Info("Starting run", "run_id", runID, "roots", len(roots), "concurrency", r.parallel.Concurrency())

	if err := r.parallel.ExecuteRoots(ctx, roots); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	result := &RunResult{
		RunID:    runID,
		Roots:    roots,
		Duration: time.Since(start),
		Stats:    collectStats(roots),
	}
	result.Stats.StartTime = start
	result.Stats.EndTime = time.Now()
	result.Status = determineRunStatus(roots)

	span.SetAttributes(attribute.String("run.status", result.Status.String()))
	r.log.Info("Run finished", "run_id", runID, "status", result.Status, "duration", result.Duration,
		"tests", result.Stats.Tests.Total, "failed", result.Stats.Tests.Failed)
	return result, nil
}

func collectStats(roots []*types.Node) ResultStats {
	var stats ResultStats
	for _, root := range roots {
		root.Walk(func(n *types.Node) bool {
			switch n.Role {
			case types.RoleTestCase:
				stats.Tests.add(n.Status())
			case types.RoleStep:
				stats.Steps.add(n.Status())
			}
			return true
		})
	}
	return stats
}

// determineRunStatus folds the root statuses: skipped when nothing ran,
// failed when any root failed, passed otherwise
func determineRunStatus(roots []*types.Node) types.NodeStatus {
	allSkipped := true
	anyFailed := false
	for _, root := range roots {
		status := root.Status()
		if status != types.StatusSkipped {
			allSkipped = false
		}
		if status == types.StatusFailed {
			anyFailed = true
		}
	}
	if allSkipped {
		return types.StatusSkipped
	}
	if anyFailed {
		return types.StatusFailed
	}
	return types.StatusPassed
}
