package treerunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-treerunner/metrics"
	"github.com/ethereum-optimism/infra/op-treerunner/plan"
	"github.com/ethereum-optimism/infra/op-treerunner/reporting"
	"github.com/ethereum-optimism/infra/op-treerunner/runner"
	"github.com/ethereum-optimism/infra/op-treerunner/scope"
	"github.com/ethereum-optimism/infra/op-treerunner/service"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// ErrNoTestCases is returned when the plans hold no test case and empty runs
// are not allowed.
var ErrNoTestCases = errors.New("no test cases found in plans")

// treeRunner implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &treeRunner{}

// treeRunner loads the configured plans and executes them, once or every
// RunInterval.
type treeRunner struct {
	ctx     context.Context
	config  *Config
	version string
	service *service.Service // nil when no health endpoint is configured
	out     io.Writer

	mu     sync.Mutex
	result *runner.RunResult

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*treeRunner, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if len(config.Plans) == 0 {
		return nil, errors.New("at least one plan is required")
	}
	if config.Log == nil {
		return nil, errors.New("logger is required")
	}
	if shutdownCallback == nil {
		shutdownCallback = func(error) {}
	}

	config.Log.Debug("Creating tree runner with config",
		"plans", config.Plans,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"concurrency", config.Concurrency,
		"defaultTimeout", config.DefaultTimeout)

	var svc *service.Service
	if config.HealthzAddr != "" {
		svc = service.New(service.Config{
			HealthzAddr:    config.HealthzAddr,
			MetricsEnabled: config.MetricsEnabled,
			MetricsAddr:    config.MetricsAddr,
		}, config.Log)
	}

	return &treeRunner{
		ctx:              ctx,
		config:           config,
		version:          version,
		service:          svc,
		out:              os.Stdout,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the plans immediately, then every RunInterval unless in
// run-once mode.
// Start implements the cliapp.Lifecycle interface.
func (t *treeRunner) Start(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			t.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	t.ctx = ctx
	t.done = make(chan struct{})
	t.running.Store(true)

	if t.service != nil {
		if err := t.service.Start(ctx); err != nil {
			t.running.Store(false)
			return NewRuntimeError(err)
		}
	}

	if t.config.RunOnce {
		t.config.Log.Info("Starting op-treerunner in run-once mode", "version", t.version)
	} else {
		t.config.Log.Info("Starting op-treerunner in continuous mode", "version", t.version, "interval", t.config.RunInterval)
	}

	result, err := t.runPlans(ctx)
	if err != nil {
		t.config.Log.Error("Runtime error running plans", "error", err)
		return err
	}

	if t.config.RunOnce {
		t.config.Log.Info("Plans completed, exiting (run-once mode)")
		if result.Status == types.StatusFailed {
			t.config.Log.Warn("Run-once run completed with failures, returning exit code 1")
			return NewTestFailureError(result.RunID, result.Stats.Tests.Failed, result.Stats.Tests.Total)
		}
		go func() {
			t.shutdownCallback(nil)
		}()
		return nil
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-time.After(t.config.RunInterval):
				if !t.running.Load() {
					t.config.Log.Debug("Service stopped, exiting periodic runner")
					return
				}
				t.config.Log.Info("Running periodic plans")
				if _, err := t.runPlans(ctx); err != nil {
					t.config.Log.Error("Error running periodic plans", "error", err)
				}

			case <-t.done:
				t.config.Log.Debug("Done signal received, stopping periodic runner")
				return

			case <-ctx.Done():
				t.config.Log.Debug("Context canceled, stopping periodic runner")
				t.running.Store(false)
				return
			}
		}
	}()
	return nil
}

// runPlans loads the plans into fresh trees and executes them. Failing nodes
// are reported through the result; the error is a RuntimeError.
func (t *treeRunner) runPlans(ctx context.Context) (*runner.RunResult, error) {
	scopes := scope.NewManager(t.config.Log)
	loader := plan.NewLoader(plan.Config{
		Log:            t.config.Log,
		DefaultTimeout: t.config.DefaultTimeout,
		Scopes:         scopes,
	})

	roots, stats, err := loader.LoadAll(t.config.Plans)
	if err != nil {
		metrics.RecordErrorDetails("plan load", err)
		return nil, NewRuntimeError(fmt.Errorf("failed to load plans: %w", err))
	}
	if stats.Discovered(types.StageTest) == 0 && !t.config.AllowEmpty {
		return nil, NewRuntimeError(ErrNoTestCases)
	}

	// Statistics first, the summary printer reads the executed counts.
	publisher := events.NewMulticaster(runner.NewStatisticsPublisher(stats))
	if t.config.PrintSummary {
		publisher.Register(reporting.NewSummaryPrinter(reporting.SummaryConfig{
			Out:       t.out,
			Statistic: stats,
			Color:     t.out == os.Stdout,
			Log:       t.config.Log,
		}))
	}
	publisher.Register(scopes, metrics.Publisher{}, events.NewLogPublisher(t.config.Log))

	r, err := runner.NewRunner(runner.Config{
		Publisher:   publisher,
		Concurrency: t.config.Concurrency,
		Log:         t.config.Log,
	})
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create runner: %w", err))
	}

	result, err := r.Run(ctx, roots)
	if err != nil {
		metrics.RecordErrorDetails("run", err)
		return nil, NewRuntimeError(err)
	}

	reporting.RenderTable(t.out, result)
	metrics.RecordRun(result.Status, result.Stats.Tests.Passed, result.Stats.Tests.Failed,
		result.Stats.Tests.Skipped, result.Duration)

	t.mu.Lock()
	t.result = result
	t.mu.Unlock()

	t.config.Log.Info("Run completed", "run_id", result.RunID, "status", result.Status,
		"executed_tests", stats.Executed(types.StageTest), "discovered_tests", stats.Discovered(types.StageTest))
	return result, nil
}

// LastResult returns the result of the most recent completed run
func (t *treeRunner) LastResult() *runner.RunResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Stop stops the periodic runner and the health endpoint.
// Stop implements the cliapp.Lifecycle interface.
func (t *treeRunner) Stop(ctx context.Context) error {
	t.config.Log.Info("Stopping op-treerunner")

	if !t.running.Load() {
		t.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	t.running.Store(false)
	close(t.done)

	if t.service != nil {
		t.service.Shutdown()
	}

	t.config.Log.Info("op-treerunner stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (t *treeRunner) Stopped() bool {
	return !t.running.Load()
}

// WaitForShutdown blocks until the periodic runner has exited or ctx is done
func (t *treeRunner) WaitForShutdown(ctx context.Context) error {
	waitCh := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
