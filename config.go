package treerunner

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-treerunner/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	Plans          []string      // Absolute paths of the plan files
	RunInterval    time.Duration // Interval between runs
	RunOnce        bool          // Exit after the first run
	Concurrency    int           // Roots executed in parallel
	DefaultTimeout time.Duration // Step timeout when neither the step nor the plan sets one
	AllowEmpty     bool          // A run without test cases is a success
	PrintSummary   bool          // Print a summary after every test case
	HealthzAddr    string        // Empty disables the health endpoint
	MetricsEnabled bool
	MetricsAddr    string
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	plans, err := resolvePlans(ctx.StringSlice(flags.Plans.Name))
	if err != nil {
		return nil, err
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval cannot be negative: %s", runInterval)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		Plans:          plans,
		RunInterval:    runInterval,
		RunOnce:        runInterval == 0,
		Concurrency:    ctx.Int(flags.Concurrency.Name),
		DefaultTimeout: ctx.Duration(flags.DefaultTimeout.Name),
		AllowEmpty:     ctx.Bool(flags.AllowEmpty.Name),
		PrintSummary:   ctx.Bool(flags.PrintSummary.Name),
		HealthzAddr:    ctx.String(flags.HealthzAddr.Name),
		MetricsEnabled: metricsCfg.Enabled,
		MetricsAddr:    net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort)),
		Log:            log,
	}, nil
}

// resolvePlans turns every plan path into an absolute one, dropping duplicates
func resolvePlans(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one plan is required")
	}
	seen := make(map[string]struct{}, len(paths))
	resolved := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			return nil, errors.New("plan path cannot be empty")
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", p, err)
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		resolved = append(resolved, abs)
	}
	return resolved, nil
}
