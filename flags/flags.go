package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_TREERUNNER"

var (
	Plans = &cli.StringSliceFlag{
		Name:     "plans",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLANS"),
		Usage:    "Path to a plan file (eg. 'checkout.yaml'). May be given more than once",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between plan runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of plan roots executed in parallel",
		Action: func(ctx *cli.Context, v int) error {
			return validateConcurrency(v)
		},
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout applied to every step without its own timeout. 0 disables it",
	}
	AllowEmpty = &cli.BoolFlag{
		Name:    "allow-empty",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALLOW_EMPTY"),
		Usage:   "Treat plans without any test case as a successful run",
	}
	PrintSummary = &cli.BoolFlag{
		Name:    "print-summary",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PRINT_SUMMARY"),
		Usage:   "Print a summary after every finished test case",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the health endpoint. Empty disables it",
	}
)

var requiredFlags = []cli.Flag{
	Plans,
}

var optionalFlags = []cli.Flag{
	RunInterval,
	Concurrency,
	DefaultTimeout,
	AllowEmpty,
	PrintSummary,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

func validateConcurrency(v int) error {
	if v < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", v)
	}
	return nil
}
