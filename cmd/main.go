package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	treerunner "github.com/ethereum-optimism/infra/op-treerunner"
	"github.com/ethereum-optimism/infra/op-treerunner/exitcodes"
	"github.com/ethereum-optimism/infra/op-treerunner/flags"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-treerunner"
	app.Usage = "Hierarchical test plan runner"
	app.Description = "op-treerunner executes trees of test cases, steps and hooks described by plan files"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}

	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

// exitCode maps typed errors to process exit codes, unknown errors count as
// test failures
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case treerunner.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case treerunner.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		return exitcodes.TestFailure
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := treerunner.NewConfig(ctx, log)
	if err != nil {
		return nil, treerunner.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	svc, err := treerunner.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, treerunner.NewRuntimeError(fmt.Errorf("failed to create tree runner: %w", err))
	}
	return svc, nil
}
