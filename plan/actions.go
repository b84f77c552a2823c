package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum-optimism/infra/op-treerunner/scope"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

var exportNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// commandWaitDelay bounds how long output is drained after a command is killed
const commandWaitDelay = 2 * time.Second

// CommandAction runs a shell command. Values of the enclosing test case
// scope are passed to it as environment variables.
type CommandAction struct {
	Command string
	Dir     string
	Export  string         // scope key receiving the trimmed stdout
	Scopes  *scope.Manager // optional
}

var _ types.Action = (*CommandAction)(nil)

func (a *CommandAction) Invoke(ctx context.Context, node *types.Node) error {
	var sc *scope.Scope
	if a.Scopes != nil {
		if s, err := a.Scopes.ForNode(node); err == nil {
			sc = s
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", a.Command)
	cmd.Dir = a.Dir
	cmd.WaitDelay = commandWaitDelay
	cmd.Env = os.Environ()
	if sc != nil {
		for _, key := range sc.Keys() {
			if v, ok := sc.Get(key); ok {
				cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%v", key, v))
			}
		}
	}

	tail := newTailBuffer(0)
	var stdout bytes.Buffer
	cmd.Stdout = a.stdoutWriter(tail, &stdout)
	cmd.Stderr = tail

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(stripansi.Strip(tail.String()))
		if tail.Truncated() {
			output = "...\n" + output
		}
		if output == "" {
			return fmt.Errorf("command %q failed: %w", a.Command, err)
		}
		return fmt.Errorf("command %q failed: %w\n%s", a.Command, err, output)
	}

	if a.Export != "" {
		if sc == nil {
			return fmt.Errorf("cannot export %s: no test case scope", a.Export)
		}
		sc.Set(a.Export, strings.TrimSpace(stripansi.Strip(stdout.String())))
	}
	return nil
}

// stdoutWriter keeps the full stdout only when it is exported
func (a *CommandAction) stdoutWriter(tail *tailBuffer, stdout *bytes.Buffer) io.Writer {
	if a.Export == "" {
		return tail
	}
	return io.MultiWriter(tail, stdout)
}

// SleepAction waits for Duration or until the context is done
type SleepAction struct {
	Duration time.Duration
}

func (a SleepAction) Invoke(ctx context.Context, _ *types.Node) error {
	t := time.NewTimer(a.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailAction always fails with Message
type FailAction struct {
	Message string
}

func (a FailAction) Invoke(context.Context, *types.Node) error {
	return errors.New(a.Message)
}

// noopAction passes
type noopAction struct{}

func (noopAction) Invoke(context.Context, *types.Node) error { return nil }

// timeoutAction bounds the wrapped action by timeout
type timeoutAction struct {
	action  types.Action
	timeout time.Duration
}

func withTimeout(action types.Action, timeout time.Duration) types.Action {
	if timeout <= 0 {
		return action
	}
	return &timeoutAction{action: action, timeout: timeout}
}

func (a *timeoutAction) Invoke(ctx context.Context, node *types.Node) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	err := a.action.Invoke(ctx, node)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", a.timeout, err)
	}
	return err
}

// buildAction turns a step definition into an action
func buildAction(step StepConfig, defaultTimeout time.Duration, dir string, scopes *scope.Manager) (types.Action, error) {
	set := 0
	for _, present := range []bool{step.Run != "", step.Sleep != nil, step.Fail != ""} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("step %q: run, sleep and fail are mutually exclusive", step.Name)
	}
	if step.Export != "" {
		if step.Run == "" {
			return nil, fmt.Errorf("step %q: export requires run", step.Name)
		}
		if !exportNameRegex.MatchString(step.Export) {
			return nil, fmt.Errorf("step %q: invalid export name %q", step.Name, step.Export)
		}
	}

	var action types.Action
	switch {
	case step.Run != "":
		action = &CommandAction{Command: step.Run, Dir: dir, Export: step.Export, Scopes: scopes}
	case step.Sleep != nil:
		action = SleepAction{Duration: *step.Sleep}
	case step.Fail != "":
		action = FailAction{Message: step.Fail}
	default:
		return noopAction{}, nil
	}

	timeout := defaultTimeout
	if step.Timeout != nil {
		timeout = *step.Timeout
	}
	return withTimeout(action, timeout), nil
}
