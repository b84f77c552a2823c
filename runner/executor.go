package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// phase is the slot a node occupies in its parent
type phase uint8

const (
	phaseTarget phase = iota // root or child
	phaseBefore
	phaseAfter
)

// ExecutorConfig holds the collaborators of a TreeExecutor
type ExecutorConfig struct {
	Store     *ExecutionStore
	Publisher events.Publisher
	Log       log.Logger
}

// TreeExecutor walks execution trees: before hooks, target action, children
// and after hooks of every node, applying the bypass modes of each node.
// A single executor may run many independent roots concurrently.
type TreeExecutor struct {
	store     *ExecutionStore
	publisher events.Publisher
	log       log.Logger
	tracer    trace.Tracer
}

// NewTreeExecutor creates an executor. Missing collaborators are replaced by
// a fresh store, a no-op publisher and a default logger.
func NewTreeExecutor(cfg ExecutorConfig) *TreeExecutor {
	if cfg.Store == nil {
		cfg.Store = NewExecutionStore()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NoOp{}
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &TreeExecutor{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		log:       cfg.Log.New("component", "tree-executor"),
		tracer:    otel.Tracer("tree executor"),
	}
}

// Store returns the failure ledger used by the executor
func (e *TreeExecutor) Store() *ExecutionStore {
	return e.store
}

// Execute runs root and everything beneath it to completion. Test failures
// are reported through node status and events, never as an error: a non-nil
// error means the execution contract was broken and wraps ErrContractViolation.
func (e *TreeExecutor) Execute(ctx context.Context, root *types.Node) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrContractViolation)
	}
	e.log.Debug("Executing tree", "root", root.Name, "id", root.RuntimeID)
	if err := e.executeNode(ctx, root, phaseTarget, false); err != nil {
		e.log.Error("Tree execution aborted", "root", root.Name, "err", err)
		return err
	}
	e.log.Debug("Tree executed", "root", root.Name, "status", root.Status(), "duration", root.Duration())
	return nil
}

// executeNode runs n entered in phase p. inherited is true when the branch
// above n is already in bypass mode.
func (e *TreeExecutor) executeNode(ctx context.Context, n *types.Node, p phase, inherited bool) error {
	if err := e.store.Start(n.RuntimeID); err != nil {
		return err
	}
	defer e.store.Complete(n.RuntimeID)

	if err := n.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrContractViolation, err)
	}

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("%s %s", n.Role, n.Name), trace.WithAttributes(
		attribute.String("node.id", n.RuntimeID),
		attribute.String("node.role", n.Role.String()),
		attribute.String("node.path", n.Path()),
	))
	defer span.End()

	events.Dispatch(e.publisher, startKind(n, p), n)

	if err := e.runHooks(ctx, n, n.BeforeHooks, phaseBefore, types.BypassBeforeOnBypassMode, inherited, false); err != nil {
		return err
	}

	var targetErr error
	if n.Action != nil {
		targetErr = e.invoke(ctx, n)
	}

	interrupted, err := e.runChildren(ctx, n, inherited || targetErr != nil)
	if err != nil {
		return err
	}

	if err := e.runHooks(ctx, n, n.AfterHooks, phaseAfter, types.BypassAfterOnBypassMode, inherited, targetErr != nil); err != nil {
		return err
	}

	failures, err := e.store.Failures(n)
	if err != nil {
		return err
	}

	var nodeErr error
	switch {
	case targetErr != nil:
		nodeErr = targetErr
	case len(failures) > 0:
		nodeErr = aggregateFailures(failures)
	case interrupted != nil:
		nodeErr = fmt.Errorf("execution interrupted: %w", interrupted)
	}

	if nodeErr != nil {
		if err := n.Fail(nodeErr); err != nil {
			return fmt.Errorf("%w: %w", ErrContractViolation, err)
		}
		e.store.ReportFailure(n, n.Err())
		span.RecordError(nodeErr)
		span.SetStatus(codes.Error, nodeErr.Error())
	} else if err := n.Pass(); err != nil {
		return fmt.Errorf("%w: %w", ErrContractViolation, err)
	}
	span.SetAttributes(attribute.String("node.status", n.Status().String()))

	e.store.Complete(n.RuntimeID)
	events.Dispatch(e.publisher, finishKind(n, p, nodeErr != nil), n)
	return nil
}

// runHooks executes hooks owned by n, or skips all of them when bypass mode
// is active and n carries flag. A failing hook does not stop the others.
func (e *TreeExecutor) runHooks(ctx context.Context, n *types.Node, hooks []*types.Node, p phase, flag types.BypassMode, inherited, targetFailed bool) error {
	if len(hooks) == 0 {
		return nil
	}
	hasFailure, err := e.store.HasFailure(n)
	if err != nil {
		return err
	}
	bypass := inherited || targetFailed || hasFailure
	if bypass && n.BypassModes.Has(flag) {
		skipped := 0
		for _, hook := range hooks {
			skipped += hook.SkipTree()
		}
		e.log.Debug("Bypassing hooks", "node", n.Path(), "phase", p, "skipped", skipped)
		return nil
	}
	for _, hook := range hooks {
		if err := e.executeNode(ctx, hook, p, bypass); err != nil {
			return err
		}
	}
	return nil
}

// runChildren executes the children of n in order. It stops early, skipping
// the remaining subtrees, when n stops iterating after a failure or when ctx
// is done; in the latter case the context error is returned as interrupted.
func (e *TreeExecutor) runChildren(ctx context.Context, n *types.Node, inherited bool) (interrupted error, err error) {
	for i, child := range n.Children {
		hasFailure, err := e.store.HasFailure(n)
		if err != nil {
			return nil, err
		}
		if hasFailure && n.BypassModes.Has(types.BypassChildrenAfterIterationError) {
			e.log.Debug("Skipping remaining children after failure", "node", n.Path(), "skipped", skipRemaining(n.Children[i:]))
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.log.Warn("Context done, skipping remaining children", "node", n.Path(), "skipped", skipRemaining(n.Children[i:]))
			return ctxErr, nil
		}
		if err := e.executeNode(ctx, child, phaseTarget, inherited || hasFailure); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// invoke runs the action of n, turning panics into failures
func (e *TreeExecutor) invoke(ctx context.Context, n *types.Node) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in action: %v", rec)
			e.log.Error("Panic in action", "node", n.Path(), "error", err)
		}
	}()
	return n.Action.Invoke(ctx, n)
}

func skipRemaining(nodes []*types.Node) int {
	skipped := 0
	for _, n := range nodes {
		skipped += n.SkipTree()
	}
	return skipped
}

// aggregateFailures builds the failure of a node from what its children and
// hooks reported
func aggregateFailures(failures []error) error {
	if len(failures) == 1 {
		return failures[0]
	}
	return &types.NodeError{
		Message: fmt.Sprintf("%d failures", len(failures)),
		Cause:   errors.Join(failures...),
	}
}

func startKind(n *types.Node, p phase) events.Kind {
	switch p {
	case phaseBefore:
		return events.KindBeforeStarted
	case phaseAfter:
		return events.KindAfterStarted
	}
	if n.IsContainer() {
		return events.KindContainerStarted
	}
	return events.KindTargetStarted
}

func finishKind(n *types.Node, p phase, failed bool) events.Kind {
	switch p {
	case phaseBefore:
		if failed {
			return events.KindBeforeFailed
		}
		return events.KindBeforeCompleted
	case phaseAfter:
		if failed {
			return events.KindAfterFailed
		}
		return events.KindAfterCompleted
	}
	if n.IsContainer() {
		return events.KindContainerFinished
	}
	if failed {
		return events.KindTargetFailed
	}
	return events.KindTargetCompleted
}

func (p phase) String() string {
	switch p {
	case phaseBefore:
		return "before"
	case phaseAfter:
		return "after"
	default:
		return "target"
	}
}
