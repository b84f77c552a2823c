package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingAction counts its invocations and returns err
type countingAction struct {
	calls atomic.Int32
	err   error
}

func (a *countingAction) Invoke(context.Context, *types.Node) error {
	a.calls.Add(1)
	return a.err
}

func passing() *countingAction { return &countingAction{} }

func failing(msg string) *countingAction { return &countingAction{err: errors.New(msg)} }

func newTestExecutor(t *testing.T) (*TreeExecutor, *events.Recorder) {
	t.Helper()
	rec := events.NewRecorder()
	return NewTreeExecutor(ExecutorConfig{
		Publisher: rec,
		Log:       log.NewLogger(log.DiscardHandler()),
	}), rec
}

// requireAllTerminal checks that no node was left not started or running
func requireAllTerminal(t *testing.T, root *types.Node) {
	t.Helper()
	root.Walk(func(n *types.Node) bool {
		require.True(t, n.Status().IsTerminal(), "node %s left in status %s", n.Path(), n.Status())
		return true
	})
}

func TestExecuteAllPassing(t *testing.T) {
	executor, rec := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassAll)
	tc := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
	setup := tc.AddBefore(types.NodeSpec{Name: "setup", Action: passing()})
	s1 := tc.AddChild(types.NodeSpec{Name: "s1", Action: passing()})
	s2 := tc.AddChild(types.NodeSpec{Name: "s2", Action: passing()})
	teardown := tc.AddAfter(types.NodeSpec{Name: "teardown", Action: passing()})

	require.NoError(t, executor.Execute(context.Background(), root))

	requireAllTerminal(t, root)
	root.Walk(func(n *types.Node) bool {
		assert.Equal(t, types.StatusPassed, n.Status(), n.Path())
		assert.Nil(t, n.Err())
		return true
	})
	assert.Equal(t, 0, executor.Store().Len())

	assert.Equal(t, []events.Kind{
		events.KindContainerStarted,
		events.KindContainerStarted,
		events.KindBeforeStarted, events.KindBeforeCompleted,
		events.KindTargetStarted, events.KindTargetCompleted,
		events.KindTargetStarted, events.KindTargetCompleted,
		events.KindAfterStarted, events.KindAfterCompleted,
		events.KindContainerFinished,
		events.KindContainerFinished,
	}, rec.Kinds())

	for _, n := range []*types.Node{root, tc, setup, s1, s2, teardown} {
		kinds := rec.ForNode(n)
		require.Len(t, kinds, 2, n.Path())
		assert.True(t, kinds[0].IsStart())
		assert.False(t, kinds[1].IsStart())
	}
}

func TestStartedEventSeesRunningNode(t *testing.T) {
	executor, rec := newTestExecutor(t)
	root := types.CreateRoot("suite", types.BypassNone)
	step := root.AddChild(types.NodeSpec{Name: "s1", Action: failing("boom")})

	require.NoError(t, executor.Execute(context.Background(), root))

	var stepEvents []events.Event
	for _, e := range rec.Events() {
		if e.Node == step {
			stepEvents = append(stepEvents, e)
		}
	}
	require.Len(t, stepEvents, 2)
	assert.Equal(t, types.StatusRunning, stepEvents[0].Status)
	assert.Equal(t, types.StatusFailed, stepEvents[1].Status)
}

func TestFailureReportedToParentLedger(t *testing.T) {
	executor, _ := newTestExecutor(t)

	var sawFailure bool
	var queryErr error
	probe := types.ActionFunc(func(ctx context.Context, node *types.Node) error {
		sawFailure, queryErr = executor.Store().HasFailure(node.Parent())
		return nil
	})

	root := types.CreateRoot("suite", types.BypassNone)
	tc := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
	s1 := tc.AddChild(types.NodeSpec{Name: "s1", Action: failing("boom")})
	s2 := tc.AddChild(types.NodeSpec{Name: "s2", Action: probe})

	require.NoError(t, executor.Execute(context.Background(), root))

	require.NoError(t, queryErr)
	assert.True(t, sawFailure, "the parent's ledger records the failed child")

	assert.Equal(t, types.StatusFailed, s1.Status())
	assert.Equal(t, "boom", s1.Failure().Message)
	assert.Equal(t, types.StatusPassed, s2.Status(), "children keep running without the iteration flag")
	assert.Equal(t, types.StatusFailed, tc.Status())
	assert.ErrorIs(t, tc.Err(), s1.Err())
	assert.Equal(t, types.StatusFailed, root.Status())
}

func TestFailFastSkipsRemainingChildren(t *testing.T) {
	executor, rec := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassChildrenAfterIterationError)
	tc := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
	first := failing("boom")
	second := passing()
	s1 := tc.AddChild(types.NodeSpec{Name: "s1", Action: first})
	s2 := tc.AddChild(types.NodeSpec{Name: "s2", Action: second})
	nested := s2.AddChild(types.NodeSpec{Name: "nested", Action: passing()})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(0), second.calls.Load())
	assert.Equal(t, types.StatusFailed, s1.Status())
	assert.Equal(t, types.StatusSkipped, s2.Status())
	assert.Equal(t, types.StatusSkipped, nested.Status())
	assert.Empty(t, rec.ForNode(s2), "skipped nodes publish nothing")
	assert.Equal(t, types.StatusFailed, tc.Status())
	requireAllTerminal(t, root)
}

func TestNoSkippingWithoutIterationFlag(t *testing.T) {
	executor, _ := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassBeforeOnBypassMode|types.BypassAfterOnBypassMode)
	second := passing()
	s1 := root.AddChild(types.NodeSpec{Name: "s1", Action: failing("boom")})
	s2 := root.AddChild(types.NodeSpec{Name: "s2", Action: second})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, types.StatusFailed, s1.Status())
	assert.Equal(t, types.StatusPassed, s2.Status())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Equal(t, types.StatusFailed, root.Status())
}

func TestHookFailureDoesNotStopSiblingHooks(t *testing.T) {
	executor, rec := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassAll)
	tc := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
	second := passing()
	h1 := tc.AddBefore(types.NodeSpec{Name: "h1", Action: failing("setup failed")})
	h2 := tc.AddBefore(types.NodeSpec{Name: "h2", Action: second})
	step := tc.AddChild(types.NodeSpec{Name: "s1", Action: passing()})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, types.StatusFailed, h1.Status())
	assert.Equal(t, types.StatusPassed, h2.Status())
	assert.Equal(t, int32(1), second.calls.Load())
	assert.Equal(t, []events.Kind{events.KindBeforeStarted, events.KindBeforeFailed}, rec.ForNode(h1))

	// the hook failure sits in the test case ledger, so iteration stops at once
	assert.Equal(t, types.StatusSkipped, step.Status())
	assert.Equal(t, types.StatusFailed, tc.Status())
	assert.Equal(t, "setup failed", tc.Failure().Message)
}

func TestAfterHooksRunOnFailureWithoutAfterFlag(t *testing.T) {
	executor, rec := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassChildrenAfterIterationError)
	cleanup := passing()
	step := root.AddChild(types.NodeSpec{Name: "s1", Action: failing("boom")})
	after := root.AddAfter(types.NodeSpec{Name: "cleanup", Action: cleanup})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, types.StatusFailed, step.Status())
	assert.Equal(t, int32(1), cleanup.calls.Load())
	assert.Equal(t, []events.Kind{events.KindAfterStarted, events.KindAfterCompleted}, rec.ForNode(after))
}

func TestOwnTargetFailureActivatesBypassForAfterHooks(t *testing.T) {
	executor, _ := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassAfterOnBypassMode)
	cleanup := passing()
	step := root.AddChild(types.NodeSpec{Name: "s1", Action: failing("boom")})
	after := step.AddAfter(types.NodeSpec{Name: "cleanup", Action: cleanup})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, types.StatusFailed, step.Status())
	assert.Equal(t, types.StatusSkipped, after.Status())
	assert.Equal(t, int32(0), cleanup.calls.Load())
}

func TestInheritedBypassSkipsBeforeHooks(t *testing.T) {
	executor, _ := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassNone)
	root.AddChild(types.NodeSpec{Name: "tc1", Role: types.RoleTestCase, Action: failing("boom")})
	tc2 := root.AddChild(types.NodeSpec{Name: "tc2", Role: types.RoleTestCase, Bypass: types.Bypass(types.BypassBeforeOnBypassMode)})
	setup := passing()
	hook := tc2.AddBefore(types.NodeSpec{Name: "setup", Action: setup})
	body := passing()
	tc2.AddChild(types.NodeSpec{Name: "s1", Action: body})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, types.StatusSkipped, hook.Status(), "the suite already recorded a failure")
	assert.Equal(t, int32(0), setup.calls.Load())
	assert.Equal(t, int32(1), body.calls.Load())
	assert.Equal(t, types.StatusPassed, tc2.Status())
	assert.Equal(t, types.StatusFailed, root.Status())
}

// TestTestCaseWithFailingStep runs a test case with one before hook, a
// failing step, a second step and one after hook under a suite with every
// bypass mode set.
func TestTestCaseWithFailingStep(t *testing.T) {
	executor, rec := newTestExecutor(t)

	suite := types.CreateRoot("suite", types.BypassAll)
	tc := suite.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
	before := tc.AddBefore(types.NodeSpec{Name: "before", Action: passing()})
	step1 := tc.AddChild(types.NodeSpec{Name: "step1", Action: failing("assertion failed")})
	counted := passing()
	step2 := tc.AddChild(types.NodeSpec{Name: "step2", Action: counted})
	afterAction := passing()
	after := tc.AddAfter(types.NodeSpec{Name: "after", Action: afterAction})

	require.NoError(t, executor.Execute(context.Background(), suite))

	var got []string
	for _, e := range rec.Within(tc) {
		got = append(got, fmt.Sprintf("%s:%s", e.Node.Name, e.Kind))
	}
	assert.Equal(t, []string{
		"tc:ContainerStarted",
		"before:BeforeStarted",
		"before:BeforeCompleted",
		"step1:TargetStarted",
		"step1:TargetFailed",
		"tc:ContainerFinished",
	}, got)

	assert.Equal(t, types.StatusPassed, before.Status())
	assert.Equal(t, types.StatusFailed, step1.Status())
	assert.Equal(t, types.StatusSkipped, step2.Status())
	assert.Equal(t, int32(0), counted.calls.Load())
	assert.Equal(t, types.StatusSkipped, after.Status())
	assert.Equal(t, int32(0), afterAction.calls.Load())
	assert.Equal(t, types.StatusFailed, tc.Status())
	assert.Equal(t, types.StatusFailed, suite.Status())
	assert.Equal(t, "assertion failed", suite.Failure().Message)
}

func TestPanicInActionBecomesFailure(t *testing.T) {
	executor, _ := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassNone)
	step := root.AddChild(types.NodeSpec{Name: "s1", Action: types.ActionFunc(func(context.Context, *types.Node) error {
		panic("kaboom")
	})})
	next := root.AddChild(types.NodeSpec{Name: "s2", Action: passing()})

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, types.StatusFailed, step.Status())
	assert.Contains(t, step.Failure().Message, "kaboom")
	assert.Equal(t, types.StatusPassed, next.Status())
}

func TestMultipleFailuresAreAggregated(t *testing.T) {
	executor, _ := newTestExecutor(t)

	root := types.CreateRoot("suite", types.BypassNone)
	s1 := root.AddChild(types.NodeSpec{Name: "s1", Action: failing("first")})
	s2 := root.AddChild(types.NodeSpec{Name: "s2", Action: failing("second")})

	require.NoError(t, executor.Execute(context.Background(), root))

	failure := root.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, "2 failures", failure.Message)
	assert.ErrorIs(t, root.Err(), s1.Err())
	assert.ErrorIs(t, root.Err(), s2.Err())
}

func TestContextCancellationSkipsRemainingChildren(t *testing.T) {
	executor, _ := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := types.CreateRoot("suite", types.BypassNone)
	s1 := root.AddChild(types.NodeSpec{Name: "s1", Action: types.ActionFunc(func(context.Context, *types.Node) error {
		cancel()
		return nil
	})})
	rest := passing()
	s2 := root.AddChild(types.NodeSpec{Name: "s2", Action: rest})

	require.NoError(t, executor.Execute(ctx, root))

	assert.Equal(t, types.StatusPassed, s1.Status())
	assert.Equal(t, types.StatusSkipped, s2.Status())
	assert.Equal(t, int32(0), rest.calls.Load())
	assert.Equal(t, types.StatusFailed, root.Status())
	assert.ErrorIs(t, root.Err(), context.Canceled)
}

func TestContractViolations(t *testing.T) {
	t.Run("executing a tree twice", func(t *testing.T) {
		executor, _ := newTestExecutor(t)
		root := types.CreateRoot("suite", types.BypassNone)
		require.NoError(t, executor.Execute(context.Background(), root))

		err := executor.Execute(context.Background(), root)
		require.ErrorIs(t, err, ErrContractViolation)
		assert.ErrorIs(t, err, types.ErrIllegalTransition)
		assert.Equal(t, 0, executor.Store().Len())
	})

	t.Run("ledger entry already open", func(t *testing.T) {
		executor, _ := newTestExecutor(t)
		root := types.CreateRoot("suite", types.BypassNone)
		require.NoError(t, executor.Store().Start(root.RuntimeID))

		err := executor.Execute(context.Background(), root)
		require.ErrorIs(t, err, ErrLedgerExists)
		assert.Equal(t, types.StatusNotStarted, root.Status())
	})

	t.Run("nil root", func(t *testing.T) {
		executor, _ := newTestExecutor(t)
		assert.ErrorIs(t, executor.Execute(context.Background(), nil), ErrContractViolation)
	})
}

func TestConcurrentRootsShareExecutor(t *testing.T) {
	executor, _ := newTestExecutor(t)

	for iteration := 0; iteration < 20; iteration++ {
		const roots = 16
		trees := make([]*types.Node, roots)
		for i := range trees {
			root := types.CreateRoot(fmt.Sprintf("suite-%d", i), types.BypassAll)
			tc := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
			tc.AddBefore(types.NodeSpec{Name: "setup", Action: passing()})
			if i%2 == 0 {
				tc.AddChild(types.NodeSpec{Name: "s1", Action: failing("even")})
			} else {
				tc.AddChild(types.NodeSpec{Name: "s1", Action: passing()})
			}
			tc.AddChild(types.NodeSpec{Name: "s2", Action: passing()})
			tc.AddAfter(types.NodeSpec{Name: "teardown", Action: passing()})
			trees[i] = root
		}

		var wg sync.WaitGroup
		for _, root := range trees {
			wg.Add(1)
			go func(root *types.Node) {
				defer wg.Done()
				assert.NoError(t, executor.Execute(context.Background(), root))
			}(root)
		}
		wg.Wait()

		for i, root := range trees {
			requireAllTerminal(t, root)
			if i%2 == 0 {
				assert.Equal(t, types.StatusFailed, root.Status(), root.Name)
			} else {
				assert.Equal(t, types.StatusPassed, root.Status(), root.Name)
			}
		}
		require.Equal(t, 0, executor.Store().Len())
	}
}

func TestStatisticsPublisherCountsExecutedNodes(t *testing.T) {
	stats := types.NewStatistic()
	executor := NewTreeExecutor(ExecutorConfig{
		Publisher: NewStatisticsPublisher(stats),
		Log:       log.NewLogger(log.DiscardHandler()),
	})

	root := types.CreateRoot("suite", types.BypassAll)
	tc := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})
	tc.AddBefore(types.NodeSpec{Name: "setup", Action: passing()})
	tc.AddChild(types.NodeSpec{Name: "s1", Action: failing("boom")})
	tc.AddChild(types.NodeSpec{Name: "s2", Action: passing()})
	stats.CountDiscovered(root)

	require.NoError(t, executor.Execute(context.Background(), root))

	assert.Equal(t, 1, stats.Discovered(types.StageTest))
	assert.Equal(t, 1, stats.Executed(types.StageTest))
	assert.Equal(t, 2, stats.Discovered(types.StageStep))
	assert.Equal(t, 1, stats.Executed(types.StageStep), "skipped steps are not executed")
}
