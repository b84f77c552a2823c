package runner

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionStoreRoundTrip(t *testing.T) {
	store := NewExecutionStore()
	root := types.CreateRoot("suite", types.BypassAll)
	child := root.AddChild(types.NodeSpec{Name: "tc", Role: types.RoleTestCase})

	require.NoError(t, store.Start(root.RuntimeID))
	require.Equal(t, 1, store.Len())

	hasFailure, err := store.HasFailure(root)
	require.NoError(t, err)
	assert.False(t, hasFailure)

	first, err := store.FirstFailure(root)
	require.NoError(t, err)
	assert.Nil(t, first)

	boom := errors.New("boom")
	store.ReportFailure(child, boom)

	hasFailure, err = store.HasFailure(root)
	require.NoError(t, err)
	assert.True(t, hasFailure)

	first, err = store.FirstFailure(root)
	require.NoError(t, err)
	assert.Same(t, boom, first)

	store.Complete(root.RuntimeID)
	assert.Equal(t, 0, store.Len())

	_, err = store.HasFailure(root)
	require.ErrorIs(t, err, ErrNoLedgerEntry)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestExecutionStoreKeepsEveryFailure(t *testing.T) {
	store := NewExecutionStore()
	root := types.CreateRoot("suite", types.BypassNone)
	a := root.AddChild(types.NodeSpec{Name: "a"})
	b := root.AddChild(types.NodeSpec{Name: "b"})
	require.NoError(t, store.Start(root.RuntimeID))

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	store.ReportFailure(a, errA)
	store.ReportFailure(b, errB)

	failures, err := store.Failures(root)
	require.NoError(t, err)
	assert.Equal(t, []error{errA, errB}, failures)

	first, err := store.FirstFailure(root)
	require.NoError(t, err)
	assert.Same(t, errA, first)
}

func TestExecutionStoreContract(t *testing.T) {
	t.Run("double start", func(t *testing.T) {
		store := NewExecutionStore()
		require.NoError(t, store.Start("id"))
		err := store.Start("id")
		require.ErrorIs(t, err, ErrLedgerExists)
		assert.ErrorIs(t, err, ErrContractViolation)
	})

	t.Run("query before start", func(t *testing.T) {
		store := NewExecutionStore()
		n := types.CreateRoot("suite", types.BypassNone)
		_, err := store.HasFailure(n)
		assert.ErrorIs(t, err, ErrNoLedgerEntry)
		_, err = store.FirstFailure(n)
		assert.ErrorIs(t, err, ErrNoLedgerEntry)
		_, err = store.Failures(n)
		assert.ErrorIs(t, err, ErrNoLedgerEntry)
	})

	t.Run("complete unknown id is a no-op", func(t *testing.T) {
		store := NewExecutionStore()
		store.Complete("missing")
		assert.Equal(t, 0, store.Len())
	})

	t.Run("report without parent entry is a no-op", func(t *testing.T) {
		store := NewExecutionStore()
		root := types.CreateRoot("suite", types.BypassNone)
		child := root.AddChild(types.NodeSpec{Name: "step"})
		store.ReportFailure(root, errors.New("root"))
		store.ReportFailure(child, errors.New("orphan"))
		assert.Equal(t, 0, store.Len())
	})
}

func TestExecutionStoreConcurrentRoots(t *testing.T) {
	store := NewExecutionStore()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root := types.CreateRoot(fmt.Sprintf("suite-%d", i), types.BypassNone)
			child := root.AddChild(types.NodeSpec{Name: "step"})
			assert.NoError(t, store.Start(root.RuntimeID))
			if i%2 == 0 {
				store.ReportFailure(child, errors.New("even"))
			}
			hasFailure, err := store.HasFailure(root)
			assert.NoError(t, err)
			assert.Equal(t, i%2 == 0, hasFailure)
			store.Complete(root.RuntimeID)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, store.Len())
}
