package runner

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

var (
	// ErrContractViolation marks a broken executor/store contract. It aborts the run.
	ErrContractViolation = errors.New("execution contract violation")

	// ErrLedgerExists is returned when a node is started twice
	ErrLedgerExists = fmt.Errorf("%w: ledger entry already exists", ErrContractViolation)

	// ErrNoLedgerEntry is returned when a node is queried outside of its execution window
	ErrNoLedgerEntry = fmt.Errorf("%w: no ledger entry", ErrContractViolation)
)

type ledgerEntry struct {
	hasFailure bool
	failures   []error
}

// ExecutionStore is the per-node failure ledger. An entry lives from the
// moment a node starts until it completes, and collects the failures reported
// by the node's children and hooks. Safe for concurrent use.
type ExecutionStore struct {
	mu      sync.RWMutex
	entries map[string]*ledgerEntry
}

// NewExecutionStore creates an empty store
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{entries: make(map[string]*ledgerEntry)}
}

// Start opens the ledger entry for id
func (s *ExecutionStore) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; ok {
		return fmt.Errorf("start %s: %w", id, ErrLedgerExists)
	}
	s.entries[id] = &ledgerEntry{}
	return nil
}

// Complete removes the ledger entry for id. Unknown ids are ignored.
func (s *ExecutionStore) Complete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// ReportFailure records err in the ledger of node's parent. Nothing is
// recorded for roots or when the parent is not executing under this store.
func (s *ExecutionStore) ReportFailure(node *types.Node, err error) {
	if node == nil || node.ParentID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[node.ParentID]
	if !ok {
		return
	}
	entry.hasFailure = true
	entry.failures = append(entry.failures, err)
}

// HasFailure reports whether any failure has been recorded against node
func (s *ExecutionStore) HasFailure(node *types.Node) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, err := s.lookup(node)
	if err != nil {
		return false, err
	}
	return entry.hasFailure, nil
}

// FirstFailure returns the first failure recorded against node, nil if none
func (s *ExecutionStore) FirstFailure(node *types.Node) (error, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, err := s.lookup(node)
	if err != nil {
		return nil, err
	}
	if len(entry.failures) == 0 {
		return nil, nil
	}
	return entry.failures[0], nil
}

// Failures returns a copy of every failure recorded against node, in report order
func (s *ExecutionStore) Failures(node *types.Node) ([]error, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, err := s.lookup(node)
	if err != nil {
		return nil, err
	}
	out := make([]error, len(entry.failures))
	copy(out, entry.failures)
	return out, nil
}

// Len returns the number of nodes currently executing under this store
func (s *ExecutionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// lookup must be called with the lock held
func (s *ExecutionStore) lookup(node *types.Node) (*ledgerEntry, error) {
	entry, ok := s.entries[node.RuntimeID]
	if !ok {
		return nil, fmt.Errorf("node %q (%s): %w", node.Name, node.RuntimeID, ErrNoLedgerEntry)
	}
	return entry, nil
}
