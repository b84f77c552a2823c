// Package scope provides per test case state. A Scope is opened when a test
// case starts and torn down when it finishes; steps and hooks beneath the
// test case share it.
package scope

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
)

// ErrNoScope is returned when a node has no test case scope open
var ErrNoScope = errors.New("no open scope")

// Scope is the state shared by the nodes of one test case
type Scope struct {
	ID string // runtime id of the owning test case

	mu       sync.Mutex
	values   map[string]any
	cleanups []func() error
	closed   bool
}

func newScope(id string) *Scope {
	return &Scope{ID: id, values: make(map[string]any)}
}

// Set stores value under key
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value stored under key
func (s *Scope) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the keys currently stored, in no particular order
func (s *Scope) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// OnClose registers fn to run at teardown. Cleanups run in reverse order.
func (s *Scope) OnClose(fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// Closed reports whether the scope was torn down
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scope) close() error {
	s.mu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.closed = true
	s.values = make(map[string]any)
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ events.Publisher = (*Manager)(nil)

// Manager opens and tears down test case scopes as test cases start and
// finish. Register it on the event multicaster of a run.
type Manager struct {
	events.NoOp

	mu     sync.RWMutex
	scopes map[string]*Scope
	log    log.Logger
}

// NewManager creates an empty manager
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.New()
	}
	return &Manager{
		scopes: make(map[string]*Scope),
		log:    logger.New("component", "scope"),
	}
}

// ForNode returns the scope of the closest test case enclosing node
func (m *Manager) ForNode(node *types.Node) (*Scope, error) {
	tc := node.Ancestor(types.RoleTestCase)
	if tc == nil {
		return nil, fmt.Errorf("node %q is not inside a test case: %w", node.Name, ErrNoScope)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scopes[tc.RuntimeID]
	if !ok {
		return nil, fmt.Errorf("test case %q: %w", tc.Name, ErrNoScope)
	}
	return s, nil
}

// Len returns the number of open scopes
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scopes)
}

func (m *Manager) open(node *types.Node) {
	if node.Role != types.RoleTestCase {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes[node.RuntimeID] = newScope(node.RuntimeID)
	m.log.Debug("Scope opened", "testCase", node.Name, "id", node.RuntimeID)
}

func (m *Manager) teardown(node *types.Node) {
	if node.Role != types.RoleTestCase {
		return
	}
	m.mu.Lock()
	s, ok := m.scopes[node.RuntimeID]
	delete(m.scopes, node.RuntimeID)
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := s.close(); err != nil {
		m.log.Warn("Scope cleanup failed", "testCase", node.Name, "id", node.RuntimeID, "err", err)
		return
	}
	m.log.Debug("Scope closed", "testCase", node.Name, "id", node.RuntimeID)
}

func (m *Manager) ContainerStarted(node *types.Node) { m.open(node) }
func (m *Manager) TargetStarted(node *types.Node) { m.open(node) }
func (m *Manager) ContainerFinished(node *types.Node) { m.teardown(node) }
func (m *Manager) TargetCompleted(node *types.Node) { m.teardown(node) }
func (m *Manager) TargetFailed(node *types.Node) { m.teardown(node) }

