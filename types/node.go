package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrIllegalTransition is returned when a node is asked to move to a status
// that is not reachable from its current one.
var ErrIllegalTransition = errors.New("illegal status transition")

// Action is the invocable behaviour of a target node
type Action interface {
	Invoke(ctx context.Context, node *Node) error
}

// ActionFunc adapts an ordinary function to the Action interface
type ActionFunc func(ctx context.Context, node *Node) error

// Invoke calls f(ctx, node)
func (f ActionFunc) Invoke(ctx context.Context, node *Node) error {
	return f(ctx, node)
}

// NodeError captures the failure detail of a node
type NodeError struct {
	Message string
	Cause   error
}

// NewNodeError wraps cause, using its text as the message
func NewNodeError(cause error) *NodeError {
	if cause == nil {
		return &NodeError{Message: "unknown failure"}
	}
	if nodeErr, ok := cause.(*NodeError); ok {
		return nodeErr
	}
	return &NodeError{Message: cause.Error(), Cause: cause}
}

func (e *NodeError) Error() string {
	if e.Cause == nil || e.Cause.Error() == e.Message {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

// Unwrap implements the errors.Unwrap interface
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// NodeSpec describes a node to be attached to a parent
type NodeSpec struct {
	Name        string
	Role        Role
	Description string
	HistoryID   string // Opaque identity supplied by discovery
	Attributes  map[string]any
	Action      Action
	Bypass      *BypassMode // nil inherits the parent's bypass modes
}

// Bypass returns a pointer to m, for use in NodeSpec literals
func Bypass(m BypassMode) *BypassMode {
	return &m
}

// Node is a single element of the execution tree: a suite, a test case, a
// step or a hook. Everything except the runtime state is fixed once discovery
// has built the tree.
type Node struct {
	// Identity and metadata
	RuntimeID   string
	ParentID    string // Empty for roots
	Role        Role
	Name        string
	Description string
	HistoryID   string
	Attributes  map[string]any

	// Hierarchy
	BeforeHooks []*Node
	AfterHooks  []*Node
	Children    []*Node

	BypassModes BypassMode
	Action      Action // nil for pure containers

	parent *Node
	depth  int

	// Runtime state, written by the executor only
	mu         sync.RWMutex
	status     NodeStatus
	err        *NodeError
	startedAt  time.Time
	finishedAt time.Time
}

// CreateRoot constructs a suite root with no parent
func CreateRoot(name string, modes BypassMode) *Node {
	return &Node{
		RuntimeID:   uuid.New().String(),
		Role:        RoleSuite,
		Name:        name,
		Attributes:  make(map[string]any),
		BypassModes: modes,
		status:      StatusNotStarted,
	}
}

// AddChild appends a child built from spec and returns it
func (n *Node) AddChild(spec NodeSpec) *Node {
	child := n.newSubNode(spec, RoleStep)
	n.Children = append(n.Children, child)
	return child
}

// AddBefore appends a before hook built from spec and returns it
func (n *Node) AddBefore(spec NodeSpec) *Node {
	hook := n.newSubNode(spec, RoleBefore)
	n.BeforeHooks = append(n.BeforeHooks, hook)
	return hook
}

// AddAfter appends an after hook built from spec and returns it
func (n *Node) AddAfter(spec NodeSpec) *Node {
	hook := n.newSubNode(spec, RoleAfter)
	n.AfterHooks = append(n.AfterHooks, hook)
	return hook
}

func (n *Node) newSubNode(spec NodeSpec, defaultRole Role) *Node {
	role := spec.Role
	if role == "" {
		role = defaultRole
	}
	modes := n.BypassModes
	if spec.Bypass != nil {
		modes = *spec.Bypass
	}
	attrs := make(map[string]any, len(spec.Attributes))
	for k, v := range spec.Attributes {
		attrs[k] = v
	}
	return &Node{
		RuntimeID:   uuid.New().String(),
		ParentID:    n.RuntimeID,
		Role:        role,
		Name:        spec.Name,
		Description: spec.Description,
		HistoryID:   spec.HistoryID,
		Attributes:  attrs,
		BypassModes: modes,
		Action:      spec.Action,
		parent:      n,
		depth:       n.depth + 1,
		status:      StatusNotStarted,
	}
}

// Start moves the node from not_started to running
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != StatusNotStarted {
		return fmt.Errorf("%w: %s -> %s for node %q", ErrIllegalTransition, n.status, StatusRunning, n.Name)
	}
	n.status = StatusRunning
	n.startedAt = time.Now()
	return nil
}

// Pass moves the node from running to passed
func (n *Node) Pass() error {
	return n.finish(StatusPassed, nil)
}

// Fail moves the node from running to failed, recording err
func (n *Node) Fail(err error) error {
	return n.finish(StatusFailed, NewNodeError(err))
}

func (n *Node) finish(status NodeStatus, nodeErr *NodeError) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s for node %q", ErrIllegalTransition, n.status, status, n.Name)
	}
	n.status = status
	n.err = nodeErr
	n.finishedAt = time.Now()
	return nil
}

// Skip moves the node from not_started straight to skipped
func (n *Node) Skip() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status != StatusNotStarted {
		return fmt.Errorf("%w: %s -> %s for node %q", ErrIllegalTransition, n.status, StatusSkipped, n.Name)
	}
	n.status = StatusSkipped
	return nil
}

// SkipTree marks n and every not yet started node beneath it as skipped.
// It returns the number of nodes that were skipped.
func (n *Node) SkipTree() int {
	skipped := 0
	n.Walk(func(node *Node) bool {
		if node.Skip() == nil {
			skipped++
		}
		return true
	})
	return skipped
}

// Status returns the current status
func (n *Node) Status() NodeStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.status
}

// Failure returns the captured failure, or nil
func (n *Node) Failure() *NodeError {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.err
}

// Err returns the captured failure as an error, or nil
func (n *Node) Err() error {
	if f := n.Failure(); f != nil {
		return f
	}
	return nil
}

// StartedAt returns when the node started running
func (n *Node) StartedAt() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.startedAt
}

// FinishedAt returns when the node reached passed or failed
func (n *Node) FinishedAt() time.Time {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.finishedAt
}

// Duration returns the time spent running, 0 if the node never finished
func (n *Node) Duration() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.startedAt.IsZero() || n.finishedAt.IsZero() {
		return 0
	}
	return n.finishedAt.Sub(n.startedAt)
}

// Parent returns the owning node, nil for roots
func (n *Node) Parent() *Node {
	return n.parent
}

// Depth returns the distance to the root (0 = root)
func (n *Node) Depth() int {
	return n.depth
}

// IsContainer returns true if the node carries no action of its own
func (n *Node) IsContainer() bool {
	return n.Action == nil
}

// IsHook returns true if the node sits in its parent's before or after hooks
func (n *Node) IsHook() bool {
	return n.Role == RoleBefore || n.Role == RoleAfter
}

// Attribute returns the attribute stored under key
func (n *Node) Attribute(key string) (any, bool) {
	v, ok := n.Attributes[key]
	return v, ok
}

// Ancestor returns the closest ancestor (or n itself) with the given role
func (n *Node) Ancestor(role Role) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Role == role {
			return cur
		}
	}
	return nil
}

// Path returns the hierarchical path to this node
func (n *Node) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		parts = append(parts, cur.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Walk visits n and every node beneath it in execution order: before hooks,
// children, after hooks. Returning false from visitor prunes that subtree.
func (n *Node) Walk(visitor func(*Node) bool) {
	if !visitor(n) {
		return
	}
	for _, hook := range n.BeforeHooks {
		hook.Walk(visitor)
	}
	for _, child := range n.Children {
		child.Walk(visitor)
	}
	for _, hook := range n.AfterHooks {
		hook.Walk(visitor)
	}
}
