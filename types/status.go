// Package types contains the execution tree model shared across op-treerunner
package types

// NodeStatus represents the lifecycle state of a node in the execution tree
type NodeStatus string

const (
	StatusNotStarted NodeStatus = "not_started"
	StatusRunning    NodeStatus = "running"
	StatusPassed     NodeStatus = "passed"
	StatusFailed     NodeStatus = "failed"
	StatusSkipped    NodeStatus = "skipped"
)

// String implements the Stringer interface for NodeStatus
func (s NodeStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible from s
func (s NodeStatus) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped
}

// Role tags the purpose of a node. It drives reporting classification and
// statistics, never execution semantics.
type Role string

const (
	RoleSuite    Role = "suite"
	RoleTestCase Role = "testCase"
	RoleStep     Role = "step"
	RoleBefore   Role = "before"
	RoleAfter    Role = "after"
)

// String implements the Stringer interface for Role
func (r Role) String() string {
	return string(r)
}

// Statistic stage names
const (
	StageTest = "test"
	StageStep = "step"
)

// Stage returns the statistic stage a role is counted under, or "" when
// nodes of that role are not counted.
func (r Role) Stage() string {
	switch r {
	case RoleTestCase:
		return StageTest
	case RoleStep:
		return StageStep
	default:
		return ""
	}
}
