// Package events defines the lifecycle notifications emitted while a tree is
// executed, and the plumbing to fan them out to subscribers.
package events

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

// Publisher receives the lifecycle notifications of an execution tree.
// Every executed node produces exactly one started event followed by exactly
// one terminal event. Skipped nodes produce none. Calls are synchronous: a
// slow subscriber slows execution down.
type Publisher interface {
	ContainerStarted(node *types.Node)
	ContainerFinished(node *types.Node)

	BeforeStarted(node *types.Node)
	BeforeCompleted(node *types.Node)
	BeforeFailed(node *types.Node)

	TargetStarted(node *types.Node)
	TargetCompleted(node *types.Node)
	TargetFailed(node *types.Node)

	AfterStarted(node *types.Node)
	AfterCompleted(node *types.Node)
	AfterFailed(node *types.Node)
}

// Kind names one Publisher method
type Kind string

const (
	KindContainerStarted  Kind = "ContainerStarted"
	KindContainerFinished Kind = "ContainerFinished"
	KindBeforeStarted     Kind = "BeforeStarted"
	KindBeforeCompleted   Kind = "BeforeCompleted"
	KindBeforeFailed      Kind = "BeforeFailed"
	KindTargetStarted     Kind = "TargetStarted"
	KindTargetCompleted   Kind = "TargetCompleted"
	KindTargetFailed      Kind = "TargetFailed"
	KindAfterStarted      Kind = "AfterStarted"
	KindAfterCompleted    Kind = "AfterCompleted"
	KindAfterFailed       Kind = "AfterFailed"
)

// IsStart reports whether k opens a node's execution window
func (k Kind) IsStart() bool {
	switch k {
	case KindContainerStarted, KindBeforeStarted, KindTargetStarted, KindAfterStarted:
		return true
	}
	return false
}

// Dispatch calls the method of p that corresponds to kind
func Dispatch(p Publisher, kind Kind, node *types.Node) {
	switch kind {
	case KindContainerStarted:
		p.ContainerStarted(node)
	case KindContainerFinished:
		p.ContainerFinished(node)
	case KindBeforeStarted:
		p.BeforeStarted(node)
	case KindBeforeCompleted:
		p.BeforeCompleted(node)
	case KindBeforeFailed:
		p.BeforeFailed(node)
	case KindTargetStarted:
		p.TargetStarted(node)
	case KindTargetCompleted:
		p.TargetCompleted(node)
	case KindTargetFailed:
		p.TargetFailed(node)
	case KindAfterStarted:
		p.AfterStarted(node)
	case KindAfterCompleted:
		p.AfterCompleted(node)
	case KindAfterFailed:
		p.AfterFailed(node)
	default:
		panic(fmt.Sprintf("unknown event kind %q", kind))
	}
}

// NoOp implements Publisher with empty methods. Embed it to subscribe to a
// subset of the events.
type NoOp struct{}

var _ Publisher = NoOp{}

func (NoOp) ContainerStarted(*types.Node) {}
func (NoOp) ContainerFinished(*types.Node) {}
func (NoOp) BeforeStarted(*types.Node) {}
func (NoOp) BeforeCompleted(*types.Node) {}
func (NoOp) BeforeFailed(*types.Node) {}
func (NoOp) TargetStarted(*types.Node) {}
func (NoOp) TargetCompleted(*types.Node) {}
func (NoOp) TargetFailed(*types.Node) {}
func (NoOp) AfterStarted(*types.Node) {}
func (NoOp) AfterCompleted(*types.Node) {}
func (NoOp) AfterFailed(*types.Node) {}
