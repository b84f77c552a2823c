package events

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

var _ Publisher = (*Recorder)(nil)

// Event is one recorded notification
type Event struct {
	Kind   Kind
	Node   *types.Node
	Status types.NodeStatus // node status when the event was published
}

// Recorder keeps the full event stream in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(kind Kind, node *types.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: kind, Node: node, Status: node.Status()})
}

// Events returns a copy of every recorded event
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of every recorded event, in order
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// ForNode returns the kinds of the events published for node
func (r *Recorder) ForNode(node *types.Node) []Kind {
	var kinds []Kind
	for _, e := range r.Events() {
		if e.Node == node {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// Within returns the events published for ancestor and every node beneath it
func (r *Recorder) Within(ancestor *types.Node) []Event {
	var out []Event
	for _, e := range r.Events() {
		for cur := e.Node; cur != nil; cur = cur.Parent() {
			if cur == ancestor {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Reset drops every recorded event
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *Recorder) ContainerStarted(node *types.Node) { r.record(KindContainerStarted, node) }
func (r *Recorder) ContainerFinished(node *types.Node) { r.record(KindContainerFinished, node) }
func (r *Recorder) BeforeStarted(node *types.Node) { r.record(KindBeforeStarted, node) }
func (r *Recorder) BeforeCompleted(node *types.Node) { r.record(KindBeforeCompleted, node) }
func (r *Recorder) BeforeFailed(node *types.Node) { r.record(KindBeforeFailed, node) }
func (r *Recorder) TargetStarted(node *types.Node) { r.record(KindTargetStarted, node) }
func (r *Recorder) TargetCompleted(node *types.Node) { r.record(KindTargetCompleted, node) }
func (r *Recorder) TargetFailed(node *types.Node) { r.record(KindTargetFailed, node) }
func (r *Recorder) AfterStarted(node *types.Node) { r.record(KindAfterStarted, node) }
func (r *Recorder) AfterCompleted(node *types.Node) { r.record(KindAfterCompleted, node) }
func (r *Recorder) AfterFailed(node *types.Node) { r.record(KindAfterFailed, node) }
