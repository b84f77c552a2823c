package events

import (
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

var _ Publisher = (*Multicaster)(nil)

// Multicaster forwards every event to its subscribers, in registration order.
// Subscribers may be registered while events are flowing; they only see
// events published after registration.
type Multicaster struct {
	mu          sync.RWMutex
	subscribers []Publisher
}

// NewMulticaster creates a multicaster with the given initial subscribers
func NewMulticaster(subscribers ...Publisher) *Multicaster {
	m := &Multicaster{}
	m.Register(subscribers...)
	return m
}

// Register appends subscribers. nil entries are ignored.
func (m *Multicaster) Register(subscribers ...Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range subscribers {
		if s != nil {
			m.subscribers = append(m.subscribers, s)
		}
	}
}

// Len returns the number of registered subscribers
func (m *Multicaster) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

func (m *Multicaster) publish(kind Kind, node *types.Node) {
	m.mu.RLock()
	subscribers := m.subscribers
	m.mu.RUnlock()
	for _, s := range subscribers {
		Dispatch(s, kind, node)
	}
}

func (m *Multicaster) ContainerStarted(node *types.Node) { m.publish(KindContainerStarted, node) }
func (m *Multicaster) ContainerFinished(node *types.Node) { m.publish(KindContainerFinished, node) }
func (m *Multicaster) BeforeStarted(node *types.Node) { m.publish(KindBeforeStarted, node) }
func (m *Multicaster) BeforeCompleted(node *types.Node) { m.publish(KindBeforeCompleted, node) }
func (m *Multicaster) BeforeFailed(node *types.Node) { m.publish(KindBeforeFailed, node) }
func (m *Multicaster) TargetStarted(node *types.Node) { m.publish(KindTargetStarted, node) }
func (m *Multicaster) TargetCompleted(node *types.Node) { m.publish(KindTargetCompleted, node) }
func (m *Multicaster) TargetFailed(node *types.Node) { m.publish(KindTargetFailed, node) }
func (m *Multicaster) AfterStarted(node *types.Node) { m.publish(KindAfterStarted, node) }
func (m *Multicaster) AfterCompleted(node *types.Node) { m.publish(KindAfterCompleted, node) }
func (m *Multicaster) AfterFailed(node *types.Node) { m.publish(KindAfterFailed, node) }
