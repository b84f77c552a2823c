package metrics

import (
	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

var _ events.Publisher = Publisher{}

// Publisher is an event subscriber feeding the node metrics
type Publisher struct{}

func started(node *types.Node) {
	RecordNodeStarted(node.Role)
}

func finished(node *types.Node) {
	RecordNodeFinished(node.Role, node.Status(), node.Duration())
}

func (Publisher) ContainerStarted(node *types.Node) { started(node) }
func (Publisher) ContainerFinished(node *types.Node) { finished(node) }
func (Publisher) BeforeStarted(node *types.Node) { started(node) }
func (Publisher) BeforeCompleted(node *types.Node) { finished(node) }
func (Publisher) BeforeFailed(node *types.Node) { finished(node) }
func (Publisher) TargetStarted(node *types.Node) { started(node) }
func (Publisher) TargetCompleted(node *types.Node) { finished(node) }
func (Publisher) TargetFailed(node *types.Node) { finished(node) }
func (Publisher) AfterStarted(node *types.Node) { started(node) }
func (Publisher) AfterCompleted(node *types.Node) { finished(node) }
func (Publisher) AfterFailed(node *types.Node) { finished(node) }
