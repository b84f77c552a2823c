package runner

import (
	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
)

var _ events.Publisher = (*StatisticsPublisher)(nil)

// StatisticsPublisher increments the executed counter of a Statistic every
// time a counted node (test case or step) finishes.
type StatisticsPublisher struct {
	events.NoOp
	stats *types.Statistic
}

// NewStatisticsPublisher creates a subscriber feeding stats
func NewStatisticsPublisher(stats *types.Statistic) *StatisticsPublisher {
	return &StatisticsPublisher{stats: stats}
}

// Statistic returns the statistic being fed
func (p *StatisticsPublisher) Statistic() *types.Statistic {
	return p.stats
}

func (p *StatisticsPublisher) finished(node *types.Node) {
	if stage := node.Role.Stage(); stage != "" {
		p.stats.IncExecuted(stage)
	}
}

func (p *StatisticsPublisher) ContainerFinished(node *types.Node) { p.finished(node) }
func (p *StatisticsPublisher) TargetCompleted(node *types.Node) { p.finished(node) }
func (p *StatisticsPublisher) TargetFailed(node *types.Node) { p.finished(node) }
