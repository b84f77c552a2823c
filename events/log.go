package events

import (
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
)

var _ Publisher = (*LogPublisher)(nil)

// LogPublisher writes every event to a logger at debug level, failures at warn
type LogPublisher struct {
	log log.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger falls back to log.New().
func NewLogPublisher(logger log.Logger) *LogPublisher {
	if logger == nil {
		logger = log.New()
	}
	return &LogPublisher{log: logger.New("component", "events")}
}

func (p *LogPublisher) emit(kind Kind, node *types.Node) {
	ctx := []interface{}{
		"event", kind,
		"role", node.Role,
		"name", node.Name,
		"id", node.RuntimeID,
		"status", node.Status(),
	}
	if kind.IsStart() {
		p.log.Debug("Node started", ctx...)
		return
	}
	ctx = append(ctx, "duration", node.Duration())
	if err := node.Err(); err != nil {
		p.log.Warn("Node failed", append(ctx, "err", err)...)
		return
	}
	p.log.Debug("Node finished", ctx...)
}

func (p *LogPublisher) ContainerStarted(node *types.Node) { p.emit(KindContainerStarted, node) }
func (p *LogPublisher) ContainerFinished(node *types.Node) { p.emit(KindContainerFinished, node) }
func (p *LogPublisher) BeforeStarted(node *types.Node) { p.emit(KindBeforeStarted, node) }
func (p *LogPublisher) BeforeCompleted(node *types.Node) { p.emit(KindBeforeCompleted, node) }
func (p *LogPublisher) BeforeFailed(node *types.Node) { p.emit(KindBeforeFailed, node) }
func (p *LogPublisher) TargetStarted(node *types.Node) { p.emit(KindTargetStarted, node) }
func (p *LogPublisher) TargetCompleted(node *types.Node) { p.emit(KindTargetCompleted, node) }
func (p *LogPublisher) TargetFailed(node *types.Node) { p.emit(KindTargetFailed, node) }
func (p *LogPublisher) AfterStarted(node *types.Node) { p.emit(KindAfterStarted, node) }
func (p *LogPublisher) AfterCompleted(node *types.Node) { p.emit(KindAfterCompleted, node) }
func (p *LogPublisher) AfterFailed(node *types.Node) { p.emit(KindAfterFailed, node) }
