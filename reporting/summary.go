// Package reporting turns executed trees into human readable output: a
// summary written as each test case finishes, and a results table at the end
// of a run.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ethereum-optimism/infra/op-treerunner/events"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/text"
)

var _ events.Publisher = (*SummaryPrinter)(nil)

// SummaryPrinter writes a summary of every test case as soon as it finishes:
// its hooks and steps with their status, how many test cases have executed
// so far out of those discovered, and the running pass rate.
//
// Register it after the runner.StatisticsPublisher feeding the same
// statistic so the executed count includes the test case being reported.
type SummaryPrinter struct {
	events.NoOp

	out   io.Writer
	stats *types.Statistic
	color bool
	log   log.Logger

	mu     sync.Mutex
	failed int
}

// SummaryConfig configures a SummaryPrinter
type SummaryConfig struct {
	Out       io.Writer // defaults to os.Stdout
	Statistic *types.Statistic
	Color     bool
	Log       log.Logger
}

// NewSummaryPrinter creates a summary printer
func NewSummaryPrinter(cfg SummaryConfig) *SummaryPrinter {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Statistic == nil {
		cfg.Statistic = types.NewStatistic()
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &SummaryPrinter{
		out:   cfg.Out,
		stats: cfg.Statistic,
		color: cfg.Color,
		log:   cfg.Log.New("component", "summary"),
	}
}

func (p *SummaryPrinter) ContainerFinished(node *types.Node) { p.finished(node) }
func (p *SummaryPrinter) TargetCompleted(node *types.Node) { p.finished(node) }
func (p *SummaryPrinter) TargetFailed(node *types.Node) { p.finished(node) }

func (p *SummaryPrinter) finished(node *types.Node) {
	if node.Role != types.RoleTestCase {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if node.Status() == types.StatusFailed {
		p.failed++
	}
	discovered := p.stats.Discovered(types.StageTest)
	executed := p.stats.Executed(types.StageTest)
	rate := passRate(p.failed, discovered)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Test case '%s' %s in %s\n", node.Name, p.status(node.Status()), formatDuration(node.Duration()))
	node.Walk(func(n *types.Node) bool {
		if n == node {
			return true
		}
		indent := strings.Repeat("  ", n.Depth()-node.Depth())
		fmt.Fprintf(&sb, "%s[%s] %s: %s", indent, n.Role, n.Name, p.status(n.Status()))
		if err := n.Err(); err != nil && !n.IsContainer() {
			fmt.Fprintf(&sb, " (%s)", extractKeyErrorMessage(err))
		}
		sb.WriteString("\n")
		return true
	})
	fmt.Fprintf(&sb, "Executed '%d' out of '%d'\n", executed, discovered)
	fmt.Fprintf(&sb, "Pass rate: %.2f%%\n", rate)

	if _, err := io.WriteString(p.out, sb.String()); err != nil {
		p.log.Warn("Failed to write test case summary", "testCase", node.Name, "err", err)
	}
	p.log.Debug("Test case summary", "testCase", node.Name, "status", node.Status(),
		"executed", executed, "discovered", discovered, "passRate", rate)
}

func (p *SummaryPrinter) status(s types.NodeStatus) string {
	label := strings.ToUpper(s.String())
	if !p.color {
		return label
	}
	switch s {
	case types.StatusPassed:
		return text.FgGreen.Sprint(label)
	case types.StatusFailed:
		return text.FgRed.Sprint(label)
	case types.StatusSkipped:
		return text.FgYellow.Sprint(label)
	default:
		return label
	}
}

// passRate is the share of discovered test cases that have not failed, in percent
func passRate(failed, discovered int) float64 {
	if discovered == 0 {
		return 0
	}
	return (1 - float64(failed)/float64(discovered)) * 100
}
