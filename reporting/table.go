package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum-optimism/infra/op-treerunner/runner"
	"github.com/ethereum-optimism/infra/op-treerunner/types"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const maxErrorWidth = 80

// RenderTable writes a table with one row per suite and test case of result
func RenderTable(w io.Writer, result *runner.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Execution Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Type", "Name", "Duration", "Steps", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "Name", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Steps", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, root := range result.Roots {
		steps := countSteps(root)
		t.AppendRow(table.Row{
			"Suite",
			root.Name,
			formatDuration(root.Duration()),
			steps.Total,
			steps.Passed,
			steps.Failed,
			steps.Skipped,
			getResultString(root.Status()),
			"",
		})

		for _, tc := range testCases(root) {
			steps := countSteps(tc)
			t.AppendRow(table.Row{
				"",
				"└── " + tc.Name,
				formatDuration(tc.Duration()),
				steps.Total,
				steps.Passed,
				steps.Failed,
				steps.Skipped,
				getResultString(tc.Status()),
				extractKeyErrorMessage(tc.Err()),
			})
		}
		t.AppendSeparator()
	}

	switch result.Status {
	case types.StatusPassed:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case types.StatusSkipped:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d tests", result.Stats.Tests.Total),
		formatDuration(result.Duration),
		result.Stats.Steps.Total,
		result.Stats.Steps.Passed,
		result.Stats.Steps.Failed,
		result.Stats.Steps.Skipped,
		getResultString(result.Status),
		"",
	})

	t.Render()
}

// testCases returns the test cases directly or indirectly beneath root,
// without descending into test cases
func testCases(root *types.Node) []*types.Node {
	var out []*types.Node
	root.Walk(func(n *types.Node) bool {
		if n != root && n.Role == types.RoleTestCase {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

func countSteps(root *types.Node) runner.StatusCounts {
	var c runner.StatusCounts
	root.Walk(func(n *types.Node) bool {
		if n.Role != types.RoleStep {
			return true
		}
		c.Total++
		switch n.Status() {
		case types.StatusPassed:
			c.Passed++
		case types.StatusFailed:
			c.Failed++
		case types.StatusSkipped:
			c.Skipped++
		}
		return true
	})
	return c
}

// extractKeyErrorMessage keeps the first line of err, shortened for display
func extractKeyErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if idx := strings.Index(errStr, "\n"); idx != -1 {
		errStr = errStr[:idx]
	}
	if len(errStr) > maxErrorWidth {
		cut := maxErrorWidth - 10
		for cut > 0 && !utf8.RuneStart(errStr[cut]) {
			cut--
		}
		return errStr[:cut] + "..."
	}
	return errStr
}

// getResultString returns a short marker for status
func getResultString(status types.NodeStatus) string {
	switch status {
	case types.StatusPassed:
		return "✓ pass"
	case types.StatusSkipped:
		return "- skip"
	case types.StatusFailed:
		return "✗ fail"
	default:
		return "? " + status.String()
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
