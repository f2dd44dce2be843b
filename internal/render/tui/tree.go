package tui

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/insight"
	"github.com/mickamy/cardest/internal/qerror"
)

// RenderTree prints an ASCII plan tree with the join level and q-error of every node.
func RenderTree(w io.Writer, root *analyzer.NodeStats, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if root == nil {
		return errors.New("tui: empty plan")
	}
	opts = opts.withDefaults()

	_, _ = fmt.Fprintf(w, "%s\n", renderLine(root, opts))
	printChildren(w, root, "", opts)
	return nil
}

func printChildren(w io.Writer, parent *analyzer.NodeStats, prefix string, opts Options) {
	for i, child := range parent.Children {
		renderBranch(w, child, prefix, i == len(parent.Children)-1, opts)
	}
}

func renderBranch(w io.Writer, node *analyzer.NodeStats, prefix string, isLast bool, opts Options) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}

	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, renderLine(node, opts))

	if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
		if len(node.Children) > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more nodes)\n", childPrefix, countDescendants(node))
		}
		return
	}

	printChildren(w, node, childPrefix, opts)
}

func renderLine(node *analyzer.NodeStats, opts Options) string {
	label := insight.NodeLabel(node)
	level := fmt.Sprintf("level %d", node.JoinLevel)
	rows := fmt.Sprintf("rows %s/%s", humanize.Commaf(node.Node.ActualRows), humanize.Commaf(node.Node.PlanRows))

	q := fmt.Sprintf("q %+.2f", node.QError)
	bar := drawBar(errorShare(node.QError), opts.BarWidth)
	if opts.EnableColor {
		if color := pickColor(insight.SeverityFor(node.QError)); color != "" {
			bar = applyColor(bar, color)
			q = applyColor(q, color)
		}
	}

	line := strings.Join([]string{label, level, rows, q, bar}, " | ")
	if node.Skipped {
		line += " [no record]"
	}
	return line
}

// errorShare places |q| on a log scale where 1000x fills the bar.
func errorShare(q float64) float64 {
	m := qerror.Magnitude(q)
	if m <= 1 {
		return 0
	}
	return math.Log10(m) / 3
}

func drawBar(ratio float64, width int) string {
	if width <= 0 {
		return ""
	}
	clamped := math.Max(0, math.Min(1, ratio))
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func pickColor(sev insight.Severity) string {
	switch sev {
	case insight.SeverityCritical:
		return "red"
	case insight.SeverityWarning:
		return "yellow"
	default:
		return ""
	}
}

func applyColor(text, color string) string {
	code := ""
	switch color {
	case "red":
		code = "\033[31m"
	case "yellow":
		code = "\033[33m"
	default:
		return text
	}
	return code + text + "\033[0m"
}

func countDescendants(node *analyzer.NodeStats) int {
	total := 0
	analyzer.Walk(node, func(*analyzer.NodeStats) { total++ })
	return total - 1
}
