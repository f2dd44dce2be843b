// Package tui renders cardinality and comparison reports as plain text.
package tui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/mickamy/cardest/internal/aggregate"
	"github.com/mickamy/cardest/internal/compare"
	"github.com/mickamy/cardest/internal/insight"
	"github.com/mickamy/cardest/internal/report"
)

// Options controls how the TUI renderer behaves.
type Options struct {
	EnableColor bool
	MaxDepth    int
	BarWidth    int
	// ShowTrees adds the annotated plan of every query.
	ShowTrees bool
}

func (o Options) withDefaults() Options {
	if o.BarWidth <= 0 {
		o.BarWidth = 20
	}
	return o
}

// RenderSelectivity prints per join level and per query q-error tables.
func RenderSelectivity(w io.Writer, sel *report.Selectivity, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if sel == nil || sel.Table.Len() == 0 {
		return errors.New("tui: empty report")
	}
	opts = opts.withDefaults()

	_, _ = fmt.Fprintf(w, "Queries %d | Nodes %d | Max join level %d\n\n",
		sel.QueryCount(), sel.Table.Len(), sel.MaxJoinLevel)

	renderInsights(w, sel.Insights)

	_, _ = fmt.Fprintln(w, "|q-error| by join level")
	levels := newTable(w, []string{"Join level", "Nodes", "Median", "95%", "Max"})
	for _, g := range sel.JoinLevels {
		levels.Append(statRow(strconv.Itoa(g.Level), g))
	}
	levels.Render()

	_, _ = fmt.Fprintln(w, "\nTop node per query")
	queries := newTable(w, []string{"Query", "Max join level", "Top node", "q-error", "Total cost", "Execution (ms)", "Planning (ms)"})
	for _, s := range sel.Summaries {
		queries.Append([]string{
			s.QueryID,
			strconv.Itoa(s.MaxJoinLevel),
			s.TopNodeType,
			fmt.Sprintf("%+.2f", s.TopQError),
			humanize.Commaf(s.TotalCost),
			humanize.FtoaWithDigits(s.ExecutionTimeMs, 3),
			humanize.FtoaWithDigits(s.PlanningTimeMs, 3),
		})
	}
	queries.Render()

	_, _ = fmt.Fprintln(w, "\n|q-error| by query")
	spread := newTable(w, []string{"Query", "Nodes", "Median", "95%", "Max"})
	for _, g := range sel.Queries {
		spread.Append(statRow(g.Key, g))
	}
	spread.Render()

	if !opts.ShowTrees {
		return nil
	}
	for _, tree := range sel.Trees {
		_, _ = fmt.Fprintf(w, "\n%s\n", tree.QueryID)
		if err := RenderTree(w, tree.Root, opts); err != nil {
			return err
		}
	}
	return nil
}

// RenderComparison prints the ratio statistics and histogram of each report.
func RenderComparison(w io.Writer, reports []*compare.Report, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if len(reports) == 0 {
		return errors.New("tui: no comparisons")
	}
	opts = opts.withDefaults()

	stats := newTable(w, []string{"Comparison", "Queries", "Median", "95%", "Max"})
	for _, r := range reports {
		stats.Append([]string{
			r.Baseline + " vs " + r.Target,
			strconv.Itoa(r.Shared),
			formatRatio(r.Summary.Median),
			formatRatio(r.Summary.P95),
			formatRatio(r.Summary.Max),
		})
	}
	stats.Render()

	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "\n%s vs %s\n", r.Baseline, r.Target)
		for _, b := range r.Histogram {
			bar := drawBar(b.Percent/100, opts.BarWidth)
			_, _ = fmt.Fprintf(w, "  %-8s %s %5.1f%% (%d)\n", b.Label, bar, b.Percent, b.Count)
		}
		renderInsights(w, r.Insights)
	}
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	return t
}

func statRow(key string, g aggregate.GroupStat) []string {
	return []string{
		key,
		strconv.Itoa(g.Stats.Count),
		humanize.FtoaWithDigits(g.Stats.Median, 2),
		humanize.FtoaWithDigits(g.Stats.P95, 2),
		humanize.FtoaWithDigits(g.Stats.Max, 2),
	}
}

func formatRatio(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func renderInsights(w io.Writer, messages []insight.Message) {
	if len(messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Insights:")
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "  - %s %s\n", msg.Icon(), msg.Text)
	}
	_, _ = fmt.Fprintln(w)
}
