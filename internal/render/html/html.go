package html

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/mickamy/cardest/internal/aggregate"
	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/compare"
	"github.com/mickamy/cardest/internal/insight"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/qerror"
	"github.com/mickamy/cardest/internal/report"
)

// Options configures the HTML renderer.
type Options struct {
	Title         string
	IncludeStyles bool
}

var templates = template.Must(template.New("cardest").Parse(stylesTemplate))

func init() {
	template.Must(templates.New("selectivity").Parse(selectivityTemplate))
	template.Must(templates.New("comparison").Parse(comparisonTemplate))
}

// Render writes the cardinality report: insights, per level and per query
// tables and the annotated plan of every query.
func Render(w io.Writer, sel *report.Selectivity, opts Options) error {
	if sel == nil || sel.Table.Len() == 0 {
		return errors.New("html render: empty report")
	}
	if opts.Title == "" {
		opts.Title = "cardest report"
	}
	if err := templates.ExecuteTemplate(w, "selectivity", buildSelectivityData(sel, opts)); err != nil {
		return errors.Wrap(err, "html render: execute template")
	}
	return nil
}

// RenderComparison writes ratio statistics and histograms for each report.
func RenderComparison(w io.Writer, reports []*compare.Report, opts Options) error {
	if len(reports) == 0 {
		return errors.New("html render: no comparisons")
	}
	if opts.Title == "" {
		opts.Title = "cardest comparison"
	}
	if err := templates.ExecuteTemplate(w, "comparison", buildComparisonData(reports, opts)); err != nil {
		return errors.Wrap(err, "html render: execute template")
	}
	return nil
}

type selectivityData struct {
	Title         string
	IncludeStyles bool
	Summary       summaryView
	Insights      []insightView
	JoinLevels    []statView
	Queries       []queryView
	Trees         []treeView
}

type summaryView struct {
	Queries      int
	Nodes        int
	MaxJoinLevel int
}

type insightView struct {
	Icon     string
	Severity string
	Text     string
	Anchor   string
}

type statView struct {
	Key    string
	Count  int
	Median string
	P95    string
	Max    string
}

type queryView struct {
	ID            string
	Anchor        string
	MaxJoinLevel  int
	TopNode       string
	TopQError     string
	Severity      string
	TotalCost     string
	ExecutionTime string
	PlanningTime  string
}

type treeView struct {
	QueryID string
	Anchor  string
	Root    *nodeView
}

type nodeView struct {
	Label    string
	Anchor   string
	Level    int
	Rows     string
	QError   string
	Detail   string
	BarWidth float64
	Heat     float64
	Skipped  bool
	Children []*nodeView
}

func buildSelectivityData(sel *report.Selectivity, opts Options) selectivityData {
	data := selectivityData{
		Title:         opts.Title,
		IncludeStyles: opts.IncludeStyles,
		Summary: summaryView{
			Queries:      sel.QueryCount(),
			Nodes:        sel.Table.Len(),
			MaxJoinLevel: sel.MaxJoinLevel,
		},
		Insights: insightViews(sel.Insights),
	}
	for _, g := range sel.JoinLevels {
		data.JoinLevels = append(data.JoinLevels, buildStatView(strconv.Itoa(g.Level), g))
	}
	for _, s := range sel.Summaries {
		data.Queries = append(data.Queries, queryView{
			ID:            s.QueryID,
			Anchor:        insight.QueryAnchor(s.QueryID),
			MaxJoinLevel:  s.MaxJoinLevel,
			TopNode:       s.TopNodeType,
			TopQError:     fmt.Sprintf("%+.2f", s.TopQError),
			Severity:      string(insight.SeverityFor(s.TopQError)),
			TotalCost:     humanize.Commaf(s.TotalCost),
			ExecutionTime: humanize.FtoaWithDigits(s.ExecutionTimeMs, 3) + " ms",
			PlanningTime:  humanize.FtoaWithDigits(s.PlanningTimeMs, 3) + " ms",
		})
	}
	for _, tree := range sel.Trees {
		data.Trees = append(data.Trees, treeView{
			QueryID: tree.QueryID,
			Anchor:  insight.QueryAnchor(tree.QueryID),
			Root:    buildNodeView(tree.QueryID, tree.Root),
		})
	}
	return data
}

func insightViews(messages []insight.Message) []insightView {
	out := make([]insightView, 0, len(messages))
	for _, msg := range messages {
		out = append(out, insightView{
			Icon:     msg.Icon(),
			Severity: string(msg.Severity),
			Text:     msg.Text,
			Anchor:   msg.Anchor,
		})
	}
	return out
}

func buildStatView(key string, g aggregate.GroupStat) statView {
	return statView{
		Key:    key,
		Count:  g.Stats.Count,
		Median: humanize.FtoaWithDigits(g.Stats.Median, 2),
		P95:    humanize.FtoaWithDigits(g.Stats.P95, 2),
		Max:    humanize.FtoaWithDigits(g.Stats.Max, 2),
	}
}

func buildNodeView(queryID string, node *analyzer.NodeStats) *nodeView {
	// 1000x and beyond fills the bar
	share := 0.0
	if m := qerror.Magnitude(node.QError); m > 1 {
		share = math.Log10(m) / 3
	}
	view := &nodeView{
		Label:    insight.NodeLabel(node),
		Anchor:   insight.RowAnchor(queryID, node.Node.ID),
		Level:    node.JoinLevel,
		Rows:     fmt.Sprintf("rows %s / %s", humanize.Commaf(node.Node.ActualRows), humanize.Commaf(node.Node.PlanRows)),
		QError:   fmt.Sprintf("q %+.2f", node.QError),
		Detail:   nodeDetail(node.Node),
		BarWidth: clamp(share*100, 0, 100),
		Heat:     clamp(share, 0, 1),
		Skipped:  node.Skipped,
	}
	for _, child := range node.Children {
		view.Children = append(view.Children, buildNodeView(queryID, child))
	}
	return view
}

// nodeDetail lists join type, cost range, loops and per-loop time when the plan reports them.
func nodeDetail(node *model.PlanNode) string {
	var parts []string
	if node.JoinType != "" {
		parts = append(parts, node.JoinType+" join")
	}
	parts = append(parts, "cost "+humanize.Commaf(node.StartupCost)+".."+humanize.Commaf(node.TotalCost))
	if node.ActualLoops > 0 {
		parts = append(parts, "loops "+humanize.Commaf(node.ActualLoops))
	}
	if node.ActualTotalTime > 0 {
		parts = append(parts, humanize.FtoaWithDigits(node.ActualTotalTime, 3)+" ms")
	}
	return strings.Join(parts, " · ")
}

type comparisonData struct {
	Title         string
	IncludeStyles bool
	Comparisons   []comparisonView
}

type comparisonView struct {
	Name      string
	Shared    int
	Skipped   int
	Median    string
	P95       string
	Max       string
	Histogram []bucketView
	Insights  []insightView
}

type bucketView struct {
	Label   string
	Count   int
	Percent float64
}

func buildComparisonData(reports []*compare.Report, opts Options) comparisonData {
	data := comparisonData{Title: opts.Title, IncludeStyles: opts.IncludeStyles}
	for _, r := range reports {
		view := comparisonView{
			Name:     r.Baseline + " vs " + r.Target,
			Shared:   r.Shared,
			Skipped:  len(r.OnlyBaseline) + len(r.OnlyTarget),
			Median:   strconv.FormatFloat(r.Summary.Median, 'f', 3, 64),
			P95:      strconv.FormatFloat(r.Summary.P95, 'f', 3, 64),
			Max:      strconv.FormatFloat(r.Summary.Max, 'f', 3, 64),
			Insights: insightViews(r.Insights),
		}
		for _, b := range r.Histogram {
			view.Histogram = append(view.Histogram, bucketView{Label: b.Label, Count: b.Count, Percent: b.Percent})
		}
		data.Comparisons = append(data.Comparisons, view)
	}
	return data
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
