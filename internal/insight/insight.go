package insight

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/cardest/internal/aggregate"
	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/qerror"
)

// Severity expresses the urgency of an insight message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message represents an observation about estimates or timings.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"message"`
	Anchor   string   `json:"anchor,omitempty"`
}

// Icon returns the marker used in text reports.
func (m Message) Icon() string {
	switch m.Severity {
	case SeverityCritical:
		return "🔥"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// ForTable derives messages from the aggregated node table and per-query summaries.
func ForTable(table *aggregate.Table, summaries []aggregate.QuerySummary) []Message {
	if table == nil || table.Len() == 0 {
		return nil
	}
	var out []Message
	out = append(out, driftMessages(table)...)
	out = append(out, levelMessages(table)...)
	if msg := worstQueryMessage(summaries); msg != nil {
		out = append(out, *msg)
	}
	return out
}

// SeverityFor grades a q-error against the configured thresholds.
func SeverityFor(q float64) Severity {
	cfg := config.Active().Insights
	switch m := qerror.Magnitude(q); {
	case m >= cfg.QErrorCritical:
		return SeverityCritical
	case m >= cfg.QErrorWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func driftMessages(table *aggregate.Table) []Message {
	cfg := config.Active().Insights
	rows := table.Filter(func(r aggregate.Row) bool {
		return qerror.Magnitude(r.QError) >= cfg.QErrorWarning
	}).Rows
	slices.SortStableFunc(rows, func(a, b aggregate.Row) int {
		return cmp.Compare(qerror.Magnitude(b.QError), qerror.Magnitude(a.QError))
	})
	if len(rows) > cfg.MaxItems {
		rows = rows[:cfg.MaxItems]
	}

	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		direction := "under"
		if qerror.Overestimated(r.QError) {
			direction = "over"
		}
		text := fmt.Sprintf("Estimate drift: %s %s (node %s) expected %s rows got %s, %sestimated x%s",
			r.QueryID, r.NodeType, r.NodeID,
			humanize.Commaf(r.Estimated), humanize.Commaf(r.Actual),
			direction, humanize.FtoaWithDigits(qerror.Magnitude(r.QError), 2))
		if r.JoinLevel > 0 {
			text += fmt.Sprintf(" at join level %d", r.JoinLevel)
		}
		msgs = append(msgs, Message{Severity: SeverityFor(r.QError), Text: text, Anchor: RowAnchor(r.QueryID, r.NodeID)})
	}
	return msgs
}

func levelMessages(table *aggregate.Table) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	for _, stat := range aggregate.GroupStats(table.ByJoinLevel()) {
		if stat.Stats.Median < cfg.QErrorWarning {
			continue
		}
		text := fmt.Sprintf("Join level %d: median |q-error| %s across %d nodes (p95 %s)",
			stat.Level, humanize.FtoaWithDigits(stat.Stats.Median, 2), stat.Stats.Count,
			humanize.FtoaWithDigits(stat.Stats.P95, 2))
		msgs = append(msgs, Message{Severity: SeverityFor(stat.Stats.Median), Text: text})
	}
	return msgs
}

func worstQueryMessage(summaries []aggregate.QuerySummary) *Message {
	if len(summaries) == 0 {
		return nil
	}
	worst := summaries[0]
	for _, s := range summaries[1:] {
		if qerror.Magnitude(s.TopQError) > qerror.Magnitude(worst.TopQError) {
			worst = s
		}
	}
	if qerror.Magnitude(worst.TopQError) < config.Active().Insights.QErrorWarning {
		return nil
	}
	text := fmt.Sprintf("Worst query: %s top %s at join level %d is off by x%s (execution %s ms)",
		worst.QueryID, worst.TopNodeType, worst.MaxJoinLevel,
		humanize.FtoaWithDigits(qerror.Magnitude(worst.TopQError), 2),
		humanize.FtoaWithDigits(worst.ExecutionTimeMs, 3))
	return &Message{Severity: SeverityFor(worst.TopQError), Text: text, Anchor: QueryAnchor(worst.QueryID)}
}

// NodeLabel builds a descriptive label for a plan node.
func NodeLabel(node *analyzer.NodeStats) string {
	if node == nil || node.Node == nil {
		return ""
	}
	label := node.Node.NodeType
	if node.Node.RelationName != "" {
		label = fmt.Sprintf("%s %s", label, node.Node.RelationName)
		if node.Node.Alias != "" && node.Node.Alias != node.Node.RelationName {
			label = fmt.Sprintf("%s (%s)", label, node.Node.Alias)
		}
	} else if node.Node.Alias != "" {
		label = fmt.Sprintf("%s (%s)", label, node.Node.Alias)
	}
	return label
}

// CompactLabel shortens long labels for inline summaries.
func CompactLabel(node *analyzer.NodeStats) string {
	label := NodeLabel(node)
	if len(label) > 60 {
		return label[:57] + "..."
	}
	return label
}

// NormalizeWhitespace collapses whitespace for use in HTML or text.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// QueryAnchor returns the HTML anchor of a query section.
func QueryAnchor(queryID string) string {
	return "query-" + slug(queryID)
}

// RowAnchor returns the HTML anchor of a node within a query section.
func RowAnchor(queryID, nodeID string) string {
	return QueryAnchor(queryID) + "-node-" + slug(nodeID)
}

func slug(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}
