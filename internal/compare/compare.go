// Package compare contrasts two configuration runs of the same query set.
package compare

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/insight"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/summary"
)

// Ratios divides the baseline time by the target time for every query of a
// that b also ran, in a's order. Queries present in only one run are skipped.
// A zero target time yields +Inf (or NaN when both are zero).
func Ratios(a, b *model.ConfigurationRun) []float64 {
	var out []float64
	for _, id := range a.IDs() {
		target, ok := b.Get(id)
		if !ok {
			continue
		}
		base, _ := a.Get(id)
		out = append(out, base/target)
	}
	return out
}

// Options configures how many entries the report lists.
type Options struct {
	MaxItems int
}

// Report summarises the time ratios between two runs.
type Report struct {
	Baseline     string            `json:"baseline"`
	Target       string            `json:"target"`
	Shared       int               `json:"shared"`
	OnlyBaseline []string          `json:"only_baseline,omitempty"`
	OnlyTarget   []string          `json:"only_target,omitempty"`
	Ratios       []float64         `json:"ratios"`
	Summary      summary.Stats     `json:"summary"`
	Histogram    []summary.Bucket  `json:"histogram"`
	Regressions  []Entry           `json:"regressions"`
	Improvements []Entry           `json:"improvements"`
	Insights     []insight.Message `json:"insights"`
	Options      Options           `json:"-"`
}

// Entry is a single query measured under both configurations.
type Entry struct {
	QueryID       string  `json:"query_id"`
	BaseSeconds   float64 `json:"base_seconds"`
	TargetSeconds float64 `json:"target_seconds"`
	Ratio         float64 `json:"ratio"`
	PercentChange float64 `json:"percent_change"`
}

// Build compares a (the baseline) with b (the target).
func Build(a, b *model.ConfigurationRun, opts Options) (*Report, error) {
	if a == nil || b == nil {
		return nil, errors.New("compare: missing run")
	}
	opts = applyDefaults(opts)

	report := &Report{Baseline: a.Config, Target: b.Config, Options: opts}

	var entries []Entry
	for _, id := range a.IDs() {
		base, _ := a.Get(id)
		target, ok := b.Get(id)
		if !ok {
			report.OnlyBaseline = append(report.OnlyBaseline, id)
			continue
		}
		entries = append(entries, Entry{
			QueryID:       id,
			BaseSeconds:   base,
			TargetSeconds: target,
			Ratio:         base / target,
			PercentChange: percentChange(base, target),
		})
	}
	for _, id := range b.IDs() {
		if _, ok := a.Get(id); !ok {
			report.OnlyTarget = append(report.OnlyTarget, id)
		}
	}

	report.Shared = len(entries)
	report.Ratios = Ratios(a, b)

	stats, err := summary.Summarize(report.Ratios)
	if err != nil {
		return nil, errors.Wrapf(err, "compare %s vs %s", a.Config, b.Config)
	}
	report.Summary = stats

	histogram, err := summary.Histogram(report.Ratios)
	if err != nil {
		return nil, errors.Wrapf(err, "compare %s vs %s", a.Config, b.Config)
	}
	report.Histogram = histogram

	report.Regressions, report.Improvements = split(entries, opts.MaxItems)
	report.Insights = synthesizeInsights(report)
	return report, nil
}

// split separates queries that ran slower under the target from those that
// ran faster, worst first, capped at maxItems each.
func split(entries []Entry, maxItems int) ([]Entry, []Entry) {
	var regressions, improvements []Entry
	for _, e := range entries {
		switch {
		case e.Ratio < 1:
			regressions = append(regressions, e)
		case e.Ratio > 1:
			improvements = append(improvements, e)
		}
	}
	slices.SortStableFunc(regressions, func(x, y Entry) int { return cmp.Compare(x.Ratio, y.Ratio) })
	slices.SortStableFunc(improvements, func(x, y Entry) int { return cmp.Compare(y.Ratio, x.Ratio) })

	if maxItems > 0 {
		if len(regressions) > maxItems {
			regressions = regressions[:maxItems]
		}
		if len(improvements) > maxItems {
			improvements = improvements[:maxItems]
		}
	}
	return regressions, improvements
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "# %s vs %s\n\n", r.Baseline, r.Target)
	b.WriteString("## Summary\n")
	_, _ = fmt.Fprintf(&b, "- Queries compared: %d", r.Shared)
	if n := len(r.OnlyBaseline) + len(r.OnlyTarget); n > 0 {
		_, _ = fmt.Fprintf(&b, " (%d skipped)", n)
	}
	b.WriteString("\n")
	_, _ = fmt.Fprintf(&b, "- median: %s\n", formatRatio(r.Summary.Median))
	_, _ = fmt.Fprintf(&b, "- 95%%: %s\n", formatRatio(r.Summary.P95))
	_, _ = fmt.Fprintf(&b, "- max: %s\n\n", formatRatio(r.Summary.Max))

	b.WriteString("### Histogram\n")
	b.WriteString("| Ratio | Queries | % |\n")
	b.WriteString("|---|---:|---:|\n")
	for _, bucket := range r.Histogram {
		_, _ = fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", bucket.Label, bucket.Count, bucket.Percent)
	}
	b.WriteString("\n")

	b.WriteString("### Insights\n")
	if len(r.Insights) == 0 {
		b.WriteString("- No notable timing changes detected\n")
	} else {
		for _, msg := range r.Insights {
			_, _ = fmt.Fprintf(&b, "- %s %s\n", msg.Icon(), msg.Text)
		}
	}

	b.WriteString("\n### Slower under " + r.Target + "\n")
	writeEntries(&b, r.Regressions, r.Baseline, r.Target)
	b.WriteString("\n### Faster under " + r.Target + "\n")
	writeEntries(&b, r.Improvements, r.Baseline, r.Target)
	return b.String()
}

func writeEntries(b *strings.Builder, entries []Entry, baseline, target string) {
	if len(entries) == 0 {
		b.WriteString("- None\n")
		return
	}
	_, _ = fmt.Fprintf(b, "| Query | %s (s) | %s (s) | Ratio | Δ %% |\n", baseline, target)
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, e := range entries {
		_, _ = fmt.Fprintf(b, "| %s | %.3f | %.3f | %s | %+.1f%% |\n",
			e.QueryID, e.BaseSeconds, e.TargetSeconds, formatRatio(e.Ratio), e.PercentChange)
	}
}

// JSON marshals the report into an indented JSON document. Infinite ratios
// are clamped to the largest float and NaN ratios are dropped.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil report")
	}
	type alias Report
	view := *r
	view.Ratios = make([]float64, 0, len(r.Ratios))
	for _, v := range r.Ratios {
		if !math.IsNaN(v) {
			view.Ratios = append(view.Ratios, clamp(v))
		}
	}
	view.Summary.Median = clamp(r.Summary.Median)
	view.Summary.P95 = clamp(r.Summary.P95)
	view.Summary.Max = clamp(r.Summary.Max)
	view.Regressions = clampEntries(r.Regressions)
	view.Improvements = clampEntries(r.Improvements)
	view.Histogram = make([]summary.Bucket, len(r.Histogram))
	for i, b := range r.Histogram {
		b.High = clamp(b.High)
		view.Histogram[i] = b
	}
	return json.MarshalIndent((*alias)(&view), "", "  ")
}

func clampEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Ratio = clamp(e.Ratio)
		e.PercentChange = clamp(e.PercentChange)
		out[i] = e
	}
	return out
}

// clamp maps values encoding/json cannot represent onto finite ones.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return math.MaxFloat64
	case math.IsInf(v, -1):
		return -math.MaxFloat64
	}
	return v
}

func formatRatio(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "∞"
	}
	return "x" + humanize.FtoaWithDigits(v, 3)
}

func synthesizeInsights(r *Report) []insight.Message {
	cfg := config.Active().Insights
	var msgs []insight.Message

	// ratios below 1 mean the target configuration took longer
	if worst := r.Regressions; len(worst) > 0 {
		e := worst[0]
		if e.BaseSeconds <= 0 {
			msgs = append(msgs, insight.Message{
				Severity: insight.SeverityCritical,
				Text: fmt.Sprintf("%s took %ss under %s but no measurable time under %s",
					e.QueryID, humanize.FtoaWithDigits(e.TargetSeconds, 3), r.Target, r.Baseline),
			})
		} else if slowdown := e.TargetSeconds / e.BaseSeconds; slowdown >= cfg.SlowdownWarning {
			severity := insight.SeverityWarning
			if slowdown >= cfg.SlowdownCritical {
				severity = insight.SeverityCritical
			}
			msgs = append(msgs, insight.Message{
				Severity: severity,
				Text: fmt.Sprintf("%s ran %sx slower under %s than under %s",
					e.QueryID, humanize.FtoaWithDigits(slowdown, 2), r.Target, r.Baseline),
			})
		}
	}

	switch p95 := r.Summary.P95; {
	case math.IsInf(p95, 1):
		msgs = append(msgs, insight.Message{
			Severity: insight.SeverityCritical,
			Text:     fmt.Sprintf("5%% of queries took no measurable time under %s", r.Target),
		})
	case p95 >= cfg.SlowdownWarning:
		severity := insight.SeverityWarning
		if p95 >= cfg.SlowdownCritical {
			severity = insight.SeverityCritical
		}
		msgs = append(msgs, insight.Message{
			Severity: severity,
			Text: fmt.Sprintf("5%% of queries ran at least %sx faster under %s than under %s",
				humanize.FtoaWithDigits(p95, 2), r.Target, r.Baseline),
		})
	}

	if skipped := len(r.OnlyBaseline) + len(r.OnlyTarget); skipped > 0 {
		msgs = append(msgs, insight.Message{
			Severity: insight.SeverityInfo,
			Text:     fmt.Sprintf("%d queries ran under only one configuration and were left out", skipped),
		})
	}
	return msgs
}

func percentChange(base, target float64) float64 {
	const eps = 1e-9
	if math.Abs(base) <= eps {
		if math.Abs(target) <= eps {
			return 0
		}
		if target > 0 {
			return 100
		}
		return -100
	}
	return (target - base) / base * 100
}

func applyDefaults(opts Options) Options {
	if opts.MaxItems <= 0 {
		opts.MaxItems = config.Active().Insights.MaxItems
	}
	return opts
}
