package analyzer_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/parser"
	"github.com/mickamy/cardest/internal/qerror"
	"github.com/mickamy/cardest/test"
)

func TestExtractDataDriven(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "extract":
				opts := analyzer.DefaultOptions()
				for _, arg := range d.CmdArgs {
					switch arg.Key {
					case "skip":
						opts.SkipNodeTypes = append(opts.SkipNodeTypes, arg.Vals...)
					case "join":
						opts.JoinNodeTypes = append(opts.JoinNodeTypes, arg.Vals...)
					}
				}
				plan, err := parser.ParseJSON(strings.NewReader(d.Input))
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				records, level, err := analyzer.Extract(plan.Plan, opts)
				if err != nil {
					return fmt.Sprintf("error: %v\n", err)
				}
				var b strings.Builder
				for _, rec := range records {
					fmt.Fprintf(&b, "%s %s level=%d est=%g act=%g q=%.4g\n",
						rec.NodeID, rec.NodeType, rec.JoinLevel, rec.Estimated, rec.Actual,
						qerror.Of(rec.Estimated, rec.Actual))
				}
				fmt.Fprintf(&b, "max-join-level=%d\n", level)
				return b.String()
			default:
				d.Fatalf(t, "unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}

func TestExtractSingleJoinOverTwoLeaves(t *testing.T) {
	root := &model.PlanNode{ID: "0", NodeType: "Hash Join", PlanRows: 10, ActualRows: 10, Children: []*model.PlanNode{
		{ID: "0.0", NodeType: "Seq Scan", PlanRows: 5, ActualRows: 5},
		{ID: "0.1", NodeType: "Seq Scan", PlanRows: 2, ActualRows: 2},
	}}

	records, level, err := analyzer.Extract(root, analyzer.DefaultOptions())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 0, records[0].JoinLevel)
	assert.Equal(t, 0, records[1].JoinLevel)
	assert.Equal(t, "Hash Join", records[2].NodeType)
	assert.Equal(t, 1, records[2].JoinLevel)
	assert.Equal(t, 1, level)
}

func TestExtractRecordCountMatchesNonAggregateNodes(t *testing.T) {
	for _, sample := range []string{"join3.json", "agg_single.json", "simple_join.json"} {
		t.Run(sample, func(t *testing.T) {
			plan := test.LoadSampleExplain(t, sample)
			records, _, err := analyzer.Extract(plan.Plan, analyzer.DefaultOptions())
			require.NoError(t, err)

			nonAggregate := 0
			var walk func(*model.PlanNode)
			walk = func(n *model.PlanNode) {
				if n.NodeType != "Aggregate" {
					nonAggregate++
				}
				if n.IsLeaf() {
					for _, rec := range records {
						if rec.NodeID == n.ID {
							assert.Zero(t, rec.JoinLevel, "leaf %s", n.ID)
						}
					}
				}
				for _, child := range n.Children {
					walk(child)
				}
			}
			walk(plan.Plan)
			assert.Len(t, records, nonAggregate)
		})
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	plan := test.LoadSampleExplain(t, "join3.json")
	first, firstLevel, err := analyzer.Extract(plan.Plan, analyzer.DefaultOptions())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, level, err := analyzer.Extract(plan.Plan, analyzer.DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.Equal(t, firstLevel, level)
	}
}

func TestExtractNilNode(t *testing.T) {
	_, _, err := analyzer.Extract(nil, analyzer.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMalformedPlan))
}

func TestAnalyzeSample(t *testing.T) {
	exec := test.LoadSampleExecution(t, "q2.sql", "join3.json")

	assert.Equal(t, "q2.sql", exec.QueryID)
	assert.Equal(t, 2, exec.MaxJoinLevel)
	assert.Len(t, exec.Records, 6)
	assert.InDelta(t, 2464.82, exec.TotalCost(), 1e-9)
	assert.InDelta(t, 41.402, exec.ExecutionTime(), 1e-9)
	assert.InDelta(t, 0.912, exec.PlanningTime(), 1e-9)

	top, ok := exec.TopRecord()
	require.True(t, ok)
	assert.Equal(t, "Hash Join", top.NodeType)
	assert.Equal(t, 2, top.JoinLevel)
}

func TestAnalyzeMissingPlan(t *testing.T) {
	_, err := analyzer.Analyze("q", nil, analyzer.DefaultOptions())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrMalformedPlan))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := analyzer.OptionsFromConfig(config.PlanConfig{
		ExtraJoinNodeTypes: []string{"Custom Join"},
		ExtraSkipNodeTypes: []string{"WindowAgg"},
	})
	assert.Contains(t, opts.JoinNodeTypes, "Hash Join")
	assert.Contains(t, opts.JoinNodeTypes, "Custom Join")
	assert.Contains(t, opts.SkipNodeTypes, "Aggregate")
	assert.Contains(t, opts.SkipNodeTypes, "WindowAgg")
}

func TestAnnotateMatchesExtract(t *testing.T) {
	plan := test.LoadSampleExplain(t, "join3.json")
	opts := analyzer.DefaultOptions()

	records, level, err := analyzer.Extract(plan.Plan, opts)
	require.NoError(t, err)
	root, err := analyzer.Annotate(plan, opts)
	require.NoError(t, err)

	assert.Equal(t, level, root.JoinLevel)
	assert.True(t, root.Skipped)

	byID := map[string]model.Record{}
	for _, rec := range records {
		byID[rec.NodeID] = rec
	}
	visited := 0
	analyzer.Walk(root, func(n *analyzer.NodeStats) {
		visited++
		rec, ok := byID[n.Node.ID]
		if n.Skipped {
			assert.False(t, ok, "skipped node %s must not emit a record", n.Node.ID)
			return
		}
		require.True(t, ok, "missing record for %s", n.Node.ID)
		assert.Equal(t, rec.JoinLevel, n.JoinLevel, "node %s", n.Node.ID)
		assert.Equal(t, qerror.Of(rec.Estimated, rec.Actual), n.QError)
	})
	assert.Equal(t, plan.Plan.Count(), visited)
}
