package insight_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/cardest/internal/aggregate"
	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/insight"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/test"
)

func TestForTable(t *testing.T) {
	config.Use(config.Default())

	exec := test.LoadSampleExecution(t, "q2", "join3.json")
	execs := []*model.QueryExecution{exec}
	msgs := insight.ForTable(aggregate.Build(execs), aggregate.QuerySummaries(execs))
	require.Len(t, msgs, 7)

	assert.Equal(t, insight.SeverityCritical, msgs[0].Severity)
	assert.Contains(t, msgs[0].Text, "Nested Loop (node 0.0.1.0)")
	assert.Contains(t, msgs[0].Text, "expected 1,000 rows got 10, overestimated x100")
	assert.Equal(t, "query-q2-node-0-0-1-0", msgs[0].Anchor)

	assert.Contains(t, msgs[2].Text, "Hash Join (node 0.0)")
	assert.Equal(t, insight.SeverityWarning, msgs[2].Severity)
	assert.Contains(t, msgs[3].Text, "Index Scan")

	assert.True(t, strings.HasPrefix(msgs[4].Text, "Join level 1: median |q-error| 100"))
	assert.Equal(t, insight.SeverityCritical, msgs[4].Severity)
	assert.True(t, strings.HasPrefix(msgs[5].Text, "Join level 2"))

	assert.True(t, strings.HasPrefix(msgs[6].Text, "Worst query: q2 top Hash Join at join level 2"))
	assert.Equal(t, "query-q2", msgs[6].Anchor)
}

func TestForTableRespectsThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.Insights.QErrorWarning = 1000
	cfg.Insights.QErrorCritical = 5000
	config.Use(cfg)
	t.Cleanup(func() { config.Use(config.Default()) })

	execs := []*model.QueryExecution{test.LoadSampleExecution(t, "q2", "join3.json")}
	assert.Empty(t, insight.ForTable(aggregate.Build(execs), aggregate.QuerySummaries(execs)))
}

func TestForTableEmpty(t *testing.T) {
	assert.Nil(t, insight.ForTable(nil, nil))
	assert.Nil(t, insight.ForTable(aggregate.Build(nil), nil))
}

func TestSeverityFor(t *testing.T) {
	config.Use(config.Default())
	assert.Equal(t, insight.SeverityInfo, insight.SeverityFor(-1))
	assert.Equal(t, insight.SeverityWarning, insight.SeverityFor(-10))
	assert.Equal(t, insight.SeverityCritical, insight.SeverityFor(250))
}

func TestLabels(t *testing.T) {
	root, err := analyzer.Annotate(test.LoadSampleExplain(t, "simple_join.json"), analyzer.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "Hash Join", insight.NodeLabel(root))
	assert.Equal(t, "Seq Scan orders (o)", insight.NodeLabel(root.Children[0]))
	assert.Equal(t, "", insight.NodeLabel(nil))

	long := &analyzer.NodeStats{Node: &model.PlanNode{NodeType: "Seq Scan", RelationName: strings.Repeat("x", 80)}}
	assert.Len(t, insight.CompactLabel(long), 60)
	assert.Equal(t, "a b c", insight.NormalizeWhitespace(" a \n b\tc "))
}

func TestIcon(t *testing.T) {
	assert.Equal(t, "🔥", insight.Message{Severity: insight.SeverityCritical}.Icon())
	assert.Equal(t, "ℹ️", insight.Message{Severity: insight.SeverityInfo}.Icon())
}
