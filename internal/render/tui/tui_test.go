package tui_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/compare"
	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/render/tui"
	"github.com/mickamy/cardest/internal/report"
	"github.com/mickamy/cardest/internal/store"
	"github.com/mickamy/cardest/test"
)

func sampleReport(t *testing.T) *report.Selectivity {
	t.Helper()
	config.Use(config.Default())
	execs := []*model.QueryExecution{
		test.LoadSampleExecution(t, "q2", "join3.json"),
		test.LoadSampleExecution(t, "q3", "simple_join.json"),
	}
	sel, err := report.Build(execs, analyzer.DefaultOptions())
	require.NoError(t, err)
	return sel
}

func TestRenderTree(t *testing.T) {
	root, err := analyzer.Annotate(test.LoadSampleExplain(t, "simple_join.json"), analyzer.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tui.RenderTree(&buf, root, tui.Options{BarWidth: 6}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Hash Join | level 1 | rows 400/100 | q -4.00 | #-----", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "|-- Seq Scan orders (o) | level 0 | rows 2,000/2,000 | q -1.00 | ------"))
	assert.True(t, strings.HasPrefix(lines[2], "`-- Hash | level 0"))
	assert.True(t, strings.HasPrefix(lines[3], "    `-- Seq Scan customers (c) | level 0"))
}

func TestRenderTreeDepthLimitAndSkipped(t *testing.T) {
	root, err := analyzer.Annotate(test.LoadSampleExplain(t, "join3.json"), analyzer.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tui.RenderTree(&buf, root, tui.Options{MaxDepth: 1}))
	out := buf.String()

	assert.Contains(t, strings.SplitN(out, "\n", 2)[0], "[no record]")
	assert.Contains(t, out, "`-- ... (5 more nodes)")
	assert.NotContains(t, out, "Index Scan")
}

func TestRenderTreeErrors(t *testing.T) {
	assert.Error(t, tui.RenderTree(nil, &analyzer.NodeStats{}, tui.Options{}))
	assert.Error(t, tui.RenderTree(&bytes.Buffer{}, nil, tui.Options{}))
}

func TestRenderSelectivity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tui.RenderSelectivity(&buf, sampleReport(t), tui.Options{ShowTrees: true}))
	out := buf.String()

	assert.Contains(t, out, "Queries 2 | Nodes 10 | Max join level 2")
	assert.Contains(t, out, "Insights:")
	assert.Contains(t, out, "|q-error| by join level")
	assert.Contains(t, out, "Top node per query")
	assert.Contains(t, out, "2,464.82")
	assert.Contains(t, out, "|q-error| by query")
	assert.Contains(t, out, "\nq3\nHash Join | level 1")
}

func TestRenderSelectivityEmpty(t *testing.T) {
	sel, err := report.Build(nil, analyzer.DefaultOptions())
	require.NoError(t, err)
	assert.Error(t, tui.RenderSelectivity(&bytes.Buffer{}, sel, tui.Options{}))
}

func TestRenderComparison(t *testing.T) {
	config.Use(config.Default())
	a := model.NewConfigurationRun("default")
	b := model.NewConfigurationRun("left")
	for id, v := range map[string][2]float64{"q1": {2, 1}, "q2": {1, 1}, "q3": {0.5, 1}, "q4": {50, 1}} {
		a.Set(id, v[0])
		b.Set(id, v[1])
	}
	r, err := compare.Build(a, b, compare.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tui.RenderComparison(&buf, []*compare.Report{r}, tui.Options{BarWidth: 4}))
	out := buf.String()

	assert.Contains(t, out, "default vs left")
	assert.Contains(t, out, "  0.3-0.9  #--- ")
	assert.Contains(t, out, " 25.0% (1)")
	assert.Contains(t, out, "  >100     ----   0.0% (0)")
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, tui.RenderRuns(&buf, nil))
	assert.Equal(t, "No stored runs.\n", buf.String())

	buf.Reset()
	require.NoError(t, tui.RenderRuns(&buf, []store.RunInfo{
		{ID: "run-1", Kind: store.KindTiming, Label: "left", Entries: 3, CreatedAt: time.Now()},
	}))
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "timing")
	assert.Contains(t, out, "left")
	assert.Contains(t, out, "now")
}
