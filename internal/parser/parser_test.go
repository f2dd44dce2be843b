package parser_test

import (
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/parser"
	"github.com/mickamy/cardest/test"
)

func TestParseSample(t *testing.T) {
	plan := test.LoadSampleExplain(t, "join3.json")

	require.NotNil(t, plan.Plan)
	assert.Equal(t, "Aggregate", plan.Plan.NodeType)
	assert.Equal(t, "0", plan.Plan.ID)
	assert.InDelta(t, 0.912, plan.PlanningTime, 1e-9)
	assert.InDelta(t, 41.402, plan.ExecutionTime, 1e-9)
	assert.InDelta(t, 2464.82, plan.TotalCost, 1e-9)

	join := plan.Plan.Children[0]
	assert.Equal(t, "0.0", join.ID)
	assert.Equal(t, "Hash Join", join.NodeType)
	assert.Equal(t, "Inner", join.JoinType)
	assert.Equal(t, 1.0, join.ActualLoops)
	assert.Equal(t, 7, plan.Plan.Count())

	scan := join.Children[1].Children[0].Children[0]
	assert.Equal(t, "0.0.1.0.0", scan.ID)
	assert.Equal(t, "b", scan.RelationName)
	assert.Equal(t, 50.0, scan.PlanRows)
	assert.Equal(t, 200.0, scan.ActualRows)
}

func TestParseBareObjectAndFractionalRows(t *testing.T) {
	plan, err := parser.ParseJSON(strings.NewReader(`{"Plan": {"Node Type": "Seq Scan", "Plan Rows": 0.5, "Actual Rows": 3}}`))
	require.NoError(t, err)
	assert.True(t, plan.Plan.IsLeaf())
	assert.Equal(t, 0.5, plan.Plan.PlanRows)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		path  string
	}{
		{"not json", `{`, ""},
		{"empty array", `[]`, ""},
		{"scalar payload", `42`, ""},
		{"missing plan", `[{"Execution Time": 1}]`, ""},
		{"plan not object", `[{"Plan": 3}]`, "0"},
		{"missing node type", `{"Plan": {"Plan Rows": 1, "Actual Rows": 1}}`, "0"},
		{"missing actual rows", `{"Plan": {"Node Type": "Seq Scan", "Plan Rows": 1}}`, "0"},
		{"non numeric rows", `{"Plan": {"Node Type": "Seq Scan", "Plan Rows": "many", "Actual Rows": 1}}`, "0"},
		{"negative rows", `{"Plan": {"Node Type": "Seq Scan", "Plan Rows": -1, "Actual Rows": 1}}`, "0"},
		{"plans not array", `{"Plan": {"Node Type": "Hash Join", "Plan Rows": 1, "Actual Rows": 1, "Plans": {}}}`, "0"},
		{"child not object", `{"Plan": {"Node Type": "Hash Join", "Plan Rows": 1, "Actual Rows": 1, "Plans": [1]}}`, "0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ParseJSON(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errs.ErrMalformedPlan))

			var malformed *errs.MalformedPlanError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.path, malformed.Path)
		})
	}
}

func TestParseSampleMissingRows(t *testing.T) {
	f, err := os.Open(test.SamplePath(t, "malformed_missing_rows.json"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	_, err = parser.ParseJSON(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 0.0")
	assert.Contains(t, err.Error(), "missing Actual Rows")
}
