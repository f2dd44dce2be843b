package aggregate

import (
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/qerror"
)

// QuerySummary describes one query by its top node estimate and costs.
type QuerySummary struct {
	QueryID         string  `json:"query_id"`
	MaxJoinLevel    int     `json:"max_join_level"`
	TopNodeType     string  `json:"top_node_type"`
	TopQError       float64 `json:"top_q_error"`
	TotalCost       float64 `json:"total_cost"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	PlanningTimeMs  float64 `json:"planning_time_ms"`
}

// QuerySummaries returns one summary per execution that produced records.
func QuerySummaries(executions []*model.QueryExecution) []QuerySummary {
	out := make([]QuerySummary, 0, len(executions))
	for _, exec := range executions {
		top, ok := exec.TopRecord()
		if !ok {
			continue
		}
		out = append(out, QuerySummary{
			QueryID:         exec.QueryID,
			MaxJoinLevel:    exec.MaxJoinLevel,
			TopNodeType:     top.NodeType,
			TopQError:       qerror.Of(top.Estimated, top.Actual),
			TotalCost:       exec.TotalCost(),
			ExecutionTimeMs: exec.ExecutionTime(),
			PlanningTimeMs:  exec.PlanningTime(),
		})
	}
	return out
}

// CostPoint pairs the optimizer's cost with the measured execution time.
type CostPoint struct {
	QueryID         string  `json:"query_id"`
	TotalCost       float64 `json:"total_cost"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

// CostPoints projects summaries onto cost and time.
func CostPoints(summaries []QuerySummary) []CostPoint {
	out := make([]CostPoint, len(summaries))
	for i, s := range summaries {
		out[i] = CostPoint{QueryID: s.QueryID, TotalCost: s.TotalCost, ExecutionTimeMs: s.ExecutionTimeMs}
	}
	return out
}
