// Package report assembles everything the renderers show about a batch of
// executed queries.
package report

import (
	"github.com/mickamy/cardest/internal/aggregate"
	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/insight"
	"github.com/mickamy/cardest/internal/model"
)

// QueryTree is the annotated plan of one query.
type QueryTree struct {
	QueryID string
	SQL     string
	Root    *analyzer.NodeStats
}

// Selectivity is the cardinality-estimation report of a batch.
type Selectivity struct {
	Table     *aggregate.Table
	Summaries []aggregate.QuerySummary
	// JoinLevels covers base rows and join nodes only.
	JoinLevels   []aggregate.GroupStat
	Queries      []aggregate.GroupStat
	Costs        []aggregate.CostPoint
	Insights     []insight.Message
	Trees        []QueryTree
	MaxJoinLevel int
}

// Build aggregates the executions and annotates their plans.
func Build(executions []*model.QueryExecution, opts analyzer.Options) (*Selectivity, error) {
	table := aggregate.Build(executions)
	summaries := aggregate.QuerySummaries(executions)

	s := &Selectivity{
		Table:      table,
		Summaries:  summaries,
		JoinLevels: aggregate.GroupStats(table.JoinLevelRows(opts).ByJoinLevel()),
		Costs:      aggregate.CostPoints(summaries),
		Queries:    aggregate.GroupStats(table.ByQuery()),
		Insights:   insight.ForTable(table, summaries),
	}
	for _, exec := range executions {
		if exec.MaxJoinLevel > s.MaxJoinLevel {
			s.MaxJoinLevel = exec.MaxJoinLevel
		}
		root, err := analyzer.Annotate(exec.Plan, opts)
		if err != nil {
			return nil, err
		}
		s.Trees = append(s.Trees, QueryTree{QueryID: exec.QueryID, SQL: exec.SQL, Root: root})
	}
	return s, nil
}

// QueryCount returns the number of queries with at least one record.
func (s *Selectivity) QueryCount() int {
	return len(s.Summaries)
}
