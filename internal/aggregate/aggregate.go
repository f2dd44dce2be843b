// Package aggregate flattens analyzed executions into a node table and groups it for reporting.
package aggregate

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/qerror"
	"github.com/mickamy/cardest/internal/summary"
)

// Row is one plan node of one query with its q-error.
type Row struct {
	QueryID   string  `json:"query_id"`
	NodeID    string  `json:"node_id"`
	NodeType  string  `json:"node_type"`
	JoinLevel int     `json:"join_level"`
	Estimated float64 `json:"estimated"`
	Actual    float64 `json:"actual"`
	QError    float64 `json:"q_error"`
}

// Table holds rows in execution order.
type Table struct {
	Rows []Row
}

// Build appends the records of every execution, in order.
func Build(executions []*model.QueryExecution) *Table {
	t := &Table{}
	for _, exec := range executions {
		t.Append(exec)
	}
	return t
}

// Append adds the records of a single execution.
func (t *Table) Append(exec *model.QueryExecution) {
	if exec == nil {
		return
	}
	for _, rec := range exec.Records {
		t.Rows = append(t.Rows, Row{
			QueryID:   exec.QueryID,
			NodeID:    rec.NodeID,
			NodeType:  rec.NodeType,
			JoinLevel: rec.JoinLevel,
			Estimated: rec.Estimated,
			Actual:    rec.Actual,
			QError:    qerror.Of(rec.Estimated, rec.Actual),
		})
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Filter returns a new table with the rows for which keep reports true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// JoinLevelRows keeps base rows at join level 0 and join nodes. Operators
// stacked on a join, such as Hash or Sort, repeat its level and are dropped.
func (t *Table) JoinLevelRows(opts analyzer.Options) *Table {
	return t.Filter(func(r Row) bool {
		return r.JoinLevel == 0 || opts.IsJoin(r.NodeType)
	})
}

// Group is a set of rows sharing a key.
type Group struct {
	Key     string    `json:"key"`
	Level   int       `json:"level,omitempty"`
	QErrors []float64 `json:"q_errors"`
}

// ByJoinLevel groups q-errors by join level, ascending.
func (t *Table) ByJoinLevel() []Group {
	index := map[int]int{}
	var groups []Group
	for _, r := range t.Rows {
		i, ok := index[r.JoinLevel]
		if !ok {
			i = len(groups)
			index[r.JoinLevel] = i
			groups = append(groups, Group{Key: levelKey(r.JoinLevel), Level: r.JoinLevel})
		}
		groups[i].QErrors = append(groups[i].QErrors, r.QError)
	}
	slices.SortFunc(groups, func(a, b Group) int { return cmp.Compare(a.Level, b.Level) })
	return groups
}

// ByQuery groups q-errors by query, in first-seen order.
func (t *Table) ByQuery() []Group {
	index := map[string]int{}
	var groups []Group
	for _, r := range t.Rows {
		i, ok := index[r.QueryID]
		if !ok {
			i = len(groups)
			index[r.QueryID] = i
			groups = append(groups, Group{Key: r.QueryID})
		}
		groups[i].QErrors = append(groups[i].QErrors, r.QError)
	}
	return groups
}

func levelKey(level int) string {
	return "level " + strconv.Itoa(level)
}

// GroupStat summarizes the q-error magnitudes of a group.
type GroupStat struct {
	Key   string        `json:"key"`
	Level int           `json:"level,omitempty"`
	Stats summary.Stats `json:"stats"`
}

// GroupStats summarizes |q-error| for every non-empty group.
func GroupStats(groups []Group) []GroupStat {
	out := make([]GroupStat, 0, len(groups))
	for _, g := range groups {
		magnitudes := make([]float64, len(g.QErrors))
		for i, q := range g.QErrors {
			magnitudes[i] = qerror.Magnitude(q)
		}
		stats, err := summary.Summarize(magnitudes)
		if err != nil {
			continue
		}
		out = append(out, GroupStat{Key: g.Key, Level: g.Level, Stats: stats})
	}
	return out
}
