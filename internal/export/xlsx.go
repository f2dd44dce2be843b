package export

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook.
const (
	SheetNodes      = "nodes"
	SheetQueries    = "queries"
	SheetJoinLevels = "join_levels"
	SheetCosts      = "costs"
)

func writeXLSX(w io.Writer, data Data) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetNodes); err != nil {
		return errors.Wrap(err, "export: rename sheet")
	}
	var nodes [][]any
	if data.Table != nil {
		for _, r := range data.Table.Rows {
			nodes = append(nodes, []any{r.QueryID, r.NodeID, r.NodeType, r.JoinLevel, r.Estimated, r.Actual, r.QError})
		}
	}
	if err := writeSheet(f, SheetNodes, nodeHeader, nodes); err != nil {
		return err
	}

	queries := make([][]any, 0, len(data.Summaries))
	for _, s := range data.Summaries {
		queries = append(queries, []any{s.QueryID, s.MaxJoinLevel, s.TopNodeType, s.TopQError, s.TotalCost, s.ExecutionTimeMs, s.PlanningTimeMs})
	}
	if _, err := f.NewSheet(SheetQueries); err != nil {
		return errors.Wrap(err, "export: add sheet")
	}
	queryHeader := []string{"query_id", "max_join_level", "top_node_type", "top_q_error", "total_cost", "execution_time_ms", "planning_time_ms"}
	if err := writeSheet(f, SheetQueries, queryHeader, queries); err != nil {
		return err
	}

	levels := make([][]any, 0, len(data.JoinLevels))
	for _, l := range data.JoinLevels {
		levels = append(levels, []any{l.Level, l.Stats.Count, l.Stats.Median, l.Stats.P95, l.Stats.Max})
	}
	if _, err := f.NewSheet(SheetJoinLevels); err != nil {
		return errors.Wrap(err, "export: add sheet")
	}
	if err := writeSheet(f, SheetJoinLevels, []string{"join_level", "count", "median", "p95", "max"}, levels); err != nil {
		return err
	}

	costs := make([][]any, 0, len(data.Costs))
	for _, c := range data.Costs {
		costs = append(costs, []any{c.QueryID, c.TotalCost, c.ExecutionTimeMs})
	}
	if _, err := f.NewSheet(SheetCosts); err != nil {
		return errors.Wrap(err, "export: add sheet")
	}
	if err := writeSheet(f, SheetCosts, []string{"query_id", "total_cost", "execution_time_ms"}, costs); err != nil {
		return err
	}

	return errors.Wrap(f.Write(w), "export: write xlsx")
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any) error {
	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return errors.Wrap(err, "export: cell name")
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return errors.Wrapf(err, "export: write %s header", sheet)
		}
	}
	for i, row := range rows {
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return errors.Wrap(err, "export: cell name")
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return errors.Wrapf(err, "export: write %s row %d", sheet, i+1)
			}
		}
	}
	return nil
}
