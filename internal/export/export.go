// Package export writes the aggregated tables for external plotting tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/cardest/internal/aggregate"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", errors.Newf("export: unsupported file extension %q", filepath.Ext(path))
	}
}

// Data is everything a selectivity report exports.
type Data struct {
	Table      *aggregate.Table
	Summaries  []aggregate.QuerySummary
	JoinLevels []aggregate.GroupStat
	Costs      []aggregate.CostPoint
}

// Write encodes data in the given format. CSV holds only the node table.
func Write(w io.Writer, data Data, format Format) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, data.Table)
	case FormatJSON:
		return writeJSON(w, data)
	case FormatXLSX:
		return writeXLSX(w, data)
	default:
		return errors.Newf("export: unsupported format %q", format)
	}
}

var nodeHeader = []string{"query_id", "node_id", "node_type", "join_level", "estimated", "actual", "q_error"}

func nodeRecord(r aggregate.Row) []string {
	return []string{
		r.QueryID,
		r.NodeID,
		r.NodeType,
		strconv.Itoa(r.JoinLevel),
		formatFloat(r.Estimated),
		formatFloat(r.Actual),
		formatFloat(r.QError),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeCSV(w io.Writer, table *aggregate.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(nodeHeader); err != nil {
		return errors.Wrap(err, "export: write csv header")
	}
	if table != nil {
		for _, r := range table.Rows {
			if err := cw.Write(nodeRecord(r)); err != nil {
				return errors.Wrap(err, "export: write csv row")
			}
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "export: flush csv")
}

func writeJSON(w io.Writer, data Data) error {
	doc := struct {
		Nodes      []aggregate.Row          `json:"nodes"`
		Queries    []aggregate.QuerySummary `json:"queries"`
		JoinLevels []aggregate.GroupStat    `json:"join_levels"`
		Costs      []aggregate.CostPoint    `json:"costs"`
	}{
		Nodes:      []aggregate.Row{},
		Queries:    data.Summaries,
		JoinLevels: data.JoinLevels,
		Costs:      data.Costs,
	}
	if data.Table != nil {
		doc.Nodes = data.Table.Rows
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(doc), "export: encode json")
}
