package tui

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/mickamy/cardest/internal/store"
)

// RenderRuns lists stored runs, newest first.
func RenderRuns(w io.Writer, runs []store.RunInfo) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No stored runs.")
		return err
	}
	table := newTable(w, []string{"ID", "Kind", "Label", "Entries", "Created"})
	for _, run := range runs {
		table.Append([]string{
			run.ID,
			run.Kind,
			run.Label,
			strconv.Itoa(run.Entries),
			humanize.Time(run.CreatedAt),
		})
	}
	table.Render()
	return nil
}
