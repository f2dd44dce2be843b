// Package queryset loads SQL statements from files and directories.
package queryset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
)

// Naming decides how a query file is identified.
type Naming int

const (
	// ByPath identifies a query by the path it was read from.
	ByPath Naming = iota
	// ByStem identifies a query by its file name without the .sql extension.
	ByStem
)

// Load reads every path as a query. Directories expand to the .sql files
// they contain, sorted by name. The first query wins when two share an id.
func Load(paths []string, naming Naming) ([]model.Query, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrapf(errs.ErrNotFound, "%s", p)
			}
			return nil, errors.Wrapf(err, "stat %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		expanded, err := sqlFiles(p)
		if err != nil {
			return nil, err
		}
		files = append(files, expanded...)
	}

	seen := map[string]struct{}{}
	out := make([]model.Query, 0, len(files))
	for _, f := range files {
		id := queryID(f, naming)
		if _, dup := seen[id]; dup {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", f)
		}
		seen[id] = struct{}{}
		out = append(out, model.Query{ID: id, Path: f, SQL: string(data)})
	}
	return out, nil
}

func sqlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func queryID(path string, naming Naming) string {
	if naming == ByStem {
		base := filepath.Base(path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	return path
}
