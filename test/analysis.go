package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mickamy/cardest/internal/analyzer"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/parser"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves a path relative to the repository rootPath (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// SamplePath joins rel onto the samples directory.
func SamplePath(t *testing.T, rel string) string {
	t.Helper()
	return filepath.Join(RootPath(t), "samples", rel)
}

// LoadSampleExplain parses a plan relative to the samples directory.
func LoadSampleExplain(t *testing.T, rel string) *model.Explain {
	t.Helper()
	f, err := os.Open(SamplePath(t, rel))
	if err != nil {
		t.Fatalf("open plan: %v", err)
	}
	defer func() { _ = f.Close() }()

	plan, err := parser.ParseJSON(f)
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return plan
}

// LoadSampleExecution parses and analyzes a sample plan as if queryID had been executed.
func LoadSampleExecution(t *testing.T, queryID, rel string) *model.QueryExecution {
	t.Helper()
	raw, err := os.ReadFile(SamplePath(t, rel))
	if err != nil {
		t.Fatalf("read plan: %v", err)
	}
	plan, err := parser.ParseBytes(raw)
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	exec, err := analyzer.Analyze(queryID, plan, analyzer.DefaultOptions())
	if err != nil {
		t.Fatalf("analyze plan: %v", err)
	}
	exec.Raw = raw
	return exec
}
