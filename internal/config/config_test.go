package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/test"
)

func TestApplyDefaultAndFile(t *testing.T) {
	config.Use(config.Default())
	t.Cleanup(func() { config.Use(config.Default()) })

	require.NotZero(t, config.Active().Insights.QErrorCritical, "expected default q-error threshold to be non-zero")

	path := test.SamplePath(t, "config.example.json")
	require.NoError(t, config.Apply(path))

	cfg := config.Active()
	assert.Equal(t, 50.0, cfg.Insights.QErrorCritical)
	assert.Equal(t, 12, cfg.Insights.MaxItems)
	assert.Equal(t, 2*time.Minute, cfg.Runner.Timeout())
	assert.Equal(t, []string{"WindowAgg"}, cfg.Plan.ExtraSkipNodeTypes)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched sections keep their defaults
	assert.Equal(t, config.Default().Insights.SlowdownCritical, cfg.Insights.SlowdownCritical)
	assert.Equal(t, config.Default().Runner.ExplainOptions, cfg.Runner.ExplainOptions)

	require.NoError(t, config.Apply(""))
	assert.Equal(t, config.Default().Insights.MaxItems, config.Active().Insights.MaxItems)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := config.Load(test.SamplePath(t, "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Runner.Timeout())
	assert.Equal(t, []string{"Custom Join"}, cfg.Plan.ExtraJoinNodeTypes)
	assert.Equal(t, 1.5, cfg.Insights.SlowdownWarning)
	assert.Equal(t, 4.0, cfg.Insights.SlowdownCritical)
	assert.Equal(t, filepath.Join("output", "results.db"), cfg.Store.Path)
	assert.Equal(t, "pg_hint_plan.dp_tree_shape", cfg.Runner.ShapeSetting)
}

func TestApplyMissingFile(t *testing.T) {
	err := config.Apply(filepath.Join(os.TempDir(), "does-not-exist.json"))
	require.Error(t, err)
}

func TestApplyInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	err := config.Apply(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
