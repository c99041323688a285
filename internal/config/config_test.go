// SPDX-License-Identifier: Apache-2.0

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnilang/omnilang/internal/config"
	"github.com/omnilang/omnilang/internal/decision"
	"github.com/omnilang/omnilang/internal/policyir"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, 50, cfg.Guard.MaxIterations)
	assert.Equal(t, 1000, cfg.Guard.MaxTimeMs)
	assert.False(t, cfg.LegacyForNullIterations)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omnilang.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard:\n  max_iterations: 10\n  max_time_ms: 200\nlegacy_for_null_iterations: true\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Guard.MaxIterations)
	assert.Equal(t, 200, cfg.Guard.MaxTimeMs)
	assert.True(t, cfg.LegacyForNullIterations)
}

func TestApply(t *testing.T) {
	t.Cleanup(func() {
		policyir.DefaultMaxIterations = 50
		policyir.DefaultMaxTimeMs = 1000
	})

	opts := config.Apply(config.Config{
		Guard:                   config.Guard{MaxIterations: 5, MaxTimeMs: 100},
		LegacyForNullIterations: true,
	})
	assert.Equal(t, 5, policyir.DefaultMaxIterations)
	assert.Equal(t, 100, policyir.DefaultMaxTimeMs)
	assert.Equal(t, decision.Options{LegacyForNullIterations: true}, opts)
}
