package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTPHost)
	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.VectorMode)
	assert.Equal(t, "via_rhythm_monitor", cfg.Tier1Prefix)
	assert.Equal(t, "via_forensic_index", cfg.Tier2Prefix)
	assert.Equal(t, 384, cfg.DenseDim)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 8, cfg.GatewayParallelism)
	assert.Equal(t, 60*time.Second, cfg.AnalysisInterval)
	assert.Equal(t, "registry.db", cfg.RegistryDBPath)
	assert.Equal(t, "evals", cfg.EvalsDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("VIA_HTTP_PORT", "9100")
	t.Setenv("VIA_VECTOR_MODE", "qdrant")
	t.Setenv("VIA_ANALYSIS_INTERVAL_SEC", "15")
	t.Setenv("VIA_TIER2_PREFIX", "forensics")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTPPort)
	assert.Equal(t, "qdrant", cfg.VectorMode)
	assert.Equal(t, 15*time.Second, cfg.AnalysisInterval)
	assert.Equal(t, "forensics", cfg.Tier2Prefix)
}

func TestLoadIgnoresBadIntegers(t *testing.T) {
	t.Setenv("VIA_HTTP_PORT", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.HTTPPort)
}
