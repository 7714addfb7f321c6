// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all service configuration.
type Config struct {
	// HTTP server
	HTTPHost string
	HTTPPort int

	// Vector store
	VectorMode  string // "memory" is the built-in backend
	VectorHost  string
	VectorPort  int
	Tier1Prefix string
	Tier2Prefix string
	Replication int
	Shards      int
	DenseDim    int

	// Gateway
	GatewayTimeout     time.Duration
	GatewayParallelism int

	// Durable registry and eval capture
	RegistryDBPath string
	EvalsDir       string

	// Analysis
	AnalysisInterval time.Duration

	// Live tail
	LiveLogPath string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment from .env file")
	}

	cfg := &Config{
		HTTPHost:           envString("VIA_HTTP_HOST", "0.0.0.0"),
		HTTPPort:           envInt("VIA_HTTP_PORT", 8000),
		VectorMode:         envString("VIA_VECTOR_MODE", "memory"),
		VectorHost:         envString("VIA_VECTOR_HOST", "localhost"),
		VectorPort:         envInt("VIA_VECTOR_PORT", 6333),
		Tier1Prefix:        envString("VIA_TIER1_PREFIX", "via_rhythm_monitor"),
		Tier2Prefix:        envString("VIA_TIER2_PREFIX", "via_forensic_index"),
		Replication:        envInt("VIA_REPLICATION_FACTOR", 1),
		Shards:             envInt("VIA_SHARD_NUMBER", 1),
		DenseDim:           envInt("VIA_DENSE_DIM", 384),
		GatewayTimeout:     time.Duration(envInt("VIA_GATEWAY_TIMEOUT_SEC", 30)) * time.Second,
		GatewayParallelism: envInt("VIA_GATEWAY_PARALLELISM", 8),
		RegistryDBPath:     envString("VIA_REGISTRY_DB_PATH", "registry.db"),
		EvalsDir:           envString("VIA_EVALS_DIR", "evals"),
		AnalysisInterval:   time.Duration(envInt("VIA_ANALYSIS_INTERVAL_SEC", 60)) * time.Second,
		LiveLogPath:        envString("VIA_LIVE_LOG_PATH", "logs/live_stream.jsonl"),
		LogLevel:           envString("VIA_LOG_LEVEL", "info"),
		LogFormat:          envString("VIA_LOG_FORMAT", "auto"),
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring non-integer environment value")
		return fallback
	}
	return n
}
