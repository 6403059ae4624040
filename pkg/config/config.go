// Package config loads runtime configuration from 12-factor environment
// variables, with an optional YAML deployment profile overlay.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds engine configuration.
type Config struct {
	LogLevel  string
	PolicyDir string

	// Proof backend.
	ProofEnabled        bool
	ProofBinary         string
	ProofWasmPath       string
	ProofVerifierBinary string
	ProofTimeout        time.Duration
	ProofRate           float64
	ProofBurst          int

	// Spending ledger. Backend is one of memory, sqlite, postgres, redis.
	SpendBackend string
	DatabaseURL  string
	SQLitePath   string
	RedisAddr    string

	// Telemetry.
	TelemetryEnabled bool
	OTLPEndpoint     string
	ServiceName      string
}

// Load loads configuration from environment variables with safe
// defaults: proof generation off, in-memory ledger, telemetry off.
func Load() *Config {
	return &Config{
		LogLevel:  envOr("LOG_LEVEL", "INFO"),
		PolicyDir: envOr("POLICY_DIR", "./policies"),

		ProofEnabled:        envBool("PROOF_ENABLED"),
		ProofBinary:         os.Getenv("PROOF_BINARY"),
		ProofWasmPath:       os.Getenv("PROOF_WASM_PATH"),
		ProofVerifierBinary: os.Getenv("PROOF_VERIFIER_BINARY"),
		ProofTimeout:        envDuration("PROOF_TIMEOUT", 30*time.Second),
		ProofRate:           envFloat("PROOF_RATE", 0),
		ProofBurst:          envInt("PROOF_BURST", 1),

		SpendBackend: envOr("SPEND_BACKEND", "memory"),
		DatabaseURL:  envOr("DATABASE_URL", "postgres://mandate@localhost:5432/mandate?sslmode=disable"),
		SQLitePath:   envOr("SQLITE_PATH", "./mandate.db"),
		RedisAddr:    envOr("REDIS_ADDR", "localhost:6379"),

		TelemetryEnabled: envBool("TELEMETRY_ENABLED"),
		OTLPEndpoint:     envOr("OTLP_ENDPOINT", "localhost:4317"),
		ServiceName:      envOr("SERVICE_NAME", "mandate"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
