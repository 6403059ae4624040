package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/mandate/pkg/config"
)

// System must boot with safe defaults: proof off, memory ledger,
// telemetry off.
func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LOG_LEVEL", "POLICY_DIR", "PROOF_ENABLED", "PROOF_BINARY",
		"PROOF_TIMEOUT", "SPEND_BACKEND", "TELEMETRY_ENABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.False(t, cfg.ProofEnabled)
	assert.Equal(t, 30*time.Second, cfg.ProofTimeout)
	assert.Equal(t, "memory", cfg.SpendBackend)
	assert.False(t, cfg.TelemetryEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("PROOF_ENABLED", "true")
	t.Setenv("PROOF_BINARY", "/usr/local/bin/prover")
	t.Setenv("PROOF_TIMEOUT", "45s")
	t.Setenv("PROOF_RATE", "2.5")
	t.Setenv("SPEND_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://prod:5432/mandate")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.True(t, cfg.ProofEnabled)
	assert.Equal(t, "/usr/local/bin/prover", cfg.ProofBinary)
	assert.Equal(t, 45*time.Second, cfg.ProofTimeout)
	assert.Equal(t, 2.5, cfg.ProofRate)
	assert.Equal(t, "postgres", cfg.SpendBackend)
	assert.Equal(t, "postgres://prod:5432/mandate", cfg.DatabaseURL)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PROOF_TIMEOUT", "soon")
	t.Setenv("PROOF_BURST", "many")

	cfg := config.Load()

	assert.Equal(t, 30*time.Second, cfg.ProofTimeout)
	assert.Equal(t, 1, cfg.ProofBurst)
}

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestProfileOverlay(t *testing.T) {
	path := writeProfile(t, `
name: production
log_level: WARN
proof:
  enabled: true
  binary: /opt/prover/host
  timeout: 20s
  rate: 4
spend:
  backend: redis
  redis_addr: redis.internal:6379
telemetry:
  enabled: true
  otlp_endpoint: otel.internal:4317
`)

	p, err := config.LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "production", p.Name)

	cfg := config.Load()
	require.NoError(t, p.Apply(cfg))

	assert.Equal(t, "WARN", cfg.LogLevel)
	assert.True(t, cfg.ProofEnabled)
	assert.Equal(t, "/opt/prover/host", cfg.ProofBinary)
	assert.Equal(t, 20*time.Second, cfg.ProofTimeout)
	assert.Equal(t, 4.0, cfg.ProofRate)
	assert.Equal(t, "redis", cfg.SpendBackend)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "otel.internal:4317", cfg.OTLPEndpoint)
}

func TestProfileLeavesUnsetFieldsAlone(t *testing.T) {
	path := writeProfile(t, "name: minimal\n")

	p, err := config.LoadProfile(path)
	require.NoError(t, err)

	cfg := config.Load()
	base := *cfg
	require.NoError(t, p.Apply(cfg))

	assert.Equal(t, base.LogLevel, cfg.LogLevel)
	assert.Equal(t, base.SpendBackend, cfg.SpendBackend)
}

func TestProfileRequiresName(t *testing.T) {
	path := writeProfile(t, "log_level: DEBUG\n")
	_, err := config.LoadProfile(path)
	require.Error(t, err)
}

func TestProfileRejectsBadTimeout(t *testing.T) {
	path := writeProfile(t, "name: broken\nproof:\n  timeout: whenever\n")
	p, err := config.LoadProfile(path)
	require.NoError(t, err)
	require.Error(t, p.Apply(config.Load()))
}

func TestProfileMissingFile(t *testing.T) {
	_, err := config.LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
