package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a named deployment profile: a YAML overlay applied on top
// of the environment-derived configuration. Zero-valued fields leave the
// base configuration untouched.
type Profile struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level,omitempty"`
	PolicyDir string `yaml:"policy_dir,omitempty"`

	Proof struct {
		Enabled        bool    `yaml:"enabled"`
		Binary         string  `yaml:"binary,omitempty"`
		WasmPath       string  `yaml:"wasm_path,omitempty"`
		VerifierBinary string  `yaml:"verifier_binary,omitempty"`
		Timeout        string  `yaml:"timeout,omitempty"`
		Rate           float64 `yaml:"rate,omitempty"`
		Burst          int     `yaml:"burst,omitempty"`
	} `yaml:"proof,omitempty"`

	Spend struct {
		Backend     string `yaml:"backend,omitempty"`
		DatabaseURL string `yaml:"database_url,omitempty"`
		SQLitePath  string `yaml:"sqlite_path,omitempty"`
		RedisAddr   string `yaml:"redis_addr,omitempty"`
	} `yaml:"spend,omitempty"`

	Telemetry struct {
		Enabled      bool   `yaml:"enabled"`
		OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	} `yaml:"telemetry,omitempty"`
}

// LoadProfile reads and parses a YAML profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read profile %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("config: profile %s: missing name", path)
	}
	return &p, nil
}

// Apply overlays the profile onto cfg in place. Booleans in the profile
// always win; strings and numbers win only when non-zero.
func (p *Profile) Apply(cfg *Config) error {
	setString(&cfg.LogLevel, p.LogLevel)
	setString(&cfg.PolicyDir, p.PolicyDir)

	cfg.ProofEnabled = p.Proof.Enabled
	setString(&cfg.ProofBinary, p.Proof.Binary)
	setString(&cfg.ProofWasmPath, p.Proof.WasmPath)
	setString(&cfg.ProofVerifierBinary, p.Proof.VerifierBinary)
	if p.Proof.Timeout != "" {
		d, err := time.ParseDuration(p.Proof.Timeout)
		if err != nil {
			return fmt.Errorf("config: profile %s: bad proof timeout: %w", p.Name, err)
		}
		cfg.ProofTimeout = d
	}
	if p.Proof.Rate > 0 {
		cfg.ProofRate = p.Proof.Rate
	}
	if p.Proof.Burst > 0 {
		cfg.ProofBurst = p.Proof.Burst
	}

	setString(&cfg.SpendBackend, p.Spend.Backend)
	setString(&cfg.DatabaseURL, p.Spend.DatabaseURL)
	setString(&cfg.SQLitePath, p.Spend.SQLitePath)
	setString(&cfg.RedisAddr, p.Spend.RedisAddr)

	cfg.TelemetryEnabled = p.Telemetry.Enabled
	setString(&cfg.OTLPEndpoint, p.Telemetry.OTLPEndpoint)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
