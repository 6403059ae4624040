// Command mandate evaluates payment and scheduling intents against
// spending policies, optionally backed by an external proof generator.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearproof/mandate/pkg/config"
	"github.com/clearproof/mandate/pkg/engine"
	"github.com/clearproof/mandate/pkg/intent"
	"github.com/clearproof/mandate/pkg/observability"
	"github.com/clearproof/mandate/pkg/policy"
	"github.com/clearproof/mandate/pkg/spend"
	"github.com/clearproof/mandate/pkg/zkproof"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "evaluate":
		return runEvaluate(args[2:], stdout, stderr)
	case "policy-init":
		return runPolicyInit(args[2:], stdout, stderr)
	case "policy-check":
		return runPolicyCheck(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mandate <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  evaluate      Evaluate an intent against a policy and print the decision")
	fmt.Fprintln(w, "  policy-init   Print a default policy bundle for a user")
	fmt.Fprintln(w, "  policy-check  Validate a policy bundle file")
	fmt.Fprintln(w, "  help          Show this message")
}

func runEvaluate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	intentPath := fs.String("intent", "", "path to intent JSON (required)")
	policyPath := fs.String("policy", "", "path to a policy bundle file or directory (required)")
	userID := fs.String("user", "", "user whose policy applies (required with a policy directory)")
	profilePath := fs.String("profile", "", "optional YAML deployment profile")
	record := fs.Bool("record", false, "record the amount against the spending ledger when approved")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *intentPath == "" || *policyPath == "" {
		fmt.Fprintln(stderr, "evaluate: -intent and -policy are required")
		return 2
	}

	cfg := config.Load()
	if *profilePath != "" {
		p, err := config.LoadProfile(*profilePath)
		if err != nil {
			fmt.Fprintf(stderr, "evaluate: %v\n", err)
			return 2
		}
		if err := p.Apply(cfg); err != nil {
			fmt.Fprintf(stderr, "evaluate: %v\n", err)
			return 2
		}
	}
	logger := newLogger(cfg.LogLevel, stderr)

	in, err := readIntent(*intentPath)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}

	pol, err := loadPolicy(*policyPath, *userID)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}

	ctx := context.Background()

	ledger, cleanup, err := buildSpendProvider(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}
	defer cleanup()

	sc, err := ledger.Spending(ctx, pol.UserID, time.Unix(in.Timestamp, 0).UTC())
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: spending lookup: %v\n", err)
		return 2
	}

	runner, runnerClose, err := buildRunner(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}
	defer runnerClose()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TelemetryEnabled,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
	})
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}
	defer obs.Shutdown(ctx)

	eng := engine.New(engine.Config{
		ProofEnabled: cfg.ProofEnabled,
		ProofTimeout: cfg.ProofTimeout,
		ProofRate:    cfg.ProofRate,
		ProofBurst:   cfg.ProofBurst,
	}, runner, buildVerifier(cfg), logger).WithMetrics(obs)

	dec, err := eng.Evaluate(ctx, in, pol, sc)
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}

	if *record && dec.Approved && !dec.RequiresManualApproval {
		if err := ledger.Record(ctx, pol.UserID, in.Amount, time.Unix(in.Timestamp, 0).UTC()); err != nil {
			fmt.Fprintf(stderr, "evaluate: record spending: %v\n", err)
			return 2
		}
	}

	out, err := json.MarshalIndent(dec, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "evaluate: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(out))

	if dec.Approved && !dec.RequiresManualApproval {
		return 0
	}
	return 1
}

func runPolicyInit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("policy-init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	userID := fs.String("user", "", "user the policy belongs to (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *userID == "" {
		fmt.Fprintln(stderr, "policy-init: -user is required")
		return 2
	}

	out, err := json.MarshalIndent(policy.CreateDefault(*userID), "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "policy-init: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}

func runPolicyCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("policy-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: mandate policy-check <bundle.json>")
		return 2
	}

	pol, err := policy.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "policy-check: %v\n", err)
		return 1
	}
	hash, err := pol.ContentHash()
	if err != nil {
		fmt.Fprintf(stderr, "policy-check: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "ok: policy %s version %d (%s)\n", pol.ID, pol.Version, hash)
	return 0
}

func readIntent(path string) (*intent.Intent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intent: %w", err)
	}
	var raw intent.Intent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse intent: %w", err)
	}
	// Revalidate through the constructor; hand-edited files get the same
	// scrutiny as extracted ones.
	return intent.New(raw.Kind, raw.Amount, raw.Recipient, raw.Vendor, raw.Category, raw.Timestamp, raw.Provenance)
}

func loadPolicy(path, userID string) (*policy.Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat policy path: %w", err)
	}
	if !info.IsDir() {
		return policy.LoadFile(path)
	}
	if userID == "" {
		return nil, fmt.Errorf("a policy directory needs -user")
	}
	policies, err := policy.LoadDir(path)
	if err != nil {
		return nil, err
	}
	pol, ok := policies[userID]
	if !ok {
		return nil, fmt.Errorf("no policy for user %q in %s", userID, path)
	}
	return pol, nil
}

func buildSpendProvider(cfg *config.Config) (spend.Provider, func(), error) {
	noop := func() {}
	switch cfg.SpendBackend {
	case "", "memory":
		return spend.NewMemoryStore(), noop, nil
	case "sqlite":
		store, err := spend.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	case "postgres":
		store, err := spend.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return spend.NewRedisStore(client, ""), func() { client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown spend backend %q", cfg.SpendBackend)
	}
}

func buildRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (zkproof.Runner, func(), error) {
	noop := func() {}
	if !cfg.ProofEnabled {
		return nil, noop, nil
	}
	if cfg.ProofWasmPath != "" {
		wasmBytes, err := os.ReadFile(cfg.ProofWasmPath)
		if err != nil {
			return nil, noop, fmt.Errorf("read prover module: %w", err)
		}
		runner, err := zkproof.NewWasmRunner(ctx, wasmBytes, cfg.ProofTimeout)
		if err != nil {
			return nil, noop, err
		}
		return runner, func() { runner.Close(ctx) }, nil
	}
	return &zkproof.SubprocessRunner{
		Binary:  cfg.ProofBinary,
		Timeout: cfg.ProofTimeout,
		Logger:  logger,
	}, noop, nil
}

func buildVerifier(cfg *config.Config) zkproof.Verifier {
	if cfg.ProofVerifierBinary == "" {
		return zkproof.SignalVerifier{}
	}
	return zkproof.MultiVerifier{
		zkproof.SignalVerifier{},
		&zkproof.CommandVerifier{Binary: cfg.ProofVerifierBinary, Timeout: cfg.ProofTimeout},
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
