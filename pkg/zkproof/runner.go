package zkproof

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"time"

	"github.com/clearproof/mandate/pkg/canonicalize"
)

// DefaultProveTimeout bounds one prover invocation. Proof generation for
// this circuit takes seconds to tens of seconds; anything past this is
// abandoned and reported as unavailable.
const DefaultProveTimeout = 30 * time.Second

// Runner produces a proof result for an encoded circuit input. Every
// failure mode surfaces as an Unavailable error; Prove never panics and
// never fabricates an approval.
type Runner interface {
	Prove(ctx context.Context, input *CircuitInput) (*Result, error)
}

// SubprocessRunner invokes the external prover binary, writing the
// canonical JSON input on stdin and parsing a single JSON object from
// stdout. One OS process per call; the caller bounds concurrency.
type SubprocessRunner struct {
	Binary  string
	Args    []string
	Timeout time.Duration // zero means DefaultProveTimeout
	Logger  *slog.Logger
}

// Prove implements Runner.
func (r *SubprocessRunner) Prove(ctx context.Context, input *CircuitInput) (*Result, error) {
	if r.Binary == "" {
		return nil, unavailable("not_configured", nil)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultProveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := canonicalize.JCS(input)
	if err != nil {
		return nil, unavailable("encode_failed", err)
	}

	cmd := exec.CommandContext(ctx, r.Binary, r.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		r.log().Warn("prover timed out", "binary", r.Binary, "timeout", timeout)
		return nil, unavailable("timeout", ctx.Err())
	}
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
			return nil, unavailable("missing_binary", runErr)
		}
		r.log().Warn("prover exited with error", "binary", r.Binary, "err", runErr, "stderr", truncateForLog(stderr.String()))
		return nil, unavailable("process_failed", runErr)
	}

	res, err := ParseResult(stdout.Bytes())
	if err != nil {
		r.log().Warn("prover output rejected", "binary", r.Binary, "err", err)
		return nil, err
	}
	return res, nil
}

func (r *SubprocessRunner) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default().With("component", "zkproof")
}

func truncateForLog(s string) string {
	const max = 512
	if len(s) > max {
		return s[:max] + "...(truncated)"
	}
	return s
}
