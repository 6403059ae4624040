package zkproof

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/clearproof/mandate/pkg/canonicalize"
)

// WasmRunner runs a prover compiled to WASI inside an in-process wazero
// sandbox instead of spawning an OS process. Same wire contract as the
// subprocess runner: canonical JSON on stdin, one JSON object on stdout.
//
// Deny-by-default: no filesystem mounts, no network, no environment,
// no host clock or randomness. CPU time is bounded by the call timeout.
type WasmRunner struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	timeout  time.Duration
}

// NewWasmRunner compiles the prover module once; instances are created
// per Prove call, so a single runner is safe for concurrent use.
func NewWasmRunner(ctx context.Context, wasmBytes []byte, timeout time.Duration) (*WasmRunner, error) {
	if timeout <= 0 {
		timeout = DefaultProveTimeout
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("zkproof: compile wasm prover: %w", err)
	}

	return &WasmRunner{runtime: r, compiled: compiled, timeout: timeout}, nil
}

// Prove implements Runner.
func (w *WasmRunner) Prove(ctx context.Context, input *CircuitInput) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	payload, err := canonicalize.JCS(input)
	if err != nil {
		return nil, unavailable("encode_failed", err)
	}

	var stdout, stderr bytes.Buffer
	// Anonymous module name so concurrent instantiations don't collide.
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(bytes.NewReader(payload)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")

	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, cfg)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, unavailable("timeout", ctx.Err())
		}
		return nil, unavailable("wasm_failed", err)
	}
	_ = mod.Close(ctx)

	return ParseResult(stdout.Bytes())
}

// Close releases the runtime and all compiled code.
func (w *WasmRunner) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
