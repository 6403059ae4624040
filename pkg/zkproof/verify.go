package zkproof

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// ErrVerificationFailed marks a proof artifact that did not verify.
// Unlike unavailability this is not a degraded mode: a failed
// verification forces rejection, exactly like a violation.
var ErrVerificationFailed = errors.New("zkproof: proof verification failed")

// Verifier independently checks a prover result before its approved flag
// is trusted. The circuit input is offered so a verifier for a circuit
// that commits its inputs can bind the artifact to what was evaluated;
// the current guest commits only outputs, so both shipped verifiers
// ignore it and the manual evaluator stays authoritative on the inputs.
type Verifier interface {
	Verify(ctx context.Context, res *Result, input *CircuitInput) error
}

// SignalVerifier checks internal consistency: the artifact must exist and
// the public signals must restate the claimed result fields in the
// circuit's commit order (approved, riskScore, violationCount, ruleMask).
// An artifact whose signals contradict its summary is rejected without
// ever reaching cryptographic verification. The circuit input goes
// unused: the guest commits no input values, so there is nothing in the
// artifact to compare it against.
type SignalVerifier struct{}

// Verify implements Verifier.
func (SignalVerifier) Verify(_ context.Context, res *Result, _ *CircuitInput) error {
	if len(res.Proof) == 0 {
		return fmt.Errorf("%w: result carries no proof artifact", ErrVerificationFailed)
	}
	if len(res.PublicSignals) < 3 {
		return fmt.Errorf("%w: expected at least 3 public signals, got %d", ErrVerificationFailed, len(res.PublicSignals))
	}

	signals := make([]uint64, 0, len(res.PublicSignals))
	for i, s := range res.PublicSignals {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: public signal %d is not an integer: %q", ErrVerificationFailed, i, s)
		}
		signals = append(signals, v)
	}

	wantApproved := uint64(0)
	if res.Approved {
		wantApproved = 1
	}
	if signals[0] != wantApproved {
		return fmt.Errorf("%w: approved signal %d contradicts result %v", ErrVerificationFailed, signals[0], res.Approved)
	}
	if signals[1] != uint64(res.RiskScore) {
		return fmt.Errorf("%w: risk signal %d contradicts result %d", ErrVerificationFailed, signals[1], res.RiskScore)
	}
	if signals[2] != uint64(res.ViolationCount) {
		return fmt.Errorf("%w: violation signal %d contradicts result %d", ErrVerificationFailed, signals[2], res.ViolationCount)
	}
	if len(signals) > 3 && res.RuleMask != 0 && signals[3] != res.RuleMask {
		return fmt.Errorf("%w: rule mask signal %d contradicts result %d", ErrVerificationFailed, signals[3], res.RuleMask)
	}
	return nil
}

// CommandVerifier shells out to an external verification binary (holding
// the verification key) with {proof, publicSignals} on stdin. Exit code
// zero means the artifact verified; anything else, including timeout or
// a missing binary, is a verification failure. Fail-closed: an artifact
// that cannot be verified is treated as an invalid artifact. The circuit
// input is not forwarded: the guest commits only outputs, so the
// external verifier can attest the artifact's integrity but not bind it
// to this evaluation's inputs.
type CommandVerifier struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// Verify implements Verifier.
func (v *CommandVerifier) Verify(ctx context.Context, res *Result, _ *CircuitInput) error {
	if v.Binary == "" {
		return fmt.Errorf("%w: no verifier binary configured", ErrVerificationFailed)
	}

	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultProveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(struct {
		Proof         json.RawMessage `json:"proof"`
		PublicSignals []string        `json:"publicSignals"`
	}{Proof: res.Proof, PublicSignals: res.PublicSignals})
	if err != nil {
		return fmt.Errorf("%w: marshal verification request: %v", ErrVerificationFailed, err)
	}

	cmd := exec.CommandContext(ctx, v.Binary, v.Args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: verifier rejected artifact: %v (%s)", ErrVerificationFailed, err, truncateForLog(stderr.String()))
	}
	return nil
}

// MultiVerifier runs verifiers in order; the first failure wins.
type MultiVerifier []Verifier

// Verify implements Verifier.
func (m MultiVerifier) Verify(ctx context.Context, res *Result, input *CircuitInput) error {
	for _, v := range m {
		if err := v.Verify(ctx, res, input); err != nil {
			return err
		}
	}
	return nil
}
