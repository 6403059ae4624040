// Package engine composes the manual evaluator and the proof backend
// into the single evaluation entry point.
//
// The manual decision is always computed. When proof generation is
// enabled, the backend is attempted under a hard timeout; both backends
// must approve for overall approval, so the proof path can only narrow
// what the manual evaluator granted. An unavailable backend degrades to
// the manual decision with proof kind "manual" — a defined mode, not an
// error. Evaluations hold no state between calls and are idempotent for
// identical inputs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/clearproof/mandate/pkg/evaluate"
	"github.com/clearproof/mandate/pkg/intent"
	"github.com/clearproof/mandate/pkg/policy"
	"github.com/clearproof/mandate/pkg/zkproof"
)

// riskProofVerificationFailed is added when an artifact fails
// verification. The decision is already forced to rejection; the weight
// keeps risk ordering sensible for dashboards.
const riskProofVerificationFailed = 30

// Config controls one engine instance. Built once at process start and
// passed in; the engine reads no environment and holds no globals.
type Config struct {
	// ProofEnabled attempts the proof backend on every evaluation.
	ProofEnabled bool
	// ProofTimeout bounds one prover invocation. Zero means the runner's
	// default.
	ProofTimeout time.Duration
	// ProofRate and ProofBurst bound how fast proof processes may be
	// spawned across concurrent evaluations. Zero rate means unlimited.
	ProofRate  float64
	ProofBurst int
}

// Metrics receives evaluation outcomes. Implemented by the
// observability provider; a nil Metrics is a no-op.
type Metrics interface {
	RecordEvaluation(ctx context.Context, approved bool, proofKind evaluate.ProofKind, elapsed time.Duration)
	RecordProofUnavailable(ctx context.Context, cause string)
}

// Engine is the evaluation orchestrator.
type Engine struct {
	cfg      Config
	runner   zkproof.Runner
	verifier zkproof.Verifier
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  Metrics
	clock    func() time.Time
	newID    func() string
}

// New creates an engine. runner and verifier may be nil when proof
// generation is disabled; a nil runner with proof enabled degrades every
// evaluation to the manual decision, and a nil verifier with a
// configured runner falls back to signal-consistency verification only.
func New(cfg Config, runner zkproof.Runner, verifier zkproof.Verifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if verifier == nil {
		verifier = zkproof.SignalVerifier{}
	}
	var limiter *rate.Limiter
	if cfg.ProofRate > 0 {
		burst := cfg.ProofBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProofRate), burst)
	}
	return &Engine{
		cfg:      cfg,
		runner:   runner,
		verifier: verifier,
		limiter:  limiter,
		logger:   logger.With("component", "engine"),
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock overrides the decision timestamp source, for tests.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithIDGenerator overrides decision ID generation, for tests.
func (e *Engine) WithIDGenerator(gen func() string) *Engine {
	e.newID = gen
	return e
}

// WithMetrics attaches an evaluation metrics sink.
func (e *Engine) WithMetrics(m Metrics) *Engine {
	e.metrics = m
	return e
}

// Evaluate is the single evaluation entry point. It returns an error
// only for invalid input; once intent and policy are valid, a decision
// always comes back, whatever the proof backend does.
func (e *Engine) Evaluate(ctx context.Context, in *intent.Intent, pol *policy.Policy, sc evaluate.SpendingContext) (*evaluate.Decision, error) {
	start := e.clock()

	if in == nil {
		return nil, &intent.ValidationError{Field: "intent", Msg: "nil intent"}
	}
	if pol == nil {
		return nil, fmt.Errorf("engine: nil policy")
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}

	d := evaluate.Evaluate(in, pol, sc)

	switch {
	case !e.cfg.ProofEnabled:
		d.Proof = evaluate.Proof{Kind: evaluate.ProofNone}
	case e.runner == nil:
		// Proof was requested but no runner was wired. That is a degraded
		// backend, not a disabled one; reporting kind "none" here would
		// hide the gap from anyone auditing the proof tag.
		e.degradeToManual(ctx, d, "not_configured", nil)
	default:
		e.attemptProof(ctx, d, in, pol, sc)
	}

	d.ID = e.newID()
	d.EvaluatedAt = e.clock().UTC()
	if hash, err := evaluate.ComputeDecisionHash(d); err == nil {
		d.DecisionHash = hash
	}

	elapsed := e.clock().Sub(start)
	if e.metrics != nil {
		e.metrics.RecordEvaluation(ctx, d.Approved, d.Proof.Kind, elapsed)
	}
	e.logger.Info("evaluated intent",
		"decision_id", d.ID,
		"approved", d.Approved,
		"requires_manual_approval", d.RequiresManualApproval,
		"risk_score", d.RiskScore,
		"violations", len(d.Violations),
		"proof_kind", d.Proof.Kind,
		"policy_version", d.PolicyVersion,
	)
	return d, nil
}

// attemptProof runs the proof backend and merges its result into the
// manual decision in place. Failure never raises approval likelihood:
// unavailability keeps the manual outcome, verification failure forces
// rejection.
func (e *Engine) attemptProof(ctx context.Context, d *evaluate.Decision, in *intent.Intent, pol *policy.Policy, sc evaluate.SpendingContext) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.degradeToManual(ctx, d, "rate_limited", err)
			return
		}
	}

	proveCtx := ctx
	if e.cfg.ProofTimeout > 0 {
		var cancel context.CancelFunc
		proveCtx, cancel = context.WithTimeout(ctx, e.cfg.ProofTimeout)
		defer cancel()
	}

	input, report := zkproof.EncodeInput(in, pol, sc)

	res, err := e.runner.Prove(proveCtx, input)
	if err != nil {
		cause := "unavailable"
		var u *zkproof.Unavailable
		if errors.As(err, &u) {
			cause = u.Cause
		}
		e.degradeToManual(ctx, d, cause, err)
		return
	}

	if err := e.verifier.Verify(ctx, res, input); err != nil {
		e.logger.Warn("proof artifact failed verification", "err", err)
		d.Violations = append(d.Violations, evaluate.Violation{
			Kind:   evaluate.ViolationProofVerification,
			Rule:   "proof.verify",
			Detail: err.Error(),
		})
		d.MatchedRules = append(d.MatchedRules, "proof.verify")
		d.Approved = false
		d.RiskScore = capRisk(d.RiskScore + riskProofVerificationFailed)
		d.Proof = evaluate.Proof{Kind: evaluate.ProofManual, Diagnostic: "verification_failed: " + err.Error()}
		return
	}

	// Verified artifact: both backends must approve.
	d.Approved = d.Approved && res.Approved
	if res.RiskScore > d.RiskScore {
		d.RiskScore = res.RiskScore
	}
	if res.ViolationCount > len(d.Violations) {
		// The circuit reports only a count; a single descriptor carries
		// what the manual pass did not already explain.
		d.Violations = append(d.Violations, evaluate.Violation{
			Kind:   evaluate.ViolationProofReported,
			Rule:   "proof.circuit",
			Detail: fmt.Sprintf("circuit reported %d violations (%d explained manually)", res.ViolationCount, len(d.Violations)),
		})
		d.MatchedRules = append(d.MatchedRules, "proof.circuit")
	}
	d.Proof = evaluate.Proof{
		Kind:          evaluate.ProofCryptographic,
		Payload:       res.Proof,
		PublicSignals: res.PublicSignals,
		Diagnostic:    encodingNote(report),
	}
}

func (e *Engine) degradeToManual(ctx context.Context, d *evaluate.Decision, cause string, err error) {
	e.logger.Warn("proof backend unavailable, using manual decision", "cause", cause, "err", err)
	if e.metrics != nil {
		e.metrics.RecordProofUnavailable(ctx, cause)
	}
	d.Proof = evaluate.Proof{Kind: evaluate.ProofManual, Diagnostic: cause}
}

// encodingNote summarizes what the fixed circuit shape could not carry,
// retained on the proof for observability.
func encodingNote(r *zkproof.EncodingReport) string {
	if r == nil {
		return ""
	}
	note := ""
	if r.TruncatedVendors > 0 {
		note += fmt.Sprintf("truncated %d allow-list entries; ", r.TruncatedVendors)
	}
	if r.TruncatedCategoryRules > 0 {
		note += fmt.Sprintf("truncated %d category rules; ", r.TruncatedCategoryRules)
	}
	if r.TruncatedConditionalRules > 0 {
		note += fmt.Sprintf("truncated %d conditional rules; ", r.TruncatedConditionalRules)
	}
	if len(r.SkippedPredicates) > 0 {
		note += fmt.Sprintf("%d predicates evaluated manually only; ", len(r.SkippedPredicates))
	}
	if r.BlockListOmitted {
		note += "block list enforced manually only; "
	}
	return note
}

func capRisk(r int) int {
	if r > 100 {
		return 100
	}
	return r
}
