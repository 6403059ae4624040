// Package evaluate implements the deterministic in-process policy
// evaluator: the reference implementation and the ground truth that the
// proof backend is cross-checked against.
package evaluate

import (
	"fmt"
	"time"

	"github.com/clearproof/mandate/pkg/canonicalize"
)

// ViolationKind is the machine-readable tag on a violation descriptor.
type ViolationKind string

const (
	ViolationAmountExceeded    ViolationKind = "amount_exceeded"
	ViolationDailyLimit        ViolationKind = "daily_limit"
	ViolationWeeklyLimit       ViolationKind = "weekly_limit"
	ViolationBlockList         ViolationKind = "block_list"
	ViolationAllowList         ViolationKind = "allow_list"
	ViolationHourWindow        ViolationKind = "hour_window"
	ViolationWeekday           ViolationKind = "weekday"
	ViolationCategoryCap       ViolationKind = "category_cap"
	ViolationConditionalReject ViolationKind = "conditional_reject"

	// Set by the orchestrator, never by the manual evaluator.
	ViolationProofReported     ViolationKind = "proof_reported"
	ViolationProofVerification ViolationKind = "proof_verification"
)

// Violation is one violated constraint: a machine kind, the identifier of
// the rule that fired, and a human-readable detail line.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Rule   string        `json:"rule"`
	Detail string        `json:"detail"`
}

// ProofKind tags how a decision's approval is backed.
type ProofKind string

const (
	// ProofNone: proof generation was disabled by configuration.
	ProofNone ProofKind = "none"
	// ProofManual: the proof backend was enabled but unavailable; the
	// decision rests on the manual evaluator alone. Degraded but defined.
	ProofManual ProofKind = "manual"
	// ProofCryptographic: a verified proof artifact backs the decision.
	ProofCryptographic ProofKind = "cryptographic"
)

// Proof is the tagged proof variant carried by a decision.
type Proof struct {
	Kind          ProofKind `json:"kind"`
	Payload       []byte    `json:"payload,omitempty"`
	PublicSignals []string  `json:"public_signals,omitempty"`
	// Diagnostic retains the cause when the backend was unavailable or
	// verification failed, for observability. Not part of the decision hash.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// SpendingContext is the aggregate spend supplied by the external ledger
// collaborator. Read-only to the evaluator.
type SpendingContext struct {
	SpentToday    int64 `json:"spent_today"`
	SpentThisWeek int64 `json:"spent_this_week"`
}

// Decision is the immutable output of an evaluation.
type Decision struct {
	ID                     string      `json:"id,omitempty"`
	Approved               bool        `json:"approved"`
	RequiresManualApproval bool        `json:"requires_manual_approval"`
	RiskScore              int         `json:"risk_score"`
	Violations             []Violation `json:"violations"`
	MatchedRules           []string    `json:"matched_rules"`
	// RuleMask mirrors the proof circuit's applied-rules bitmask so the
	// two backends can be cross-checked bit-for-bit.
	RuleMask      uint64    `json:"rule_mask"`
	Proof         Proof     `json:"proof"`
	PolicyID      string    `json:"policy_id"`
	PolicyVersion int       `json:"policy_version"`
	PolicyHash    string    `json:"policy_hash"`
	EvaluatedAt   time.Time `json:"evaluated_at,omitempty"`
	DecisionHash  string    `json:"decision_hash,omitempty"`
}

// ComputeDecisionHash produces the deterministic hash of a decision over
// its canonical JSON form. Volatile fields (ID, EvaluatedAt, the hash
// itself, proof payload and diagnostics) are excluded so that identical
// evaluations hash identically across runs.
func ComputeDecisionHash(d *Decision) (string, error) {
	hashInput := struct {
		Approved               bool        `json:"approved"`
		RequiresManualApproval bool        `json:"requires_manual_approval"`
		RiskScore              int         `json:"risk_score"`
		Violations             []Violation `json:"violations"`
		MatchedRules           []string    `json:"matched_rules"`
		RuleMask               uint64      `json:"rule_mask"`
		ProofKind              ProofKind   `json:"proof_kind"`
		PolicyID               string      `json:"policy_id"`
		PolicyVersion          int         `json:"policy_version"`
		PolicyHash             string      `json:"policy_hash"`
	}{
		Approved:               d.Approved,
		RequiresManualApproval: d.RequiresManualApproval,
		RiskScore:              d.RiskScore,
		Violations:             d.Violations,
		MatchedRules:           d.MatchedRules,
		RuleMask:               d.RuleMask,
		ProofKind:              d.Proof.Kind,
		PolicyID:               d.PolicyID,
		PolicyVersion:          d.PolicyVersion,
		PolicyHash:             d.PolicyHash,
	}

	hash, err := canonicalize.CanonicalHash(hashInput)
	if err != nil {
		return "", fmt.Errorf("evaluate: decision hash canonicalization failed: %w", err)
	}
	return hash, nil
}
