// Package zkproof bridges an intent/policy pair to an external
// proof-generating circuit and back: fixed-shape numeric encoding,
// bounded invocation of the prover, and independent verification of the
// returned artifact.
//
// The circuit is consumed as a black box with a hard wire shape: at most
// 10 allow-listed vendor hashes, 5 category rules and 5 conditional
// rules. Excess entries are truncated and reported, never silently
// dropped. Because identifiers are folded into 53-bit integers, distinct
// identifiers can collide (birthday bound ~ n²/2⁵⁴, about 5.5e-12 for a
// thousand identifiers); the manual evaluator stays authoritative on
// identity and list-membership checks whenever the two backends disagree.
package zkproof

import (
	"encoding/binary"
	"math"
	"sort"

	"golang.org/x/crypto/sha3"

	"github.com/clearproof/mandate/pkg/evaluate"
	"github.com/clearproof/mandate/pkg/intent"
	"github.com/clearproof/mandate/pkg/policy"
)

// Circuit capacity limits. Fixed by the compiled guest.
const (
	MaxCircuitVendors          = 10
	MaxCircuitCategoryRules    = 5
	MaxCircuitConditionalRules = 5
)

// Circuit condition type codes.
const (
	condAmountAbove     uint64 = 1
	condAmountBelow     uint64 = 2
	condConfidenceBelow uint64 = 3
	condVendorEquals    uint64 = 4
	condCategoryEquals  uint64 = 5
	condHourAfter       uint64 = 6
)

// Circuit action codes.
const (
	actApprove         uint64 = 1
	actReject          uint64 = 2
	actRequireApproval uint64 = 3
)

// CircuitInput is the numeric-only request consumed by the proof process.
// Strings are pre-hashed; weekday sets are packed into a bitmask; amounts
// and bounds pass through as integers.
type CircuitInput struct {
	Amount        uint64 `json:"amount"`
	RecipientHash uint64 `json:"recipient_hash"`
	VendorHash    uint64 `json:"vendor_hash"`
	CategoryHash  uint64 `json:"category_hash"`
	Timestamp     uint64 `json:"timestamp"`
	AIConfidence  uint64 `json:"ai_confidence"` // 0-100

	MaxPerPayment      uint64 `json:"max_per_payment"`
	MaxPerDay          uint64 `json:"max_per_day"`
	MaxPerWeek         uint64 `json:"max_per_week"`
	AllowedHoursStart  uint64 `json:"allowed_hours_start"`
	AllowedHoursEnd    uint64 `json:"allowed_hours_end"`
	AllowedWeekdayMask uint64 `json:"allowed_weekday_mask"`

	AllowedVendorHashes []uint64 `json:"allowed_vendor_hashes"`

	CategoryHashes     []uint64 `json:"category_hashes"`
	CategoryMaxAmounts []uint64 `json:"category_max_amounts"`

	ConditionTypes   []uint64 `json:"condition_types"`
	ConditionValues  []uint64 `json:"condition_values"`
	ConditionActions []uint64 `json:"condition_actions"`

	MinAIConfidence uint64 `json:"min_ai_confidence"`

	CurrentSpending uint64 `json:"current_spending"`
	WeeklySpending  uint64 `json:"weekly_spending"`
}

// EncodingReport records everything the fixed circuit shape could not
// carry. A non-empty report means the circuit saw a weaker policy than
// the manual evaluator did; the orchestrator's AND-merge keeps that safe.
type EncodingReport struct {
	TruncatedVendors          int      `json:"truncated_vendors,omitempty"`
	TruncatedCategoryRules    int      `json:"truncated_category_rules,omitempty"`
	TruncatedConditionalRules int      `json:"truncated_conditional_rules,omitempty"`
	SkippedPredicates         []string `json:"skipped_predicates,omitempty"`
	BlockListOmitted          bool     `json:"block_list_omitted,omitempty"`
}

// HashIdentifier folds an identifier or vendor label into the first
// 53 bits of its SHA3-256 digest, after the same normalization that list
// matching uses. 53 bits keeps the value exact in an IEEE-754 double for
// the JSON process boundary.
func HashIdentifier(s string) uint64 {
	sum := sha3.Sum256([]byte(policy.Normalize(s)))
	return binary.BigEndian.Uint64(sum[:8]) >> 11
}

// EncodeInput maps an intent, a policy and the spending aggregates onto
// the circuit's wire shape. Pure and deterministic.
func EncodeInput(in *intent.Intent, pol *policy.Policy, sc evaluate.SpendingContext) (*CircuitInput, *EncodingReport) {
	report := &EncodingReport{}

	ci := &CircuitInput{
		Amount:             clampNonNegative(in.Amount),
		RecipientHash:      HashIdentifier(in.Recipient),
		VendorHash:         HashIdentifier(in.Vendor),
		CategoryHash:       HashIdentifier(in.Category),
		Timestamp:          clampNonNegative(in.Timestamp),
		AIConfidence:       uint64(math.Round(in.Provenance.Confidence * 100)),
		MaxPerPayment:      clampNonNegative(pol.MaxPerTransaction),
		MaxPerDay:          clampNonNegative(pol.MaxPerDay),
		MaxPerWeek:         clampNonNegative(pol.MaxPerWeek),
		AllowedHoursStart:  uint64(pol.AllowedHourStart),
		AllowedHoursEnd:    uint64(pol.AllowedHourEnd),
		AllowedWeekdayMask: uint64(pol.AllowedWeekdayMask()),
		CurrentSpending:    clampNonNegative(sc.SpentToday),
		WeeklySpending:     clampNonNegative(sc.SpentThisWeek),
	}

	// Allow list, truncated to circuit capacity.
	for i, entry := range pol.AllowList {
		if i >= MaxCircuitVendors {
			report.TruncatedVendors = len(pol.AllowList) - MaxCircuitVendors
			break
		}
		ci.AllowedVendorHashes = append(ci.AllowedVendorHashes, HashIdentifier(entry))
	}

	// The circuit has no block list; block enforcement is manual-only.
	if len(pol.BlockList) > 0 {
		report.BlockListOmitted = true
	}

	// Category rules in sorted key order, matching the evaluator's stable
	// rule-mask indexing, truncated to circuit capacity.
	keys := make([]string, 0, len(pol.CategoryRules))
	for k := range pol.CategoryRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i >= MaxCircuitCategoryRules {
			report.TruncatedCategoryRules = len(keys) - MaxCircuitCategoryRules
			break
		}
		ci.CategoryHashes = append(ci.CategoryHashes, HashIdentifier(k))
		ci.CategoryMaxAmounts = append(ci.CategoryMaxAmounts, clampNonNegative(pol.CategoryRules[k].MaxAmount))
	}

	// Conditional rules in policy order. Predicates without a circuit
	// code are evaluated manually only and recorded as skipped.
	encoded := 0
	for _, rule := range pol.ConditionalRules {
		code, value, ok := encodePredicate(rule.Condition)
		if !ok {
			report.SkippedPredicates = append(report.SkippedPredicates, string(rule.Condition.Kind))
			continue
		}
		if encoded >= MaxCircuitConditionalRules {
			report.TruncatedConditionalRules++
			continue
		}
		ci.ConditionTypes = append(ci.ConditionTypes, code)
		ci.ConditionValues = append(ci.ConditionValues, value)
		ci.ConditionActions = append(ci.ConditionActions, encodeAction(rule.Action))
		encoded++
	}

	return ci, report
}

// encodePredicate maps a closed-grammar predicate to its circuit code and
// numeric value. Context-relative predicates (allow-list membership, hour
// window, weekend, category cap) have no circuit counterpart.
func encodePredicate(p policy.Predicate) (code, value uint64, ok bool) {
	switch p.Kind {
	case policy.PredicateAmountAbove:
		return condAmountAbove, clampNonNegative(p.Value), true
	case policy.PredicateAmountBelow:
		return condAmountBelow, clampNonNegative(p.Value), true
	case policy.PredicateConfidenceBelow:
		return condConfidenceBelow, uint64(math.Round(p.Threshold * 100)), true
	case policy.PredicateVendorEquals:
		return condVendorEquals, HashIdentifier(p.Name), true
	case policy.PredicateCategoryEquals:
		return condCategoryEquals, HashIdentifier(p.Name), true
	case policy.PredicateHourAfter:
		return condHourAfter, clampNonNegative(p.Value), true
	default:
		return 0, 0, false
	}
}

func encodeAction(a policy.Action) uint64 {
	switch a {
	case policy.ActionReject:
		return actReject
	case policy.ActionRequireApproval:
		return actRequireApproval
	default:
		return actApprove
	}
}

func clampNonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
