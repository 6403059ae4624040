package policy

import "fmt"

// Action is what a conditional rule does when its condition matches.
type Action string

const (
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequireApproval Action = "require_approval"
)

func validateAction(a Action) error {
	switch a {
	case ActionApprove, ActionReject, ActionRequireApproval:
		return nil
	default:
		return &InvalidExpressionError{Kind: string(a), Reason: "unknown action"}
	}
}

// PredicateKind enumerates the closed condition grammar. Conditions are a
// tagged variant with typed parameters, never parsed expression strings;
// anything outside this enum is rejected at policy-edit time.
type PredicateKind string

const (
	// Numeric comparisons against the intent.
	PredicateAmountAbove     PredicateKind = "amount_above"      // amount > Value
	PredicateAmountBelow     PredicateKind = "amount_below"      // amount < Value
	PredicateConfidenceBelow PredicateKind = "confidence_below"  // extraction confidence < Threshold
	PredicateHourAfter       PredicateKind = "hour_after"        // hour-of-day > Value

	// Equality checks.
	PredicateVendorEquals   PredicateKind = "vendor_equals"   // vendor == Name (folded)
	PredicateCategoryEquals PredicateKind = "category_equals" // category == Name

	// Context-relative checks; these take no parameters.
	PredicateAmountAboveCategoryCap PredicateKind = "amount_above_category_cap"
	PredicateVendorNotInAllowList   PredicateKind = "vendor_not_in_allow_list"
	PredicateHourOutsideWindow      PredicateKind = "hour_outside_window"
	PredicateWeekdayIsWeekend       PredicateKind = "weekday_is_weekend"
)

// Predicate is one condition from the closed grammar. Exactly the
// parameter fields relevant to its Kind may be set.
type Predicate struct {
	Kind      PredicateKind `json:"kind"`
	Value     int64         `json:"value,omitempty"`     // AmountAbove, AmountBelow, HourAfter
	Threshold float64       `json:"threshold,omitempty"` // ConfidenceBelow, in [0,1]
	Name      string        `json:"name,omitempty"`      // VendorEquals, CategoryEquals
}

// InvalidExpressionError reports a condition outside the closed grammar.
// Raised at policy-edit time, never at evaluation time.
type InvalidExpressionError struct {
	Kind   string
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("policy: invalid expression %q: %s", e.Kind, e.Reason)
}

// Validate checks the predicate kind and its parameters.
func (p Predicate) Validate() error {
	switch p.Kind {
	case PredicateAmountAbove, PredicateAmountBelow:
		if p.Value < 0 {
			return &InvalidExpressionError{Kind: string(p.Kind), Reason: "amount must be non-negative"}
		}
	case PredicateHourAfter:
		if p.Value < 0 || p.Value > 23 {
			return &InvalidExpressionError{Kind: string(p.Kind), Reason: "hour must be in [0,23]"}
		}
	case PredicateConfidenceBelow:
		if p.Threshold < 0 || p.Threshold > 1 {
			return &InvalidExpressionError{Kind: string(p.Kind), Reason: "threshold must be in [0,1]"}
		}
	case PredicateVendorEquals, PredicateCategoryEquals:
		if p.Name == "" {
			return &InvalidExpressionError{Kind: string(p.Kind), Reason: "name parameter required"}
		}
	case PredicateAmountAboveCategoryCap, PredicateVendorNotInAllowList,
		PredicateHourOutsideWindow, PredicateWeekdayIsWeekend:
		// No parameters.
	default:
		return &InvalidExpressionError{Kind: string(p.Kind), Reason: "not in the predicate grammar"}
	}
	return nil
}
