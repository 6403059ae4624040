package evaluate

import (
	"fmt"
	"sort"

	"github.com/clearproof/mandate/pkg/intent"
	"github.com/clearproof/mandate/pkg/policy"
)

// Risk weights per violated constraint. The score is capped at 100.
const (
	riskAmountExceeded    = 30
	riskDailyLimit        = 25
	riskWeeklyLimit       = 20
	riskBlockList         = 50
	riskAllowList         = 25
	riskHourWindow        = 15
	riskWeekday           = 10
	riskCategoryCap       = 20
	riskConditionalReject = 30
)

// Rule mask bit layout, aligned with the proof circuit's applied-rules
// mask where a circuit counterpart exists. Block-list enforcement has no
// circuit counterpart and uses a high manual-only bit.
//
// Note the inherited quirk: the fifth category rule (16<<4 = 256) shares
// a bit with the first conditional rule (256<<0). The circuit lays its
// mask out the same way, and cross-checking bit-for-bit matters more
// than an unambiguous fifth bit, so the collision is kept as-is.
const (
	maskPerTransaction uint64 = 1
	maskDailyLimit     uint64 = 2
	maskWeeklyLimit    uint64 = 4
	maskAllowList      uint64 = 8
	maskCategoryBase   uint64 = 16    // << rule index
	maskConditionBase  uint64 = 256   // << rule index
	maskHourWindow     uint64 = 8192
	maskWeekday        uint64 = 16384
	maskBlockList      uint64 = 32768
)

// Evaluate runs the full deterministic rule evaluation of an intent
// against a policy and externally-tracked spending aggregates.
//
// Pure: no I/O, no clock, no randomness. Identical inputs produce
// identical decisions, which is what makes cross-checking against the
// proof backend meaningful. The returned decision carries no ID or
// timestamp; the orchestrator stamps those when composing.
//
// Evaluation order is fixed (amounts, lists, time, category, conditional)
// because violations accumulate in presentation order. Approval itself is
// order-independent: it requires zero violations and no approval hold.
func Evaluate(in *intent.Intent, pol *policy.Policy, sc SpendingContext) *Decision {
	d := &Decision{
		Violations:    []Violation{},
		MatchedRules:  []string{},
		Proof:         Proof{Kind: ProofNone},
		PolicyID:      pol.ID,
		PolicyVersion: pol.Version,
	}
	if hash, err := pol.ContentHash(); err == nil {
		d.PolicyHash = hash
	}

	risk := 0

	violate := func(kind ViolationKind, rule string, mask uint64, weight int, format string, args ...any) {
		d.Violations = append(d.Violations, Violation{
			Kind:   kind,
			Rule:   rule,
			Detail: fmt.Sprintf(format, args...),
		})
		d.MatchedRules = append(d.MatchedRules, rule)
		d.RuleMask |= mask
		risk += weight
	}

	// 1. Amount checks.
	if in.Amount > pol.MaxPerTransaction {
		violate(ViolationAmountExceeded, "limits.per_transaction", maskPerTransaction, riskAmountExceeded,
			"amount %d exceeds per-transaction limit %d", in.Amount, pol.MaxPerTransaction)
	}
	// Aggregate limits compare by subtraction, never by summing: with
	// amount near MaxInt64 the sum wraps negative and would skip the
	// violation entirely, approving exactly what the limit forbids.
	if exceedsBudget(in.Amount, pol.MaxPerDay, sc.SpentToday) {
		violate(ViolationDailyLimit, "limits.daily", maskDailyLimit, riskDailyLimit,
			"amount %d plus %d spent today exceeds daily limit %d", in.Amount, sc.SpentToday, pol.MaxPerDay)
	}
	if exceedsBudget(in.Amount, pol.MaxPerWeek, sc.SpentThisWeek) {
		violate(ViolationWeeklyLimit, "limits.weekly", maskWeeklyLimit, riskWeeklyLimit,
			"amount %d plus %d spent this week exceeds weekly limit %d", in.Amount, sc.SpentThisWeek, pol.MaxPerWeek)
	}

	// 2. List checks. Block membership is terminal for list handling:
	// it hard-blocks regardless of the allow list.
	if blocked, entry := pol.Blocked(in.Recipient, in.Vendor); blocked {
		violate(ViolationBlockList, "lists.block", maskBlockList, riskBlockList,
			"recipient or vendor matches block list entry %q", entry)
	} else if !pol.Allowed(in.Recipient, in.Vendor) {
		violate(ViolationAllowList, "lists.allow", maskAllowList, riskAllowList,
			"recipient %q / vendor %q not in allow list", in.Recipient, in.Vendor)
	}

	// 3. Time checks, in UTC (hour and weekday are derived arithmetically
	// from Unix seconds, exactly as the proof circuit derives them).
	hour := in.Hour()
	weekday := in.Weekday()
	if !pol.HourAllowed(hour) {
		violate(ViolationHourWindow, "time.hour_window", maskHourWindow, riskHourWindow,
			"hour %d outside allowed window [%d,%d)", hour, pol.AllowedHourStart, pol.AllowedHourEnd)
	}
	if !pol.WeekdayAllowed(weekday) {
		violate(ViolationWeekday, "time.weekday", maskWeekday, riskWeekday,
			"weekday %d not in allowed set", weekday)
	}

	// 4. Category rule.
	if rule, ok := pol.CategoryRules[in.Category]; ok {
		idx := categoryRuleIndex(pol, in.Category)
		if rule.MaxAmount > 0 && in.Amount > rule.MaxAmount {
			violate(ViolationCategoryCap, "category."+in.Category+".max_amount",
				maskCategoryBase<<uint(idx), riskCategoryCap,
				"amount %d exceeds category %q cap %d", in.Amount, in.Category, rule.MaxAmount)
		}
		if rule.RequireApproval {
			// A soft stop, not a violation.
			d.RequiresManualApproval = true
			d.MatchedRules = append(d.MatchedRules, "category."+in.Category+".require_approval")
		}
	}

	// 5. Conditional rules, in policy order. An explicit approve documents
	// a carve-out; it never overrides an accumulated violation.
	for i, rule := range pol.ConditionalRules {
		if !conditionHolds(rule.Condition, in, pol) {
			continue
		}
		switch rule.Action {
		case policy.ActionReject:
			violate(ViolationConditionalReject, "conditional."+rule.ID,
				maskConditionBase<<uint(i), riskConditionalReject,
				"condition %s matched with action reject", rule.Condition.Kind)
		case policy.ActionRequireApproval:
			d.RequiresManualApproval = true
			d.MatchedRules = append(d.MatchedRules, "conditional."+rule.ID)
			d.RuleMask |= maskConditionBase << uint(i)
		case policy.ActionApprove:
			d.MatchedRules = append(d.MatchedRules, "conditional."+rule.ID)
			d.RuleMask |= maskConditionBase << uint(i)
		}
	}

	if risk > 100 {
		risk = 100
	}
	d.RiskScore = risk
	d.Approved = len(d.Violations) == 0 && !d.RequiresManualApproval

	if hash, err := ComputeDecisionHash(d); err == nil {
		d.DecisionHash = hash
	}
	return d
}

// exceedsBudget reports whether spent+amount > limit without computing
// the sum. amount and limit are non-negative by construction and spent
// is non-negative by the ledger contract, so limit-spent cannot wrap;
// the naive sum can, when amount is near MaxInt64.
func exceedsBudget(amount, limit, spent int64) bool {
	return amount > limit-spent
}

// categoryRuleIndex gives each category rule a stable index (sorted key
// order) for the rule mask, matching the deterministic order the circuit
// encoder embeds category rules in.
func categoryRuleIndex(pol *policy.Policy, category string) int {
	keys := make([]string, 0, len(pol.CategoryRules))
	for k := range pol.CategoryRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if k == category {
			return i
		}
	}
	return 0
}

// conditionHolds evaluates one closed-grammar predicate against the fixed
// evaluation context. Unknown kinds were rejected at policy-edit time; if
// one slips through it matches nothing.
func conditionHolds(p policy.Predicate, in *intent.Intent, pol *policy.Policy) bool {
	switch p.Kind {
	case policy.PredicateAmountAbove:
		return in.Amount > p.Value
	case policy.PredicateAmountBelow:
		return in.Amount < p.Value
	case policy.PredicateConfidenceBelow:
		return in.Provenance.Confidence < p.Threshold
	case policy.PredicateHourAfter:
		return int64(in.Hour()) > p.Value
	case policy.PredicateVendorEquals:
		return policy.Normalize(in.Vendor) == policy.Normalize(p.Name)
	case policy.PredicateCategoryEquals:
		return in.Category == p.Name
	case policy.PredicateAmountAboveCategoryCap:
		rule, ok := pol.CategoryRules[in.Category]
		return ok && rule.MaxAmount > 0 && in.Amount > rule.MaxAmount
	case policy.PredicateVendorNotInAllowList:
		return !pol.Allowed(in.Recipient, in.Vendor)
	case policy.PredicateHourOutsideWindow:
		return !pol.HourAllowed(in.Hour())
	case policy.PredicateWeekdayIsWeekend:
		wd := in.Weekday()
		return wd == 0 || wd == 6
	default:
		return false
	}
}
