//go:build property
// +build property

// Property-based tests for evaluator determinism and risk monotonicity.
package evaluate_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/clearproof/mandate/pkg/evaluate"
	"github.com/clearproof/mandate/pkg/intent"
	"github.com/clearproof/mandate/pkg/policy"
)

func genIntent() gopter.Gen {
	return gopter.CombineGens(
		gen.Int64Range(0, 2_000_000),          // amount
		gen.Int64Range(0, 1_900_000_000),      // timestamp
		gen.AlphaString(),                     // vendor
		gen.Float64Range(0, 1),                // confidence
	).Map(func(vals []interface{}) *intent.Intent {
		in, err := intent.New(intent.KindPayment,
			vals[0].(int64), "acct", vals[2].(string), intent.CategoryOther,
			vals[1].(int64), intent.Provenance{Confidence: vals[3].(float64)})
		if err != nil {
			panic(err)
		}
		return in
	})
}

// Property: identical inputs always produce identical decisions.
func TestEvaluateDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pol := policy.CreateDefault("prop-user")
	properties.Property("evaluation is deterministic", prop.ForAll(
		func(in *intent.Intent, spentToday, spentWeek int64) bool {
			sc := evaluate.SpendingContext{SpentToday: spentToday, SpentThisWeek: spentWeek}
			d1 := evaluate.Evaluate(in, pol, sc)
			d2 := evaluate.Evaluate(in, pol, sc)
			if d1.DecisionHash == "" || d1.DecisionHash != d2.DecisionHash {
				return false
			}
			return d1.Approved == d2.Approved && d1.RiskScore == d2.RiskScore &&
				len(d1.Violations) == len(d2.Violations)
		},
		genIntent(),
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 5_000_000),
	))

	properties.TestingRun(t)
}

// Property: tightening the policy never lowers risk and never turns a
// rejection into an approval.
func TestRiskMonotonicUnderTightening(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("adding a violating condition never decreases risk", prop.ForAll(
		func(in *intent.Intent) bool {
			loose := policy.CreateDefault("prop-user")
			loose.AllowedHourStart = 0
			loose.AllowedHourEnd = 24
			loose.AllowedWeekdays = []int{0, 1, 2, 3, 4, 5, 6}
			loose.MaxPerTransaction = 10_000_000
			loose.MaxPerDay = 10_000_000
			loose.MaxPerWeek = 10_000_000
			loose.BlockList = nil

			tight, err := loose.WithConditionalRule(
				policy.Predicate{Kind: policy.PredicateAmountAbove, Value: 0},
				policy.ActionReject, nil)
			if err != nil {
				return false
			}

			before := evaluate.Evaluate(in, loose, evaluate.SpendingContext{})
			after := evaluate.Evaluate(in, tight, evaluate.SpendingContext{})

			if after.RiskScore < before.RiskScore {
				return false
			}
			if !before.Approved && after.Approved {
				return false
			}
			return true
		},
		genIntent(),
	))

	properties.TestingRun(t)
}

// Property: approval requires exactly zero violations and no hold.
func TestApprovalRequiresZeroViolations(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	pol := policy.CreateDefault("prop-user")
	properties.Property("approved implies no violations", prop.ForAll(
		func(in *intent.Intent) bool {
			d := evaluate.Evaluate(in, pol, evaluate.SpendingContext{})
			if d.Approved {
				return len(d.Violations) == 0 && !d.RequiresManualApproval
			}
			return len(d.Violations) > 0 || d.RequiresManualApproval
		},
		genIntent(),
	))

	properties.TestingRun(t)
}
