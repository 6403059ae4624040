package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDefault(t *testing.T) {
	p := CreateDefault("user-1")
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, 9, p.AllowedHourStart)
	assert.Equal(t, 18, p.AllowedHourEnd)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, p.AllowedWeekdays)
	assert.Empty(t, p.AllowList)
	assert.NotEmpty(t, p.BlockList, "default block list must not be empty")
	require.NoError(t, p.Validate())
}

func TestWithCategoryRuleCopyOnWrite(t *testing.T) {
	p1 := CreateDefault("user-1")
	p2 := p1.WithCategoryRule("software", CategoryRule{MaxAmount: 200_000, RequireApproval: true})

	assert.Equal(t, 1, p1.Version)
	assert.Equal(t, 2, p2.Version)
	assert.NotContains(t, p1.CategoryRules, "software")
	assert.Equal(t, int64(200_000), p2.CategoryRules["software"].MaxAmount)

	// Mutating the new version must not leak into the old one.
	p3 := p2.WithCategoryRule("travel", CategoryRule{MaxAmount: 50_000})
	assert.Len(t, p2.CategoryRules, 1)
	assert.Len(t, p3.CategoryRules, 2)
}

func TestWithConditionalRuleValidatesGrammar(t *testing.T) {
	p := CreateDefault("user-1")

	p2, err := p.WithConditionalRule(Predicate{Kind: PredicateAmountAbove, Value: 500_000}, ActionRequireApproval, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p2.Version)
	require.Len(t, p2.ConditionalRules, 1)
	assert.Equal(t, "cond-1", p2.ConditionalRules[0].ID)

	_, err = p.WithConditionalRule(Predicate{Kind: "regex_match", Name: ".*"}, ActionReject, nil)
	var exprErr *InvalidExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "regex_match", exprErr.Kind)

	_, err = p.WithConditionalRule(Predicate{Kind: PredicateAmountAbove, Value: 10}, Action("explode"), nil)
	require.ErrorAs(t, err, &exprErr)
}

func TestPredicateParameterValidation(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		ok   bool
	}{
		{"amount above", Predicate{Kind: PredicateAmountAbove, Value: 100}, true},
		{"amount above negative", Predicate{Kind: PredicateAmountAbove, Value: -1}, false},
		{"hour after", Predicate{Kind: PredicateHourAfter, Value: 18}, true},
		{"hour after out of range", Predicate{Kind: PredicateHourAfter, Value: 24}, false},
		{"confidence below", Predicate{Kind: PredicateConfidenceBelow, Threshold: 0.7}, true},
		{"confidence below bad threshold", Predicate{Kind: PredicateConfidenceBelow, Threshold: 7}, false},
		{"vendor equals", Predicate{Kind: PredicateVendorEquals, Name: "Acme"}, true},
		{"vendor equals empty", Predicate{Kind: PredicateVendorEquals}, false},
		{"weekend", Predicate{Kind: PredicateWeekdayIsWeekend}, true},
		{"category cap", Predicate{Kind: PredicateAmountAboveCategoryCap}, true},
		{"unknown", Predicate{Kind: "eval"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pred.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateRejectsBadWindows(t *testing.T) {
	p := CreateDefault("u")
	p.AllowedHourStart = 19
	p.AllowedHourEnd = 9
	assert.Error(t, p.Validate())

	p = CreateDefault("u")
	p.AllowedWeekdays = []int{7}
	assert.Error(t, p.Validate())

	p = CreateDefault("u")
	p.MaxPerDay = -1
	assert.Error(t, p.Validate())

	// Whole-day window is legal.
	p = CreateDefault("u")
	p.AllowedHourStart = 0
	p.AllowedHourEnd = 24
	assert.NoError(t, p.Validate())
}

func TestContentHashIgnoresUpdatedAt(t *testing.T) {
	p1 := CreateDefault("user-1")
	p2 := CreateDefault("user-1")
	p2.UpdatedAt = p2.UpdatedAt.Add(1000)

	h1, err := p1.ContentHash()
	require.NoError(t, err)
	h2, err := p2.ContentHash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	p3 := p1.WithCategoryRule("software", CategoryRule{MaxAmount: 1})
	h3, err := p3.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestAllowedWeekdayMask(t *testing.T) {
	p := CreateDefault("u") // Mon-Fri
	assert.Equal(t, uint8(0b0111110), p.AllowedWeekdayMask())
	assert.True(t, p.WeekdayAllowed(1))
	assert.False(t, p.WeekdayAllowed(0))
	assert.False(t, p.WeekdayAllowed(6))
}

func TestHourAllowedHalfOpen(t *testing.T) {
	p := CreateDefault("u") // [9,18)
	assert.False(t, p.HourAllowed(8))
	assert.True(t, p.HourAllowed(9))
	assert.True(t, p.HourAllowed(17))
	assert.False(t, p.HourAllowed(18))
}

func TestBlockWinsOverAllow(t *testing.T) {
	p := CreateDefault("u")
	p.AllowList = []string{"acme"}
	p.BlockList = []string{"acme"}
	blocked, entry := p.Blocked("", "Acme Corp")
	assert.True(t, blocked)
	assert.Equal(t, "acme", entry)
}

func TestListMatchingNormalization(t *testing.T) {
	p := CreateDefault("u")
	p.ListMatch = MatchExact
	p.AllowList = []string{"Ａｃｍｅ"} // full-width, as email bodies produce
	assert.True(t, p.Allowed("", "acme"))

	p.ListMatch = MatchSubstring
	p.BlockList = []string{"CASINO"}
	blocked, _ := p.Blocked("", "Grand Casino Ltd")
	assert.True(t, blocked)
}

func TestEmptyAllowListAdmitsAll(t *testing.T) {
	p := CreateDefault("u")
	assert.True(t, p.Allowed("anyone", "any vendor"))
}
