// Package policy defines the versioned rule-set an intent is evaluated
// against: static limits, allow/block lists, per-category rules and
// conditional rules over a closed predicate grammar.
//
// Policies are immutable per version. Every edit is copy-on-write and
// increments the version, so an evaluation can always be reproduced
// against the exact rule-set it saw.
package policy

import (
	"fmt"
	"time"

	"github.com/clearproof/mandate/pkg/canonicalize"
)

// MatchMode selects how allow/block list entries are compared against
// recipients and vendors. Both modes apply Unicode normalization and
// case folding first.
type MatchMode string

const (
	MatchExact     MatchMode = "exact"
	MatchSubstring MatchMode = "substring"
)

// CategoryRule caps spending in one category and/or demands a human in
// the loop. MaxAmount <= 0 means the category has no amount cap.
type CategoryRule struct {
	MaxAmount       int64 `json:"max_amount,omitempty"`
	RequireApproval bool  `json:"require_approval,omitempty"`
}

// ConditionalRule is a policy-defined predicate → action entry.
type ConditionalRule struct {
	ID        string            `json:"id"`
	Condition Predicate         `json:"condition"`
	Action    Action            `json:"action"`
	Params    map[string]string `json:"params,omitempty"`
}

// Policy is the full rule-set for one user, at one version.
type Policy struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`

	// Static spending limits, smallest currency unit.
	MaxPerTransaction int64 `json:"max_per_transaction"`
	MaxPerDay         int64 `json:"max_per_day"`
	MaxPerWeek        int64 `json:"max_per_week"`

	// Allowed execution window. Hours are a half-open interval
	// [AllowedHourStart, AllowedHourEnd) in UTC; weekdays use
	// 0=Sunday .. 6=Saturday.
	AllowedHourStart int   `json:"allowed_hour_start"`
	AllowedHourEnd   int   `json:"allowed_hour_end"`
	AllowedWeekdays  []int `json:"allowed_weekdays"`

	// Lists. Block always wins over allow.
	ListMatch MatchMode `json:"list_match"`
	AllowList []string  `json:"allow_list"`
	BlockList []string  `json:"block_list"`

	CategoryRules    map[string]CategoryRule `json:"category_rules,omitempty"`
	ConditionalRules []ConditionalRule       `json:"conditional_rules,omitempty"`
}

// Default conservative limits for a fresh policy.
const (
	defaultMaxPerTransaction int64 = 100_000   // 1,000.00 in minor units
	defaultMaxPerDay         int64 = 300_000
	defaultMaxPerWeek        int64 = 1_000_000
)

// defaultBlockList ships non-empty: obviously unwanted counterparties are
// blocked until the user says otherwise.
var defaultBlockList = []string{"casino", "gambling", "lottery", "betting"}

// CreateDefault returns version 1 of a conservative policy for a user:
// business hours Mon-Fri 9-18 UTC, no allow list, a non-empty block list.
func CreateDefault(userID string) *Policy {
	return &Policy{
		ID:                "policy-" + userID,
		UserID:            userID,
		Version:           1,
		UpdatedAt:         time.Now().UTC(),
		MaxPerTransaction: defaultMaxPerTransaction,
		MaxPerDay:         defaultMaxPerDay,
		MaxPerWeek:        defaultMaxPerWeek,
		AllowedHourStart:  9,
		AllowedHourEnd:    18,
		AllowedWeekdays:   []int{1, 2, 3, 4, 5},
		ListMatch:         MatchSubstring,
		AllowList:         []string{},
		BlockList:         append([]string(nil), defaultBlockList...),
	}
}

// clone returns a deep copy with the version bumped and UpdatedAt refreshed.
func (p *Policy) clone() *Policy {
	next := *p
	next.Version = p.Version + 1
	next.UpdatedAt = time.Now().UTC()
	next.AllowedWeekdays = append([]int(nil), p.AllowedWeekdays...)
	next.AllowList = append([]string(nil), p.AllowList...)
	next.BlockList = append([]string(nil), p.BlockList...)
	next.CategoryRules = make(map[string]CategoryRule, len(p.CategoryRules))
	for k, v := range p.CategoryRules {
		next.CategoryRules[k] = v
	}
	next.ConditionalRules = append([]ConditionalRule(nil), p.ConditionalRules...)
	return &next
}

// WithCategoryRule returns a new policy version with the category rule
// inserted or overwritten.
func (p *Policy) WithCategoryRule(category string, rule CategoryRule) *Policy {
	next := p.clone()
	next.CategoryRules[category] = rule
	return next
}

// WithConditionalRule validates the condition against the closed grammar
// and returns a new policy version with the rule appended. Unrecognized
// predicates fail with InvalidExpressionError at edit time, so a bad rule
// can never reach evaluation.
func (p *Policy) WithConditionalRule(condition Predicate, action Action, params map[string]string) (*Policy, error) {
	if err := condition.Validate(); err != nil {
		return nil, err
	}
	if err := validateAction(action); err != nil {
		return nil, err
	}
	next := p.clone()
	next.ConditionalRules = append(next.ConditionalRules, ConditionalRule{
		ID:        fmt.Sprintf("cond-%d", len(next.ConditionalRules)+1),
		Condition: condition,
		Action:    action,
		Params:    params,
	})
	return next, nil
}

// Validate checks the structural invariants of a policy. Policies built
// through CreateDefault/With* are valid by construction; Validate guards
// policies loaded from external storage.
func (p *Policy) Validate() error {
	if p.Version < 1 {
		return fmt.Errorf("policy %s: version must be >= 1, got %d", p.ID, p.Version)
	}
	if p.MaxPerTransaction < 0 || p.MaxPerDay < 0 || p.MaxPerWeek < 0 {
		return fmt.Errorf("policy %s: spending limits must be non-negative", p.ID)
	}
	if p.AllowedHourStart < 0 || p.AllowedHourStart > 23 {
		return fmt.Errorf("policy %s: allowed_hour_start out of range: %d", p.ID, p.AllowedHourStart)
	}
	if p.AllowedHourEnd < 0 || p.AllowedHourEnd > 24 {
		return fmt.Errorf("policy %s: allowed_hour_end out of range: %d", p.ID, p.AllowedHourEnd)
	}
	if p.AllowedHourStart > p.AllowedHourEnd {
		return fmt.Errorf("policy %s: allowed hour window inverted: [%d,%d)", p.ID, p.AllowedHourStart, p.AllowedHourEnd)
	}
	for _, wd := range p.AllowedWeekdays {
		if wd < 0 || wd > 6 {
			return fmt.Errorf("policy %s: weekday out of range: %d", p.ID, wd)
		}
	}
	if p.ListMatch != MatchExact && p.ListMatch != MatchSubstring {
		return fmt.Errorf("policy %s: unknown list match mode %q", p.ID, p.ListMatch)
	}
	for _, rule := range p.ConditionalRules {
		if err := rule.Condition.Validate(); err != nil {
			return fmt.Errorf("policy %s: rule %s: %w", p.ID, rule.ID, err)
		}
		if err := validateAction(rule.Action); err != nil {
			return fmt.Errorf("policy %s: rule %s: %w", p.ID, rule.ID, err)
		}
	}
	return nil
}

// ContentHash returns the canonical content hash of the policy, bound into
// every decision for reproducibility. UpdatedAt is excluded: two policies
// with identical rules hash identically regardless of edit time.
func (p *Policy) ContentHash() (string, error) {
	hashable := *p
	hashable.UpdatedAt = time.Time{}
	return canonicalize.CanonicalHash(&hashable)
}

// AllowedWeekdayMask packs the weekday set into a bitmask (bit i set iff
// weekday i is allowed), the layout the proof circuit consumes.
func (p *Policy) AllowedWeekdayMask() uint8 {
	var mask uint8
	for _, wd := range p.AllowedWeekdays {
		if wd >= 0 && wd <= 6 {
			mask |= 1 << uint(wd)
		}
	}
	return mask
}

// WeekdayAllowed reports whether weekday wd (0=Sunday) is in the allowed set.
func (p *Policy) WeekdayAllowed(wd int) bool {
	return p.AllowedWeekdayMask()&(1<<uint(wd)) != 0
}

// HourAllowed reports whether hour h falls inside the half-open allowed
// window [start, end).
func (p *Policy) HourAllowed(h int) bool {
	return h >= p.AllowedHourStart && h < p.AllowedHourEnd
}
