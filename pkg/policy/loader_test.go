package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBundle = `{
  "id": "policy-user-1",
  "user_id": "user-1",
  "version": 3,
  "max_per_transaction": 100000,
  "max_per_day": 300000,
  "max_per_week": 1000000,
  "allowed_hour_start": 9,
  "allowed_hour_end": 18,
  "allowed_weekdays": [1, 2, 3, 4, 5],
  "list_match": "substring",
  "allow_list": ["Acme"],
  "block_list": ["casino"],
  "category_rules": {
    "software": {"max_amount": 200000, "require_approval": true}
  },
  "conditional_rules": [
    {"id": "big-amount", "condition": {"kind": "amount_above", "value": 500000}, "action": "require_approval"}
  ]
}`

func TestParseValidBundle(t *testing.T) {
	p, err := Parse([]byte(validBundle))
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, 3, p.Version)
	assert.Equal(t, int64(200000), p.CategoryRules["software"].MaxAmount)
	require.Len(t, p.ConditionalRules, 1)
	assert.Equal(t, PredicateAmountAbove, p.ConditionalRules[0].Condition.Kind)
}

func TestParseRejectsMissingFields(t *testing.T) {
	_, err := Parse([]byte(`{"id": "p", "user_id": "u"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")
}

func TestParseRejectsNonJSON(t *testing.T) {
	_, err := Parse([]byte(`max_per_transaction: 100`))
	assert.Error(t, err)
}

func TestParseRejectsUnknownPredicate(t *testing.T) {
	bad := `{
  "id": "p", "user_id": "u", "version": 1,
  "max_per_transaction": 1, "max_per_day": 1, "max_per_week": 1,
  "allowed_hour_start": 9, "allowed_hour_end": 18,
  "allowed_weekdays": [1], "list_match": "exact",
  "allow_list": [], "block_list": [],
  "conditional_rules": [
    {"id": "x", "condition": {"kind": "shell_exec"}, "action": "reject"}
  ]
}`
	_, err := Parse([]byte(bad))
	var exprErr *InvalidExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "shell_exec", exprErr.Kind)
}

func TestLoadDirPicksHighestVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), []byte(validBundle), 0o600))

	older := `{
  "id": "policy-user-1", "user_id": "user-1", "version": 1,
  "max_per_transaction": 5, "max_per_day": 5, "max_per_week": 5,
  "allowed_hour_start": 0, "allowed_hour_end": 24,
  "allowed_weekdays": [0, 1, 2, 3, 4, 5, 6], "list_match": "exact",
  "allow_list": [], "block_list": []
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(older), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.yaml"), []byte("x: 1"), 0o600))

	policies, err := LoadDir(dir)
	require.NoError(t, err)
	require.Contains(t, policies, "user-1")
	assert.Equal(t, 3, policies["user-1"].Version)
}

func TestLoadDirSurfacesBadBundle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{}`), 0o600))
	_, err := LoadDir(dir)
	assert.Error(t, err)
}
