package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/mandate/pkg/evaluate"
)

type recordingExecutor struct {
	calls  int
	action string
	err    error
}

func (r *recordingExecutor) Execute(_ context.Context, action string, _ map[string]any) (any, error) {
	r.calls++
	r.action = action
	if r.err != nil {
		return nil, r.err
	}
	return "done", nil
}

func approvedDecision() *evaluate.Decision {
	return &evaluate.Decision{
		ID:           "dec-0001",
		Approved:     true,
		DecisionHash: "sha256:abc",
	}
}

func testGate(t *testing.T, next Executor) *ActionGate {
	t.Helper()
	g := New(next).WithClock(func() time.Time { return time.Unix(1748944800, 0) })
	require.NoError(t, g.RegisterAction("payments.send", `{"type":"object","required":["amount"],"properties":{"amount":{"type":"integer","minimum":1}}}`))
	require.NoError(t, g.RegisterAction("calendar.create", ""))
	return g
}

func TestExecuteApprovedAction(t *testing.T) {
	exec := &recordingExecutor{}
	g := testGate(t, exec)

	out, receipt, err := g.Execute(context.Background(), approvedDecision(), "payments.send", map[string]any{"amount": 50_000})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, 1, exec.calls)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Allowed)
	assert.Equal(t, "dec-0001", receipt.DecisionID)
	assert.Equal(t, "sha256:abc", receipt.DecisionHash)
	assert.NotEmpty(t, receipt.ID)
}

func TestRefusalsNeverReachExecutor(t *testing.T) {
	rejected := approvedDecision()
	rejected.Approved = false

	escalated := approvedDecision()
	escalated.RequiresManualApproval = true

	cases := []struct {
		name   string
		dec    *evaluate.Decision
		action string
		params map[string]any
		reason string
	}{
		{"nil decision", nil, "payments.send", map[string]any{"amount": 1}, "no decision"},
		{"not approved", rejected, "payments.send", map[string]any{"amount": 1}, "decision not approved"},
		{"requires manual approval", escalated, "payments.send", map[string]any{"amount": 1}, "decision requires manual approval"},
		{"unregistered action", approvedDecision(), "shell.exec", nil, "action not registered"},
		{"missing params", approvedDecision(), "payments.send", nil, "missing parameters"},
		{"invalid params", approvedDecision(), "payments.send", map[string]any{"amount": -5}, "schema validation failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &recordingExecutor{}
			g := testGate(t, exec)

			out, receipt, err := g.Execute(context.Background(), tc.dec, tc.action, tc.params)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Zero(t, exec.calls)
			require.NotNil(t, receipt)
			assert.False(t, receipt.Allowed)
			assert.Contains(t, receipt.Reason, tc.reason)
		})
	}
}

func TestSchemalessActionAdmitsAnyParams(t *testing.T) {
	exec := &recordingExecutor{}
	g := testGate(t, exec)

	_, receipt, err := g.Execute(context.Background(), approvedDecision(), "calendar.create", nil)
	require.NoError(t, err)
	assert.True(t, receipt.Allowed)
}

func TestNilExecutorFailsClosed(t *testing.T) {
	g := testGate(t, nil)

	_, receipt, err := g.Execute(context.Background(), approvedDecision(), "calendar.create", nil)
	require.Error(t, err)
	assert.False(t, receipt.Allowed)
	assert.Contains(t, receipt.Reason, "executor not configured")
}

func TestExecutorFailureRecordedOnReceipt(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("bank unreachable")}
	g := testGate(t, exec)

	_, receipt, err := g.Execute(context.Background(), approvedDecision(), "calendar.create", nil)
	require.Error(t, err)
	assert.False(t, receipt.Allowed)
	assert.Contains(t, receipt.Reason, "bank unreachable")
}

func TestInvalidSchemaRejectedAtRegistration(t *testing.T) {
	g := New(nil)
	require.Error(t, g.RegisterAction("bad", `{"type": 42}`))
}
