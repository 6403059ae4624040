// Package gate guards the boundary between an approved decision and the
// side effect it authorizes. Nothing executes without an approved,
// non-escalated decision; every attempt, allowed or refused, produces a
// receipt.
package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/clearproof/mandate/pkg/evaluate"
)

// Executor performs the actual side effect once the gate admits it.
type Executor interface {
	Execute(ctx context.Context, action string, params map[string]any) (any, error)
}

// Receipt records one pass through the gate. Refusals get receipts too,
// with Allowed=false and the reason.
type Receipt struct {
	ID           string    `json:"id"`
	DecisionID   string    `json:"decision_id"`
	DecisionHash string    `json:"decision_hash"`
	Action       string    `json:"action"`
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ActionGate admits registered actions backed by approved decisions.
type ActionGate struct {
	actions map[string]*jsonschema.Schema // action -> compiled params schema, nil = no schema
	next    Executor
	clock   func() time.Time
}

// New creates a gate with an empty action registry. Unregistered actions
// are refused.
func New(next Executor) *ActionGate {
	return &ActionGate{
		actions: make(map[string]*jsonschema.Schema),
		next:    next,
		clock:   time.Now,
	}
}

// WithClock overrides the receipt timestamp source, for tests.
func (g *ActionGate) WithClock(clock func() time.Time) *ActionGate {
	g.clock = clock
	return g
}

// RegisterAction admits an action, optionally constraining its
// parameters with a JSON Schema.
func (g *ActionGate) RegisterAction(name string, schema string) error {
	if schema == "" {
		g.actions[name] = nil
		return nil
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := fmt.Sprintf("https://mandate.schemas.local/gate/%s.schema.json", name)
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return fmt.Errorf("gate schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return fmt.Errorf("gate schema compile failed: %w", err)
	}
	g.actions[name] = compiled
	return nil
}

// Execute runs action under the authority of dec. The gate refuses, with
// a receipt, unless the decision approved the intent outright: a
// decision that requires manual approval authorizes nothing until a
// human re-evaluates.
func (g *ActionGate) Execute(ctx context.Context, dec *evaluate.Decision, action string, params map[string]any) (any, *Receipt, error) {
	refuse := func(reason string) (any, *Receipt, error) {
		return nil, g.receipt(dec, action, false, reason), fmt.Errorf("gate refused action %q: %s", action, reason)
	}

	if dec == nil {
		return refuse("no decision")
	}
	if !dec.Approved {
		return refuse("decision not approved")
	}
	if dec.RequiresManualApproval {
		return refuse("decision requires manual approval")
	}

	schema, registered := g.actions[action]
	if !registered {
		return refuse("action not registered")
	}
	if schema != nil {
		if params == nil {
			return refuse("missing parameters")
		}
		if err := schema.Validate(params); err != nil {
			return refuse("schema validation failed: " + err.Error())
		}
	}

	if g.next == nil {
		return refuse("executor not configured (fail-closed)")
	}

	out, err := g.next.Execute(ctx, action, params)
	if err != nil {
		return nil, g.receipt(dec, action, false, "executor failed: "+err.Error()), err
	}
	return out, g.receipt(dec, action, true, ""), nil
}

func (g *ActionGate) receipt(dec *evaluate.Decision, action string, allowed bool, reason string) *Receipt {
	r := &Receipt{
		ID:        uuid.NewString(),
		Action:    action,
		Allowed:   allowed,
		Reason:    reason,
		Timestamp: g.clock().UTC(),
	}
	if dec != nil {
		r.DecisionID = dec.ID
		r.DecisionHash = dec.DecisionHash
	}
	return r
}
