package zkproof

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema pins the prover's stdout contract. Anything that fails
// this schema is treated as Unavailable; partial or ambiguous stdout is
// never trusted.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["approved", "riskScore", "violationCount"],
  "properties": {
    "approved": {"type": "boolean"},
    "riskScore": {"type": "integer", "minimum": 0, "maximum": 100},
    "violationCount": {"type": "integer", "minimum": 0},
    "appliedRulesMask": {"type": "integer", "minimum": 0},
    "proof": {},
    "publicSignals": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	compileResponseSchemaOnce sync.Once
	compiledResponseSchema    *jsonschema.Schema
	responseSchemaErr         error
)

func loadResponseSchema() (*jsonschema.Schema, error) {
	compileResponseSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("mandate://zkproof.response.schema.json", strings.NewReader(responseSchema)); err != nil {
			responseSchemaErr = err
			return
		}
		compiledResponseSchema, responseSchemaErr = c.Compile("mandate://zkproof.response.schema.json")
	})
	return compiledResponseSchema, responseSchemaErr
}

// Result is the parsed prover response. Proof is the opaque artifact as
// the prover emitted it.
type Result struct {
	Approved       bool            `json:"approved"`
	RiskScore      int             `json:"riskScore"`
	ViolationCount int             `json:"violationCount"`
	RuleMask       uint64          `json:"appliedRulesMask,omitempty"`
	Proof          json.RawMessage `json:"proof,omitempty"`
	PublicSignals  []string        `json:"publicSignals,omitempty"`
}

// ParseResult parses and schema-validates raw prover stdout. The entire
// (trimmed) output must be a single JSON object.
func ParseResult(raw []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, unavailable("empty_output", nil)
	}

	schema, err := loadResponseSchema()
	if err != nil {
		return nil, unavailable("schema_compile", err)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, unavailable("malformed_output", err)
	}
	// Trailing garbage after the object is ambiguous output.
	if dec.More() {
		return nil, unavailable("trailing_output", nil)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, unavailable("schema_violation", err)
	}

	var res Result
	if err := json.Unmarshal(trimmed, &res); err != nil {
		return nil, unavailable("malformed_output", err)
	}
	return &res, nil
}
