package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// bundleSchema validates policy bundle files before unmarshaling, so a
// malformed bundle fails loudly at load time rather than surfacing as a
// half-empty policy at evaluation time.
const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "user_id", "version", "max_per_transaction", "max_per_day", "max_per_week",
               "allowed_hour_start", "allowed_hour_end", "allowed_weekdays", "list_match",
               "allow_list", "block_list"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "updated_at": {"type": "string"},
    "max_per_transaction": {"type": "integer", "minimum": 0},
    "max_per_day": {"type": "integer", "minimum": 0},
    "max_per_week": {"type": "integer", "minimum": 0},
    "allowed_hour_start": {"type": "integer", "minimum": 0, "maximum": 23},
    "allowed_hour_end": {"type": "integer", "minimum": 0, "maximum": 24},
    "allowed_weekdays": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 6}},
    "list_match": {"enum": ["exact", "substring"]},
    "allow_list": {"type": "array", "items": {"type": "string"}},
    "block_list": {"type": "array", "items": {"type": "string"}},
    "category_rules": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "max_amount": {"type": "integer"},
          "require_approval": {"type": "boolean"}
        }
      }
    },
    "conditional_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["condition", "action"],
        "properties": {
          "id": {"type": "string"},
          "condition": {
            "type": "object",
            "required": ["kind"],
            "properties": {
              "kind": {"type": "string"},
              "value": {"type": "integer"},
              "threshold": {"type": "number"},
              "name": {"type": "string"}
            }
          },
          "action": {"enum": ["approve", "reject", "require_approval"]},
          "params": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    }
  }
}`

var (
	compileBundleSchemaOnce sync.Once
	compiledBundleSchema    *jsonschema.Schema
	bundleSchemaErr         error
)

func loadBundleSchema() (*jsonschema.Schema, error) {
	compileBundleSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource("mandate://policy.bundle.schema.json", strings.NewReader(bundleSchema)); err != nil {
			bundleSchemaErr = err
			return
		}
		compiledBundleSchema, bundleSchemaErr = c.Compile("mandate://policy.bundle.schema.json")
	})
	return compiledBundleSchema, bundleSchemaErr
}

// Parse validates raw bundle bytes against the bundle schema, unmarshals
// them and runs structural validation, including rejection of conditional
// rules outside the closed grammar.
func Parse(data []byte) (*Policy, error) {
	schema, err := loadBundleSchema()
	if err != nil {
		return nil, fmt.Errorf("policy: bundle schema compile failed: %w", err)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("policy: bundle is not valid JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("policy: bundle schema validation failed: %w", err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("policy: bundle unmarshal failed: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads and parses a single policy bundle file.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read bundle %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy: bundle %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// LoadDir loads all .json policy bundles from a directory, keyed by user ID.
// A later file for the same user wins only with a higher version.
func LoadDir(dir string) (map[string]*Policy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("policy: read bundle dir %s: %w", dir, err)
	}

	policies := make(map[string]*Policy)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		p, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if prev, ok := policies[p.UserID]; ok && prev.Version >= p.Version {
			continue
		}
		policies[p.UserID] = p
	}
	return policies, nil
}
