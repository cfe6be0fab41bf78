package rules

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/liamcoop/rulecheck/errs"
)

//go:embed ruleset_schema.json
var rulesetSchemaJSON []byte

const schemaBaseURL = "https://rulecheck.local/schemas/"

var rulesetSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema("ruleset.json", rulesetSchemaJSON)
})

var (
	caseSchemaMu sync.Mutex
	caseSchemas  = make(map[Kind]*jsonschema.Schema)
)

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	url := schemaBaseURL + name
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return schema, nil
}

// schemaDocument returns a fresh decoded copy of the ruleset schema.
func schemaDocument() (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(rulesetSchemaJSON, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode ruleset schema: %w", err)
	}
	return doc, nil
}

// caseFragment extracts the schema of a single case of kind and tightens
// it: every property except condition becomes required and paths, when
// present, must hold at least one entry.
func caseFragment(kind Kind) (map[string]any, error) {
	doc, err := schemaDocument()
	if err != nil {
		return nil, err
	}

	fragment, ok := dig(doc, "patternProperties", ".+", "properties", string(kind), "properties", "cases", "items")
	if !ok {
		return nil, errs.Configurationf("%q is not a known rule kind", kind)
	}

	props, _ := fragment["properties"].(map[string]any)
	fragment["required"] = propertyNames(props, true)
	if paths, ok := props["paths"].(map[string]any); ok {
		paths["minItems"] = 1
	}
	return fragment, nil
}

func dig(m map[string]any, keys ...string) (map[string]any, bool) {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func propertyNames(props map[string]any, required bool) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		if (name != "condition") == required {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func caseSchema(kind Kind) (*jsonschema.Schema, error) {
	caseSchemaMu.Lock()
	defer caseSchemaMu.Unlock()

	if schema, ok := caseSchemas[kind]; ok {
		return schema, nil
	}

	fragment, err := caseFragment(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode case schema for %s: %w", kind, err)
	}
	schema, err := compileSchema("cases/"+string(kind)+".json", raw)
	if err != nil {
		return nil, err
	}
	caseSchemas[kind] = schema
	return schema, nil
}

// CaseParameters returns the parameter names a case of kind must carry and
// the names it may carry.
func CaseParameters(kind Kind) (required, optional []string, err error) {
	fragment, err := caseFragment(kind)
	if err != nil {
		return nil, nil, err
	}
	props, _ := fragment["properties"].(map[string]any)
	return propertyNames(props, true), propertyNames(props, false), nil
}

// ValidateCase checks c against the schema for kind. Unknown keys, wrong
// types, missing required parameters and empty paths are configuration
// errors.
func ValidateCase(kind Kind, c Case) error {
	schema, err := caseSchema(kind)
	if err != nil {
		return err
	}
	if err := schema.Validate(normalizeCase(c)); err != nil {
		return errs.Wrap(errs.KindConfiguration, fmt.Sprintf("case does not conform to the %s schema", kind), err)
	}
	return nil
}

// validateRuleset checks a whole decoded configuration document.
func validateRuleset(doc any) error {
	schema, err := rulesetSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return errs.Wrap(errs.KindConfiguration, "ruleset does not conform to the ruleset schema", err)
	}
	return nil
}

// normalizeCase converts the Go-native values callers tend to build cases
// from into decoded-JSON shapes.
func normalizeCase(c Case) any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		switch t := v.(type) {
		case []string:
			items := make([]any, len(t))
			for i, s := range t {
				items[i] = s
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
