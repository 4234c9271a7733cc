// Package refs resolves `{ref}` parameter values against a pathway's or
// topology's originating input JSON, the one piece of parameter
// machinery shared by the Pathway, Topology, and Verify components.
package refs

import (
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/selfgene/sg/internal/contracts"
)

// bracePattern matches a bare `{field.path}` reference, the same
// shorthand used in a VerifyStep's raw parameter map.
var bracePattern = regexp.MustCompile(`^\{(.+)\}$`)

// ResolveStepParams resolves a pathway step's typed parameter map against
// inputJSON. A literal passes through unchanged; a ref missing from
// inputJSON is dropped from the result entirely, per spec.
func ResolveStepParams(params map[string]contracts.Param, inputJSON string) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for key, p := range params {
		if !p.IsRef {
			out[key] = p.Literal
			continue
		}
		result := gjson.Get(inputJSON, p.Ref)
		if !result.Exists() {
			continue
		}
		out[key] = result.Value()
	}
	return out
}

// ResolveRawParams resolves a raw parameter map (as used by a VerifyStep,
// whose params arrive already JSON-decoded rather than pre-typed into
// contracts.Param) against inputJSON. A string value matching `{path}` is
// treated as a ref and replaced by the resolved value, dropped if the
// path is absent; every other value passes through as a literal.
func ResolveRawParams(params map[string]interface{}, inputJSON string) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for key, v := range params {
		s, ok := v.(string)
		if !ok {
			out[key] = v
			continue
		}
		m := bracePattern.FindStringSubmatch(s)
		if m == nil {
			out[key] = v
			continue
		}
		result := gjson.Get(inputJSON, m[1])
		if !result.Exists() {
			continue
		}
		out[key] = result.Value()
	}
	return out
}

// ResolveRef resolves a single bare gjson path (no surrounding braces)
// against inputJSON, reporting whether the path existed.
func ResolveRef(ref string, inputJSON string) (interface{}, bool) {
	result := gjson.Get(inputJSON, ref)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
