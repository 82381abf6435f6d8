package pattern

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Value is the ordered list of scalars accumulated under one dotted path.
// A Value of length 1 represents what spec callers think of as a scalar;
// longer Values are the array fan-out case. The raw ordered slice is always
// retained so indexed template access ($a.b[0]$) works even when the list
// happens to have exactly one element.
type Value []any

// Single returns the sole element and true when the Value has exactly one
// entry.
func (v Value) Single() (any, bool) {
	if len(v) == 1 {
		return v[0], true
	}
	return nil, false
}

// At returns the i-th element (0-based) and true if in range.
func (v Value) At(i int) (any, bool) {
	if i < 0 || i >= len(v) {
		return nil, false
	}
	return v[i], true
}

// Join renders every element as a string and joins them with ", ", matching
// the template renderer's list-rendering rule. A null JSON scalar renders as
// an empty string.
func (v Value) Join() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = scalarString(e)
	}
	return strings.Join(parts, ", ")
}

// MarshalJSON collapses a length-1 Value to its bare scalar and renders
// longer Values as a JSON array, matching the §3 "Result shaping" contract.
func (v Value) MarshalJSON() ([]byte, error) {
	if single, ok := v.Single(); ok {
		return json.Marshal(single)
	}
	return json.Marshal([]any(v))
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ValueMap is the output of Extract: dotted path -> accumulated values.
type ValueMap map[string]Value

// Extract walks decoded JSON value data with the parsed pattern forest and
// returns the extracted value map. It never fails on missing fields; only
// Parse can fail on a malformed expression.
func Extract(data any, roots []*Node) ValueMap {
	acc := map[string][]any{}
	for _, root := range roots {
		walk(data, root, "", acc)
	}

	out := make(ValueMap, len(acc))
	for path, values := range acc {
		if len(values) == 0 {
			continue
		}
		out[path] = Value(values)
	}
	return out
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// walk descends one pattern step into value. value may itself be an array
// (a fan-out point above this node, e.g. the root payload or an intermediate
// array of objects); arrays are transparently fanned out over before the
// node's own key lookup is applied.
func walk(value any, node *Node, path string, acc map[string][]any) {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			walk(elem, node, path, acc)
		}
	case map[string]any:
		child, ok := v[node.Name]
		if !ok {
			return
		}
		newPath := joinPath(path, node.Name)
		if len(node.Children) == 0 {
			recordLeaf(child, newPath, acc)
		} else {
			descendChildren(child, node.Children, newPath, acc)
		}
	default:
		// Scalar (or nil) encountered where an object key lookup was
		// expected: type mismatch, silently contributes nothing.
	}
}

// recordLeaf accumulates the scalar(s) reached by a leaf node, fanning out
// transitively through any nested arrays.
func recordLeaf(value any, path string, acc map[string][]any) {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			recordLeaf(elem, path, acc)
		}
	case map[string]any:
		// Leaf pattern but payload has a nested object: type mismatch.
	default:
		acc[path] = append(acc[path], v)
	}
}

// descendChildren applies a node's children to the value reached at its key,
// fanning out through nested arrays first.
func descendChildren(value any, children []*Node, path string, acc map[string][]any) {
	switch v := value.(type) {
	case []any:
		for _, elem := range v {
			descendChildren(elem, children, path, acc)
		}
	case map[string]any:
		for _, child := range children {
			walk(v, child, path, acc)
		}
	default:
		// Non-leaf pattern but payload value is a scalar: type mismatch.
	}
}
