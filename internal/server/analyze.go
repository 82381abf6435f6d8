package server

import (
	"encoding/json"
	"net/http"

	"github.com/rakunlabs/webhookgw/internal/pattern"
	"github.com/rakunlabs/webhookgw/internal/render"
)

// analyzePayloadRequest carries a raw sample payload an admin wants help
// building a field pattern for.
type analyzePayloadRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// defaultAnalyzeDepth bounds how many object levels AnalyzePayloadAPI will
// descend into a sample payload before giving up on a branch.
const defaultAnalyzeDepth = 3

// AnalyzePayloadAPI decodes a sample payload and returns every dotted field
// path it can reach (up to defaultAnalyzeDepth levels deep) together with
// its inferred JSON type, so an admin building a field pattern can see
// what's available without guessing at the shape of a provider's webhook
// body.
func (s *Server) AnalyzePayloadAPI(w http.ResponseWriter, r *http.Request) {
	var req analyzePayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var payload any
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		httpResponse(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	paths := map[string]string{}
	discoverPaths(payload, "", 0, defaultAnalyzeDepth, paths)
	httpResponseJSON(w, paths, http.StatusOK)
}

// discoverPaths walks a decoded JSON value recording every scalar leaf's
// dotted path and its inferred type, descending at most maxDepth object
// levels. Arrays are represented by descending into their first element
// only, matching how a field pattern addresses an array: by its element
// shape, not by index.
func discoverPaths(value any, prefix string, depth, maxDepth int, out map[string]string) {
	if depth > maxDepth {
		return
	}
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := key
			if prefix != "" {
				childPath = prefix + "." + key
			}
			discoverPaths(child, childPath, depth+1, maxDepth, out)
		}
	case []any:
		if len(v) > 0 {
			discoverPaths(v[0], prefix, depth, maxDepth, out)
		}
	default:
		if prefix != "" {
			out[prefix] = inferType(v)
		}
	}
}

// inferType names the JSON type of a decoded scalar leaf.
func inferType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

// testConfigRequest carries a candidate fields/template pair and a sample
// payload to preview the rendered message without touching the store.
type testConfigRequest struct {
	Fields   string          `json:"fields"`
	Template string          `json:"template"`
	Payload  json.RawMessage `json:"payload"`
}

type testConfigResponse struct {
	Message string              `json:"message"`
	Values  pattern.ValueMap    `json:"values"`
}

// TestConfigAPI renders a candidate fields/template pair against a sample
// payload so an admin can preview a configuration before saving it.
func (s *Server) TestConfigAPI(w http.ResponseWriter, r *http.Request) {
	var req testConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, "invalid request body", http.StatusBadRequest)
		return
	}

	roots, err := pattern.Parse(req.Fields)
	if err != nil {
		httpResponse(w, "invalid field pattern: "+err.Error(), http.StatusBadRequest)
		return
	}

	var payload any
	if err := json.Unmarshal(req.Payload, &payload); err != nil {
		httpResponse(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	values := pattern.Extract(payload, roots)

	message, err := render.Render(req.Template, values)
	if err != nil {
		httpResponse(w, "invalid template: "+err.Error(), http.StatusBadRequest)
		return
	}

	httpResponseJSON(w, testConfigResponse{Message: message, Values: values}, http.StatusOK)
}
