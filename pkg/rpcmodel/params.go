package rpcmodel

import "fmt"

// params.go holds the small decoding helpers request.go uses to pull typed
// fields out of the loosely-typed map[string]any the wire envelope carries
// as Params. The driver never sees a json.RawMessage per field — sonic has
// already decoded the whole envelope by the time a handler runs.

func stringField(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("rpcmodel: missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("rpcmodel: field %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalStringField(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func mapField(params map[string]any, key string, required bool) (map[string]any, error) {
	v, ok := params[key]
	if !ok {
		if required {
			return nil, fmt.Errorf("rpcmodel: missing required field %q", key)
		}
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("rpcmodel: field %q must be an object", key)
	}
	return m, nil
}

func stringSliceField(params map[string]any, key string) ([]string, error) {
	v, ok := params[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("rpcmodel: field %q must be an array", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("rpcmodel: field %q must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func boolField(params map[string]any, key string, def bool) bool {
	v, ok := params[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func intField(params map[string]any, key string) (*int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("rpcmodel: field %q must be a number", key)
	}
	n := int(f)
	return &n, nil
}
