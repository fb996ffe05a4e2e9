package stage

import (
	"github.com/caresim-lab/caseflow/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

// Decoding helpers for structured model output. Every mismatch maps to
// ErrMalformedOutput so the orchestrator applies the structural retry
// instead of treating a sloppy response as fatal.

func decodeString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", goerr.Wrap(model.ErrMalformedOutput, "missing field", goerr.V("field", key))
	}
	s, ok := v.(string)
	if !ok {
		return "", goerr.Wrap(model.ErrMalformedOutput, "field is not a string", goerr.V("field", key))
	}
	return s, nil
}

func decodeOptionalString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func decodeFloat(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, goerr.Wrap(model.ErrMalformedOutput, "missing field", goerr.V("field", key))
	}
	f, ok := v.(float64)
	if !ok {
		return 0, goerr.Wrap(model.ErrMalformedOutput, "field is not a number", goerr.V("field", key))
	}
	return f, nil
}

func decodeBool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok {
		return false, goerr.Wrap(model.ErrMalformedOutput, "missing field", goerr.V("field", key))
	}
	b, ok := v.(bool)
	if !ok {
		return false, goerr.Wrap(model.ErrMalformedOutput, "field is not a boolean", goerr.V("field", key))
	}
	return b, nil
}

func decodeStringSlice(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "missing field", goerr.V("field", key))
	}
	items, ok := v.([]any)
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "field is not an array", goerr.V("field", key))
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, goerr.Wrap(model.ErrMalformedOutput, "array element is not a string", goerr.V("field", key))
		}
		result = append(result, s)
	}
	return result, nil
}

func decodeObjectSlice(m map[string]any, key string) ([]map[string]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "missing field", goerr.V("field", key))
	}
	items, ok := v.([]any)
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "field is not an array", goerr.V("field", key))
	}
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, goerr.Wrap(model.ErrMalformedOutput, "array element is not an object", goerr.V("field", key))
		}
		result = append(result, obj)
	}
	return result, nil
}

func decodeObject(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "missing field", goerr.V("field", key))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, goerr.Wrap(model.ErrMalformedOutput, "field is not an object", goerr.V("field", key))
	}
	return obj, nil
}
