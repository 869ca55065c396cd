// Package secretwalk recursively walks step inputs looking for secret
// references of the shape {"type":"secret","path":"<ref>"}, resolving
// each in place via a Resolver. Grounded on spec.md §4.2.4; no pack
// library does generic any-tree walking, and the structure is small
// enough that introducing one would be net negative.
package secretwalk

import "context"

// Resolver resolves a secret reference (the "path" field) to its
// plaintext value, and releases it (best-effort zeroization) once the
// step has finished using it.
type Resolver interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// Walk returns a deep copy of v with every {"type":"secret","path":...}
// leaf replaced by its resolved plaintext. Non-secret values pass
// through unchanged; map/slice structure is preserved.
func Walk(ctx context.Context, v any, resolver Resolver) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if ref, ok := asSecretRef(val); ok {
			plaintext, err := resolver.Resolve(ctx, ref)
			if err != nil {
				return nil, err
			}
			return plaintext, nil
		}
		out := make(map[string]any, len(val))
		for k, vv := range val {
			resolved, err := Walk(ctx, vv, resolver)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			resolved, err := Walk(ctx, vv, resolver)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func asSecretRef(m map[string]any) (string, bool) {
	if len(m) != 2 {
		return "", false
	}
	typ, ok := m["type"].(string)
	if !ok || typ != "secret" {
		return "", false
	}
	path, ok := m["path"].(string)
	if !ok {
		return "", false
	}
	return path, true
}
