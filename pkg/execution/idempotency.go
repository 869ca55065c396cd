package execution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/opsforge/execcore/pkg/domain"
)

// IdempotencyKey computes the SHA-256 fingerprint described in
// SPEC_FULL.md §3: tenant + actor + plan-canonical JSON + target-canonical
// JSON, stable under map-key ordering.
func IdempotencyKey(tenantID, actorID string, plan domain.Plan, target domain.Target) string {
	h := sha256.New()
	h.Write([]byte(tenantID))
	h.Write([]byte{0})
	h.Write([]byte(actorID))
	h.Write([]byte{0})
	h.Write(canonicalJSON(plan))
	h.Write([]byte{0})
	h.Write(canonicalJSON(target))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON marshals v with map keys sorted, so semantically identical
// inputs always produce byte-identical output regardless of construction
// order. encoding/json already sorts map[string]any keys; canonicalize
// nested maps explicitly in case a future type aliases them differently.
func canonicalJSON(v any) []byte {
	normalized := normalize(v)
	b, err := json.Marshal(normalized)
	if err != nil {
		// Marshaling a plan/target built entirely of domain types never
		// fails; treat it as a programmer error rather than threading an
		// error return through every caller.
		panic(err)
	}
	return b
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = normalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalize(vv)
		}
		return out
	case domain.Plan:
		steps := make([]any, len(val.Steps))
		for i, s := range val.Steps {
			steps[i] = normalize(s)
		}
		return map[string]any{"steps": steps}
	case domain.Step:
		return map[string]any{
			"ordinal":       val.Ordinal,
			"tool_name":     val.ToolName,
			"pattern":       val.Pattern,
			"inputs":        normalize(map[string]any(val.Inputs)),
			"on_failure":    val.OnFailure,
			"writes":        val.Writes,
			"mutex_purpose": val.MutexPurpose,
		}
	case domain.Target:
		return map[string]any{
			"asset_id": val.AssetID,
			"hostname": val.Hostname,
		}
	default:
		return v
	}
}
