// Package payload rewrites outbound request bodies for the backend a route
// selected, without disturbing any byte the rewrite doesn't touch.
package payload

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// Rewrite applies the backend's model-name override and optional
// "thinking" injection to raw, patching only the keys that actually
// change. If neither rule applies, or if patching fails, the original
// bytes are returned unchanged — this proxy never decodes-then-reencodes
// a body it doesn't need to touch, so unrelated keys never get reordered
// or reformatted.
func Rewrite(raw []byte, backend *models.Backend) []byte {
	out := raw
	changed := false

	if target := backend.ResolvedTargetModel(); target != "" && target != gjson.GetBytes(raw, "model").String() {
		patched, err := sjson.SetBytes(out, "model", target)
		if err != nil {
			return raw
		}
		out = patched
		changed = true
	}

	if backend.SupportsReasoning && !gjson.GetBytes(raw, "thinking.type").Exists() {
		patched, err := sjson.SetBytes(out, "thinking", map[string]any{"type": "enabled"})
		if err != nil {
			return raw
		}
		out = patched
		changed = true
	}

	if !changed {
		return raw
	}
	return out
}
