package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key derives the deterministic cache key for a capability invocation.
// Arguments are normalized (keys sorted, string values trimmed and
// lowercased) so that semantically identical requests share one entry.
func Key(capability string, args map[string]any) string {
	h := sha256.New()
	h.Write([]byte(capability))
	h.Write([]byte{0})
	h.Write([]byte(canonicalize(args)))

	return capability + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

func canonicalize(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(normalizeValue(args[k]))
	}
	b.WriteByte('}')

	return b.String()
}

func normalizeValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(val))
	case map[string]any:
		return canonicalize(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = normalizeValue(item)
		}

		return "[" + strings.Join(parts, ",") + "]"
	default:
		// Numbers, booleans, nil. JSON encoding gives a stable form.
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}

		return string(raw)
	}
}
