package toolclient

import (
	"encoding/json"
	"fmt"
)

// summarizeArgs renders args_summary per spec §4.3: strings become
// "[len:N]", arrays become "array(len=N)", objects become "object" —
// never the raw values, which may contain customer-entered text. Only the
// top-level arguments object is broken down field by field (so a caller
// can tell which fields were present); anything nested inside a field,
// object or not, collapses to the literal summary for its kind.
func summarizeArgs(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "object"
	}
	m, ok := v.(map[string]any)
	if !ok {
		return summarizeValue(v)
	}
	fields := make(map[string]string, len(m))
	for k, val := range m {
		fields[k] = summarizeValue(val)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return "object"
	}
	return string(out)
}

// summarizeValue renders one field's shape below the top-level arguments
// object. A nested map[string]any collapses to the literal "object"
// rather than recursing field by field again.
func summarizeValue(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("[len:%d]", len(t))
	case []any:
		return fmt.Sprintf("array(len=%d)", len(t))
	default:
		return "object"
	}
}
