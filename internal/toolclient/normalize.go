package toolclient

import (
	"encoding/json"

	"github.com/haasonsaas/storegate/pkg/chatproto"
)

// normalizeArgs applies the per-tool argument normalization spec §4.3
// requires before transport.
func normalizeArgs(toolName string, raw json.RawMessage, sessionCartKey, defaultContext string, defaultFirst int) (json.RawMessage, *chatproto.RpcError) {
	var m map[string]any
	if len(raw) == 0 {
		m = map[string]any{}
	} else if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &chatproto.RpcError{Code: chatproto.ErrCodeInvalidParams, Message: "arguments must be a JSON object"}
	}

	switch toolName {
	case "search_shop_catalog":
		normalizeCatalogSearch(m, defaultContext, defaultFirst)
	case "get_cart", "update_cart":
		if err := normalizeCartArgs(m, sessionCartKey); err != nil {
			return nil, err
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, &chatproto.RpcError{Code: chatproto.ErrCodeInvalidParams, Message: "failed to re-encode arguments"}
	}
	return out, nil
}

func normalizeCatalogSearch(m map[string]any, defaultContext string, defaultFirst int) {
	switch first := m["first"].(type) {
	case float64:
		if first <= 0 {
			m["first"] = float64(defaultFirst)
		}
	default:
		m["first"] = float64(defaultFirst)
	}

	ctx, ok := m["context"].(string)
	if !ok || ctx == "" {
		m["context"] = defaultContext
	}
}

func normalizeCartArgs(m map[string]any, sessionCartKey string) *chatproto.RpcError {
	raw, present := m["cart_id"]
	if !present {
		return nil
	}

	var rawStr string
	switch v := raw.(type) {
	case nil:
		delete(m, "cart_id")
		return nil
	case string:
		rawStr = v
	default:
		return &chatproto.RpcError{Code: chatproto.ErrCodeInvalidParams, Message: "cart_id must be a string or null"}
	}

	normalized, err := chatproto.NormalizeCartID(rawStr, sessionCartKey)
	if err != nil {
		return &chatproto.RpcError{Code: chatproto.ErrCodeInvalidParams, Message: "invalid cart_id format"}
	}
	if normalized == "" {
		delete(m, "cart_id")
		return nil
	}
	m["cart_id"] = normalized
	return nil
}
