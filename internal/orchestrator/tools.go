package orchestrator

import (
	"encoding/json"

	"github.com/haasonsaas/storegate/internal/llm"
)

// ToolRegistry is the static {name: schema} table spec §9 Design Notes
// calls for: consulted both by the orchestrator (to advertise tools to
// the LLM) and by the tool-protocol tools/list surface. Adding a tool is
// a change in this one table; nothing here reflects over Go types.
var ToolRegistry = []llm.ToolSpec{
	{
		Name:        "search_shop_catalog",
		Description: "Search the merchant's product catalog.",
		Parameters: schema(map[string]any{
			"type":     "object",
			"required": []string{"query", "context"},
			"properties": map[string]any{
				"query":   map[string]any{"type": "string"},
				"context": map[string]any{"type": "string"},
				"first":   map[string]any{"type": "number"},
			},
		}),
	},
	{
		Name:        "search_shop_policies_and_faqs",
		Description: "Search store policies and frequently asked questions.",
		Parameters: schema(map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query":   map[string]any{"type": "string"},
				"context": map[string]any{"type": "string"},
			},
		}),
	},
	{
		Name:        "get_cart",
		Description: "Fetch the current cart by id.",
		Parameters: schema(map[string]any{
			"type": "object",
			"properties": map[string]any{
				"cart_id": map[string]any{"type": []string{"string", "null"}},
			},
		}),
	},
	{
		Name:        "update_cart",
		Description: "Add or update line items in a cart.",
		Parameters: schema(map[string]any{
			"type":     "object",
			"required": []string{"lines"},
			"properties": map[string]any{
				"cart_id": map[string]any{"type": []string{"string", "null"}},
				"lines": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []string{"merchandiseId", "quantity"},
						"properties": map[string]any{
							"merchandiseId": map[string]any{"type": "string"},
							"quantity":      map[string]any{"type": "number"},
						},
					},
				},
			},
		}),
	},
	{
		Name:        "get_order_status",
		Description: "Fetch the status of a specific order.",
		Parameters: schema(map[string]any{
			"type":     "object",
			"required": []string{"order_id"},
			"properties": map[string]any{
				"order_id": map[string]any{"type": "string"},
			},
		}),
	},
	{
		Name:        "get_most_recent_order_status",
		Description: "Fetch the status of the customer's most recent order.",
		Parameters:  schema(map[string]any{"type": "object", "properties": map[string]any{}}),
	},
}

func schema(v map[string]any) json.RawMessage {
	out, err := json.Marshal(v)
	if err != nil {
		panic("static tool schema must marshal: " + err.Error())
	}
	return out
}
