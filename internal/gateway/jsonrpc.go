package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/haasonsaas/storegate/internal/orchestrator"
	"github.com/haasonsaas/storegate/pkg/chatproto"
)

// handleMCP serves the tool-protocol JSON-RPC surface (spec §6.2):
// tools/list and tools/call, backed by the tool-protocol client (C3).
func (rt *ChatRouter) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, nil, chatproto.ErrCodeParseError, "failed to read request body")
		return
	}

	var env chatproto.RpcEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeRPCError(w, nil, chatproto.ErrCodeParseError, "invalid JSON-RPC envelope")
		return
	}
	if env.JSONRPC != "2.0" {
		writeRPCError(w, env.ID, chatproto.ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	switch env.Method {
	case "tools/list":
		rt.handleToolsList(w, env)
	case "tools/call":
		rt.handleToolsCall(w, r, env)
	default:
		writeRPCError(w, env.ID, chatproto.ErrCodeMethodNotFound, "unknown method: "+env.Method)
	}
}

func (rt *ChatRouter) handleToolsList(w http.ResponseWriter, env chatproto.RpcEnvelope) {
	descriptors := make([]chatproto.ToolDescriptor, 0, len(orchestrator.ToolRegistry))
	for _, t := range orchestrator.ToolRegistry {
		descriptors = append(descriptors, chatproto.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	result, _ := json.Marshal(descriptors)
	writeRPCResult(w, env.ID, result)
}

func (rt *ChatRouter) handleToolsCall(w http.ResponseWriter, r *http.Request, env chatproto.RpcEnvelope) {
	var params chatproto.ToolCallParams
	if err := json.Unmarshal(env.Params, &params); err != nil {
		writeRPCError(w, env.ID, chatproto.ErrCodeInvalidParams, "params must be {name, arguments}")
		return
	}
	if !isKnownTool(params.Name) {
		writeRPCError(w, env.ID, chatproto.ErrCodeMethodNotFound, "unknown tool: "+params.Name)
		return
	}

	sessionCartKey := ""
	if sid := r.URL.Query().Get("session_id"); sid != "" {
		// sessionCartKey is the bare "<k>" fragment NormalizeCartID expects,
		// not the full stored GID.
		sessionCartKey = chatproto.CartKeyFragment(rt.host.Get(sid).CartID())
	}

	result, rpcErr := rt.tools.Call(r.Context(), params.Name, params.Arguments, sessionCartKey)
	if rpcErr != nil {
		toolCalls.WithLabelValues(params.Name, "error").Inc()
		writeRPCErrorObj(w, env.ID, rpcErr)
		return
	}
	toolCalls.WithLabelValues(params.Name, "ok").Inc()
	writeRPCResult(w, env.ID, result)
}

func isKnownTool(name string) bool {
	for _, t := range orchestrator.ToolRegistry {
		if t.Name == name {
			return true
		}
	}
	return false
}

func writeRPCResult(w http.ResponseWriter, id any, result json.RawMessage) {
	resp := chatproto.RpcResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeRPCError(w http.ResponseWriter, id any, code int, message string) {
	writeRPCErrorObj(w, id, &chatproto.RpcError{Code: code, Message: message})
}

func writeRPCErrorObj(w http.ResponseWriter, id any, rpcErr *chatproto.RpcError) {
	resp := chatproto.RpcResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
