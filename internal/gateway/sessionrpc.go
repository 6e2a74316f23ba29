package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/storegate/pkg/chatproto"
)

// This file implements the session actor's internal HTTP-like RPC surface
// (spec §6.3): GET /history, POST /append, GET /cart-id, POST
// /set-cart-id, POST /set-session-id, POST /track-product-view, POST
// /replay-check. Each operates on the actor named by the session_id query
// parameter, mirroring the way handleToolsCall already resolves a
// session's actor in jsonrpc.go.

func (rt *ChatRouter) handleHistory(w http.ResponseWriter, r *http.Request) {
	actor := rt.host.Get(r.URL.Query().Get("session_id"))
	writeJSON(w, map[string]any{"history": actor.History()})
}

func (rt *ChatRouter) handleAppend(w http.ResponseWriter, r *http.Request) {
	var entry chatproto.HistoryEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid history entry", http.StatusBadRequest)
		return
	}
	rt.host.Get(r.URL.Query().Get("session_id")).Append(entry)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *ChatRouter) handleGetCartID(w http.ResponseWriter, r *http.Request) {
	actor := rt.host.Get(r.URL.Query().Get("session_id"))
	writeJSON(w, map[string]string{"cart_id": actor.CartID()})
}

type setCartIDBody struct {
	CartID string `json:"cart_id"`
}

func (rt *ChatRouter) handleSetCartID(w http.ResponseWriter, r *http.Request) {
	var body setCartIDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	rt.host.Get(r.URL.Query().Get("session_id")).SetCartID(body.CartID)
	w.WriteHeader(http.StatusNoContent)
}

type sessionIDBody struct {
	SessionID string `json:"session_id"`
}

// handleSetSessionID mints a fresh session id when the caller supplies
// none, and is idempotent when called again with an id it already
// returned (spec §4.4 "set_session_id(id) — once, on first request lacking
// one; idempotent with the same id").
func (rt *ChatRouter) handleSetSessionID(w http.ResponseWriter, r *http.Request) {
	var body sessionIDBody
	json.NewDecoder(r.Body).Decode(&body)
	id := body.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	rt.host.Get(id)
	writeJSON(w, sessionIDBody{SessionID: id})
}

func (rt *ChatRouter) handleTrackProductView(w http.ResponseWriter, r *http.Request) {
	var view chatproto.ProductView
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		http.Error(w, "invalid product view", http.StatusBadRequest)
		return
	}
	rt.host.Get(r.URL.Query().Get("session_id")).TrackProductView(view)
	w.WriteHeader(http.StatusNoContent)
}

type replayCheckBody struct {
	Signature string `json:"signature"`
}

func (rt *ChatRouter) handleReplayCheck(w http.ResponseWriter, r *http.Request) {
	var body replayCheckBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Signature == "" {
		http.Error(w, "signature is required", http.StatusBadRequest)
		return
	}
	used := rt.host.Get(r.URL.Query().Get("session_id")).ReplayCheck(body.Signature)
	writeJSON(w, map[string]bool{"used": used})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
