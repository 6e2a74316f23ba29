// Package gateway is the request router (C7, spec §4.7): top-level HTTP
// dispatch, CORS, session-id minting, and wiring of C1-C6. Grounded on
// the teacher's plain net/http.NewServeMux routing style
// (internal/gateway/http_server.go) and its CORS/auth middleware shape
// (internal/web/middleware.go), simplified down to this spec's single
// storefront-widget surface.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/haasonsaas/storegate/internal/admission"
	"github.com/haasonsaas/storegate/internal/orchestrator"
	"github.com/haasonsaas/storegate/internal/session"
	"github.com/haasonsaas/storegate/internal/signing"
	"github.com/haasonsaas/storegate/pkg/chatproto"
)

// Config binds the router's request-edge configuration.
type Config struct {
	ShopifyAppSecret string
	ShopKey          string // admission bucket key; the shop domain in single-shop deployments
	DevBypass        bool
	CORS             CORSConfig
}

// ChatRouter wires C1 (signing) through C6 (llm) behind a plain
// net/http.ServeMux, per spec §4.7.
type ChatRouter struct {
	cfg       Config
	host      *session.Host
	admission *admission.Controller
	orch      *orchestrator.Orchestrator
	tools     orchestrator.ToolClient
	logger    *slog.Logger
}

// New builds a ChatRouter from its collaborators. tools is accepted
// separately from orch.Tools so the JSON-RPC tools/call surface (spec
// §6.2) can share the exact same client the orchestrator's tool loop
// uses.
func New(cfg Config, host *session.Host, adm *admission.Controller, orch *orchestrator.Orchestrator, tools orchestrator.ToolClient, logger *slog.Logger) *ChatRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatRouter{
		cfg:       cfg,
		host:      host,
		admission: adm,
		orch:      orch,
		tools:     tools,
		logger:    logger.With("component", "gateway_router"),
	}
}

// Handler builds the routed net/http.Handler (spec §4.7 "Routes").
func (rt *ChatRouter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", rt.handlePing)
	mux.HandleFunc("GET /ping", rt.handlePing)
	mux.HandleFunc("GET /health", rt.handlePing)
	mux.HandleFunc("POST /apps/assistant/chat", rt.handleChatHMAC)
	mux.HandleFunc("POST /chat", rt.handleChatDev)
	mux.HandleFunc("POST /apps/assistant/mcp", rt.handleMCP)
	mux.HandleFunc("POST /mcp/tools/call", rt.handleMCP)
	mux.Handle("GET /metrics", metricsHandler())

	// Session actor RPC surface (spec §6.3): an internal HTTP-like view
	// onto the C4 actor's operations, keyed by the session_id query param.
	mux.HandleFunc("GET /history", rt.handleHistory)
	mux.HandleFunc("POST /append", rt.handleAppend)
	mux.HandleFunc("GET /cart-id", rt.handleGetCartID)
	mux.HandleFunc("POST /set-cart-id", rt.handleSetCartID)
	mux.HandleFunc("POST /set-session-id", rt.handleSetSessionID)
	mux.HandleFunc("POST /track-product-view", rt.handleTrackProductView)
	mux.HandleFunc("POST /replay-check", rt.handleReplayCheck)

	return rt.withCORS(mux)
}

func (rt *ChatRouter) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rt.cfg.CORS.apply(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rt *ChatRouter) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
}

// chatBody is the request shape for both chat routes (spec §6.1).
type chatBody struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	CartID        string `json:"cart_id"`
	CustomerToken string `json:"customer_token"`
	Stream        bool   `json:"stream"`
}

// handleChatHMAC serves POST /apps/assistant/chat: C1 verification, then
// replay protection, then C2 admission, then the chat pipeline.
func (rt *ChatRouter) handleChatHMAC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	sigReq := signing.Request{
		Query:           r.URL.Query(),
		Body:            body,
		HeaderSignature: r.Header.Get("X-Shopify-Hmac-Sha256"),
	}
	result := signing.Verify(sigReq, rt.cfg.ShopifyAppSecret)
	if !result.OK {
		rt.logger.Warn("signature verification failed", "reason", result.Reason)
		chatRequests.WithLabelValues("apps_assistant_chat", "unauthorized").Inc()
		w.WriteHeader(signing.StatusCode(result.Reason))
		return
	}

	signature := signing.ExtractSignature(sigReq)
	// Replay protection is session-scoped (spec §9 "Shared-state
	// temptations"): the signature is checked against the actor the
	// request claims, which is already bound to a shop via its params.
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		var peek chatBody
		json.Unmarshal(body, &peek)
		sessionID = peek.SessionID
	}
	if sessionID != "" {
		if rt.host.Get(sessionID).ReplayCheck(signature) {
			chatRequests.WithLabelValues("apps_assistant_chat", "replayed").Inc()
			http.Error(w, "Unauthorized: Signature already used", http.StatusUnauthorized)
			return
		}
	}

	if rt.admission != nil {
		decision := rt.admission.Admit(rt.cfg.ShopKey)
		if !decision.Allowed {
			chatRequests.WithLabelValues("apps_assistant_chat", "rate_limited").Inc()
			w.Header().Set("Retry-After", msToSeconds(decision.RetryAfterMs))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	chatRequests.WithLabelValues("apps_assistant_chat", "accepted").Inc()
	rt.serveChat(w, r, body)
}

// handleChatDev serves POST /chat: the chat pipeline without HMAC,
// guarded by DEV_BYPASS (spec §4.7, §6.6).
func (rt *ChatRouter) handleChatDev(w http.ResponseWriter, r *http.Request) {
	if !rt.cfg.DevBypass {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	rt.serveChat(w, r, body)
}

func (rt *ChatRouter) serveChat(w http.ResponseWriter, r *http.Request, body []byte) {
	var req chatBody
	if err := json.Unmarshal(body, &req); err != nil || req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	if req.CartID != "" {
		normalized, err := chatproto.NormalizeCartID(req.CartID, "")
		if err != nil {
			rt.logger.Warn("dropping malformed cart_id on chat request", "session_id", req.SessionID)
		} else if normalized != "" {
			rt.host.Get(req.SessionID).SetCartID(normalized)
		}
	}

	writer, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	orchReq := orchestrator.Request{
		SessionID:     req.SessionID,
		Message:       req.Message,
		CartID:        rt.host.Get(req.SessionID).CartID(),
		CustomerToken: req.CustomerToken,
	}
	if err := rt.orch.Run(r.Context(), orchReq, writer); err != nil {
		rt.logger.Error("orchestrator run failed", "error", err, "session_id", req.SessionID)
	}
}

func msToSeconds(ms int64) string {
	seconds := ms / 1000
	if ms%1000 != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return strconv.FormatInt(seconds, 10)
}
