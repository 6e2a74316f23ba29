// Package toolclient is the JSON-RPC 2.0 tool-protocol adapter (C3, spec
// §4.3) that talks to the remote merchant tool service. It is grounded on
// the teacher's internal/mcp.Client/HTTPTransport: a thin client wrapping
// an http.Client, POSTing a JSON-RPC envelope, with a logger scoped by
// .With(...) the same way mcp.NewClient scopes its logger by mcp_server.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/haasonsaas/storegate/pkg/chatproto"
)

// Timeout is the hard per-call deadline (spec §4.3).
const Timeout = 5 * time.Second

// DefaultCatalogContext is used when search_shop_catalog's context is
// missing or blank, overridable via internal/config.
const DefaultCatalogContext = "biżuteria"

// FallbackSystemNote is the safe-fallback message for search_shop_catalog
// (spec §4.3, Glossary "Safe fallback (catalog)").
const FallbackSystemNote = "Store temporarily unavailable; please try again shortly."

// Client calls a single shop's tool endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
	internalKey string
	logger     *slog.Logger

	catalogContext string
	catalogFirst   int

	nextID func() any
}

// Option configures a Client.
type Option func(*Client)

// WithIDGenerator overrides the JSON-RPC request id generator (defaults
// to a monotonic counter); tests use this for deterministic ids.
func WithIDGenerator(f func() any) Option {
	return func(c *Client) { c.nextID = f }
}

// WithCatalogDefaults overrides the normalization defaults for
// search_shop_catalog (spec §4.3).
func WithCatalogDefaults(context string, first int) Option {
	return func(c *Client) {
		if context != "" {
			c.catalogContext = context
		}
		if first > 0 {
			c.catalogFirst = first
		}
	}
}

// New builds a Client for shopDomain's tool endpoint
// (https://{shop_domain}/api/mcp, spec §4.3).
func New(shopDomain, internalKey string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	counter := newIDCounter()
	c := &Client{
		httpClient:     &http.Client{Timeout: Timeout},
		endpoint:       fmt.Sprintf("https://%s/api/mcp", shopDomain),
		internalKey:    internalKey,
		logger:         logger.With("component", "toolclient", "shop_domain", shopDomain),
		catalogContext: DefaultCatalogContext,
		catalogFirst:   5,
		nextID:         counter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newIDCounter() func() any {
	var n int64
	return func() any {
		n++
		return n
	}
}

// Call normalizes args, dispatches tools/call over JSON-RPC 2.0, and
// applies the fallback policy for search_shop_catalog (spec §4.3).
func (c *Client) Call(ctx context.Context, toolName string, rawArgs json.RawMessage, sessionCartKey string) (json.RawMessage, *chatproto.RpcError) {
	normalized, rpcErr := normalizeArgs(toolName, rawArgs, sessionCartKey, c.catalogContext, c.catalogFirst)
	if rpcErr != nil {
		return nil, rpcErr
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	result, err := c.dispatch(ctx, toolName, normalized)
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.logger.Info("tool call",
		"tool", toolName,
		"status", status,
		"args_summary", summarizeArgs(normalized),
	)

	if err == nil {
		return result, nil
	}

	if toolName == "search_shop_catalog" && isFallbackEligible(err) {
		c.logger.Warn("search_shop_catalog degraded to safe fallback", "tool", toolName, "error", err)
		fallback, _ := json.Marshal(map[string]any{
			"products":    []any{},
			"system_note": FallbackSystemNote,
		})
		return fallback, nil
	}

	return nil, &chatproto.RpcError{
		Code:    chatproto.ErrCodeExecutionError,
		Message: err.Error(),
	}
}

// toolError signals a transport-level failure so Call can distinguish
// "safe to fall back" conditions (5xx, timeout, network) from a clean
// JSON-RPC error payload already shaped by the remote service.
type toolError struct {
	httpStatus int
	timedOut   bool
	network    bool // transport-level failure reaching the tool service at all
	err        error
}

func (e *toolError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("tool call failed with status %d", e.httpStatus)
}

func isFallbackEligible(err error) bool {
	te, ok := err.(*toolError)
	if !ok {
		return true // untyped errors are treated as fallback-eligible
	}
	if te.timedOut || te.network {
		return true
	}
	return te.httpStatus >= 500
}

func (c *Client) dispatch(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	params := chatproto.ToolCallParams{Name: toolName, Arguments: args}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, &toolError{err: fmt.Errorf("marshal params: %w", err)}
	}

	envelope := chatproto.RpcEnvelope{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  paramsJSON,
		ID:      c.nextID(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, &toolError{err: fmt.Errorf("marshal envelope: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &toolError{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.internalKey != "" {
		req.Header.Set("X-Internal-Key", c.internalKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Do() failing covers both request-abort timeouts and connection-
		// level failures (refused, DNS, reset) — spec §4.3 treats both as
		// fallback-eligible for search_shop_catalog.
		return nil, &toolError{timedOut: ctx.Err() != nil, network: true, err: fmt.Errorf("request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &toolError{httpStatus: resp.StatusCode, err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, &toolError{httpStatus: resp.StatusCode, err: fmt.Errorf("tool service returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, &toolError{httpStatus: resp.StatusCode, err: fmt.Errorf("tool service returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var rpcResp chatproto.RpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, &toolError{err: fmt.Errorf("parse rpc response: %w", err)}
	}
	if rpcResp.Error != nil {
		return nil, &toolError{err: fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)}
	}
	return rpcResp.Result, nil
}
