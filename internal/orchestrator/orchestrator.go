// Package orchestrator is the tool-augmented streaming orchestrator (C5,
// spec §4.5): it composes LLM input, streams a response, intercepts tool
// calls, dispatches them through the tool-protocol client with bounded
// fallback semantics, and resumes generation. Grounded on the teacher's
// internal/agent.AgenticLoop Init→Stream→ExecuteTools→Continue state
// machine (agent/loop.go), generalized from its job/approval/policy
// machinery down to the spec's simpler fixed tool table and 5-iteration
// ceiling.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/storegate/internal/llm"
	"github.com/haasonsaas/storegate/internal/session"
	"github.com/haasonsaas/storegate/internal/toolclient"
	"github.com/haasonsaas/storegate/pkg/chatproto"
)

// MaxToolIterations bounds the tool loop (spec §4.5 step 5, Glossary
// "Tool loop").
const MaxToolIterations = 5

// HistoryTail is the number of most-recent history entries assembled
// into LLM input (spec §4.5 step 4).
const HistoryTail = 20

// PersonaPrompt is the brand/persona system turn (spec §4.5 step 4).
const PersonaPrompt = "You are a helpful shopping assistant for this store. Be concise, friendly, and ground every factual claim about products, policies, or orders in a tool call rather than guessing."

// ToolClient is the subset of toolclient.Client the orchestrator needs,
// narrowed to an interface so tests can substitute a stub.
type ToolClient interface {
	Call(ctx context.Context, toolName string, rawArgs json.RawMessage, sessionCartKey string) (json.RawMessage, *chatproto.RpcError)
}

var _ ToolClient = (*toolclient.Client)(nil)

// Orchestrator drives one chat turn end to end.
type Orchestrator struct {
	Host     *session.Host
	Provider llm.Provider
	Tools    ToolClient
	Greeting GreetingConfig
	Logger   *slog.Logger

	// CustomerTokenSecret verifies an inbound customer_token (spec §4.5,
	// §9 Open Question (b)). Empty means customer_token is never parsed;
	// it is still surfaced to the LLM as an opaque presence marker.
	CustomerTokenSecret string
}

// Request is one inbound chat turn (spec §6.1).
type Request struct {
	SessionID     string
	Message       string
	CartID        string
	CustomerToken string
}

// Run executes the full state machine: INIT → GREETING-CHECK → STREAM →
// (TOOL-CALL ↔ STREAM)* → FINAL (spec §4.5 "State machine").
func (o *Orchestrator) Run(ctx context.Context, req Request, w Writer) error {
	logger := o.logger()
	now := nowMillis()

	if err := w.Session(req.SessionID); err != nil {
		return fmt.Errorf("write session event: %w", err)
	}

	actor := o.Host.Get(req.SessionID)
	actor.Append(chatproto.HistoryEntry{Role: chatproto.RoleUser, Content: req.Message, Ts: now})

	if matchesGreeting(req.Message, o.Greeting) {
		actor.Append(chatproto.HistoryEntry{Role: chatproto.RoleAssistant, Content: o.Greeting.Reply, Ts: nowMillis()})
		if err := w.Delta(o.Greeting.Reply); err != nil {
			return fmt.Errorf("write greeting delta: %w", err)
		}
		return w.Done()
	}

	if o.Provider == nil {
		w.Error("llm provider is not configured")
		return nil
	}

	messages := o.assembleMessages(actor, req)
	cartKey := o.resolveCartKey(req, logger)

	var lastText string
	for iteration := 0; iteration < MaxToolIterations; iteration++ {
		stream, err := o.Provider.Stream(ctx, messages, ToolRegistry)
		if err != nil {
			logger.Error("llm stream failed to open", "error", err)
			w.Error("assistant is temporarily unavailable")
			return nil
		}

		var text strings.Builder
		var toolCall *llm.ToolCall
		var streamErr error
		for ev := range stream {
			switch ev.Type {
			case llm.EventText:
				text.WriteString(ev.Text)
				if err := w.Delta(ev.Text); err != nil {
					return fmt.Errorf("write delta: %w", err)
				}
			case llm.EventToolCall:
				toolCall = ev.ToolCall
			case llm.EventUsage:
				logger.Info("llm usage", "prompt_tokens", ev.Usage.PromptTokens, "completion_tokens", ev.Usage.CompletionTokens)
			}
			if ev.Err != nil {
				streamErr = ev.Err
			}
		}
		if streamErr != nil {
			logger.Error("llm stream error", "error", streamErr)
			w.Error("assistant is temporarily unavailable")
			return nil
		}

		lastText = text.String()
		if toolCall == nil {
			break
		}

		assistantEntry := chatproto.HistoryEntry{
			Role:      chatproto.RoleAssistant,
			Content:   "",
			Ts:        nowMillis(),
			ToolCalls: []chatproto.ToolCallRef{{Name: toolCall.Name, Arguments: toolCall.Arguments}},
		}
		actor.Append(assistantEntry)
		if err := w.Status("Using tool: " + toolCall.Name); err != nil {
			return fmt.Errorf("write status: %w", err)
		}

		resultContent := o.dispatchTool(ctx, toolCall, cartKey)
		toolEntry := chatproto.HistoryEntry{
			Role:       chatproto.RoleTool,
			Content:    resultContent,
			Ts:         nowMillis(),
			ToolCallID: toolCall.ID,
			Name:       toolCall.Name,
		}
		actor.Append(toolEntry)

		messages = append(messages,
			llm.Message{Role: "assistant", ToolCalls: []llm.ToolCall{*toolCall}},
			llm.Message{Role: "tool", Content: resultContent, ToolCallID: toolCall.ID, Name: toolCall.Name},
		)
	}

	if err := w.Done(); err != nil {
		return fmt.Errorf("write done: %w", err)
	}
	if lastText != "" {
		actor.Append(chatproto.HistoryEntry{Role: chatproto.RoleAssistant, Content: lastText, Ts: nowMillis()})
	}
	return nil
}

// dispatchTool executes a tool call and renders its result (or error) as
// the tool-turn content string (spec §4.5: "a tool call whose transport
// returns {error} is still persisted as a tool turn"). cartKey is the
// bare "<k>" fragment NormalizeCartID expects, not a full cart GID.
func (o *Orchestrator) dispatchTool(ctx context.Context, tc *llm.ToolCall, cartKey string) string {
	result, rpcErr := o.Tools.Call(ctx, tc.Name, tc.Arguments, cartKey)
	if rpcErr != nil {
		out, _ := json.Marshal(map[string]any{"error": rpcErr})
		return string(out)
	}
	return string(result)
}

// resolveCartKey picks the session cart key to thread into tool calls
// (spec §6.5, §9 Open Question (b)): a customer-bound key from a verified
// customer_token takes precedence over the key fragment already present
// on the session's stored cart id.
func (o *Orchestrator) resolveCartKey(req Request, logger *slog.Logger) string {
	if req.CustomerToken != "" && o.CustomerTokenSecret != "" {
		claims, err := llm.ParseCustomerToken(req.CustomerToken, o.CustomerTokenSecret)
		if err != nil {
			logger.Warn("customer_token present but failed to parse", "error", err)
		} else if claims.CartKey != "" {
			return claims.CartKey
		}
	}
	return chatproto.CartKeyFragment(req.CartID)
}

// assembleMessages builds the LLM input per spec §4.5 step 4: persona,
// tool schema, optional cart/customer context, then the trimmed history
// tail.
func (o *Orchestrator) assembleMessages(actor *session.Actor, req Request) []llm.Message {
	messages := []llm.Message{
		{Role: "system", Content: PersonaPrompt},
		{Role: "system", Content: toolSchemaDescription()},
	}
	if req.CartID != "" {
		messages = append(messages, llm.Message{Role: "system", Content: "Current cart_id: " + req.CartID})
	}
	if req.CustomerToken != "" {
		content := "customer_token present"
		if o.CustomerTokenSecret != "" {
			if claims, err := llm.ParseCustomerToken(req.CustomerToken, o.CustomerTokenSecret); err == nil {
				content = "Authenticated customer: " + claims.Email
			}
		}
		messages = append(messages, llm.Message{Role: "system", Content: content})
	}

	history := actor.History()
	if len(history) > HistoryTail {
		history = history[len(history)-HistoryTail:]
	}
	for _, h := range history {
		messages = append(messages, historyToMessage(h))
	}
	return messages
}

func historyToMessage(h chatproto.HistoryEntry) llm.Message {
	m := llm.Message{Role: string(h.Role), Content: h.Content, ToolCallID: h.ToolCallID, Name: h.Name}
	for _, tc := range h.ToolCalls {
		m.ToolCalls = append(m.ToolCalls, llm.ToolCall{Name: tc.Name, Arguments: tc.Arguments})
	}
	return m
}

func toolSchemaDescription() string {
	descs := make([]string, 0, len(ToolRegistry))
	for _, t := range ToolRegistry {
		descs = append(descs, fmt.Sprintf("%s: %s (schema: %s)", t.Name, t.Description, string(t.Parameters)))
	}
	return "Available tools:\n" + strings.Join(descs, "\n")
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
