package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the alternate LLMProvider selectable via
// LLM_PROVIDER=anthropic (SPEC_FULL §3), normalizing Anthropic's
// content-block streaming events to the same {text, tool_call, usage}
// contract OpenAIProvider emits, so the orchestrator never branches on
// provider identity.
type AnthropicProvider struct {
	client *anthropic.Client
	cfg    Config
	logger *slog.Logger
}

// NewAnthropicProvider builds an AnthropicProvider. apiKey == "" yields a
// provider whose Stream always returns ErrUnconfigured.
func NewAnthropicProvider(apiKey string, cfg Config, logger *slog.Logger) *AnthropicProvider {
	if logger == nil {
		logger = slog.Default()
	}
	var client *anthropic.Client
	if apiKey != "" {
		c := anthropic.NewClient(option.WithAPIKey(apiKey))
		client = &c
	}
	return &AnthropicProvider{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "llm_anthropic"),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Stream(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan Event, error) {
	if p.client == nil {
		return nil, &ErrUnconfigured{Provider: "anthropic"}
	}

	system, msgs := splitSystemMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.cfg.Model),
		MaxTokens:   int64(p.cfg.MaxTokens),
		Temperature: anthropic.Float(p.cfg.Temperature),
		TopP:        anthropic.Float(p.cfg.TopP),
		System:      system,
		Messages:    msgs,
	}
	toolParams, err := convertAnthropicTools(tools)
	if err != nil {
		return nil, fmt.Errorf("convert tool schemas: %w", err)
	}
	params.Tools = toolParams

	stream := p.client.Messages.NewStreaming(ctx, params)
	events := make(chan Event)
	go p.processStream(stream, events)
	return events, nil
}

func (p *AnthropicProvider) processStream(stream *anthropic.MessageStream, events chan<- Event) {
	defer close(events)

	type pendingTool struct {
		id, name string
		args     string
	}
	blocks := make(map[int64]*pendingTool)

	for stream.Next() {
		evt := stream.Current()
		switch e := evt.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if tu, ok := e.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				blocks[e.Index] = &pendingTool{id: tu.ID, name: tu.Name}
			}
		case anthropic.ContentBlockDeltaEvent:
			switch d := e.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				events <- Event{Type: EventText, Text: d.Text}
			case anthropic.InputJSONDelta:
				if b, ok := blocks[e.Index]; ok {
					b.args += d.PartialJSON
				}
			}
		case anthropic.ContentBlockStopEvent:
			if b, ok := blocks[e.Index]; ok && b.name != "" {
				args := json.RawMessage(b.args)
				if json.Valid(args) {
					events <- Event{Type: EventToolCall, ToolCall: &ToolCall{ID: b.id, Name: b.name, Arguments: args}}
				}
				delete(blocks, e.Index)
			}
		case anthropic.MessageDeltaEvent:
			events <- Event{Type: EventUsage, Usage: &Usage{
				CompletionTokens: int(e.Usage.OutputTokens),
			}}
		}
	}
	if err := stream.Err(); err != nil {
		events <- Event{Err: fmt.Errorf("anthropic stream: %w", err)}
	}
}

func splitSystemMessages(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)},
		})
	}
	return system, out
}

func convertAnthropicTools(tools []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
		}
		toolParam.OfTool.Description = anthropic.String(t.Description)
		out = append(out, toolParam)
	}
	return out, nil
}
