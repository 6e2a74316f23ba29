package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider streams chat completions through
// github.com/sashabaranov/go-openai. Its accumulation loop is ported from
// the teacher's internal/agent/providers.OpenAIProvider.processStream:
// partial tool_calls deltas are keyed by index and their function.name /
// function.arguments strings are appended across chunks until the stream
// reports FinishReason=="tool_calls" or ends.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
	logger *slog.Logger
}

// NewOpenAIProvider builds an OpenAIProvider. apiKey == "" yields a
// provider whose Stream always returns ErrUnconfigured.
func NewOpenAIProvider(apiKey string, cfg Config, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	var client *openai.Client
	if apiKey != "" {
		client = openai.NewClient(apiKey)
	}
	return &OpenAIProvider{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "llm_openai"),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Stream opens a streaming chat completion and normalizes it into Events.
func (p *OpenAIProvider) Stream(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan Event, error) {
	if p.client == nil {
		return nil, &ErrUnconfigured{Provider: "openai"}
	}

	req := openai.ChatCompletionRequest{
		Model:       p.cfg.Model,
		Temperature: float32(p.cfg.Temperature),
		MaxTokens:   p.cfg.MaxTokens,
		TopP:        float32(p.cfg.TopP),
		Messages:    convertMessages(messages),
		Tools:       convertTools(tools),
		Stream:      true,
	}
	if p.cfg.IncludeUsage {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}

	events := make(chan Event)
	go p.processStream(ctx, stream, events)
	return events, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- Event) {
	defer close(events)
	defer stream.Close()

	toolCalls := make(map[int]*ToolCall)

	for {
		select {
		case <-ctx.Done():
			events <- Event{Err: ctx.Err()}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				emitCompletedToolCalls(events, toolCalls)
				return
			}
			events <- Event{Err: err}
			return
		}

		if resp.Usage != nil {
			events <- Event{Type: EventUsage, Usage: &Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}}
		}

		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			events <- Event{Type: EventText, Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				current := string(toolCalls[index].Arguments)
				toolCalls[index].Arguments = json.RawMessage(current + tc.Function.Arguments)
			}
		}

		if resp.Choices[0].FinishReason == "tool_calls" {
			emitCompletedToolCalls(events, toolCalls)
			toolCalls = make(map[int]*ToolCall)
		}
	}
}

// emitCompletedToolCalls emits only tool calls whose arguments have
// parsed as valid JSON, per spec §4.6 ("emits a single tool_call event
// once arguments parses as valid JSON").
func emitCompletedToolCalls(events chan<- Event, toolCalls map[int]*ToolCall) {
	for _, tc := range toolCalls {
		if tc.Name == "" {
			continue
		}
		if !json.Valid(tc.Arguments) {
			continue
		}
		tcCopy := *tc
		events <- Event{Type: EventToolCall, ToolCall: &tcCopy}
	}
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(tools []ToolSpec) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	return out
}
