package llm

import (
	"context"
	"testing"
)

func TestNewOpenAIProviderUnconfiguredWithoutKey(t *testing.T) {
	p := NewOpenAIProvider("", Config{Model: "gpt-4o"}, nil)
	_, err := p.Stream(context.Background(), nil, nil)
	if err == nil {
		t.Fatalf("expected ErrUnconfigured when no API key is set")
	}
	if _, ok := err.(*ErrUnconfigured); !ok {
		t.Fatalf("expected *ErrUnconfigured, got %T: %v", err, err)
	}
}

func TestEmitCompletedToolCallsSkipsInvalidJSON(t *testing.T) {
	events := make(chan Event, 4)
	toolCalls := map[int]*ToolCall{
		0: {Name: "search_shop_catalog", Arguments: []byte(`{"query":"rings"}`)},
		1: {Name: "broken", Arguments: []byte(`{not valid`)},
		2: {Name: "", Arguments: []byte(`{}`)},
	}
	emitCompletedToolCalls(events, toolCalls)
	close(events)

	var got []Event
	for e := range events {
		got = append(got, e)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one emitted tool call, got %d", len(got))
	}
	if got[0].ToolCall.Name != "search_shop_catalog" {
		t.Fatalf("expected search_shop_catalog, got %s", got[0].ToolCall.Name)
	}
}
