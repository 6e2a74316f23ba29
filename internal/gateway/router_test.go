package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/storegate/internal/admission"
	"github.com/haasonsaas/storegate/internal/llm"
	"github.com/haasonsaas/storegate/internal/orchestrator"
	"github.com/haasonsaas/storegate/internal/session"
	"github.com/haasonsaas/storegate/pkg/chatproto"
)

const testSecret = "shhh"

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body) // no query params in these tests, so the canonical message is just the body
	return hex.EncodeToString(mac.Sum(nil))
}

type fakeToolCaller struct{}

func (fakeToolCaller) Call(ctx context.Context, toolName string, args json.RawMessage, cartKey string) (json.RawMessage, *chatproto.RpcError) {
	return json.RawMessage(`{}`), nil
}

func newTestRouter(t *testing.T, devBypass bool) *ChatRouter {
	t.Helper()
	host := session.NewHost(nil, nil)
	adm := admission.New(admission.Config{Limit: 100, Window: time.Minute}, nil)
	orch := &orchestrator.Orchestrator{
		Host:     host,
		Provider: &llm.FakeProvider{Scripts: [][]llm.Event{{{Type: llm.EventText, Text: "hi there"}}}},
		Tools:    fakeToolCaller{},
		Greeting: orchestrator.GreetingConfig{MaxLength: 15, Phrases: []string{"hej"}, Reply: "hej!"},
	}
	cfg := Config{ShopifyAppSecret: testSecret, ShopKey: "test-shop", DevBypass: devBypass}
	return New(cfg, host, adm, orch, fakeToolCaller{}, nil)
}

func TestCORSPreflight(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/chat", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected CORS header to be set")
	}
}

func TestHealthCheck(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDevChatBypassesSigning(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"message": "hello"})
	resp, err := http.Post(srv.URL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content-type, got %q", ct)
	}
}

func TestDevChatRouteDisabledWithoutBypass(t *testing.T) {
	rt := newTestRouter(t, false)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"message": "hello"})
	resp, err := http.Post(srv.URL+"/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 when dev bypass is off, got %d", resp.StatusCode)
	}
}

func TestSignedChatAcceptsValidSignature(t *testing.T) {
	rt := newTestRouter(t, false)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"message": "hello", "session_id": "s1"})
	sig := sign(body, testSecret)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/apps/assistant/chat", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", sig)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSignedChatRejectsReplayedSignature(t *testing.T) {
	rt := newTestRouter(t, false)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"message": "hello", "session_id": "s2"})
	sig := sign(body, testSecret)

	for i, wantStatus := range []int{http.StatusOK, http.StatusUnauthorized} {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/apps/assistant/chat", bytes.NewReader(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", sig)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != wantStatus {
			t.Fatalf("request %d: expected %d, got %d", i, wantStatus, resp.StatusCode)
		}
	}
}

func TestSignedChatRejectsBadSignature(t *testing.T) {
	rt := newTestRouter(t, false)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"message": "hello"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/apps/assistant/chat", bytes.NewReader(body))
	req.Header.Set("X-Shopify-Hmac-Sha256", "deadbeef")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRateLimitRejectionSetsRetryAfter(t *testing.T) {
	host := session.NewHost(nil, nil)
	adm := admission.New(admission.Config{Limit: 1, Window: time.Minute}, nil)
	orch := &orchestrator.Orchestrator{
		Host:     host,
		Provider: &llm.FakeProvider{Scripts: [][]llm.Event{{{Type: llm.EventText, Text: "hi"}}}},
		Greeting: orchestrator.GreetingConfig{MaxLength: 15, Phrases: []string{"hej"}, Reply: "hej!"},
	}
	cfg := Config{ShopifyAppSecret: testSecret, ShopKey: "test-shop"}
	rt := New(cfg, host, adm, orch, nil, nil)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	do := func(sessionID string) *http.Response {
		body, _ := json.Marshal(map[string]string{"message": "hello", "session_id": sessionID})
		sig := sign(body, testSecret)
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/apps/assistant/chat", bytes.NewReader(body))
		req.Header.Set("X-Shopify-Hmac-Sha256", sig)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		return resp
	}

	first := do("a")
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected first request admitted, got %d", first.StatusCode)
	}

	second := do("b")
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429")
	}
}
