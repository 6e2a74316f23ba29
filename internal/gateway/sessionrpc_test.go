package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/storegate/pkg/chatproto"
)

func TestSetSessionIDMintsAndIsIdempotent(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/set-session-id", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var minted sessionIDBody
	if err := json.NewDecoder(resp.Body).Decode(&minted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if minted.SessionID == "" {
		t.Fatalf("expected a minted session id")
	}

	again, err := http.Post(srv.URL+"/set-session-id", "application/json", bytes.NewReader([]byte(`{"session_id":"`+minted.SessionID+`"}`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var repeated sessionIDBody
	if err := json.NewDecoder(again.Body).Decode(&repeated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	again.Body.Close()
	if repeated.SessionID != minted.SessionID {
		t.Fatalf("expected idempotent session id, got %q then %q", minted.SessionID, repeated.SessionID)
	}
}

func TestAppendThenHistoryRoundTrips(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	entry := chatproto.HistoryEntry{Role: chatproto.RoleUser, Content: "hello"}
	body, _ := json.Marshal(entry)
	resp, err := http.Post(srv.URL+"/append?session_id=s1", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("append request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from append, got %d", resp.StatusCode)
	}

	histResp, err := http.Get(srv.URL + "/history?session_id=s1")
	if err != nil {
		t.Fatalf("history request failed: %v", err)
	}
	defer histResp.Body.Close()
	var got struct {
		History []chatproto.HistoryEntry `json:"history"`
	}
	if err := json.NewDecoder(histResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.History) != 1 || got.History[0].Content != "hello" {
		t.Fatalf("expected the appended entry to round-trip, got %+v", got.History)
	}
}

func TestSetCartIDThenGetCartID(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(setCartIDBody{CartID: "gid://shopify/Cart/1?key=abc"})
	resp, err := http.Post(srv.URL+"/set-cart-id?session_id=s1", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("set-cart-id request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/cart-id?session_id=s1")
	if err != nil {
		t.Fatalf("cart-id request failed: %v", err)
	}
	defer getResp.Body.Close()
	var got map[string]string
	if err := json.NewDecoder(getResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["cart_id"] != "gid://shopify/Cart/1?key=abc" {
		t.Fatalf("expected stored cart id to round-trip, got %q", got["cart_id"])
	}
}

func TestTrackProductViewAccepted(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(chatproto.ProductView{ProductID: "p1"})
	resp, err := http.Post(srv.URL+"/track-product-view?session_id=s1", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
}

func TestReplayCheckReportsUsedOnSecondCall(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	body, _ := json.Marshal(replayCheckBody{Signature: "sig-1"})
	do := func() map[string]bool {
		resp, err := http.Post(srv.URL+"/replay-check?session_id=s1", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		var got map[string]bool
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return got
	}

	if first := do(); first["used"] {
		t.Fatalf("expected first replay-check to report unused, got %v", first)
	}
	if second := do(); !second["used"] {
		t.Fatalf("expected second replay-check for the same signature to report used, got %v", second)
	}
}

func TestReplayCheckRejectsMissingSignature(t *testing.T) {
	rt := newTestRouter(t, true)
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/replay-check?session_id=s1", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing signature, got %d", resp.StatusCode)
	}
}
