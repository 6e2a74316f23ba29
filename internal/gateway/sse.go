package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter implements orchestrator.Writer over an http.ResponseWriter,
// grounded on the bufio-line writing discipline of the teacher's
// internal/mcp.HTTPTransport SSE loop, but for production rather than
// consumption: every call writes one frame and flushes immediately so a
// client disconnect surfaces as a write error at the next checkpoint
// (spec §5 "Cancellation").
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) writeFrame(event, data string) error {
	var err error
	if event != "" {
		_, err = fmt.Fprintf(s.w, "event: %s\n", event)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	if err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) Session(sessionID string) error {
	payload, _ := json.Marshal(map[string]string{"session_id": sessionID})
	return s.writeFrame("session", string(payload))
}

func (s *sseWriter) Delta(text string) error {
	payload, _ := json.Marshal(map[string]string{"delta": text})
	return s.writeFrame("", string(payload))
}

func (s *sseWriter) Status(message string) error {
	payload, _ := json.Marshal(map[string]string{"message": message})
	return s.writeFrame("status", string(payload))
}

func (s *sseWriter) Done() error {
	return s.writeFrame("", "[DONE]")
}

func (s *sseWriter) Error(reason string) error {
	payload, _ := json.Marshal(map[string]string{"error": reason})
	return s.writeFrame("error", string(payload))
}
