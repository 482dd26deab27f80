package gatewayhttp

import (
	"encoding/json"
	"net/http"
)

// sseWriter wraps a ResponseWriter with a flush-after-every-frame
// discipline: the producer respects writer back-pressure instead of
// buffering unboundedly ahead of the client.
type sseWriter struct {
	w  http.ResponseWriter
	fl http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fl, _ := w.(http.Flusher)
	return &sseWriter{w: w, fl: fl}
}

// writeData writes a bare `data: <json>\n\n` frame, the OpenAI framing.
func (s *sseWriter) writeData(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flush()
	return nil
}

// writeEvent writes a named `event: <name>\ndata: <json>\n\n` frame, the
// Anthropic framing.
func (s *sseWriter) writeEvent(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("event: " + name + "\n")); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	s.flush()
	return nil
}

// writeDone writes the literal OpenAI stream terminator.
func (s *sseWriter) writeDone() {
	s.w.Write([]byte("data: [DONE]\n\n"))
	s.flush()
}

func (s *sseWriter) flush() {
	if s.fl != nil {
		s.fl.Flush()
	}
}

// resolveStreaming decides whether a request should stream, applying a
// health-probe downgrade quirk: a single, short (<20 char) message with
// no explicit `stream` field downgrades to a non-streaming response even
// though the gateway otherwise defaults to streaming.
func resolveStreaming(explicit *bool, singleMessageText string, messageCount int) bool {
	if explicit != nil {
		return *explicit
	}
	if messageCount == 1 && len(singleMessageText) < 20 {
		return false
	}
	return true
}
