package gatewayhttp

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewSSEWriterSetsEventStreamHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	newSSEWriter(w)
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", w.Header().Get("Content-Type"))
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Fatalf("unexpected cache-control: %q", w.Header().Get("Cache-Control"))
	}
}

func TestWriteDataFramesBareJSON(t *testing.T) {
	w := httptest.NewRecorder()
	s := newSSEWriter(w)
	if err := s.writeData(map[string]string{"k": "v"}); err != nil {
		t.Fatalf("write data: %v", err)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("unexpected frame: %q", body)
	}
	if !strings.Contains(body, `"k":"v"`) {
		t.Fatalf("expected json payload in frame, got %q", body)
	}
}

func TestWriteEventFramesNamedEvent(t *testing.T) {
	w := httptest.NewRecorder()
	s := newSSEWriter(w)
	if err := s.writeEvent("message_start", map[string]string{"type": "message_start"}); err != nil {
		t.Fatalf("write event: %v", err)
	}
	body := w.Body.String()
	if !strings.HasPrefix(body, "event: message_start\ndata: ") {
		t.Fatalf("unexpected frame: %q", body)
	}
}

func TestWriteDoneWritesLiteralTerminator(t *testing.T) {
	w := httptest.NewRecorder()
	s := newSSEWriter(w)
	s.writeDone()
	if w.Body.String() != "data: [DONE]\n\n" {
		t.Fatalf("unexpected terminator: %q", w.Body.String())
	}
}

func TestResolveStreamingExplicitWins(t *testing.T) {
	yes := true
	if !resolveStreaming(&yes, "hi", 1) {
		t.Fatal("expected explicit true to be honored")
	}
	no := false
	if resolveStreaming(&no, "a very long message that exceeds twenty characters", 1) {
		t.Fatal("expected explicit false to be honored")
	}
}

func TestResolveStreamingDowngradesShortSingleMessage(t *testing.T) {
	if resolveStreaming(nil, "hi", 1) {
		t.Fatal("expected a short single message with no explicit flag to downgrade to non-streaming")
	}
}

func TestResolveStreamingDefaultsToTrueOtherwise(t *testing.T) {
	if !resolveStreaming(nil, "a message that is definitely at least twenty chars long", 1) {
		t.Fatal("expected a long single message to default to streaming")
	}
	if !resolveStreaming(nil, "hi", 2) {
		t.Fatal("expected a multi-message conversation to default to streaming")
	}
}
