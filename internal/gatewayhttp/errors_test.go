package gatewayhttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nexusgate/oauth-llm-gateway/internal/gwerror"
)

func TestAdminRequestLogCapturesElapsedDuration(t *testing.T) {
	started := time.Now().Add(-50 * time.Millisecond)
	entry := adminRequestLog("openai", "gpt-4", "gemini-2.5-pro", "a@example.com", 200, started, "", 10, 20)
	if entry.Dialect != "openai" || entry.Model != "gpt-4" || entry.WireModel != "gemini-2.5-pro" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.DurationMs < 50 {
		t.Fatalf("expected duration to reflect elapsed time, got %d", entry.DurationMs)
	}
	if entry.InputTokens != 10 || entry.OutputTokens != 20 {
		t.Fatalf("unexpected token counts: %+v", entry)
	}
}

func TestWriteOpenAIErrorShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeOpenAIError(w, "bad request", 400)
	if w.Code != 400 {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var decoded map[string]map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["error"]["message"] != "bad request" || decoded["error"]["type"] != "invalid_request_error" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestWriteOpenAIRateLimitedSetsResetHeaderAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	writeOpenAIRateLimited(w, 30)
	if w.Code != 429 {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Reset") != "30" {
		t.Fatalf("unexpected reset header: %q", w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestWriteClaudeErrorShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeClaudeError(w, "boom", 502)
	var decoded map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["type"] != "error" {
		t.Fatalf("unexpected top-level type: %v", decoded["type"])
	}
	inner := decoded["error"].(map[string]interface{})
	if inner["type"] != "api_error" || inner["message"] != "boom" {
		t.Fatalf("unexpected inner error: %v", inner)
	}
}

func TestWriteClaudeRateLimitedShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeClaudeRateLimited(w, 15)
	if w.Code != 429 {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	inner := decoded["error"].(map[string]interface{})
	if inner["type"] != "rate_limit_error" {
		t.Fatalf("unexpected inner type: %v", inner["type"])
	}
}

func TestStatusForGatewayErrorUsesTaxonomy(t *testing.T) {
	if got := statusForGatewayError(gwerror.RateLimited(5)); got != 429 {
		t.Fatalf("expected 429 for rate limited taxonomy error, got %d", got)
	}
}

func TestStatusForGatewayErrorFallsBackTo500(t *testing.T) {
	plain := &plainError{"boom"}
	if got := statusForGatewayError(plain); got != 500 {
		t.Fatalf("expected 500 fallback for a non-taxonomy error, got %d", got)
	}
}

type plainError struct{ msg string }

func (e *plainError) Error() string { return e.msg }

func TestBodyDecodeErrorClassifiesOversizedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	oversized := io.NopCloser(strings.NewReader(`{"model":"way too much body for the limit"}`))
	limited := http.MaxBytesReader(rec, oversized, 1)
	buf := make([]byte, 4)
	_, readErr := limited.Read(buf)
	if readErr == nil {
		t.Fatal("expected MaxBytesReader to reject an oversized read")
	}

	ge := bodyDecodeError(readErr)
	if ge.Kind != gwerror.KindEntityTooLarge {
		t.Fatalf("expected entity-too-large kind, got %s", ge.Kind)
	}
	if ge.Status() != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", ge.Status())
	}
}

func TestBodyDecodeErrorClassifiesMalformedJSON(t *testing.T) {
	ge := bodyDecodeError(errors.New("unexpected end of JSON input"))
	if ge.Kind != gwerror.KindInvalidRequest {
		t.Fatalf("expected invalid-request kind, got %s", ge.Kind)
	}
	if ge.Status() != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", ge.Status())
	}
}
