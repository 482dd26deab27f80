package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStreamSucceedsOnFirstEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: {}\n\n"))
	}))
	defer srv.Close()

	c := New(Config{BaseURLs: []string{srv.URL + "/v1internal"}, UserAgent: "test-agent"})
	resp, err := c.Stream("tok", map[string]string{"a": "b"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestStreamFallsBackOnRetriableStatus(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fallback.Close()

	c := New(Config{BaseURLs: []string{primary.URL + "/v1internal", fallback.URL + "/v1internal"}, UserAgent: "test-agent"})
	resp, err := c.Stream("tok", map[string]string{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected fallback endpoint to succeed, got %d", resp.StatusCode)
	}
}

func TestStreamReturnsNonRetriableStatusImmediately(t *testing.T) {
	called := false
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer fallback.Close()

	c := New(Config{BaseURLs: []string{primary.URL + "/v1internal", fallback.URL + "/v1internal"}, UserAgent: "test-agent"})
	resp, err := c.Stream("tok", map[string]string{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected non-retriable 400 to be returned as-is, got %d", resp.StatusCode)
	}
	if called {
		t.Fatal("did not expect the fallback endpoint to be tried for a non-retriable status")
	}
}

func TestStreamReturnsForbiddenImmediatelyWithoutFallback(t *testing.T) {
	called := false
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer fallback.Close()

	c := New(Config{BaseURLs: []string{primary.URL + "/v1internal", fallback.URL + "/v1internal"}, UserAgent: "test-agent"})
	resp, err := c.Stream("tok", map[string]string{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 to be returned as-is, got %d", resp.StatusCode)
	}
	if called {
		t.Fatal("403 is a per-credential signal and must not trigger endpoint fallback")
	}
}

func TestStreamExhaustsEndpointsAndReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURLs: []string{srv.URL + "/v1internal"}, UserAgent: "test-agent"})
	resp, err := c.Stream("tok", map[string]string{})
	if resp != nil {
		t.Fatalf("expected nil response once all endpoints are exhausted, got %+v", resp)
	}
	if err == nil {
		t.Fatal("expected an error once all endpoints are exhausted")
	}
	if _, ok := err.(*StatusError); !ok {
		t.Fatalf("expected a *StatusError, got %T: %v", err, err)
	}
}

func TestFetchModelsUsesFirstBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURLs: []string{srv.URL + "/v1internal"}, UserAgent: "test-agent"})
	resp, err := c.FetchModels("tok")
	if err != nil {
		t.Fatalf("fetch models: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"models":[]}` {
		t.Fatalf("unexpected body: %s", body)
	}
}
