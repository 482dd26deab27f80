// Package upstream drives HTTP communication with the proprietary
// streaming-generation backend and incrementally parses its chunked SSE
// body into normalized events. Non-streaming callers collect the
// dispatched NormalizedStreamEvents themselves (see stream.go) rather
// than relying on a separate merge path.
package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Config carries the operator-configured Upstream endpoints and identity;
// no network host is hard-coded.
type Config struct {
	BaseURLs  []string
	UserAgent string
}

// Client performs the single HTTP POST to Upstream's streaming endpoint.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New returns a Client with a long timeout suited to a streaming
// response body.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		cfg:        cfg,
	}
}

// StatusError is returned by Stream when no endpoint succeeded and the
// last one tried answered with a retriable status (429 or 5xx).
// Non-retriable statuses are returned as the response itself.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d: %s", e.Status, e.Body)
}

// Stream performs a single HTTP POST to Upstream's streaming endpoint
// with bearer auth, trying each configured base URL in turn and retrying
// on 429/5xx before giving up. 403 is a per-credential signal, not a
// per-endpoint one, so it is returned to the caller untouched instead of
// being folded into the endpoint-fallback loop.
func (c *Client) Stream(accessToken string, envelope interface{}) (*http.Response, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal envelope: %w", err)
	}

	var lastResp *http.Response
	var lastErr error

	for i, base := range c.cfg.BaseURLs {
		req, err := http.NewRequest(http.MethodPost, base+":streamGenerateContent?alt=sse", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("upstream: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("⚠️ upstream: endpoint %d (%s) failed: %v", i+1, base, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			if i > 0 {
				log.Printf("✅ upstream: fallback to endpoint %d succeeded", i+1)
			}
			return resp, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			log.Printf("⚠️ upstream: endpoint %d returned %d, trying next", i+1, resp.StatusCode)
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			resp.Body.Close()
			lastResp = nil
			lastErr = &StatusError{Status: resp.StatusCode, Body: string(data)}
			continue
		}

		// non-retriable 4xx: caller needs the exact status (especially 403)
		return resp, nil
	}

	if lastResp != nil {
		return lastResp, nil
	}
	return nil, lastErr
}

// FetchModels retrieves the raw models listing from the primary base URL.
func (c *Client) FetchModels(accessToken string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURLs[0]+":fetchAvailableModels", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("upstream: build models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	return c.httpClient.Do(req)
}
