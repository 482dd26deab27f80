package gatewayhttp

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nexusgate/oauth-llm-gateway/internal/config"
	"github.com/nexusgate/oauth-llm-gateway/internal/keystore"
	"github.com/nexusgate/oauth-llm-gateway/internal/store"
)

func newAuthTestState(t *testing.T) *State {
	t.Helper()
	fs, err := store.New(filepath.Join(t.TempDir(), "api_keys.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	keys, err := keystore.New(fs)
	if err != nil {
		t.Fatalf("new keystore: %v", err)
	}
	return &State{Keys: keys, Config: config.Config{}}
}

func TestResolveAPIKeyPrefersBearerOverXAPIKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer sk-bearer")
	r.Header.Set("x-api-key", "sk-header")
	if got := resolveAPIKey(r); got != "sk-bearer" {
		t.Fatalf("expected bearer to win, got %q", got)
	}
}

func TestResolveAPIKeyFallsBackToXAPIKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("x-api-key", "sk-header")
	if got := resolveAPIKey(r); got != "sk-header" {
		t.Fatalf("expected x-api-key fallback, got %q", got)
	}
}

func TestResolveAPIKeyEmptyWhenNeitherPresent(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	if got := resolveAPIKey(r); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestAuthorizeRejectsEmptyKey(t *testing.T) {
	state := newAuthTestState(t)
	res := authorize(state, "")
	if !res.unauthorized || res.allowed {
		t.Fatalf("expected empty key to be unauthorized, got %+v", res)
	}
}

func TestAuthorizeAdminKeyBypassesKeystore(t *testing.T) {
	state := newAuthTestState(t)
	state.Config.Security.APIKey = "sk-admin"
	res := authorize(state, "sk-admin")
	if !res.allowed {
		t.Fatalf("expected admin key to bypass, got %+v", res)
	}
}

func TestAuthorizeUnknownKeyIsUnauthorized(t *testing.T) {
	state := newAuthTestState(t)
	res := authorize(state, "sk-unknown")
	if !res.unauthorized {
		t.Fatalf("expected unknown key to be unauthorized, got %+v", res)
	}
}

func TestAuthorizeValidKeyWithinLimitIsAllowed(t *testing.T) {
	state := newAuthTestState(t)
	key, err := state.Keys.Create("test", nil, "")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	res := authorize(state, key.Key)
	if !res.allowed || res.unauthorized {
		t.Fatalf("expected valid key to be allowed, got %+v", res)
	}
}

func TestAuthorizeRateLimitedKeyIsNotAllowed(t *testing.T) {
	state := newAuthTestState(t)
	policy := keystore.RateLimitPolicy{Enabled: true, MaxRequests: 1, WindowMs: 60_000}
	key, err := state.Keys.Create("test", &policy, "")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	first := authorize(state, key.Key)
	if !first.allowed {
		t.Fatalf("expected first request allowed, got %+v", first)
	}
	second := authorize(state, key.Key)
	if second.allowed || second.unauthorized {
		t.Fatalf("expected second request to be rate limited (not unauthorized), got %+v", second)
	}
	if second.resetInS <= 0 {
		t.Fatalf("expected a positive reset window, got %d", second.resetInS)
	}
}

func TestSetRateLimitHeadersOnlyWhenLimitPositive(t *testing.T) {
	w := httptest.NewRecorder()
	setRateLimitHeaders(w, authResult{})
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Fatal("did not expect rate limit headers when limit is zero")
	}

	w2 := httptest.NewRecorder()
	setRateLimitHeaders(w2, authResult{limit: 100, remaining: 42})
	if w2.Header().Get("X-RateLimit-Limit") != "100" || w2.Header().Get("X-RateLimit-Remaining") != "42" {
		t.Fatalf("unexpected headers: %v", w2.Header())
	}
}
