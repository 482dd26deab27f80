package gatewayhttp

import (
	"net/http"
	"strconv"
	"strings"
)

// resolveAPIKey extracts the caller's API key from Authorization: Bearer
// or x-api-key.
func resolveAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return r.Header.Get("x-api-key")
}

// authResult is the outcome of authorize.
type authResult struct {
	allowed    bool
	unauthorized bool
	limit      int
	remaining  int
	resetInS   int
}

// authorize validates the caller's key and checks its rate limit. A
// configured admin-wide key bypasses the per-key limiter entirely.
func authorize(state *State, apiKey string) authResult {
	if apiKey == "" {
		return authResult{unauthorized: true}
	}
	if state.Config.Security.APIKey != "" && apiKey == state.Config.Security.APIKey {
		return authResult{allowed: true}
	}
	if !state.Keys.Validate(apiKey) {
		return authResult{unauthorized: true}
	}
	res := state.Keys.CheckRateLimit(apiKey)
	if !res.Allowed {
		return authResult{allowed: false, resetInS: res.ResetInS}
	}
	return authResult{allowed: true, limit: res.Limit, remaining: res.Remaining}
}

// setRateLimitHeaders writes the rate-limit headers on every authorized
// response.
func setRateLimitHeaders(w http.ResponseWriter, res authResult) {
	if res.limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
	}
}
