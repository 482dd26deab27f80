package gatewayhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nexusgate/oauth-llm-gateway/internal/adminstore"
	"github.com/nexusgate/oauth-llm-gateway/internal/gwerror"
)

// adminRequestLog builds the best-effort admin mirror entry for one
// gateway request, shared by both dialect handlers.
func adminRequestLog(dialect, model, wireModel, accountEmail string, status int, started time.Time, errMsg string, inputTokens, outputTokens int) adminstore.RequestLog {
	return adminstore.RequestLog{
		Dialect:      dialect,
		Model:        model,
		WireModel:    wireModel,
		AccountEmail: accountEmail,
		Status:       status,
		DurationMs:   time.Since(started).Milliseconds(),
		Error:        errMsg,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}
}

// writeOpenAIError answers a pre-stream OpenAI-shaped JSON error.
func writeOpenAIError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}

// writeOpenAIRateLimited answers HTTP 429 with a reset-in-seconds hint.
func writeOpenAIRateLimited(w http.ResponseWriter, resetInS int) {
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetInS))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":          "rate limit exceeded",
			"type":             "rate_limit_exceeded",
			"reset_in_seconds": resetInS,
		},
	})
}

// writeClaudeError answers a pre-stream Anthropic-shaped JSON error.
func writeClaudeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":    "api_error",
			"message": message,
		},
	})
}

func writeClaudeRateLimited(w http.ResponseWriter, resetInS int) {
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetInS))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"type": "error",
		"error": map[string]interface{}{
			"type":             "rate_limit_error",
			"message":          "rate limit exceeded",
			"reset_in_seconds": resetInS,
		},
	})
}

// statusForGatewayError maps a taxonomy error to its wire status, falling
// back to 500 for anything not carrying one.
func statusForGatewayError(err error) int {
	if ge, ok := gwerror.As(err); ok {
		return ge.Status()
	}
	return http.StatusInternalServerError
}

// bodyDecodeError classifies a json.Decode failure against maxBodySize's
// http.MaxBytesReader, distinguishing an oversized body from malformed
// JSON so the caller can answer 413 rather than 400.
func bodyDecodeError(err error) *gwerror.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return gwerror.Wrap(gwerror.KindEntityTooLarge, "request body exceeds the configured size limit", err)
	}
	return gwerror.Wrap(gwerror.KindInvalidRequest, "invalid JSON body", err)
}
