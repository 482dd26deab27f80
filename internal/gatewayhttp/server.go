package gatewayhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the gateway's client-facing HTTP surface. Admin
// routes are mounted separately and are not wired in here.
func NewRouter(state *State) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(maxBodySize(state))

	r.Get("/healthz", HealthzHandler(state))

	r.Post("/v1/chat/completions", ChatCompletionsHandler(state))
	r.Get("/v1/models", ModelsHandler(state))
	r.Post("/v1/chat/completions/count_tokens", OpenAICountTokensHandler(state))

	r.Post("/anthropic/v1/messages", MessagesHandler(state))
	r.Post("/anthropic/v1/messages/count_tokens", AnthropicCountTokensHandler(state))

	return r
}

// maxBodySize enforces security.maxRequestSize, answering
// entity-too-large when exceeded.
func maxBodySize(state *State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if state.Config.Security.MaxRequestSize > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, state.Config.Security.MaxRequestSize)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HealthzHandler is a trivial liveness probe: process up and the pool has
// at least one enabled credential.
func HealthzHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabled := state.Pool.EnabledCount()
		status := http.StatusOK
		if enabled == 0 {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":            "ok",
			"enabled_credentials": enabled,
		})
	}
}
