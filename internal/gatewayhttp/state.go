// Package gatewayhttp wires the credential pool, key store, identity
// cache, translator and upstream client into the two client-facing HTTP
// handlers, reframing normalized stream events as OpenAI or Anthropic
// SSE. Request bodies are decoded into typed structs throughout rather
// than loose map[string]interface{}.
package gatewayhttp

import (
	"github.com/nexusgate/oauth-llm-gateway/internal/adminstore"
	"github.com/nexusgate/oauth-llm-gateway/internal/applog"
	"github.com/nexusgate/oauth-llm-gateway/internal/config"
	"github.com/nexusgate/oauth-llm-gateway/internal/identity"
	"github.com/nexusgate/oauth-llm-gateway/internal/keystore"
	"github.com/nexusgate/oauth-llm-gateway/internal/modelcatalog"
	"github.com/nexusgate/oauth-llm-gateway/internal/pool"
	"github.com/nexusgate/oauth-llm-gateway/internal/translator"
	"github.com/nexusgate/oauth-llm-gateway/internal/upstream"
)

// State is the single struct the main process owns and passes by
// reference to every handler; nothing relies on module-level singletons.
type State struct {
	Pool     *pool.Pool
	Keys     *keystore.Store
	Identity *identity.Cache
	Catalog  *modelcatalog.Catalog
	Upstream *upstream.Client
	Logs     *applog.Buffer
	Config   config.Config

	// Admin is the out-of-core observability mirror. A nil Admin is
	// valid: every Store method is a safe no-op on a nil receiver, so
	// the gateway runs fine without the sqlite file wired up.
	Admin *adminstore.Store

	// CountTokens is an opaque, pluggable token-count estimator; a simple
	// length-based default is supplied by NewDefaultCountTokens so the
	// gateway is runnable standalone.
	CountTokens func(text string) int
}

// NewDefaultCountTokens returns a length-based approximation
// (`len(text)/4`) rather than inventing a real tokenizer, since token
// counting is explicitly out of core scope.
func NewDefaultCountTokens() func(string) int {
	return func(text string) int {
		if len(text) == 0 {
			return 0
		}
		n := len(text) / 4
		if n == 0 {
			n = 1
		}
		return n
	}
}

// GenerationDefaults reads the resolved defaults out of state's config.
func (s *State) GenerationDefaults() translator.GenerationDefaults {
	return translator.GenerationDefaults{
		Temperature:     s.Config.Defaults.Temperature,
		TopP:            s.Config.Defaults.TopP,
		TopK:            s.Config.Defaults.TopK,
		MaxOutputTokens: s.Config.Defaults.MaxTokens,
	}
}
