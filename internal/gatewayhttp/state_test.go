package gatewayhttp

import (
	"testing"

	"github.com/nexusgate/oauth-llm-gateway/internal/config"
)

func TestNewDefaultCountTokensApproximatesByLength(t *testing.T) {
	count := NewDefaultCountTokens()
	if got := count(""); got != 0 {
		t.Fatalf("expected 0 for empty text, got %d", got)
	}
	if got := count("hi"); got != 1 {
		t.Fatalf("expected a short string to round up to 1, got %d", got)
	}
	if got := count("this string has 24 chars"); got != 6 {
		t.Fatalf("expected len/4, got %d", got)
	}
}

func TestGenerationDefaultsReadsFromConfig(t *testing.T) {
	state := &State{Config: config.Config{Defaults: config.DefaultsConfig{
		Temperature: 0.7, TopP: 0.9, TopK: 20, MaxTokens: 512,
	}}}
	defaults := state.GenerationDefaults()
	if defaults.Temperature != 0.7 || defaults.TopP != 0.9 || defaults.TopK != 20 || defaults.MaxOutputTokens != 512 {
		t.Fatalf("unexpected defaults: %+v", defaults)
	}
}
