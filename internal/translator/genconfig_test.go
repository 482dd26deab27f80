package translator

import (
	"testing"

	"github.com/nexusgate/oauth-llm-gateway/internal/modelcatalog"
)

func testCatalog(t *testing.T) *modelcatalog.Catalog {
	t.Helper()
	c, err := modelcatalog.Load("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func TestDeriveGenerationConfigUsesDefaultsWhenUnset(t *testing.T) {
	catalog := testCatalog(t)
	defaults := GenerationDefaults{Temperature: 1.0, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192}

	cfg, wireModel := DeriveGenerationConfig("gemini-2.5-pro", GenerationParams{}, defaults, catalog)
	if wireModel != "gemini-2.5-pro" {
		t.Fatalf("unexpected wire model: %q", wireModel)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 1.0 {
		t.Fatalf("expected default temperature to apply, got %+v", cfg.Temperature)
	}
	if cfg.ThinkingConfig != nil {
		t.Fatal("did not expect thinking config for a non-thinking model")
	}
}

func TestDeriveGenerationConfigClientOverridesWin(t *testing.T) {
	catalog := testCatalog(t)
	defaults := GenerationDefaults{Temperature: 1.0, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192}
	temp := 0.1
	maxTokens := 256

	cfg, _ := DeriveGenerationConfig("gemini-2.5-pro", GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}, defaults, catalog)
	if *cfg.Temperature != 0.1 {
		t.Fatalf("expected client temperature override, got %v", *cfg.Temperature)
	}
	if *cfg.MaxOutputTokens != 256 {
		t.Fatalf("expected client max tokens override, got %v", *cfg.MaxOutputTokens)
	}
}

func TestDeriveGenerationConfigThinkingModelGetsThinkingConfig(t *testing.T) {
	catalog := testCatalog(t)
	defaults := GenerationDefaults{Temperature: 1.0, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192}

	cfg, wireModel := DeriveGenerationConfig("gemini-2.5-pro-thinking", GenerationParams{}, defaults, catalog)
	if wireModel != "gemini-2.5-pro" {
		t.Fatalf("expected -thinking suffix stripped from wire model, got %q", wireModel)
	}
	if cfg.ThinkingConfig == nil || !cfg.ThinkingConfig.IncludeThoughts {
		t.Fatal("expected thinking config to be populated")
	}
}

func TestDeriveGenerationConfigClaudeThinkingDropsTopP(t *testing.T) {
	catalog := testCatalog(t)
	defaults := GenerationDefaults{Temperature: 1.0, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192}

	cfg, _ := DeriveGenerationConfig("claude-opus-4-thinking", GenerationParams{}, defaults, catalog)
	if cfg.TopP != nil {
		t.Fatalf("expected topP dropped for claude thinking models, got %v", *cfg.TopP)
	}
}

func TestDeriveGenerationConfigPreservesThinkingSuffixException(t *testing.T) {
	catalog := testCatalog(t)
	defaults := GenerationDefaults{Temperature: 1.0, TopP: 0.95, TopK: 40, MaxOutputTokens: 8192}

	_, wireModel := DeriveGenerationConfig("gemini-3-pro-preview-thinking", GenerationParams{}, defaults, catalog)
	if wireModel != "gemini-3-pro-preview-thinking" {
		t.Fatalf("expected exception model to survive stripping, got %q", wireModel)
	}
}

func TestDeriveGenerationConfigAlwaysPinsInternalStopSequences(t *testing.T) {
	catalog := testCatalog(t)
	defaults := GenerationDefaults{}
	cfg, _ := DeriveGenerationConfig("gemini-2.5-pro", GenerationParams{}, defaults, catalog)
	if len(cfg.StopSequences) != len(internalStopSequences) {
		t.Fatalf("expected internal stop sequences to be pinned, got %v", cfg.StopSequences)
	}
	if cfg.CandidateCount != 1 {
		t.Fatalf("expected candidateCount 1, got %d", cfg.CandidateCount)
	}
}
