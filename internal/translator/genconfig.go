package translator

import "github.com/nexusgate/oauth-llm-gateway/internal/modelcatalog"

// GenerationDefaults are the settings-resolved fallback values for
// generation parameters the client did not supply.
type GenerationDefaults struct {
	Temperature     float64
	TopP            float64
	TopK            float64
	MaxOutputTokens int
}

// internalStopSequences are the fixed sentinel tokens every request's
// stopSequences is pinned to.
var internalStopSequences = []string{"<|gateway_stop|>", "<|gateway_end_turn|>"}

// GenerationParams collects the client-supplied generation knobs that may
// be nil (unset).
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	TopK        *float64
	MaxTokens   *int
}

// DeriveGenerationConfig builds the Upstream generationConfig block and
// the wire model name to send.
func DeriveGenerationConfig(model string, params GenerationParams, defaults GenerationDefaults, catalog *modelcatalog.Catalog) (*GenerationConfig, string) {
	temp := defaults.Temperature
	if params.Temperature != nil {
		temp = *params.Temperature
	}
	topP := defaults.TopP
	if params.TopP != nil {
		topP = *params.TopP
	}
	topK := defaults.TopK
	if params.TopK != nil {
		topK = *params.TopK
	}
	maxTokens := defaults.MaxOutputTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}

	cfg := &GenerationConfig{
		Temperature:     floatPtr(temp),
		TopP:            floatPtr(topP),
		TopK:            floatPtr(topK),
		MaxOutputTokens: intPtr(maxTokens),
		CandidateCount:  1,
		StopSequences:   append([]string(nil), internalStopSequences...),
	}

	isThinking := catalog.IsThinkingModel(model)
	if isThinking {
		cfg.ThinkingConfig = &ThinkingConfig{IncludeThoughts: true, ThinkingBudget: 1024}
		if catalog.IsClaudeFamily(model) {
			cfg.TopP = nil
		}
	}

	wireModel := catalog.StripThinkingSuffix(model)
	return cfg, wireModel
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }
