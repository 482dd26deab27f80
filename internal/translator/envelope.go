package translator

import "github.com/google/uuid"

// BuildEnvelope assembles the full Upstream request body.
// configInstruction is the settings-resolved base system prompt;
// anthropicSystemText is appended (with a leading newline) only when
// translating an Anthropic request. The Anthropic system string is
// *also* prepended as a conversation message by AnthropicToUpstream;
// that duplication is intentional and is not deduplicated here.
func BuildEnvelope(project, sessionID, wireModel, configInstruction, anthropicSystemText, userAgent string, contents []UpstreamMessage, tools []UpstreamTool, genConfig *GenerationConfig) UpstreamEnvelope {
	systemText := configInstruction
	if anthropicSystemText != "" {
		systemText = systemText + "\n" + anthropicSystemText
	}

	payload := UpstreamRequestPayload{
		Contents: contents,
		SystemInstruction: &UpstreamMessage{
			Role:  "user",
			Parts: []UpstreamPart{{Text: systemText}},
		},
		GenerationConfig: genConfig,
		SessionID:        sessionID,
	}
	if len(tools) > 0 {
		payload.Tools = tools
		payload.ToolConfig = &UpstreamToolConfig{}
		payload.ToolConfig.FunctionCallingConfig.Mode = "VALIDATED"
	}

	return UpstreamEnvelope{
		Project:   project,
		RequestID: "agent-" + uuid.New().String(),
		Request:   payload,
		Model:     wireModel,
		UserAgent: userAgent,
	}
}
