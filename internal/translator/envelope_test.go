package translator

import "testing"

func TestBuildEnvelopeWithoutToolsOmitsToolConfig(t *testing.T) {
	env := BuildEnvelope("proj-1", "sess-1", "gemini-2.5-pro", "be helpful", "", "gateway/1.0", nil, nil, nil)
	if env.Request.Tools != nil || env.Request.ToolConfig != nil {
		t.Fatalf("expected no tools/toolConfig when none supplied, got %+v", env.Request)
	}
	if env.Request.SystemInstruction.Parts[0].Text != "be helpful" {
		t.Fatalf("unexpected system instruction: %+v", env.Request.SystemInstruction)
	}
	if env.RequestID == "" || env.Model != "gemini-2.5-pro" {
		t.Fatalf("unexpected envelope shape: %+v", env)
	}
}

func TestBuildEnvelopeAppendsAnthropicSystemTextWithoutDeduping(t *testing.T) {
	env := BuildEnvelope("proj-1", "sess-1", "claude-opus-4", "base instruction", "anthropic system", "gateway/1.0", nil, nil, nil)
	want := "base instruction\nanthropic system"
	if env.Request.SystemInstruction.Parts[0].Text != want {
		t.Fatalf("expected concatenated system text %q, got %q", want, env.Request.SystemInstruction.Parts[0].Text)
	}
}

func TestBuildEnvelopeWithToolsSetsValidatedMode(t *testing.T) {
	tools := []UpstreamTool{{FunctionDeclarations: []UpstreamFunctionDeclaration{{Name: "search"}}}}
	env := BuildEnvelope("proj-1", "sess-1", "gemini-2.5-pro", "instr", "", "gateway/1.0", nil, tools, nil)
	if env.Request.ToolConfig == nil || env.Request.ToolConfig.FunctionCallingConfig.Mode != "VALIDATED" {
		t.Fatalf("expected VALIDATED tool calling mode, got %+v", env.Request.ToolConfig)
	}
}

func TestBuildEnvelopeRequestIDHasAgentPrefix(t *testing.T) {
	env := BuildEnvelope("proj-1", "sess-1", "gemini-2.5-pro", "instr", "", "gateway/1.0", nil, nil, nil)
	if len(env.RequestID) < len("agent-") || env.RequestID[:len("agent-")] != "agent-" {
		t.Fatalf("expected agent- prefixed request id, got %q", env.RequestID)
	}
}
