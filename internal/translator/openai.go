package translator

import (
	"encoding/json"
	"regexp"
)

// OpenAIToolCall is one entry of an assistant message's tool_calls array.
type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

// OpenAIFunctionCall carries the tool name and its raw JSON-string
// arguments, exactly as OpenAI's wire format encodes them.
type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAIMessage is one entry of the Chat Completions `messages` array.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    Content          `json:"content"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

// OpenAIFunctionDef is one `function`-typed tool definition.
type OpenAIFunctionDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// OpenAITool is one entry of the `tools` array.
type OpenAITool struct {
	Type     string             `json:"type"`
	Function *OpenAIFunctionDef `json:"function,omitempty"`
}

// OpenAIRequest is the decoded body of POST /v1/chat/completions.
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	Stream      *bool           `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	TopK        *float64        `json:"top_k,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Tools       []OpenAITool    `json:"tools,omitempty"`
}

var thoughtSignaturePattern = regexp.MustCompile(`<!--\s*thought_signature:\s*(.*?)\s*-->`)

// stripThoughtSignature removes the sentinel comment from text and
// returns the cleaned text plus the lifted signature.
func stripThoughtSignature(text string) (cleaned, signature string) {
	loc := thoughtSignaturePattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, ""
	}
	signature = text[loc[2]:loc[3]]
	cleaned = text[:loc[0]] + text[loc[1]:]
	return cleaned, signature
}

// contentIsEmpty reports whether content carries no text and no parts,
// used by the OpenAI→Upstream tool-call merge rule.
func contentIsEmpty(c Content) bool {
	if c.Kind == ContentKindText {
		return c.Text == ""
	}
	return len(c.Parts) == 0
}

// contentToUpstreamParts converts one message's Content into Upstream
// parts. When liftThoughtSignature is true (assistant messages only),
// each text part is scanned for the thought_signature sentinel.
func contentToUpstreamParts(c Content, liftThoughtSignature bool) []UpstreamPart {
	var texts []string
	var images []Part
	if c.Kind == ContentKindText {
		if c.Text != "" {
			texts = append(texts, c.Text)
		}
	} else {
		for _, p := range c.Parts {
			switch p.Kind {
			case PartKindText:
				texts = append(texts, p.Text)
			case PartKindImage:
				images = append(images, p)
			}
		}
	}

	var parts []UpstreamPart
	for _, t := range texts {
		signature := ""
		if liftThoughtSignature {
			t, signature = stripThoughtSignature(t)
		}
		parts = append(parts, UpstreamPart{Text: t, ThoughtSignature: signature})
	}
	for _, img := range images {
		parts = append(parts, UpstreamPart{InlineData: &UpstreamInlineData{MimeType: img.ImageMimeType, Data: img.ImageData}})
	}
	return parts
}

// messageHasFunctionResponse reports whether msg already carries at least
// one functionResponse part.
func messageHasFunctionResponse(msg UpstreamMessage) bool {
	for _, p := range msg.Parts {
		if p.FunctionResponse != nil {
			return true
		}
	}
	return false
}

// resolveFunctionName walks backward through built Upstream messages to
// find the functionCall matching toolCallID.
func resolveFunctionName(built []UpstreamMessage, toolCallID string) string {
	for i := len(built) - 1; i >= 0; i-- {
		for j := len(built[i].Parts) - 1; j >= 0; j-- {
			fc := built[i].Parts[j].FunctionCall
			if fc != nil && fc.ID == toolCallID {
				return fc.Name
			}
		}
	}
	return ""
}

// OpenAIToUpstream converts an OpenAI messages array into Upstream
// conversation history.
func OpenAIToUpstream(messages []OpenAIMessage) []UpstreamMessage {
	var out []UpstreamMessage

	for _, m := range messages {
		switch m.Role {
		case "system", "user":
			out = append(out, UpstreamMessage{Role: "user", Parts: contentToUpstreamParts(m.Content, false)})

		case "assistant":
			textParts := contentToUpstreamParts(m.Content, true)

			var toolParts []UpstreamPart
			for _, tc := range m.ToolCalls {
				toolParts = append(toolParts, UpstreamPart{
					FunctionCall: &UpstreamFunctionCall{
						ID:   tc.ID,
						Name: tc.Function.Name,
						// Tool-call arguments are kept as the raw stringified
						// JSON in args.query rather than parsed into an
						// object, matching how the client actually sent it.
						Args: map[string]interface{}{"query": tc.Function.Arguments},
					},
				})
			}

			if len(toolParts) > 0 && contentIsEmpty(m.Content) && len(out) > 0 && out[len(out)-1].Role == "model" {
				out[len(out)-1].Parts = append(out[len(out)-1].Parts, toolParts...)
				continue
			}

			allParts := append(textParts, toolParts...)
			out = append(out, UpstreamMessage{Role: "model", Parts: allParts})

		case "tool":
			name := resolveFunctionName(out, m.ToolCallID)
			respPart := UpstreamPart{
				FunctionResponse: &UpstreamFuncResponse{
					ID:       m.ToolCallID,
					Name:     name,
					Response: map[string]interface{}{"output": m.Content.AsText()},
				},
			}
			if len(out) > 0 && out[len(out)-1].Role == "user" && messageHasFunctionResponse(out[len(out)-1]) {
				out[len(out)-1].Parts = append(out[len(out)-1].Parts, respPart)
			} else {
				out = append(out, UpstreamMessage{Role: "user", Parts: []UpstreamPart{respPart}})
			}
		}
	}

	return out
}

// OpenAIUsage mirrors the Chat Completions usage block.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OpenAIToolCallDelta is one entry of a streaming delta's tool_calls
// array (index-addressed, per OpenAI's incremental tool-call framing).
type OpenAIToolCallDelta struct {
	Index    int                `json:"index"`
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function OpenAIFunctionCall `json:"function"`
}

// MarshalToolCallArguments renders a tool call's args back to a JSON
// string for the client, from the accumulated map form.
func MarshalToolCallArguments(args map[string]interface{}) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
