package translator

import (
	"encoding/json"
	"fmt"
)

// AnthropicMessage is one entry of the Messages API's `messages` array.
// Unlike OpenAIMessage, Anthropic content blocks are decoded through a
// dedicated block-shape decoder rather than Content's OpenAI-flavored
// UnmarshalJSON, since Anthropic's block vocabulary (tool_use,
// tool_result, thinking, image with a `source` object) differs from
// OpenAI's.
type AnthropicMessage struct {
	Role    string
	Content Content
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlockRaw struct {
	Type      string           `json:"type"`
	Text      string           `json:"text,omitempty"`
	Source    *anthropicSource `json:"source,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Input     json.RawMessage  `json:"input,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	Content   json.RawMessage  `json:"content,omitempty"`
	Thinking  string           `json:"thinking,omitempty"`
}

func (m *AnthropicMessage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("translator: decode anthropic message: %w", err)
	}
	m.Role = raw.Role
	content, err := decodeAnthropicContent(raw.Content)
	if err != nil {
		return err
	}
	m.Content = content
	return nil
}

// decodeAnthropicContent accepts either a bare string or an array of
// Anthropic content blocks.
func decodeAnthropicContent(data json.RawMessage) (Content, error) {
	trimmed := bytesTrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return Content{Kind: ContentKindText}, nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return Content{}, fmt.Errorf("translator: decode anthropic string content: %w", err)
		}
		return Content{Kind: ContentKindText, Text: s}, nil
	}

	var blocks []anthropicBlockRaw
	if err := json.Unmarshal(data, &blocks); err != nil {
		return Content{}, fmt.Errorf("translator: decode anthropic content blocks: %w", err)
	}

	parts := make([]Part, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, Part{Kind: PartKindText, Text: b.Text})
		case "thinking":
			parts = append(parts, Part{Kind: PartKindThinking, Text: b.Thinking})
		case "image":
			mediaType := "image/png"
			data := ""
			if b.Source != nil {
				if b.Source.MediaType != "" {
					mediaType = b.Source.MediaType
				}
				data = b.Source.Data
			}
			parts = append(parts, Part{Kind: PartKindImage, ImageMimeType: mediaType, ImageData: data})
		case "tool_use":
			parts = append(parts, Part{Kind: PartKindToolUse, ToolUseID: b.ID, ToolUseName: b.Name, ToolUseInput: b.Input})
		case "tool_result":
			parts = append(parts, Part{
				Kind:              PartKindToolResult,
				ToolResultID:      b.ToolUseID,
				ToolResultContent: textifyToolResultContent(b.Content),
			})
		}
	}
	return Content{Kind: ContentKindParts, Parts: parts}, nil
}

// textifyToolResultContent flattens a tool_result's `content` field
// (either a bare string or an array of content blocks) down to text.
func textifyToolResultContent(raw json.RawMessage) string {
	trimmed := bytesTrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}
	var blocks []anthropicBlockRaw
	if json.Unmarshal(raw, &blocks) != nil {
		return ""
	}
	var out string
	for _, b := range blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// AnthropicTool is one entry of the Messages API's `tools` array.
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// AnthropicRequest is the decoded body of POST /anthropic/v1/messages.
type AnthropicRequest struct {
	Model         string             `json:"model"`
	Messages      []AnthropicMessage `json:"messages"`
	System        string             `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Stream        *bool              `json:"stream,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *float64           `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Tools         []AnthropicTool    `json:"tools,omitempty"`
}

// decodeInputAsValue turns a tool_use block's raw `input` back into a Go
// value, so functionCall.args.query carries the same JSON value for
// object/array inputs as well as strings. The value is re-encoded when the
// request is sent, so the input's original key order and whitespace are
// not kept. Input that is not valid JSON is passed on as its raw text.
func decodeInputAsValue(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// AnthropicToUpstream converts an Anthropic system string plus messages
// array into Upstream conversation history.
func AnthropicToUpstream(system string, messages []AnthropicMessage) []UpstreamMessage {
	var out []UpstreamMessage

	if system != "" {
		out = append(out, UpstreamMessage{Role: "user", Parts: []UpstreamPart{{Text: system}}})
	}

	for _, m := range messages {
		switch m.Role {
		case "assistant":
			var parts []UpstreamPart
			for _, p := range m.Content.Parts {
				switch p.Kind {
				case PartKindText:
					parts = append(parts, UpstreamPart{Text: p.Text})
				case PartKindThinking:
					parts = append(parts, UpstreamPart{Text: p.Text, Thought: true})
				case PartKindToolUse:
					parts = append(parts, UpstreamPart{
						FunctionCall: &UpstreamFunctionCall{
							ID:   p.ToolUseID,
							Name: p.ToolUseName,
							Args: map[string]interface{}{"query": decodeInputAsValue(p.ToolUseInput)},
						},
					})
				case PartKindImage:
					parts = append(parts, UpstreamPart{InlineData: &UpstreamInlineData{MimeType: p.ImageMimeType, Data: p.ImageData}})
				}
			}
			if m.Content.Kind == ContentKindText && m.Content.Text != "" {
				parts = append(parts, UpstreamPart{Text: m.Content.Text})
			}
			out = append(out, UpstreamMessage{Role: "model", Parts: parts})

		case "user":
			var parts []UpstreamPart
			for _, p := range m.Content.Parts {
				switch p.Kind {
				case PartKindText:
					parts = append(parts, UpstreamPart{Text: p.Text})
				case PartKindImage:
					parts = append(parts, UpstreamPart{InlineData: &UpstreamInlineData{MimeType: p.ImageMimeType, Data: p.ImageData}})
				case PartKindToolResult:
					name := resolveFunctionName(out, p.ToolResultID)
					parts = append(parts, UpstreamPart{
						FunctionResponse: &UpstreamFuncResponse{
							ID:       p.ToolResultID,
							Name:     name,
							Response: map[string]interface{}{"output": p.ToolResultContent},
						},
					})
				}
			}
			if m.Content.Kind == ContentKindText && m.Content.Text != "" {
				parts = append(parts, UpstreamPart{Text: m.Content.Text})
			}
			out = append(out, UpstreamMessage{Role: "user", Parts: parts})
		}
	}

	return out
}
