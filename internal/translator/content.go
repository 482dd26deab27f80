// Package translator implements the three-way schema conversion between
// the OpenAI Chat Completions dialect, the Anthropic Messages dialect, and
// the Upstream wire dialect (a Gemini-shaped hub format). Dynamic
// `content` shapes are modeled as an exhaustive tagged union instead of
// ad-hoc type-switch chains on `map[string]interface{}`.
package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PartKind tags the variant held by a Part.
type PartKind int

const (
	PartKindText PartKind = iota
	PartKindImage
	PartKindToolUse
	PartKindToolResult
	PartKindThinking
)

// Part is an exhaustive tagged union over one block of message content.
// Exactly the fields matching Kind are meaningful; callers must switch on
// Kind rather than probing fields.
type Part struct {
	Kind PartKind

	Text string // PartKindText, PartKindThinking

	ImageMimeType string // PartKindImage
	ImageData     string // PartKindImage, base64-encoded

	ToolUseID    string          // PartKindToolUse
	ToolUseName  string          // PartKindToolUse
	ToolUseInput json.RawMessage // PartKindToolUse

	ToolResultID      string // PartKindToolResult: tool_use_id being answered
	ToolResultContent string // PartKindToolResult: textified output
}

// ContentKind tags the variant held by a Content.
type ContentKind int

const (
	ContentKindText ContentKind = iota
	ContentKindParts
)

// Content is the tagged union `Text(string) | Parts(Vec<Part>)` that both
// OpenAI and Anthropic message bodies collapse onto.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []Part
}

// AsText returns the content flattened to a single string: the text
// itself if Kind is ContentKindText, or the concatenation of every text
// part's Text if Kind is ContentKindParts (non-text parts contribute
// nothing).
func (c Content) AsText() string {
	if c.Kind == ContentKindText {
		return c.Text
	}
	var buf bytes.Buffer
	for _, p := range c.Parts {
		if p.Kind == PartKindText {
			buf.WriteString(p.Text)
		}
	}
	return buf.String()
}

// UnmarshalJSON accepts either a bare JSON string or an array of OpenAI
// content-part objects (`{"type":"text","text":...}`,
// `{"type":"image_url","image_url":{"url":...}}`).
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytesTrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*c = Content{Kind: ContentKindText}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("translator: decode string content: %w", err)
		}
		*c = Content{Kind: ContentKindText, Text: s}
		return nil
	}

	var raw []openAIContentPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("translator: decode content parts: %w", err)
	}
	parts := make([]Part, 0, len(raw))
	for _, p := range raw {
		part, ok := p.toPart()
		if ok {
			parts = append(parts, part)
		}
	}
	*c = Content{Kind: ContentKindParts, Parts: parts}
	return nil
}

// MarshalJSON round-trips Content back to the OpenAI-shaped wire form: a
// bare string for ContentKindText, an array of typed parts otherwise.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.Kind == ContentKindText {
		return json.Marshal(c.Text)
	}
	raw := make([]openAIContentPart, 0, len(c.Parts))
	for _, p := range c.Parts {
		raw = append(raw, fromPart(p))
	}
	return json.Marshal(raw)
}

// openAIContentPart is the wire shape of one OpenAI content-array entry.
type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

func (p openAIContentPart) toPart() (Part, bool) {
	switch p.Type {
	case "text":
		return Part{Kind: PartKindText, Text: p.Text}, true
	case "image_url":
		if p.ImageURL == nil {
			return Part{}, false
		}
		mime, data, ok := parseDataURL(p.ImageURL.URL)
		if !ok {
			return Part{}, false
		}
		return Part{Kind: PartKindImage, ImageMimeType: mime, ImageData: data}, true
	default:
		return Part{}, false
	}
}

func fromPart(p Part) openAIContentPart {
	switch p.Kind {
	case PartKindImage:
		return openAIContentPart{
			Type: "image_url",
			ImageURL: &struct {
				URL string `json:"url"`
			}{URL: fmt.Sprintf("data:%s;base64,%s", p.ImageMimeType, p.ImageData)},
		}
	default:
		return openAIContentPart{Type: "text", Text: p.Text}
	}
}

// parseDataURL parses `data:image/<fmt>;base64,<data>`.
func parseDataURL(url string) (mime, data string, ok bool) {
	const prefix = "data:"
	if len(url) <= len(prefix) || url[:len(prefix)] != prefix {
		return "", "", false
	}
	rest := url[len(prefix):]
	semi := indexByte(rest, ';')
	comma := indexByte(rest, ',')
	if semi < 0 || comma < 0 || comma < semi {
		return "", "", false
	}
	mime = rest[:semi]
	encoding := rest[semi+1 : comma]
	if encoding != "base64" {
		return "", "", false
	}
	return mime, rest[comma+1:], true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
