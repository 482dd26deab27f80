package upstream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EventKind tags the variant carried by a NormalizedStreamEvent.
type EventKind int

const (
	EventText EventKind = iota
	EventThinking
	EventImage
	EventToolCall
)

// ThinkingPhase marks where in a thinking run an EventThinking event
// falls.
type ThinkingPhase int

const (
	ThinkingStart ThinkingPhase = iota
	ThinkingMid
	ThinkingEnd
)

// ToolCall is one accumulated function call, ready to hand to a client.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// NormalizedStreamEvent is the tagged union the dispatcher emits to sink.
type NormalizedStreamEvent struct {
	Kind EventKind

	// EventText
	TextDelta        string
	ThoughtSignature string

	// EventThinking
	ThinkingDelta string
	Phase         ThinkingPhase

	// EventImage
	ImageMime string
	ImageData string

	// EventToolCall
	ToolCalls []ToolCall
}

// Sink receives normalized events in strict source order.
type Sink func(NormalizedStreamEvent)

// upstreamPart mirrors one part of an Upstream SSE chunk's
// candidates[0].content.parts entry.
type upstreamPart struct {
	Text             string          `json:"text"`
	Thought          bool            `json:"thought"`
	ThoughtSignature string          `json:"thoughtSignature"`
	InlineData       *upstreamInline `json:"inlineData"`
	FunctionCall     *upstreamCall   `json:"functionCall"`
}

type upstreamInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type upstreamCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type upstreamChunk struct {
	Response struct {
		Candidates []struct {
			FinishReason string `json:"finishReason"`
			Content      struct {
				Parts []upstreamPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	} `json:"response"`
}

// dispatchState tracks the thinking-mode toggle and pending tool-call
// accumulator across the whole stream.
type dispatchState struct {
	inThinking bool
	pending    []ToolCall
}

// Dispatch reads body as a sequence of `data: ` lines, decodes each as an
// Upstream chunk, and invokes sink with normalized events in order. A
// safety checker may abort the read early on a stalled or looping stream.
func Dispatch(body io.Reader, safety *SafetyChecker, sink Sink) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	state := &dispatchState{}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		if safety != nil {
			if abort, reason := safety.CheckChunk([]byte(data)); abort {
				return fmt.Errorf("upstream: stream aborted by safety checker: %s", reason)
			}
		}

		var chunk upstreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// tolerate decode errors silently
			continue
		}
		if len(chunk.Response.Candidates) == 0 {
			continue
		}
		candidate := chunk.Response.Candidates[0]

		for _, part := range candidate.Content.Parts {
			emitPart(state, part, sink)
		}

		if candidate.FinishReason != "" && len(state.pending) > 0 {
			if state.inThinking {
				sink(NormalizedStreamEvent{Kind: EventThinking, Phase: ThinkingEnd})
				state.inThinking = false
			}
			sink(NormalizedStreamEvent{Kind: EventToolCall, ToolCalls: state.pending})
			state.pending = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("upstream: stream read error: %w", err)
	}
	return nil
}

func emitPart(state *dispatchState, part upstreamPart, sink Sink) {
	if part.Thought {
		if !state.inThinking {
			sink(NormalizedStreamEvent{Kind: EventThinking, Phase: ThinkingStart})
			state.inThinking = true
		}
		sink(NormalizedStreamEvent{Kind: EventThinking, ThinkingDelta: part.Text, Phase: ThinkingMid})
		return
	}

	if part.Text != "" {
		if state.inThinking {
			sink(NormalizedStreamEvent{Kind: EventThinking, Phase: ThinkingEnd})
			state.inThinking = false
		}
		delta := part.Text
		if part.ThoughtSignature != "" {
			delta += fmt.Sprintf("<!-- thought_signature: %s -->", part.ThoughtSignature)
		}
		if part.InlineData != nil {
			delta += fmt.Sprintf("\n![Generated Image](data:%s;base64,%s)", part.InlineData.MimeType, part.InlineData.Data)
		}
		sink(NormalizedStreamEvent{Kind: EventText, TextDelta: delta, ThoughtSignature: part.ThoughtSignature})
		return
	}

	if part.FunctionCall != nil {
		argsJSON, err := json.Marshal(part.FunctionCall.Args)
		if err != nil {
			argsJSON = []byte("{}")
		}
		state.pending = append(state.pending, ToolCall{
			ID:        part.FunctionCall.ID,
			Name:      part.FunctionCall.Name,
			Arguments: string(argsJSON),
		})
		return
	}

	if part.InlineData != nil {
		sink(NormalizedStreamEvent{Kind: EventImage, ImageMime: part.InlineData.MimeType, ImageData: part.InlineData.Data})
	}
}
