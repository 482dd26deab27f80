package gatewayhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexusgate/oauth-llm-gateway/internal/translator"
	"github.com/nexusgate/oauth-llm-gateway/internal/upstream"
)

func anthropicGenerationParams(req translator.AnthropicRequest) translator.GenerationParams {
	maxTokens := req.MaxTokens
	return translator.GenerationParams{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   &maxTokens,
	}
}

func concatAnthropicMessages(messages []translator.AnthropicMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content.AsText())
		b.WriteString("\n")
	}
	return b.String()
}

// MessagesHandler implements POST /anthropic/v1/messages.
func MessagesHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translator.AnthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ge := bodyDecodeError(err)
			writeClaudeError(w, ge.Message, ge.Status())
			return
		}
		if len(req.Messages) == 0 || req.Model == "" {
			writeClaudeError(w, "model and messages are required", http.StatusBadRequest)
			return
		}

		apiKey := resolveAPIKey(r)
		auth := authorize(state, apiKey)
		if auth.unauthorized {
			writeClaudeError(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		if !auth.allowed {
			writeClaudeRateLimited(w, auth.resetInS)
			return
		}
		setRateLimitHeaders(w, auth)

		tools, err := translator.ConvertAnthropicTools(req.Tools)
		if err != nil {
			writeClaudeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		contents := translator.AnthropicToUpstream(req.System, req.Messages)
		genConfig, wireModel := translator.DeriveGenerationConfig(req.Model, anthropicGenerationParams(req), state.GenerationDefaults(), state.Catalog)
		state.Admin.UpsertRoute(req.Model, wireModel, state.Catalog.IsThinkingModel(req.Model))

		projectID, sessionID, err := state.Identity.Get(apiKey)
		if err != nil {
			writeClaudeError(w, "identity derivation failed", http.StatusInternalServerError)
			return
		}

		envelope := translator.BuildEnvelope(projectID, sessionID, wireModel, state.Config.SystemInstruction, req.System, state.Config.API.UserAgent, contents, tools, genConfig)

		lastText := req.Messages[len(req.Messages)-1].Content.AsText()
		streaming := resolveStreaming(req.Stream, lastText, len(req.Messages))

		started := time.Now()
		resp, cred, gwErr := streamFromUpstream(r.Context(), state, envelope)
		if gwErr != nil {
			state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, "", statusForGatewayError(gwErr), started, gwErr.Error(), 0, 0))
			writeClaudeError(w, gwErr.Error(), statusForGatewayError(gwErr))
			return
		}
		defer resp.Body.Close()

		promptText := concatAnthropicMessages(req.Messages) + req.System
		promptTokens := state.CountTokens(promptText)
		if toolBytes, err := json.Marshal(tools); err == nil {
			promptTokens += state.CountTokens(string(toolBytes))
		}

		if !streaming {
			serveAnthropicNonStreaming(w, state, resp.Body, req, wireModel, cred.Email, promptTokens, started)
			return
		}
		serveAnthropicStreaming(w, state, resp.Body, req, wireModel, cred.Email, promptTokens, started)
	}
}

type anthropicToolUseBlock struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Input interface{} `json:"input"`
}

// resolveStopReason applies a fixed resolution order: tool_use if any
// calls, else stop_sequence if the completion ends with a requested stop
// sequence, else max_tokens if output reached the cap, else end_turn.
func resolveStopReason(sawToolCall bool, completion string, stopSequences []string, outputTokens, maxTokens int) (reason string, sequence string) {
	if sawToolCall {
		return "tool_use", ""
	}
	for _, seq := range stopSequences {
		if seq != "" && strings.HasSuffix(completion, seq) {
			return "stop_sequence", seq
		}
	}
	if maxTokens > 0 && outputTokens >= maxTokens {
		return "max_tokens", ""
	}
	return "end_turn", ""
}

// anthropicBlockTracker manages the index-addressed content_block
// start/delta/stop sequence of the Messages streaming wire format.
type anthropicBlockTracker struct {
	sw      *sseWriter
	open    string // "", "text", "thinking"
	index   int
	started bool
}

func (t *anthropicBlockTracker) ensureTextBlock() {
	if t.open == "text" {
		return
	}
	t.closeOpen()
	t.sw.writeEvent("content_block_start", map[string]interface{}{
		"type": "content_block_start", "index": t.nextIndex(),
		"content_block": map[string]interface{}{"type": "text", "text": ""},
	})
	t.open = "text"
}

func (t *anthropicBlockTracker) ensureThinkingBlock() {
	if t.open == "thinking" {
		return
	}
	t.closeOpen()
	t.sw.writeEvent("content_block_start", map[string]interface{}{
		"type": "content_block_start", "index": t.nextIndex(),
		"content_block": map[string]interface{}{"type": "thinking", "thinking": ""},
	})
	t.open = "thinking"
}

func (t *anthropicBlockTracker) nextIndex() int {
	if !t.started {
		t.started = true
		return t.index
	}
	t.index++
	return t.index
}

func (t *anthropicBlockTracker) closeOpen() {
	if t.open == "" {
		return
	}
	t.sw.writeEvent("content_block_stop", map[string]interface{}{"type": "content_block_stop", "index": t.index})
	t.open = ""
}

func (t *anthropicBlockTracker) writeToolUse(id, name string, input interface{}) {
	t.closeOpen()
	idx := t.nextIndex()
	t.sw.writeEvent("content_block_start", map[string]interface{}{
		"type": "content_block_start", "index": idx,
		"content_block": anthropicToolUseBlock{ID: id, Name: name, Input: input},
	})
	t.sw.writeEvent("content_block_stop", map[string]interface{}{"type": "content_block_stop", "index": idx})
}

// serveAnthropicStreaming re-frames normalized events as Anthropic SSE
// events.
func serveAnthropicStreaming(w http.ResponseWriter, state *State, body io.Reader, req translator.AnthropicRequest, wireModel, accountEmail string, promptTokens int, started time.Time) {
	sw := newSSEWriter(w)
	msgID := "msg_" + uuid.New().String()

	sw.writeEvent("message_start", map[string]interface{}{
		"type": "message_start",
		"message": map[string]interface{}{
			"id": msgID, "type": "message", "role": "assistant", "model": req.Model,
			"content": []interface{}{}, "stop_reason": nil, "stop_sequence": nil,
			"usage": map[string]interface{}{"input_tokens": promptTokens, "output_tokens": 0},
		},
	})

	tracker := &anthropicBlockTracker{sw: sw}
	var completion strings.Builder
	sawToolCall := false
	var parseErr error
	safety := upstream.NewSafetyChecker()

	dispatchErr := upstream.Dispatch(body, safety, func(e upstream.NormalizedStreamEvent) {
		if parseErr != nil {
			return
		}
		switch e.Kind {
		case upstream.EventText:
			tracker.ensureTextBlock()
			completion.WriteString(e.TextDelta)
			sw.writeEvent("content_block_delta", map[string]interface{}{
				"type": "content_block_delta", "index": tracker.index,
				"delta": map[string]interface{}{"type": "text_delta", "text": e.TextDelta},
			})
		case upstream.EventThinking:
			if e.Phase == upstream.ThinkingStart {
				tracker.ensureThinkingBlock()
				return
			}
			if e.Phase == upstream.ThinkingMid {
				sw.writeEvent("content_block_delta", map[string]interface{}{
					"type": "content_block_delta", "index": tracker.index,
					"delta": map[string]interface{}{"type": "thinking_delta", "thinking": e.ThinkingDelta},
				})
			}
		case upstream.EventImage:
			tracker.ensureTextBlock()
			img := fmt.Sprintf("\n![Generated Image](data:%s;base64,%s)", e.ImageMime, e.ImageData)
			completion.WriteString(img)
			sw.writeEvent("content_block_delta", map[string]interface{}{
				"type": "content_block_delta", "index": tracker.index,
				"delta": map[string]interface{}{"type": "text_delta", "text": img},
			})
		case upstream.EventToolCall:
			for _, tc := range e.ToolCalls {
				var input interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					parseErr = fmt.Errorf("gatewayhttp: tool call arguments not valid JSON: %w", err)
					sw.writeEvent("error", map[string]interface{}{
						"type": "error",
						"error": map[string]interface{}{"type": "invalid_request_error", "message": parseErr.Error()},
					})
					return
				}
				sawToolCall = true
				tracker.writeToolUse(tc.ID, tc.Name, input)
			}
		}
	})

	if parseErr != nil {
		state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, accountEmail, http.StatusBadRequest, started, parseErr.Error(), promptTokens, 0))
		return
	}
	if dispatchErr != nil {
		sw.writeEvent("error", map[string]interface{}{
			"type": "error",
			"error": map[string]interface{}{"type": "api_error", "message": dispatchErr.Error()},
		})
		state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, accountEmail, http.StatusBadGateway, started, dispatchErr.Error(), promptTokens, 0))
		return
	}

	tracker.closeOpen()

	outputTokens := state.CountTokens(completion.String())
	reason, sequence := resolveStopReason(sawToolCall, completion.String(), req.StopSequences, outputTokens, req.MaxTokens)

	delta := map[string]interface{}{"stop_reason": reason}
	if sequence != "" {
		delta["stop_sequence"] = sequence
	} else {
		delta["stop_sequence"] = nil
	}
	sw.writeEvent("message_delta", map[string]interface{}{
		"type": "message_delta", "delta": delta,
		"usage": map[string]interface{}{"output_tokens": outputTokens},
	})
	sw.writeEvent("message_stop", map[string]interface{}{"type": "message_stop"})

	state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, accountEmail, http.StatusOK, started, "", promptTokens, outputTokens))
}

type anthropicContentBlockOut struct {
	Type  string      `json:"type"`
	Text  string      `json:"text,omitempty"`
	ID    string      `json:"id,omitempty"`
	Name  string      `json:"name,omitempty"`
	Input interface{} `json:"input,omitempty"`
}

type anthropicMessageResponse struct {
	ID           string                     `json:"id"`
	Type         string                     `json:"type"`
	Role         string                     `json:"role"`
	Model        string                     `json:"model"`
	Content      []anthropicContentBlockOut `json:"content"`
	StopReason   string                     `json:"stop_reason"`
	StopSequence *string                    `json:"stop_sequence"`
	Usage        map[string]int             `json:"usage"`
}

// serveAnthropicNonStreaming collects the whole normalized stream and
// answers a single JSON Message object.
func serveAnthropicNonStreaming(w http.ResponseWriter, state *State, body io.Reader, req translator.AnthropicRequest, wireModel, accountEmail string, promptTokens int, started time.Time) {
	var completion strings.Builder
	var blocks []anthropicContentBlockOut
	sawToolCall := false
	safety := upstream.NewSafetyChecker()

	var parseErr error
	dispatchErr := upstream.Dispatch(body, safety, func(e upstream.NormalizedStreamEvent) {
		if parseErr != nil {
			return
		}
		switch e.Kind {
		case upstream.EventText:
			completion.WriteString(e.TextDelta)
		case upstream.EventThinking:
			if e.Phase == upstream.ThinkingMid {
				completion.WriteString(e.ThinkingDelta)
			}
		case upstream.EventImage:
			completion.WriteString(fmt.Sprintf("\n![Generated Image](data:%s;base64,%s)", e.ImageMime, e.ImageData))
		case upstream.EventToolCall:
			for _, tc := range e.ToolCalls {
				var input interface{}
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					parseErr = fmt.Errorf("gatewayhttp: tool call arguments not valid JSON: %w", err)
					return
				}
				sawToolCall = true
				blocks = append(blocks, anthropicContentBlockOut{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
		}
	})

	if parseErr != nil {
		state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, accountEmail, http.StatusBadRequest, started, parseErr.Error(), promptTokens, 0))
		writeClaudeError(w, parseErr.Error(), http.StatusBadRequest)
		return
	}
	if dispatchErr != nil {
		state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, accountEmail, http.StatusBadGateway, started, dispatchErr.Error(), promptTokens, 0))
		writeClaudeError(w, dispatchErr.Error(), http.StatusBadGateway)
		return
	}

	if completion.Len() > 0 {
		blocks = append([]anthropicContentBlockOut{{Type: "text", Text: completion.String()}}, blocks...)
	}

	outputTokens := state.CountTokens(completion.String())
	reason, sequence := resolveStopReason(sawToolCall, completion.String(), req.StopSequences, outputTokens, req.MaxTokens)
	var seqPtr *string
	if sequence != "" {
		seqPtr = &sequence
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(anthropicMessageResponse{
		ID: "msg_" + uuid.New().String(), Type: "message", Role: "assistant", Model: req.Model,
		Content:      blocks,
		StopReason:   reason,
		StopSequence: seqPtr,
		Usage:        map[string]int{"input_tokens": promptTokens, "output_tokens": outputTokens},
	})

	state.Admin.RecordAsync(adminRequestLog("anthropic", req.Model, wireModel, accountEmail, http.StatusOK, started, "", promptTokens, outputTokens))
}

// AnthropicCountTokensHandler implements POST
// /anthropic/v1/messages/count_tokens.
func AnthropicCountTokensHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translator.AnthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ge := bodyDecodeError(err)
			writeClaudeError(w, ge.Message, ge.Status())
			return
		}
		inputTokens := state.CountTokens(concatAnthropicMessages(req.Messages) + req.System)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"input_tokens": inputTokens,
			"model":        req.Model,
			"fallback":     true,
		})
	}
}
