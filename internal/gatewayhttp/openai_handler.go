package gatewayhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexusgate/oauth-llm-gateway/internal/gwerror"
	"github.com/nexusgate/oauth-llm-gateway/internal/pool"
	"github.com/nexusgate/oauth-llm-gateway/internal/translator"
	"github.com/nexusgate/oauth-llm-gateway/internal/upstream"
)

type openaiDelta struct {
	Role      string                            `json:"role,omitempty"`
	Content   string                            `json:"content,omitempty"`
	ToolCalls []translator.OpenAIToolCallDelta `json:"tool_calls,omitempty"`
}

type openaiStreamChoice struct {
	Index        int          `json:"index"`
	Delta        openaiDelta  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

type openaiStreamChunk struct {
	ID      string                `json:"id"`
	Object  string                `json:"object"`
	Created int64                 `json:"created"`
	Model   string                `json:"model"`
	Choices []openaiStreamChoice  `json:"choices"`
	Usage   *translator.OpenAIUsage `json:"usage,omitempty"`
}

type openaiMessageOut struct {
	Role      string                    `json:"role"`
	Content   string                    `json:"content"`
	ToolCalls []translator.OpenAIToolCall `json:"tool_calls,omitempty"`
}

type openaiChoice struct {
	Index        int               `json:"index"`
	Message      openaiMessageOut  `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openaiResponse struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Created int64                   `json:"created"`
	Model   string                  `json:"model"`
	Choices []openaiChoice          `json:"choices"`
	Usage   translator.OpenAIUsage  `json:"usage"`
}

// openaiGenerationParams builds a translator.GenerationParams from an
// OpenAIRequest's optional client-supplied fields.
func openaiGenerationParams(req translator.OpenAIRequest) translator.GenerationParams {
	return translator.GenerationParams{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
	}
}

// ChatCompletionsHandler implements POST /v1/chat/completions.
func ChatCompletionsHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translator.OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ge := bodyDecodeError(err)
			writeOpenAIError(w, ge.Message, ge.Status())
			return
		}
		if len(req.Messages) == 0 {
			writeOpenAIError(w, "messages must not be empty", http.StatusBadRequest)
			return
		}

		apiKey := resolveAPIKey(r)
		auth := authorize(state, apiKey)
		if auth.unauthorized {
			writeOpenAIError(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		if !auth.allowed {
			writeOpenAIRateLimited(w, auth.resetInS)
			return
		}
		setRateLimitHeaders(w, auth)

		tools, err := translator.ConvertOpenAITools(req.Tools)
		if err != nil {
			writeOpenAIError(w, err.Error(), http.StatusBadRequest)
			return
		}

		contents := translator.OpenAIToUpstream(req.Messages)
		genConfig, wireModel := translator.DeriveGenerationConfig(req.Model, openaiGenerationParams(req), state.GenerationDefaults(), state.Catalog)
		state.Admin.UpsertRoute(req.Model, wireModel, state.Catalog.IsThinkingModel(req.Model))

		projectID, sessionID, err := state.Identity.Get(apiKey)
		if err != nil {
			writeOpenAIError(w, "identity derivation failed", http.StatusInternalServerError)
			return
		}

		envelope := translator.BuildEnvelope(projectID, sessionID, wireModel, state.Config.SystemInstruction, "", state.Config.API.UserAgent, contents, tools, genConfig)

		lastText := req.Messages[len(req.Messages)-1].Content.AsText()
		streaming := resolveStreaming(req.Stream, lastText, len(req.Messages))

		started := time.Now()
		resp, cred, gwErr := streamFromUpstream(r.Context(), state, envelope)
		if gwErr != nil {
			state.Admin.RecordAsync(adminRequestLog("openai", req.Model, wireModel, "", statusForGatewayError(gwErr), started, gwErr.Error(), 0, 0))
			handleOpenAIUpstreamError(w, gwErr)
			return
		}
		defer resp.Body.Close()

		promptText := concatOpenAIMessages(req.Messages)
		promptTokens := state.CountTokens(promptText)
		if toolBytes, err := json.Marshal(tools); err == nil {
			promptTokens += state.CountTokens(string(toolBytes))
		}

		if !streaming {
			serveOpenAINonStreaming(w, state, resp.Body, req.Model, wireModel, promptTokens, started)
			return
		}
		serveOpenAIStreaming(w, state, resp.Body, req.Model, wireModel, promptTokens, cred, started)
	}
}

func concatOpenAIMessages(messages []translator.OpenAIMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content.AsText())
		b.WriteString("\n")
	}
	return b.String()
}

// streamFromUpstream fetches a token, issues the streaming POST, and
// retries once on HTTP 403 through pool.OnUpstreamForbidden.
func streamFromUpstream(ctx context.Context, state *State, envelope translator.UpstreamEnvelope) (*http.Response, pool.Credential, error) {
	var zero pool.Credential
	cred, err := state.Pool.GetToken(ctx)
	if err != nil {
		return nil, zero, err
	}

	resp, err := state.Upstream.Stream(cred.AccessToken, envelope)
	if err != nil {
		return nil, zero, gwerror.Wrap(gwerror.KindUpstreamInterrupted, "upstream request failed", err)
	}

	if resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		newCred, err := state.Pool.OnUpstreamForbidden(ctx, cred)
		if err != nil {
			return nil, zero, gwerror.Wrap(gwerror.KindNoCredentials, "no credentials available after forbidden", err)
		}
		resp, err = state.Upstream.Stream(newCred.AccessToken, envelope)
		if err != nil {
			return nil, zero, gwerror.Wrap(gwerror.KindUpstreamInterrupted, "upstream request failed", err)
		}
		cred = newCred
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		resp.Body.Close()
		return nil, zero, gwerror.Upstream(resp.StatusCode, string(body))
	}

	return resp, cred, nil
}

func handleOpenAIUpstreamError(w http.ResponseWriter, err error) {
	ge, _ := gwerror.As(err)
	message := err.Error()
	status := statusForGatewayError(err)
	if ge != nil && ge.Kind == gwerror.KindUpstreamStatus {
		message = fmt.Sprintf("upstream error %d: %s", ge.UpstreamStatus, ge.UpstreamBody)
	}
	writeOpenAIError(w, message, status)
}

// serveOpenAIStreaming re-frames normalized events as OpenAI SSE chunks.
func serveOpenAIStreaming(w http.ResponseWriter, state *State, body io.Reader, model, wireModel string, promptTokens int, cred pool.Credential, started time.Time) {
	sw := newSSEWriter(w)
	id := "chatcmpl-" + uuid.New().String()
	created := time.Now().Unix()

	firstChunk := true
	sawToolCall := false
	var completion strings.Builder
	safety := upstream.NewSafetyChecker()

	send := func(delta openaiDelta) {
		role := ""
		if firstChunk {
			role = "assistant"
			firstChunk = false
		}
		delta.Role = role
		sw.writeData(openaiStreamChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
			Choices: []openaiStreamChoice{{Index: 0, Delta: delta}},
		})
	}

	err := upstream.Dispatch(body, safety, func(e upstream.NormalizedStreamEvent) {
		switch e.Kind {
		case upstream.EventText:
			completion.WriteString(e.TextDelta)
			send(openaiDelta{Content: e.TextDelta})
		case upstream.EventThinking:
			switch e.Phase {
			case upstream.ThinkingStart:
				send(openaiDelta{Content: "<think>"})
			case upstream.ThinkingMid:
				send(openaiDelta{Content: e.ThinkingDelta})
			case upstream.ThinkingEnd:
				send(openaiDelta{Content: "</think>"})
			}
		case upstream.EventImage:
			img := fmt.Sprintf("\n![Generated Image](data:%s;base64,%s)", e.ImageMime, e.ImageData)
			completion.WriteString(img)
			send(openaiDelta{Content: img})
		case upstream.EventToolCall:
			sawToolCall = true
			deltas := make([]translator.OpenAIToolCallDelta, len(e.ToolCalls))
			for i, tc := range e.ToolCalls {
				deltas[i] = translator.OpenAIToolCallDelta{
					Index: i, ID: tc.ID, Type: "function",
					Function: translator.OpenAIFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				}
			}
			send(openaiDelta{ToolCalls: deltas})
		}
	})

	finishReason := "stop"
	if sawToolCall {
		finishReason = "tool_calls"
	}
	if err != nil {
		completion.WriteString(fmt.Sprintf("\n错误: %v", err))
		send(openaiDelta{Content: fmt.Sprintf("\n错误: %v", err)})
	}

	sw.writeData(openaiStreamChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
		Choices: []openaiStreamChoice{{Index: 0, Delta: openaiDelta{}, FinishReason: &finishReason}},
	})

	completionTokens := state.CountTokens(completion.String())
	usage := translator.OpenAIUsage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens}
	sw.writeData(openaiStreamChunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: model,
		Choices: []openaiStreamChoice{}, Usage: &usage,
	})
	sw.writeDone()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	state.Admin.RecordAsync(adminRequestLog("openai", model, wireModel, cred.Email, http.StatusOK, started, errMsg, promptTokens, completionTokens))
}

// serveOpenAINonStreaming collects the whole normalized stream and
// answers a single JSON object.
func serveOpenAINonStreaming(w http.ResponseWriter, state *State, body io.Reader, model, wireModel string, promptTokens int, started time.Time) {
	var completion strings.Builder
	var toolCalls []translator.OpenAIToolCall
	safety := upstream.NewSafetyChecker()

	err := upstream.Dispatch(body, safety, func(e upstream.NormalizedStreamEvent) {
		switch e.Kind {
		case upstream.EventText:
			completion.WriteString(e.TextDelta)
		case upstream.EventThinking:
			switch e.Phase {
			case upstream.ThinkingStart:
				completion.WriteString("<think>")
			case upstream.ThinkingMid:
				completion.WriteString(e.ThinkingDelta)
			case upstream.ThinkingEnd:
				completion.WriteString("</think>")
			}
		case upstream.EventImage:
			completion.WriteString(fmt.Sprintf("\n![Generated Image](data:%s;base64,%s)", e.ImageMime, e.ImageData))
		case upstream.EventToolCall:
			for _, tc := range e.ToolCalls {
				toolCalls = append(toolCalls, translator.OpenAIToolCall{
					ID: tc.ID, Type: "function",
					Function: translator.OpenAIFunctionCall{Name: tc.Name, Arguments: tc.Arguments},
				})
			}
		}
	})
	if err != nil {
		state.Admin.RecordAsync(adminRequestLog("openai", model, wireModel, "", http.StatusBadGateway, started, err.Error(), promptTokens, 0))
		writeOpenAIError(w, fmt.Sprintf("upstream interrupted: %v", err), http.StatusBadGateway)
		return
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	completionTokens := state.CountTokens(completion.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openaiResponse{
		ID: "chatcmpl-" + uuid.New().String(), Object: "chat.completion", Created: time.Now().Unix(), Model: model,
		Choices: []openaiChoice{{
			Index:        0,
			Message:      openaiMessageOut{Role: "assistant", Content: completion.String(), ToolCalls: toolCalls},
			FinishReason: finishReason,
		}},
		Usage: translator.OpenAIUsage{PromptTokens: promptTokens, CompletionTokens: completionTokens, TotalTokens: promptTokens + completionTokens},
	})

	state.Admin.RecordAsync(adminRequestLog("openai", model, wireModel, "", http.StatusOK, started, "", promptTokens, completionTokens))
}

// ModelsHandler implements GET /v1/models.
func ModelsHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := resolveAPIKey(r)
		auth := authorize(state, apiKey)
		if auth.unauthorized {
			writeOpenAIError(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		if !auth.allowed {
			writeOpenAIRateLimited(w, auth.resetInS)
			return
		}
		setRateLimitHeaders(w, auth)

		cred, err := state.Pool.GetToken(r.Context())
		if err != nil {
			writeOpenAIError(w, "no credentials available", http.StatusInternalServerError)
			return
		}
		resp, err := state.Upstream.FetchModels(cred.AccessToken)
		if err != nil {
			writeOpenAIError(w, "failed to fetch models", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		var raw struct {
			Models map[string]json.RawMessage `json:"models"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			writeOpenAIError(w, "failed to decode models response", http.StatusBadGateway)
			return
		}

		type modelEntry struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			Created int64  `json:"created"`
			OwnedBy string `json:"owned_by"`
		}
		now := time.Now().Unix()
		data := make([]modelEntry, 0, len(raw.Models))
		for id := range raw.Models {
			data = append(data, modelEntry{ID: id, Object: "model", Created: now, OwnedBy: "google"})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"object": "list", "data": data})
	}
}

// OpenAICountTokensHandler implements POST /v1/chat/completions/count_tokens.
// Token counting is an opaque estimator, not a real tokenizer.
func OpenAICountTokensHandler(state *State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req translator.OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			ge := bodyDecodeError(err)
			writeOpenAIError(w, ge.Message, ge.Status())
			return
		}
		promptTokens := state.CountTokens(concatOpenAIMessages(req.Messages))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object":            "tokens",
			"model":             req.Model,
			"fallback":          true,
			"prompt_tokens":     promptTokens,
			"completion_tokens": 0,
			"total_tokens":      promptTokens,
		})
	}
}
