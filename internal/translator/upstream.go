package translator

// UpstreamPart is one part of an Upstream message, matching the wire
// shape of the hub dialect: a Gemini-style part carrying text,
// inlineData, functionCall, functionResponse, or a thought marker.
type UpstreamPart struct {
	Text             string                `json:"text,omitempty"`
	Thought          bool                  `json:"thought,omitempty"`
	ThoughtSignature string                `json:"thoughtSignature,omitempty"`
	InlineData       *UpstreamInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *UpstreamFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *UpstreamFuncResponse `json:"functionResponse,omitempty"`
}

// UpstreamInlineData carries a base64-encoded media blob.
type UpstreamInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// UpstreamFunctionCall is one tool invocation emitted by Upstream or sent
// back to it as prior assistant turn content.
type UpstreamFunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// UpstreamFuncResponse answers a prior UpstreamFunctionCall.
type UpstreamFuncResponse struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// UpstreamMessage is one turn of Upstream conversation history.
type UpstreamMessage struct {
	Role  string         `json:"role"`
	Parts []UpstreamPart `json:"parts"`
}

// UpstreamFunctionDeclaration is one tool definition in Upstream's shape.
type UpstreamFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// UpstreamTool wraps a batch of function declarations, matching the
// GeminiTool wire shape.
type UpstreamTool struct {
	FunctionDeclarations []UpstreamFunctionDeclaration `json:"functionDeclarations,omitempty"`
}

// UpstreamToolConfig pins function calling to VALIDATED mode.
type UpstreamToolConfig struct {
	FunctionCallingConfig struct {
		Mode string `json:"mode"`
	} `json:"functionCallingConfig"`
}

// GenerationConfig is the derived generation-config block sent to
// Upstream.
type GenerationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"topP,omitempty"`
	TopK             *float64        `json:"topK,omitempty"`
	MaxOutputTokens  *int            `json:"maxOutputTokens,omitempty"`
	CandidateCount   int             `json:"candidateCount"`
	StopSequences    []string        `json:"stopSequences,omitempty"`
	ThinkingConfig   *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig requests interleaved reasoning parts from Upstream.
type ThinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
	ThinkingBudget  int  `json:"thinkingBudget"`
}

// UpstreamRequestPayload is the `request` field of the envelope.
type UpstreamRequestPayload struct {
	Contents          []UpstreamMessage  `json:"contents"`
	SystemInstruction *UpstreamMessage   `json:"systemInstruction,omitempty"`
	Tools             []UpstreamTool     `json:"tools,omitempty"`
	ToolConfig        *UpstreamToolConfig `json:"toolConfig,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	SessionID         string             `json:"sessionId,omitempty"`
}

// UpstreamEnvelope is the full request body posted to Upstream.
type UpstreamEnvelope struct {
	Project   string                 `json:"project"`
	RequestID string                 `json:"requestId"`
	Request   UpstreamRequestPayload `json:"request"`
	Model     string                 `json:"model"`
	UserAgent string                 `json:"userAgent"`
}
