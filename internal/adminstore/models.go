package adminstore

import "time"

// RequestLog mirrors one gateway request/response for the admin-facing
// observability surface. It is fed best-effort from the client handlers
// and never read by the core pool/keystore/identity logic, which persist
// through the JSON file store instead.
type RequestLog struct {
	ID           string `gorm:"primaryKey" json:"id"`
	Timestamp    int64  `gorm:"index" json:"timestamp"`
	Dialect      string `gorm:"index" json:"dialect"` // "openai" or "anthropic"
	Model        string `gorm:"index" json:"model"`
	WireModel    string `json:"wire_model,omitempty"`
	Status       int    `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	AccountEmail string `json:"account_email,omitempty"`
	Error        string `json:"error,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// RequestStats holds aggregated statistics over every mirrored request.
type RequestStats struct {
	TotalRequests int64 `json:"total_requests"`
	SuccessCount  int64 `json:"success_count"`
	ErrorCount    int64 `json:"error_count"`
}

// ModelRoute records a client-model to upstream wire-model resolution the
// translator produced, so an admin can inspect routing without reading
// request bodies.
type ModelRoute struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClientModel string    `gorm:"uniqueIndex" json:"client_model"`
	WireModel   string    `json:"wire_model"`
	IsThinking  bool      `json:"is_thinking"`
	UpdatedAt   time.Time `json:"updated_at"`
}
