package translator

import (
	"encoding/json"
	"fmt"
)

const (
	maxToolCount        = 32
	maxToolParamBytes   = 50 * 1024
)

// ToolSchemaError reports a tool that failed schema validation.
type ToolSchemaError struct {
	Reason string
}

func (e *ToolSchemaError) Error() string { return "translator: tool schema invalid: " + e.Reason }

// stripDangerousKeys removes $schema, __proto__ and prototype from a
// parameter schema before forwarding it to Upstream. It recurses into
// nested objects and arrays since a malicious schema could bury the
// sentinel keys at any depth.
func stripDangerousKeys(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if k == "$schema" || k == "__proto__" || k == "prototype" {
				continue
			}
			out[k] = stripDangerousKeys(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = stripDangerousKeys(val)
		}
		return out
	default:
		return v
	}
}

// ConvertOpenAITools normalizes an OpenAI tools array into Upstream
// functionDeclarations.
func ConvertOpenAITools(tools []OpenAITool) ([]UpstreamTool, error) {
	if len(tools) > maxToolCount {
		return nil, &ToolSchemaError{Reason: fmt.Sprintf("tool count %d exceeds limit %d", len(tools), maxToolCount)}
	}

	var decls []UpstreamFunctionDeclaration
	for _, t := range tools {
		if t.Type != "function" || t.Function == nil {
			return nil, &ToolSchemaError{Reason: "non-function tool rejected"}
		}
		if t.Function.Name == "" {
			return nil, &ToolSchemaError{Reason: "empty tool name"}
		}
		params, ok := stripDangerousKeys(t.Function.Parameters).(map[string]interface{})
		if !ok {
			params = map[string]interface{}{}
		}
		if err := checkParamSize(params); err != nil {
			return nil, err
		}
		decls = append(decls, UpstreamFunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  params,
		})
	}
	if len(decls) == 0 {
		return nil, nil
	}
	return []UpstreamTool{{FunctionDeclarations: decls}}, nil
}

// ConvertAnthropicTools normalizes an Anthropic tools array the same way.
func ConvertAnthropicTools(tools []AnthropicTool) ([]UpstreamTool, error) {
	if len(tools) > maxToolCount {
		return nil, &ToolSchemaError{Reason: fmt.Sprintf("tool count %d exceeds limit %d", len(tools), maxToolCount)}
	}

	var decls []UpstreamFunctionDeclaration
	for _, t := range tools {
		if t.Name == "" {
			return nil, &ToolSchemaError{Reason: "empty tool name"}
		}
		params, ok := stripDangerousKeys(t.InputSchema).(map[string]interface{})
		if !ok {
			params = map[string]interface{}{}
		}
		if err := checkParamSize(params); err != nil {
			return nil, err
		}
		decls = append(decls, UpstreamFunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	if len(decls) == 0 {
		return nil, nil
	}
	return []UpstreamTool{{FunctionDeclarations: decls}}, nil
}

func checkParamSize(params map[string]interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return &ToolSchemaError{Reason: "parameters not serializable"}
	}
	if len(data) > maxToolParamBytes {
		return &ToolSchemaError{Reason: fmt.Sprintf("serialized parameters exceed %d bytes", maxToolParamBytes)}
	}
	return nil
}
