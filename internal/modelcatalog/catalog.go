// Package modelcatalog holds the YAML-configured allow-lists the
// generation-config derivation consults: which models are "thinking"
// models, which model-name prefixes belong to the Claude family, and the
// one whitelisted exception to trailing "-thinking" suffix stripping.
// Load builds a Catalog from a YAML file, or from the built-in defaults
// when no file is given; the package keeps no global state.
package modelcatalog

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the on-disk YAML shape.
type fileConfig struct {
	ThinkingModels    []string `yaml:"thinking_models"`
	ClaudeFamily      []string `yaml:"claude_family_prefixes"`
	ThinkingException string   `yaml:"thinking_suffix_exception"`
}

// Catalog is the runtime, lookup-optimized view of fileConfig.
type Catalog struct {
	mu                sync.RWMutex
	thinkingModels    map[string]bool
	claudeFamily      []string
	thinkingException string
}

// defaultYAML is used when no catalog file is configured, so the gateway
// still has sane built-in defaults alongside the YAML-overridable config.
const defaultYAML = `
thinking_models:
  - gemini-3-pro-thinking
  - gemini-2.5-pro-thinking
claude_family_prefixes:
  - claude-
thinking_suffix_exception: gemini-3-pro-preview-thinking
`

// Load reads path if non-empty and it exists, otherwise falls back to
// the built-in defaults.
func Load(path string) (*Catalog, error) {
	raw := []byte(defaultYAML)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("modelcatalog: read %s: %w", path, err)
			}
		} else {
			raw = data
		}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("modelcatalog: parse yaml: %w", err)
	}

	c := &Catalog{
		thinkingModels: make(map[string]bool, len(fc.ThinkingModels)),
		claudeFamily:   fc.ClaudeFamily,
	}
	for _, m := range fc.ThinkingModels {
		c.thinkingModels[strings.ToLower(m)] = true
	}
	c.thinkingException = fc.ThinkingException
	if len(c.claudeFamily) == 0 {
		c.claudeFamily = []string{"claude-"}
	}
	return c, nil
}

// IsThinkingModel reports whether model requests thinking mode: either it
// ends with "-thinking" or it appears in the built-in (YAML-configurable)
// allow-list. Both checks ignore case.
func (c *Catalog) IsThinkingModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.HasSuffix(lower, "-thinking") {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thinkingModels[lower]
}

// IsClaudeFamily reports whether model belongs to the Claude family, used
// to decide whether topP should be dropped from generation config.
func (c *Catalog) IsClaudeFamily(model string) bool {
	lower := strings.ToLower(model)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, prefix := range c.claudeFamily {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// StripThinkingSuffix removes a trailing "-thinking" from the wire model
// name sent to Upstream, except for the one whitelisted exception.
func (c *Catalog) StripThinkingSuffix(model string) string {
	c.mu.RLock()
	exception := c.thinkingException
	c.mu.RUnlock()

	if model == exception {
		return model
	}
	return strings.TrimSuffix(model, "-thinking")
}
