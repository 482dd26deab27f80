// Package config loads the gateway's config.json. OAUTH_CLIENT_ID and
// OAUTH_CLIENT_SECRET override whatever config.json carries, following
// the same env-or-default pattern Google's oauth2/google package uses.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// APIConfig configures the Upstream endpoints and identity headers.
type APIConfig struct {
	URL       string `json:"url"`
	ModelsURL string `json:"modelsUrl"`
	Host      string `json:"host"`
	UserAgent string `json:"userAgent"`
}

// OAuthConfig configures the identity provider client credentials.
type OAuthConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// DefaultsConfig configures the generation-parameter defaults used when a
// client omits them.
type DefaultsConfig struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        float64 `json:"top_k"`
	MaxTokens   int     `json:"max_tokens"`
}

// SecurityConfig configures request-size limits and the admin-wide
// bypass key.
type SecurityConfig struct {
	MaxRequestSize int64  `json:"maxRequestSize"`
	APIKey         string `json:"apiKey"`
	AdminPassword  string `json:"adminPassword"`
}

// Config is the full decoded shape of config.json.
type Config struct {
	Server            ServerConfig   `json:"server"`
	API               APIConfig      `json:"api"`
	OAuth             OAuthConfig    `json:"oauth"`
	Defaults          DefaultsConfig `json:"defaults"`
	Security          SecurityConfig `json:"security"`
	SystemInstruction string         `json:"systemInstruction"`
}

// defaultConfig mirrors what a fresh install ships with absent a
// config.json on disk, so the gateway can boot with sane values.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{Port: 8080, Host: "0.0.0.0"},
		API: APIConfig{
			URL:       "https://cloudcode-pa.googleapis.com/v1internal",
			ModelsURL: "https://cloudcode-pa.googleapis.com/v1internal:fetchAvailableModels",
			Host:      "cloudcode-pa.googleapis.com",
			UserAgent: "oauth-llm-gateway/1.0",
		},
		Defaults: DefaultsConfig{Temperature: 1.0, TopP: 0.95, TopK: 40, MaxTokens: 8192},
		Security: SecurityConfig{MaxRequestSize: 20 * 1024 * 1024},
	}
}

// Load reads path, falling back to defaultConfig() if the file does not
// exist, then applies OAUTH_CLIENT_ID/OAUTH_CLIENT_SECRET overrides.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if v := os.Getenv("OAUTH_CLIENT_ID"); v != "" {
		cfg.OAuth.ClientID = v
	}
	if v := os.Getenv("OAUTH_CLIENT_SECRET"); v != "" {
		cfg.OAuth.ClientSecret = v
	}

	return cfg, nil
}

// Save writes cfg back to path via the standard atomic-write discipline,
// used by admin-facing mutations to config (out of core HTTP scope, but
// the write path is shared with the JSON file store's convention).
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}
