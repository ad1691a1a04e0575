// Package config loads bridge settings from defaults, an optional YAML file and
// AIGC_BRIDGE_* environment variables.
package config

import (
	"fmt"

	"aigc-bridge/internal/adapter"
	"aigc-bridge/internal/auth"
	"aigc-bridge/internal/llm"
)

// Configuration holds all application configuration values.
type Configuration struct {
	// Backend selects the credential flow: "oauth" or "apikey".
	Backend string `mapstructure:"backend"`

	OAuth     OAuthConfig     `mapstructure:"oauth"`
	APIKey    string          `mapstructure:"api_key"`
	API       APIConfig       `mapstructure:"api"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// OAuthConfig holds the client-credentials grant inputs.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	TenantID     string `mapstructure:"tenant_id"`
	Authority    string `mapstructure:"authority"`
}

// APIConfig describes the chat endpoint and sampling defaults.
type APIConfig struct {
	URL         string  `mapstructure:"url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`

	// Zero means "not sent".
	TopK int     `mapstructure:"top_k"`
	TopP float64 `mapstructure:"top_p"`

	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
}

// ReasoningConfig controls rendering of reasoning_content.
type ReasoningConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Open    string `mapstructure:"open"`
	Close   string `mapstructure:"close"`
}

// ServerConfig holds serve-mode settings.
type ServerConfig struct {
	Port                  string `mapstructure:"port"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Env   string `mapstructure:"env"`
}

// Validate validates the configuration and returns every problem at once.
func (c *Configuration) Validate() error {
	var validationErrors []string

	switch llm.Backend(c.Backend) {
	case llm.BackendOAuth:
		if c.OAuth.ClientID == "" {
			validationErrors = append(validationErrors, "oauth.client_id is required for the oauth backend")
		}
		if c.OAuth.ClientSecret == "" {
			validationErrors = append(validationErrors, "oauth.client_secret is required for the oauth backend")
		}
		if c.OAuth.TenantID == "" {
			validationErrors = append(validationErrors, "oauth.tenant_id is required for the oauth backend")
		}
	case llm.BackendAPIKey:
		if c.APIKey == "" {
			validationErrors = append(validationErrors, "api_key is required for the apikey backend")
		}
	default:
		validationErrors = append(validationErrors, fmt.Sprintf(
			"backend '%s' is invalid, must be one of: oauth, apikey", c.Backend,
		))
	}

	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		validationErrors = append(validationErrors, "api.temperature must be between 0 and 2")
	}
	if c.API.TopK < 0 {
		validationErrors = append(validationErrors, "api.top_k must not be negative")
	}
	if c.API.TopP < 0 || c.API.TopP > 1 {
		validationErrors = append(validationErrors, "api.top_p must be between 0 and 1")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		validationErrors = append(validationErrors, "server.request_timeout_seconds must not be negative")
	}
	if c.Logging.Level != "" && !isValidLogLevel(c.Logging.Level) {
		validationErrors = append(validationErrors, fmt.Sprintf(
			"logging.level '%s' is invalid, must be one of: debug, info, warn, error",
			c.Logging.Level,
		))
	}

	if len(validationErrors) > 0 {
		return &ValidationError{Errors: validationErrors}
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// LLMConfig converts the api section into a chat client config.
func (c *Configuration) LLMConfig() llm.Config {
	temperature := c.API.Temperature
	cfg := llm.Config{
		Backend:            llm.Backend(c.Backend),
		APIURL:             c.API.URL,
		Model:              c.API.Model,
		Temperature:        &temperature,
		InsecureSkipVerify: c.API.InsecureSkipVerify,
	}
	if c.API.TopK > 0 {
		topK := c.API.TopK
		cfg.TopK = &topK
	}
	if c.API.TopP > 0 {
		topP := c.API.TopP
		cfg.TopP = &topP
	}
	return cfg
}

// Credentials returns the client-credentials grant inputs.
func (c *Configuration) Credentials() auth.ClientCredentials {
	return auth.ClientCredentials{
		ClientID:     c.OAuth.ClientID,
		ClientSecret: c.OAuth.ClientSecret,
		TenantID:     c.OAuth.TenantID,
		Authority:    c.OAuth.Authority,
	}
}

// ReasoningFormat returns the adapter's reasoning rendering settings.
func (c *Configuration) ReasoningFormat() adapter.ReasoningFormat {
	return adapter.ReasoningFormat{
		Enabled: c.Reasoning.Enabled,
		Open:    c.Reasoning.Open,
		Close:   c.Reasoning.Close,
	}
}
