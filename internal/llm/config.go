package llm

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"aigc-bridge/internal/auth"
)

const (
	DefaultOAuthURL    = "https://aigc.bosch.com.cn/llmservice/api/v1/chat/messages"
	DefaultAPIKeyURL   = "https://blue-whale-msp.de.bosch.com/api/chat/completions"
	DefaultModel       = "gpt4o-mini"
	DefaultTemperature = 0.1
)

type Config struct {
	//required fields
	Backend Backend
	APIURL  string

	Model       string   // default: gpt4o-mini
	Temperature *float64 // default: 0.1

	// Sampling knobs, sent only to BackendOAuth and only when set.
	TopK *int
	TopP *float64

	// InsecureSkipVerify disables TLS certificate verification for both the
	// token and chat endpoints. Off by default; logged loudly when on.
	InsecureSkipVerify bool

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if !c.Backend.Valid() {
		return fmt.Errorf("backend %q is invalid, must be %q or %q", c.Backend, BackendOAuth, BackendAPIKey)
	}
	if c.APIURL == "" {
		return errors.New("APIURL is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	if c.TopK != nil && *c.TopK < 1 {
		return errors.New("top_k must be positive")
	}
	return nil
}

// WithDefaults returns a copy of Config with defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.Backend == "" {
		cfg.Backend = BackendOAuth
	}
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	if cfg.APIURL == "" {
		switch cfg.Backend {
		case BackendOAuth:
			cfg.APIURL = DefaultOAuthURL
		case BackendAPIKey:
			cfg.APIURL = DefaultAPIKeyURL
		}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == nil {
		t := DefaultTemperature
		cfg.Temperature = &t
	}

	return cfg
}

type client struct {
	cfg        Config
	tokens     auth.TokenSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a chat client that authenticates through tokens.
func NewClient(cfg Config, tokens auth.TokenSource, logger *zap.Logger) (Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if tokens == nil {
		return nil, errors.New("invalid config: token source is required")
	}

	// Use provided logger or no-op
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg, logger)
	}

	return &client{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.Named("llmclient"),
	}, nil
}

// NewHTTPClient builds the HTTP client shared by the token and chat calls.
// Per-call deadlines come from TimeoutFor, so the client itself has none.
func NewHTTPClient(cfg Config, logger *zap.Logger) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.InsecureSkipVerify {
		if logger != nil {
			logger.Warn("TLS certificate verification disabled",
				zap.String("api_url", cfg.APIURL),
			)
		}
		transport.TLSClientConfig.InsecureSkipVerify = true
	}

	return &http.Client{Transport: transport}
}

// Close releases resources held by the client.
func (c *client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
