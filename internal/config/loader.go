package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"aigc-bridge/internal/adapter"
	"aigc-bridge/internal/llm"
)

const (
	defaultConfigName = "config"
	defaultConfigType = "yaml"
	envPrefix         = "AIGC_BRIDGE"
)

// Load reads configuration in priority order (highest first):
//  1. AIGC_BRIDGE_* environment variables (e.g. AIGC_BRIDGE_OAUTH_CLIENT_SECRET)
//  2. the YAML file at configPath, or config.yaml in . / ./configs / /etc/aigc-bridge
//  3. built-in defaults
//
// It returns the config and the file it was read from ("" when none was found).
func Load(configPath string) (*Configuration, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(defaultConfigName)
	v.SetConfigType(defaultConfigType)
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/aigc-bridge")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, "", &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read config file: %w", err),
			}
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, v.ConfigFileUsed(), nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", string(llm.BackendOAuth))

	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.tenant_id", "")
	v.SetDefault("oauth.authority", "")
	v.SetDefault("api_key", "")

	v.SetDefault("api.url", "")
	v.SetDefault("api.model", llm.DefaultModel)
	v.SetDefault("api.temperature", llm.DefaultTemperature)
	v.SetDefault("api.top_k", 0)
	v.SetDefault("api.top_p", 0.0)
	v.SetDefault("api.insecure_skip_verify", false)

	reasoning := adapter.DefaultReasoningFormat()
	v.SetDefault("reasoning.enabled", reasoning.Enabled)
	v.SetDefault("reasoning.open", reasoning.Open)
	v.SetDefault("reasoning.close", reasoning.Close)

	v.SetDefault("server.port", "8080")
	// Must outlast the longest per-model chat timeout.
	v.SetDefault("server.request_timeout_seconds", 660)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.env", "")
}
