// Package config loads the proxy's static configuration: the model list and
// routing policy read from a YAML file, with ambient server/log settings
// overridable via LLM_PROXY_* environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/user/llm-gateway-proxy/internal/models"
)

// Config holds all application configuration.
type Config struct {
	ModelList       []ModelEntry    `yaml:"model_list"`
	RouterSettings  RouterSettings  `yaml:"router_settings"`
	ProxySettings   ProxySettings   `yaml:"proxy_settings"`
	GeneralSettings GeneralSettings `yaml:"general_settings"`

	LogLevel    string            `yaml:"log_level,omitempty"`
	Database    DatabaseConfig    `yaml:"-"`
	LogRotation LogRotationConfig `yaml:"log_rotation,omitempty"`
}

// ModelEntry is one entry of model_list: a name the client requests plus the
// backend parameters used to reach it.
type ModelEntry struct {
	ModelName   string      `yaml:"model_name"`
	ModelParams ModelParams `yaml:"model_params"`
}

// ModelParams are the backend-reaching parameters of one model_list entry.
type ModelParams struct {
	APIBase           string `yaml:"api_base"`
	APIKey            string `yaml:"api_key,omitempty"`
	RequestTimeout    int    `yaml:"request_timeout,omitempty"`
	TargetModel       string `yaml:"target_model,omitempty"`
	SupportsReasoning bool   `yaml:"supports_reasoning,omitempty"`
}

// RouterSettings controls retry count and static failover chains.
type RouterSettings struct {
	NumRetries int `yaml:"num_retries"`
	// Fallbacks is a list of single-key maps, each mapping one primary
	// model name to its ordered list of fallback model names.
	Fallbacks []map[string][]string `yaml:"fallbacks,omitempty"`
}

// ProxySettings holds the HTTP server's bind configuration.
type ProxySettings struct {
	Server ServerSettings `yaml:"server"`
}

// ServerSettings is proxy_settings.server.
type ServerSettings struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GeneralSettings are top-level feature toggles.
type GeneralSettings struct {
	EnableResponsesEndpoint bool `yaml:"enable_responses_endpoint"`
}

// LogRotationConfig holds log rotation settings powered by lumberjack.
type LogRotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb,omitempty"`
	MaxBackups int  `yaml:"max_backups,omitempty"`
	MaxAgeDays int  `yaml:"max_age_days,omitempty"`
	Compress   bool `yaml:"compress,omitempty"`
}

// DatabaseConfig holds database configuration. Not part of the YAML schema;
// set from paths.GetDBPath() and LLM_PROXY_DB.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		RouterSettings: RouterSettings{NumRetries: 2},
		ProxySettings: ProxySettings{
			Server: ServerSettings{Host: "0.0.0.0", Port: 8000},
		},
		GeneralSettings: GeneralSettings{EnableResponsesEndpoint: false},
		LogLevel:        "INFO",
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		LogRotation: LogRotationConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ProxySettings.Server.Port < 1 || c.ProxySettings.Server.Port > 65535 {
		return &ConfigError{Field: "proxy_settings.server.port", Message: "must be between 1 and 65535"}
	}
	if c.RouterSettings.NumRetries < 1 {
		return &ConfigError{Field: "router_settings.num_retries", Message: "must be at least 1"}
	}
	for _, m := range c.ModelList {
		if m.ModelName == "" {
			return &ConfigError{Field: "model_list", Message: "model_name is required"}
		}
		if m.ModelParams.APIBase == "" {
			return &ConfigError{Field: "model_list." + m.ModelName, Message: "model_params.api_base is required"}
		}
	}
	return nil
}

// Backends converts the static model_list into registry Backend values.
func (c *Config) Backends() []*models.Backend {
	out := make([]*models.Backend, 0, len(c.ModelList))
	for _, m := range c.ModelList {
		p := m.ModelParams
		out = append(out, &models.Backend{
			Name:              m.ModelName,
			BaseURL:           p.APIBase,
			APIKey:            p.APIKey,
			TimeoutSeconds:    p.RequestTimeout,
			TargetModel:       p.TargetModel,
			SupportsReasoning: p.SupportsReasoning,
		})
	}
	return out
}

// FallbackMap flattens router_settings.fallbacks into a primary-name to
// ordered-fallback-names map, the shape registry.LoadDefaults expects.
func (c *Config) FallbackMap() map[string][]string {
	out := make(map[string][]string, len(c.RouterSettings.Fallbacks))
	for _, entry := range c.RouterSettings.Fallbacks {
		for primary, names := range entry {
			out[primary] = names
		}
	}
	return out
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Helper functions for environment variable parsing.

func getEnvStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	lower := strings.ToLower(v)
	return lower == "true" || lower == "1" || lower == "yes" || lower == "on"
}
