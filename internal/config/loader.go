package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/user/llm-gateway-proxy/internal/pkg/paths"
)

// Load reads the YAML config file at path (if it exists), layers
// LLM_PROXY_*/LOG_LEVEL environment overrides on top, and validates the
// result. An empty or missing path yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := DefaultConfig()
	cfg.Database.Path = paths.GetDBPath()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// no config file: defaults + env overrides only
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env file from the project root.
func loadDotEnv() {
	envFile := filepath.Join(paths.GetBasePath(), ".env")
	data, err := os.ReadFile(envFile)
	if err != nil {
		return // .env file is optional
	}

	// Simple .env parser: KEY=VALUE lines
	for _, line := range splitLines(string(data)) {
		line = trimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}
		if idx := indexOf(line, '='); idx > 0 {
			key := trimSpace(line[:idx])
			val := trimSpace(line[idx+1:])
			// Remove surrounding quotes
			val = trimQuotes(val)
			// Only set if not already set (env vars take precedence)
			if os.Getenv(key) == "" {
				os.Setenv(key, val)
			}
		}
	}
}

// applyEnvOverrides applies LLM_PROXY_* environment overrides to config,
// highest priority after the YAML file.
func applyEnvOverrides(cfg *Config) {
	cfg.ProxySettings.Server.Host = getEnvStr("LLM_PROXY_HOST", cfg.ProxySettings.Server.Host)
	cfg.ProxySettings.Server.Port = getEnvInt("LLM_PROXY_PORT", cfg.ProxySettings.Server.Port)
	cfg.RouterSettings.NumRetries = getEnvInt("LLM_PROXY_NUM_RETRIES", cfg.RouterSettings.NumRetries)
	cfg.LogLevel = getEnvStr("LOG_LEVEL", cfg.LogLevel)
	cfg.GeneralSettings.EnableResponsesEndpoint = getEnvBool(
		"LLM_PROXY_ENABLE_RESPONSES_ENDPOINT", cfg.GeneralSettings.EnableResponsesEndpoint)

	if dbPath := os.Getenv("LLM_PROXY_DB"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	cfg.LogRotation.MaxSizeMB = getEnvInt("LLM_PROXY_LOG_MAX_SIZE_MB", cfg.LogRotation.MaxSizeMB)
	cfg.LogRotation.MaxBackups = getEnvInt("LLM_PROXY_LOG_MAX_BACKUPS", cfg.LogRotation.MaxBackups)
	cfg.LogRotation.MaxAgeDays = getEnvInt("LLM_PROXY_LOG_MAX_AGE_DAYS", cfg.LogRotation.MaxAgeDays)
	cfg.LogRotation.Compress = getEnvBool("LLM_PROXY_LOG_COMPRESS", cfg.LogRotation.Compress)
}

// String utility functions (avoiding external dependencies, matching the
// style of the rest of this package's .env parsing).

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			line := s[start:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			lines = append(lines, line)
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func trimSpace(s string) string {
	start := 0
	end := len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func indexOf(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
