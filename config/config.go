// Package config provides configuration for the orchestrator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the orchestrator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Event bus
	NATSURL        string // empty = in-process bus
	EventPrefix    string
	MaxRetries     int
	RetryDelayBase time.Duration

	// Downstream agents
	AgentBaseURL string
	AgentTimeout time.Duration
	StepTimeout  time.Duration

	// Rate limiting (fixed window, reset every minute)
	RateLimitRequests int
	RateLimitTokens   int

	// Sessions
	SessionTTL     time.Duration
	MaxRecentTurns int

	// Auth: if set, API requests must carry a signed tenant token.
	AuthSecret string

	// Logging
	LogLevel string
}

// fileConfig mirrors Config for YAML loading; durations are plain
// millisecond (or hour, for the TTL) integers.
type fileConfig struct {
	HTTPPort          int    `yaml:"http_port"`
	DatabaseURL       string `yaml:"database_url"`
	NATSURL           string `yaml:"nats_url"`
	EventPrefix       string `yaml:"event_prefix"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelayBaseMs  int    `yaml:"retry_delay_base_ms"`
	AgentBaseURL      string `yaml:"agent_base_url"`
	AgentTimeoutMs    int    `yaml:"agent_timeout_ms"`
	StepTimeoutMs     int    `yaml:"step_timeout_ms"`
	RateLimitRequests int    `yaml:"rate_limit_rpm"`
	RateLimitTokens   int    `yaml:"rate_limit_tpm"`
	SessionTTLHours   int    `yaml:"session_ttl_h"`
	MaxRecentTurns    int    `yaml:"max_recent_turns"`
	AuthSecret        string `yaml:"auth_secret"`
	LogLevel          string `yaml:"log_level"`
}

// Load loads configuration from an optional YAML file (CONFIG_FILE)
// overlaid by environment variables. Env always wins.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:          8080,
		DatabaseURL:       "file:orchestrator.db?cache=shared&mode=rwc",
		EventPrefix:       "events",
		MaxRetries:        3,
		RetryDelayBase:    time.Second,
		AgentBaseURL:      "http://localhost:9090",
		AgentTimeout:      60 * time.Second,
		StepTimeout:       30 * time.Second,
		RateLimitRequests: 60,
		RateLimitTokens:   90000,
		SessionTTL:        24 * time.Hour,
		MaxRecentTurns:    10,
		LogLevel:          "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		applyFile(cfg, &fc)
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.EventPrefix = getEnv("EVENT_PREFIX", cfg.EventPrefix)
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelayBase = getEnvDurationMs("RETRY_DELAY_BASE_MS", cfg.RetryDelayBase)
	cfg.AgentBaseURL = getEnv("AGENT_BASE_URL", cfg.AgentBaseURL)
	cfg.AgentTimeout = getEnvDurationMs("AGENT_TIMEOUT_MS", cfg.AgentTimeout)
	cfg.StepTimeout = getEnvDurationMs("STEP_TIMEOUT_MS", cfg.StepTimeout)
	cfg.RateLimitRequests = getEnvInt("RATE_LIMIT_RPM", cfg.RateLimitRequests)
	cfg.RateLimitTokens = getEnvInt("RATE_LIMIT_TPM", cfg.RateLimitTokens)
	if h := getEnvInt("SESSION_TTL_H", 0); h > 0 {
		cfg.SessionTTL = time.Duration(h) * time.Hour
	}
	cfg.MaxRecentTurns = getEnvInt("MAX_RECENT_TURNS", cfg.MaxRecentTurns)
	cfg.AuthSecret = getEnv("AUTH_SECRET", cfg.AuthSecret)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.HTTPPort != 0 {
		cfg.HTTPPort = fc.HTTPPort
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.NATSURL != "" {
		cfg.NATSURL = fc.NATSURL
	}
	if fc.EventPrefix != "" {
		cfg.EventPrefix = fc.EventPrefix
	}
	if fc.MaxRetries != 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	if fc.RetryDelayBaseMs != 0 {
		cfg.RetryDelayBase = time.Duration(fc.RetryDelayBaseMs) * time.Millisecond
	}
	if fc.AgentBaseURL != "" {
		cfg.AgentBaseURL = fc.AgentBaseURL
	}
	if fc.AgentTimeoutMs != 0 {
		cfg.AgentTimeout = time.Duration(fc.AgentTimeoutMs) * time.Millisecond
	}
	if fc.StepTimeoutMs != 0 {
		cfg.StepTimeout = time.Duration(fc.StepTimeoutMs) * time.Millisecond
	}
	if fc.RateLimitRequests != 0 {
		cfg.RateLimitRequests = fc.RateLimitRequests
	}
	if fc.RateLimitTokens != 0 {
		cfg.RateLimitTokens = fc.RateLimitTokens
	}
	if fc.SessionTTLHours != 0 {
		cfg.SessionTTL = time.Duration(fc.SessionTTLHours) * time.Hour
	}
	if fc.MaxRecentTurns != 0 {
		cfg.MaxRecentTurns = fc.MaxRecentTurns
	}
	if fc.AuthSecret != "" {
		cfg.AuthSecret = fc.AuthSecret
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDurationMs(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
