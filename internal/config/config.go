package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/dbagent/internal/audit"
	"github.com/haasonsaas/dbagent/internal/safety"
)

// Config is the root configuration for a dbagent instance.
type Config struct {
	Agent    AgentSettings  `yaml:"agent"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Audit    audit.Config   `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AgentSettings is the reasoning loop's tunable object.
type AgentSettings struct {
	MaxIterations    int                `yaml:"max_iterations"`
	MaxHistory       int                `yaml:"max_history"`
	MaxTokens        int                `yaml:"max_tokens"`
	SafetyLevel      safety.SafetyLevel `yaml:"safety_level"`
	ReadOnly         bool               `yaml:"read_only"`
	OperationTimeout time.Duration      `yaml:"operation_timeout"`
	ToolTimeout      time.Duration      `yaml:"tool_timeout"`
}

// DatabaseConfig configures the target Postgres-wire-compatible database.
// Field names mirror internal/dbpg.Config so Load's result can be handed to
// dbpg.New directly.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// LLMConfig selects and configures the completion provider (C7).
type LLMConfig struct {
	Provider  string           `yaml:"provider"` // "anthropic", "openai", or "bedrock"
	Anthropic AnthropicConfig  `yaml:"anthropic"`
	OpenAI    OpenAIConfig     `yaml:"openai"`
	Bedrock   BedrockLLMConfig `yaml:"bedrock"`
}

type AnthropicConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type OpenAIConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type BedrockLLMConfig struct {
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	SessionToken    string        `yaml:"session_token"`
	DefaultModel    string        `yaml:"default_model"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// LoggingConfig configures the process-wide slog handler (not the audit sink).
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultSettings returns default agent settings.
func DefaultSettings() AgentSettings {
	return AgentSettings{
		MaxIterations:    10,
		MaxHistory:       50,
		MaxTokens:        8000,
		SafetyLevel:      safety.LevelBalanced,
		OperationTimeout: 30 * time.Second,
		ToolTimeout:      30 * time.Second,
	}
}

// Load reads and validates a YAML (or JSON5) config file, resolving
// $include directives and environment variable expansion (LoadRaw), then
// applies defaults and env-var overrides.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := DefaultSettings()
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = defaults.MaxIterations
	}
	if cfg.Agent.MaxHistory == 0 {
		cfg.Agent.MaxHistory = defaults.MaxHistory
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = defaults.MaxTokens
	}
	if cfg.Agent.SafetyLevel == "" {
		cfg.Agent.SafetyLevel = defaults.SafetyLevel
	}
	if cfg.Agent.OperationTimeout == 0 {
		cfg.Agent.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = defaults.ToolTimeout
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnectTimeout == 0 {
		cfg.Database.ConnectTimeout = 10 * time.Second
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if !cfg.Audit.Enabled && cfg.Audit.Output == "" {
		cfg.Audit = audit.DefaultConfig()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DBAGENT_DATABASE_URL")); v != "" {
		// A bare DSN-style override is handled by the caller reparsing it;
		// individual fields still take precedence when set explicitly.
		_ = v
	}
	if v := strings.TrimSpace(os.Getenv("DBAGENT_DB_PASSWORD")); v != "" {
		cfg.Database.Password = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" && cfg.LLM.Anthropic.APIKey == "" {
		cfg.LLM.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.LLM.OpenAI.APIKey == "" {
		cfg.LLM.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("DBAGENT_SAFETY_LEVEL")); v != "" {
		cfg.Agent.SafetyLevel = safety.SafetyLevel(v)
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if cfg.Agent.MaxHistory <= 0 {
		return fmt.Errorf("agent.max_history must be positive")
	}
	if cfg.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent.max_tokens must be positive")
	}
	switch cfg.Agent.SafetyLevel {
	case safety.LevelReadOnly, safety.LevelBalanced, safety.LevelPermissive:
	default:
		return fmt.Errorf("agent.safety_level must be one of read_only, balanced, permissive, got %q", cfg.Agent.SafetyLevel)
	}
	switch cfg.LLM.Provider {
	case "anthropic", "openai", "bedrock":
	default:
		return fmt.Errorf("llm.provider must be one of anthropic, openai, bedrock, got %q", cfg.LLM.Provider)
	}
	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	return nil
}
