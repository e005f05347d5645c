// Package config loads the brigade CLI configuration. It supports an optional
// YAML file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BRIGADE_KNOWLEDGE_BACKEND.
const EnvPrefix = "BRIGADE"

// Knowledge backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Model providers.
const (
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds all configuration for the brigade CLI.
type Config struct {
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Model        ModelConfig        `mapstructure:"model"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// OrchestratorConfig mirrors orchestrator.Config.
type OrchestratorConfig struct {
	MaxConcurrentTasks       int           `mapstructure:"max_concurrent_tasks"`
	SerializePerAgent        bool          `mapstructure:"serialize_per_agent"`
	EnforceDeadlines         bool          `mapstructure:"enforce_deadlines"`
	CheckConditionsOnResolve bool          `mapstructure:"check_conditions_on_resolve"`
	RenderDescriptions       bool          `mapstructure:"render_descriptions"`
	EventBufferSize          int           `mapstructure:"event_buffer_size"`
	WorkflowTimeout          time.Duration `mapstructure:"workflow_timeout"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// KnowledgeConfig selects the knowledge store backend.
type KnowledgeConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ModelConfig selects the text-completion provider used for memory extraction.
type ModelConfig struct {
	Provider        string  `mapstructure:"provider"`
	Name            string  `mapstructure:"name"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int64   `mapstructure:"max_tokens"`
	MaxCalls        int     `mapstructure:"max_calls"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string  `mapstructure:"openai_api_key"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration. Precedence (highest to lowest):
//  1. Environment variables (BRIGADE_*, ANTHROPIC_API_KEY, OPENAI_API_KEY)
//  2. The YAML file at path, if path is not empty
//  3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("model.anthropic_api_key", EnvPrefix+"_MODEL_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("model.openai_api_key", EnvPrefix+"_MODEL_OPENAI_API_KEY", "OPENAI_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestrator.max_concurrent_tasks", 10)
	v.SetDefault("orchestrator.serialize_per_agent", true)
	v.SetDefault("orchestrator.enforce_deadlines", false)
	v.SetDefault("orchestrator.check_conditions_on_resolve", false)
	v.SetDefault("orchestrator.render_descriptions", false)
	v.SetDefault("orchestrator.event_buffer_size", 64)
	v.SetDefault("orchestrator.workflow_timeout", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("knowledge.backend", BackendMemory)
	v.SetDefault("knowledge.redis.addr", "localhost:6379")
	v.SetDefault("knowledge.redis.password", "")
	v.SetDefault("knowledge.redis.db", 0)
	v.SetDefault("knowledge.redis.pool_size", 10)
	v.SetDefault("knowledge.redis.key_prefix", "brigade:knowledge:")

	v.SetDefault("model.provider", ProviderMock)
	v.SetDefault("model.name", "")
	v.SetDefault("model.temperature", 0.3)
	v.SetDefault("model.max_tokens", 500)
	v.SetDefault("model.max_calls", 0)
	v.SetDefault("model.anthropic_api_key", "")
	v.SetDefault("model.openai_api_key", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "brigade")
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Orchestrator.MaxConcurrentTasks < 1 {
		errs = append(errs, fmt.Errorf("orchestrator.max_concurrent_tasks must be positive, got %d", c.Orchestrator.MaxConcurrentTasks))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}
	switch c.Knowledge.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("knowledge.backend must be %s or %s, got %q", BackendMemory, BackendRedis, c.Knowledge.Backend))
	}
	switch c.Model.Provider {
	case ProviderMock:
	case ProviderAnthropic:
		if c.Model.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("model.anthropic_api_key (or ANTHROPIC_API_KEY) is required for provider anthropic"))
		}
	case ProviderOpenAI:
		if c.Model.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("model.openai_api_key (or OPENAI_API_KEY) is required for provider openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("model.provider must be mock, anthropic or openai, got %q", c.Model.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
