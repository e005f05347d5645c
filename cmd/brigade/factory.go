package main

import (
	"fmt"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/brigade/agent"
	"github.com/hupe1980/brigade/config"
	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/knowledge"
	"github.com/hupe1980/brigade/knowledge/redis"
	"github.com/hupe1980/brigade/logging"
	"github.com/hupe1980/brigade/memory"
	"github.com/hupe1980/brigade/model"
	"github.com/hupe1980/brigade/model/anthropic"
	"github.com/hupe1980/brigade/model/openai"
)

// newLogger builds a structured logger writing to w.
func newLogger(cfg config.LoggingConfig, w io.Writer) (*logging.StructuredLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = cfg.Format
	lc.Output = w
	lc.Component = "brigade"
	return logging.NewLogger(lc), nil
}

// newKnowledgeStore returns the configured store and a close function.
func newKnowledgeStore(cfg config.KnowledgeConfig) (core.KnowledgeStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store, err := redis.NewFromConfig(redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("knowledge store: %w", err)
		}
		return store, store.Close, nil
	default:
		return knowledge.NewInMemoryStore(), func() error { return nil }, nil
	}
}

// newModel returns the configured text-completion model.
func newModel(cfg config.ModelConfig) model.Model {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.AnthropicAPIKey
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
		})
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.OpenAIAPIKey
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
		})
	default:
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name)
	}
}

// builtinAgents returns the agents registered by the run command.
func builtinAgents(cfg config.ModelConfig, logger logging.Logger) []core.Agent {
	extractor := memory.NewExtractor(newModel(cfg), func(o *memory.Options) {
		o.ModelName = cfg.Name
		o.Temperature = cfg.Temperature
		o.MaxTokens = cfg.MaxTokens
		o.MaxCalls = cfg.MaxCalls
		o.Logger = logger
	})

	strategist := agent.NewStrategyAgent("strategist")
	auditor := agent.NewAllergenAgent("menu-auditor")
	keeper := agent.NewMemoryAgent("memory-keeper", extractor)
	strategist.SetLogger(logger)
	auditor.SetLogger(logger)
	keeper.SetLogger(logger)
	return []core.Agent{strategist, auditor, keeper}
}
