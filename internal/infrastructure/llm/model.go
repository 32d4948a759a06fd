// Package llm adapts the supported generative model APIs to one interface.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/config"
)

// Provider names accepted in llm.provider.
const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

// Schema is a JSON-schema shaped description of the expected reply.
// Supported keys: type, description, enum, required, items, properties.
type Schema map[string]interface{}

// Request is one single-turn generation. A nil Temperature uses
// llm.temperature; zero is a valid setting.
type Request struct {
	System      string
	Prompt      string
	Schema      Schema
	Temperature *float32
	MaxTokens   int
}

// Model produces raw text for a prompt. Implementations do not retry.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

func (f ModelFunc) Name() string { return "func" }

// New builds the provider selected in cfg, rate limited to
// cfg.RequestsPerMinute when that is positive.
func New(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (Model, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm.api_key is required for provider %s", cfg.Provider)
	}

	var (
		m   Model
		err error
	)
	switch cfg.Provider {
	case ProviderGemini:
		m, err = NewGemini(ctx, cfg, logger)
	case ProviderClaude:
		m = NewClaude(cfg, logger)
	case ProviderOpenAI:
		m = NewOpenAI(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		m = NewRateLimited(m, cfg.RequestsPerMinute)
	}
	return m, nil
}

func withDefaults(req Request, cfg config.LLMConfig) Request {
	if req.Temperature == nil {
		t := cfg.Temperature
		req.Temperature = &t
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 2048
	}
	return req
}
