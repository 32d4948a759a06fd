package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/config"
)

// ClaudeModel calls the Anthropic Messages API. It has no schema mode, so
// the prompt alone carries the output format.
type ClaudeModel struct {
	client anthropic.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

func NewClaude(cfg config.LLMConfig, logger *zap.Logger) *ClaudeModel {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ClaudeModel{
		client: anthropic.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("claude"),
	}
}

func (c *ClaudeModel) Name() string { return ProviderClaude }

func (c *ClaudeModel) Generate(ctx context.Context, req Request) (string, error) {
	req = withDefaults(req, c.cfg)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(float64(*req.Temperature)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.logger.Debug("claude response received",
		zap.String("model", c.cfg.Model),
		zap.String("stop_reason", string(resp.StopReason)),
		zap.Int("chars", text.Len()))
	return text.String(), nil
}
