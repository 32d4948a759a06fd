package llm

import (
	"context"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/config"
)

// OpenAIModel calls the chat completions API. A request schema turns on
// JSON object mode.
type OpenAIModel struct {
	client *openai.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

func NewOpenAI(cfg config.LLMConfig, logger *zap.Logger) *OpenAIModel {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &OpenAIModel{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger.Named("openai"),
	}
}

func (o *OpenAIModel) Name() string { return ProviderOpenAI }

func (o *OpenAIModel) Generate(ctx context.Context, req Request) (string, error) {
	req = withDefaults(req, o.cfg)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	// go-openai omits a zero temperature, which the API reads as 1.
	temperature := *req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}
	cr := openai.ChatCompletionRequest{
		Model:               o.cfg.Model,
		Messages:            messages,
		Temperature:         temperature,
		MaxCompletionTokens: req.MaxTokens,
	}
	if len(req.Schema) > 0 {
		cr.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := o.client.CreateChatCompletion(ctx, cr)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	o.logger.Debug("openai response received",
		zap.String("model", o.cfg.Model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)))
	return resp.Choices[0].Message.Content, nil
}
