package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/config"
)

// GeminiModel calls the Gemini API. A request schema switches the model to
// JSON output constrained by that schema.
type GeminiModel struct {
	client *genai.Client
	cfg    config.LLMConfig
	logger *zap.Logger
}

func NewGemini(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiModel, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiModel{client: client, cfg: cfg, logger: logger.Named("gemini")}, nil
}

func (g *GeminiModel) Name() string { return ProviderGemini }

func (g *GeminiModel) Generate(ctx context.Context, req Request) (string, error) {
	req = withDefaults(req, g.cfg)

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(*req.Temperature),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Schema) > 0 {
		schema, err := toGenaiSchema(req.Schema)
		if err != nil {
			g.logger.Warn("ignoring response schema", zap.Error(err))
		} else {
			gc.ResponseMIMEType = "application/json"
			gc.ResponseSchema = schema
		}
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, gc)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("empty response from Gemini API")
	}

	text := resp.Text()
	g.logger.Debug("gemini response received",
		zap.String("model", g.cfg.Model),
		zap.Int("chars", len(text)))
	return text, nil
}

func toGenaiSchema(s Schema) (*genai.Schema, error) {
	out := &genai.Schema{}

	if t, ok := s["type"].(string); ok {
		switch strings.ToLower(t) {
		case "object":
			out.Type = genai.TypeObject
		case "array":
			out.Type = genai.TypeArray
		case "string":
			out.Type = genai.TypeString
		case "number":
			out.Type = genai.TypeNumber
		case "integer":
			out.Type = genai.TypeInteger
		case "boolean":
			out.Type = genai.TypeBoolean
		default:
			return nil, fmt.Errorf("unsupported schema type %q", t)
		}
	}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	if e, ok := s["enum"].([]string); ok {
		out.Enum = e
	}
	if r, ok := s["required"].([]string); ok {
		out.Required = r
	}
	if items, ok := s["items"].(Schema); ok {
		is, err := toGenaiSchema(items)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out.Items = is
	}
	if props, ok := s["properties"].(map[string]Schema); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			ps, err := toGenaiSchema(p)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", name, err)
			}
			out.Properties[name] = ps
		}
	}
	return out, nil
}
