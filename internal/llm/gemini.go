package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// geminiModels is the slice of the genai Models service the client uses.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// geminiClient implements Client for the Gemini API.
type geminiClient struct {
	models        geminiModels
	logger        *slog.Logger
	model         string
	fallbackModel string
	temperature   float32
	maxTokens     int32
}

func newGeminiClient(ctx context.Context, cfg Config, logger *slog.Logger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiClientWithModels(client.Models, cfg, logger), nil
}

func newGeminiClientWithModels(models geminiModels, cfg Config, logger *slog.Logger) *geminiClient {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	temperature := float32(cfg.Temperature)
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := int32(cfg.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &geminiClient{
		models:        models,
		logger:        logger,
		model:         model,
		fallbackModel: cfg.FallbackModel,
		temperature:   temperature,
		maxTokens:     maxTokens,
	}
}

// Generate calls the primary model, then the fallback model when one is configured.
func (c *geminiClient) Generate(ctx context.Context, req Request) (string, error) {
	text, err := c.generate(ctx, c.model, req)
	if err == nil || c.fallbackModel == "" || c.fallbackModel == c.model || ctx.Err() != nil {
		return text, err
	}

	c.logger.Warn("primary model failed, trying fallback",
		"model", c.model,
		"fallback", c.fallbackModel,
		"error", err)
	return c.generate(ctx, c.fallbackModel, req)
}

func (c *geminiClient) generate(ctx context.Context, model string, req Request) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int32(req.MaxTokens)
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temperature),
		MaxOutputTokens: maxTokens,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	// Search grounding cannot be combined with a JSON response MIME type.
	switch {
	case req.Grounded:
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	case req.JSON:
		config.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", geminiError(err)
	}

	text := responseText(resp)
	if text == "" {
		return "", newProviderError(KindMalformed, "no text content in response", nil)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, apiErr.Status+" "+apiErr.Message)
	}
	return AsProviderError(err)
}
