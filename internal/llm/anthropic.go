package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const anthropicBaseURL = "https://api.anthropic.com"

// anthropicClient implements Client for the Anthropic Messages API.
type anthropicClient struct {
	httpClient    *http.Client
	logger        *slog.Logger
	apiKey        string
	model         string
	fallbackModel string
	baseURL       string
	temperature   float64
	maxTokens     int
}

func newAnthropicClient(cfg Config, logger *slog.Logger) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &anthropicClient{
		apiKey:        cfg.APIKey,
		model:         model,
		fallbackModel: cfg.FallbackModel,
		baseURL:       baseURL,
		temperature:   temperature,
		maxTokens:     maxTokens,
		logger:        logger,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Generate sends one message and returns the concatenated text blocks.
func (c *anthropicClient) Generate(ctx context.Context, req Request) (string, error) {
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

func (c *anthropicClient) generate(ctx context.Context, model string, req Request) (string, error) {
	content := make([]map[string]any, 0, len(req.Images)+1)
	for _, img := range req.Images {
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": img.MIMEType,
				"data":       base64.StdEncoding.EncodeToString(img.Data),
			},
		})
	}
	content = append(content, map[string]any{"type": "text", "text": req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	requestBody := map[string]any{
		"model":       model,
		"max_tokens":  maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": content,
			},
		},
	}
	if req.System != "" {
		requestBody["system"] = req.System
	}
	if req.Grounded {
		requestBody["tools"] = []map[string]any{
			{"type": "web_search_20250305", "name": "web_search", "max_uses": 3},
		}
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", newProviderError(KindInvalidInput, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return "", newProviderError(KindInvalidInput, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", AsProviderError(fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", AsProviderError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError("anthropic", resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", newProviderError(KindMalformed, "failed to parse response envelope", err)
	}

	var sb strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", newProviderError(KindMalformed, "no text content in response", errors.New(response.StopReason))
	}

	return sb.String(), nil
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
