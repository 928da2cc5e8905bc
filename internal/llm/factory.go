package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewClient creates a provider client from configuration.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "gemini", "":
		return newGeminiClient(ctx, cfg, logger)
	case "anthropic":
		return newAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
