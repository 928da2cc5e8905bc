package llm

import (
	"context"
	"time"
)

// Client defines the interface for generative model providers.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is one generation call. Images are sent before the prompt text.
type Request struct {
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int
	// Grounded asks the provider to consult web search when it can.
	Grounded bool
	// JSON asks for a bare JSON response.
	JSON bool
}

// Image is an inline image attachment.
type Image struct {
	MIMEType string
	Data     []byte
}

// Config configures a provider client.
type Config struct {
	Provider       string        `mapstructure:"provider"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	FallbackModel  string        `mapstructure:"fallback_model"`
	BaseURL        string        `mapstructure:"base_url"`
	RateLimit      int           `mapstructure:"rate_limit"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ImageCacheTTL  time.Duration `mapstructure:"image_cache_ttl"`
}
