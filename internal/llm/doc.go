// Package llm adapts generative vision models into product classifiers. It
// supports Gemini and Anthropic providers behind a single Client interface
// with rate limiting, image caching and uniform provider errors.
package llm
