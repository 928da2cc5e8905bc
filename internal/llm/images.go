package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/tierkeeper/internal/common"
)

const (
	defaultImageTimeout = 20 * time.Second
	maxImageBytes       = 10 << 20
)

// ImageFetcher downloads product images for multimodal requests.
type ImageFetcher struct {
	httpClient *http.Client
	cache      *imageCache
	logger     *slog.Logger
	retry      common.RetryOptions
}

// NewImageFetcher creates a fetcher with the given per-image timeout and cache TTL.
func NewImageFetcher(timeout, cacheTTL time.Duration, logger *slog.Logger) *ImageFetcher {
	if timeout <= 0 {
		timeout = defaultImageTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:  newImageCache(cacheTTL),
		logger: logger,
		retry: common.RetryOptions{
			Logger:       logger,
			Op:           "fetch image",
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// Fetch downloads one image, served from cache when possible.
func (f *ImageFetcher) Fetch(ctx context.Context, url string) (Image, error) {
	if url == "" {
		return Image{}, fmt.Errorf("empty image URL")
	}
	if img, ok := f.cache.get(url); ok {
		return img, nil
	}

	var img Image
	err := common.WithRetry(ctx, func(ctx context.Context) error {
		var fetchErr error
		img, fetchErr = f.download(ctx, url)
		return fetchErr
	}, f.retry)
	if err != nil {
		return Image{}, err
	}

	f.cache.set(url, img)
	return img, nil
}

// FetchAll downloads up to limit images, skipping the ones that fail.
func (f *ImageFetcher) FetchAll(ctx context.Context, urls []string, limit int) []Image {
	var images []Image
	for _, url := range urls {
		if limit > 0 && len(images) >= limit {
			break
		}
		img, err := f.Fetch(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			f.logger.Warn("image fetch failed", "url", url, "error", err)
			continue
		}
		images = append(images, img)
	}
	return images
}

func (f *ImageFetcher) download(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Image{}, &common.RetryableError{Err: fmt.Errorf("image request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("image fetch status %d", resp.StatusCode)
		return Image{}, &common.RetryableError{Err: statusErr, Retryable: resp.StatusCode >= 500}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, &common.RetryableError{Err: fmt.Errorf("failed to read image: %w", err), Retryable: true}
	}
	if len(data) > maxImageBytes {
		return Image{}, &common.RetryableError{Err: errors.New("image too large")}
	}
	if len(data) == 0 {
		return Image{}, &common.RetryableError{Err: errors.New("empty image body")}
	}

	return Image{MIMEType: imageMIMEType(resp.Header.Get("Content-Type"), data), Data: data}, nil
}

func imageMIMEType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/jpeg"
}

// Close stops the cache janitor.
func (f *ImageFetcher) Close() {
	f.cache.Close()
}
