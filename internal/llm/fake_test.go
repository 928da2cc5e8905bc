package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedClient answers text-only requests with brand and image requests with visual.
type scriptedClient struct {
	brand  func(req Request) (string, error)
	visual func(req Request) (string, error)
	calls  []Request
	mu     sync.Mutex
}

func (c *scriptedClient) Generate(_ context.Context, req Request) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()

	if len(req.Images) > 0 {
		if c.visual == nil {
			return "", newProviderError(KindProvider, "no visual script", nil)
		}
		return c.visual(req)
	}
	if c.brand == nil {
		return "", newProviderError(KindProvider, "no brand script", nil)
	}
	return c.brand(req)
}

func (c *scriptedClient) requests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.calls...)
}

func reply(s string) func(Request) (string, error) {
	return func(Request) (string, error) { return s, nil }
}

func fail(kind ErrorKind) func(Request) (string, error) {
	return func(Request) (string, error) { return "", newProviderError(kind, "scripted", nil) }
}

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

// newImageServer serves a JPEG for any path except those containing "missing".
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBytes)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T) *ImageFetcher {
	t.Helper()
	f := NewImageFetcher(2*time.Second, time.Minute, nil)
	f.retry.InitialDelay = time.Millisecond
	t.Cleanup(f.Close)
	return f
}
