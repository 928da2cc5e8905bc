package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Veraticus/tierkeeper/internal/classification"
	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/Veraticus/tierkeeper/internal/model"
)

// MockClassifier classifies from the keyword table alone. It backs the
// "mock" provider for offline runs and stands in for a real provider in tests.
type MockClassifier struct {
	tables *classification.Tables
	// Failures makes Classify fail for the listed product ids.
	Failures map[string]error
	calls    []string
	mu       sync.Mutex
}

// NewMockClassifier creates a keyword-only classifier.
func NewMockClassifier(tables *classification.Tables) *MockClassifier {
	return &MockClassifier{
		tables:   tables,
		Failures: make(map[string]error),
	}
}

// Classify returns the best keyword match restricted to the AI categories.
func (m *MockClassifier) Classify(ctx context.Context, p model.Product) (model.ArchiveResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, p.ID)
	failure := m.Failures[p.ID]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return model.ArchiveResult{}, err
	}
	if failure != nil {
		return model.ArchiveResult{}, failure
	}

	match := m.tables.MatchKeywords(p.Name, nil)
	if !match.Matched() {
		return model.ArchiveResult{}, fmt.Errorf("%w: no keyword evidence for %q", common.ErrClassificationFailed, p.Name)
	}

	return model.ArchiveResult{
		Category:   match.Category,
		Confidence: match.Score,
		Reason:     "keywords: " + strings.Join(match.TextMatches, ", "),
		Brand:      classification.ExtractBrand(p.Name),
	}, nil
}

// Calls returns the product ids classified so far, in call order.
func (m *MockClassifier) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
