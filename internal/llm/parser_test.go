package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanMarkdownWrapper(tt.input))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type answer struct {
		Category   string  `json:"category"`
		Confidence flexInt `json:"confidence"`
	}

	t.Run("fenced", func(t *testing.T) {
		var a answer
		require.NoError(t, decodeJSON("```json\n{\"category\":\"NONE\",\"confidence\":12}\n```", &a))
		assert.Equal(t, "NONE", a.Category)
		assert.Equal(t, flexInt(12), a.Confidence)
	})

	t.Run("prose around object", func(t *testing.T) {
		var a answer
		require.NoError(t, decodeJSON("Here you go: {\"category\":\"X\",\"confidence\":\"80\"} hope it helps", &a))
		assert.Equal(t, "X", a.Category)
		assert.Equal(t, flexInt(80), a.Confidence)
	})

	t.Run("fractional and percent confidence", func(t *testing.T) {
		var a answer
		require.NoError(t, decodeJSON(`{"confidence": 71.6}`, &a))
		assert.Equal(t, flexInt(72), a.Confidence)
		require.NoError(t, decodeJSON(`{"confidence": "45%"}`, &a))
		assert.Equal(t, flexInt(45), a.Confidence)
	})

	t.Run("malformed", func(t *testing.T) {
		var a answer
		err := decodeJSON("I cannot help with that", &a)
		require.Error(t, err)
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindMalformed, pe.Kind)
	})

	t.Run("empty", func(t *testing.T) {
		var a answer
		err := decodeJSON("   ", &a)
		var pe *ProviderError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, KindMalformed, pe.Kind)
	})
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0, clampConfidence(-5))
	assert.Equal(t, 55, clampConfidence(55))
	assert.Equal(t, 100, clampConfidence(130))
}
