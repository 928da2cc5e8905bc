package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Veraticus/tierkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsProviderError(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want ErrorKind
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "rate limit sentinel", err: common.ErrRateLimit, want: KindRateLimit},
		{name: "429 text", err: errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED"), want: KindRateLimit},
		{name: "other", err: errors.New("boom"), want: KindProvider},
		{name: "already provider", err: newProviderError(KindMalformed, "x", nil), want: KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := AsProviderError(tt.err)
			require.NotNil(t, pe)
			assert.Equal(t, tt.want, pe.Kind)
		})
	}

	assert.Nil(t, AsProviderError(nil))
}

func TestProviderError_Is(t *testing.T) {
	rl := newProviderError(KindRateLimit, "slow down", nil)
	assert.ErrorIs(t, rl, common.ErrRateLimit)
	assert.ErrorIs(t, rl, common.ErrClassificationFailed)

	to := newProviderError(KindTimeout, "deadline", context.DeadlineExceeded)
	assert.NotErrorIs(t, to, common.ErrRateLimit)
	assert.ErrorIs(t, to, context.DeadlineExceeded)
	assert.Equal(t, "provider timeout error: deadline", to.Error())
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, KindRateLimit, statusError("x", 429, "").Kind)
	assert.Equal(t, KindTimeout, statusError("x", 504, "").Kind)
	assert.Equal(t, KindNetwork, statusError("x", 503, "").Kind)
	assert.Equal(t, KindProvider, statusError("x", 400, "bad").Kind)
}
