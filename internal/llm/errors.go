package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Veraticus/tierkeeper/internal/common"
)

// ErrorKind classifies a ProviderError.
type ErrorKind string

// Provider error kinds.
const (
	KindTimeout              ErrorKind = "timeout"
	KindNetwork              ErrorKind = "network"
	KindMalformed            ErrorKind = "malformed"
	KindRateLimit            ErrorKind = "rate_limit"
	KindUnrecognized         ErrorKind = "unrecognized"
	KindInsufficientEvidence ErrorKind = "insufficient_evidence"
	KindInvalidInput         ErrorKind = "invalid_input"
	KindProvider             ErrorKind = "provider"
)

// ProviderError is the single failure type returned by classifiers.
type ProviderError struct {
	Err   error
	Kind  ErrorKind
	Cause string
}

func (e *ProviderError) Error() string {
	if e.Cause == "" {
		return fmt.Sprintf("provider %s error", e.Kind)
	}
	return fmt.Sprintf("provider %s error: %s", e.Kind, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches common.ErrClassificationFailed, and common.ErrRateLimit for rate limit errors.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case common.ErrClassificationFailed:
		return true
	case common.ErrRateLimit:
		return e.Kind == KindRateLimit
	}
	return false
}

func newProviderError(kind ErrorKind, cause string, err error) *ProviderError {
	return &ProviderError{Kind: kind, Cause: cause, Err: err}
}

// AsProviderError returns err as a *ProviderError, wrapping foreign errors
// according to what they look like.
func AsProviderError(err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newProviderError(KindTimeout, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return newProviderError(KindTimeout, "canceled", err)
	case errors.Is(err, common.ErrRateLimit):
		return newProviderError(KindRateLimit, err.Error(), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return newProviderError(KindTimeout, netErr.Error(), err)
		}
		return newProviderError(KindNetwork, netErr.Error(), err)
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return newProviderError(KindRateLimit, msg, err)
	}
	return newProviderError(KindProvider, msg, err)
}

// statusError maps an HTTP status from a provider to a ProviderError.
func statusError(provider string, status int, body string) *ProviderError {
	if len(body) > 200 {
		body = body[:200]
	}
	cause := fmt.Sprintf("%s API status %d: %s", provider, status, body)
	switch {
	case status == 429:
		return newProviderError(KindRateLimit, cause, common.ErrRateLimit)
	case status == 408 || status == 504:
		return newProviderError(KindTimeout, cause, nil)
	case status >= 500:
		return newProviderError(KindNetwork, cause, nil)
	default:
		return newProviderError(KindProvider, cause, nil)
	}
}
