package ai

import (
	"context"
	"errors"
	"fmt"
)

// ProviderKind identifies which upstream dependency failed.
type ProviderKind string

const (
	ProviderEmbedding ProviderKind = "embedding"
	ProviderIndex     ProviderKind = "index"
	ProviderModel     ProviderKind = "model"
)

// ProviderError is produced at the provider-calling boundary, so callers
// never have to guess whether an error came from upstream.
type ProviderError struct {
	Kind    ProviderKind
	Op      string
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s provider %s timed out: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s provider %s failed: %v", e.Kind, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapProviderError tags err as coming from the given provider. Nil stays
// nil and an error that is already tagged is returned unchanged.
func WrapProviderError(kind ProviderKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{
		Kind:    kind,
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// AsProviderError reports whether err carries a provider tag.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
