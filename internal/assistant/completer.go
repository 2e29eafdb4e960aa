package assistant

import (
	"context"

	"github.com/wolfman30/heitor/pkg/logging"
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Completion is the model's answer. Confidence is zero when the provider
// does not report one.
type Completion struct {
	Text       string
	StopReason string
	Confidence float64
	Usage      TokenUsage
}

// Completer is the language-model collaborator.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// FallbackCompleter retries a failed primary call on a secondary provider.
type FallbackCompleter struct {
	primary  Completer
	fallback Completer
	logger   *logging.Logger
}

// NewFallbackCompleter wraps primary; a nil fallback disables the retry.
func NewFallbackCompleter(primary, fallback Completer, logger *logging.Logger) *FallbackCompleter {
	if primary == nil {
		panic("assistant: primary completer cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackCompleter{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary completer failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)
	if c.fallback == nil {
		return Completion{}, err
	}

	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback completer also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Completion{}, fallbackErr
	}
	return resp, nil
}
