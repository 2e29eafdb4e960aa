package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/heitor/internal/assistant"
	appconfig "github.com/wolfman30/heitor/internal/config"
	"github.com/wolfman30/heitor/pkg/logging"
)

// BuildCompleter wires the language model from LLM_PROVIDER. Bedrock falls
// back to Gemini when a Gemini key is also configured, and the result sits
// behind a circuit breaker unless LLM_BREAKER is off. A nil completer means
// every reply is a canned fallback.
func BuildCompleter(ctx context.Context, cfg *appconfig.Config, clients AWSClients, logger *logging.Logger) (assistant.Completer, func(), error) {
	completer, cleanup, err := buildProvider(ctx, cfg, clients, logger)
	if err != nil || completer == nil || !cfg.LLMBreaker {
		return completer, cleanup, err
	}
	return assistant.NewBreakerCompleter(completer, assistant.DefaultBreakerSettings(cfg.LLMProvider), logger), cleanup, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, clients AWSClients, logger *logging.Logger) (assistant.Completer, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	noop := func() {}

	gemini := func() (*assistant.GeminiCompleter, error) {
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil
		}
		return assistant.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	}

	switch cfg.LLMProvider {
	case "", "none":
		logger.Warn("no language model configured; replies will use fallbacks")
		return nil, noop, nil
	case "gemini":
		g, err := gemini()
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		if g == nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini selected without GEMINI_API_KEY")
		}
		return g, func() { _ = g.Close() }, nil
	case "bedrock":
		if clients.Bedrock == nil || strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil, fmt.Errorf("bootstrap: bedrock selected without a client or BEDROCK_MODEL_ID")
		}
		primary := assistant.NewBedrockCompleter(clients.Bedrock, cfg.BedrockModelID)
		g, err := gemini()
		if err != nil {
			logger.Warn("gemini fallback unavailable", "error", err)
		}
		if g == nil {
			return primary, noop, nil
		}
		logger.Info("gemini configured as bedrock fallback", "model", cfg.GeminiModelID)
		return assistant.NewFallbackCompleter(primary, g, logger), func() { _ = g.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown LLM provider %q", cfg.LLMProvider)
	}
}
