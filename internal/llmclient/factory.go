// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
	"github.com/xkilldash9x/mailpilot/internal/config"
)

// NewClient creates an LLMClient based on the configuration. It returns a nil
// client and no error when the model is disabled or no API key is present;
// callers treat that as offline mode and rely on the rule-based fallbacks.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch config.LLMProvider(strings.ToLower(string(cfg.Provider))) {
	case config.ProviderNone:
		logger.Info("LLM disabled by configuration; using rule-based parsing.")
		return nil, nil
	case config.ProviderGemini, "":
		if cfg.APIKey == "" {
			logger.Info("No LLM API key configured; using rule-based parsing.")
			return nil, nil
		}
		client, err := NewGeminiClient(ctx, cfg, "", logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderNone)
	}
}
