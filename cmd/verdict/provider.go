package main

import (
	"context"
	"fmt"

	"github.com/MikeSquared-Agency/verdict/internal/anthropic"
	"github.com/MikeSquared-Agency/verdict/internal/bedrock"
	"github.com/MikeSquared-Agency/verdict/internal/classifier"
	"github.com/MikeSquared-Agency/verdict/internal/config"
	"github.com/MikeSquared-Agency/verdict/internal/gemini"
)

// newProvider builds the configured backend. The returned close func is
// never nil.
func newProvider(ctx context.Context, cfg config.Config) (classifier.Provider, func(), error) {
	noop := func() {}
	switch cfg.Provider {
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, cfg.StageMaxTokens)
		if err != nil {
			return nil, noop, err
		}
		return c, func() { _ = c.Close() }, nil
	case config.ProviderAnthropic:
		c, err := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.StageMaxTokens)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	case config.ProviderBedrock:
		c, err := bedrock.NewClient(ctx, cfg.AWSRegion, cfg.BedrockModelID, cfg.StageMaxTokens)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown provider %q: %w", cfg.Provider, classifier.ErrConfiguration)
}
