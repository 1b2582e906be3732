package enrichment

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/enrichment/cache"
	"darkroom/internal/enrichment/providers"
)

// NewFromConfig wires the configured providers and cache into an
// Orchestrator. The primary runs first and the fallback second, each with the
// configured attempt budget.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	e := cfg.Enrichment
	client := &http.Client{}

	var policy Policy
	for _, name := range []string{e.Primary, e.Fallback} {
		p, err := providers.New(ctx, name, e, client)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		policy.Steps = append(policy.Steps, Step{Provider: p, MaxAttempts: e.RetryMaxAttempts})
	}

	store, err := cache.FromConfig(e.Cache, logger)
	if err != nil {
		return nil, err
	}

	return New(Config{
		Policy:            policy,
		Cache:             store,
		PromptVersion:     e.PromptVersion,
		MaxTags:           e.MaxTags,
		RequestTimeout:    time.Duration(e.RequestTimeout) * time.Second,
		RetryBaseDelay:    time.Duration(e.RetryBackoff) * time.Millisecond,
		RetryMaxDelay:     time.Duration(e.RetryMaxBackoff) * time.Millisecond,
		RequestsPerMinute: e.RequestsPerMinute,
		Logger:            logger,
	}), nil
}
