package providers

import (
	"context"
	"fmt"
	"net/http"

	"darkroom/internal/config"
	"darkroom/internal/services"
)

// New builds the named provider from the enrichment configuration. The name
// "none" yields a nil provider.
func New(ctx context.Context, name string, cfg config.Enrichment, client *http.Client) (Provider, error) {
	switch name {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderLocal:
		return NewLocal(cfg.Local.Endpoint, cfg.Local.Model, client), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI.Endpoint, cfg.OpenAI.APIKey, cfg.OpenAI.Model, client), nil
	case config.ProviderVision:
		v, err := NewVision(ctx, cfg.Vision.CredentialsFile, cfg.Vision.MaxResults)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "enrichment", "vision provider", "create client", err)
		}
		return v, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "enrichment", "provider", fmt.Sprintf("unknown provider %q", name), nil)
	}
}
