package enrichment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"darkroom/internal/enrichment/cache"
	"darkroom/internal/enrichment/providers"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

const (
	defaultRequestTimeout  = 60 * time.Second
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxDelay   = 8 * time.Second
	defaultMaxTags         = 8
	attemptClassSuccess    = "success"
	metadataOnlyProviderID = "metadata"
)

// Config is the explicit construction input of an Orchestrator.
type Config struct {
	Policy            Policy
	Cache             cache.Store
	PromptVersion     string
	MaxTags           int
	RequestTimeout    time.Duration
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration
	RequestsPerMinute int
	Logger            *slog.Logger
	// Sleep waits between retries; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Orchestrator runs enrichment requests against a provider policy.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	flight singleflight.Group

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New builds an orchestrator, filling unset fields with defaults.
func New(cfg Config) *Orchestrator {
	if cfg.Cache == nil {
		cfg.Cache = cache.Nop{}
	}
	if strings.TrimSpace(cfg.PromptVersion) == "" {
		cfg.PromptVersion = PromptVersion
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = defaultMaxTags
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.RetryBaseDelay < 0 {
		cfg.RetryBaseDelay = 0
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(cfg.Logger, "enrichment"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// PromptVersion returns the prompt version used in cache keys.
func (o *Orchestrator) PromptVersion() string { return o.cfg.PromptVersion }

// Providers lists the configured provider names in policy order.
func (o *Orchestrator) Providers() []string { return o.cfg.Policy.Names() }

// Close releases the cache and any provider holding connections.
func (o *Orchestrator) Close() error {
	var errs []error
	for _, step := range o.cfg.Policy.Steps {
		if closer, ok := step.Provider.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	errs = append(errs, o.cfg.Cache.Close())
	return errors.Join(errs...)
}

// Enrich analyzes one photo. Provider failures never surface as an error:
// they produce a metadata-only outcome with Failure set. The error return is
// reserved for cancellation and unreadable input.
func (o *Orchestrator) Enrich(ctx context.Context, req Request) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(req.ContentHash) == "" {
		return Outcome{}, services.Validation("enrichment", "enrich", "content hash required")
	}
	v, err, shared := o.flight.Do(req.ContentHash, func() (any, error) {
		return o.enrich(ctx, req)
	})
	if shared {
		o.logger.Debug("joined in-flight enrichment", logging.String(logging.FieldContentHash, req.ContentHash))
	}
	if err != nil {
		return Outcome{}, err
	}
	return v.(Outcome), nil
}

func (o *Orchestrator) enrich(ctx context.Context, req Request) (Outcome, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return Outcome{}, services.Wrap(services.ErrNotFound, "enrichment", "read image", req.Path, err)
	}
	if req.Filename == "" {
		req.Filename = filepath.Base(req.Path)
	}
	img := providers.Image{
		Data:     data,
		MimeType: req.MimeType,
		Filename: req.Filename,
		Width:    req.Metadata.Width,
		Height:   req.Metadata.Height,
	}
	opts := providers.Options{Prompt: BuildPrompt(req, o.cfg.MaxTags), MaxTags: o.cfg.MaxTags}
	logger := o.logger.With(logging.String(logging.FieldContentHash, req.ContentHash))

	var (
		attempts []Attempt
		failures []error
	)
	for i, step := range o.cfg.Policy.Steps {
		if step.Provider == nil {
			continue
		}
		name, model := step.Provider.Name(), step.Provider.Model()
		key := cache.Key{ContentHash: req.ContentHash, Provider: name, Model: model, PromptVersion: o.cfg.PromptVersion}

		if result, ok := o.cached(ctx, key, logger); ok {
			return Outcome{Result: result, Source: SourceCache, Provider: name, Model: model, Attempts: attempts}, nil
		}

		raw, stepAttempts, err := o.runStep(ctx, step, img, opts)
		attempts = append(attempts, stepAttempts...)
		if err == nil {
			result := fromAnalysis(raw, o.cfg.MaxTags, req.People)
			if verr := result.Validate(); verr != nil {
				err = &providers.Error{Provider: name, Class: providers.ClassTerminal, Err: verr}
			} else {
				o.store(ctx, key, result, logger)
				logger.Info("enrichment complete",
					logging.String(logging.FieldProvider, name),
					logging.Int("attempts", len(stepAttempts)),
					logging.Int("tag_count", len(result.Tags)))
				return Outcome{Result: result, Source: SourceProvider, Provider: name, Model: model, Attempts: attempts}, nil
			}
		}
		if cerr := ctx.Err(); cerr != nil {
			return Outcome{Attempts: attempts}, cerr
		}
		failures = append(failures, err)

		next := "metadata_only"
		if i+1 < len(o.cfg.Policy.Steps) && o.cfg.Policy.Steps[i+1].Provider != nil {
			next = o.cfg.Policy.Steps[i+1].Provider.Name()
		}
		logging.WarnWithContext(logger, "enrichment provider failed",
			"enrichment_provider_failed",
			logging.String(logging.FieldProvider, name),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the provider endpoint and credentials"),
			logging.String(logging.FieldImpact, "falling back to "+next),
		)
		logger.Info("enrichment fallback", logging.Args(logging.DecisionAttrs("enrichment_fallback", next, err.Error())...)...)
	}

	outcome := Outcome{
		Result:   metadataOnly(req, data, o.cfg.MaxTags),
		Source:   SourceMetadataOnly,
		Provider: metadataOnlyProviderID,
		Attempts: attempts,
	}
	if len(failures) > 0 {
		outcome.Failure = services.Wrap(services.ErrProviderUnavailable, "enrichment", "enrich",
			fmt.Sprintf("all providers failed (%s)", strings.Join(o.cfg.Policy.Names(), ", ")),
			errors.Join(failures...))
	}
	return outcome, nil
}

func (o *Orchestrator) cached(ctx context.Context, key cache.Key, logger *slog.Logger) (Result, bool) {
	entry, ok, err := o.cfg.Cache.Get(ctx, key)
	if err != nil {
		logging.WarnWithContext(logger, "enrichment cache read failed", "enrichment_cache_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "provider will be called"))
		return Result{}, false
	}
	if !ok {
		return Result{}, false
	}
	result, err := DecodeResult(entry.Result)
	if err != nil {
		logging.WarnWithContext(logger, "discarding invalid cached enrichment", "enrichment_cache_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "provider will be called"))
		return Result{}, false
	}
	logger.Debug("enrichment cache hit", logging.String(logging.FieldProvider, key.Provider))
	return result, true
}

func (o *Orchestrator) store(ctx context.Context, key cache.Key, result Result, logger *slog.Logger) {
	encoded, err := result.Encode()
	if err == nil {
		err = o.cfg.Cache.Put(ctx, key, cache.Entry{Provider: key.Provider, Model: key.Model, Result: encoded})
	}
	if err != nil {
		logging.WarnWithContext(logger, "enrichment cache write failed", "enrichment_cache_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "result will be recomputed next time"))
	}
}

// runStep calls one provider until it succeeds, fails terminally, or runs out
// of attempts.
func (o *Orchestrator) runStep(ctx context.Context, step Step, img providers.Image, opts providers.Options) (providers.RawAnalysis, []Attempt, error) {
	name := step.Provider.Name()
	maxAttempts := step.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	limiter := o.limiter(name)

	var attempts []Attempt
	for attempt := 1; ; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return providers.RawAnalysis{}, attempts, err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
		start := time.Now()
		raw, err := step.Provider.Analyze(callCtx, img, opts)
		cancel()
		record := Attempt{Provider: name, Number: attempt, Duration: time.Since(start)}
		if err == nil {
			record.Class = attemptClassSuccess
			return raw, append(attempts, record), nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return providers.RawAnalysis{}, attempts, cerr
		}
		retryable := providers.Retryable(err)
		record.Class = string(providers.ClassTerminal)
		if retryable {
			record.Class = string(providers.ClassRetryable)
		}
		record.Error = err.Error()
		attempts = append(attempts, record)

		if !retryable || attempt >= maxAttempts {
			return providers.RawAnalysis{}, attempts, err
		}
		delay := o.backoffDelay(attempt)
		if suggested := providers.RetryAfterOf(err); suggested > 0 {
			delay = min(suggested, o.cfg.RetryMaxDelay)
		}
		o.logger.Debug("retrying enrichment provider",
			logging.String(logging.FieldProvider, name),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := o.cfg.Sleep(ctx, delay); err != nil {
			return providers.RawAnalysis{}, attempts, err
		}
	}
}

// backoffDelay doubles from the base delay per attempt, capped at the max.
func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	base := o.cfg.RetryBaseDelay
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > o.cfg.RetryMaxDelay/2 {
			return o.cfg.RetryMaxDelay
		}
		delay *= 2
	}
	return min(delay, o.cfg.RetryMaxDelay)
}

func (o *Orchestrator) limiter(provider string) *rate.Limiter {
	if o.cfg.RequestsPerMinute <= 0 {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.limiters[provider]; ok {
		return l
	}
	burst := max(1, o.cfg.RequestsPerMinute/60)
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(o.cfg.RequestsPerMinute)), burst)
	o.limiters[provider] = l
	return l
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
