package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"darkroom/internal/archive"
	"darkroom/internal/config"
	"darkroom/internal/enrichment"
	"darkroom/internal/faces"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/store"
	"darkroom/internal/tier"
)

// Dependencies override collaborators built from the config. Tests use them to
// inject fakes; nil fields are built normally.
type Dependencies struct {
	Enricher tier.Enricher
	Archive  archive.Storage
	Detector faces.Detector
}

// Service exposes the pipeline operations.
type Service struct {
	cfg      *config.Config
	store    *store.Store
	machine  *tier.Machine
	enricher tier.Enricher
	detector faces.Detector
	seeder   *metadata.Seeder
	logger   *slog.Logger

	closers []io.Closer
}

// Open opens the catalog and builds every collaborator from cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	orch, err := enrichment.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	storage, err := archive.New(ctx, cfg, logger)
	if err != nil {
		_ = orch.Close()
		_ = st.Close()
		return nil, err
	}
	deps := Dependencies{Enricher: orch, Archive: storage}
	if d := faces.NewFromConfig(cfg.Faces, logger); d != nil {
		deps.Detector = d
	}
	svc := New(cfg, st, deps, logger)
	svc.closers = append(svc.closers, orch, st)
	return svc, nil
}

// New builds a Service over an open store. The caller keeps ownership of st.
func New(cfg *config.Config, st *store.Store, deps Dependencies, logger *slog.Logger) *Service {
	logger = logging.NewComponentLogger(logger, "pipeline")
	return &Service{
		cfg:   cfg,
		store: st,
		machine: tier.New(cfg, st, tier.Dependencies{
			Enricher: deps.Enricher,
			Archive:  deps.Archive,
		}, logger),
		enricher: deps.Enricher,
		detector: deps.Detector,
		seeder:   metadata.NewSeeder(st, logger),
		logger:   logger,
	}
}

// Close releases resources acquired by Open.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Config returns the configuration the service was built from.
func (s *Service) Config() *config.Config { return s.cfg }

// Store exposes the catalog for read-only reporting.
func (s *Service) Store() *store.Store { return s.store }
