package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"darkroom/internal/archive"
	"darkroom/internal/burst"
	"darkroom/internal/config"
	"darkroom/internal/enrichment"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
)

// Enricher produces the enrichment for a Bronze file.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (enrichment.Outcome, error)
}

// Dependencies are the collaborators a Machine drives. Nil fields are built
// from the config.
type Dependencies struct {
	Enricher   Enricher
	Extractor  *metadata.Extractor
	Embedder   *metadata.Embedder
	Classifier *burst.Classifier
	Archive    archive.Storage
}

// Machine owns every tier transition.
type Machine struct {
	store      *store.Store
	layout     Layout
	enricher   Enricher
	extractor  *metadata.Extractor
	embedder   *metadata.Embedder
	classifier *burst.Classifier
	archive    archive.Storage
	logger     *slog.Logger

	assetLocks keyedMutex
	hashLocks  keyedMutex
}

// New constructs a Machine over st.
func New(cfg *config.Config, st *store.Store, deps Dependencies, logger *slog.Logger) *Machine {
	logger = logging.NewComponentLogger(logger, "tier")
	m := &Machine{
		store:      st,
		layout:     LayoutFromConfig(cfg),
		enricher:   deps.Enricher,
		extractor:  deps.Extractor,
		embedder:   deps.Embedder,
		classifier: deps.Classifier,
		archive:    deps.Archive,
		logger:     logger,
	}
	if m.enricher == nil {
		m.enricher = enrichment.New(enrichment.Config{Logger: logger, MaxTags: cfg.Enrichment.MaxTags})
	}
	if m.extractor == nil {
		m.extractor = metadata.NewExtractor(logger)
	}
	if m.embedder == nil {
		m.embedder = metadata.NewEmbedder(logger)
	}
	if m.classifier == nil {
		m.classifier = burst.NewClassifier(burst.PolicyFromConfig(cfg.Burst))
	}
	if m.archive == nil {
		m.archive = archive.NewLocal(cfg.Paths.ArchiveDir, logger)
	}
	return m
}

// Layout exposes the tier directories and naming patterns in use.
func (m *Machine) Layout() Layout { return m.layout }

// Classifier exposes the burst policy in use.
func (m *Machine) Classifier() *burst.Classifier { return m.classifier }

// requireAsset loads an asset, failing with ErrNotFound when it is unknown and
// with a validation error when it is rejected and mutable is set.
func (m *Machine) requireAsset(ctx context.Context, assetID string, mutable bool) (*store.Asset, error) {
	if assetID == "" {
		return nil, services.Validation("tier", "load asset", "asset id required")
	}
	asset, err := m.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "load asset", "Unable to read catalog", err)
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "tier", "load asset", fmt.Sprintf("asset %s not found", assetID), nil)
	}
	if mutable && asset.Rejected {
		return nil, services.Validation("tier", "load asset", fmt.Sprintf("asset %s is rejected (%s)", assetID, asset.RejectedReason))
	}
	return asset, nil
}

// recordFailure writes a PROCESSING_FAILED row for a failure that left the
// asset unchanged. Logging is the only fallback when the write itself fails.
func (m *Machine) recordFailure(ctx context.Context, assetID, operation string, cause error) {
	ctx = context.WithoutCancel(ctx)
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendHistory(ctx, assetID, store.ActionProcessingFailed, details(map[string]any{
			"operation": operation,
			"error":     cause.Error(),
			"kind":      string(services.KindOf(cause)),
		}))
		return err
	})
	if err != nil {
		logging.ErrorWithContext(m.logger, "failed to record processing failure", "history_write_failed",
			logging.String(logging.FieldAssetID, assetID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "failure missing from audit trail"),
		)
	}
}

// removeQuietly deletes files written before a failed transaction.
func (m *Machine) removeQuietly(paths ...string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove orphaned file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "orphaned file left in tier directory"),
			)
		}
	}
}

// details renders history details as a JSON object with sorted keys.
func details(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Sprintf("%v", fields)
	}
	return string(data)
}

func captureTime(rec metadata.Record) time.Time {
	if rec.CapturedAt != nil {
		return *rec.CapturedAt
	}
	return time.Time{}
}
