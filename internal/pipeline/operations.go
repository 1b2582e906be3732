package pipeline

import (
	"context"
	"fmt"
	"os"

	"darkroom/internal/burst"
	"darkroom/internal/enrichment"
	"darkroom/internal/faces"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
	"darkroom/internal/tier"
)

// Ingest catalogues one file and leaves the source in place.
func (s *Service) Ingest(ctx context.Context, path string) (tier.IngestResult, error) {
	return s.machine.Ingest(ctx, path, tier.IngestOptions{})
}

// IngestWith catalogues one file with explicit options.
func (s *Service) IngestWith(ctx context.Context, path string, opts tier.IngestOptions) (tier.IngestResult, error) {
	return s.machine.Ingest(ctx, path, opts)
}

// Enrich promotes an asset to Silver and returns its enrichment.
func (s *Service) Enrich(ctx context.Context, assetID string) (enrichment.Result, error) {
	res, err := s.machine.Enrich(ctx, assetID)
	if err != nil {
		return enrichment.Result{}, err
	}
	return res.Result, nil
}

// EnrichDetailed is Enrich with the provider, source and degradation details.
func (s *Service) EnrichDetailed(ctx context.Context, assetID string) (tier.EnrichResult, error) {
	return s.machine.Enrich(ctx, assetID)
}

// Promote moves an asset one tier up to target.
func (s *Service) Promote(ctx context.Context, assetID string, target store.Tier) (*store.FileVersion, error) {
	return s.machine.Promote(ctx, assetID, target)
}

// Demote steps an asset down one tier and returns the new top version.
func (s *Service) Demote(ctx context.Context, assetID string) (*store.FileVersion, error) {
	return s.machine.Demote(ctx, assetID)
}

// ListHistory returns the audit trail of an asset, oldest first.
func (s *Service) ListHistory(ctx context.Context, assetID string) ([]store.HistoryEntry, error) {
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "history", "Unable to read catalog", err)
	}
	if asset == nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "history", fmt.Sprintf("asset %s not found", assetID), nil)
	}
	history, err := s.store.History(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "history", "Unable to read history", err)
	}
	return history, nil
}

// Versions returns every FileVersion of an asset, active or not.
func (s *Service) Versions(ctx context.Context, assetID string) ([]store.FileVersion, error) {
	return s.store.AllVersions(ctx, assetID)
}

// ClassifyBurst groups the given versions into burst sequences.
func (s *Service) ClassifyBurst(ctx context.Context, versionIDs []string) ([]burst.Group, error) {
	return s.machine.ClassifyBurst(ctx, versionIDs)
}

// AnalyzeLibrary reports bursts and duplicates across the whole catalog.
func (s *Service) AnalyzeLibrary(ctx context.Context) (burst.Report, error) {
	return s.machine.AnalyzeLibrary(ctx)
}

// Review applies review edits to the active Silver version.
func (s *Service) Review(ctx context.Context, assetID string, edit tier.ReviewEdit) (*store.FileVersion, error) {
	return s.machine.Review(ctx, assetID, edit)
}

// Reject marks an asset rejected.
func (s *Service) Reject(ctx context.Context, assetID, reason string) error {
	return s.machine.Reject(ctx, assetID, reason)
}

// BulkDelete removes the versions and files of every listed asset.
func (s *Service) BulkDelete(ctx context.Context, assetIDs []string) []tier.DeleteResult {
	return s.machine.BulkDelete(ctx, assetIDs)
}

// Archive copies the active Gold file to archive storage.
func (s *Service) Archive(ctx context.Context, assetID string) (tier.ArchiveResult, error) {
	return s.machine.Archive(ctx, assetID)
}

// SeedFromGold rebuilds catalog rows from the payloads embedded in Gold files.
func (s *Service) SeedFromGold(ctx context.Context) (metadata.SeedReport, error) {
	return s.seeder.Seed(ctx, s.cfg.Paths.GoldDir)
}

// DetectFaces runs face detection on the asset's highest active version.
func (s *Service) DetectFaces(ctx context.Context, assetID string) ([]faces.Face, error) {
	if s.detector == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "detect faces", "faces.endpoint is not configured", nil)
	}
	active, err := s.store.ActiveVersions(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "detect faces", "Unable to read catalog", err)
	}
	if len(active) == 0 {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "detect faces", fmt.Sprintf("asset %s has no active versions", assetID), nil)
	}
	top := active[len(active)-1]
	data, err := os.ReadFile(top.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "detect faces", "Unable to read asset file", err)
	}
	return s.detector.Detect(ctx, data, top.MimeType)
}

// LinkPeople records an unordered relationship between two people.
func (s *Service) LinkPeople(ctx context.Context, personA, personB, kind string) (store.Relationship, error) {
	rel, err := s.store.AddRelationship(ctx, personA, personB, kind)
	if err != nil {
		return store.Relationship{}, services.Wrap(services.ErrValidation, "pipeline", "link people", "Unable to record relationship", err)
	}
	return rel, nil
}

// UnlinkPeople removes a relationship regardless of argument order.
func (s *Service) UnlinkPeople(ctx context.Context, personA, personB, kind string) error {
	return s.store.RemoveRelationship(ctx, personA, personB, kind)
}

// Relationships lists every edge touching personID.
func (s *Service) Relationships(ctx context.Context, personID string) ([]store.Relationship, error) {
	return s.store.Relationships(ctx, personID)
}
