package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"darkroom/internal/enrichment"
	"darkroom/internal/fileutil"
	"darkroom/internal/hasher"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
)

// SourceStored marks an EnrichResult read back from an existing Silver version.
const SourceStored enrichment.Source = "stored"

// EnrichResult is the outcome of a Bronze to Silver promotion.
type EnrichResult struct {
	AssetID  string             `json:"asset_id"`
	Version  *store.FileVersion `json:"-"`
	Result   enrichment.Result  `json:"result"`
	Source   enrichment.Source  `json:"source"`
	Provider string             `json:"provider,omitempty"`
	// Promoted is false when an active Silver version already existed.
	Promoted bool `json:"promoted"`
	// Failure is set when every provider failed and metadata-only enrichment
	// was used instead.
	Failure error `json:"-"`
}

// Promote moves an asset one tier up. Silver runs enrichment; Gold requires a
// reviewed Silver version and embeds the catalog metadata into the file.
func (m *Machine) Promote(ctx context.Context, assetID string, target store.Tier) (*store.FileVersion, error) {
	switch target {
	case store.TierSilver:
		res, err := m.Enrich(ctx, assetID)
		if err != nil {
			return nil, err
		}
		return res.Version, nil
	case store.TierGold:
		return m.promoteGold(ctx, assetID)
	case store.TierBronze:
		return nil, services.Validation("tier", "promote", "bronze is the entry tier; use ingest")
	default:
		return nil, services.Validation("tier", "promote", fmt.Sprintf("unknown target tier %q", target))
	}
}

// Enrich promotes an asset from Bronze to Silver. An asset already at Silver
// or above returns its stored enrichment without a transition.
func (m *Machine) Enrich(ctx context.Context, assetID string) (EnrichResult, error) {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()
	ctx = services.WithAssetID(services.WithStage(ctx, "enrich"), assetID)
	logger := logging.WithContext(ctx, m.logger)

	asset, err := m.requireAsset(ctx, assetID, true)
	if err != nil {
		return EnrichResult{}, err
	}
	if existing, err := m.store.ActiveVersion(ctx, assetID, store.TierSilver); err != nil {
		return EnrichResult{}, services.Wrap(services.ErrTransient, "tier", "enrich", "Unable to read catalog", err)
	} else if existing != nil {
		return storedEnrichment(existing)
	}

	bronze, err := m.store.ActiveVersion(ctx, assetID, store.TierBronze)
	if err != nil {
		return EnrichResult{}, services.Wrap(services.ErrTransient, "tier", "enrich", "Unable to read catalog", err)
	}
	if bronze == nil {
		return EnrichResult{}, services.Validation("tier", "enrich", fmt.Sprintf("asset %s has no active bronze version", assetID))
	}
	doc, err := metadata.DecodeDocument(bronze.Metadata)
	if err != nil {
		logging.WarnWithContext(logger, "bronze metadata unreadable", "metadata_decode_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "enrichment runs without extracted metadata"),
		)
	}

	outcome, err := m.enricher.Enrich(ctx, enrichment.Request{
		ContentHash: bronze.ContentHash,
		Path:        bronze.Path,
		Filename:    asset.OriginalFilename,
		MimeType:    bronze.MimeType,
		Metadata:    doc.Extracted,
		People:      doc.People,
	})
	if err != nil {
		if ctx.Err() != nil {
			return EnrichResult{}, ctx.Err()
		}
		m.recordFailure(ctx, assetID, "enrich", err)
		return EnrichResult{}, err
	}
	encodedResult, err := outcome.Result.Encode()
	if err != nil {
		m.recordFailure(ctx, assetID, "enrich", err)
		return EnrichResult{}, fmt.Errorf("encode enrichment: %w", err)
	}

	silverDoc := doc
	silverDoc.Enrichment = encodedResult
	silverDoc.EnrichmentSource = string(outcome.Source)
	silverDoc.EnrichmentProvider = outcome.Provider
	silverDoc.Burst = m.burstInfo(ctx, assetID, burstCandidate(assetID, asset.OriginalFilename, *bronze, doc))
	if silverDoc.Description == "" {
		silverDoc.Description = outcome.Result.ShortDescription
	}
	if len(silverDoc.People) == 0 {
		silverDoc.People = outcome.Result.People
	}
	encodedDoc, err := silverDoc.Encode()
	if err != nil {
		return EnrichResult{}, fmt.Errorf("encode metadata: %w", err)
	}

	dst, err := m.layout.target(store.TierSilver, naming{
		assetID:     assetID,
		contentHash: bronze.ContentHash,
		filename:    asset.OriginalFilename,
		capturedAt:  captureTime(doc.Extracted),
	})
	if err != nil {
		return EnrichResult{}, services.Wrap(services.ErrConfiguration, "tier", "enrich", "Unable to prepare silver directory", err)
	}
	if _, err := fileutil.CopyFileVerified(bronze.Path, dst); err != nil {
		m.removeQuietly(dst)
		wrapped := services.Wrap(services.ErrTransient, "tier", "enrich", "Unable to copy bronze file into silver", err)
		m.recordFailure(ctx, assetID, "enrich", wrapped)
		return EnrichResult{}, wrapped
	}

	version := &store.FileVersion{
		AssetID:        assetID,
		Tier:           store.TierSilver,
		Path:           dst,
		ContentHash:    bronze.ContentHash,
		PerceptualHash: bronze.PerceptualHash,
		Width:          bronze.Width,
		Height:         bronze.Height,
		Size:           bronze.Size,
		MimeType:       bronze.MimeType,
		Metadata:       encodedDoc,
		Keywords:       outcome.Result.Tags,
		Active:         true,
	}
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if outcome.Failure != nil {
			if _, err := tx.AppendHistory(ctx, assetID, store.ActionProcessingFailed, details(map[string]any{
				"operation": "enrich",
				"error":     outcome.Failure.Error(),
				"fallback":  string(enrichment.SourceMetadataOnly),
			})); err != nil {
				return err
			}
		} else {
			if _, err := tx.AppendHistory(ctx, assetID, store.ActionProcessed, details(map[string]any{
				"source":   string(outcome.Source),
				"provider": outcome.Provider,
				"model":    outcome.Model,
				"tags":     len(outcome.Result.Tags),
			})); err != nil {
				return err
			}
		}
		if err := tx.InsertVersion(ctx, version); err != nil {
			return err
		}
		_, err := tx.AppendHistory(ctx, assetID, store.ActionPromoted, details(map[string]any{
			"from":       string(store.TierBronze),
			"to":         string(store.TierSilver),
			"version_id": version.ID,
		}))
		return err
	})
	if err != nil {
		m.removeQuietly(dst)
		return EnrichResult{}, services.Wrap(services.ErrTransient, "tier", "enrich", "Unable to record silver version", err)
	}

	if outcome.Failure != nil {
		logging.WarnWithContext(logger, "promoted with metadata-only enrichment", "enrichment_degraded",
			logging.Error(outcome.Failure),
			logging.String(logging.FieldImpact, "silver tags come from filename and metadata only"),
			logging.String(logging.FieldErrorHint, "re-run enrichment after the provider recovers by demoting and promoting again"),
		)
	}
	logger.Info("asset promoted",
		logging.String(logging.FieldTier, string(store.TierSilver)),
		logging.String(logging.FieldVersionID, version.ID),
		logging.String("enrichment_source", string(outcome.Source)),
	)
	return EnrichResult{
		AssetID:  assetID,
		Version:  version,
		Result:   outcome.Result,
		Source:   outcome.Source,
		Provider: outcome.Provider,
		Promoted: true,
		Failure:  outcome.Failure,
	}, nil
}

func storedEnrichment(version *store.FileVersion) (EnrichResult, error) {
	doc, err := metadata.DecodeDocument(version.Metadata)
	if err != nil {
		return EnrichResult{}, services.Wrap(services.ErrIntegrity, "tier", "enrich", "Stored silver metadata is unreadable", err)
	}
	res := EnrichResult{AssetID: version.AssetID, Version: version, Source: SourceStored, Provider: doc.EnrichmentProvider}
	if len(doc.Enrichment) > 0 {
		result, err := enrichment.DecodeResult(doc.Enrichment)
		if err != nil {
			return EnrichResult{}, services.Wrap(services.ErrIntegrity, "tier", "enrich", "Stored enrichment is invalid", err)
		}
		res.Result = result
	}
	return res, nil
}

func (m *Machine) promoteGold(ctx context.Context, assetID string) (*store.FileVersion, error) {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()
	ctx = services.WithAssetID(services.WithStage(ctx, "promote_gold"), assetID)
	logger := logging.WithContext(ctx, m.logger)

	asset, err := m.requireAsset(ctx, assetID, true)
	if err != nil {
		return nil, err
	}
	if gold, err := m.store.ActiveVersion(ctx, assetID, store.TierGold); err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "promote", "Unable to read catalog", err)
	} else if gold != nil {
		return gold, nil
	}
	silver, err := m.store.ActiveVersion(ctx, assetID, store.TierSilver)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "promote", "Unable to read catalog", err)
	}
	if silver == nil {
		return nil, services.Validation("tier", "promote", "gold requires an active silver version; promote to silver first")
	}
	if !silver.IsReviewed {
		return nil, services.Validation("tier", "promote", "silver version must be reviewed before promotion to gold")
	}
	doc, err := metadata.DecodeDocument(silver.Metadata)
	if err != nil {
		return nil, services.Wrap(services.ErrIntegrity, "tier", "promote", "Stored silver metadata is unreadable", err)
	}
	history, err := m.store.History(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "promote", "Unable to read history", err)
	}

	dst, err := m.layout.target(store.TierGold, naming{
		assetID:     assetID,
		contentHash: silver.ContentHash,
		filename:    asset.OriginalFilename,
		capturedAt:  captureTime(doc.Extracted),
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "tier", "promote", "Unable to prepare gold directory", err)
	}
	if _, err := fileutil.CopyFileVerified(silver.Path, dst); err != nil {
		m.removeQuietly(dst)
		wrapped := services.Wrap(services.ErrTransient, "tier", "promote", "Unable to copy silver file into gold", err)
		m.recordFailure(ctx, assetID, "promote_gold", wrapped)
		return nil, wrapped
	}

	version := &store.FileVersion{
		ID:         uuid.NewString(),
		AssetID:    assetID,
		Tier:       store.TierGold,
		Path:       dst,
		MimeType:   silver.MimeType,
		Width:      silver.Width,
		Height:     silver.Height,
		IsReviewed: true,
		Rating:     silver.Rating,
		Keywords:   silver.Keywords,
		Active:     true,
	}
	promotedAt := time.Now().UTC()
	version.CreatedAt = promotedAt
	promotedDetails := details(map[string]any{
		"from":       string(store.TierSilver),
		"to":         string(store.TierGold),
		"version_id": version.ID,
	})

	payload := metadata.Payload{
		AssetID:          assetID,
		VersionID:        version.ID,
		PromotedAt:       promotedAt,
		OriginalFilename: asset.OriginalFilename,
		CreatedAt:        asset.CreatedAt,
		CapturedAt:       doc.Extracted.CapturedAt,
		CapturedSource:   doc.Extracted.CapturedAtSource,
		Description:      doc.Description,
		Keywords:         silver.Keywords,
		People:           doc.People,
		Rating:           silver.Rating,
		Enrichment:       doc.Enrichment,
	}
	for _, entry := range history {
		payload.History = append(payload.History, metadata.HistoryEntry{
			Action:    string(entry.Action),
			Details:   entry.Details,
			Timestamp: entry.Timestamp,
		})
	}
	payload.History = append(payload.History, metadata.HistoryEntry{
		Action:    string(store.ActionPromoted),
		Details:   promotedDetails,
		Timestamp: promotedAt,
	})

	embedded, err := m.embedder.Embed(ctx, dst, payload)
	if err != nil {
		m.removeQuietly(dst)
		m.recordFailure(ctx, assetID, "embed", err)
		return nil, err
	}
	identity, err := hasher.Hash(ctx, dst)
	switch {
	case err == nil:
		version.ContentHash = identity.ContentHash
		version.PerceptualHash = identity.PerceptualHash
		version.Size = identity.Size
	case errors.Is(err, services.ErrDecode):
		digest, size, hashErr := fileutil.HashFile(dst)
		if hashErr != nil {
			m.removeQuietly(dst, embedded.SidecarPath)
			return nil, services.Wrap(services.ErrTransient, "tier", "promote", "Unable to hash gold file", hashErr)
		}
		version.ContentHash, version.Size = digest, size
		version.PerceptualHash = silver.PerceptualHash
	default:
		m.removeQuietly(dst, embedded.SidecarPath)
		return nil, err
	}

	encodedDoc, err := doc.Encode()
	if err != nil {
		m.removeQuietly(dst, embedded.SidecarPath)
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	version.Metadata = encodedDoc

	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertVersion(ctx, version); err != nil {
			return err
		}
		_, err := tx.InsertHistory(ctx, store.HistoryEntry{
			AssetID:   assetID,
			Action:    store.ActionPromoted,
			Details:   promotedDetails,
			Timestamp: promotedAt,
		})
		return err
	})
	if err != nil {
		m.removeQuietly(dst, embedded.SidecarPath)
		return nil, services.Wrap(services.ErrTransient, "tier", "promote", "Unable to record gold version", err)
	}
	logger.Info("asset promoted",
		logging.String(logging.FieldTier, string(store.TierGold)),
		logging.String(logging.FieldVersionID, version.ID),
		logging.Bool("embedded", embedded.Embedded),
		logging.String("sidecar", embedded.SidecarPath),
	)
	return version, nil
}
