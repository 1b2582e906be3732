package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"darkroom/internal/fileutil"
	"darkroom/internal/hasher"
	"darkroom/internal/logging"
	"darkroom/internal/services"
	"darkroom/internal/store"
)

// SeedReport summarizes a catalog rebuild.
type SeedReport struct {
	Scanned  int
	Restored int
	Skipped  int
	Failures []SeedFailure
}

// SeedFailure names a Gold file that could not be restored.
type SeedFailure struct {
	Path string
	Err  error
}

// Seeder rebuilds catalog rows from payloads embedded in Gold files.
type Seeder struct {
	store     *store.Store
	extractor *Extractor
	logger    *slog.Logger
}

// NewSeeder constructs a Seeder writing into st.
func NewSeeder(st *store.Store, logger *slog.Logger) *Seeder {
	return &Seeder{
		store:     st,
		extractor: NewExtractor(logger),
		logger:    logging.NewComponentLogger(logger, "seeder"),
	}
}

// Seed walks goldRoot and restores every asset whose payload is readable and
// not already catalogued. A demotion leaves the old Gold file on disk, so one
// asset can have several payloads; only the most recently promoted one is
// restored and the rest count as skipped. Each asset is restored in its own
// transaction: the asset row, an active reviewed Gold version with recomputed
// hashes, and the embedded history with original timestamps.
func (s *Seeder) Seed(ctx context.Context, goldRoot string) (SeedReport, error) {
	var report SeedReport
	latest := make(map[string]seedCandidate)
	var order []string
	fail := func(path string, err error) {
		report.Failures = append(report.Failures, SeedFailure{Path: path, Err: err})
		logging.WarnWithContext(s.logger, "gold file not restored", "seed_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset missing from rebuilt catalog"),
		)
	}

	err := filepath.WalkDir(goldRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || IsSidecar(path) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		report.Scanned++
		payload, ok, err := ReadEmbedded(path)
		switch {
		case err != nil:
			fail(path, err)
			return nil
		case !ok:
			s.logger.Debug("no darkroom payload; skipping", logging.String("path", path))
			report.Skipped++
			return nil
		}
		candidate := seedCandidate{path: path, payload: payload}
		current, seen := latest[payload.AssetID]
		if !seen {
			order = append(order, payload.AssetID)
			latest[payload.AssetID] = candidate
			return nil
		}
		report.Skipped++
		if candidate.newerThan(current) {
			latest[payload.AssetID] = candidate
			current = candidate
		}
		s.logger.Debug("older gold file superseded",
			logging.String(logging.FieldAssetID, payload.AssetID),
			logging.String("kept", current.path),
		)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk gold tier: %w", err)
	}

	for _, assetID := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		candidate := latest[assetID]
		restored, err := s.restore(ctx, candidate.path, candidate.payload)
		switch {
		case err != nil:
			fail(candidate.path, err)
		case restored:
			report.Restored++
		default:
			report.Skipped++
		}
	}
	s.logger.Info("catalog seeded from gold",
		logging.Int("scanned", report.Scanned),
		logging.Int("restored", report.Restored),
		logging.Int("skipped", report.Skipped),
		logging.Int("failed", len(report.Failures)),
	)
	return report, nil
}

type seedCandidate struct {
	path    string
	payload Payload
}

// newerThan orders payloads by promotion time, then by history length.
func (c seedCandidate) newerThan(other seedCandidate) bool {
	a, b := c.payload.promotedAt(), other.payload.promotedAt()
	if !a.Equal(b) {
		return a.After(b)
	}
	return len(c.payload.History) > len(other.payload.History)
}

func (s *Seeder) restore(ctx context.Context, path string, payload Payload) (bool, error) {
	existing, err := s.store.GetAsset(ctx, payload.AssetID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	version := &store.FileVersion{
		ID:         payload.VersionID,
		AssetID:    payload.AssetID,
		Tier:       store.TierGold,
		Path:       path,
		IsReviewed: true,
		Rating:     payload.Rating,
		Keywords:   payload.Keywords,
		Active:     true,
		CreatedAt:  payload.PromotedAt,
	}
	if res, err := hasher.Hash(ctx, path); err == nil {
		version.ContentHash = res.ContentHash
		version.PerceptualHash = res.PerceptualHash
		version.Width, version.Height = res.Width, res.Height
		version.Size = res.Size
		version.MimeType = res.MimeType
	} else if errors.Is(err, services.ErrDecode) {
		digest, size, hashErr := fileutil.HashFile(path)
		if hashErr != nil {
			return false, hashErr
		}
		version.ContentHash, version.Size = digest, size
	} else {
		return false, err
	}

	extracted := s.extractor.Extract(ctx, path)
	if payload.CapturedAt != nil {
		extracted.CapturedAt = payload.CapturedAt
		extracted.CapturedAtSource = payload.CapturedSource
	}
	doc := Document{
		Extracted:    extracted,
		Enrichment:   payload.Enrichment,
		Description:  payload.Description,
		People:       payload.People,
		RestoredFrom: string(store.TierGold),
	}
	if version.Metadata, err = doc.Encode(); err != nil {
		return false, err
	}
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertAsset(ctx, &store.Asset{
			ID:               payload.AssetID,
			OriginalFilename: payload.OriginalFilename,
			CreatedAt:        payload.CreatedAt,
		}); err != nil {
			return err
		}
		v := *version
		if err := tx.InsertVersion(ctx, &v); err != nil {
			return err
		}
		for _, entry := range payload.History {
			if _, err := tx.InsertHistory(ctx, store.HistoryEntry{
				AssetID:   payload.AssetID,
				Action:    store.Action(entry.Action),
				Details:   entry.Details,
				Timestamp: entry.Timestamp,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
