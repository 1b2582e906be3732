package tier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"darkroom/internal/fileutil"
	"darkroom/internal/hasher"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
)

// Outcome is the result class of one ingestion.
type Outcome string

const (
	OutcomeIngested    Outcome = "ingested"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeQuarantined Outcome = "quarantined"
)

// IngestOptions tune a single ingestion.
type IngestOptions struct {
	// RemoveSource deletes the source after a successful ingest and moves it,
	// rather than copying it, into quarantine.
	RemoveSource bool
}

// IngestResult describes what happened to one source file.
type IngestResult struct {
	Outcome        Outcome            `json:"outcome"`
	Source         string             `json:"source"`
	AssetID        string             `json:"asset_id,omitempty"`
	DuplicateOf    string             `json:"duplicate_of,omitempty"`
	Version        *store.FileVersion `json:"-"`
	QuarantinePath string             `json:"quarantine_path,omitempty"`
	// Cause explains a quarantine.
	Cause error `json:"-"`
}

// Ingest catalogues the file at path as a new Bronze asset. Unreadable media
// is quarantined as corrupt; a byte-identical copy of a catalogued file is
// quarantined as a duplicate without touching the catalog. A hash match with
// differing bytes fails with an IntegrityError.
func (m *Machine) Ingest(ctx context.Context, path string, opts IngestOptions) (IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return IngestResult{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return IngestResult{}, services.Wrap(services.ErrNotFound, "ingest", "stat", "Source file not found", err)
	}
	if info.IsDir() {
		return IngestResult{}, services.Validation("ingest", "stat", fmt.Sprintf("%s is a directory", path))
	}
	logger := m.logger.With(logging.String("source", path))

	identity, err := hasher.Hash(ctx, path)
	if err != nil {
		var decodeErr *services.DecodeError
		if errors.As(err, &decodeErr) {
			return m.quarantine(path, QuarantineCorrupt, opts, err)
		}
		return IngestResult{}, err
	}
	logger = logger.With(logging.String(logging.FieldContentHash, identity.ContentHash))

	unlock := m.hashLocks.Lock(identity.ContentHash)
	defer unlock()

	existing, err := m.store.FindBronzeByHash(ctx, identity.ContentHash)
	if err != nil {
		return IngestResult{}, services.Wrap(services.ErrTransient, "ingest", "dedup lookup", "Unable to read catalog", err)
	}
	if existing != nil {
		return m.duplicate(path, identity.ContentHash, existing, opts)
	}

	rec := m.extractor.Extract(ctx, path)
	assetID := uuid.NewString()
	filename := filepath.Base(path)
	dst, err := m.layout.target(store.TierBronze, naming{
		assetID:     assetID,
		contentHash: identity.ContentHash,
		filename:    filename,
		capturedAt:  captureTime(rec),
	})
	if err != nil {
		return IngestResult{}, services.Wrap(services.ErrConfiguration, "ingest", "resolve bronze path", "Unable to prepare bronze directory", err)
	}
	copied, err := fileutil.CopyFileVerified(path, dst)
	if err != nil {
		m.removeQuietly(dst)
		return IngestResult{}, services.Wrap(services.ErrTransient, "ingest", "copy", "Unable to copy file into bronze", err)
	}
	if copied != identity.ContentHash {
		m.removeQuietly(dst)
		return IngestResult{}, &services.IntegrityError{
			ContentHash:  identity.ContentHash,
			Path:         path,
			ExistingPath: dst,
			Detail:       "source changed while it was being ingested",
		}
	}

	doc := metadata.Document{Extracted: rec}
	encoded, err := doc.Encode()
	if err != nil {
		m.removeQuietly(dst)
		return IngestResult{}, fmt.Errorf("encode metadata: %w", err)
	}
	asset := &store.Asset{ID: assetID, OriginalFilename: filename}
	version := &store.FileVersion{
		AssetID:        assetID,
		Tier:           store.TierBronze,
		Path:           dst,
		ContentHash:    identity.ContentHash,
		PerceptualHash: identity.PerceptualHash,
		Width:          identity.Width,
		Height:         identity.Height,
		Size:           identity.Size,
		MimeType:       identity.MimeType,
		Metadata:       encoded,
		Keywords:       rec.Keywords,
		Active:         true,
	}
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertAsset(ctx, asset); err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, version); err != nil {
			return err
		}
		_, err := tx.AppendHistory(ctx, assetID, store.ActionIngested, details(map[string]any{
			"filename":     filename,
			"content_hash": identity.ContentHash,
			"path":         dst,
		}))
		return err
	})
	if err != nil {
		m.removeQuietly(dst)
		if store.IsUniqueViolation(err) {
			// Another process catalogued the same bytes first.
			if existing, lookupErr := m.store.FindBronzeByHash(ctx, identity.ContentHash); lookupErr == nil && existing != nil {
				return m.duplicate(path, identity.ContentHash, existing, opts)
			}
		}
		return IngestResult{}, services.Wrap(services.ErrTransient, "ingest", "record asset", "Unable to write catalog", err)
	}

	if opts.RemoveSource {
		if err := os.Remove(path); err != nil {
			logging.WarnWithContext(logger, "failed to remove ingested source", "source_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "source will be offered again and detected as a duplicate"),
			)
		}
	}
	logger.Info("asset ingested",
		logging.String(logging.FieldAssetID, assetID),
		logging.String(logging.FieldVersionID, version.ID),
		logging.String("path", dst),
	)
	return IngestResult{Outcome: OutcomeIngested, Source: path, AssetID: assetID, Version: version}, nil
}

func (m *Machine) duplicate(path, contentHash string, existing *store.FileVersion, opts IngestOptions) (IngestResult, error) {
	same, err := fileutil.SameContent(path, existing.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return IngestResult{}, &services.IntegrityError{
				ContentHash:  contentHash,
				Path:         path,
				ExistingPath: existing.Path,
				Detail:       "catalogued bronze file is missing",
			}
		}
		return IngestResult{}, services.Wrap(services.ErrTransient, "ingest", "compare duplicate", "Unable to compare files", err)
	}
	if !same {
		return IngestResult{}, &services.IntegrityError{ContentHash: contentHash, Path: path, ExistingPath: existing.Path}
	}
	res, err := m.quarantine(path, QuarantineDuplicates, opts, nil)
	if err != nil {
		return IngestResult{}, err
	}
	res.Outcome = OutcomeDuplicate
	res.DuplicateOf = existing.AssetID
	return res, nil
}

// quarantine moves or copies path aside. The catalog is never touched.
func (m *Machine) quarantine(path, reason string, opts IngestOptions, cause error) (IngestResult, error) {
	dst, err := m.layout.quarantinePath(reason, path)
	if err != nil {
		return IngestResult{}, services.Wrap(services.ErrConfiguration, "ingest", "quarantine", "Unable to prepare quarantine directory", err)
	}
	if opts.RemoveSource {
		err = fileutil.MoveFile(path, dst)
	} else {
		_, err = fileutil.CopyFileVerified(path, dst)
	}
	if err != nil {
		m.removeQuietly(dst)
		return IngestResult{}, services.Wrap(services.ErrTransient, "ingest", "quarantine", "Unable to quarantine file", err)
	}
	attrs := []logging.Attr{
		logging.String("source", path),
		logging.String("quarantine_path", dst),
		logging.String("reason", reason),
		logging.String(logging.FieldImpact, "file was not catalogued"),
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}
	logging.WarnWithContext(m.logger, "file quarantined", "file_quarantined", attrs...)
	return IngestResult{Outcome: OutcomeQuarantined, Source: path, QuarantinePath: dst, Cause: cause}, nil
}
