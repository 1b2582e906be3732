package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a catalog transaction handed to WithTx callbacks.
type Tx struct {
	tx  *sql.Tx
	now time.Time
}

// Now is the timestamp shared by every row written in this transaction.
func (t *Tx) Now() time.Time {
	return t.now
}

// InsertAsset creates the asset row. A missing ID is generated.
func (t *Tx) InsertAsset(ctx context.Context, asset *Asset) error {
	if asset == nil {
		return errors.New("asset is nil")
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = t.now
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO media_assets (id, original_filename, created_at, rejected, rejected_reason)
         VALUES (?, ?, ?, ?, ?)`,
		asset.ID,
		asset.OriginalFilename,
		formatTime(asset.CreatedAt),
		boolToInt(asset.Rejected),
		nullableString(asset.RejectedReason),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// InsertVersion creates a FileVersion row. A missing ID is generated; the
// Active flag is stored as given.
func (t *Tx) InsertVersion(ctx context.Context, version *FileVersion) error {
	if version == nil {
		return errors.New("version is nil")
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = t.now
	}
	keywords, err := encodeKeywords(version.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO file_versions (
            id, asset_id, tier, path, content_hash, perceptual_hash, width, height, size,
            mime_type, metadata_json, is_reviewed, rating, keywords_json, active, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID,
		version.AssetID,
		string(version.Tier),
		version.Path,
		version.ContentHash,
		formatPerceptualHash(version.PerceptualHash),
		version.Width,
		version.Height,
		version.Size,
		nullableString(version.MimeType),
		nullableJSON(version.Metadata),
		boolToInt(version.IsReviewed),
		version.Rating,
		keywords,
		boolToInt(version.Active),
		formatTime(version.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert file version: %w", err)
	}
	return nil
}

// AppendHistory writes one audit row stamped with the transaction time.
func (t *Tx) AppendHistory(ctx context.Context, assetID string, action Action, details string) (*HistoryEntry, error) {
	return t.InsertHistory(ctx, HistoryEntry{AssetID: assetID, Action: action, Details: details, Timestamp: t.now})
}

// InsertHistory writes an audit row with an explicit timestamp. Used when
// rebuilding the catalog from embedded history.
func (t *Tx) InsertHistory(ctx context.Context, entry HistoryEntry) (*HistoryEntry, error) {
	if entry.AssetID == "" || entry.Action == "" {
		return nil, errors.New("history entry requires asset id and action")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = t.now
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO asset_history (asset_id, action, details, timestamp) VALUES (?, ?, ?, ?)`,
		entry.AssetID,
		string(entry.Action),
		nullableString(entry.Details),
		formatTime(entry.Timestamp),
	)
	if err != nil {
		return nil, fmt.Errorf("insert history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	return &entry, nil
}

// DeactivateVersion marks a version inactive. The row and its file remain.
func (t *Tx) DeactivateVersion(ctx context.Context, versionID string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE file_versions SET active = 0 WHERE id = ? AND active = 1`, versionID)
	if err != nil {
		return fmt.Errorf("deactivate version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deactivate version %s: no active row", versionID)
	}
	return nil
}

// UpdateReview rewrites only the review fields of a version.
func (t *Tx) UpdateReview(ctx context.Context, versionID string, update ReviewUpdate) error {
	keywords, err := encodeKeywords(update.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE file_versions SET is_reviewed = ?, rating = ?, keywords_json = ?, metadata_json = COALESCE(?, metadata_json)
         WHERE id = ?`,
		boolToInt(update.IsReviewed),
		update.Rating,
		keywords,
		nullableJSON(update.Metadata),
		versionID,
	)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update review %s: version not found", versionID)
	}
	return nil
}

// SetRejected sets the rejection marker on an asset.
func (t *Tx) SetRejected(ctx context.Context, assetID, reason string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE media_assets SET rejected = 1, rejected_reason = ? WHERE id = ?`,
		nullableString(reason), assetID,
	)
	if err != nil {
		return fmt.Errorf("reject asset: %w", err)
	}
	return nil
}

// DeleteVersions removes every FileVersion row of an asset and returns them so
// the caller can remove the files after commit.
func (t *Tx) DeleteVersions(ctx context.Context, assetID string) ([]FileVersion, error) {
	versions, err := listVersions(ctx, t.tx, `WHERE asset_id = ? ORDER BY created_at`, assetID)
	if err != nil {
		return nil, err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM file_versions WHERE asset_id = ?`, assetID); err != nil {
		return nil, fmt.Errorf("delete versions: %w", err)
	}
	return versions, nil
}

// GetAsset reads an asset inside the transaction.
func (t *Tx) GetAsset(ctx context.Context, id string) (*Asset, error) {
	return getAsset(ctx, t.tx, id)
}

// ActiveVersions reads the active versions of an asset inside the transaction.
func (t *Tx) ActiveVersions(ctx context.Context, assetID string) ([]FileVersion, error) {
	return listVersions(ctx, t.tx, `WHERE asset_id = ? AND active = 1 ORDER BY `+tierRankSQL("tier"), assetID)
}
