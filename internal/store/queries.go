package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func tierRankSQL(column string) string {
	return "CASE " + column + " WHEN 'bronze' THEN 0 WHEN 'silver' THEN 1 WHEN 'gold' THEN 2 ELSE -1 END"
}

func getAsset(ctx context.Context, q querier, id string) (*Asset, error) {
	row := q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM media_assets WHERE id = ?`, id)
	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

func getVersion(ctx context.Context, q querier, clause string, args ...any) (*FileVersion, error) {
	row := q.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM file_versions `+clause, args...)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

func listVersions(ctx context.Context, q querier, clause string, args ...any) ([]FileVersion, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+versionColumns+` FROM file_versions `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []FileVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *version)
	}
	return versions, rows.Err()
}

// GetAsset fetches an asset by id. Returns nil when absent.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	return getAsset(ensureContext(ctx), s.db, id)
}

// GetVersion fetches a FileVersion by id. Returns nil when absent.
func (s *Store) GetVersion(ctx context.Context, id string) (*FileVersion, error) {
	return getVersion(ensureContext(ctx), s.db, `WHERE id = ?`, id)
}

// VersionsByIDs fetches the listed versions. Missing ids are skipped.
func (s *Store) VersionsByIDs(ctx context.Context, ids []string) ([]FileVersion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return listVersions(ensureContext(ctx), s.db, `WHERE id IN (`+makePlaceholders(len(ids))+`) ORDER BY created_at, id`, args...)
}

// ActiveVersions lists the active versions of an asset, lowest tier first.
func (s *Store) ActiveVersions(ctx context.Context, assetID string) ([]FileVersion, error) {
	return listVersions(ensureContext(ctx), s.db, `WHERE asset_id = ? AND active = 1 ORDER BY `+tierRankSQL("tier"), assetID)
}

// AllVersions lists every version of an asset, active or not, oldest first.
func (s *Store) AllVersions(ctx context.Context, assetID string) ([]FileVersion, error) {
	return listVersions(ensureContext(ctx), s.db, `WHERE asset_id = ? ORDER BY created_at, `+tierRankSQL("tier"), assetID)
}

// ActiveVersion returns the active version of an asset at tier, or nil.
func (s *Store) ActiveVersion(ctx context.Context, assetID string, tier Tier) (*FileVersion, error) {
	return getVersion(ensureContext(ctx), s.db, `WHERE asset_id = ? AND tier = ? AND active = 1`, assetID, string(tier))
}

// FindBronzeByHash returns the Bronze version holding contentHash, or nil.
func (s *Store) FindBronzeByHash(ctx context.Context, contentHash string) (*FileVersion, error) {
	return getVersion(ensureContext(ctx), s.db, `WHERE tier = 'bronze' AND content_hash = ?`, contentHash)
}

// VersionsAtTier lists assets whose highest active version sits at tier.
// limit <= 0 returns every match.
func (s *Store) VersionsAtTier(ctx context.Context, tier Tier, limit int) ([]FileVersion, error) {
	clause := `v WHERE v.active = 1 AND v.tier = ? AND NOT EXISTS (
            SELECT 1 FROM file_versions h
            WHERE h.asset_id = v.asset_id AND h.active = 1 AND ` + tierRankSQL("h.tier") + ` > ` + tierRankSQL("v.tier") + `
        ) AND v.asset_id IN (SELECT id FROM media_assets WHERE rejected = 0)
        ORDER BY v.created_at, v.id`
	args := []any{string(tier)}
	if limit > 0 {
		clause += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+prefixedVersionColumns("v")+` FROM file_versions `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("versions at tier: %w", err)
	}
	defer rows.Close()
	var versions []FileVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, *version)
	}
	return versions, rows.Err()
}

// History lists the audit trail of an asset in write order.
func (s *Store) History(ctx context.Context, assetID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, asset_id, action, details, timestamp FROM asset_history WHERE asset_id = ? ORDER BY id`,
		assetID,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry   HistoryEntry
			action  string
			details sql.NullString
			tsRaw   string
		)
		if err := rows.Scan(&entry.ID, &entry.AssetID, &action, &details, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Action = Action(action)
		entry.Details = details.String
		if ts, err := parseTimeString(tsRaw); err == nil {
			entry.Timestamp = ts
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats counts assets, rejected assets, active versions per tier and history rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx = ensureContext(ctx)
	stats := Stats{Active: make(map[Tier]int, len(Tiers))}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(rejected), 0) FROM media_assets`,
	).Scan(&stats.Assets, &stats.Rejected); err != nil {
		return Stats{}, fmt.Errorf("count assets: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(1) FROM file_versions WHERE active = 1 GROUP BY tier`)
	if err != nil {
		return Stats{}, fmt.Errorf("count versions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tier  string
			count int
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return Stats{}, fmt.Errorf("scan tier count: %w", err)
		}
		stats.Active[Tier(tier)] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM asset_history`).Scan(&stats.History); err != nil {
		return Stats{}, fmt.Errorf("count history: %w", err)
	}
	return stats, nil
}

func prefixedVersionColumns(alias string) string {
	return alias + ".id, " + alias + ".asset_id, " + alias + ".tier, " + alias + ".path, " +
		alias + ".content_hash, " + alias + ".perceptual_hash, " + alias + ".width, " + alias + ".height, " +
		alias + ".size, " + alias + ".mime_type, " + alias + ".metadata_json, " + alias + ".is_reviewed, " +
		alias + ".rating, " + alias + ".keywords_json, " + alias + ".active, " + alias + ".created_at"
}

// Catalogued pairs an asset's highest active version with the asset's
// original filename.
type Catalogued struct {
	Version          FileVersion
	OriginalFilename string
}

// trailingScanner appends extra destinations after the version columns.
type trailingScanner struct {
	rowScanner
	extra []any
}

func (s trailingScanner) Scan(dest ...any) error {
	return s.rowScanner.Scan(append(dest, s.extra...)...)
}

// TopVersions lists the highest active version of every non-rejected asset,
// oldest first.
func (s *Store) TopVersions(ctx context.Context) ([]Catalogued, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+prefixedVersionColumns("v")+`, a.original_filename
         FROM file_versions v JOIN media_assets a ON a.id = v.asset_id
         WHERE v.active = 1 AND a.rejected = 0 AND NOT EXISTS (
            SELECT 1 FROM file_versions h
            WHERE h.asset_id = v.asset_id AND h.active = 1 AND `+tierRankSQL("h.tier")+` > `+tierRankSQL("v.tier")+`
         )
         ORDER BY v.created_at, v.id`)
	if err != nil {
		return nil, fmt.Errorf("top versions: %w", err)
	}
	defer rows.Close()

	var out []Catalogued
	for rows.Next() {
		var name string
		version, err := scanVersion(trailingScanner{rowScanner: rows, extra: []any{&name}})
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, Catalogued{Version: *version, OriginalFilename: name})
	}
	return out, rows.Err()
}
