package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

const assetColumns = "id, original_filename, created_at, rejected, rejected_reason"

const versionColumns = "id, asset_id, tier, path, content_hash, perceptual_hash, width, height, size, mime_type, metadata_json, is_reviewed, rating, keywords_json, active, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(scanner rowScanner) (*Asset, error) {
	var (
		asset      Asset
		createdRaw string
		rejected   int64
		reason     sql.NullString
	)
	if err := scanner.Scan(&asset.ID, &asset.OriginalFilename, &createdRaw, &rejected, &reason); err != nil {
		return nil, err
	}
	asset.Rejected = rejected != 0
	asset.RejectedReason = reason.String
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	return &asset, nil
}

func scanVersion(scanner rowScanner) (*FileVersion, error) {
	var (
		v          FileVersion
		tierRaw    string
		phashRaw   sql.NullString
		mimeType   sql.NullString
		metadata   sql.NullString
		reviewed   int64
		keywords   sql.NullString
		active     int64
		createdRaw string
	)
	if err := scanner.Scan(
		&v.ID,
		&v.AssetID,
		&tierRaw,
		&v.Path,
		&v.ContentHash,
		&phashRaw,
		&v.Width,
		&v.Height,
		&v.Size,
		&mimeType,
		&metadata,
		&reviewed,
		&v.Rating,
		&keywords,
		&active,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	v.Tier = Tier(tierRaw)
	v.MimeType = mimeType.String
	v.IsReviewed = reviewed != 0
	v.Active = active != 0
	if phashRaw.Valid && phashRaw.String != "" {
		if parsed, err := strconv.ParseUint(phashRaw.String, 16, 64); err == nil {
			v.PerceptualHash = parsed
		}
	}
	if metadata.Valid && metadata.String != "" {
		v.Metadata = json.RawMessage(metadata.String)
	}
	if keywords.Valid && keywords.String != "" {
		_ = json.Unmarshal([]byte(keywords.String), &v.Keywords)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		v.CreatedAt = created
	}
	return &v, nil
}

func formatPerceptualHash(value uint64) string {
	return strconv.FormatUint(value, 16)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func encodeKeywords(keywords []string) (any, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
