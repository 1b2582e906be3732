package tier

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"darkroom/internal/archive"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
	"darkroom/internal/textutil"
)

// DeletedReason is the rejection reason stamped on bulk-deleted assets.
const DeletedReason = "deleted"

// Demote deactivates the asset's highest active version and returns the
// version below it, which becomes the top again. Files are kept on disk.
func (m *Machine) Demote(ctx context.Context, assetID string) (*store.FileVersion, error) {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()

	if _, err := m.requireAsset(ctx, assetID, false); err != nil {
		return nil, err
	}
	active, err := m.store.ActiveVersions(ctx, assetID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "demote", "Unable to read catalog", err)
	}
	if len(active) == 0 {
		return nil, services.Validation("tier", "demote", fmt.Sprintf("asset %s has no active versions", assetID))
	}
	top := active[len(active)-1]
	if top.Tier == store.TierBronze {
		return nil, services.Validation("tier", "demote", "asset is at bronze, the lowest tier")
	}
	var below *store.FileVersion
	if len(active) > 1 {
		below = &active[len(active)-2]
	}
	to := ""
	if below != nil {
		to = string(below.Tier)
	}
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.DeactivateVersion(ctx, top.ID); err != nil {
			return err
		}
		_, err := tx.AppendHistory(ctx, assetID, store.ActionDemoted, details(map[string]any{
			"from":       string(top.Tier),
			"to":         to,
			"version_id": top.ID,
			"path":       top.Path,
		}))
		return err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "demote", "Unable to record demotion", err)
	}
	m.logger.Info("asset demoted",
		logging.String(logging.FieldAssetID, assetID),
		logging.String("from", string(top.Tier)),
		logging.String(logging.FieldVersionID, top.ID),
	)
	return below, nil
}

// ReviewEdit lists the review fields to change. Nil fields are left alone; an
// empty non-nil slice clears the list.
type ReviewEdit struct {
	Reviewed    *bool    `json:"reviewed,omitempty"`
	Rating      *int     `json:"rating,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Description *string  `json:"description,omitempty"`
	People      []string `json:"people,omitempty"`
}

// Review applies edits to the asset's active Silver version. Any change is
// logged as METADATA_EDITED with the list of changed fields.
func (m *Machine) Review(ctx context.Context, assetID string, edit ReviewEdit) (*store.FileVersion, error) {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()

	if _, err := m.requireAsset(ctx, assetID, true); err != nil {
		return nil, err
	}
	if edit.Rating != nil && (*edit.Rating < 0 || *edit.Rating > 5) {
		return nil, services.Validation("tier", "review", fmt.Sprintf("rating must be between 0 and 5 (got %d)", *edit.Rating))
	}
	gold, err := m.store.ActiveVersion(ctx, assetID, store.TierGold)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "review", "Unable to read catalog", err)
	}
	if gold != nil {
		return nil, services.Validation("tier", "review", "asset is already gold; demote it before editing")
	}
	silver, err := m.store.ActiveVersion(ctx, assetID, store.TierSilver)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "review", "Unable to read catalog", err)
	}
	if silver == nil {
		return nil, services.Validation("tier", "review", "review requires an active silver version")
	}
	doc, err := metadata.DecodeDocument(silver.Metadata)
	if err != nil {
		return nil, services.Wrap(services.ErrIntegrity, "tier", "review", "Stored silver metadata is unreadable", err)
	}

	update := store.ReviewUpdate{IsReviewed: silver.IsReviewed, Rating: silver.Rating, Keywords: silver.Keywords}
	var changed []string
	if edit.Reviewed != nil && *edit.Reviewed != silver.IsReviewed {
		update.IsReviewed = *edit.Reviewed
		changed = append(changed, "reviewed")
	}
	if edit.Rating != nil && *edit.Rating != silver.Rating {
		update.Rating = *edit.Rating
		changed = append(changed, "rating")
	}
	if edit.Keywords != nil {
		keywords := textutil.NormalizeTags(edit.Keywords, 0)
		if !equalStrings(keywords, silver.Keywords) {
			update.Keywords = keywords
			changed = append(changed, "keywords")
		}
	}
	metadataChanged := false
	if edit.Description != nil && strings.TrimSpace(*edit.Description) != doc.Description {
		doc.Description = strings.TrimSpace(*edit.Description)
		changed = append(changed, "description")
		metadataChanged = true
	}
	if edit.People != nil {
		people := cleanPeople(edit.People)
		if !equalStrings(people, doc.People) {
			doc.People = people
			changed = append(changed, "people")
			metadataChanged = true
		}
	}
	if len(changed) == 0 {
		return silver, nil
	}
	if metadataChanged {
		encoded, err := doc.Encode()
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		update.Metadata = encoded
	}

	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpdateReview(ctx, silver.ID, update); err != nil {
			return err
		}
		_, err := tx.AppendHistory(ctx, assetID, store.ActionMetadataEdited, details(map[string]any{
			"version_id": silver.ID,
			"fields":     changed,
		}))
		return err
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "review", "Unable to record review", err)
	}
	m.logger.Info("review recorded",
		logging.String(logging.FieldAssetID, assetID),
		logging.Strings("fields", changed),
	)
	return m.store.GetVersion(ctx, silver.ID)
}

// Reject marks the asset rejected. Rejected assets refuse every promotion.
func (m *Machine) Reject(ctx context.Context, assetID, reason string) error {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()

	asset, err := m.requireAsset(ctx, assetID, false)
	if err != nil {
		return err
	}
	if asset.Rejected {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "rejected during review"
	}
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SetRejected(ctx, assetID, reason); err != nil {
			return err
		}
		_, err := tx.AppendHistory(ctx, assetID, store.ActionRejected, details(map[string]any{"reason": reason}))
		return err
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "tier", "reject", "Unable to record rejection", err)
	}
	m.logger.Info("asset rejected", logging.String(logging.FieldAssetID, assetID), logging.String("reason", reason))
	return nil
}

// DeleteResult is the per-asset outcome of BulkDelete.
type DeleteResult struct {
	AssetID string   `json:"asset_id"`
	Removed []string `json:"removed,omitempty"`
	Err     error    `json:"-"`
}

// BulkDelete removes every FileVersion of each asset along with its files.
// The asset row and its history stay; a final DELETED entry is appended and
// the asset is marked rejected.
func (m *Machine) BulkDelete(ctx context.Context, assetIDs []string) []DeleteResult {
	results := make([]DeleteResult, len(assetIDs))
	for i, id := range assetIDs {
		results[i].AssetID = id
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		results[i].Removed, results[i].Err = m.deleteAsset(ctx, id)
	}
	return results
}

func (m *Machine) deleteAsset(ctx context.Context, assetID string) ([]string, error) {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()

	asset, err := m.requireAsset(ctx, assetID, false)
	if err != nil {
		return nil, err
	}
	if asset.Rejected && asset.RejectedReason == DeletedReason {
		return nil, nil
	}
	var removed []store.FileVersion
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		versions, err := tx.ActiveVersions(ctx, assetID)
		if err != nil {
			return err
		}
		if _, err := tx.AppendHistory(ctx, assetID, store.ActionDeleted, details(map[string]any{
			"active_versions": len(versions),
		})); err != nil {
			return err
		}
		removed, err = tx.DeleteVersions(ctx, assetID)
		if err != nil {
			return err
		}
		return tx.SetRejected(ctx, assetID, DeletedReason)
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "delete", "Unable to record deletion", err)
	}

	var paths []string
	for _, v := range removed {
		for _, path := range []string{v.Path, metadata.SidecarPath(v.Path)} {
			if err := os.Remove(path); err != nil {
				if !os.IsNotExist(err) {
					logging.WarnWithContext(m.logger, "failed to remove deleted file", "delete_cleanup_failed",
						logging.String(logging.FieldAssetID, assetID),
						logging.String("path", path),
						logging.Error(err),
						logging.String(logging.FieldImpact, "file remains on disk without a catalog entry"),
					)
				}
				continue
			}
			paths = append(paths, path)
		}
	}
	m.logger.Info("asset deleted", logging.String(logging.FieldAssetID, assetID), logging.Int("files", len(paths)))
	return paths, nil
}

// ArchiveResult reports where a Gold file was archived.
type ArchiveResult struct {
	AssetID  string `json:"asset_id"`
	Backend  string `json:"backend"`
	Key      string `json:"key"`
	Location string `json:"location"`
}

// Archive copies the active Gold file, and its sidecar when present, to the
// archive backend and logs ARCHIVED.
func (m *Machine) Archive(ctx context.Context, assetID string) (ArchiveResult, error) {
	unlock := m.assetLocks.Lock(assetID)
	defer unlock()

	if _, err := m.requireAsset(ctx, assetID, true); err != nil {
		return ArchiveResult{}, err
	}
	gold, err := m.store.ActiveVersion(ctx, assetID, store.TierGold)
	if err != nil {
		return ArchiveResult{}, services.Wrap(services.ErrTransient, "tier", "archive", "Unable to read catalog", err)
	}
	if gold == nil {
		return ArchiveResult{}, services.Validation("tier", "archive", "only gold assets can be archived")
	}
	key := archive.KeyFor(m.layout.GoldDir, gold.Path)
	location, err := m.archive.Put(ctx, key, gold.Path)
	if err != nil {
		return ArchiveResult{}, err
	}
	if sidecar := metadata.SidecarPath(gold.Path); fileExists(sidecar) {
		if _, err := m.archive.Put(ctx, archive.KeyFor(m.layout.GoldDir, sidecar), sidecar); err != nil {
			return ArchiveResult{}, err
		}
	}
	res := ArchiveResult{AssetID: assetID, Backend: m.archive.Name(), Key: key, Location: location}
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.AppendHistory(ctx, assetID, store.ActionArchived, details(map[string]any{
			"backend":    res.Backend,
			"location":   location,
			"version_id": gold.ID,
		}))
		return err
	})
	if err != nil {
		return ArchiveResult{}, services.Wrap(services.ErrTransient, "tier", "archive", "Unable to record archive", err)
	}
	m.logger.Info("asset archived",
		logging.String(logging.FieldAssetID, assetID),
		logging.String("backend", res.Backend),
		logging.String("location", location),
	)
	return res, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func cleanPeople(people []string) []string {
	seen := make(map[string]bool, len(people))
	out := make([]string, 0, len(people))
	for _, p := range people {
		name := textutil.TitleCase(p)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
