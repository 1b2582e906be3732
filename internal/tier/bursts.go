package tier

import (
	"context"
	"sort"
	"strings"
	"time"

	"darkroom/internal/burst"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
)

// burstCandidate builds a classifier input from a stored version. id is the
// identity reported back in groups.
func burstCandidate(id, filename string, v store.FileVersion, doc metadata.Document) burst.Candidate {
	rec := doc.Extracted
	c := burst.Candidate{
		VersionID:      id,
		Filename:       filename,
		CapturedAt:     rec.CapturedAt,
		CameraMake:     rec.CameraMake,
		CameraModel:    rec.CameraModel,
		PerceptualHash: v.PerceptualHash,
		Size:           v.Size,
	}
	c.Exposure.ExposureTime = rec.ExposureTime
	if rec.FNumber != nil {
		c.Exposure.FNumber = *rec.FNumber
	}
	if rec.ISO != nil {
		c.Exposure.ISO = *rec.ISO
	}
	return c
}

// ClassifyBurst groups the listed versions into burst sequences. Unknown ids
// fail with ErrNotFound.
func (m *Machine) ClassifyBurst(ctx context.Context, versionIDs []string) ([]burst.Group, error) {
	if len(versionIDs) == 0 {
		return nil, services.Validation("tier", "classify burst", "at least one version id required")
	}
	versions, err := m.store.VersionsByIDs(ctx, versionIDs)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "classify burst", "Unable to read catalog", err)
	}
	found := make(map[string]bool, len(versions))
	for _, v := range versions {
		found[v.ID] = true
	}
	var missing []string
	for _, id := range versionIDs {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, services.Wrap(services.ErrNotFound, "tier", "classify burst",
			"unknown version ids: "+strings.Join(missing, ", "), nil)
	}

	filenames := make(map[string]string)
	candidates := make([]burst.Candidate, 0, len(versions))
	for _, v := range versions {
		name, ok := filenames[v.AssetID]
		if !ok {
			asset, err := m.store.GetAsset(ctx, v.AssetID)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "tier", "classify burst", "Unable to read catalog", err)
			}
			if asset != nil {
				name = asset.OriginalFilename
			}
			filenames[v.AssetID] = name
		}
		doc, _ := metadata.DecodeDocument(v.Metadata)
		candidates = append(candidates, burstCandidate(v.ID, name, v, doc))
	}
	return m.classifier.Group(candidates), nil
}

// AnalyzeLibrary reports burst groups and duplicates across the top active
// version of every asset. Groups and pairs are keyed by asset id.
func (m *Machine) AnalyzeLibrary(ctx context.Context) (burst.Report, error) {
	candidates, err := m.libraryCandidates(ctx, "")
	if err != nil {
		return burst.Report{}, err
	}
	return m.classifier.Analyze(candidates), nil
}

func (m *Machine) libraryCandidates(ctx context.Context, excludeAsset string) ([]burst.Candidate, error) {
	entries, err := m.store.TopVersions(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "tier", "burst candidates", "Unable to read catalog", err)
	}
	out := make([]burst.Candidate, 0, len(entries))
	for _, entry := range entries {
		if entry.Version.AssetID == excludeAsset {
			continue
		}
		doc, _ := metadata.DecodeDocument(entry.Version.Metadata)
		out = append(out, burstCandidate(entry.Version.AssetID, entry.OriginalFilename, entry.Version, doc))
	}
	return out, nil
}

// burstInfo computes the flags stored on a new Silver version. Grouping runs
// over the target's capture-time neighbourhood; duplicate checks compare the
// target with every other catalogued asset. Duplicates inside the target's
// burst group are not reported.
func (m *Machine) burstInfo(ctx context.Context, assetID string, target burst.Candidate) *metadata.BurstInfo {
	others, err := m.libraryCandidates(ctx, assetID)
	if err != nil {
		logging.WarnWithContext(m.logger, "burst classification skipped", "burst_classification_failed",
			logging.String(logging.FieldAssetID, assetID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "silver version carries no burst flags"),
		)
		return nil
	}
	if len(others) == 0 {
		return nil
	}

	info := &metadata.BurstInfo{}
	groupMembers := map[string]bool{}
	for _, g := range m.classifier.Group(neighbourhood(target, others, m.classifier.Policy.SequenceWindow)) {
		if !containsID(g.VersionIDs, assetID) {
			continue
		}
		info.GroupID = g.ID
		info.Representative = g.Representative == assetID
		info.Members = g.VersionIDs
		for _, id := range g.VersionIDs {
			groupMembers[id] = true
		}
	}
	for _, other := range others {
		if groupMembers[other.VersionID] {
			continue
		}
		d := m.classifier.Classify(target, other)
		switch {
		case d.Kind == burst.KindDuplicate:
			info.DuplicateOf = append(info.DuplicateOf, other.VersionID)
		case d.NearDuplicate:
			info.NearDuplicateOf = append(info.NearDuplicateOf, other.VersionID)
		}
	}
	if info.GroupID == "" && len(info.DuplicateOf) == 0 && len(info.NearDuplicateOf) == 0 {
		return nil
	}
	m.logger.Debug("burst flags computed",
		logging.String(logging.FieldAssetID, assetID),
		logging.String("group_id", info.GroupID),
		logging.Int("duplicates", len(info.DuplicateOf)),
		logging.Int("near_duplicates", len(info.NearDuplicateOf)),
	)
	return info
}

// neighbourhood returns the target plus every candidate reachable from it
// through capture gaps no longer than window. Candidates without a capture
// time are always included since filename evidence alone can link them.
func neighbourhood(target burst.Candidate, others []burst.Candidate, window time.Duration) []burst.Candidate {
	out := []burst.Candidate{target}
	var timed []burst.Candidate
	for _, c := range others {
		if c.CapturedAt == nil {
			out = append(out, c)
			continue
		}
		timed = append(timed, c)
	}
	if target.CapturedAt == nil {
		return out
	}
	all := append([]burst.Candidate{target}, timed...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CapturedAt.Before(*all[j].CapturedAt) })
	idx := 0
	for i, c := range all {
		if c.VersionID == target.VersionID {
			idx = i
			break
		}
	}
	for i := idx - 1; i >= 0 && all[i+1].CapturedAt.Sub(*all[i].CapturedAt) <= window; i-- {
		out = append(out, all[i])
	}
	for i := idx + 1; i < len(all) && all[i].CapturedAt.Sub(*all[i-1].CapturedAt) <= window; i++ {
		out = append(out, all[i])
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
