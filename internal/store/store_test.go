package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "state", "darkroom.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ingestAsset(t *testing.T, s *Store, name, hash string) (*Asset, *FileVersion) {
	t.Helper()
	asset := &Asset{OriginalFilename: name}
	version := &FileVersion{
		Tier:           TierBronze,
		Path:           "/bronze/" + name,
		ContentHash:    hash,
		PerceptualHash: 0xfedcba9876543210,
		Width:          640,
		Height:         480,
		Size:           1234,
		MimeType:       "image/jpeg",
		Metadata:       json.RawMessage(`{"camera":"X100V"}`),
		Active:         true,
	}
	err := s.WithTx(context.Background(), func(tx *Tx) error {
		if err := tx.InsertAsset(context.Background(), asset); err != nil {
			return err
		}
		version.AssetID = asset.ID
		if err := tx.InsertVersion(context.Background(), version); err != nil {
			return err
		}
		_, err := tx.AppendHistory(context.Background(), asset.ID, ActionIngested, "ingested "+name)
		return err
	})
	if err != nil {
		t.Fatalf("ingest tx: %v", err)
	}
	return asset, version
}

func TestInsertAndReadBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	asset, version := ingestAsset(t, s, "a.jpg", "hash-a")

	gotAsset, err := s.GetAsset(ctx, asset.ID)
	if err != nil || gotAsset == nil {
		t.Fatalf("GetAsset: %v %v", gotAsset, err)
	}
	if gotAsset.OriginalFilename != "a.jpg" || gotAsset.Rejected {
		t.Fatalf("unexpected asset %+v", gotAsset)
	}

	got, err := s.GetVersion(ctx, version.ID)
	if err != nil || got == nil {
		t.Fatalf("GetVersion: %v %v", got, err)
	}
	if got.PerceptualHash != 0xfedcba9876543210 {
		t.Fatalf("perceptual hash did not round trip: %x", got.PerceptualHash)
	}
	if got.Tier != TierBronze || !got.Active || got.Width != 640 || got.MimeType != "image/jpeg" {
		t.Fatalf("unexpected version %+v", got)
	}
	if string(got.Metadata) != `{"camera":"X100V"}` {
		t.Fatalf("unexpected metadata %s", got.Metadata)
	}

	byHash, err := s.FindBronzeByHash(ctx, "hash-a")
	if err != nil || byHash == nil || byHash.ID != version.ID {
		t.Fatalf("FindBronzeByHash: %+v %v", byHash, err)
	}
	missing, err := s.FindBronzeByHash(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown hash, got %+v %v", missing, err)
	}

	history, err := s.History(ctx, asset.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Action != ActionIngested {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestBronzeHashIsUnique(t *testing.T) {
	s := openTestStore(t)
	ingestAsset(t, s, "a.jpg", "same-hash")

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		asset := &Asset{OriginalFilename: "b.jpg"}
		if err := tx.InsertAsset(context.Background(), asset); err != nil {
			return err
		}
		return tx.InsertVersion(context.Background(), &FileVersion{
			AssetID: asset.ID, Tier: TierBronze, Path: "/bronze/b.jpg", ContentHash: "same-hash", Active: true,
		})
	})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Assets != 1 {
		t.Fatalf("rolled back transaction left %d assets", stats.Assets)
	}
}

func TestOneActiveVersionPerTier(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	asset, _ := ingestAsset(t, s, "a.jpg", "hash-a")

	silver := &FileVersion{AssetID: asset.ID, Tier: TierSilver, Path: "/silver/a.jpg", ContentHash: "hash-a", Active: true}
	if err := s.WithTx(ctx, func(tx *Tx) error { return tx.InsertVersion(ctx, silver) }); err != nil {
		t.Fatalf("insert silver: %v", err)
	}
	err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertVersion(ctx, &FileVersion{AssetID: asset.ID, Tier: TierSilver, Path: "/silver/a2.jpg", ContentHash: "hash-a", Active: true})
	})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation for second active silver, got %v", err)
	}

	if err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.DeactivateVersion(ctx, silver.ID); err != nil {
			return err
		}
		_, err := tx.AppendHistory(ctx, asset.ID, ActionDemoted, "silver -> bronze")
		return err
	}); err != nil {
		t.Fatalf("demote: %v", err)
	}
	again := &FileVersion{AssetID: asset.ID, Tier: TierSilver, Path: "/silver/a3.jpg", ContentHash: "hash-a", Active: true}
	if err := s.WithTx(ctx, func(tx *Tx) error { return tx.InsertVersion(ctx, again) }); err != nil {
		t.Fatalf("re-promote after demote: %v", err)
	}

	active, err := s.ActiveVersions(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 || active[0].Tier != TierBronze || active[1].ID != again.ID {
		t.Fatalf("unexpected active versions %+v", active)
	}
	all, err := s.AllVersions(ctx, asset.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 versions including the inactive one, got %d", len(all))
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertAsset(ctx, &Asset{ID: "asset-1", OriginalFilename: "x.jpg"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	asset, err := s.GetAsset(ctx, "asset-1")
	if err != nil || asset != nil {
		t.Fatalf("expected no asset after rollback, got %+v %v", asset, err)
	}
}

func TestReviewRejectAndDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	asset, version := ingestAsset(t, s, "a.jpg", "hash-a")

	if err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.UpdateReview(ctx, version.ID, ReviewUpdate{IsReviewed: true, Rating: 4, Keywords: []string{"beach", "sunset"}})
	}); err != nil {
		t.Fatalf("UpdateReview: %v", err)
	}
	got, _ := s.GetVersion(ctx, version.ID)
	if !got.IsReviewed || got.Rating != 4 || len(got.Keywords) != 2 || got.Keywords[1] != "sunset" {
		t.Fatalf("review not persisted: %+v", got)
	}
	if string(got.Metadata) != `{"camera":"X100V"}` {
		t.Fatalf("metadata should be untouched without an update, got %s", got.Metadata)
	}

	var deleted []FileVersion
	if err := s.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.AppendHistory(ctx, asset.ID, ActionDeleted, "bulk delete"); err != nil {
			return err
		}
		if err := tx.SetRejected(ctx, asset.ID, "deleted"); err != nil {
			return err
		}
		var err error
		deleted, err = tx.DeleteVersions(ctx, asset.ID)
		return err
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(deleted) != 1 || deleted[0].Path != "/bronze/a.jpg" {
		t.Fatalf("unexpected deleted versions %+v", deleted)
	}
	gotAsset, _ := s.GetAsset(ctx, asset.ID)
	if !gotAsset.Rejected || gotAsset.RejectedReason != "deleted" {
		t.Fatalf("expected rejected asset, got %+v", gotAsset)
	}
	history, _ := s.History(ctx, asset.ID)
	if len(history) != 2 || history[1].Action != ActionDeleted {
		t.Fatalf("unexpected history %+v", history)
	}
	if v, _ := s.FindBronzeByHash(ctx, "hash-a"); v != nil {
		t.Fatal("expected bronze hash to be free after delete")
	}
}

func TestVersionsAtTierAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := ingestAsset(t, s, "a.jpg", "hash-a")
	ingestAsset(t, s, "b.jpg", "hash-b")
	if err := s.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertVersion(ctx, &FileVersion{AssetID: a.ID, Tier: TierSilver, Path: "/silver/a.jpg", ContentHash: "hash-a", Active: true})
	}); err != nil {
		t.Fatal(err)
	}

	bronze, err := s.VersionsAtTier(ctx, TierBronze, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(bronze) != 1 || bronze[0].ContentHash != "hash-b" {
		t.Fatalf("expected only b at bronze, got %+v", bronze)
	}
	silver, err := s.VersionsAtTier(ctx, TierSilver, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(silver) != 1 || silver[0].AssetID != a.ID {
		t.Fatalf("expected a at silver, got %+v", silver)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Assets != 2 || stats.Active[TierBronze] != 2 || stats.Active[TierSilver] != 1 || stats.History != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRelationshipsAreUnordered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rel, err := s.AddRelationship(ctx, "zoe", "adam", "family")
	if err != nil {
		t.Fatal(err)
	}
	if rel.A != "adam" || rel.B != "zoe" {
		t.Fatalf("expected canonical ordering, got %+v", rel)
	}
	if _, err := s.AddRelationship(ctx, "adam", "zoe", "family"); err != nil {
		t.Fatalf("duplicate add should be a no-op: %v", err)
	}
	if _, err := s.AddRelationship(ctx, "adam", "adam", "self"); err == nil {
		t.Fatal("expected error for self edge")
	}
	rels, err := s.Relationships(ctx, "zoe")
	if err != nil || len(rels) != 1 {
		t.Fatalf("expected one relationship, got %+v %v", rels, err)
	}
	if err := s.RemoveRelationship(ctx, "zoe", "adam", "family"); err != nil {
		t.Fatal(err)
	}
	rels, _ = s.Relationships(ctx, "")
	if len(rels) != 0 {
		t.Fatalf("expected no relationships, got %+v", rels)
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" Gold ")
	if err != nil || tier != TierGold {
		t.Fatalf("ParseTier: %v %v", tier, err)
	}
	if _, err := ParseTier("platinum"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
	if TierBronze.Next() != TierSilver || TierGold.Next() != "" {
		t.Fatal("unexpected Next ordering")
	}
}

func TestTopVersionsSkipsRejectedAndLowerTiers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	a, _ := ingestAsset(t, s, "a.jpg", "hash-a")
	b, _ := ingestAsset(t, s, "b.jpg", "hash-b")
	c, _ := ingestAsset(t, s, "c.jpg", "hash-c")
	if err := s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertVersion(ctx, &FileVersion{AssetID: a.ID, Tier: TierSilver, Path: "/silver/a.jpg", ContentHash: "hash-a", Active: true}); err != nil {
			return err
		}
		return tx.SetRejected(ctx, c.ID, "blurry")
	}); err != nil {
		t.Fatal(err)
	}

	top, err := s.TopVersions(ctx)
	if err != nil {
		t.Fatalf("TopVersions: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected two catalogued assets, got %+v", top)
	}
	byAsset := map[string]Catalogued{}
	for _, entry := range top {
		byAsset[entry.Version.AssetID] = entry
	}
	if got := byAsset[a.ID]; got.Version.Tier != TierSilver || got.OriginalFilename != "a.jpg" {
		t.Fatalf("expected silver a.jpg, got %+v", got)
	}
	if got := byAsset[b.ID]; got.Version.Tier != TierBronze || got.OriginalFilename != "b.jpg" {
		t.Fatalf("expected bronze b.jpg, got %+v", got)
	}
}
