package tier

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/enrichment"
	"darkroom/internal/enrichment/providers"
	"darkroom/internal/logging"
	"darkroom/internal/metadata"
	"darkroom/internal/services"
	"darkroom/internal/store"
	"darkroom/internal/testsupport"
)

type stubProvider struct {
	calls    atomic.Int32
	fail     bool
	analysis providers.RawAnalysis
}

func (p *stubProvider) Name() string  { return config.ProviderLocal }
func (p *stubProvider) Model() string { return "llava" }

func (p *stubProvider) Analyze(context.Context, providers.Image, providers.Options) (providers.RawAnalysis, error) {
	p.calls.Add(1)
	if p.fail {
		return providers.RawAnalysis{}, &providers.Error{
			Provider:   config.ProviderLocal,
			Class:      providers.ClassRetryable,
			StatusCode: 503,
			Err:        errors.New("connection refused"),
		}
	}
	return p.analysis, nil
}

type harness struct {
	cfg      *config.Config
	store    *store.Store
	machine  *Machine
	provider *stubProvider
	inbox    string
}

func newHarness(t *testing.T, provider *stubProvider) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	orch := enrichment.New(enrichment.Config{
		Policy: enrichment.Policy{Steps: []enrichment.Step{{Provider: provider, MaxAttempts: 2}}},
		Logger: logging.NewNop(),
		Sleep:  func(context.Context, time.Duration) error { return nil },
	})
	m := New(cfg, st, Dependencies{Enricher: orch}, logging.NewNop())
	return &harness{
		cfg:      cfg,
		store:    st,
		machine:  m,
		provider: provider,
		inbox:    filepath.Join(testsupport.BaseDir(cfg), "inbox"),
	}
}

func (h *harness) photo(t *testing.T, name string, seed int) string {
	t.Helper()
	path := filepath.Join(h.inbox, name)
	testsupport.WriteJPEG(t, path, testsupport.JPEGOptions{Seed: seed})
	return path
}

func (h *harness) ingest(t *testing.T, name string, seed int) IngestResult {
	t.Helper()
	res, err := h.machine.Ingest(context.Background(), h.photo(t, name, seed), IngestOptions{})
	if err != nil {
		t.Fatalf("Ingest(%s): %v", name, err)
	}
	if res.Outcome != OutcomeIngested {
		t.Fatalf("Ingest(%s) outcome = %s", name, res.Outcome)
	}
	return res
}

func (h *harness) actions(t *testing.T, assetID string) []store.Action {
	t.Helper()
	history, err := h.store.History(context.Background(), assetID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	out := make([]store.Action, len(history))
	for i, entry := range history {
		out[i] = entry.Action
	}
	return out
}

func assertActions(t *testing.T, got []store.Action, want ...store.Action) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history = %v, want %v", got, want)
		}
	}
}

func reviewed(t *testing.T, h *harness, assetID string) {
	t.Helper()
	yes := true
	if _, err := h.machine.Review(context.Background(), assetID, ReviewEdit{Reviewed: &yes}); err != nil {
		t.Fatalf("Review: %v", err)
	}
}

func TestKeyedMutexForgetsReleasedKeys(t *testing.T) {
	var k keyedMutex
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	if k.held() != 2 {
		t.Fatalf("held = %d, want 2", k.held())
	}

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("second Lock(a) acquired while held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	unlockB()
	if k.held() != 0 {
		t.Fatalf("held = %d after release, want 0", k.held())
	}
}

func TestRenderPattern(t *testing.T) {
	n := naming{
		assetID:     "0123abcd-4567-89ef-0000-000000000000",
		contentHash: strings.Repeat("f", 64),
		filename:    "IMG 0042.JPG",
		capturedAt:  time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC),
	}
	if got := render("{year}/{month}/{name}_{asset}{ext}", n); got != filepath.FromSlash("2024/05/IMG_0042_0123abcd.jpg") {
		t.Fatalf("render = %q", got)
	}
	if got := render("{hash}", n); got != strings.Repeat("f", 16)+".jpg" {
		t.Fatalf("render without ext token = %q", got)
	}
	if got := render("../../{name}{ext}", n); got != "IMG_0042.jpg" {
		t.Fatalf("escaping pattern = %q", got)
	}
}

func TestIngestNewFile(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	res := h.ingest(t, "A.jpg", 1)

	if res.Version == nil || res.Version.Tier != store.TierBronze {
		t.Fatalf("unexpected version %+v", res.Version)
	}
	if !strings.HasPrefix(res.Version.Path, h.cfg.Paths.BronzeDir) {
		t.Fatalf("bronze path %s outside %s", res.Version.Path, h.cfg.Paths.BronzeDir)
	}
	if len(res.Version.ContentHash) != 64 {
		t.Fatalf("content hash %q", res.Version.ContentHash)
	}
	if _, err := os.Stat(res.Source); err != nil {
		t.Fatalf("source should be kept without RemoveSource: %v", err)
	}
	asset, err := h.store.GetAsset(context.Background(), res.AssetID)
	if err != nil || asset == nil || asset.OriginalFilename != "A.jpg" {
		t.Fatalf("asset = %+v, err = %v", asset, err)
	}
	assertActions(t, h.actions(t, res.AssetID), store.ActionIngested)
}

func TestIngestDuplicateLeavesCatalogUnchanged(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	first := h.ingest(t, "A.jpg", 1)

	data, err := os.ReadFile(first.Source)
	if err != nil {
		t.Fatal(err)
	}
	copyPath := filepath.Join(h.inbox, "copies", "A.jpg")
	if err := os.MkdirAll(filepath.Dir(copyPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(copyPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := h.machine.Ingest(context.Background(), copyPath, IngestOptions{RemoveSource: true})
	if err != nil {
		t.Fatalf("Ingest duplicate: %v", err)
	}
	if res.Outcome != OutcomeDuplicate || res.DuplicateOf != first.AssetID {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.QuarantinePath, filepath.Join(h.cfg.Paths.QuarantineDir, QuarantineDuplicates)) {
		t.Fatalf("quarantine path %s", res.QuarantinePath)
	}
	if _, err := os.Stat(copyPath); !os.IsNotExist(err) {
		t.Fatalf("RemoveSource should move the duplicate away, stat err = %v", err)
	}
	assertActions(t, h.actions(t, first.AssetID), store.ActionIngested)
	stats, err := h.store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Assets != 1 {
		t.Fatalf("assets = %d, want 1", stats.Assets)
	}
}

func TestIngestDuplicateOfMissingBronzeIsIntegrityError(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	first := h.ingest(t, "A.jpg", 1)
	if err := os.Remove(first.Version.Path); err != nil {
		t.Fatal(err)
	}
	_, err := h.machine.Ingest(context.Background(), first.Source, IngestOptions{})
	var integrity *services.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if services.KindOf(err) != services.KindIntegrity {
		t.Fatalf("kind = %s", services.KindOf(err))
	}
}

func TestIngestCorruptIsQuarantined(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	path := filepath.Join(h.inbox, "broken.jpg")
	testsupport.WriteCorrupt(t, path)

	res, err := h.machine.Ingest(context.Background(), path, IngestOptions{})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Outcome != OutcomeQuarantined || res.Cause == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if !errors.Is(res.Cause, services.ErrDecode) {
		t.Fatalf("cause = %v", res.Cause)
	}
	if filepath.Dir(res.QuarantinePath) != filepath.Join(h.cfg.Paths.QuarantineDir, QuarantineCorrupt) {
		t.Fatalf("quarantine path %s", res.QuarantinePath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("source should be copied, not moved: %v", err)
	}
}

func TestConcurrentIdenticalIngestCataloguesOnce(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	const copies = 16
	data := testsupport.WriteJPEG(t, filepath.Join(h.inbox, "seed.jpg"), testsupport.JPEGOptions{Seed: 5})
	paths := make([]string, copies)
	for i := range paths {
		paths[i] = filepath.Join(h.inbox, "card"+strconv.Itoa(i), "IMG_0001.jpg")
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(paths[i], data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	results := make([]IngestResult, copies)
	errs := make([]error, copies)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.machine.Ingest(context.Background(), path, IngestOptions{})
		}()
	}
	wg.Wait()

	var ingested, duplicates int
	var assetID string
	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("Ingest(%s): %v", paths[i], errs[i])
		}
		switch res.Outcome {
		case OutcomeIngested:
			ingested++
			assetID = res.AssetID
		case OutcomeDuplicate:
			duplicates++
		default:
			t.Fatalf("unexpected outcome %+v", res)
		}
	}
	if ingested != 1 || duplicates != copies-1 {
		t.Fatalf("ingested=%d duplicates=%d", ingested, duplicates)
	}
	for _, res := range results {
		if res.Outcome == OutcomeDuplicate && res.DuplicateOf != assetID {
			t.Fatalf("duplicate points at %s, want %s", res.DuplicateOf, assetID)
		}
	}
	stats, err := h.store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Assets != 1 || stats.Active[store.TierBronze] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	entries, err := os.ReadDir(filepath.Join(h.cfg.Paths.QuarantineDir, QuarantineDuplicates))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != copies-1 {
		t.Fatalf("quarantined %d duplicates, want %d", len(entries), copies-1)
	}
}

func TestConcurrentQuarantineKeepsEveryFile(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	const files = 16
	paths := make([]string, files)
	for i := range paths {
		paths[i] = filepath.Join(h.inbox, "card"+strconv.Itoa(i), "broken.jpg")
		testsupport.WriteCorrupt(t, paths[i])
	}

	quarantined := make([]string, files)
	var wg sync.WaitGroup
	for i, path := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.machine.Ingest(context.Background(), path, IngestOptions{RemoveSource: true})
			if err != nil || res.Outcome != OutcomeQuarantined {
				t.Errorf("Ingest(%s) = %+v, %v", path, res, err)
				return
			}
			quarantined[i] = res.QuarantinePath
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, path := range quarantined {
		if path == "" || seen[path] {
			t.Fatalf("quarantine paths collided: %v", quarantined)
		}
		seen[path] = true
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Fatalf("quarantined file %s lost: %v", path, err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(h.cfg.Paths.QuarantineDir, QuarantineCorrupt))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != files {
		t.Fatalf("quarantine holds %d files, want %d", len(entries), files)
	}
}

func TestIngestMissingFile(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	_, err := h.machine.Ingest(context.Background(), filepath.Join(h.inbox, "nope.jpg"), IngestOptions{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Ingest, duplicate, degraded enrichment, review and gold promotion for one
// asset while the vision provider is down.
func TestLifecycleWithProviderDown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{fail: true})
	a := h.ingest(t, "A.jpg", 1)

	dup, err := h.machine.Ingest(ctx, a.Source, IngestOptions{})
	if err != nil || dup.Outcome != OutcomeDuplicate {
		t.Fatalf("duplicate ingest: %+v, %v", dup, err)
	}
	assertActions(t, h.actions(t, a.AssetID), store.ActionIngested)

	res, err := h.machine.Enrich(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Source != enrichment.SourceMetadataOnly || !errors.Is(res.Failure, services.ErrProviderUnavailable) {
		t.Fatalf("expected metadata-only fallback, got source=%s failure=%v", res.Source, res.Failure)
	}
	if got := h.provider.calls.Load(); got != 2 {
		t.Fatalf("provider calls = %d, want 2", got)
	}
	if len(res.Result.Tags) == 0 || res.Result.Tags[0] != "photo" {
		t.Fatalf("metadata-only tags = %v", res.Result.Tags)
	}
	assertActions(t, h.actions(t, a.AssetID),
		store.ActionIngested, store.ActionProcessingFailed, store.ActionPromoted)

	silver := res.Version
	doc, err := metadata.DecodeDocument(silver.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if doc.EnrichmentSource != string(enrichment.SourceMetadataOnly) {
		t.Fatalf("enrichment source = %q", doc.EnrichmentSource)
	}

	if _, err := h.machine.Promote(ctx, a.AssetID, store.TierGold); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("gold without review should fail validation, got %v", err)
	}
	reviewed(t, h, a.AssetID)

	gold, err := h.machine.Promote(ctx, a.AssetID, store.TierGold)
	if err != nil {
		t.Fatalf("Promote gold: %v", err)
	}
	if gold.Tier != store.TierGold || !strings.HasPrefix(gold.Path, h.cfg.Paths.GoldDir) {
		t.Fatalf("unexpected gold version %+v", gold)
	}
	assertActions(t, h.actions(t, a.AssetID),
		store.ActionIngested, store.ActionProcessingFailed, store.ActionPromoted,
		store.ActionMetadataEdited, store.ActionPromoted)

	payload, ok, err := metadata.ReadEmbedded(gold.Path)
	if err != nil || !ok {
		t.Fatalf("ReadEmbedded: ok=%v err=%v", ok, err)
	}
	if payload.AssetID != a.AssetID || len(payload.History) != 5 {
		t.Fatalf("embedded payload asset=%s history=%d", payload.AssetID, len(payload.History))
	}

	again, err := h.machine.Promote(ctx, a.AssetID, store.TierGold)
	if err != nil || again.ID != gold.ID {
		t.Fatalf("re-promote should return existing gold %s, got %+v, %v", gold.ID, again, err)
	}
	if n := len(h.actions(t, a.AssetID)); n != 5 {
		t.Fatalf("re-promote appended history, have %d entries", n)
	}
}

func TestEnrichWithProviderRecordsProcessed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{analysis: providers.RawAnalysis{
		Tags:             []string{"Beach", "sunset", "beach"},
		ShortDescription: "A beach at sunset",
		PlaceName:        "santa monica",
	}})
	a := h.ingest(t, "A.jpg", 1)

	res, err := h.machine.Enrich(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if res.Source != enrichment.SourceProvider || res.Failure != nil {
		t.Fatalf("source=%s failure=%v", res.Source, res.Failure)
	}
	if strings.Join(res.Version.Keywords, ",") != "beach,sunset" {
		t.Fatalf("keywords = %v", res.Version.Keywords)
	}
	assertActions(t, h.actions(t, a.AssetID), store.ActionIngested, store.ActionProcessed, store.ActionPromoted)

	stored, err := h.machine.Enrich(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("second Enrich: %v", err)
	}
	if stored.Promoted || stored.Source != SourceStored || stored.Version.ID != res.Version.ID {
		t.Fatalf("second Enrich should return stored silver, got %+v", stored)
	}
	if stored.Result.ShortDescription != "A beach at sunset" {
		t.Fatalf("stored result = %+v", stored.Result)
	}
	if got := h.provider.calls.Load(); got != 1 {
		t.Fatalf("provider calls = %d, want 1", got)
	}
}

func TestPromoteRejectsBronzeTarget(t *testing.T) {
	h := newHarness(t, &stubProvider{fail: true})
	a := h.ingest(t, "A.jpg", 1)
	if _, err := h.machine.Promote(context.Background(), a.AssetID, store.TierBronze); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.machine.Promote(context.Background(), "missing", store.TierSilver); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDemoteAndRepromote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{fail: true})
	a := h.ingest(t, "A.jpg", 1)
	first, err := h.machine.Enrich(ctx, a.AssetID)
	if err != nil {
		t.Fatal(err)
	}

	top, err := h.machine.Demote(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("Demote: %v", err)
	}
	if top == nil || top.Tier != store.TierBronze {
		t.Fatalf("top after demote = %+v", top)
	}
	if _, err := os.Stat(first.Version.Path); err != nil {
		t.Fatalf("demote should keep the silver file: %v", err)
	}
	if _, err := h.machine.Demote(ctx, a.AssetID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("demoting bronze should fail validation, got %v", err)
	}

	history, err := h.store.History(ctx, a.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	last := history[len(history)-1]
	var detail map[string]string
	if err := json.Unmarshal([]byte(last.Details), &detail); err != nil {
		t.Fatalf("details %q: %v", last.Details, err)
	}
	if last.Action != store.ActionDemoted || detail["from"] != "silver" || detail["to"] != "bronze" {
		t.Fatalf("last history = %+v", last)
	}

	second, err := h.machine.Enrich(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("re-enrich: %v", err)
	}
	if !second.Promoted || second.Version.ID == first.Version.ID {
		t.Fatalf("re-promotion should create a new silver version")
	}
	all, err := h.store.AllVersions(ctx, a.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("versions = %d, want 3", len(all))
	}
}

func TestReviewEditsAndRejection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{fail: true})
	a := h.ingest(t, "A.jpg", 1)

	rating := 4
	if _, err := h.machine.Review(ctx, a.AssetID, ReviewEdit{Rating: &rating}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("review at bronze should fail validation, got %v", err)
	}
	if _, err := h.machine.Enrich(ctx, a.AssetID); err != nil {
		t.Fatal(err)
	}

	bad := 6
	if _, err := h.machine.Review(ctx, a.AssetID, ReviewEdit{Rating: &bad}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("rating 6 should fail validation, got %v", err)
	}

	desc := "  Sunset walk  "
	v, err := h.machine.Review(ctx, a.AssetID, ReviewEdit{
		Rating:      &rating,
		Keywords:    []string{"Sunset", "sunset", "Beach"},
		Description: &desc,
		People:      []string{"alice smith", "Alice Smith"},
	})
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if v.Rating != 4 || strings.Join(v.Keywords, ",") != "sunset,beach" {
		t.Fatalf("review fields rating=%d keywords=%v", v.Rating, v.Keywords)
	}
	doc, err := metadata.DecodeDocument(v.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Description != "Sunset walk" || len(doc.People) != 1 || doc.People[0] != "Alice Smith" {
		t.Fatalf("document description=%q people=%v", doc.Description, doc.People)
	}

	before := len(h.actions(t, a.AssetID))
	if _, err := h.machine.Review(ctx, a.AssetID, ReviewEdit{Rating: &rating}); err != nil {
		t.Fatal(err)
	}
	if after := len(h.actions(t, a.AssetID)); after != before {
		t.Fatalf("no-op review appended history (%d -> %d)", before, after)
	}

	if err := h.machine.Reject(ctx, a.AssetID, "blurry"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	asset, _ := h.store.GetAsset(ctx, a.AssetID)
	if !asset.Rejected || asset.RejectedReason != "blurry" {
		t.Fatalf("asset = %+v", asset)
	}
	if _, err := h.machine.Promote(ctx, a.AssetID, store.TierGold); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("promoting a rejected asset should fail validation, got %v", err)
	}
}

func TestBulkDeleteRemovesFilesAndKeepsHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{fail: true})
	a := h.ingest(t, "A.jpg", 1)
	enriched, err := h.machine.Enrich(ctx, a.AssetID)
	if err != nil {
		t.Fatal(err)
	}

	results := h.machine.BulkDelete(ctx, []string{a.AssetID, "missing"})
	if results[0].Err != nil || len(results[0].Removed) != 2 {
		t.Fatalf("delete result = %+v", results[0])
	}
	if !errors.Is(results[1].Err, services.ErrNotFound) {
		t.Fatalf("missing asset err = %v", results[1].Err)
	}
	for _, path := range []string{a.Version.Path, enriched.Version.Path} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("%s should be removed, stat err = %v", path, err)
		}
	}
	all, err := h.store.AllVersions(ctx, a.AssetID)
	if err != nil || len(all) != 0 {
		t.Fatalf("versions left = %d, err = %v", len(all), err)
	}
	asset, _ := h.store.GetAsset(ctx, a.AssetID)
	if asset == nil || !asset.Rejected || asset.RejectedReason != DeletedReason {
		t.Fatalf("asset = %+v", asset)
	}
	actions := h.actions(t, a.AssetID)
	if actions[len(actions)-1] != store.ActionDeleted {
		t.Fatalf("history = %v", actions)
	}

	again := h.machine.BulkDelete(ctx, []string{a.AssetID})
	if again[0].Err != nil || len(h.actions(t, a.AssetID)) != len(actions) {
		t.Fatalf("repeat delete should be a no-op: %+v", again[0])
	}
}

func TestArchiveRequiresGold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{fail: true})
	a := h.ingest(t, "A.jpg", 1)
	if _, err := h.machine.Archive(ctx, a.AssetID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("archive at bronze should fail validation, got %v", err)
	}

	if _, err := h.machine.Enrich(ctx, a.AssetID); err != nil {
		t.Fatal(err)
	}
	reviewed(t, h, a.AssetID)
	gold, err := h.machine.Promote(ctx, a.AssetID, store.TierGold)
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.machine.Archive(ctx, a.AssetID)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.Backend != config.ArchiveBackendLocal {
		t.Fatalf("backend = %s", res.Backend)
	}
	rel, _ := filepath.Rel(h.cfg.Paths.GoldDir, gold.Path)
	archived := filepath.Join(h.cfg.Paths.ArchiveDir, rel)
	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	actions := h.actions(t, a.AssetID)
	if actions[len(actions)-1] != store.ActionArchived {
		t.Fatalf("history = %v", actions)
	}
}

func TestBurstFramesAreGrouped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &stubProvider{fail: true})

	var versionIDs, assetIDs []string
	for i := 1; i <= 5; i++ {
		res := h.ingest(t, "IMG_000"+string(rune('0'+i))+".jpg", i*7)
		versionIDs = append(versionIDs, res.Version.ID)
		assetIDs = append(assetIDs, res.AssetID)
	}

	groups, err := h.machine.ClassifyBurst(ctx, versionIDs)
	if err != nil {
		t.Fatalf("ClassifyBurst: %v", err)
	}
	if len(groups) != 1 || len(groups[0].VersionIDs) != 5 {
		t.Fatalf("groups = %+v", groups)
	}
	if !containsID(versionIDs, groups[0].Representative) {
		t.Fatalf("representative %s not a member", groups[0].Representative)
	}

	if _, err := h.machine.ClassifyBurst(ctx, []string{versionIDs[0], "nope"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("unknown id should be not found, got %v", err)
	}

	res, err := h.machine.Enrich(ctx, assetIDs[2])
	if err != nil {
		t.Fatal(err)
	}
	doc, err := metadata.DecodeDocument(res.Version.Metadata)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Burst == nil || len(doc.Burst.Members) != 5 || doc.Burst.GroupID == "" {
		t.Fatalf("burst flags = %+v", doc.Burst)
	}
	for _, id := range assetIDs {
		if !containsID(doc.Burst.Members, id) {
			t.Fatalf("member %s missing from %v", id, doc.Burst.Members)
		}
	}

	report, err := h.machine.AnalyzeLibrary(ctx)
	if err != nil {
		t.Fatalf("AnalyzeLibrary: %v", err)
	}
	if len(report.Groups) != 1 {
		t.Fatalf("library groups = %+v", report.Groups)
	}
}
