package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"darkroom/internal/config"
	"darkroom/internal/enrichment"
	"darkroom/internal/logging"
	"darkroom/internal/pipeline"
	"darkroom/internal/services"
	"darkroom/internal/store"
	"darkroom/internal/testsupport"
)

type apiEnricher struct{}

func (apiEnricher) Enrich(_ context.Context, req enrichment.Request) (enrichment.Outcome, error) {
	return enrichment.Outcome{
		Result: enrichment.Result{
			SchemaVersion:    enrichment.SchemaVersion,
			Tags:             []string{"market"},
			ShortDescription: "Stalls in " + req.Filename,
		},
		Source:   enrichment.SourceProvider,
		Provider: "stub",
	}, nil
}

func newTestAPI(t *testing.T, token string) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := pipeline.New(cfg, st, pipeline.Dependencies{Enricher: apiEnricher{}}, logging.NewNop())
	d, err := New(cfg, svc, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d.api.routes(token), cfg
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestAPIRequiresToken(t *testing.T) {
	h, _ := newTestAPI(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", w.Code)
	}

	w = call(t, h, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestAPIIngestPromoteHistory(t *testing.T) {
	h, cfg := newTestAPI(t, "secret")
	src := filepath.Join(testsupport.BaseDir(cfg), "inbox", "market.jpg")
	testsupport.WriteJPEG(t, src, testsupport.JPEGOptions{Seed: 3})

	w := call(t, h, http.MethodPost, "/api/ingest", ingestRequest{Paths: []string{src}})
	if w.Code != http.StatusOK {
		t.Fatalf("ingest status %d: %s", w.Code, w.Body.String())
	}
	batch := decodeBody[batchResponse](t, w)
	if len(batch.Results) != 1 || batch.Results[0].Status != pipeline.StatusSuccess || batch.Failed != 0 {
		t.Fatalf("unexpected ingest response %+v", batch)
	}
	id := batch.Results[0].AssetID

	w = call(t, h, http.MethodPost, "/api/assets/"+id+"/promote", promoteRequest{Tier: "silver"})
	if w.Code != http.StatusOK {
		t.Fatalf("promote status %d: %s", w.Code, w.Body.String())
	}
	promoted := decodeBody[versionResponse](t, w)
	if promoted.Version == nil || promoted.Version.Tier != store.TierSilver {
		t.Fatalf("unexpected promote response %s", w.Body.String())
	}

	w = call(t, h, http.MethodPost, "/api/assets/"+id+"/promote", promoteRequest{Tier: "gold"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("gold without review should be 422, got %d: %s", w.Code, w.Body.String())
	}

	w = call(t, h, http.MethodGet, "/api/assets/"+id+"/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status %d", w.Code)
	}
	history := decodeBody[struct {
		History []pipeline.HistoryView `json:"history"`
	}](t, w)
	if len(history.History) != 3 {
		t.Fatalf("history = %+v", history.History)
	}
	wantActions := []store.Action{store.ActionIngested, store.ActionProcessed, store.ActionPromoted}
	for i, want := range wantActions {
		if history.History[i].Action != want {
			t.Fatalf("history[%d] = %s, want %s", i, history.History[i].Action, want)
		}
	}

	w = call(t, h, http.MethodPost, "/api/assets/"+id+"/reject", rejectRequest{Reason: "blurry"})
	if w.Code != http.StatusOK {
		t.Fatalf("reject status %d: %s", w.Code, w.Body.String())
	}
}

func TestAPIErrorMapping(t *testing.T) {
	h, _ := newTestAPI(t, "")

	w := call(t, h, http.MethodGet, "/api/assets/missing/history", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	body := decodeBody[map[string]string](t, w)
	if body["kind"] != string(services.KindNotFound) {
		t.Fatalf("unexpected error body %+v", body)
	}

	w = call(t, h, http.MethodPost, "/api/assets/missing/promote", promoteRequest{Tier: "platinum"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown tier, got %d", w.Code)
	}

	w = call(t, h, http.MethodPost, "/api/ingest", map[string]any{"paths": []string{}, "bogus": true})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", w.Code)
	}

	w = call(t, h, http.MethodGet, "/api/ingest", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestStatusForKind(t *testing.T) {
	cases := map[services.Kind]int{
		services.KindValidation:          http.StatusUnprocessableEntity,
		services.KindDecode:              http.StatusUnprocessableEntity,
		services.KindNotFound:            http.StatusNotFound,
		services.KindIntegrity:           http.StatusConflict,
		services.KindProviderRejected:    http.StatusBadGateway,
		services.KindProviderUnavailable: http.StatusServiceUnavailable,
		services.KindTransient:           http.StatusServiceUnavailable,
		services.KindConfiguration:       http.StatusInternalServerError,
		services.KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusForKind(kind); got != want {
			t.Errorf("statusForKind(%s) = %d, want %d", kind, got, want)
		}
	}
}
