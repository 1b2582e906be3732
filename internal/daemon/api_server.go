package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"darkroom/internal/burst"
	"darkroom/internal/config"
	"darkroom/internal/faces"
	"darkroom/internal/logging"
	"darkroom/internal/pipeline"
	"darkroom/internal/services"
	"darkroom/internal/store"
	"darkroom/internal/tier"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Daemon.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{bind: bind, logger: logger, daemon: d}
	srv.server = &http.Server{
		Handler:           srv.routes(strings.TrimSpace(cfg.Daemon.APIToken)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Enrichment batches can hold a request for several provider round trips.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(token, s.withRequestID(fn)))
	}

	handle("GET /api/status", s.handleStatus)
	handle("POST /api/scan", s.handleScan)
	handle("POST /api/ingest", s.handleIngest)
	handle("POST /api/enrich", s.handleEnrichBatch)
	handle("POST /api/promote", s.handlePromoteBatch)
	handle("POST /api/delete", s.handleDelete)
	handle("GET /api/bursts", s.handleAnalyze)
	handle("POST /api/bursts/classify", s.handleClassify)

	handle("GET /api/assets/{id}/history", s.handleHistory)
	handle("GET /api/assets/{id}/versions", s.handleVersions)
	handle("POST /api/assets/{id}/enrich", s.handleEnrich)
	handle("POST /api/assets/{id}/promote", s.handlePromote)
	handle("POST /api/assets/{id}/demote", s.handleDemote)
	handle("POST /api/assets/{id}/review", s.handleReview)
	handle("POST /api/assets/{id}/reject", s.handleReject)
	handle("POST /api/assets/{id}/archive", s.handleArchive)
	handle("POST /api/assets/{id}/faces", s.handleFaces)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestID tags the request context with the caller's X-Request-ID, or a
// fresh one, so log lines from one call can be correlated.
func (s *apiServer) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	}
}

type ingestRequest struct {
	Paths        []string `json:"paths"`
	RemoveSource bool     `json:"remove_source"`
}

type assetsRequest struct {
	AssetIDs []string `json:"asset_ids"`
	Tier     string   `json:"tier,omitempty"`
}

type promoteRequest struct {
	Tier string `json:"tier"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type classifyRequest struct {
	VersionIDs []string `json:"version_ids"`
}

type batchResponse struct {
	Results []pipeline.ItemResult `json:"results"`
	Failed  int                   `json:"failed"`
}

type versionResponse struct {
	Version *pipeline.VersionView `json:"version"`
}

type enrichResponse struct {
	tier.EnrichResult
	Version *pipeline.VersionView `json:"version,omitempty"`
	Failure string                `json:"failure,omitempty"`
}

type deleteResponse struct {
	AssetID string   `json:"asset_id"`
	Removed []string `json:"removed,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func newBatchResponse(results []pipeline.ItemResult) batchResponse {
	resp := batchResponse{Results: results}
	for _, r := range results {
		if r.Status == pipeline.StatusError {
			resp.Failed++
		}
	}
	return resp
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	results, err := s.daemon.ScanNow(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newBatchResponse(results))
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		s.writeError(w, http.StatusBadRequest, "paths required")
		return
	}
	results := s.daemon.svc.IngestBatch(r.Context(), req.Paths, tier.IngestOptions{RemoveSource: req.RemoveSource})
	s.writeJSON(w, http.StatusOK, newBatchResponse(results))
}

func (s *apiServer) handleEnrichBatch(w http.ResponseWriter, r *http.Request) {
	var req assetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.AssetIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "asset_ids required")
		return
	}
	s.writeJSON(w, http.StatusOK, newBatchResponse(s.daemon.svc.EnrichBatch(r.Context(), req.AssetIDs)))
}

func (s *apiServer) handlePromoteBatch(w http.ResponseWriter, r *http.Request) {
	var req assetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	target, err := store.ParseTier(req.Tier)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.AssetIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "asset_ids required")
		return
	}
	s.writeJSON(w, http.StatusOK, newBatchResponse(s.daemon.svc.PromoteBatch(r.Context(), req.AssetIDs, target)))
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req assetsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.AssetIDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "asset_ids required")
		return
	}
	results := s.daemon.svc.BulkDelete(r.Context(), req.AssetIDs)
	out := make([]deleteResponse, 0, len(results))
	for _, res := range results {
		item := deleteResponse{AssetID: res.AssetID, Removed: res.Removed}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out = append(out, item)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.svc.AnalyzeLibrary(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	groups, err := s.daemon.svc.ClassifyBurst(r.Context(), req.VersionIDs)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if groups == nil {
		groups = []burst.Group{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.daemon.svc.ListHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": pipeline.ViewHistory(entries)})
}

func (s *apiServer) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.daemon.svc.Versions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]*pipeline.VersionView, 0, len(versions))
	for i := range versions {
		out = append(out, pipeline.ViewVersion(&versions[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"versions": out})
}

func (s *apiServer) handleEnrich(w http.ResponseWriter, r *http.Request) {
	res, err := s.daemon.svc.EnrichDetailed(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	resp := enrichResponse{EnrichResult: res, Version: pipeline.ViewVersion(res.Version)}
	if res.Failure != nil {
		resp.Failure = res.Failure.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handlePromote(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	target, err := store.ParseTier(req.Tier)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	version, err := s.daemon.svc.Promote(r.Context(), r.PathValue("id"), target)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versionResponse{Version: pipeline.ViewVersion(version)})
}

func (s *apiServer) handleDemote(w http.ResponseWriter, r *http.Request) {
	version, err := s.daemon.svc.Demote(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versionResponse{Version: pipeline.ViewVersion(version)})
}

func (s *apiServer) handleReview(w http.ResponseWriter, r *http.Request) {
	var edit tier.ReviewEdit
	if !s.decode(w, r, &edit) {
		return
	}
	version, err := s.daemon.svc.Review(r.Context(), r.PathValue("id"), edit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, versionResponse{Version: pipeline.ViewVersion(version)})
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := s.daemon.svc.Reject(r.Context(), id, req.Reason); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"asset_id": id, "rejected": true})
}

func (s *apiServer) handleArchive(w http.ResponseWriter, r *http.Request) {
	res, err := s.daemon.svc.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *apiServer) handleFaces(w http.ResponseWriter, r *http.Request) {
	found, err := s.daemon.svc.DetectFaces(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if found == nil {
		found = []faces.Face{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"faces": found})
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusForKind maps an error class onto an HTTP status.
func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindDecode:
		return http.StatusUnprocessableEntity
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindIntegrity:
		return http.StatusConflict
	case services.KindProviderRejected:
		return http.StatusBadGateway
	case services.KindProviderUnavailable, services.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := services.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		s.log().Warn("api request failed",
			logging.String("error_kind", string(kind)),
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
		)
	}
	s.writeJSONError(w, status, err.Error(), kind)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(payload); err != nil {
		s.log().Warn("api response encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSONError(w, status, message, "")
}

func (s *apiServer) writeJSONError(w http.ResponseWriter, status int, message string, kind services.Kind) {
	payload := map[string]string{"error": message}
	if kind != "" {
		payload["kind"] = string(kind)
	}
	s.writeJSON(w, status, payload)
}

func (s *apiServer) log() *slog.Logger {
	if s == nil || s.logger == nil {
		return logging.NewNop()
	}
	return s.logger
}
