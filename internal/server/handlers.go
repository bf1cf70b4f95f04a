package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/apperrors"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/models"
	"github.com/hyperjump/assethub/internal/storage"
)

const multipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadSize+multipartMemory)
	}
	data, header, err := readFormFile(r, "file")
	if err != nil {
		s.respondErr(w, "upload", err)
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = ingest.DetectMime(header.Filename, data)
	}

	asset, err := s.gate.Ingest(r.Context(), ingest.Upload{
		Data:        data,
		MimeType:    mimeType,
		Name:        name,
		Description: r.FormValue("description"),
	})
	if err != nil {
		s.respondErr(w, "upload", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, asset)
}

func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, err
		}
		return nil, nil, apperrors.Validation("invalid multipart form: %v", err)
	}
	f, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, apperrors.Validation("missing form file %q", field)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, header, nil
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typ, err := models.ParseAssetType(q.Get("type"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := models.VectorStatus(q.Get("status"))
	switch status {
	case "", models.StatusPending, models.StatusProcessing, models.StatusCompleted, models.StatusFailed:
	default:
		s.respondError(w, http.StatusBadRequest, "invalid status: "+string(status))
		return
	}
	filter := models.AssetFilter{
		Type:     typ,
		Status:   status,
		Page:     intParam(q.Get("page"), 1),
		PageSize: intParam(q.Get("page_size"), 20),
	}
	filter.Normalize()

	list, total, err := s.assets.List(r.Context(), filter, q.Get("q"))
	if err != nil {
		s.respondErr(w, "list assets", err)
		return
	}
	if list == nil {
		list = []*models.MediaAsset{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"assets":    list,
		"total":     total,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
}

func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	d, err := s.assets.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, "get asset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.assets.Delete(r.Context(), id); err != nil {
		s.respondErr(w, "delete asset", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleVectorize(w http.ResponseWriter, r *http.Request) {
	job, err := s.assets.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, "vectorize", err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("Text search", zap.String("query", query.Text), zap.Int("top_k", query.TopK))
	resp, err := s.search.Search(r.Context(), &query)
	if err != nil {
		s.respondErr(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	data, _, err := readFormFile(r, "file")
	if err != nil {
		s.respondErr(w, "image search", err)
		return
	}
	resp, err := s.search.SearchImage(r.Context(), data,
		intParam(r.FormValue("top_k"), 0), models.AssetType(r.FormValue("asset_type")))
	if err != nil {
		s.respondErr(w, "image search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.assets.ListTags(r.Context())
	if err != nil {
		s.respondErr(w, "list tags", err)
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tag, err := s.assets.CreateTag(r.Context(), req.Name, req.Color)
	if err != nil {
		s.respondErr(w, "create tag", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleUpdateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tag, err := s.assets.UpdateTag(r.Context(), chi.URLParam(r, "id"), req.Name, req.Color)
	if err != nil {
		s.respondErr(w, "update tag", err)
		return
	}
	s.respondJSON(w, http.StatusOK, tag)
}

func (s *Server) handleBatchAssignTags(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetIDs []string `json:"asset_ids"`
		TagIDs   []string `json:"tag_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := s.assets.BatchAssignTags(r.Context(), req.AssetIDs, req.TagIDs)
	if err != nil {
		s.respondErr(w, "batch assign tags", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"assigned": n})
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.DeleteTag(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, "delete tag", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTagAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.TagAsset(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tagId")); err != nil {
		s.respondErr(w, "tag asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUntagAsset(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.UntagAsset(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "tagId")); err != nil {
		s.respondErr(w, "untag asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cs, err := s.assets.ListCollections(r.Context())
	if err != nil {
		s.respondErr(w, "list collections", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": cs})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ParentID    string `json:"parent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := s.assets.CreateCollection(r.Context(), req.Name, req.Description, req.ParentID)
	if err != nil {
		s.respondErr(w, "create collection", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	c, err := s.assets.GetCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, "get collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := s.assets.UpdateCollection(r.Context(), chi.URLParam(r, "id"), req.Name, req.Description)
	if err != nil {
		s.respondErr(w, "update collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.assets.DeleteCollection(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, "delete collection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCollectionAssets(w http.ResponseWriter, r *http.Request) {
	items, err := s.assets.CollectionAssets(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, "list collection assets", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"assets": items})
}

func (s *Server) handleAddToCollection(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeAssetIDs(w, r)
	if !ok {
		return
	}
	n, err := s.assets.AddToCollection(r.Context(), chi.URLParam(r, "id"), ids)
	if err != nil {
		s.respondErr(w, "add to collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"added": n})
}

func (s *Server) handleRemoveFromCollection(w http.ResponseWriter, r *http.Request) {
	ids, ok := s.decodeAssetIDs(w, r)
	if !ok {
		return
	}
	n, err := s.assets.RemoveFromCollection(r.Context(), chi.URLParam(r, "id"), ids)
	if err != nil {
		s.respondErr(w, "remove from collection", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"removed": n})
}

func (s *Server) decodeAssetIDs(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	var req struct {
		AssetIDs []string `json:"asset_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return req.AssetIDs, true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.assets.History(r.Context(), q.Get("action"),
		intParam(q.Get("page"), 1), intParam(q.Get("page_size"), 20))
	if err != nil {
		s.respondErr(w, "history", err)
		return
	}
	if records == nil {
		records = []*models.UsageRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	list, err := s.assets.Recent(r.Context(), intParam(r.URL.Query().Get("limit"), 20))
	if err != nil {
		s.respondErr(w, "recent", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"assets": list})
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssetID    string `json:"asset_id"`
		ActionType string `json:"action_type"`
		Context    string `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := s.assets.RecordUsage(r.Context(), req.AssetID, req.ActionType, req.Context)
	if err != nil {
		s.respondErr(w, "record usage", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.assets.Stats(r.Context())
	if err != nil {
		s.respondErr(w, "stats", err)
		return
	}
	resp := map[string]interface{}{"stats": stats}
	if s.appConfig != nil {
		st := s.appConfig.Storage
		if fp, err := storage.MeasureFootprint(st.DatabasePath, st.BleveIndexPath, st.MemoryIndexPath); err == nil {
			resp["disk"] = fp
			resp["disk_usage_bytes"] = fp.Total()
		} else {
			s.logger.Warn("Failed to measure disk usage", zap.Error(err))
		}
		resp["config"] = map[string]interface{}{
			"vector_index_type":    s.appConfig.Vector.Type,
			"embedding_dimensions": s.appConfig.Embedding.Dimensions,
			"queue_type":           s.appConfig.Queue.Type,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("Watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("Watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatch()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatch writes the current drop folders back to the config file.
func (s *Server) persistWatch() {
	if s.configPath == "" || s.appConfig == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.appConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.appConfig); err != nil {
		s.logger.Warn("Failed to persist watch config", zap.Error(err))
	}
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrPermanent):
		return http.StatusUnprocessableEntity
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperrors.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) respondErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
