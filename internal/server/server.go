// Package server provides the HTTP API for assethub.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/assethub/internal/assets"
	"github.com/hyperjump/assethub/internal/config"
	"github.com/hyperjump/assethub/internal/ingest"
	"github.com/hyperjump/assethub/internal/search"
	"github.com/hyperjump/assethub/pkg/utils"
)

// WatchService manages drop folders at runtime.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the assethub API.
type Server struct {
	gate   *ingest.Gate
	assets *assets.Service
	search *search.Processor
	config *config.ServerConfig
	logger *zap.Logger

	watch WatchService
	// configPath and appConfig let watch changes persist and stats report disk usage.
	configPath string
	appConfig  *config.Config
	configMu   sync.Mutex

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithWatch exposes the drop-folder endpoints.
func WithWatch(ws WatchService) Option {
	return func(s *Server) { s.watch = ws }
}

// WithAppConfig enables persisting watch changes to path and disk usage in stats.
func WithAppConfig(path string, cfg *config.Config) Option {
	return func(s *Server) {
		s.configPath = path
		s.appConfig = cfg
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	gate *ingest.Gate,
	assetSvc *assets.Service,
	proc *search.Processor,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		gate:   gate,
		assets: assetSvc,
		search: proc,
		config: cfg,
		logger: utils.OrNop(logger),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/assets", func(r chi.Router) {
			r.Post("/", s.handleUpload)
			r.Post("/upload", s.handleUpload)
			r.Get("/", s.handleListAssets)
			r.Get("/{id}", s.handleGetAsset)
			r.Delete("/{id}", s.handleDeleteAsset)
			r.Post("/{id}/vectorize", s.handleVectorize)
			r.Post("/{id}/tags/{tagId}", s.handleTagAsset)
			r.Delete("/{id}/tags/{tagId}", s.handleUntagAsset)
		})
		r.Post("/search/text", s.handleSearchText)
		r.Post("/search/image", s.handleSearchImage)

		r.Get("/tags", s.handleListTags)
		r.Post("/tags", s.handleCreateTag)
		r.Post("/tags/batch-assign", s.handleBatchAssignTags)
		r.Put("/tags/{id}", s.handleUpdateTag)
		r.Delete("/tags/{id}", s.handleDeleteTag)

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.handleListCollections)
			r.Post("/", s.handleCreateCollection)
			r.Get("/{id}", s.handleGetCollection)
			r.Put("/{id}", s.handleUpdateCollection)
			r.Delete("/{id}", s.handleDeleteCollection)
			r.Get("/{id}/assets", s.handleCollectionAssets)
			r.Post("/{id}/assets", s.handleAddToCollection)
			r.Delete("/{id}/assets", s.handleRemoveFromCollection)
		})

		r.Get("/history", s.handleHistory)
		r.Get("/history/recent", s.handleRecent)
		r.Post("/history", s.handleRecordUsage)

		r.Get("/stats", s.handleStats)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// requestLogger logs one line per request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
