// Package server exposes a corpus document over a read-only HTTP API for
// inspection: chunk records, chunk audio, the corpus report and process
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/report"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

// Config configures the server.
type Config struct {
	Addr      string
	ChunksDir string
	// Threshold is passed to report.Build.
	Threshold int
}

// Server serves one corpus document. The document is reloaded on every
// request, so the server can run while a stage rewrites it.
type Server struct {
	cfg    Config
	store  *store.Store
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the server and its routes.
func New(cfg Config, st *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, store: st, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/chunks", s.handleListChunks)
	v1.GET("/chunks/:id", s.handleGetChunk)
	v1.GET("/chunks/:id/audio", s.handleChunkAudio)
	v1.GET("/report", s.handleReport)

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.cfg.Addr, "corpus", s.store.Path())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// ChunkView is a record with its id, as listed by the API.
type ChunkView struct {
	ID string `json:"id"`
	store.Record
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if !s.store.Exists() {
		status = "corpus missing"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "corpus": s.store.Path()})
}

// load reads the corpus and writes the error response on failure.
func (s *Server) load(c *gin.Context) (store.Corpus, bool) {
	corpus, err := s.store.Load(c.Request.Context())
	if err == nil {
		return corpus, true
	}
	switch pipeline.CodeOf(err) {
	case pipeline.CORPUS_MISSING:
		errorResponse(c, http.StatusServiceUnavailable, "corpus not created yet")
	default:
		s.logger.Error("load corpus", "error", err)
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

var statusFilters = map[string]func(store.Record) bool{
	"":              func(store.Record) bool { return true },
	"aligned":       func(r store.Record) bool { return r.Aligned() },
	"unaligned":     func(r store.Record) bool { return r.HasASR() && !r.Aligned() },
	"untranscribed": func(r store.Record) bool { return !r.HasASR() },
}

func (s *Server) handleListChunks(c *gin.Context) {
	filter, ok := statusFilters[c.Query("status")]
	if !ok {
		errorResponse(c, http.StatusBadRequest, "status must be one of aligned, unaligned, untranscribed")
		return
	}
	corpus, ok := s.load(c)
	if !ok {
		return
	}
	chunks := make([]ChunkView, 0, len(corpus))
	for _, id := range corpus.IDs() {
		if rec := corpus[id]; filter(rec) {
			chunks = append(chunks, ChunkView{ID: id, Record: rec})
		}
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks, "total": len(chunks)})
}

func (s *Server) handleGetChunk(c *gin.Context) {
	corpus, ok := s.load(c)
	if !ok {
		return
	}
	id := c.Param("id")
	rec, ok := corpus[id]
	if !ok {
		errorResponse(c, http.StatusNotFound, "chunk not found")
		return
	}
	c.JSON(http.StatusOK, ChunkView{ID: id, Record: rec})
}

func (s *Server) handleChunkAudio(c *gin.Context) {
	id := c.Param("id")
	if filepath.Base(id) != id || id == "." || id == ".." {
		errorResponse(c, http.StatusBadRequest, "invalid chunk id")
		return
	}
	corpus, ok := s.load(c)
	if !ok {
		return
	}
	if _, ok := corpus[id]; !ok {
		errorResponse(c, http.StatusNotFound, "chunk not found")
		return
	}
	path := filepath.Join(s.cfg.ChunksDir, id)
	if _, err := os.Stat(path); err != nil {
		errorResponse(c, http.StatusNotFound, "chunk audio not found")
		return
	}
	c.File(path)
}

func (s *Server) handleReport(c *gin.Context) {
	corpus, ok := s.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, report.Build(corpus, report.Options{Threshold: s.cfg.Threshold}))
}
