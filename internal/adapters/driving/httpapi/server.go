package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// defaultMaxUploadBytes caps uploads when Config.MaxUploadBytes is unset.
const defaultMaxUploadBytes = 64 << 20

// ErrMissingService is returned when a required port is nil.
var ErrMissingService = errors.New("httpapi: required service is missing")

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Ingest   driving.IngestService
	Document driving.DocumentService
	Search   driving.SearchService
	Answer   driving.AnswerService
	Settings driving.SettingsService
}

// Validate ensures every port is set.
func (p *Ports) Validate() error {
	switch {
	case p.Ingest == nil:
		return fmt.Errorf("%w: ingest", ErrMissingService)
	case p.Document == nil:
		return fmt.Errorf("%w: document", ErrMissingService)
	case p.Search == nil:
		return fmt.Errorf("%w: search", ErrMissingService)
	case p.Answer == nil:
		return fmt.Errorf("%w: answer", ErrMissingService)
	case p.Settings == nil:
		return fmt.Errorf("%w: settings", ErrMissingService)
	}
	return nil
}

// Config controls routing and request limits.
type Config struct {
	// BasePath prefixes every route, e.g. "/api". Empty mounts at the root.
	BasePath string

	// CORSOrigins lists allowed origins. "*" allows any origin.
	// Empty disables CORS handling.
	CORSOrigins []string

	// MaxUploadBytes caps upload request bodies.
	MaxUploadBytes int64
}

// Server serves the HTTP API.
type Server struct {
	ports  *Ports
	cfg    Config
	engine *gin.Engine
}

// NewServer validates ports and builds the router.
func NewServer(ports *Ports, cfg Config) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{ports: ports, cfg: cfg}
	engine, err := s.setupRouter()
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRouter() (*gin.Engine, error) {
	if !logger.IsVerbose() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	if len(s.cfg.CORSOrigins) > 0 {
		corsCfg := corsConfig(s.cfg.CORSOrigins)
		if err := corsCfg.Validate(); err != nil {
			return nil, fmt.Errorf("cors: %w", err)
		}
		r.Use(cors.New(corsCfg))
	}

	docs := newDocumentHandler(s.ports.Ingest, s.ports.Document, s.cfg.MaxUploadBytes)
	query := newQueryHandler(s.ports.Search, s.ports.Answer)
	status := newStatusHandler(s.ports.Settings, s.ports.Document)

	api := r.Group(normaliseBasePath(s.cfg.BasePath))
	{
		api.GET("/health", healthCheck)
		api.GET("/config_status", status.ConfigStatus)

		api.POST("/upload", docs.Upload)

		documents := api.Group("/documents")
		{
			documents.GET("", docs.List)
			documents.GET("/:id", docs.Get)
			documents.PATCH("/:id", docs.Update)
			documents.DELETE("/:id", docs.Delete)
			documents.GET("/:id/download", docs.Download)
		}

		api.GET("/search", query.Search)
		api.POST("/ask", query.Ask)
	}

	return r, nil
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func normaliseBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "folio"})
}
