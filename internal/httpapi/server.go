// Package httpapi exposes the capture and reconstruction operations over a
// small JSON API consumed by the capture client.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"facet/internal/config"
	"facet/internal/logging"
	"facet/internal/recon"
	"facet/internal/session"
)

// Server hosts the REST surface over the session store and job manager.
type Server struct {
	cfg      *config.Config
	sessions *session.Store
	manager  *recon.Manager
	logger   *slog.Logger
	http     *http.Server
}

// New builds the server and its route table.
func New(cfg *config.Config, sessions *session.Store, manager *recon.Manager, logger *slog.Logger) *Server {
	server := &Server{
		cfg:      cfg,
		sessions: sessions,
		manager:  manager,
		logger:   logging.NewComponentLogger(logger, "httpapi"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), server.requestLog())

	router.GET("/healthz", server.health)
	v1 := router.Group("/api/v1")
	v1.POST("/session", server.createSession)
	v1.GET("/sessions", server.listSessions)
	v1.DELETE("/session/:id", server.deleteSession)
	v1.POST("/session/:id/image", server.addImage)
	v1.POST("/session/:id/reconstruct", server.startReconstruction)
	v1.GET("/job/:id/status", server.jobStatus)
	v1.GET("/job/:id/artifact/:format", server.jobArtifact)

	server.http = &http.Server{
		Addr:              cfg.Paths.APIBind,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server
}

// ListenAndServe blocks serving requests until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("api listening", logging.String("bind", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail translates domain errors into the API's status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, recon.ErrUnknownJob),
		errors.Is(err, recon.ErrArtifactMissing):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrImageLimit), errors.Is(err, session.ErrClosed),
		errors.Is(err, recon.ErrInsufficientImages), errors.Is(err, recon.ErrJobNotReady),
		errors.Is(err, recon.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	case errors.Is(err, recon.ErrBusy):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			logging.String("path", c.Request.URL.Path), logging.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
