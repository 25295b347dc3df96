// Package server exposes the completion pipeline to editors over local HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/logging"
	"github.com/kyleking/current/internal/monitor"
	"github.com/kyleking/current/internal/pipeline"
	"github.com/kyleking/current/internal/schema"
)

const (
	// RequestIDHeader carries the per-HTTP-request correlation ID
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Completer runs one completion request
type Completer interface {
	Complete(ctx context.Context, document string, cursor int) pipeline.Result
}

// Server is the editor-facing HTTP surface
type Server struct {
	addr      string
	engine    *gin.Engine
	completer Completer
	schema    *schema.Descriptor
	model     string
	monitor   *monitor.Monitor
	logger    *logging.Logger
}

// Option is a functional option for configuring a Server
type Option func(*Server)

// WithModel sets the model name reported by the health endpoint
func WithModel(model string) Option {
	return func(s *Server) {
		s.model = model
	}
}

// WithMonitor enables GET /v1/stats
func WithMonitor(m *monitor.Monitor) Option {
	return func(s *Server) {
		s.monitor = m
	}
}

// WithLogger overrides the global logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds the router. A nil descriptor is served as an empty schema.
func New(cfg config.ServerConfig, completer Completer, desc *schema.Descriptor, opts ...Option) (*Server, error) {
	if desc == nil {
		desc = schema.Empty()
	}

	s := &Server{
		addr:      cfg.Addr,
		completer: completer,
		schema:    desc,
		logger:    logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	if len(cfg.AllowOrigins) > 0 {
		corsCfg := corsConfig(cfg.AllowOrigins)
		if err := corsCfg.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeConfig, "invalid server.allow_origins")
		}
		engine.Use(cors.New(corsCfg))
	}

	engine.GET("/healthz", s.handleHealth)

	v1 := engine.Group("/v1")
	v1.POST("/complete", s.handleComplete)
	v1.GET("/schema", s.handleSchema)
	v1.GET("/stats", s.handleStats)

	s.engine = engine

	return s, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", RequestIDHeader}
	cfg.ExposeHeaders = []string{RequestIDHeader}
	cfg.MaxAge = 12 * time.Hour

	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}

	cfg.AllowOrigins = origins

	return cfg
}

// Handler returns the router for use with httptest or a custom listener
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is canceled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeConfig, "failed to listen on %s", s.addr)
	}

	return s.Serve(ctx, ln)
}

// Serve handles connections on ln until ctx is canceled, then shuts down
// gracefully. A clean shutdown returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.WithField("addr", ln.Addr().String()).Info("Server listening")

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, errors.ErrTypeInternal, "server stopped unexpectedly")
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Info("Shutting down server")

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(pipeline.WithRequestID(c.Request.Context(), id))

		start := time.Now()
		c.Next()

		s.logger.WithFields(map[string]interface{}{
			"http_request_id": id,
			"method":          c.Request.Method,
			"path":            c.FullPath(),
			"status":          c.Writer.Status(),
			"duration":        time.Since(start),
		}).Debug("HTTP request")
	}
}

type completeRequest struct {
	Document string `json:"document"`
	Cursor   *int   `json:"cursor"`
}

type completeResponse struct {
	RequestID  string `json:"request_id"`
	Mode       string `json:"mode"`
	Query      string `json:"query"`
	Suggestion string `json:"suggestion"`
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
}

// handleComplete answers 200 even when the suggestion is empty
func (s *Server) handleComplete(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cursor := utf8.RuneCountInString(req.Document)
	if req.Cursor != nil {
		cursor = *req.Cursor
	}

	result := s.completer.Complete(c.Request.Context(), req.Document, cursor)

	resp := completeResponse{
		RequestID:  result.RequestID,
		Mode:       result.Mode.String(),
		Query:      result.Query,
		Suggestion: result.Suggestion,
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
		resp.ErrorType = string(errors.GetType(result.Err))
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSchema(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"formatted": s.schema.Format(),
		"tables":    s.schema.Tables(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "statistics are not enabled"})
		return
	}

	c.JSON(http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  s.model,
		"tables": s.schema.Len(),
	})
}
