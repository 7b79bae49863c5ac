// Package server exposes the Click Fit HTTP API and the bundled front end.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/kdsmith18542/clickfit/config"
	"github.com/kdsmith18542/clickfit/gallery"
	"github.com/kdsmith18542/clickfit/logging"
	"github.com/kdsmith18542/clickfit/messages"
	"github.com/kdsmith18542/clickfit/upload"
	"github.com/kdsmith18542/clickfit/upload/storage"
	"github.com/kdsmith18542/clickfit/users"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	corsMaxAge        = 12 * time.Hour
)

// Options holds the collaborators of a Server. Hub, Users and Static are
// optional.
type Options struct {
	Config    *config.Config
	Logger    *logging.Logger
	Messages  *messages.Manager
	Processor *upload.Processor
	Gallery   *gallery.Service
	Storage   storage.Storage
	Hub       *gallery.Hub
	Users     *users.Store
	Static    fs.FS
}

// Server is the HTTP front of the application.
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	messages  *messages.Manager
	processor *upload.Processor
	gallery   *gallery.Service
	storage   storage.Storage
	hub       *gallery.Hub
	users     *users.Store
	static    fs.FS
	index     []byte

	engine *gin.Engine
	http   *http.Server
}

// New builds the router.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("config is required")
	case opts.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case opts.Messages == nil:
		return nil, fmt.Errorf("message manager is required")
	case opts.Processor == nil || opts.Gallery == nil || opts.Storage == nil:
		return nil, fmt.Errorf("upload processor, gallery and storage are required")
	}

	s := &Server{
		cfg:       opts.Config,
		logger:    opts.Logger.Named("http"),
		messages:  opts.Messages,
		processor: opts.Processor,
		gallery:   opts.Gallery,
		storage:   opts.Storage,
		hub:       opts.Hub,
		users:     opts.Users,
		static:    opts.Static,
	}

	if s.static != nil {
		index, err := fs.ReadFile(s.static, "index.html")
		if err != nil {
			return nil, fmt.Errorf("static assets have no index.html: %w", err)
		}
		s.index = index
	}

	s.engine = s.routes()
	s.http = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	if s.cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Route on the escaped path so an encoded "/" stays inside the
	// :filename segment and is rejected by name validation.
	r.UseRawPath = true
	r.UnescapePathValues = true
	_ = r.SetTrustedProxies(nil)

	r.Use(
		requestID(),
		s.recovery(),
		s.accessLog(),
		tracing(),
		cors.New(s.corsConfig()),
		s.locale(),
	)

	api := r.Group("/api")
	api.GET("/health", s.health)

	up := api.Group("/upload")
	up.POST("", s.uploadSingle)
	up.POST("/multiple", s.uploadMultiple)
	up.GET("/list", s.listImages)
	up.DELETE("/:filename", s.deleteImage)
	if s.hub != nil {
		up.GET("/events", gin.WrapH(s.hub))
	}

	u := api.Group("/users", s.requireUsers())
	u.GET("", s.listUsers)
	u.GET("/:id", s.getUser)
	u.POST("", s.createUser)
	u.PUT("/:id/toggle", s.toggleUser)
	u.DELETE("/:id", s.deleteUser)

	prefix := strings.TrimSuffix(s.cfg.PublicPrefix, "/")
	r.GET(prefix+"/:filename", s.serveImage)
	r.HEAD(prefix+"/:filename", s.serveImage)

	r.NoRoute(s.noRoute)
	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		AllowWebSockets:  true,
		MaxAge:           corsMaxAge,
	}

	var origins []string
	for _, o := range strings.Split(s.cfg.CORSOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the caller's origin; a literal "*" is refused by
		// browsers once credentials are allowed.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	if s.hub != nil {
		_ = s.hub.Close()
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   s.tr(c).T("api.health", nil),
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
