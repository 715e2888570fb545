// Package server exposes the LINE webhook endpoint and the admin and debug
// routes over echo.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"keyword_relay/internal/cache"
	"keyword_relay/internal/metrics"
)

const (
	callbackBodyLimit   = "1M"
	defaultReplyTimeout = 10 * time.Second
)

// Options wires a Server.
type Options struct {
	Tenants  []Tenant
	Cache    *cache.RuleCache
	Recorder Recorder

	// FallbackReply is sent when no rule matches. Empty means no reply.
	FallbackReply string
	// LogMatched records matched messages as well as unmatched ones.
	LogMatched   bool
	ReplyTimeout time.Duration
	AdminToken   string

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Server struct {
	echo *echo.Echo

	tenants       []Tenant
	cache         *cache.RuleCache
	recorder      Recorder
	fallbackReply string
	logMatched    bool
	replyTimeout  time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}

	s := &Server{
		echo:          echo.New(),
		tenants:       opts.Tenants,
		cache:         opts.Cache,
		recorder:      opts.Recorder,
		fallbackReply: opts.FallbackReply,
		logMatched:    opts.LogMatched,
		replyTimeout:  opts.ReplyTimeout,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	// Routes
	e.GET("/callback", handleVerify)
	e.POST("/callback", s.handleCallback, middleware.BodyLimit(callbackBodyLimit))
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	// Admin endpoints for manual reload and debugging
	admin := e.Group("/admin")
	if opts.AdminToken != "" {
		admin.Use(adminAuth(opts.AdminToken))
	}
	admin.POST("/reload/:table", s.handleReloadTable)
	admin.POST("/reload-all", s.handleReloadAll)
	admin.GET("/cache-info", s.handleCacheInfo)
	admin.POST("/match", s.handleMatch)
	admin.GET("/match", s.handleMatch)

	return s
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Keyword relay listening",
		slog.String("addr", addr),
		slog.Int("tenants", len(s.tenants)))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.Any("error", v.Error))
				s.logger.LogAttrs(c.Request().Context(), slog.LevelWarn, "Request failed", attrs...)
				return nil
			}
			s.logger.LogAttrs(c.Request().Context(), slog.LevelDebug, "Request", attrs...)
			return nil
		},
	})
}

func adminAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
	})
}
