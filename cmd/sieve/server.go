package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/sievebot/sieve/modstats"
	"github.com/sievebot/sieve/modstats/actionstore"
	"github.com/sievebot/sieve/modstats/eventstore"
	"github.com/sievebot/sieve/modstats/reportcache"
	"github.com/sievebot/sieve/projector"
)

type Server struct {
	logger    *slog.Logger
	db        *gorm.DB
	echo      *echo.Echo
	httpd     *http.Server
	events    eventstore.EventStore
	engine    *modstats.Engine
	projector *projector.Projector
}

type Config struct {
	Logger          *slog.Logger
	RedisURL        string
	HighTrustCheck  string
	RecentVetoLimit int
	IngestRateLimit int
	ReportCacheTTL  time.Duration
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	events, err := eventstore.NewGormEventStore(db)
	if err != nil {
		return nil, err
	}
	actions, err := actionstore.NewGormActionStore(db)
	if err != nil {
		return nil, err
	}
	proj, err := projector.NewProjector(db, logger)
	if err != nil {
		return nil, err
	}

	var cache reportcache.CacheStore
	if config.RedisURL != "" {
		rc, err := reportcache.NewRedisCacheStore(config.RedisURL, config.ReportCacheTTL)
		if err != nil {
			return nil, err
		}
		cache = rc
		logger.Info("using redis report cache")
	} else {
		cache = reportcache.NewMemCacheStore(1_000, config.ReportCacheTTL)
	}

	engine := &modstats.Engine{
		Logger:          logger,
		Events:          events,
		Actions:         actions,
		Cache:           cache,
		HighTrustCheck:  config.HighTrustCheck,
		RecentVetoLimit: config.RecentVetoLimit,
	}

	s := &Server{
		logger:    logger,
		db:        db,
		events:    events,
		engine:    engine,
		projector: proj,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("sieve"))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = s.errorHandler

	ingestLimit := config.IngestRateLimit
	if ingestLimit <= 0 {
		ingestLimit = 50
	}
	ingestLimiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(ingestLimit)))

	e.GET("/_health", s.handleHealthCheck)

	e.POST("/api/messages", s.handlePutMessage, ingestLimiter)
	e.POST("/api/detections", s.handleAddDetection, ingestLimiter)
	e.POST("/api/retention/sweep", s.handleRetentionSweep)

	e.POST("/api/users", s.handleCreateUser)
	e.GET("/api/users/:id/moderation", s.handleGetModerationState)
	e.GET("/api/users/:id/moderation/rebuild", s.handleRebuildModerationState)
	e.POST("/api/users/:id/ban", s.handleSetBanStatus)
	e.POST("/api/users/:id/warnings", s.handleAddWarning)
	e.POST("/api/users/:id/trust", s.handleUpdateTrustStatus)

	e.GET("/api/reports/accuracy", s.handleAccuracyReport)
	e.GET("/api/reports/response-times", s.handleResponseTimeReport)
	e.GET("/api/reports/algorithms", s.handleAlgorithmReport)
	e.GET("/api/reports/vetoes", s.handleVetoReport)
	e.GET("/api/reports/full", s.handleFullReport)

	s.echo = e
	return s, nil
}

func (s *Server) RunAPI(listen string) error {
	s.httpd = &http.Server{
		Handler:        s.echo,
		Addr:           listen,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	s.logger.Info("starting server", "bind", listen)
	go func() {
		if err := s.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	quit := make(chan struct{})
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-exitSignals
		s.logger.Info("received OS exit signal", "signal", sig)
		if err := s.Shutdown(); err != nil {
			s.logger.Error("HTTP server shutdown error", "err", err)
		}
		close(quit)
	}()
	<-quit
	s.logger.Info("graceful shutdown complete")
	return nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpd.Shutdown(ctx)
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "sieve"})
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
	}
	if code >= 500 {
		s.logger.Warn("sieve-http-internal-error", "err", err)
	}
	if !c.Response().Committed {
		c.JSON(code, map[string]any{"error": http.StatusText(code)})
	}
}
