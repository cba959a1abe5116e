package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sonde-czml/backend/internal/api"
	"github.com/sonde-czml/backend/internal/config"
	"github.com/sonde-czml/backend/internal/convert"
	"github.com/sonde-czml/backend/internal/logger"
	"github.com/sonde-czml/backend/internal/metrics"
	"github.com/sonde-czml/backend/internal/session"
	"github.com/sonde-czml/backend/internal/storage"
	"github.com/sonde-czml/backend/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Advanced.LogLevel, cfg.Advanced.LogFormat, cfg.Advanced.Debug)
	slog.SetDefault(log)

	if err := run(cfg, *configPath, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string, log *slog.Logger) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	m := metrics.New()

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	styles, err := cfg.Output.LoadStyles()
	if err != nil {
		return err
	}
	defaultSelection, err := cfg.Selection.Build()
	if err != nil {
		return fmt.Errorf("default selection: %w", err)
	}

	sessionMgr, err := session.NewManager(session.Config{
		TempDir:         cfg.Storage.TempDirectory,
		MaxSessions:     cfg.Processing.MaxSessions,
		KeepAliveWindow: time.Duration(cfg.Processing.SessionKeepAliveSeconds) * time.Second,
		Defaults: convert.Options{
			DocumentName:        cfg.Output.DocumentName,
			DocumentDescription: cfg.Output.DocumentDescription,
			ClockMultiplier:     cfg.Output.ClockMultiplier,
			Styles:              styles,
		},
	}, m, log)
	if err != nil {
		return fmt.Errorf("initialize sessions: %w", err)
	}
	defer sessionMgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background session cleanup
	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := sessionMgr.CleanupOldSessions(cfg.SessionTimeout()); n > 0 {
					log.Info("expired sessions removed", "count", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	e := newEcho(cfg, log)

	handlers := api.NewHandlers(&api.Dependencies{
		Store:            fileStore,
		SessionMgr:       sessionMgr,
		Metrics:          m,
		Version:          Version,
		DefaultSelection: defaultSelection,
		DefaultPageSize:  cfg.Processing.DefaultPageSize,
		MaxPageSize:      cfg.Processing.MaxPageSize,
	})
	api.RegisterRoutes(e, handlers, m)

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warn("failed to register static routes", "error", err)
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	log.Info("sonde czml server starting",
		"version", Version,
		"build_time", BuildTime,
		"config", configPath,
		"listen", cfg.GetServerAddr(),
		"data_dir", cfg.Storage.DataDirectory,
		"environment", cfg.Advanced.Environment)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho(cfg *config.AppConfig, log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = api.NewErrorHandler(log, cfg.IsDevelopment())

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/progress") ||
				path == "/api/health" ||
				path == "/api/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))

	if cfg.Server.RequestTimeoutSeconds > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Request().URL.Path, "/progress") ||
					strings.Contains(c.Request().URL.Path, "/upload")
			},
			ErrorMessage: "Request timeout",
		}))
	}

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/progress")
		},
	}))

	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	if cfg.Server.EnableCORS {
		origins := []string{"*"}
		if cfg.Server.AllowOrigins != "" {
			origins = strings.Split(cfg.Server.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	return e
}
