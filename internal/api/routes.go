// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/sonde-czml/backend/internal/metrics"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store            storage.Store
	SessionMgr       SessionManager
	Metrics          *metrics.Metrics
	Version          string
	DefaultSelection models.Selection
	DefaultPageSize  int
	MaxPageSize      int
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Files    FileHandler
	Sessions SessionHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	sessions := NewSessionHandler(deps.Store, deps.SessionMgr, SessionHandlerOptions{
		DefaultSelection: deps.DefaultSelection,
		DefaultPageSize:  deps.DefaultPageSize,
		MaxPageSize:      deps.MaxPageSize,
	})
	return &Handlers{
		Health:   NewHealthHandler(deps.Version),
		Files:    NewFileHandler(deps.Store, deps.Metrics),
		Sessions: sessions,
	}
}

// RegisterRoutes registers all API routes with the Echo instance.
// The metrics endpoint is only mounted when m is non-nil.
func RegisterRoutes(e *echo.Echo, handlers *Handlers, m *metrics.Metrics) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)
	if m != nil {
		apiGroup.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	// Document uploads
	files := apiGroup.Group("/files")
	files.POST("/upload", handlers.Files.HandleUploadFile)
	files.POST("/upload/binary", handlers.Files.HandleUploadBinary)
	files.GET("/recent", handlers.Files.HandleGetRecentFiles)
	files.GET("/:id", handlers.Files.HandleGetFile)
	files.DELETE("/:id", handlers.Files.HandleDeleteFile)

	// Conversion sessions
	sessions := apiGroup.Group("/sessions")
	sessions.POST("", handlers.Sessions.HandleStartSession)
	sessions.GET("/:sessionId/status", handlers.Sessions.HandleSessionStatus)
	sessions.GET("/:sessionId/progress", handlers.Sessions.HandleSessionProgressStream)
	sessions.POST("/:sessionId/keepalive", handlers.Sessions.HandleSessionKeepAlive)
	sessions.GET("/:sessionId/czml", handlers.Sessions.HandleGetCZML)
	sessions.GET("/:sessionId/tracks", handlers.Sessions.HandleGetTracks)
	sessions.GET("/:sessionId/samples", handlers.Sessions.HandleGetSamples)
	sessions.GET("/:sessionId/samples/msgpack", handlers.Sessions.HandleGetSamplesMsgpack)
}
