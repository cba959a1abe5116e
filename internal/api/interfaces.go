// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/sonde-czml/backend/internal/czml"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/session"
	"github.com/sonde-czml/backend/internal/trackstore"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// FileHandler handles uploaded document operations
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
}

// SessionHandler handles conversion session operations
type SessionHandler interface {
	HandleStartSession(c echo.Context) error
	HandleSessionStatus(c echo.Context) error
	HandleSessionProgressStream(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleGetCZML(c echo.Context) error
	HandleGetTracks(c echo.Context) error
	HandleGetSamples(c echo.Context) error
	HandleGetSamplesMsgpack(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(fileIDs, filePaths []string, sel models.Selection) (*models.ConvertSession, error)
	GetSession(id string) (*models.ConvertSession, bool)
	TouchSession(id string) bool
	GetDocument(id string) (*czml.Document, error)
	GetTracks(id string) ([]session.TrackSummary, error)
	QuerySamples(ctx context.Context, id string, params trackstore.QueryParams, page, pageSize int) ([]trackstore.Sample, int, error)
}

var _ SessionManager = (*session.Manager)(nil)
