// handlers_session.go - Conversion session handlers
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/sonde-czml/backend/internal/filter"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/storage"
	"github.com/sonde-czml/backend/internal/trackstore"
	"github.com/vmihailenco/msgpack/v5"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	store            storage.Store
	sessionMgr       SessionManager
	defaultSelection models.Selection
	defaultPageSize  int
	maxPageSize      int
	progressInterval time.Duration
	progressTimeout  time.Duration
}

// SessionHandlerOptions carries request defaults.
type SessionHandlerOptions struct {
	DefaultSelection models.Selection
	DefaultPageSize  int
	MaxPageSize      int
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(store storage.Store, sessionMgr SessionManager, opts SessionHandlerOptions) SessionHandler {
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = 500
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &SessionHandlerImpl{
		store:            store,
		sessionMgr:       sessionMgr,
		defaultSelection: opts.DefaultSelection,
		defaultPageSize:  opts.DefaultPageSize,
		maxPageSize:      opts.MaxPageSize,
		progressInterval: 200 * time.Millisecond,
		progressTimeout:  5 * time.Minute,
	}
}

// HandleStartSession starts converting one or more stored documents
func (h *SessionHandlerImpl) HandleStartSession(c echo.Context) error {
	var req startSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	fileIDs := req.normalizeFileIDs()
	if len(fileIDs) == 0 {
		return NewValidationError("fileId or fileIds")
	}

	sel, err := req.selection(h.defaultSelection)
	if err != nil {
		return err
	}

	filePaths, err := h.resolveFilePaths(fileIDs)
	if err != nil {
		return err
	}

	sess, err := h.sessionMgr.StartSession(fileIDs, filePaths, sel)
	if err != nil {
		return NewInternalError("failed to start session", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleSessionStatus returns the current status of a session
func (h *SessionHandlerImpl) HandleSessionStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleSessionProgressStream streams session status via SSE until the
// session finishes
func (h *SessionHandlerImpl) HandleSessionProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	h.sendSSEData(c, sess)
	if isFinished(sess) {
		return nil
	}

	ticker := time.NewTicker(h.progressInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(h.progressTimeout)
	defer timeout.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ticker.C:
			sess, ok := h.sessionMgr.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}
			h.sendSSEData(c, sess)
			if isFinished(sess) {
				return nil
			}
		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// HandleGetCZML returns the CZML document of a completed session.
// ?download=true adds an attachment disposition.
func (h *SessionHandlerImpl) HandleGetCZML(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	doc, err := h.sessionMgr.GetDocument(id)
	if err != nil {
		return sessionError(id, err)
	}
	h.sessionMgr.TouchSession(id)

	data, err := json.Marshal(doc)
	if err != nil {
		return NewInternalError("failed to encode CZML", err)
	}

	if c.QueryParam("download") == "true" {
		c.Response().Header().Set(echo.HeaderContentDisposition,
			fmt.Sprintf("attachment; filename=%q", "session_"+id+".czml"))
	}
	return c.Blob(http.StatusOK, "application/json", data)
}

// HandleGetTracks returns the exported track summaries of a session
func (h *SessionHandlerImpl) HandleGetTracks(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	tracks, err := h.sessionMgr.GetTracks(id)
	if err != nil {
		return sessionError(id, err)
	}

	return c.JSON(http.StatusOK, tracks)
}

// HandleGetSamples returns paginated samples of a session as JSON
func (h *SessionHandlerImpl) HandleGetSamples(c echo.Context) error {
	resp, err := h.querySamples(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetSamplesMsgpack returns paginated samples in MessagePack format
func (h *SessionHandlerImpl) HandleGetSamplesMsgpack(c echo.Context) error {
	resp, err := h.querySamples(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func (h *SessionHandlerImpl) querySamples(c echo.Context) (*samplesResponse, error) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}

	page := 1
	if v := c.QueryParam("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, NewValidationError("page")
		}
		page = n
	}
	pageSize := h.defaultPageSize
	if v := c.QueryParam("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.maxPageSize {
			return nil, NewValidationError("pageSize")
		}
		pageSize = n
	}

	params := trackstore.QueryParams{Vehicle: c.QueryParam("vehicle")}
	if v := c.QueryParam("start"); v != "" {
		t, err := filter.ParseWindowBound(v)
		if err != nil {
			return nil, NewBadRequestError("invalid start", err)
		}
		params.Start = t
	}
	if v := c.QueryParam("end"); v != "" {
		t, err := filter.ParseWindowBound(v)
		if err != nil {
			return nil, NewBadRequestError("invalid end", err)
		}
		params.End = t
	}

	samples, total, err := h.sessionMgr.QuerySamples(c.Request().Context(), id, params, page, pageSize)
	if err != nil {
		return nil, sessionError(id, err)
	}
	h.sessionMgr.TouchSession(id)

	return &samplesResponse{
		Samples:  samples,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// Request/Response types

type startSessionRequest struct {
	FileID            string      `json:"fileId"`
	FileIDs           []string    `json:"fileIds"`
	BBox              *[4]float64 `json:"bbox"`
	HeightRange       *[2]float64 `json:"heightRange"`
	After             string      `json:"after"`
	Before            string      `json:"before"`
	ClampSpanToWindow *bool       `json:"clampSpanToWindow"`
}

func (r *startSessionRequest) normalizeFileIDs() []string {
	if len(r.FileIDs) > 0 {
		return r.FileIDs
	}
	if r.FileID != "" {
		return []string{r.FileID}
	}
	return nil
}

// selection overlays the request's filter on the server defaults.
func (r *startSessionRequest) selection(def models.Selection) (models.Selection, error) {
	sel := def
	if r.BBox != nil {
		sel.Volume.MinLon, sel.Volume.MaxLon = r.BBox[0], r.BBox[1]
		sel.Volume.MinLat, sel.Volume.MaxLat = r.BBox[2], r.BBox[3]
	}
	if r.HeightRange != nil {
		sel.Volume.MinElevation, sel.Volume.MaxElevation = r.HeightRange[0], r.HeightRange[1]
	}
	if r.After != "" {
		t, err := filter.ParseWindowBound(r.After)
		if err != nil {
			return sel, NewBadRequestError("invalid after", err)
		}
		sel.Window.After = t
	}
	if r.Before != "" {
		t, err := filter.ParseWindowBound(r.Before)
		if err != nil {
			return sel, NewBadRequestError("invalid before", err)
		}
		sel.Window.Before = t
	}
	if r.ClampSpanToWindow != nil {
		sel.ClampSpanToWindow = *r.ClampSpanToWindow
	}
	return sel, nil
}

type samplesResponse struct {
	Samples  []trackstore.Sample `json:"samples" msgpack:"samples"`
	Page     int                 `json:"page" msgpack:"page"`
	PageSize int                 `json:"pageSize" msgpack:"pageSize"`
	Total    int                 `json:"total" msgpack:"total"`
}

// Helper methods

func (h *SessionHandlerImpl) resolveFilePaths(fileIDs []string) ([]string, error) {
	filePaths := make([]string, 0, len(fileIDs))
	for _, fid := range fileIDs {
		if _, err := h.store.Get(fid); err != nil {
			return nil, fileError(fid, err)
		}
		path, err := h.store.GetFilePath(fid)
		if err != nil {
			return nil, NewInternalError("failed to get file path", err)
		}
		filePaths = append(filePaths, path)
	}
	return filePaths, nil
}

func (h *SessionHandlerImpl) sendSSEData(c echo.Context, data any) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *SessionHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

func isFinished(s *models.ConvertSession) bool {
	return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
}
