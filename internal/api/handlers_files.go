// handlers_files.go - Uploaded document handlers
package api

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sonde-czml/backend/internal/metrics"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/storage"
)

const (
	defaultRecentFiles = 20
	maxRecentFiles     = 200
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store   storage.Store
	metrics *metrics.Metrics
}

// NewFileHandler creates a new file handler instance. m may be nil.
func NewFileHandler(store storage.Store, m *metrics.Metrics) FileHandler {
	return &FileHandlerImpl{
		store:   store,
		metrics: m,
	}
}

// HandleUploadFile accepts a document as base64 JSON and saves it to storage
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.SaveBytes(req.Name, decoded)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	h.metrics.ObserveUpload(string(info.Kind))

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary accepts a raw document upload (multipart/form-data)
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	h.metrics.ObserveUpload(string(info.Kind))

	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles lists recently uploaded documents, newest first.
// ?kind= restricts the list to one document kind.
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := defaultRecentFiles
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRecentFiles {
			return NewValidationError("limit")
		}
		limit = n
	}

	files, err := h.store.List(0)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	kind := models.DocumentKind(c.QueryParam("kind"))
	out := make([]*models.FileInfo, 0, limit)
	for _, f := range files {
		if kind != "" && f.Kind != kind {
			continue
		}
		out = append(out, f)
		if len(out) == limit {
			break
		}
	}

	return c.JSON(http.StatusOK, out)
}

// HandleGetFile returns metadata for a specific document
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return fileError(id, err)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a stored document
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return fileError(id, err)
	}

	return c.NoContent(http.StatusNoContent)
}

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}
