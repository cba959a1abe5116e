package models

import "time"

// FileInfo represents metadata about an uploaded document.
type FileInfo struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Size       int64        `json:"size"`
	UploadedAt time.Time    `json:"uploadedAt"`
	Kind       DocumentKind `json:"kind"`
	Status     string       `json:"status"` // "uploaded", "converting", "converted", "error"
}
