package models

// SessionStatus represents the status of a conversion session.
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusConverting SessionStatus = "converting"
	SessionStatusComplete   SessionStatus = "complete"
	SessionStatusError      SessionStatus = "error"
)

// ConvertSession represents one asynchronous conversion of uploaded documents.
type ConvertSession struct {
	ID               string         `json:"id"`
	FileIDs          []string       `json:"fileIds"`
	Status           SessionStatus  `json:"status"`
	Progress         float64        `json:"progress"` // 0-100
	RecordCount      int            `json:"recordCount,omitempty"`
	AcceptedCount    int            `json:"acceptedCount,omitempty"`
	MalformedCount   int            `json:"malformedCount,omitempty"`
	VehicleCount     int            `json:"vehicleCount,omitempty"`
	TrackCount       int            `json:"trackCount,omitempty"`
	ReceiverCount    int            `json:"receiverCount,omitempty"`
	ProcessingTimeMs int64          `json:"processingTimeMs,omitempty"`
	StartTime        int64          `json:"startTime,omitempty"` // Unix ms
	EndTime          int64          `json:"endTime,omitempty"`   // Unix ms
	SampleCount      int            `json:"sampleCount,omitempty"`
	SampleVehicles   []string       `json:"sampleVehicles,omitempty"`
	SampleStartTime  int64          `json:"sampleStartTime,omitempty"` // Unix ms
	SampleEndTime    int64          `json:"sampleEndTime,omitempty"`   // Unix ms
	Selection        *Selection     `json:"selection,omitempty"`
	Errors           []ConvertError `json:"errors,omitempty"`
}

// ConvertError is a problem recorded against a session. File is empty for
// errors that are not tied to one input document.
type ConvertError struct {
	File   string `json:"file,omitempty"`
	Reason string `json:"reason"`
}

// Selection is the spatio-temporal filter a session was run with.
type Selection struct {
	Volume            BoundingVolume `json:"volume"`
	Window            TimeWindow     `json:"window"`
	ClampSpanToWindow bool           `json:"clampSpanToWindow,omitempty"`
}

// DefaultSelection accepts every well-formed record.
func DefaultSelection() Selection {
	return Selection{
		Volume: DefaultBoundingVolume(),
		Window: UnboundedWindow(),
	}
}

// NewConvertSession creates a new ConvertSession in pending status.
func NewConvertSession(id string, fileIDs []string) *ConvertSession {
	return &ConvertSession{
		ID:      id,
		FileIDs: fileIDs,
		Status:  SessionStatusPending,
		Errors:  make([]ConvertError, 0),
	}
}
