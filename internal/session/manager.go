package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sonde-czml/backend/internal/convert"
	"github.com/sonde-czml/backend/internal/czml"
	"github.com/sonde-czml/backend/internal/metrics"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/parser"
	"github.com/sonde-czml/backend/internal/trackstore"
)

// DefaultMaxSessions limits how many sessions are kept in memory.
const DefaultMaxSessions = 10

// DefaultKeepAliveWindow protects recently accessed sessions from cleanup.
const DefaultKeepAliveWindow = 5 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionNotReady = errors.New("session not complete")
)

// Config configures a Manager. Zero values fall back to the defaults.
type Config struct {
	TempDir         string
	MaxSessions     int
	KeepAliveWindow time.Duration
	// Defaults carries the document settings copied into every run.
	Defaults convert.Options
}

// TrackSummary describes one exported track of a session.
type TrackSummary struct {
	VehicleID string `json:"vehicleId"`
	Start     int64  `json:"start"` // Unix ms
	End       int64  `json:"end"`   // Unix ms
	Samples   int    `json:"samples"`
	Untimed   int    `json:"untimed,omitempty"`
}

// Manager runs conversion sessions in the background and keeps their
// results until they age out.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	tempDir     string
	maxSessions int
	keepAlive   time.Duration
	defaults    convert.Options
	metrics     *metrics.Metrics
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SessionState holds the session metadata, the conversion result and the
// DuckDB-backed sample store.
type SessionState struct {
	Session      *models.ConvertSession
	Result       *convert.Result
	Samples      *trackstore.SampleStore
	LastAccessed time.Time
}

// NewManager creates a session manager. m may be nil.
func NewManager(cfg Config, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.KeepAliveWindow <= 0 {
		cfg.KeepAliveWindow = DefaultKeepAliveWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions:    make(map[string]*SessionState),
		tempDir:     cfg.TempDir,
		maxSessions: cfg.MaxSessions,
		keepAlive:   cfg.KeepAliveWindow,
		defaults:    cfg.Defaults,
		metrics:     m,
		logger:      logger.With("component", "session"),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// StartSession converts the given stored documents in the background.
// fileIDs and filePaths are parallel; later files override earlier ones.
func (m *Manager) StartSession(fileIDs, filePaths []string, sel models.Selection) (*models.ConvertSession, error) {
	if len(fileIDs) == 0 || len(fileIDs) != len(filePaths) {
		return nil, fmt.Errorf("mismatched fileIDs and filePaths")
	}

	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	session := models.NewConvertSession(sessionID, fileIDs)
	session.Status = models.SessionStatusConverting
	session.Selection = &sel

	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	snapshot := copySession(session)
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(count)

	m.wg.Add(1)
	go m.runConvert(sessionID, fileIDs, filePaths, sel)

	return snapshot, nil
}

func (m *Manager) runConvert(sessionID string, fileIDs, filePaths []string, sel models.Selection) {
	defer m.wg.Done()
	log := m.logger.With("session", sessionID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("conversion panicked", "panic", r)
			m.updateSessionError(sessionID, "", fmt.Sprintf("conversion panicked: %v", r))
		}
	}()

	start := time.Now()
	log.Info("starting conversion", "files", len(filePaths))
	m.setProgress(sessionID, 10)

	opts := m.defaults
	opts.Selection = sel
	opts.Inputs = nil
	opts.ReceiverFiles = nil
	opts.PositionFiles = filePaths

	res, err := convert.Run(m.ctx, opts, log)
	if err != nil {
		log.Error("conversion failed", "error", err)
		m.updateSessionError(sessionID, "", err.Error())
		m.metrics.ObserveConversion(string(models.SessionStatusError), float64(time.Since(start).Milliseconds()), 0)
		return
	}
	m.setProgress(sessionID, 60)

	store, err := m.fillSampleStore(sessionID, res)
	if err != nil {
		log.Error("storing samples failed", "error", err)
		m.updateSessionError(sessionID, "", fmt.Sprintf("failed to store samples: %v", err))
		m.metrics.ObserveConversion(string(models.SessionStatusError), float64(time.Since(start).Milliseconds()), 0)
		return
	}

	elapsed := time.Since(start).Milliseconds()
	fileByPath := make(map[string]string, len(filePaths))
	for i, p := range filePaths {
		fileByPath[p] = fileIDs[i]
	}

	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		store.Close()
		return
	}

	s := state.Session
	state.Result = res
	state.Samples = store
	s.Status = models.SessionStatusComplete
	s.Progress = 100
	s.RecordCount = res.Stats.Records
	s.AcceptedCount = res.Stats.Accepted
	s.MalformedCount = res.Stats.Malformed
	s.VehicleCount = len(res.Assembly.Tracks)
	s.TrackCount = len(res.Tracks)
	s.ReceiverCount = res.Receivers
	s.ProcessingTimeMs = elapsed
	if r := res.Assembly.Span.Range(); r != nil {
		s.StartTime = r.Start.UnixMilli()
		s.EndTime = r.End.UnixMilli()
	}
	s.SampleCount = store.Len()
	s.SampleVehicles = store.Vehicles()
	if r := store.TimeRange(); r != nil {
		s.SampleStartTime = r.Start.UnixMilli()
		s.SampleEndTime = r.End.UnixMilli()
	}
	for _, inErr := range res.InputErrs {
		ce := models.ConvertError{Reason: inErr.Error()}
		var pe *parser.InputParseError
		if errors.As(inErr, &pe) {
			ce.File = fileByPath[pe.Name]
		}
		s.Errors = append(s.Errors, ce)
	}
	m.mu.Unlock()

	st := res.Stats
	m.metrics.ObserveRecords(st.Accepted, st.Malformed, st.OutsideVolume, st.OutsideWindow, st.Untimed)
	m.metrics.ObserveConversion(string(models.SessionStatusComplete), float64(elapsed), len(res.Tracks))
	log.Info("session complete", "tracks", len(res.Tracks), "samples", store.Len(), "took_ms", elapsed)
}

func (m *Manager) fillSampleStore(sessionID string, res *convert.Result) (*trackstore.SampleStore, error) {
	store, err := trackstore.NewSampleStore(m.tempDir, sessionID, m.logger)
	if err != nil {
		return nil, err
	}
	for _, t := range res.Tracks {
		store.AddTrack(t)
	}
	if err := store.Finalize(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func (m *Manager) setProgress(sessionID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Progress = progress
	}
}

func (m *Manager) updateSessionError(sessionID, fileID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(state.Session.Errors, models.ConvertError{
		File:   fileID,
		Reason: reason,
	})
}

func isFinished(s *models.ConvertSession) bool {
	return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
}

// cleanupOldSessionsIfNeeded drops the least recently used finished
// sessions once the manager is at capacity.
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()

	if len(m.sessions) < m.maxSessions {
		m.mu.Unlock()
		return
	}

	var candidates []string
	for id, state := range m.sessions {
		if isFinished(state.Session) {
			candidates = append(candidates, id)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return m.sessions[candidates[i]].LastAccessed.Before(m.sessions[candidates[j]].LastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	for _, id := range candidates {
		if toFree == 0 {
			break
		}
		m.removeLocked(id)
		toFree--
		m.logger.Info("evicted session at capacity", "session", id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(count)
}

func (m *Manager) removeLocked(id string) {
	if state, ok := m.sessions[id]; ok {
		if state.Samples != nil {
			state.Samples.Close()
		}
		delete(m.sessions, id)
	}
}

// CleanupOldSessions removes finished sessions not accessed within maxAge.
// Sessions touched within the keep-alive window always survive.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()

	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-m.keepAlive)

	removed := 0
	for id, state := range m.sessions {
		if !isFinished(state.Session) {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			m.logger.Info("cleaned up aged session", "session", id,
				"idle", now.Sub(state.LastAccessed).Round(time.Second))
			m.removeLocked(id)
			removed++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()
	m.metrics.SetActiveSessions(count)
	return removed
}

// Close stops running conversions and releases every sample store.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	for id := range m.sessions {
		m.removeLocked(id)
	}
	m.mu.Unlock()
	m.metrics.SetActiveSessions(0)
}

// GetSession returns a copy of a session's metadata.
func (m *Manager) GetSession(id string) (*models.ConvertSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return copySession(state.Session), true
}

func copySession(s *models.ConvertSession) *models.ConvertSession {
	c := *s
	c.FileIDs = append([]string(nil), s.FileIDs...)
	c.Errors = append([]models.ConvertError(nil), s.Errors...)
	c.SampleVehicles = append([]string(nil), s.SampleVehicles...)
	if s.Selection != nil {
		sel := *s.Selection
		c.Selection = &sel
	}
	return &c
}

// TouchSession marks a session as in use so cleanup keeps it.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

func (m *Manager) completedLocked(id string) (*SessionState, error) {
	state, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if state.Session.Status != models.SessionStatusComplete || state.Result == nil {
		return nil, ErrSessionNotReady
	}
	return state, nil
}

// GetDocument returns the CZML document of a completed session.
func (m *Manager) GetDocument(id string) (*czml.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.completedLocked(id)
	if err != nil {
		return nil, err
	}
	return state.Result.Document, nil
}

// GetTracks summarises the exported tracks of a completed session in
// first-seen vehicle order.
func (m *Manager) GetTracks(id string) ([]TrackSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.completedLocked(id)
	if err != nil {
		return nil, err
	}

	out := make([]TrackSummary, 0, len(state.Result.Tracks))
	for _, t := range state.Result.Tracks {
		out = append(out, TrackSummary{
			VehicleID: t.VehicleID,
			Start:     t.Availability.Start.UnixMilli(),
			End:       t.Availability.End.UnixMilli(),
			Samples:   len(t.Coordinates),
			Untimed:   t.Untimed,
		})
	}
	return out, nil
}

// QuerySamples pages through the stored samples of a completed session.
func (m *Manager) QuerySamples(ctx context.Context, id string, params trackstore.QueryParams, page, pageSize int) ([]trackstore.Sample, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, err := m.completedLocked(id)
	if err != nil {
		return nil, 0, err
	}
	if state.Samples == nil {
		return []trackstore.Sample{}, 0, nil
	}

	samples, total, err := state.Samples.Query(ctx, params, page, pageSize)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			m.logger.Warn("sample query cancelled", "session", id)
		}
		return nil, 0, err
	}
	return samples, total, nil
}
