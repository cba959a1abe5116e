// Package trackstore keeps the exported samples of one conversion session in
// a temporary DuckDB file so they can be paged through without holding every
// track in memory.
package trackstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/track"
)

const defaultBatchSize = 10000

// Sample is one stored trajectory point.
type Sample struct {
	Vehicle string    `json:"vehicle" msgpack:"vehicle"`
	Time    time.Time `json:"time" msgpack:"time"`
	Lat     float64   `json:"lat" msgpack:"lat"`
	Lon     float64   `json:"lon" msgpack:"lon"`
	Alt     float64   `json:"alt" msgpack:"alt"`
}

// QueryParams narrows a sample query. Zero values leave that side open.
type QueryParams struct {
	Vehicle string
	Start   time.Time
	End     time.Time
}

// SampleStore holds samples in a DuckDB file owned by one session.
type SampleStore struct {
	db        *sql.DB
	dbPath    string
	logger    *slog.Logger
	count     int
	batchSize int
	batch     []Sample
	vehicles  map[string]int
	minTs     int64
	maxTs     int64
	lastError error

	// bounds concurrent queries per store
	querySem chan struct{}
}

// NewSampleStore creates session_<id>.duckdb inside tempDir.
func NewSampleStore(tempDir, sessionID string, logger *slog.Logger) (*SampleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "trackstore", "session", sessionID)
	dbPath := filepath.Join(tempDir, fmt.Sprintf("session_%s.duckdb", sessionID))

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='512MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE samples (
			id      BIGINT PRIMARY KEY,
			vehicle VARCHAR NOT NULL,
			ts      BIGINT NOT NULL,
			lat     DOUBLE NOT NULL,
			lon     DOUBLE NOT NULL,
			alt     DOUBLE NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		os.Remove(dbPath)
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Debug("sample store created", "path", dbPath)
	return &SampleStore{
		db:        db,
		dbPath:    dbPath,
		logger:    logger,
		batchSize: defaultBatchSize,
		batch:     make([]Sample, 0, defaultBatchSize),
		vehicles:  make(map[string]int),
		querySem:  make(chan struct{}, 3),
	}, nil
}

// AddTrack queues every coordinate of an exported track, in track order.
func (s *SampleStore) AddTrack(e *track.ExportedTrack) {
	for _, c := range e.Coordinates {
		s.AddSample(Sample{Vehicle: e.VehicleID, Time: c.Time, Lat: c.Lat, Lon: c.Lon, Alt: c.Alt})
	}
}

// AddSample queues one sample and flushes when the batch is full.
func (s *SampleStore) AddSample(sample Sample) {
	s.batch = append(s.batch, sample)
	s.vehicles[sample.Vehicle]++

	ts := sample.Time.UnixMilli()
	if s.count == 0 || ts < s.minTs {
		s.minTs = ts
	}
	if s.count == 0 || ts > s.maxTs {
		s.maxTs = ts
	}
	s.count++

	if len(s.batch) >= s.batchSize {
		if err := s.flushBatch(); err != nil {
			s.lastError = err
			s.logger.Error("flush failed", "error", err)
		}
	}
}

// LastError returns the last batch flush error.
func (s *SampleStore) LastError() error {
	return s.lastError
}

func (s *SampleStore) flushBatch() error {
	if len(s.batch) == 0 {
		return nil
	}

	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn any) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}

		appender, err := duckdb.NewAppenderFromConn(dConn, "", "samples")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		baseID := s.count - len(s.batch)
		for i, sample := range s.batch {
			err := appender.AppendRow(
				int64(baseID+i),
				sample.Vehicle,
				sample.Time.UnixMilli(),
				sample.Lat,
				sample.Lon,
				sample.Alt,
			)
			if err != nil {
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	s.batch = s.batch[:0]
	return nil
}

// Finalize flushes pending samples and builds the query indexes.
func (s *SampleStore) Finalize() error {
	if err := s.flushBatch(); err != nil {
		return err
	}
	if s.lastError != nil {
		return s.lastError
	}

	start := time.Now()
	if _, err := s.db.Exec("CREATE INDEX idx_vehicle_ts ON samples(vehicle, ts)"); err != nil {
		return fmt.Errorf("idx_vehicle_ts creation failed: %w", err)
	}
	s.logger.Debug("sample store finalized", "samples", s.count, "took", time.Since(start))
	return nil
}

// Len returns the number of stored samples.
func (s *SampleStore) Len() int {
	return s.count
}

// Vehicles returns the stored vehicle ids in lexical order.
func (s *SampleStore) Vehicles() []string {
	ids := make([]string, 0, len(s.vehicles))
	for id := range s.vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TimeRange returns the earliest and latest stored timestamps, or nil when
// the store is empty.
func (s *SampleStore) TimeRange() *models.TimeRange {
	if s.count == 0 {
		return nil
	}
	return &models.TimeRange{
		Start: time.UnixMilli(s.minTs).UTC(),
		End:   time.UnixMilli(s.maxTs).UTC(),
	}
}

// Query returns one page of samples in insertion order along with the total
// number of matching samples. Pages are 1-based.
func (s *SampleStore) Query(ctx context.Context, params QueryParams, page, pageSize int) ([]Sample, int, error) {
	select {
	case s.querySem <- struct{}{}:
		defer func() { <-s.querySem }()
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}

	where, args := buildWhereClause(params)

	countQuery := "SELECT COUNT(*) FROM samples"
	if where != "" {
		countQuery += " WHERE " + where
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query failed: %w", err)
	}
	if total == 0 {
		return []Sample{}, 0, nil
	}

	query := "SELECT vehicle, ts, lat, lon, alt FROM samples"
	if where != "" {
		query += " WHERE " + where
	}
	query += fmt.Sprintf(" ORDER BY id LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	samples := make([]Sample, 0, pageSize)
	for rows.Next() {
		var sample Sample
		var ts int64
		if err := rows.Scan(&sample.Vehicle, &ts, &sample.Lat, &sample.Lon, &sample.Alt); err != nil {
			return nil, 0, err
		}
		sample.Time = time.UnixMilli(ts).UTC()
		samples = append(samples, sample)
	}
	return samples, total, rows.Err()
}

func buildWhereClause(params QueryParams) (string, []any) {
	var clauses []string
	var args []any

	if params.Vehicle != "" {
		clauses = append(clauses, "vehicle = ?")
		args = append(args, params.Vehicle)
	}
	if !params.Start.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, params.Start.UnixMilli())
	}
	if !params.End.IsZero() {
		clauses = append(clauses, "ts <= ?")
		args = append(args, params.End.UnixMilli())
	}
	return strings.Join(clauses, " AND "), args
}

// Close closes the database and removes its file.
func (s *SampleStore) Close() error {
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.dbPath != "" {
		os.Remove(s.dbPath)
		os.Remove(s.dbPath + ".wal")
	}
	return err
}
