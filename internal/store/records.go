// Package store persists image records and is the only shared mutable
// state in the pipeline. Updates to a single record are atomic at the
// statement level.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sensorvision/internal/models"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Records is the SQL-backed record store.
type Records struct {
	db *sql.DB
}

func NewRecords(db *sql.DB) *Records {
	return &Records{db: db}
}

// Insert persists a new record and assigns its id. The id is immutable
// after this call.
func (s *Records) Insert(ctx context.Context, rec *models.ImageRecord) error {
	if rec == nil {
		return errors.New("record required")
	}
	rec.ID = uuid.NewString()
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now().UTC()
	}
	rec.CapturedAt = rec.CapturedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO image_records
			(id, file_name, stored_path, captured_at, sensor_type, location, size_bytes, content_type, status, analysis_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FileName, rec.StoredPath, rec.CapturedAt,
		rec.SensorType, rec.Location, rec.Metadata.SizeBytes, rec.Metadata.ContentType,
		rec.Status, rec.AnalysisText,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetByID fetches a single record.
func (s *Records) GetByID(ctx context.Context, id string) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, stored_path, captured_at, sensor_type, location, size_bytes, content_type, status, analysis_text
		FROM image_records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// UpdateAnalysis writes the analysis outcome for one record in a single
// statement so concurrent tasks never interleave partial writes.
func (s *Records) UpdateAnalysis(ctx context.Context, id string, status models.Status, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE image_records SET status = ?, analysis_text = ? WHERE id = ?`,
		status, text, id)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScanRange returns records with capturedAt in [from, to], ascending.
func (s *Records) ScanRange(ctx context.Context, from, to time.Time) ([]*models.ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, stored_path, captured_at, sensor_type, location, size_bytes, content_type, status, analysis_text
		FROM image_records
		WHERE captured_at >= ? AND captured_at <= ?
		ORDER BY captured_at ASC`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("scan range: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// List returns one reverse-chronological page plus the total count.
func (s *Records) List(ctx context.Context, page, perPage int) ([]*models.ImageRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_records`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, stored_path, captured_at, sensor_type, location, size_bytes, content_type, status, analysis_text
		FROM image_records
		ORDER BY captured_at DESC
		LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	recs, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	err := row.Scan(
		&rec.ID, &rec.FileName, &rec.StoredPath, &rec.CapturedAt,
		&rec.SensorType, &rec.Location, &rec.Metadata.SizeBytes, &rec.Metadata.ContentType,
		&rec.Status, &rec.AnalysisText,
	)
	if err != nil {
		return nil, err
	}
	rec.CapturedAt = rec.CapturedAt.UTC()
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*models.ImageRecord, error) {
	var recs []*models.ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return recs, nil
}
