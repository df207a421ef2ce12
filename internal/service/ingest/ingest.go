// Package ingest coordinates the synchronous half of the pipeline:
// persist the record, notify the dashboard, hand the analysis task off.
package ingest

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"sensorvision/internal/models"
)

var (
	// ErrEmptyFilename rejects uploads without a usable file name.
	ErrEmptyFilename = errors.New("empty file name")

	// ErrDisallowedType rejects uploads outside the accepted image formats.
	ErrDisallowedType = errors.New("file type not allowed")
)

var allowedExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
}

// RecordStore is the subset of the store the coordinator needs.
type RecordStore interface {
	Insert(ctx context.Context, rec *models.ImageRecord) error
	UpdateAnalysis(ctx context.Context, id string, status models.Status, text string) error
	GetByID(ctx context.Context, id string) (*models.ImageRecord, error)
}

// FileSaver persists the raw upload and reports the stored name, path
// and size.
type FileSaver interface {
	Save(originalName string, r io.Reader) (string, string, int64, error)
}

// TaskRunner accepts analysis tasks without blocking.
type TaskRunner interface {
	Submit(models.AnalysisTask) error
}

// Publisher delivers dashboard events best-effort.
type Publisher interface {
	Publish(models.DashboardEvent)
}

// Upload is one validated incoming image plus its classification fields.
type Upload struct {
	FileName    string
	ContentType string
	SensorType  string
	Location    string
	Data        io.Reader
}

// Service is the ingestion coordinator.
type Service struct {
	store  RecordStore
	files  FileSaver
	runner TaskRunner
	hub    Publisher
	log    *zap.Logger
}

func NewService(store RecordStore, files FileSaver, runner TaskRunner, hub Publisher, log *zap.Logger) *Service {
	return &Service{
		store:  store,
		files:  files,
		runner: runner,
		hub:    hub,
		log:    log,
	}
}

// Ingest persists a new record, publishes the new-record event, and
// submits exactly one analysis task, in that order. It returns the
// post-insert record without waiting for analysis. A persistence
// failure aborts everything; a publish failure never does.
func (s *Service) Ingest(ctx context.Context, up Upload) (*models.ImageRecord, error) {
	if err := ValidateFileName(up.FileName); err != nil {
		return nil, err
	}

	storedName, storedPath, size, err := s.files.Save(up.FileName, up.Data)
	if err != nil {
		return nil, err
	}

	rec := &models.ImageRecord{
		FileName:   storedName,
		StoredPath: storedPath,
		CapturedAt: time.Now().UTC(),
		SensorType: orDefault(up.SensorType, "desconocido"),
		Location:   orDefault(up.Location, "desconocida"),
		Metadata: models.Metadata{
			SizeBytes:   size,
			ContentType: up.ContentType,
		},
		Status: models.StatusReceived,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}

	s.hub.Publish(models.DashboardEvent{
		Kind:   models.EventNewRecord,
		Record: rec.Clone(),
	})

	task := models.AnalysisTask{
		RecordID:    rec.ID,
		StoredName:  storedName,
		ContentType: up.ContentType,
	}
	if err := s.runner.Submit(task); err != nil {
		// The caller already has its response coming; terminalize the
		// record instead of stranding it at received.
		s.log.Warn("analysis task rejected",
			zap.String("record_id", rec.ID),
			zap.Error(err))
		s.failWithoutTask(ctx, rec.ID, err)
	}

	return rec, nil
}

// ValidateFileName applies the upload naming and extension rules.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyFilename
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return ErrDisallowedType
	}
	return nil
}

func (s *Service) failWithoutTask(ctx context.Context, recordID string, cause error) {
	text := "Error en análisis: " + cause.Error()
	if err := s.store.UpdateAnalysis(ctx, recordID, models.StatusAnalysisFailed, text); err != nil {
		s.log.Error("mark record failed",
			zap.String("record_id", recordID),
			zap.Error(err))
		return
	}
	if rec, err := s.store.GetByID(ctx, recordID); err == nil {
		s.hub.Publish(models.DashboardEvent{
			Kind:   models.EventAnalysisUpdated,
			Record: rec.Clone(),
		})
	}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
