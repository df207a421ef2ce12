// Package insight answers the trailing-window aggregate query: one
// capability call over every image captured in the lookback window.
package insight

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"sensorvision/internal/models"
	"sensorvision/internal/vision"
)

const cacheKey = "insight:last"

// RecordScanner is the read-only store access the service needs.
type RecordScanner interface {
	ScanRange(ctx context.Context, from, to time.Time) ([]*models.ImageRecord, error)
}

// FileLoader reads stored image bytes by stored name.
type FileLoader interface {
	Load(name string) ([]byte, error)
}

// Cache stores the last insight for a short TTL. Optional; a nil cache
// means every query hits the model.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Config tunes the window and failure throttling.
type Config struct {
	Window   time.Duration
	Cooldown time.Duration
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Service runs the aggregate insight query. It never mutates the store
// and is independent of the per-record pipeline.
type Service struct {
	store      RecordScanner
	capability vision.Capability
	files      FileLoader
	cache      Cache
	cfg        Config
	log        *zap.Logger

	sleep func(time.Duration)
}

func NewService(store RecordScanner, capability vision.Capability, files FileLoader, cache Cache, cfg Config, log *zap.Logger) *Service {
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Service{
		store:      store,
		capability: capability,
		files:      files,
		cache:      cache,
		cfg:        cfg,
		log:        log,
		sleep:      time.Sleep,
	}
}

// Generate scans the trailing window and returns the combined insight
// text. Capability failures are reported as the text, not as an error;
// only store failures surface as errors.
func (s *Service) Generate(ctx context.Context) (string, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
			return cached, nil
		}
	}

	now := time.Now().UTC()
	recs, err := s.store.ScanRange(ctx, now.Add(-s.cfg.Window), now)
	if err != nil {
		return "", fmt.Errorf("scan trailing window: %w", err)
	}
	if len(recs) == 0 {
		return vision.NoDataText, nil
	}

	// The store already orders ascending; keep the guarantee even for
	// alternative scanner implementations.
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CapturedAt.Before(recs[j].CapturedAt)
	})

	images := make([]vision.Image, 0, len(recs))
	for _, rec := range recs {
		data, err := s.files.Load(rec.FileName)
		if err != nil {
			s.log.Warn("skipping unreadable image",
				zap.String("record_id", rec.ID),
				zap.Error(err))
			continue
		}
		images = append(images, vision.Image{
			Data:     data,
			MIMEType: rec.Metadata.ContentType,
		})
	}
	if len(images) == 0 {
		return s.failure(fmt.Errorf("no readable images in window")), nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	text, err := s.capability.Describe(callCtx, images, vision.BatchPrompt)
	if err != nil {
		return s.failure(err), nil
	}

	if s.cache != nil && s.cfg.CacheTTL > 0 {
		if err := s.cache.Set(ctx, cacheKey, text, s.cfg.CacheTTL); err != nil {
			s.log.Warn("cache insight", zap.Error(err))
		}
	}
	return text, nil
}

// failure turns a capability error into the reported insight text and
// applies the cooldown that throttles repeated failing calls.
func (s *Service) failure(err error) string {
	s.log.Warn("aggregate insight failed", zap.Error(err))
	s.sleep(s.cfg.Cooldown)
	return "Error en análisis agregado: " + err.Error()
}
