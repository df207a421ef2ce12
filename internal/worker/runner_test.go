package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"sensorvision/internal/models"
	"sensorvision/internal/vision"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.ImageRecord
}

func newFakeStore(recs ...*models.ImageRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]*models.ImageRecord)}
	for _, r := range recs {
		s.records[r.ID] = r.Clone()
	}
	return s
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return rec.Clone(), nil
}

func (s *fakeStore) UpdateAnalysis(_ context.Context, id string, status models.Status, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return errors.New("record not found")
	}
	rec.Status = status
	rec.AnalysisText = text
	return nil
}

type fakeCapability struct {
	describe func(ctx context.Context, images []vision.Image, prompt string) (string, error)
}

func (c *fakeCapability) Describe(ctx context.Context, images []vision.Image, prompt string) (string, error) {
	return c.describe(ctx, images, prompt)
}

type fakePublisher struct {
	events chan models.DashboardEvent
}

func (p *fakePublisher) Publish(evt models.DashboardEvent) {
	p.events <- evt
}

type fakeFiles struct {
	data map[string][]byte
}

func (f *fakeFiles) Load(name string) ([]byte, error) {
	b, ok := f.data[name]
	if !ok {
		return nil, errors.New("file missing")
	}
	return b, nil
}

func waitStatus(t *testing.T, s *fakeStore, id string, want models.Status) *models.ImageRecord {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := s.GetByID(context.Background(), id)
		if err == nil && rec.Status == want {
			return rec
		}
		time.Sleep(5 * time.Millisecond)
	}
	rec, _ := s.GetByID(context.Background(), id)
	t.Fatalf("record %s never reached %s: %+v", id, want, rec)
	return nil
}

func testRunner(t *testing.T, capability vision.Capability, store *fakeStore, cfg Config) (*Runner, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{events: make(chan models.DashboardEvent, 32)}
	files := &fakeFiles{data: map[string][]byte{"img.jpg": []byte("bytes")}}
	r := NewRunner(store, capability, pub, files, cfg, zap.NewNop())
	t.Cleanup(r.Stop)
	return r, pub
}

func TestRunnerCompletesSuccessfulTask(t *testing.T) {
	store := newFakeStore(&models.ImageRecord{ID: "rec-1", Status: models.StatusReceived})
	capability := &fakeCapability{describe: func(context.Context, []vision.Image, string) (string, error) {
		return "a cat", nil
	}}
	r, pub := testRunner(t, capability, store, Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4, Timeout: time.Second})

	if err := r.Submit(models.AnalysisTask{RecordID: "rec-1", StoredName: "img.jpg", ContentType: "image/jpeg"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec := waitStatus(t, store, "rec-1", models.StatusAnalyzed)
	if rec.AnalysisText != "a cat" {
		t.Fatalf("analysis text mismatch: %q", rec.AnalysisText)
	}

	select {
	case evt := <-pub.events:
		if evt.Kind != models.EventAnalysisUpdated || evt.Record == nil || evt.Record.ID != "rec-1" {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.Record.Status != models.StatusAnalyzed {
			t.Fatalf("event carries stale status: %s", evt.Record.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no analysis-updated event published")
	}
}

func TestRunnerMarksFailureTerminal(t *testing.T) {
	store := newFakeStore(&models.ImageRecord{ID: "rec-2", Status: models.StatusReceived})
	capability := &fakeCapability{describe: func(context.Context, []vision.Image, string) (string, error) {
		return "", errors.New("model unavailable")
	}}
	r, pub := testRunner(t, capability, store, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, Timeout: time.Second})

	if err := r.Submit(models.AnalysisTask{RecordID: "rec-2", StoredName: "img.jpg"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec := waitStatus(t, store, "rec-2", models.StatusAnalysisFailed)
	if !strings.Contains(rec.AnalysisText, "Error") {
		t.Fatalf("failure text missing error indicator: %q", rec.AnalysisText)
	}

	select {
	case evt := <-pub.events:
		if evt.Kind != models.EventAnalysisUpdated || evt.Record.Status != models.StatusAnalysisFailed {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event for failed analysis")
	}
}

func TestRunnerTimesOutStuckCapability(t *testing.T) {
	store := newFakeStore(&models.ImageRecord{ID: "rec-3", Status: models.StatusReceived})
	capability := &fakeCapability{describe: func(ctx context.Context, _ []vision.Image, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	r, _ := testRunner(t, capability, store, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, Timeout: 30 * time.Millisecond})

	if err := r.Submit(models.AnalysisTask{RecordID: "rec-3", StoredName: "img.jpg"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec := waitStatus(t, store, "rec-3", models.StatusAnalysisFailed)
	if !strings.Contains(rec.AnalysisText, "Error") {
		t.Fatalf("timeout not reported in text: %q", rec.AnalysisText)
	}
}

func TestRunnerRejectsDuplicateInFlight(t *testing.T) {
	store := newFakeStore(&models.ImageRecord{ID: "rec-4", Status: models.StatusReceived})
	started := make(chan struct{})
	unblock := make(chan struct{})
	capability := &fakeCapability{describe: func(context.Context, []vision.Image, string) (string, error) {
		close(started)
		<-unblock
		return "done", nil
	}}
	r, _ := testRunner(t, capability, store, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, Timeout: time.Second})

	if err := r.Submit(models.AnalysisTask{RecordID: "rec-4", StoredName: "img.jpg"}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-started

	if err := r.Submit(models.AnalysisTask{RecordID: "rec-4", StoredName: "img.jpg"}); err != ErrTaskInFlight {
		t.Fatalf("expected ErrTaskInFlight, got %v", err)
	}
	close(unblock)
	waitStatus(t, store, "rec-4", models.StatusAnalyzed)
}

func TestRunnerReportsBusyQueue(t *testing.T) {
	recs := make([]*models.ImageRecord, 0, 8)
	for i := 0; i < 8; i++ {
		recs = append(recs, &models.ImageRecord{ID: fmt.Sprintf("rec-%d", i), Status: models.StatusReceived})
	}
	store := newFakeStore(recs...)
	unblock := make(chan struct{})
	capability := &fakeCapability{describe: func(context.Context, []vision.Image, string) (string, error) {
		<-unblock
		return "ok", nil
	}}
	r, _ := testRunner(t, capability, store, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1, Timeout: time.Second})
	defer close(unblock)

	busy := false
	for i := 0; i < 8; i++ {
		err := r.Submit(models.AnalysisTask{RecordID: fmt.Sprintf("rec-%d", i), StoredName: "img.jpg"})
		if errors.Is(err, ErrRunnerBusy) {
			busy = true
			break
		}
		if err != nil {
			t.Fatalf("unexpected submit error: %v", err)
		}
	}
	if !busy {
		t.Fatalf("expected ErrRunnerBusy with a single blocked worker and queue of one")
	}
}
