// Package worker executes analysis tasks off the ingestion path on a
// bounded pool of workers fed from a buffered job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensorvision/internal/models"
	"sensorvision/internal/vision"
)

var (
	// ErrRunnerBusy is returned when the job queue is full.
	ErrRunnerBusy = errors.New("analysis queue full")

	// ErrTaskInFlight is returned when the record already has a running task.
	ErrTaskInFlight = errors.New("record analysis already in flight")
)

// RecordStore is the subset of the store the runner writes back to.
type RecordStore interface {
	GetByID(ctx context.Context, id string) (*models.ImageRecord, error)
	UpdateAnalysis(ctx context.Context, id string, status models.Status, text string) error
}

// Publisher delivers dashboard events.
type Publisher interface {
	Publish(models.DashboardEvent)
}

// FileLoader reads stored image bytes by stored name.
type FileLoader interface {
	Load(name string) ([]byte, error)
}

// Config bounds the pool and the external call.
type Config struct {
	MinWorkers int
	MaxWorkers int
	QueueSize  int
	Timeout    time.Duration
}

// Runner owns the task queue and the worker pool. A record has at most
// one task in flight; completed tasks are terminal regardless of outcome.
type Runner struct {
	store      RecordStore
	capability vision.Capability
	publisher  Publisher
	files      FileLoader
	log        *zap.Logger

	timeout    time.Duration
	maxWorkers int

	jobQueue   chan models.AnalysisTask
	workerPool chan chan models.AnalysisTask
	quit       chan struct{}

	mu       sync.Mutex
	running  int
	workers  []*Worker
	inFlight map[string]struct{}
}

func NewRunner(store RecordStore, capability vision.Capability, publisher Publisher, files FileLoader, cfg Config, log *zap.Logger) *Runner {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	r := &Runner{
		store:      store,
		capability: capability,
		publisher:  publisher,
		files:      files,
		log:        log,
		timeout:    cfg.Timeout,
		maxWorkers: cfg.MaxWorkers,
		jobQueue:   make(chan models.AnalysisTask, cfg.QueueSize),
		workerPool: make(chan chan models.AnalysisTask, cfg.MaxWorkers),
		quit:       make(chan struct{}),
		inFlight:   make(map[string]struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		r.spawnWorker()
	}
	go r.dispatch()
	return r
}

// Submit enqueues one analysis task without blocking the caller. A full
// queue or a duplicate in-flight record id is reported as an error and
// nothing is enqueued.
func (r *Runner) Submit(task models.AnalysisTask) error {
	if task.RecordID == "" {
		return errors.New("record id required")
	}

	r.mu.Lock()
	if _, ok := r.inFlight[task.RecordID]; ok {
		r.mu.Unlock()
		return ErrTaskInFlight
	}
	r.inFlight[task.RecordID] = struct{}{}
	r.mu.Unlock()

	select {
	case r.jobQueue <- task:
		return nil
	default:
		r.release(task.RecordID)
		return ErrRunnerBusy
	}
}

// Stop shuts the dispatcher and all workers down. Tasks already handed
// to a worker run to completion.
func (r *Runner) Stop() {
	close(r.quit)
	r.mu.Lock()
	workers := r.workers
	r.workers = nil
	r.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}

func (r *Runner) dispatch() {
	for {
		select {
		case task := <-r.jobQueue:
			select {
			case ch := <-r.workerPool:
				ch <- task
			default:
				// All workers busy; grow the pool up to its cap, then wait.
				r.spawnWorker()
				select {
				case ch := <-r.workerPool:
					ch <- task
				case <-r.quit:
					r.release(task.RecordID)
					return
				}
			}
		case <-r.quit:
			return
		}
	}
}

func (r *Runner) spawnWorker() {
	r.mu.Lock()
	if r.running >= r.maxWorkers {
		r.mu.Unlock()
		return
	}
	r.running++
	w := NewWorker(r.workerPool, r)
	r.workers = append(r.workers, w)
	r.mu.Unlock()
	w.Start()
}

func (r *Runner) release(recordID string) {
	r.mu.Lock()
	delete(r.inFlight, recordID)
	r.mu.Unlock()
}

// execute performs one task: Received moves to Analyzed on success or
// AnalysisFailed on any error, then the refreshed record is published.
func (r *Runner) execute(task models.AnalysisTask) {
	defer r.release(task.RecordID)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	text, err := r.analyze(ctx, task)
	cancel()

	status := models.StatusAnalyzed
	if err != nil {
		status = models.StatusAnalysisFailed
		text = "Error en análisis: " + err.Error()
		r.log.Warn("analysis failed",
			zap.String("record_id", task.RecordID),
			zap.Error(err))
	}

	// Fresh context: an expired analysis deadline must not lose the outcome.
	storeCtx, cancelStore := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStore()

	if err := r.store.UpdateAnalysis(storeCtx, task.RecordID, status, text); err != nil {
		r.log.Error("write analysis result",
			zap.String("record_id", task.RecordID),
			zap.Error(err))
		return
	}

	rec, err := r.store.GetByID(storeCtx, task.RecordID)
	if err != nil {
		r.log.Error("reload record after analysis",
			zap.String("record_id", task.RecordID),
			zap.Error(err))
		return
	}
	r.publisher.Publish(models.DashboardEvent{
		Kind:   models.EventAnalysisUpdated,
		Record: rec.Clone(),
	})
}

func (r *Runner) analyze(ctx context.Context, task models.AnalysisTask) (string, error) {
	data, err := r.files.Load(task.StoredName)
	if err != nil {
		return "", fmt.Errorf("load image %s: %w", task.StoredName, err)
	}
	img := vision.Image{Data: data, MIMEType: task.ContentType}
	return r.capability.Describe(ctx, []vision.Image{img}, vision.DescribePrompt)
}
