package worker

import "sensorvision/internal/models"

// Worker pulls analysis tasks from its job channel and re-registers
// itself with the pool after each one.
type Worker struct {
	runner     *Runner
	workerPool chan chan models.AnalysisTask
	jobChannel chan models.AnalysisTask
	quit       chan struct{}
}

func NewWorker(pool chan chan models.AnalysisTask, runner *Runner) *Worker {
	return &Worker{
		runner:     runner,
		workerPool: pool,
		jobChannel: make(chan models.AnalysisTask),
		quit:       make(chan struct{}),
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			w.workerPool <- w.jobChannel
			select {
			case task := <-w.jobChannel:
				w.runner.execute(task)
			case <-w.quit:
				return
			}
		}
	}()
}

func (w *Worker) Stop() {
	close(w.quit)
}
