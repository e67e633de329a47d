package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/ats-analyzer/internal/repositories"
)

type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(analysisID uuid.UUID)
}

type worker struct {
	analysisRepo repositories.AnalysisRepository
	jobs         BatchJobService
	jobQueue     chan uuid.UUID
	concurrency  int
	pollInterval time.Duration
	logger       *zap.Logger
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
}

func NewWorker(
	analysisRepo repositories.AnalysisRepository,
	jobs BatchJobService,
	concurrency int,
	pollInterval time.Duration,
	log *zap.Logger,
) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &worker{
		analysisRepo: analysisRepo,
		jobs:         jobs,
		jobQueue:     make(chan uuid.UUID, 100),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       log.Named("worker"),
		stopChan:     make(chan struct{}),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.logger.Info("starting worker", zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingJobs(ctx)
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping worker")
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("worker stopped")
	})
}

// EnqueueJob implements Worker. A full queue drops the ID; the poller picks
// the analysis up again while it is still queued.
func (w *worker) EnqueueJob(analysisID uuid.UUID) {
	select {
	case <-w.stopChan:
		w.logger.Warn("worker stopped, cannot enqueue job", zap.String("analysis_id", analysisID.String()))
	case w.jobQueue <- analysisID:
		w.logger.Debug("job enqueued", zap.String("analysis_id", analysisID.String()))
	default:
		w.logger.Warn("job queue full, leaving job to the poller", zap.String("analysis_id", analysisID.String()))
	}
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("worker_id", workerID))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case analysisID := <-w.jobQueue:
			if err := w.jobs.ProcessAnalysis(ctx, analysisID); err != nil {
				log.Error("failed to process job", zap.String("analysis_id", analysisID.String()), zap.Error(err))
			}
		}
	}
}

func (w *worker) pollPendingJobs(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := w.analysisRepo.FindPendingJobs(10)
			if err != nil {
				w.logger.Warn("failed to fetch pending jobs", zap.Error(err))
				continue
			}

			if len(pending) > 0 {
				w.logger.Info("found pending jobs", zap.Int("count", len(pending)))
			}

			for _, job := range pending {
				w.EnqueueJob(job.ID)
			}
		}
	}
}
