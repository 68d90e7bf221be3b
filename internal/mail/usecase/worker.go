package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"smartshop-backend/internal/mail/domain"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"
)

// SyncJob is a background sync request, queued by push notifications.
type SyncJob struct {
	UserID string
	Mode   domain.SyncMode
	Days   int
}

// Syncer runs one sync for a job. SyncUsecase implements it.
type Syncer interface {
	Sync(ctx context.Context, userID string, mode domain.SyncMode, days int) (*domain.SyncResult, error)
}

// SyncWorkerService runs queued sync jobs on a fixed pool of workers.
type SyncWorkerService struct {
	syncer      Syncer
	jobQueue    chan SyncJob
	jobTimeout  time.Duration
	workerWg    sync.WaitGroup
	workerCount int
	started     bool
	stopped     bool
	mu          sync.Mutex
}

func NewSyncWorkerService(syncer Syncer, workerCount, queueSize int, jobTimeout time.Duration) *SyncWorkerService {
	if workerCount <= 0 {
		workerCount = 3
	}
	if queueSize <= 0 {
		queueSize = 500
	}
	if jobTimeout <= 0 {
		jobTimeout = 5 * time.Minute
	}
	return &SyncWorkerService{
		syncer:      syncer,
		jobQueue:    make(chan SyncJob, queueSize),
		jobTimeout:  jobTimeout,
		workerCount: workerCount,
	}
}

// Start starts the sync workers
func (s *SyncWorkerService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	for i := 0; i < s.workerCount; i++ {
		s.workerWg.Add(1)
		go s.worker(i)
	}
	s.started = true
	lg := logger.Component("sync-worker")
	lg.Info().Int("workers", s.workerCount).Msg("sync workers started")
}

// Stop drains the queue and waits for running jobs.
func (s *SyncWorkerService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.jobQueue)
	s.mu.Unlock()

	s.workerWg.Wait()
	lg := logger.Component("sync-worker")
	lg.Info().Msg("all sync workers stopped")
}

func (s *SyncWorkerService) worker(id int) {
	defer s.workerWg.Done()

	for job := range s.jobQueue {
		s.processJob(job)
	}
	lg := logger.Component("sync-worker")
	lg.Debug().Int("worker", id).Msg("worker stopped")
}

func (s *SyncWorkerService) processJob(job SyncJob) {
	log := logger.Component("sync-worker").With().Str("user_id", job.UserID).Str("mode", string(job.Mode)).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()

	result, err := s.syncer.Sync(ctx, job.UserID, job.Mode, job.Days)
	if errors.Is(err, apperror.ErrDuplicateSuppressed) {
		log.Debug().Msg("sync already running, folded into it")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("queued sync did not complete")
		return
	}
	log.Debug().Int("committed", result.Committed).Msg("queued sync done")
}

// QueueJob adds a job to the queue without blocking. It returns false when
// the queue is full or stopped.
func (s *SyncWorkerService) QueueJob(job SyncJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	select {
	case s.jobQueue <- job:
		return true
	default:
		return false
	}
}
