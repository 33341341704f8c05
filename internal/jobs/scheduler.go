package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parkscan/parkscan/internal/analyzer"
	"github.com/parkscan/parkscan/internal/config"
	"github.com/parkscan/parkscan/internal/observability"
	"github.com/parkscan/parkscan/pkg/logger"
)

// ErrInvalidRequest flags a submit request with out-of-range coordinates.
var ErrInvalidRequest = errors.New("invalid analysis request")

// Analyzer runs one area analysis. Satisfied by *analyzer.Analyzer.
type Analyzer interface {
	Analyze(ctx context.Context, centerLat, centerLon, radiusKm float64, asOf time.Time, onProgress analyzer.ProgressFunc) (*analyzer.Report, error)
}

// ResultStore persists a completed job's report and returns the handle the
// artifact is retrievable under.
type ResultStore interface {
	SaveResult(ctx context.Context, job *Job, report *analyzer.Report) (string, error)
}

// SubmitRequest describes the area a caller wants analyzed.
type SubmitRequest struct {
	Name      string
	CenterLat float64
	CenterLon float64
	RadiusKm  float64
	AsOf      *time.Time // nil means evaluate at execution time
}

// Scheduler owns the job state machine: pending jobs queue onto a channel,
// a fixed worker pool claims and runs them, and callers poll or cancel
// through it.
type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	registry Registry
	analyzer Analyzer
	results  ResultStore
	metrics  *observability.Metrics
	queue    chan string
	workers  int

	defaultRadiusKm float64
	maxRadiusKm     float64
	progressStep    int
	jobTimeout      time.Duration

	wg      sync.WaitGroup
	cancels sync.Map // job id -> context.CancelFunc for running jobs
	logger  *logger.Logger
}

// NewScheduler creates a scheduler. Workers start on Start.
func NewScheduler(
	ctx context.Context,
	registry Registry,
	analyzer Analyzer,
	results ResultStore,
	jobsCfg config.JobsConfig,
	analysisCfg config.AnalysisConfig,
	metrics *observability.Metrics,
	log *logger.Logger,
) *Scheduler {
	schedCtx, schedCancel := context.WithCancel(ctx)

	workers := jobsCfg.Workers
	if workers < 1 {
		workers = 1
	}
	step := jobsCfg.ProgressStepPercent
	if step < 1 {
		step = 1
	}

	return &Scheduler{
		ctx:             schedCtx,
		cancel:          schedCancel,
		registry:        registry,
		analyzer:        analyzer,
		results:         results,
		metrics:         metrics,
		queue:           make(chan string, jobsCfg.QueueSize),
		workers:         workers,
		defaultRadiusKm: analysisCfg.DefaultRadiusKm,
		maxRadiusKm:     analysisCfg.MaxRadiusKm,
		progressStep:    step,
		jobTimeout:      time.Duration(jobsCfg.JobTimeoutMinutes) * time.Minute,
		logger:          log.Named("job-scheduler"),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start() error {
	s.logger.Info("Starting job workers",
		logger.Int("workers", s.workers),
		logger.Int("queue_size", cap(s.queue)))

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return nil
}

// Stop cancels all running jobs and waits for the workers to exit.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping job workers")
	s.cancel()
	s.wg.Wait()
	return nil
}

// Submit validates and registers a new pending job and queues it for the
// workers. Radii above the configured maximum clamp to it; non-positive
// radii take the default.
func (s *Scheduler) Submit(req SubmitRequest) (*Job, error) {
	if req.CenterLat < -90 || req.CenterLat > 90 {
		return nil, fmt.Errorf("latitude %.4f out of range: %w", req.CenterLat, ErrInvalidRequest)
	}
	if req.CenterLon < -180 || req.CenterLon > 180 {
		return nil, fmt.Errorf("longitude %.4f out of range: %w", req.CenterLon, ErrInvalidRequest)
	}

	radius := req.RadiusKm
	if radius <= 0 {
		radius = s.defaultRadiusKm
	}
	if radius > s.maxRadiusKm {
		s.logger.Debug("Clamping analysis radius",
			logger.Float64("requested_km", req.RadiusKm),
			logger.Float64("max_km", s.maxRadiusKm))
		radius = s.maxRadiusKm
	}

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Area_%.4f_%.4f", req.CenterLat, req.CenterLon)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Name:      name,
		CenterLat: req.CenterLat,
		CenterLon: req.CenterLon,
		RadiusKm:  radius,
		AsOf:      req.AsOf,
		Status:    StatusPending,
		CreatedAt: clock.Now().UTC(),
	}
	if err := s.registry.Put(job); err != nil {
		return nil, err
	}

	select {
	case s.queue <- job.ID:
	default:
		now := clock.Now().UTC()
		_, _ = s.registry.Update(job.ID, func(j *Job) {
			j.Status = StatusFailed
			j.Error = "scheduler queue full"
			j.CompletedAt = &now
		})
		return nil, ErrQueueFull
	}

	s.metrics.JobsSubmitted.Inc()
	s.logger.Info("Job submitted",
		logger.String("job_id", job.ID),
		logger.String("name", job.Name),
		logger.Float64("radius_km", job.RadiusKm))
	return job, nil
}

// GetStatus returns a snapshot of the job, or ErrJobNotFound.
func (s *Scheduler) GetStatus(jobID string) (*Job, error) {
	return s.registry.Get(jobID)
}

// List returns snapshots of all known jobs, newest first.
func (s *Scheduler) List() []*Job {
	return s.registry.List()
}

// Cancel stops a pending or running job. The job transitions to failed with
// the cancellation reason and can never complete afterwards. Returns
// ErrJobNotFound for unknown ids and ErrJobFinished for terminal jobs.
func (s *Scheduler) Cancel(jobID string) error {
	// Mark first so a pending job can never be claimed afterwards, then
	// interrupt the worker if one already picked it up.
	now := clock.Now().UTC()
	_, err := s.registry.Update(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.Error = CancelledReason
		j.CompletedAt = &now
	})
	if err != nil {
		if errors.Is(err, ErrJobFinished) {
			return ErrJobFinished
		}
		return err
	}
	s.metrics.JobsCancelled.Inc()

	if cancelJob, ok := s.cancels.Load(jobID); ok {
		cancelJob.(context.CancelFunc)()
	}

	s.logger.Info("Job cancelled", logger.String("job_id", jobID))
	return nil
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	log := s.logger.With(logger.Int("worker", id))
	for {
		select {
		case <-s.ctx.Done():
			log.Debug("Worker stopped")
			return
		case jobID := <-s.queue:
			s.runJob(jobID)
		}
	}
}

func (s *Scheduler) runJob(jobID string) {
	job, err := s.registry.Claim(jobID)
	if err != nil {
		// Cancelled while pending, or already claimed.
		s.logger.Debug("Skipping unclaimable job",
			logger.String("job_id", jobID),
			logger.Error(err))
		return
	}

	var jobCtx context.Context
	var cancelJob context.CancelFunc
	if s.jobTimeout > 0 {
		jobCtx, cancelJob = context.WithTimeout(s.ctx, s.jobTimeout)
	} else {
		jobCtx, cancelJob = context.WithCancel(s.ctx)
	}
	s.cancels.Store(jobID, cancelJob)
	defer func() {
		s.cancels.Delete(jobID)
		cancelJob()
	}()

	s.metrics.JobsRunning.Inc()
	defer s.metrics.JobsRunning.Dec()

	asOf := clock.Now().UTC()
	if job.AsOf != nil {
		asOf = *job.AsOf
	}

	s.logger.Info("Job started",
		logger.String("job_id", jobID),
		logger.String("name", job.Name),
		logger.Float64("center_lat", job.CenterLat),
		logger.Float64("center_lon", job.CenterLon),
		logger.Float64("radius_km", job.RadiusKm),
		logger.Time("as_of", asOf))

	started := clock.Now()
	report, err := s.analyzer.Analyze(jobCtx, job.CenterLat, job.CenterLon, job.RadiusKm, asOf, s.progressFunc(jobID))
	s.metrics.AnalysisDuration.Observe(clock.Now().Sub(started).Seconds())

	if err != nil {
		s.failJob(jobID, failureReason(err))
		return
	}

	handle, err := s.results.SaveResult(jobCtx, job, report)
	if err != nil {
		s.failJob(jobID, fmt.Sprintf("failed to store result: %v", err))
		return
	}

	summary := &Summary{
		TotalSigns:      report.Candidates,
		TotalIntervals:  len(report.Results),
		FreeCount:       report.Free,
		RestrictedCount: report.Restricted,
		SkippedSigns:    report.Skipped,
	}

	now := clock.Now().UTC()
	_, err = s.registry.Update(jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.Summary = summary
		j.ResultHandle = handle
		j.CompletedAt = &now
	})
	if err != nil {
		// Lost to a concurrent cancellation; the terminal state stands.
		s.logger.Debug("Job reached a terminal state before completion",
			logger.String("job_id", jobID),
			logger.Error(err))
		return
	}

	s.metrics.JobsCompleted.Inc()
	s.metrics.SignsEvaluated.Add(float64(len(report.Results)))
	s.metrics.SignsSkipped.Add(float64(report.Skipped))
	s.metrics.ParseFallbacks.Add(float64(report.Fallbacks))

	s.logger.Info("Job completed",
		logger.String("job_id", jobID),
		logger.Int("evaluated", len(report.Results)),
		logger.Int("skipped", report.Skipped),
		logger.String("result_handle", handle))
}

// progressFunc throttles analyzer progress into monotonic registry updates,
// at most one per progressStep percent plus the final one.
func (s *Scheduler) progressFunc(jobID string) analyzer.ProgressFunc {
	lastReported := 0
	return func(done, total int) {
		if total <= 0 {
			return
		}
		pct := done * 100 / total
		if pct != 100 && pct < lastReported+s.progressStep {
			return
		}
		if pct == lastReported {
			return
		}
		lastReported = pct
		_, _ = s.registry.Update(jobID, func(j *Job) {
			if pct > j.Progress {
				j.Progress = pct
			}
		})
	}
}

func (s *Scheduler) failJob(jobID, reason string) {
	now := clock.Now().UTC()
	_, err := s.registry.Update(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.Error = reason
		j.CompletedAt = &now
	})
	if err != nil {
		// Already terminal, typically a cancellation that beat us here.
		s.logger.Debug("Job already terminal",
			logger.String("job_id", jobID),
			logger.Error(err))
		return
	}

	if reason == CancelledReason {
		s.metrics.JobsCancelled.Inc()
	} else {
		s.metrics.JobsFailed.Inc()
	}
	s.logger.Warn("Job failed",
		logger.String("job_id", jobID),
		logger.String("reason", reason))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return CancelledReason
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	default:
		return err.Error()
	}
}
