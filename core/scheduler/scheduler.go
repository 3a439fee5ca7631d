// Package scheduler executes submitted runs in the background. Each run gets
// its own work directory under the work root and its own provider set.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/models"
	"mesh-orchestrator/core/spec"
	"mesh-orchestrator/core/supervisor"
)

// RunStore is the persistence the scheduler needs
type RunStore interface {
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, status *models.RunStatus, limit int) ([]*models.Run, error)
	MarkStarted(ctx context.Context, runID string) error
	MarkFailed(ctx context.Context, runID string, reason string) error
}

// Publisher copies a final mesh to durable storage
type Publisher interface {
	Publish(ctx context.Context, runID, meshPath string) (string, error)
}

// ProviderFactory builds the provider set for a run
type ProviderFactory func(rs *spec.RunSpec) (capability.Set, error)

// Lifecycle is notified when a run starts and stops executing
type Lifecycle interface {
	RunStarted()
	RunFinished()
}

// Options configures a scheduler
type Options struct {
	WorkRoot      string
	MaxConcurrent int
	PollInterval  time.Duration
	Observers     []supervisor.Observer
	Publisher     Publisher // Optional
	Lifecycle     Lifecycle // Optional
}

// Scheduler manages run scheduling and execution
type Scheduler struct {
	runs      RunStore
	providers ProviderFactory
	opts      Options
	logger    *zap.Logger

	queue  *RunQueue
	slots  *semaphore.Weighted
	wake   chan struct{}
	active sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(runs RunStore, providers ProviderFactory, opts Options, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Scheduler{
		runs:      runs,
		providers: providers,
		opts:      opts,
		logger:    logger,
		queue:     NewRunQueue(),
		slots:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		wake:      make(chan struct{}, 1),
	}
}

// Start runs the scheduler until ctx is cancelled. It returns once every
// run it started has finished.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	defer s.active.Wait()

	s.loadPendingRuns(ctx)
	s.processQueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.loadPendingRuns(ctx)
			s.processQueue(ctx)
		case <-s.wake:
			s.processQueue(ctx)
		}
	}
}

// Enqueue adds a run to the queue and wakes the scheduler
func (s *Scheduler) Enqueue(run *models.Run) {
	if !s.queue.Enqueue(run) {
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loadPendingRuns queues pending runs from the database
func (s *Scheduler) loadPendingRuns(ctx context.Context) {
	status := models.RunStatusPending
	runs, err := s.runs.ListRuns(ctx, &status, 100)
	if err != nil {
		s.logger.Error("Failed to load pending runs", zap.Error(err))
		return
	}
	for _, run := range runs {
		s.queue.Enqueue(run)
	}
}

// processQueue starts queued runs while execution slots are free
func (s *Scheduler) processQueue(ctx context.Context) {
	for {
		if !s.slots.TryAcquire(1) {
			return
		}
		run := s.queue.PopRun()
		if run == nil {
			s.slots.Release(1)
			return
		}

		// Re-fetch run to get latest state
		fresh, err := s.runs.GetRun(ctx, run.ID)
		if err != nil {
			s.logger.Error("Failed to fetch run", zap.String("run_id", run.ID), zap.Error(err))
			s.slots.Release(1)
			continue
		}
		if fresh.Status != models.RunStatusPending {
			s.slots.Release(1)
			continue
		}

		// Marked before the goroutine starts so the next poll does not queue it again
		if err := s.runs.MarkStarted(ctx, fresh.ID); err != nil {
			s.logger.Error("Failed to mark run started", zap.String("run_id", fresh.ID), zap.Error(err))
			s.slots.Release(1)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer s.slots.Release(1)
			defer s.signal()
			s.executeRun(ctx, fresh)
		}()
	}
}

// signal wakes the loop so a freed slot is reused without waiting a tick
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// executeRun drives one run to a terminal state. Results are persisted by
// the observers; failures before the controller starts are stored here.
func (s *Scheduler) executeRun(ctx context.Context, run *models.Run) {
	logger := s.logger.With(zap.String("run_id", run.ID))

	if s.opts.Lifecycle != nil {
		s.opts.Lifecycle.RunStarted()
		defer s.opts.Lifecycle.RunFinished()
	}

	result, err := s.runSupervisor(ctx, run, logger)
	if err != nil {
		logger.Error("Run failed before producing a result", zap.Error(err))
		// The run context may already be cancelled
		markCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.runs.MarkFailed(markCtx, run.ID, err.Error()); err != nil {
			logger.Error("Failed to mark run failed", zap.Error(err))
		}
		return
	}

	logger.Info("Run finished",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("iterations", result.IterationsUsed))

	if result.Succeeded() && s.opts.Publisher != nil {
		uri, err := s.opts.Publisher.Publish(ctx, run.ID, result.FinalMeshLocation)
		if err != nil {
			logger.Error("Failed to publish mesh", zap.Error(err))
			return
		}
		logger.Info("Published mesh", zap.String("uri", uri))
	}
}

func (s *Scheduler) runSupervisor(ctx context.Context, run *models.Run, logger *zap.Logger) (models.RunResult, error) {
	rs, err := spec.ParseRunSpec(run.PolicyYAML)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("invalid run spec: %w", err)
	}

	workDir := WorkDir(s.opts.WorkRoot, run)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return models.RunResult{}, fmt.Errorf("failed to create work dir: %w", err)
	}

	set, err := s.providers(rs)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("failed to build providers: %w", err)
	}

	sup, err := supervisor.New(set, rs.Policy, logger, s.opts.Observers...)
	if err != nil {
		return models.RunResult{}, err
	}
	return sup.RunWithID(ctx, run.ID, run.InputPath, workDir)
}

// WorkDir returns the directory a run writes into: its own WorkDir when set,
// otherwise <root>/<run id>
func WorkDir(root string, run *models.Run) string {
	if run.WorkDir != "" {
		return run.WorkDir
	}
	return filepath.Join(root, run.ID)
}
