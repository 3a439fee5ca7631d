package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mesh-orchestrator/core/models"
)

// RunLister lists persisted runs
type RunLister interface {
	ListRuns(ctx context.Context, status *models.RunStatus, limit int) ([]*models.Run, error)
}

// RunMonitor periodically checks runs marked running and reports the ones
// that exceeded the stale threshold, typically runs orphaned by a restart
type RunMonitor struct {
	runs      RunLister
	metrics   *Metrics
	logger    *zap.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
}

// NewRunMonitor creates a run monitor
func NewRunMonitor(runs RunLister, metrics *Metrics, logger *zap.Logger, interval, threshold time.Duration) *RunMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunMonitor{
		runs:      runs,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
	}
}

// Start runs the monitoring loop until ctx is cancelled
func (rm *RunMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.Check(ctx)
		}
	}
}

// Check inspects running runs once and returns the stale ones
func (rm *RunMonitor) Check(ctx context.Context) []*models.Run {
	status := models.RunStatusRunning
	runs, err := rm.runs.ListRuns(ctx, &status, 1000)
	if err != nil {
		rm.logger.Error("Failed to fetch running runs", zap.Error(err))
		return nil
	}

	var stale []*models.Run
	for _, run := range runs {
		if run.StartedAt == nil {
			continue
		}
		elapsed := rm.now().Sub(*run.StartedAt)
		if elapsed < rm.threshold {
			continue
		}
		stale = append(stale, run)
		rm.logger.Warn("Run exceeded stale threshold",
			zap.String("run_id", run.ID),
			zap.String("input", run.InputPath),
			zap.Duration("elapsed", elapsed))
	}

	rm.metrics.SetStaleRuns(len(stale))
	return stale
}
