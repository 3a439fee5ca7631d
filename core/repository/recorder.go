package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mesh-orchestrator/core/models"
)

// finalWriteTimeout bounds writes made after the run context may already be
// cancelled
const finalWriteTimeout = 5 * time.Second

// Recorder persists a run's transitions, the files it produced and its
// result. It is attached to the controller as an observer.
type Recorder struct {
	runs      *RunRepository
	events    *EventRepository
	artifacts *ArtifactRepository
	logger    *zap.Logger
}

// NewRecorder creates a recorder over db
func NewRecorder(db *DB, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		runs:      NewRunRepository(db),
		events:    NewEventRepository(db),
		artifacts: NewArtifactRepository(db),
		logger:    logger,
	}
}

// OnTransition stores the event and, for transitions that introduce a file,
// an artifact record
func (rec *Recorder) OnTransition(ctx context.Context, event models.RunEvent) {
	if event.ToState.IsTerminal() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), finalWriteTimeout)
		defer cancel()
	}

	if err := rec.events.CreateRunEvent(ctx, event); err != nil {
		rec.logger.Error("Failed to record run event",
			zap.String("run_id", event.RunID),
			zap.String("to_state", string(event.ToState)),
			zap.Error(err))
	}

	var artifactType models.RunArtifactType
	var key string
	switch event.ToState {
	case models.StateParsed:
		artifactType, key = models.RunArtifactGeometry, "geometry"
	case models.StateInitialMesh:
		artifactType, key = models.RunArtifactMesh, "mesh"
	case models.StateValidating:
		// Repaired and remeshed files are first seen when they are validated
		if event.Iteration <= 1 {
			return
		}
		artifactType, key = models.RunArtifactMesh, "mesh"
	case models.StateFailed:
		// Exhaustion leaves the last repair output unvalidated
		artifactType, key = models.RunArtifactMesh, "mesh"
	default:
		return
	}

	uri, ok := event.MetaJSON[key].(string)
	if !ok || uri == "" {
		return
	}
	meta := map[string]interface{}{
		"state":     string(event.ToState),
		"iteration": event.Iteration,
	}
	if err := rec.artifacts.CreateArtifact(ctx, event.RunID, artifactType, uri, meta); err != nil {
		rec.logger.Error("Failed to record run artifact",
			zap.String("run_id", event.RunID),
			zap.String("uri", uri),
			zap.Error(err))
	}
}

// OnResult stores the run result. The write is not tied to ctx, so a run
// cut short by shutdown still leaves the running state.
func (rec *Recorder) OnResult(_ context.Context, runID string, result models.RunResult) {
	ctx, cancel := context.WithTimeout(context.Background(), finalWriteTimeout)
	defer cancel()

	if err := rec.runs.CompleteRun(ctx, runID, result); err != nil {
		rec.logger.Error("Failed to record run result", zap.String("run_id", runID), zap.Error(err))
	}
}
