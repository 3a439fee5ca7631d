package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"mesh-orchestrator/core/models"

	"github.com/google/uuid"
)

// RunRepository handles database operations for runs
type RunRepository struct {
	db  *DB
	now func() time.Time
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

// CreateRun inserts a pending run. An empty ID is replaced by a new UUID.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return fmt.Errorf("invalid run id: %w", err)
		}
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	now := r.now().UTC()

	query := `
		INSERT INTO runs (id, name, input_path, work_dir, policy_yaml, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		runID.String(),
		run.Name,
		run.InputPath,
		run.WorkDir,
		run.PolicyYAML,
		run.Status,
		now,
		now,
	); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	run.ID = runID.String()
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

// MarkStarted moves a run to running
func (r *RunRepository) MarkStarted(ctx context.Context, runID string) error {
	query := `UPDATE runs SET status = $1, started_at = $2, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, query, models.RunStatusRunning, r.now().UTC(), runID)
}

// MarkFailed ends a run that could not produce a result
func (r *RunRepository) MarkFailed(ctx context.Context, runID string, reason string) error {
	query := `UPDATE runs SET status = $1, error = $2, completed_at = $3, updated_at = $3 WHERE id = $4`
	return r.exec(ctx, query, models.RunStatusFailed, reason, r.now().UTC(), runID)
}

// CompleteRun stores the controller's result and the terminal status
func (r *RunRepository) CompleteRun(ctx context.Context, runID string, result models.RunResult) error {
	var report interface{}
	if result.LastReport != nil {
		b, err := json.Marshal(result.LastReport)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		report = string(b)
	}

	status := models.RunStatusFailed
	if result.Succeeded() {
		status = models.RunStatusSucceeded
	}

	query := `
		UPDATE runs SET
			status = $1, outcome = $2, iterations_used = $3, final_mesh_location = $4,
			last_report = $5, error = $6, completed_at = $7, updated_at = $7
		WHERE id = $8
	`
	return r.exec(ctx, query,
		status,
		result.Outcome,
		result.IterationsUsed,
		nullString(result.FinalMeshLocation),
		report,
		nullString(result.Error),
		r.now().UTC(),
		runID,
	)
}

const runColumns = `
	id, name, input_path, work_dir, policy_yaml, status, outcome, iterations_used,
	final_mesh_location, last_report, error, created_at, started_at, completed_at, updated_at
`

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists runs, newest first, with an optional status filter
func (r *RunRepository) ListRuns(ctx context.Context, status *models.RunStatus, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []interface{}{}
	argIndex := 1

	if status != nil {
		query += fmt.Sprintf(" WHERE status = $%d", argIndex)
		args = append(args, *status)
		argIndex++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var outcome, finalMesh, errText sql.NullString
	var report []byte
	var iterations int
	var startedAt, completedAt sql.NullTime

	if err := row.Scan(
		&run.ID,
		&run.Name,
		&run.InputPath,
		&run.WorkDir,
		&run.PolicyYAML,
		&run.Status,
		&outcome,
		&iterations,
		&finalMesh,
		&report,
		&errText,
		&run.CreatedAt,
		&startedAt,
		&completedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if outcome.Valid {
		result := &models.RunResult{
			Model:             modelName(run.InputPath),
			Outcome:           models.RunOutcome(outcome.String),
			IterationsUsed:    iterations,
			FinalMeshLocation: finalMesh.String,
			Error:             errText.String,
		}
		if len(report) > 0 {
			var rep models.ValidationReport
			if err := json.Unmarshal(report, &rep); err != nil {
				return nil, fmt.Errorf("failed to decode report of run %s: %w", run.ID, err)
			}
			result.LastReport = &rep
		}
		run.Result = result
	}
	return &run, nil
}

func (r *RunRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func modelName(inputPath string) string {
	return filepath.Base(inputPath)
}
