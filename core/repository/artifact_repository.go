package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"mesh-orchestrator/core/models"
)

// ArtifactRepository handles database operations for run artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetRunArtifacts retrieves artifacts for a run, oldest first
func (r *ArtifactRepository) GetRunArtifacts(ctx context.Context, runID string, artifactType *models.RunArtifactType) ([]models.RunArtifact, error) {
	query := `
		SELECT id, run_id, type, uri, created_at, meta_json
		FROM run_artifacts
		WHERE run_id = $1
	`
	args := []interface{}{runID}
	argIndex := 2

	if artifactType != nil {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, *artifactType)
	}

	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.RunArtifact
	for rows.Next() {
		var artifact models.RunArtifact
		var metaJSON []byte

		if err := rows.Scan(
			&artifact.ID,
			&artifact.RunID,
			&artifact.Type,
			&artifact.URI,
			&artifact.CreatedAt,
			&metaJSON,
		); err != nil {
			return nil, err
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &artifact.MetaJSON); err != nil {
				return nil, fmt.Errorf("failed to decode artifact meta: %w", err)
			}
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, runID string, artifactType models.RunArtifactType, uri string, meta map[string]interface{}) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO run_artifacts (run_id, type, uri, meta_json, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := r.db.ExecContext(ctx, query, runID, artifactType, uri, metaJSON); err != nil {
		return fmt.Errorf("failed to record artifact: %w", err)
	}
	return nil
}
