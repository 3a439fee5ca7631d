package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"mesh-orchestrator/core/models"
)

// EventRepository handles database operations for run events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// CreateRunEvent appends a state transition to a run's history
func (r *EventRepository) CreateRunEvent(ctx context.Context, event models.RunEvent) error {
	metaJSON, err := encodeMeta(event.MetaJSON)
	if err != nil {
		return err
	}

	var fromState *string
	if event.FromState != nil {
		s := string(*event.FromState)
		fromState = &s
	}

	query := `
		INSERT INTO run_events (run_id, at, from_state, to_state, reason, iteration, meta_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		event.RunID,
		event.At,
		fromState,
		event.ToState,
		event.Reason,
		event.Iteration,
		metaJSON,
	); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// GetRunEvents retrieves a run's events in the order they happened
func (r *EventRepository) GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	query := `
		SELECT id, run_id, at, from_state, to_state, reason, iteration, meta_json
		FROM run_events
		WHERE run_id = $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer rows.Close()

	var events []models.RunEvent
	for rows.Next() {
		var event models.RunEvent
		var fromState sql.NullString
		var metaJSON []byte

		if err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.At,
			&fromState,
			&event.ToState,
			&event.Reason,
			&event.Iteration,
			&metaJSON,
		); err != nil {
			return nil, err
		}

		if fromState.Valid {
			state := models.RunState(fromState.String)
			event.FromState = &state
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &event.MetaJSON); err != nil {
				return nil, fmt.Errorf("failed to decode event meta: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func encodeMeta(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode meta: %w", err)
	}
	return string(b), nil
}
