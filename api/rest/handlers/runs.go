package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"mesh-orchestrator/core/models"
	"mesh-orchestrator/core/repository"
	"mesh-orchestrator/core/spec"
	"mesh-orchestrator/storage"

	"github.com/gorilla/mux"
)

// RunStore persists submitted runs
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, status *models.RunStatus, limit int) ([]*models.Run, error)
}

// EventStore reads run events
type EventStore interface {
	GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)
}

// ArtifactStore reads run artifacts
type ArtifactStore interface {
	GetRunArtifacts(ctx context.Context, runID string, artifactType *models.RunArtifactType) ([]models.RunArtifact, error)
}

// Queue accepts runs for execution
type Queue interface {
	Enqueue(run *models.Run)
}

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	runRepo      RunStore
	eventRepo    EventStore
	artifactRepo ArtifactStore
	queue        Queue
}

// NewRunHandler creates a new run handler
func NewRunHandler(runRepo RunStore, eventRepo EventStore, artifactRepo ArtifactStore, queue Queue) *RunHandler {
	return &RunHandler{
		runRepo:      runRepo,
		eventRepo:    eventRepo,
		artifactRepo: artifactRepo,
		queue:        queue,
	}
}

// SubmitRunRequest represents the request to submit a run
type SubmitRunRequest struct {
	Name      string `json:"name"`
	InputPath string `json:"input_path"`
	SpecYAML  string `json:"spec_yaml"`
}

// SubmitRunResponse represents the response after submitting a run
type SubmitRunResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitRun handles POST /v1/runs
func (h *RunHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.InputPath == "" {
		http.Error(w, "input_path is required", http.StatusBadRequest)
		return
	}

	// Reject bad specs before anything is stored
	rs, err := spec.ParseRunSpec(req.SpecYAML)
	if err != nil {
		http.Error(w, "Invalid run spec: "+err.Error(), http.StatusBadRequest)
		return
	}

	name := req.Name
	if name == "" {
		name = rs.Name
	}
	if name == "" {
		name = filepath.Base(req.InputPath)
	}

	run := &models.Run{
		Name:       name,
		InputPath:  req.InputPath,
		PolicyYAML: req.SpecYAML,
		Status:     models.RunStatusPending,
	}
	if err := h.runRepo.CreateRun(r.Context(), run); err != nil {
		http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.queue.Enqueue(run)

	writeJSON(w, http.StatusCreated, SubmitRunResponse{
		ID:        run.ID,
		Status:    string(run.Status),
		CreatedAt: run.CreatedAt,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	response := map[string]interface{}{
		"id":         run.ID,
		"name":       run.Name,
		"input_path": run.InputPath,
		"status":     run.Status,
		"timestamps": map[string]interface{}{
			"created_at":  run.CreatedAt,
			"started_at":  run.StartedAt,
			"finished_at": run.CompletedAt,
		},
	}
	if run.Result != nil {
		response["result"] = run.Result
	}
	if run.Status == models.RunStatusSucceeded {
		uri, err := storage.LatestPublished(r.Context(), h.artifactRepo, run.ID)
		switch {
		case err == nil:
			response["published_uri"] = uri
		case !errors.Is(err, storage.ErrNotPublished):
			http.Error(w, "Failed to fetch artifacts: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// ListRuns handles GET /v1/runs
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")
	limit := 50 // Default limit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if _, err := fmt.Sscanf(limitParam, "%d", &limit); err != nil || limit < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	var status *models.RunStatus
	if statusParam != "" {
		s := models.RunStatus(statusParam)
		status = &s
	}

	runs, err := h.runRepo.ListRuns(r.Context(), status, limit)
	if err != nil {
		http.Error(w, "Failed to list runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(runs))
	for i, run := range runs {
		item := map[string]interface{}{
			"id":         run.ID,
			"name":       run.Name,
			"status":     run.Status,
			"created_at": run.CreatedAt,
		}
		if run.Result != nil {
			item["outcome"] = run.Result.Outcome
			item["iterations_used"] = run.Result.IterationsUsed
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetRunEvents handles GET /v1/runs/{id}/events
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	events, err := h.eventRepo.GetRunEvents(r.Context(), run.ID, 500)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(events))
	for i, event := range events {
		item := map[string]interface{}{
			"at":        event.At,
			"to_state":  event.ToState,
			"reason":    event.Reason,
			"iteration": event.Iteration,
		}
		if event.FromState != nil {
			item["from_state"] = *event.FromState
		}
		if len(event.MetaJSON) > 0 {
			item["meta"] = event.MetaJSON
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// GetRunArtifacts handles GET /v1/runs/{id}/artifacts
func (h *RunHandler) GetRunArtifacts(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	var artifactType *models.RunArtifactType
	if typeParam := r.URL.Query().Get("type"); typeParam != "" {
		t := models.RunArtifactType(typeParam)
		artifactType = &t
	}

	artifacts, err := h.artifactRepo.GetRunArtifacts(r.Context(), run.ID, artifactType)
	if err != nil {
		http.Error(w, "Failed to fetch artifacts: "+err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, len(artifacts))
	for i, artifact := range artifacts {
		items[i] = map[string]interface{}{
			"type":       artifact.Type,
			"uri":        artifact.URI,
			"created_at": artifact.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// lookupRun loads the run named by the {id} path variable and writes the
// error response when it cannot
func (h *RunHandler) lookupRun(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	runID := mux.Vars(r)["id"]

	run, err := h.runRepo.GetRun(r.Context(), runID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "Failed to fetch run: "+err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return run, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
