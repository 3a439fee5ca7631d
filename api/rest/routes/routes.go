package routes

import (
	"net/http"

	"mesh-orchestrator/api/rest/handlers"
	"mesh-orchestrator/core/repository"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, db *repository.DB, queue handlers.Queue, metrics http.Handler) {
	runRepo := repository.NewRunRepository(db)
	eventRepo := repository.NewEventRepository(db)
	artifactRepo := repository.NewArtifactRepository(db)

	Register(r, handlers.NewRunHandler(runRepo, eventRepo, artifactRepo, queue), handlers.NewDashboardHandler(runRepo), metrics)
}

// Register mounts the handlers on r
func Register(r *mux.Router, runHandler *handlers.RunHandler, dashboard *handlers.DashboardHandler, metrics http.Handler) {
	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.SubmitRun).Methods("POST")
	api.HandleFunc("/runs/{id}", runHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs", runHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}/events", runHandler.GetRunEvents).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts", runHandler.GetRunArtifacts).Methods("GET")

	// Dashboard endpoints
	api.HandleFunc("/dashboard/summary", dashboard.GetRunSummary).Methods("GET")

	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
