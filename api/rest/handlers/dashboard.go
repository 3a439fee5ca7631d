package handlers

import (
	"net/http"
	"sort"
	"time"

	"mesh-orchestrator/core/models"
)

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	runRepo RunStore
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(runRepo RunStore) *DashboardHandler {
	return &DashboardHandler{runRepo: runRepo}
}

// GetRunSummary returns outcome and defect statistics for runs created in a
// period
func (h *DashboardHandler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Parse dates (default to last 30 days)
	var start, end time.Time
	if startDate != "" {
		var err error
		start, err = time.Parse(time.RFC3339, startDate)
		if err != nil {
			http.Error(w, "Invalid start_date format", http.StatusBadRequest)
			return
		}
	} else {
		start = time.Now().AddDate(0, 0, -30)
	}

	if endDate != "" {
		var err error
		end, err = time.Parse(time.RFC3339, endDate)
		if err != nil {
			http.Error(w, "Invalid end_date format", http.StatusBadRequest)
			return
		}
	} else {
		end = time.Now()
	}

	runs, err := h.runRepo.ListRuns(r.Context(), nil, 1000)
	if err != nil {
		http.Error(w, "Failed to fetch runs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	byStatus := map[models.RunStatus]int{}
	defects := map[models.Defect]int{}
	completed, succeeded, exhausted, toolFailures, iterations := 0, 0, 0, 0, 0

	for _, run := range runs {
		if run.CreatedAt.Before(start) || run.CreatedAt.After(end) {
			continue
		}
		byStatus[run.Status]++

		result := run.Result
		if result == nil {
			continue
		}
		completed++
		iterations += result.IterationsUsed
		switch {
		case result.Succeeded():
			succeeded++
		case result.Exhausted():
			exhausted++
		default:
			toolFailures++
		}
		if result.LastReport != nil && !result.LastReport.Passed {
			for _, d := range result.LastReport.Failures {
				defects[d]++
			}
		}
	}

	avgIterations, successRate := 0.0, 0.0
	if completed > 0 {
		avgIterations = float64(iterations) / float64(completed)
		successRate = float64(succeeded) / float64(completed)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"runs": byStatus,
		"outcomes": map[string]interface{}{
			"succeeded":     succeeded,
			"exhausted":     exhausted,
			"tool_failures": toolFailures,
			"success_rate":  successRate,
		},
		"avg_iterations":    avgIterations,
		"remaining_defects": defectCounts(defects),
	})
}

// defectCounts orders defect tallies by frequency, then name
func defectCounts(defects map[models.Defect]int) []map[string]interface{} {
	keys := make([]models.Defect, 0, len(defects))
	for d := range defects {
		keys = append(keys, d)
	}
	sort.Slice(keys, func(i, j int) bool {
		if defects[keys[i]] != defects[keys[j]] {
			return defects[keys[i]] > defects[keys[j]]
		}
		return keys[i] < keys[j]
	})

	out := make([]map[string]interface{}, 0, len(keys))
	for _, d := range keys {
		out = append(out, map[string]interface{}{
			"defect": d,
			"count":  defects[d],
		})
	}
	return out
}
