package models

import "time"

// RunOutcome is the terminal outcome of one controller run
type RunOutcome string

const (
	RunSuccess RunOutcome = "success"
	RunFailure RunOutcome = "failure"
)

// RunResult is the terminal output of the controller for one input model.
// Field names are consumed by external tooling and must stay stable.
type RunResult struct {
	Model             string            `json:"model"`
	Outcome           RunOutcome        `json:"outcome"`
	IterationsUsed    int               `json:"iterationsUsed"`
	FinalMeshLocation string            `json:"finalMeshLocation,omitempty"`
	LastReport        *ValidationReport `json:"lastReport,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// Succeeded reports whether the last validation passed
func (r RunResult) Succeeded() bool { return r.Outcome == RunSuccess }

// Exhausted reports whether the run stopped because the iteration budget
// ran out, as opposed to a tool failure.
func (r RunResult) Exhausted() bool {
	return r.Outcome == RunFailure && r.Error == "" && r.LastReport != nil
}

// RunStatus is the lifecycle of a submitted run in server mode
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a submitted controller run
type Run struct {
	ID          string
	Name        string
	InputPath   string
	WorkDir     string
	PolicyYAML  string // Original policy for replay/debug
	Status      RunStatus
	Result      *RunResult
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}
