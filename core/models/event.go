package models

import "time"

// RunEvent records a controller state transition
type RunEvent struct {
	ID        int64
	RunID     string
	At        time.Time
	FromState *RunState
	ToState   RunState
	Reason    string
	Iteration int
	MetaJSON  map[string]interface{} // Strategy, provider, artifact location
}

// RunArtifactType classifies files kept for a run
type RunArtifactType string

const (
	RunArtifactGeometry  RunArtifactType = "geometry"
	RunArtifactMesh      RunArtifactType = "mesh"
	RunArtifactPublished RunArtifactType = "published_mesh"
)

// RunArtifact is a persisted reference to a file a run produced
type RunArtifact struct {
	ID        int64
	RunID     string
	Type      RunArtifactType
	URI       string
	CreatedAt time.Time
	MetaJSON  map[string]interface{}
}
