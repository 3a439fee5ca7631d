package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArtifact_SchemaPerKind(t *testing.T) {
	tests := []struct {
		name    string
		kind    ArtifactKind
		meta    map[string]interface{}
		wantErr bool
	}{
		{name: "geometry source without metadata", kind: KindGeometrySource},
		{
			name: "normalized geometry complete",
			kind: KindNormalizedGeometry,
			meta: map[string]interface{}{MetaFaceCount: 12, MetaSource: "/in/part.step"},
		},
		{
			name:    "normalized geometry missing face count",
			kind:    KindNormalizedGeometry,
			meta:    map[string]interface{}{MetaSource: "/in/part.step"},
			wantErr: true,
		},
		{
			name:    "face count of wrong type",
			kind:    KindNormalizedGeometry,
			meta:    map[string]interface{}{MetaFaceCount: "12", MetaSource: "x"},
			wantErr: true,
		},
		{
			name: "surface mesh with fineness",
			kind: KindSurfaceMesh,
			meta: map[string]interface{}{MetaFineness: 0.5},
		},
		{
			name:    "surface mesh fineness out of range",
			kind:    KindSurfaceMesh,
			meta:    map[string]interface{}{MetaFineness: 1.5},
			wantErr: true,
		},
		{
			name:    "surface mesh without fineness",
			kind:    KindSurfaceMesh,
			meta:    map[string]interface{}{MetaLastOp: "repair_watertight"},
			wantErr: true,
		},
		{
			name: "report passed with failures",
			kind: KindValidationReport,
			meta: map[string]interface{}{
				MetaPassed:   true,
				MetaFailures: []Defect{DefectDisconnected},
				MetaMetrics:  map[string]float64{},
			},
			wantErr: true,
		},
		{
			name: "report with unknown defect",
			kind: KindValidationReport,
			meta: map[string]interface{}{
				MetaPassed:   false,
				MetaFailures: []Defect{"cracked"},
				MetaMetrics:  map[string]float64{},
			},
			wantErr: true,
		},
		{name: "unknown kind", kind: "point_cloud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArtifact(tt.kind, "/work/x", tt.meta)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsContractViolation(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestArtifact_MetadataIsCopied(t *testing.T) {
	meta := map[string]interface{}{MetaFineness: 0.5}
	a := MustArtifact(KindSurfaceMesh, "/work/part_01_mesh.stl", meta)

	meta[MetaFineness] = 0.9
	got, ok := a.Float(MetaFineness)
	require.True(t, ok)
	assert.Equal(t, 0.5, got)

	out := a.Metadata()
	out[MetaLastOp] = "tampered"
	_, ok = a.Meta(MetaLastOp)
	assert.False(t, ok)
}

func TestReport_RoundTripThroughArtifact(t *testing.T) {
	report := NewReport(
		[]Defect{DefectNotWatertight, DefectBadAspectRatio, DefectNotWatertight},
		map[string]float64{MetricFaceCount: 12},
		[]string{"open_edges_detected"},
	)
	assert.False(t, report.Passed)
	assert.Equal(t, []Defect{DefectBadAspectRatio, DefectNotWatertight}, report.Failures)

	a, err := report.Artifact()
	require.NoError(t, err)
	assert.Equal(t, KindValidationReport, a.Kind())
	assert.Equal(t, MemoryLocation, a.Location())

	back, err := ReportFromArtifact(a)
	require.NoError(t, err)
	assert.Equal(t, report, back)
}

func TestNewReport_EmptyFailuresPasses(t *testing.T) {
	report := NewReport(nil, nil, nil)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Failures)

	a, err := report.Artifact()
	require.NoError(t, err)
	passed, _ := a.Meta(MetaPassed)
	assert.Equal(t, true, passed)
}

func TestOutcome_Validate(t *testing.T) {
	mesh := MustArtifact(KindSurfaceMesh, "/work/m.stl", map[string]interface{}{MetaFineness: 0.5})

	assert.NoError(t, Succeeded(mesh, "meshed").Validate())
	assert.NoError(t, Failed("boom", "").Validate())

	assert.Error(t, Outcome{Status: OutcomeOk}.Validate())
	assert.Error(t, Outcome{Status: OutcomeFailed, Artifact: mesh, Error: "x"}.Validate())
	assert.Error(t, Outcome{Status: OutcomeFailed}.Validate())
	assert.Error(t, Outcome{Status: "maybe"}.Validate())

	assert.Equal(t, "provider failed without diagnostic", Failed("", "").Error)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StateInit, StateParsed))
	assert.True(t, CanTransition(StateParsed, StateInitialMesh))
	assert.True(t, CanTransition(StateInitialMesh, StateValidating))
	assert.True(t, CanTransition(StateValidating, StateRepairing))
	assert.True(t, CanTransition(StateValidating, StateRemeshing))
	assert.True(t, CanTransition(StateRemeshing, StateValidating))
	assert.True(t, CanTransition(StateValidating, StateSucceeded))
	assert.True(t, CanTransition(StateRepairing, StateFailed))

	assert.False(t, CanTransition(StateInit, StateValidating))
	assert.False(t, CanTransition(StateParsed, StateSucceeded))
	assert.False(t, CanTransition(StateSucceeded, StateValidating))
	assert.False(t, CanTransition(StateFailed, StateFailed))
}

func TestRunResult_Exhausted(t *testing.T) {
	report := NewReport([]Defect{DefectSelfIntersecting}, nil, nil)

	assert.True(t, RunResult{Outcome: RunFailure, LastReport: &report}.Exhausted())
	assert.False(t, RunResult{Outcome: RunFailure, LastReport: &report, Error: "gmsh crashed"}.Exhausted())
	assert.False(t, RunResult{Outcome: RunSuccess, LastReport: &report}.Exhausted())
}
