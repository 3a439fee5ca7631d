package supervisor

import (
	"context"
	"errors"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/models"
)

type fakeParser struct {
	err   string
	calls int
}

func (p *fakeParser) Name() string { return "fake-parser" }
func (p *fakeParser) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindGeometrySource}
}
func (p *fakeParser) Produces() models.ArtifactKind { return models.KindNormalizedGeometry }
func (p *fakeParser) Extension() string { return ".brep" }

func (p *fakeParser) Parse(_ context.Context, src models.Artifact, opts capability.ParseOptions) (models.Outcome, error) {
	p.calls++
	if p.err != "" {
		return models.Failed(p.err, ""), nil
	}
	a, err := models.NewArtifact(models.KindNormalizedGeometry, opts.Output, map[string]interface{}{
		models.MetaFaceCount: 6,
		models.MetaSource:    src.Location(),
	})
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(a, "parsed 6 faces"), nil
}

type meshCall struct {
	input    string
	output   string
	fineness float64
}

type fakeMesher struct {
	calls []meshCall
	// failOn makes the n-th call (1-based) fail
	failOn int
	err    string
}

func (m *fakeMesher) Name() string { return "fake-mesher" }
func (m *fakeMesher) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindNormalizedGeometry}
}
func (m *fakeMesher) Produces() models.ArtifactKind { return models.KindSurfaceMesh }

func (m *fakeMesher) Mesh(_ context.Context, geometry models.Artifact, opts capability.MeshOptions) (models.Outcome, error) {
	m.calls = append(m.calls, meshCall{input: geometry.Location(), output: opts.Output, fineness: opts.Fineness})
	if m.failOn == len(m.calls) {
		return models.Failed(m.err, ""), nil
	}
	a, err := models.NewArtifact(models.KindSurfaceMesh, opts.Output, map[string]interface{}{
		models.MetaFineness: opts.Fineness,
	})
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(a, "meshed"), nil
}

// scriptedValidator returns the scripted failure sets in order and repeats
// the last one once the script runs out
type scriptedValidator struct {
	script [][]models.Defect
	seen   []string
	err    string
	panics bool
}

func (v *scriptedValidator) Name() string { return "scripted-validator" }
func (v *scriptedValidator) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindSurfaceMesh}
}
func (v *scriptedValidator) Produces() models.ArtifactKind { return models.KindValidationReport }

func (v *scriptedValidator) Validate(_ context.Context, mesh models.Artifact) (models.Outcome, error) {
	v.seen = append(v.seen, mesh.Location())
	if v.panics {
		panic("index out of range [3] with length 3")
	}
	if v.err != "" {
		return models.Failed(v.err, ""), nil
	}
	idx := len(v.seen) - 1
	if idx >= len(v.script) {
		idx = len(v.script) - 1
	}
	report := models.NewReport(v.script[idx], map[string]float64{models.MetricFaceCount: 12}, nil)
	a, err := report.Artifact()
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(a, "validated"), nil
}

type optimizeCall struct {
	input string
	task  models.OptimizeTask
}

type fakeOptimizer struct {
	calls     []optimizeCall
	err       string
	wrongKind bool
	plainErr  bool
}

func (o *fakeOptimizer) Name() string { return "fake-optimizer" }
func (o *fakeOptimizer) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindSurfaceMesh}
}
func (o *fakeOptimizer) Produces() models.ArtifactKind { return models.KindSurfaceMesh }

func (o *fakeOptimizer) Optimize(_ context.Context, mesh models.Artifact, opts capability.OptimizeOptions) (models.Outcome, error) {
	o.calls = append(o.calls, optimizeCall{input: mesh.Location(), task: opts.Task})
	if o.plainErr {
		return models.Outcome{}, errors.New(o.err)
	}
	if o.err != "" {
		return models.Failed(o.err, ""), nil
	}
	if o.wrongKind {
		report, _ := models.NewReport(nil, nil, nil).Artifact()
		return models.Succeeded(report, ""), nil
	}
	fineness, _ := mesh.Float(models.MetaFineness)
	a, err := models.NewArtifact(models.KindSurfaceMesh, opts.Output, map[string]interface{}{
		models.MetaFineness: fineness,
		models.MetaLastOp:   string(opts.Task),
	})
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(a, string(opts.Task)), nil
}

type recordingObserver struct {
	events  []models.RunEvent
	results []models.RunResult
}

func (o *recordingObserver) OnTransition(_ context.Context, event models.RunEvent) {
	o.events = append(o.events, event)
}

func (o *recordingObserver) OnResult(_ context.Context, _ string, result models.RunResult) {
	o.results = append(o.results, result)
}

func (o *recordingObserver) path() []models.RunState {
	out := make([]models.RunState, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.ToState)
	}
	return out
}
