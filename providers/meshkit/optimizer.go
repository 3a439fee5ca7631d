package meshkit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/models"
)

const (
	defaultSmoothingIterations = 5
	defaultSmoothingLambda     = 0.5
)

// Optimizer repairs and improves STL surface meshes
type Optimizer struct {
	SmoothingIterations int
	SmoothingLambda     float64
	logger              *zap.Logger
}

// NewOptimizer creates an optimizer with five Laplacian passes at lambda 0.5
func NewOptimizer(logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		SmoothingIterations: defaultSmoothingIterations,
		SmoothingLambda:     defaultSmoothingLambda,
		logger:              logger,
	}
}

func (o *Optimizer) Name() string { return "meshkit-optimizer" }

func (o *Optimizer) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindSurfaceMesh}
}

func (o *Optimizer) Produces() models.ArtifactKind { return models.KindSurfaceMesh }

// Optimize performs opts.Task on mesh and writes the result to opts.Output.
// The input file is left untouched.
func (o *Optimizer) Optimize(ctx context.Context, mesh models.Artifact, opts capability.OptimizeOptions) (models.Outcome, error) {
	if !opts.Task.Valid() {
		return models.Outcome{}, models.ProviderViolationf(o.Name(), "unknown optimize task %q", opts.Task)
	}
	if opts.Output == "" {
		return models.Outcome{}, models.ProviderViolationf(o.Name(), "no output location")
	}
	if opts.Output == mesh.Location() {
		return models.Outcome{}, models.ProviderViolationf(o.Name(), "output would overwrite input %s", mesh.Location())
	}
	if err := ctx.Err(); err != nil {
		return models.FailedErr(err, ""), nil
	}

	m, err := Load(mesh.Location())
	if err != nil {
		return models.FailedErr(err, ""), nil
	}
	if len(m.Faces) == 0 {
		return models.Failed(fmt.Sprintf("mesh %s has no faces", mesh.Location()), ""), nil
	}

	var log []string
	switch opts.Task {
	case models.TaskRepairWatertight:
		holes, faces, bodies := fillHoles(m), fixNormals(m), fixInversion(m)
		log = append(log,
			fmt.Sprintf("Filled %d holes.", holes),
			fmt.Sprintf("Fixed normals (%d faces flipped).", faces),
			fmt.Sprintf("Fixed inversion (%d bodies flipped).", bodies))
		if holes+faces+bodies == 0 {
			return models.Failed("cannot repair watertightness: no holes, flipped faces or inverted bodies found", strings.Join(log, " ")), nil
		}
		if !buildTopology(m).watertight() {
			return models.Failed("cannot repair watertightness: mesh still has open or non-manifold edges", strings.Join(log, " ")), nil
		}
	case models.TaskOptimizeElementQuality:
		smooth(m, o.SmoothingLambda, o.SmoothingIterations)
		log = append(log, fmt.Sprintf("Applied Laplacian smoothing (%d iterations).", o.SmoothingIterations))
	}

	if err := m.Save(opts.Output); err != nil {
		return models.FailedErr(err, strings.Join(log, " ")), nil
	}

	fineness, _ := mesh.Float(models.MetaFineness)
	artifact, err := models.NewArtifact(models.KindSurfaceMesh, opts.Output, map[string]interface{}{
		models.MetaFineness:    fineness,
		models.MetaLastOp:      string(opts.Task),
		models.MetaVertexCount: len(m.Vertices),
		models.MetaFaceCount:   len(m.Faces),
	})
	if err != nil {
		return models.Outcome{}, err
	}

	o.logger.Debug("Mesh optimized",
		zap.String("task", string(opts.Task)),
		zap.String("input", mesh.Location()),
		zap.String("output", opts.Output))
	return models.Succeeded(artifact, strings.Join(log, " ")), nil
}
