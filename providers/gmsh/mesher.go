package gmsh

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/executor"
	"mesh-orchestrator/core/models"
)

// Mesher generates 2-D surface meshes with gmsh and exports them as STL
type Mesher struct {
	engine *executor.Engine
	logger *zap.Logger
}

// NewMesher creates a gmsh-backed mesher
func NewMesher(engine *executor.Engine, logger *zap.Logger) *Mesher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mesher{engine: engine, logger: logger}
}

func (m *Mesher) Name() string { return "gmsh-mesher" }

func (m *Mesher) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindNormalizedGeometry}
}

func (m *Mesher) Produces() models.ArtifactKind { return models.KindSurfaceMesh }

// Mesh discretizes geometry at opts.Fineness into opts.Output. The geometry
// file is only read, so the same geometry can be meshed again.
func (m *Mesher) Mesh(ctx context.Context, geometry models.Artifact, opts capability.MeshOptions) (models.Outcome, error) {
	if opts.Fineness < 0 || opts.Fineness > 1 {
		return models.Outcome{}, models.ProviderViolationf(m.Name(), "fineness %v outside [0,1]", opts.Fineness)
	}
	if opts.Output == "" {
		return models.Outcome{}, models.ProviderViolationf(m.Name(), "no output location")
	}

	factor := MeshSizeFactor(opts.Fineness)
	var output string
	err := m.engine.WithSession(func(s *executor.Session) error {
		name := scratchName(opts.Output, "mesh.stl")
		out, err := s.Execute(ctx, geometry.Location(),
			"-2",
			"-clscale", formatFloat(factor),
			"-format", "stl",
			"-o", s.Path(name))
		output = out
		if err != nil {
			return err
		}
		return s.Commit(name, opts.Output)
	})
	if err != nil {
		m.logger.Debug("gmsh meshing failed", zap.String("geometry", geometry.Location()), zap.Error(err))
		return models.Failed(diagnostic(err), output), nil
	}

	artifact, err := models.NewArtifact(models.KindSurfaceMesh, opts.Output, map[string]interface{}{
		models.MetaFineness: opts.Fineness,
	})
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(artifact, fmt.Sprintf("Meshed with fineness %v (size factor %v)", opts.Fineness, factor)), nil
}
