package gmsh

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/executor"
	"mesh-orchestrator/core/models"
	"mesh-orchestrator/providers/step"
)

// Parser converts STEP to BREP through gmsh's OpenCASCADE kernel. Face count
// and topology checks come from the STEP entity graph.
type Parser struct {
	engine *executor.Engine
	logger *zap.Logger
}

// NewParser creates a gmsh-backed parser
func NewParser(engine *executor.Engine, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{engine: engine, logger: logger}
}

func (p *Parser) Name() string { return "gmsh-parser" }

func (p *Parser) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindGeometrySource}
}

func (p *Parser) Produces() models.ArtifactKind { return models.KindNormalizedGeometry }

// Extension returns ".brep"
func (p *Parser) Extension() string { return ".brep" }

// Parse exports source as BREP to opts.Output
func (p *Parser) Parse(ctx context.Context, source models.Artifact, opts capability.ParseOptions) (models.Outcome, error) {
	if opts.Output == "" {
		return models.Outcome{}, models.ProviderViolationf(p.Name(), "no output location")
	}
	path := source.Location()
	if _, err := os.Stat(path); err != nil {
		return models.Failed(fmt.Sprintf("File not found: %s", path), ""), nil
	}

	sum, err := step.Inspect(path)
	if err != nil {
		return models.Failed(fmt.Sprintf("Error reading STEP file: %v", err), ""), nil
	}
	if !sum.TopologyValid() {
		p.logger.Warn("Invalid topology in STEP file",
			zap.String("source", path),
			zap.Ints("dangling_refs", sum.DanglingRefs))
	}

	var output string
	err = p.engine.WithSession(func(s *executor.Session) error {
		name := scratchName(opts.Output, "geometry.brep")
		out, err := s.Execute(ctx, path, "-0", "-format", "brep", "-o", s.Path(name))
		output = out
		if err != nil {
			return err
		}
		return s.Commit(name, opts.Output)
	})
	if err != nil {
		return models.Failed(diagnostic(err), output), nil
	}

	artifact, err := models.NewArtifact(models.KindNormalizedGeometry, opts.Output, map[string]interface{}{
		models.MetaFaceCount:     sum.FaceCount,
		models.MetaSource:        path,
		models.MetaFormat:        "brep",
		models.MetaTopologyValid: sum.TopologyValid(),
	})
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(artifact, fmt.Sprintf("Parsed STEP file. Faces: %d", sum.FaceCount)), nil
}
