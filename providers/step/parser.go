package step

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/models"
)

// Parser is the native STEP parser backend. The normalized geometry is a
// checked copy of the source in the work dir.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a native STEP parser
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

func (p *Parser) Name() string { return "step-parser" }

func (p *Parser) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindGeometrySource}
}

func (p *Parser) Produces() models.ArtifactKind { return models.KindNormalizedGeometry }

// Extension returns ".step"
func (p *Parser) Extension() string { return ".step" }

// Parse checks the source file and copies it to opts.Output. Dangling entity
// references are reported as topology_valid=false but do not fail the parse.
func (p *Parser) Parse(ctx context.Context, source models.Artifact, opts capability.ParseOptions) (models.Outcome, error) {
	if opts.Output == "" {
		return models.Outcome{}, models.ProviderViolationf(p.Name(), "no output location")
	}
	if err := ctx.Err(); err != nil {
		return models.FailedErr(err, ""), nil
	}

	path := source.Location()
	if _, err := os.Stat(path); err != nil {
		return models.Failed(fmt.Sprintf("File not found: %s", path), ""), nil
	}

	sum, err := Inspect(path)
	if err != nil {
		return models.Failed(fmt.Sprintf("Error reading STEP file: %v", err), ""), nil
	}

	log := fmt.Sprintf("Parsed STEP file. Faces: %d", sum.FaceCount)
	if !sum.TopologyValid() {
		p.logger.Warn("Invalid topology in STEP file",
			zap.String("source", path),
			zap.Ints("dangling_refs", sum.DanglingRefs))
		log += fmt.Sprintf(". Warning: %d dangling entity references", len(sum.DanglingRefs))
	}

	if err := copyFile(path, opts.Output); err != nil {
		return models.FailedErr(err, log), nil
	}

	artifact, err := models.NewArtifact(models.KindNormalizedGeometry, opts.Output, map[string]interface{}{
		models.MetaFaceCount:     sum.FaceCount,
		models.MetaSource:        path,
		models.MetaFormat:        "step",
		models.MetaTopologyValid: sum.TopologyValid(),
	})
	if err != nil {
		return models.Outcome{}, err
	}
	return models.Succeeded(artifact, log), nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
