// Package capability defines the contracts of the geometry providers the
// repair controller drives. Implementations live under providers/ and are
// chosen at construction time.
package capability

import (
	"context"

	"mesh-orchestrator/core/models"
)

// Capability describes what a provider consumes and produces
type Capability interface {
	Name() string
	Accepts() []models.ArtifactKind
	Produces() models.ArtifactKind
}

// ParseOptions parameterizes a Parser call
type ParseOptions struct {
	Output string // Path the normalized geometry is written to
}

// MeshOptions parameterizes a Mesher call
type MeshOptions struct {
	Output   string
	Fineness float64 // 0.0 (coarse) - 1.0 (fine)
}

// OptimizeOptions parameterizes an Optimizer call
type OptimizeOptions struct {
	Output string
	Task   models.OptimizeTask
}

// Parser turns a geometry source into normalized geometry. It computes
// topology metadata but does not judge mesh quality.
type Parser interface {
	Capability
	// Extension is the file extension of the normalized geometry, with dot
	Extension() string
	Parse(ctx context.Context, source models.Artifact, opts ParseOptions) (models.Outcome, error)
}

// Mesher discretizes normalized geometry into a surface mesh. Calling it
// again on the same geometry with a different fineness must be safe.
type Mesher interface {
	Capability
	Mesh(ctx context.Context, geometry models.Artifact, opts MeshOptions) (models.Outcome, error)
}

// Validator inspects a surface mesh and reports defects. It never modifies
// or re-exports the mesh.
type Validator interface {
	Capability
	Validate(ctx context.Context, mesh models.Artifact) (models.Outcome, error)
}

// Optimizer repairs or improves a surface mesh. If it cannot perform the
// task it returns a Failed outcome rather than copying the input.
type Optimizer interface {
	Capability
	Optimize(ctx context.Context, mesh models.Artifact, opts OptimizeOptions) (models.Outcome, error)
}

// Set is the group of providers one controller run uses
type Set struct {
	Parser    Parser
	Mesher    Mesher
	Validator Validator
	Optimizer Optimizer
}

// Validate checks that every provider is present and declares the kinds
// the controller relies on
func (s Set) Validate() error {
	if s.Parser == nil || s.Mesher == nil || s.Validator == nil || s.Optimizer == nil {
		return models.Violationf("provider set is incomplete")
	}
	checks := []struct {
		c       Capability
		accepts models.ArtifactKind
		output  models.ArtifactKind
	}{
		{s.Parser, models.KindGeometrySource, models.KindNormalizedGeometry},
		{s.Mesher, models.KindNormalizedGeometry, models.KindSurfaceMesh},
		{s.Validator, models.KindSurfaceMesh, models.KindValidationReport},
		{s.Optimizer, models.KindSurfaceMesh, models.KindSurfaceMesh},
	}
	for _, check := range checks {
		if !Accepts(check.c, check.accepts) {
			return models.ProviderViolationf(check.c.Name(), "does not accept %s", check.accepts)
		}
		if check.c.Produces() != check.output {
			return models.ProviderViolationf(check.c.Name(), "produces %s, want %s", check.c.Produces(), check.output)
		}
	}
	return nil
}

// Accepts reports whether c declares kind among its inputs
func Accepts(c Capability, kind models.ArtifactKind) bool {
	for _, k := range c.Accepts() {
		if k == kind {
			return true
		}
	}
	return false
}

// RequireInput returns a contract violation if in is not a kind c accepts
func RequireInput(c Capability, in models.Artifact) error {
	if !Accepts(c, in.Kind()) {
		return models.ProviderViolationf(c.Name(), "cannot consume %s artifact %q", in.Kind(), in.Location())
	}
	return nil
}
