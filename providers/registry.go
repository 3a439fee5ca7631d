// Package providers assembles provider sets from configuration
package providers

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"mesh-orchestrator/config"
	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/executor"
	"mesh-orchestrator/core/spec"
	"mesh-orchestrator/providers/gmsh"
	"mesh-orchestrator/providers/meshkit"
	"mesh-orchestrator/providers/step"
)

// Backends selects and configures provider implementations
type Backends struct {
	Parser           string
	Mesher           string
	GmshPath         string
	GmshTimeout      time.Duration
	ScratchRoot      string
	AspectRatioLimit float64
}

// BackendsFromConfig reads backend selection from the server configuration
func BackendsFromConfig(cfg *config.Config) Backends {
	return Backends{
		Parser:           cfg.ParserBackend,
		Mesher:           cfg.MesherBackend,
		GmshPath:         cfg.GmshPath,
		GmshTimeout:      cfg.GmshTimeout,
		AspectRatioLimit: cfg.AspectRatioLimit,
	}
}

// WithRunSpec applies the overrides of a run specification
func (b Backends) WithRunSpec(rs *spec.RunSpec) Backends {
	if rs == nil {
		return b
	}
	if rs.ParserBackend != "" {
		b.Parser = rs.ParserBackend
	}
	if rs.MesherBackend != "" {
		b.Mesher = rs.MesherBackend
	}
	if rs.AspectRatioLimit > 0 {
		b.AspectRatioLimit = rs.AspectRatioLimit
	}
	return b
}

// NewSet builds the provider set for b. Validation and optimization are
// always native.
func NewSet(b Backends, logger *zap.Logger) (capability.Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var engine *executor.Engine
	gmshEngine := func() (*executor.Engine, error) {
		if engine != nil {
			return engine, nil
		}
		e := executor.NewEngine(b.GmshPath, b.ScratchRoot, b.GmshTimeout, logger)
		if err := e.Available(); err != nil {
			return nil, err
		}
		engine = e
		return engine, nil
	}

	set := capability.Set{
		Validator: meshkit.NewValidator(logger.Named("validator"), b.AspectRatioLimit),
		Optimizer: meshkit.NewOptimizer(logger.Named("optimizer")),
	}

	switch b.Parser {
	case config.BackendStep:
		set.Parser = step.NewParser(logger.Named("parser"))
	case config.BackendGmsh:
		e, err := gmshEngine()
		if err != nil {
			return capability.Set{}, err
		}
		set.Parser = gmsh.NewParser(e, logger.Named("parser"))
	default:
		return capability.Set{}, fmt.Errorf("unknown parser backend %q", b.Parser)
	}

	switch b.Mesher {
	case config.BackendGmsh:
		e, err := gmshEngine()
		if err != nil {
			return capability.Set{}, err
		}
		set.Mesher = gmsh.NewMesher(e, logger.Named("mesher"))
	default:
		return capability.Set{}, fmt.Errorf("unknown mesher backend %q", b.Mesher)
	}

	if err := set.Validate(); err != nil {
		return capability.Set{}, err
	}
	return set, nil
}
