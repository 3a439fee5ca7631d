package spec

import (
	"fmt"
	"os"

	"mesh-orchestrator/core/supervisor"

	"gopkg.in/yaml.v3"
)

// RunSpecDocument represents the YAML run specification
type RunSpecDocument struct {
	Run RunSpecRun `yaml:"run"`
}

// RunSpecRun represents the run section of the spec
type RunSpecRun struct {
	Name       string            `yaml:"name"`
	Policy     RunSpecPolicy     `yaml:"policy"`
	Backends   RunSpecBackends   `yaml:"backends"`
	Validation RunSpecValidation `yaml:"validation"`
}

// RunSpecPolicy overrides the controller policy. Omitted fields keep their
// defaults.
type RunSpecPolicy struct {
	MaxIterations   *int     `yaml:"max_iterations,omitempty"`
	InitialFineness *float64 `yaml:"initial_fineness,omitempty"`
	RemeshFineness  *float64 `yaml:"remesh_fineness,omitempty"`
}

// RunSpecBackends selects provider backends
type RunSpecBackends struct {
	Parser string `yaml:"parser,omitempty"` // step | gmsh
	Mesher string `yaml:"mesher,omitempty"` // gmsh
}

// RunSpecValidation tunes the validator
type RunSpecValidation struct {
	AspectRatioLimit *float64 `yaml:"aspect_ratio_limit,omitempty"`
}

// RunSpec is a parsed run specification. Empty backend fields and a zero
// AspectRatioLimit mean "use the server configuration".
type RunSpec struct {
	Name             string
	Policy           supervisor.Policy
	ParserBackend    string
	MesherBackend    string
	AspectRatioLimit float64
	SpecYAML         string
}

// ParseRunSpec parses a YAML run specification. An empty document yields the
// default policy.
func ParseRunSpec(specYAML string) (*RunSpec, error) {
	var doc RunSpecDocument
	if err := yaml.Unmarshal([]byte(specYAML), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	policy := supervisor.DefaultPolicy()
	if p := doc.Run.Policy.MaxIterations; p != nil {
		policy.MaxIterations = *p
	}
	if p := doc.Run.Policy.InitialFineness; p != nil {
		policy.InitialFineness = *p
	}
	if p := doc.Run.Policy.RemeshFineness; p != nil {
		policy.RemeshFineness = *p
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	spec := &RunSpec{
		Name:          doc.Run.Name,
		Policy:        policy,
		ParserBackend: doc.Run.Backends.Parser,
		MesherBackend: doc.Run.Backends.Mesher,
		SpecYAML:      specYAML,
	}

	switch spec.ParserBackend {
	case "", "step", "gmsh":
	default:
		return nil, fmt.Errorf("unknown parser backend %q", spec.ParserBackend)
	}
	switch spec.MesherBackend {
	case "", "gmsh":
	default:
		return nil, fmt.Errorf("unknown mesher backend %q", spec.MesherBackend)
	}

	if limit := doc.Run.Validation.AspectRatioLimit; limit != nil {
		if *limit <= 0 {
			return nil, fmt.Errorf("aspect_ratio_limit must be positive, got %v", *limit)
		}
		spec.AspectRatioLimit = *limit
	}

	return spec, nil
}

// LoadRunSpec reads and parses a run specification file
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run spec: %w", err)
	}
	return ParseRunSpec(string(data))
}
