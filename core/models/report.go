package models

import "sort"

// Defect is a mesh quality failure tag. The vocabulary is closed.
type Defect string

const (
	DefectNotWatertight    Defect = "not_watertight"
	DefectSelfIntersecting Defect = "self_intersecting"
	DefectDisconnected     Defect = "disconnected"
	DefectBadAspectRatio   Defect = "bad_aspect_ratio"
)

// Valid reports whether d belongs to the defect vocabulary
func (d Defect) Valid() bool {
	switch d {
	case DefectNotWatertight, DefectSelfIntersecting, DefectDisconnected, DefectBadAspectRatio:
		return true
	}
	return false
}

// Metric names reported by validators
const (
	MetricVertexCount    = "vertex_count"
	MetricFaceCount      = "face_count"
	MetricEulerNumber    = "euler_number"
	MetricVolume         = "volume"
	MetricIsWatertight   = "is_watertight"
	MetricBodyCount      = "body_count"
	MetricAvgJacobian    = "avg_jacobian"
	MetricMinJacobian    = "min_jacobian"
	MetricMaxAspectRatio = "max_aspect_ratio"
)

// ValidationReport is the payload of a validation_report artifact.
// Passed is always equal to len(Failures) == 0.
type ValidationReport struct {
	Passed   bool               `json:"passed"`
	Failures []Defect           `json:"failures"`
	Metrics  map[string]float64 `json:"metrics"`
	Details  []string           `json:"details,omitempty"`
}

// NewReport deduplicates failures and derives Passed from them
func NewReport(failures []Defect, metrics map[string]float64, details []string) ValidationReport {
	seen := make(map[Defect]struct{}, len(failures))
	set := make([]Defect, 0, len(failures))
	for _, f := range failures {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		set = append(set, f)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })

	if metrics == nil {
		metrics = map[string]float64{}
	}
	return ValidationReport{
		Passed:   len(set) == 0,
		Failures: set,
		Metrics:  metrics,
		Details:  details,
	}
}

// Has reports whether d is among the report's failures
func (r ValidationReport) Has(d Defect) bool {
	for _, f := range r.Failures {
		if f == d {
			return true
		}
	}
	return false
}

// Artifact wraps the report as an in-memory validation_report artifact
func (r ValidationReport) Artifact() (Artifact, error) {
	meta := map[string]interface{}{
		MetaPassed:   r.Passed,
		MetaFailures: r.Failures,
		MetaMetrics:  r.Metrics,
	}
	if r.Failures == nil {
		meta[MetaFailures] = []Defect{}
	}
	if r.Metrics == nil {
		meta[MetaMetrics] = map[string]float64{}
	}
	if len(r.Details) > 0 {
		meta[MetaDetails] = r.Details
	}
	return NewArtifact(KindValidationReport, MemoryLocation, meta)
}

// ReportFromArtifact reads the report payload back out of a
// validation_report artifact
func ReportFromArtifact(a Artifact) (ValidationReport, error) {
	if a.Kind() != KindValidationReport {
		return ValidationReport{}, Violationf("expected %s artifact, got %s", KindValidationReport, a.Kind())
	}
	meta := a.Metadata()
	passed, ok := meta[MetaPassed].(bool)
	if !ok {
		return ValidationReport{}, Violationf("validation report missing %q", MetaPassed)
	}
	failures, ok := meta[MetaFailures].([]Defect)
	if !ok {
		return ValidationReport{}, Violationf("validation report missing %q", MetaFailures)
	}
	metrics, _ := meta[MetaMetrics].(map[string]float64)
	details, _ := meta[MetaDetails].([]string)

	return ValidationReport{
		Passed:   passed,
		Failures: failures,
		Metrics:  metrics,
		Details:  details,
	}, nil
}
