package meshkit

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"mesh-orchestrator/core/models"
)

// DefaultAspectRatioLimit is the longest/shortest edge ratio above which a
// mesh is reported as bad_aspect_ratio
const DefaultAspectRatioLimit = 50.0

// Validator checks STL surface meshes for watertightness, winding
// consistency, connectivity and element quality
type Validator struct {
	AspectRatioLimit float64
	logger           *zap.Logger
}

// NewValidator creates a validator. A non-positive limit selects
// DefaultAspectRatioLimit.
func NewValidator(logger *zap.Logger, aspectRatioLimit float64) *Validator {
	if aspectRatioLimit <= 0 {
		aspectRatioLimit = DefaultAspectRatioLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{AspectRatioLimit: aspectRatioLimit, logger: logger}
}

func (v *Validator) Name() string { return "meshkit-validator" }

func (v *Validator) Accepts() []models.ArtifactKind {
	return []models.ArtifactKind{models.KindSurfaceMesh}
}

func (v *Validator) Produces() models.ArtifactKind { return models.KindValidationReport }

// Validate loads the mesh and reports its defects. The mesh file is not
// modified.
func (v *Validator) Validate(ctx context.Context, mesh models.Artifact) (models.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return models.FailedErr(err, ""), nil
	}

	m, err := Load(mesh.Location())
	if err != nil {
		return models.Failed(fmt.Sprintf("mesh load failed: %v", err), ""), nil
	}
	if len(m.Faces) == 0 {
		return models.Failed(fmt.Sprintf("mesh %s has no faces", mesh.Location()), ""), nil
	}

	report := Analyze(m, v.AspectRatioLimit)
	artifact, err := report.Artifact()
	if err != nil {
		return models.Outcome{}, err
	}

	status := "SUCCESS"
	if !report.Passed {
		status = "FAIL"
	}
	v.logger.Debug("Mesh analyzed",
		zap.String("mesh", mesh.Location()),
		zap.Any("failures", report.Failures),
		zap.Float64("min_jacobian", report.Metrics[models.MetricMinJacobian]))
	return models.Succeeded(artifact, "Validation complete. Status: "+status), nil
}

// Analyze computes the validation report of m
func Analyze(m *Mesh, aspectRatioLimit float64) models.ValidationReport {
	t := buildTopology(m)
	var failures []models.Defect
	var details []string

	watertight := t.watertight()
	if !watertight {
		failures = append(failures, models.DefectNotWatertight)
		details = append(details, "open_edges_detected")
	}

	if !t.windingConsistent() {
		failures = append(failures, models.DefectSelfIntersecting)
		details = append(details, "inconsistent_winding")
	}

	bodies := len(t.bodies())
	if bodies > 1 {
		failures = append(failures, models.DefectDisconnected)
		details = append(details, fmt.Sprintf("found_%d_components", bodies))
	}

	ratio := aspectRatio(m, t)
	if ratio > aspectRatioLimit {
		failures = append(failures, models.DefectBadAspectRatio)
	}

	volume := 0.0
	if watertight {
		volume = m.signedVolume(m.allFaces())
		if volume < 0 {
			details = append(details, "negative_volume")
		}
	}

	avgJac, minJac := quality(m)
	metrics := map[string]float64{
		models.MetricVertexCount:    float64(len(m.Vertices)),
		models.MetricFaceCount:      float64(len(m.Faces)),
		models.MetricEulerNumber:    float64(len(m.Vertices) - len(t.edges) + len(m.Faces)),
		models.MetricVolume:         volume,
		models.MetricIsWatertight:   boolMetric(watertight),
		models.MetricBodyCount:      float64(bodies),
		models.MetricAvgJacobian:    avgJac,
		models.MetricMinJacobian:    minJac,
		models.MetricMaxAspectRatio: ratio,
	}
	return models.NewReport(failures, metrics, details)
}

// aspectRatio is the ratio of the longest to the shortest edge, or 0 when the
// mesh has a zero-length edge
func aspectRatio(m *Mesh, t *topology) float64 {
	shortest, longest := math.Inf(1), 0.0
	for e := range t.edges {
		l := m.Vertices[e.a].sub(m.Vertices[e.b]).norm()
		shortest = math.Min(shortest, l)
		longest = math.Max(longest, l)
	}
	if shortest <= 0 || math.IsInf(shortest, 1) {
		return 0
	}
	return longest / shortest
}

// quality scores each triangle as 4*sqrt(3)*area / sum of squared edge
// lengths: 1 for equilateral, 0 for degenerate
func quality(m *Mesh) (avg, worst float64) {
	if len(m.Faces) == 0 {
		return 0, 0
	}
	worst = math.Inf(1)
	var sum float64
	for _, f := range m.Faces {
		a, b, c := m.corners(f)
		sq := b.sub(a).dot(b.sub(a)) + c.sub(b).dot(c.sub(b)) + a.sub(c).dot(a.sub(c))
		if sq < 1e-9 {
			sq = 1
		}
		q := 4 * math.Sqrt(3) * m.area(f) / sq
		sum += q
		worst = math.Min(worst, q)
	}
	return sum / float64(len(m.Faces)), worst
}

func boolMetric(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
