package supervisor

import "mesh-orchestrator/core/models"

// StrategyKind names a remediation the controller can apply
type StrategyKind string

const (
	StrategyRepairWatertight       StrategyKind = "repair_watertight"
	StrategyOptimizeElementQuality StrategyKind = "optimize_element_quality"
	StrategyRemesh                 StrategyKind = "remesh"
)

// Strategy is the remediation chosen for one failed validation
type Strategy struct {
	Kind StrategyKind
	Task models.OptimizeTask // Set for optimizer strategies only
}

// UsesOptimizer reports whether the strategy is carried out by the optimizer
func (s Strategy) UsesOptimizer() bool {
	return s.Task != ""
}

// SelectStrategy picks a remediation from the failure set alone, taking the
// first match in priority order: not watertight, then bad aspect ratio.
// Anything else is remeshed finer from the parsed geometry.
func SelectStrategy(failures []models.Defect) Strategy {
	has := func(d models.Defect) bool {
		for _, f := range failures {
			if f == d {
				return true
			}
		}
		return false
	}

	switch {
	case has(models.DefectNotWatertight):
		return Strategy{Kind: StrategyRepairWatertight, Task: models.TaskRepairWatertight}
	case has(models.DefectBadAspectRatio):
		return Strategy{Kind: StrategyOptimizeElementQuality, Task: models.TaskOptimizeElementQuality}
	default:
		return Strategy{Kind: StrategyRemesh}
	}
}
