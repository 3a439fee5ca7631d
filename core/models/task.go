package models

// OptimizeTask selects what the optimizer does to a mesh. The set is closed.
type OptimizeTask string

const (
	TaskRepairWatertight       OptimizeTask = "repair_watertight"
	TaskOptimizeElementQuality OptimizeTask = "optimize_element_quality"
)

// Valid reports whether t is a known task
func (t OptimizeTask) Valid() bool {
	return t == TaskRepairWatertight || t == TaskOptimizeElementQuality
}
