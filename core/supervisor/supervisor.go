// Package supervisor implements the closed-loop mesh repair controller:
// parse once, mesh once, then validate and repair until the mesh passes or
// the iteration budget runs out.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"mesh-orchestrator/core/capability"
	"mesh-orchestrator/core/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy holds the controller's tunables
type Policy struct {
	MaxIterations   int
	InitialFineness float64
	RemeshFineness  float64
}

// DefaultPolicy returns the stock policy: five repair iterations, initial
// mesh at fineness 0.5, remesh at 0.8.
func DefaultPolicy() Policy {
	return Policy{
		MaxIterations:   5,
		InitialFineness: 0.5,
		RemeshFineness:  0.8,
	}
}

// Validate checks the policy bounds
func (p Policy) Validate() error {
	if p.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be >= 1, got %d", p.MaxIterations)
	}
	if p.InitialFineness < 0 || p.InitialFineness > 1 {
		return fmt.Errorf("initial fineness %v outside [0,1]", p.InitialFineness)
	}
	if p.RemeshFineness < 0 || p.RemeshFineness > 1 {
		return fmt.Errorf("remesh fineness %v outside [0,1]", p.RemeshFineness)
	}
	return nil
}

// Observer is notified of state transitions and final results. Observers
// run synchronously on the controller's goroutine.
type Observer interface {
	OnTransition(ctx context.Context, event models.RunEvent)
	OnResult(ctx context.Context, runID string, result models.RunResult)
}

// Supervisor drives one provider set through the repair loop. A Supervisor
// holds no per-run state and may be shared by runs that use separate work
// dirs.
type Supervisor struct {
	providers capability.Set
	policy    Policy
	logger    *zap.Logger
	observers []Observer
	now       func() time.Time
}

// New creates a supervisor
func New(providers capability.Set, policy Policy, logger *zap.Logger, observers ...Observer) (*Supervisor, error) {
	if err := providers.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		providers: providers,
		policy:    policy,
		logger:    logger,
		observers: observers,
		now:       time.Now,
	}, nil
}

// Policy returns the policy in effect
func (s *Supervisor) Policy() Policy { return s.policy }

// Run processes one geometry file. workDir must exist and be writable; the
// caller is responsible for isolating it from concurrent runs.
//
// Tool and quality failures are reported in the RunResult. The error is
// non-nil only for contract violations, which indicate a programming error.
func (s *Supervisor) Run(ctx context.Context, inputPath, workDir string) (models.RunResult, error) {
	return s.RunWithID(ctx, uuid.NewString(), inputPath, workDir)
}

// RunWithID is Run with a caller-chosen run ID for event correlation
func (s *Supervisor) RunWithID(ctx context.Context, runID, inputPath, workDir string) (models.RunResult, error) {
	r := &run{
		Supervisor: s,
		ctx:        ctx,
		id:         runID,
		inputPath:  inputPath,
		layout:     NewLayout(workDir, inputPath),
		state:      models.StateInit,
		logger:     s.logger.With(zap.String("run_id", runID), zap.String("model", filepath.Base(inputPath))),
	}

	r.logger.Info("Processing model", zap.String("input", inputPath), zap.String("work_dir", workDir))

	result, err := r.execute()
	if err != nil {
		r.logger.Error("Contract violation", zap.Error(err), zap.String("state", string(r.state)))
		return models.RunResult{}, err
	}

	for _, o := range s.observers {
		o.OnResult(ctx, runID, result)
	}
	return result, nil
}

// run is the state of a single controller invocation
type run struct {
	*Supervisor
	ctx       context.Context
	id        string
	inputPath string
	layout    *Layout
	logger    *zap.Logger

	state      models.RunState
	iterations int
	geometry   models.Artifact // Kept for the whole run; remeshing restarts from it
	current    models.Artifact // Latest mesh
	validated  models.Artifact // Mesh the last report describes
	report     *models.ValidationReport
}

func (r *run) execute() (models.RunResult, error) {
	source, err := models.NewArtifact(models.KindGeometrySource, r.inputPath, map[string]interface{}{
		models.MetaFormat: strings.TrimPrefix(strings.ToLower(filepath.Ext(r.inputPath)), "."),
	})
	if err != nil {
		return models.RunResult{}, err
	}

	// Init -> Parsed
	parser := r.providers.Parser
	outcome, err := capability.Invoke(parser, source, func() (models.Outcome, error) {
		return parser.Parse(r.ctx, source, capability.ParseOptions{Output: r.layout.Geometry(parser.Extension())})
	})
	if err != nil {
		return models.RunResult{}, err
	}
	if !outcome.OK() {
		return r.fail(parser.Name(), outcome)
	}
	r.geometry = outcome.Artifact
	if err := r.transition(models.StateParsed, "parsed", map[string]interface{}{
		"geometry": r.geometry.Location(),
		"log":      outcome.Log,
	}); err != nil {
		return models.RunResult{}, err
	}

	// Parsed -> InitialMesh
	outcome, err = r.mesh(r.policy.InitialFineness, "mesh")
	if err != nil {
		return models.RunResult{}, err
	}
	if !outcome.OK() {
		return r.fail(r.providers.Mesher.Name(), outcome)
	}
	r.current = outcome.Artifact
	if err := r.transition(models.StateInitialMesh, "initial_mesh", map[string]interface{}{
		"mesh": r.current.Location(),
		"log":  outcome.Log,
	}); err != nil {
		return models.RunResult{}, err
	}

	for r.iterations < r.policy.MaxIterations {
		r.iterations++
		if err := r.transition(models.StateValidating, "validate", map[string]interface{}{
			"mesh": r.current.Location(),
		}); err != nil {
			return models.RunResult{}, err
		}

		report, outcome, err := r.validate()
		if err != nil {
			return models.RunResult{}, err
		}
		if !outcome.OK() {
			return r.fail(r.providers.Validator.Name(), outcome)
		}
		r.report = &report
		r.validated = r.current

		if report.Passed {
			if err := r.transition(models.StateSucceeded, "validation_passed", nil); err != nil {
				return models.RunResult{}, err
			}
			r.logger.Info("Mesh validated",
				zap.Int("iteration", r.iterations),
				zap.String("mesh", r.current.Location()))
			return r.result(models.RunSuccess, "", r.current), nil
		}

		strategy := SelectStrategy(report.Failures)
		r.logger.Info("Validation failed",
			zap.Int("iteration", r.iterations),
			zap.Any("failures", report.Failures),
			zap.String("strategy", string(strategy.Kind)))

		outcome, provider, err := r.apply(strategy)
		if err != nil {
			return models.RunResult{}, err
		}
		if !outcome.OK() {
			return r.fail(provider, outcome)
		}
		r.current = outcome.Artifact
	}

	if err := r.transition(models.StateFailed, "max_iterations_reached", map[string]interface{}{
		"mesh": r.current.Location(),
	}); err != nil {
		return models.RunResult{}, err
	}
	r.logger.Warn("Iteration budget exhausted", zap.Int("iterations", r.iterations))
	return r.result(models.RunFailure, "", r.validated), nil
}

// apply carries out strategy on the current mesh or, for remeshing, on the
// parsed geometry
func (r *run) apply(strategy Strategy) (models.Outcome, string, error) {
	meta := map[string]interface{}{"strategy": string(strategy.Kind)}

	if !strategy.UsesOptimizer() {
		meta["fineness"] = r.policy.RemeshFineness
		if err := r.transition(models.StateRemeshing, "remesh", meta); err != nil {
			return models.Outcome{}, "", err
		}
		outcome, err := r.mesh(r.policy.RemeshFineness, "remesh")
		return outcome, r.providers.Mesher.Name(), err
	}

	if err := r.transition(models.StateRepairing, "optimize", meta); err != nil {
		return models.Outcome{}, "", err
	}
	optimizer := r.providers.Optimizer
	mesh := r.current
	opts := capability.OptimizeOptions{
		Output: r.layout.NextMesh(string(strategy.Task)),
		Task:   strategy.Task,
	}
	outcome, err := capability.Invoke(optimizer, mesh, func() (models.Outcome, error) {
		return optimizer.Optimize(r.ctx, mesh, opts)
	})
	return outcome, optimizer.Name(), err
}

func (r *run) mesh(fineness float64, op string) (models.Outcome, error) {
	mesher := r.providers.Mesher
	geometry := r.geometry
	opts := capability.MeshOptions{
		Output:   r.layout.NextMesh(op),
		Fineness: fineness,
	}
	return capability.Invoke(mesher, geometry, func() (models.Outcome, error) {
		return mesher.Mesh(r.ctx, geometry, opts)
	})
}

func (r *run) validate() (models.ValidationReport, models.Outcome, error) {
	validator := r.providers.Validator
	mesh := r.current
	outcome, err := capability.Invoke(validator, mesh, func() (models.Outcome, error) {
		return validator.Validate(r.ctx, mesh)
	})
	if err != nil || !outcome.OK() {
		return models.ValidationReport{}, outcome, err
	}
	report, err := models.ReportFromArtifact(outcome.Artifact)
	if err != nil {
		return models.ValidationReport{}, outcome, err
	}
	return report, outcome, nil
}

// fail ends the run on a tool failure, keeping the provider's diagnostic
// verbatim
func (r *run) fail(provider string, outcome models.Outcome) (models.RunResult, error) {
	if err := r.transition(models.StateFailed, "provider_failed", map[string]interface{}{
		"provider": provider,
		"error":    outcome.Error,
	}); err != nil {
		return models.RunResult{}, err
	}
	r.logger.Error("Provider failed",
		zap.String("provider", provider),
		zap.Int("iteration", r.iterations),
		zap.String("error", outcome.Error))
	return r.result(models.RunFailure, outcome.Error, r.current), nil
}

func (r *run) result(outcome models.RunOutcome, errText string, mesh models.Artifact) models.RunResult {
	result := models.RunResult{
		Model:          filepath.Base(r.inputPath),
		Outcome:        outcome,
		IterationsUsed: r.iterations,
		LastReport:     r.report,
		Error:          errText,
	}
	if !mesh.IsZero() {
		result.FinalMeshLocation = mesh.Location()
	}
	return result
}

func (r *run) transition(to models.RunState, reason string, meta map[string]interface{}) error {
	from := r.state
	if !models.CanTransition(from, to) {
		return models.Violationf("illegal controller transition %s -> %s", from, to)
	}
	r.state = to

	r.logger.Debug("State transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
		zap.Int("iteration", r.iterations))

	event := models.RunEvent{
		RunID:     r.id,
		At:        r.now().UTC(),
		FromState: &from,
		ToState:   to,
		Reason:    reason,
		Iteration: r.iterations,
		MetaJSON:  meta,
	}
	for _, o := range r.observers {
		o.OnTransition(r.ctx, event)
	}
	return nil
}
