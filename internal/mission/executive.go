package mission

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/gate"
	"github.com/caucus-ai/caucus/internal/orchestrator"
	"github.com/caucus-ai/caucus/internal/types"
)

// StepExecutor runs one mission step under its own run ID namespace.
// *orchestrator.Orchestrator satisfies it.
type StepExecutor interface {
	Execute(ctx context.Context, runID, objective string, missionCtx map[string]string) (*orchestrator.Result, error)
}

// SpawnFunc creates a step executor scoped to one child run ID. Each
// call yields a sub-orchestrator whose events, path memory writes, and
// logs are isolated under that run ID while still rolling up into the
// parent mission's execution graph.
type SpawnFunc func(runID string) (StepExecutor, error)

// DefaultStepCap bounds how often one step may execute in a mission,
// guaranteeing termination even when a condition function never routes
// to a terminal branch.
const DefaultStepCap = 25

// Config holds executive configuration.
type Config struct {
	Bus   *events.Bus // Required
	Spawn SpawnFunc   // Required: scoped sub-orchestrator factory

	// Gate and Constitutional drive the pre-execution plan veto. With no
	// constitutional critics the plan is never vetoed.
	Gate           *gate.Gate
	Constitutional []types.Critic

	Planner Planner // Default: StaticPlanner{}
	StepCap int     // Per-step iteration cap (default: DefaultStepCap)
}

// Executive is the mission planner: it generates a plan, applies the
// constitutional veto, and walks the step graph.
type Executive struct {
	bus            *events.Bus
	spawn          SpawnFunc
	gate           *gate.Gate
	constitutional []types.Critic
	planner        Planner
	stepCap        int
}

// New creates an executive.
func New(cfg *Config) (*Executive, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Spawn == nil {
		return nil, fmt.Errorf("spawn function is required")
	}
	if len(cfg.Constitutional) > 0 && cfg.Gate == nil {
		return nil, fmt.Errorf("constitutional critics require a gate")
	}
	planner := cfg.Planner
	if planner == nil {
		planner = StaticPlanner{}
	}
	stepCap := cfg.StepCap
	if stepCap <= 0 {
		stepCap = DefaultStepCap
	}
	return &Executive{
		bus:            cfg.Bus,
		spawn:          cfg.Spawn,
		gate:           cfg.Gate,
		constitutional: cfg.Constitutional,
		planner:        planner,
		stepCap:        stepCap,
	}, nil
}

// Run plans and executes a mission for a free-form goal. It always
// returns a DirectiveResult, never nil.
func (e *Executive) Run(ctx context.Context, runID, goal string, missionCtx map[string]string) *types.DirectiveResult {
	plan, err := e.planner.GeneratePlan(ctx, goal, missionCtx)
	if err != nil {
		return e.failed(runID, fmt.Errorf("failed to generate plan: %w", err))
	}
	e.publish(events.NewEvent(runID, "", events.EventTypeMissionPlanned, events.SeverityInfo,
		fmt.Sprintf("plan generated with %d steps", len(plan.Steps))))
	return e.Execute(ctx, runID, plan, missionCtx)
}

// Execute walks an already generated plan. The plan is treated as
// immutable; re-planning requires a new plan and a new call.
func (e *Executive) Execute(ctx context.Context, runID string, plan *types.MissionPlan, missionCtx map[string]string) *types.DirectiveResult {
	if err := plan.Validate(); err != nil {
		return e.failed(runID, err)
	}

	// Constitutional veto: the plan itself is judged before any step runs.
	if len(e.constitutional) > 0 {
		decision := e.gate.Evaluate(ctx, runID, "", e.constitutional, types.Candidate{
			Kind:      types.CandidatePlan,
			Objective: plan.Goal,
			Content:   Describe(plan),
		})
		if decision.Veto {
			e.publish(events.NewEvent(runID, "", events.EventTypePlanVetoed, events.SeverityWarning,
				"constitutional critic vetoed the plan; zero steps executed"))
			return &types.DirectiveResult{
				RunID:       runID,
				Success:     false,
				Critique:    decision,
				CompletedAt: time.Now(),
			}
		}
	}

	state := &types.MissionState{
		Goal:        plan.Goal,
		Context:     missionCtx,
		StepResults: make(map[string]*types.StepResult),
	}
	root := &types.ExecutionNode{Step: "mission", RunID: runID, Status: types.StepCompleted}
	visits := make(map[string]int)
	var critique types.GateDecision
	critique.Accepted = true
	var finalOutput string

	current := plan.Entry
	for current != "" {
		if ctx.Err() != nil {
			return e.cancelled(runID, root, finalOutput)
		}

		batch := independentBatch(plan, current)
		for _, step := range batch {
			visits[step.Name]++
			limit := step.MaxVisits
			if limit <= 0 {
				limit = e.stepCap
			}
			if visits[step.Name] > limit {
				root.Status = types.StepFailed
				result := e.failed(runID, &types.PlanningError{
					Step:   step.Name,
					Reason: fmt.Sprintf("iteration cap %d exceeded", limit),
				})
				result.ExecutionGraph = []*types.ExecutionNode{root}
				return result
			}
		}

		results := make([]*types.StepResult, len(batch))
		nodes := make([]*types.ExecutionNode, len(batch))
		g, stepCtx := errgroup.WithContext(ctx)
		for i, step := range batch {
			g.Go(func() error {
				results[i], nodes[i] = e.runStep(stepCtx, runID, step, visits[step.Name], missionCtx)
				return nil
			})
		}
		_ = g.Wait()

		for i, step := range batch {
			state.StepResults[step.Name] = results[i]
			state.LastStep = step.Name
			root.Children = append(root.Children, nodes[i])
			if results[i].Final != "" {
				finalOutput = results[i].Final
			}
			for _, stage := range sortedGateStages(results[i].Gates) {
				critique = results[i].Gates[stage]
			}
		}

		if ctx.Err() != nil {
			return e.cancelled(runID, root, finalOutput)
		}

		last := batch[len(batch)-1]
		if last.Kind == types.StepConditional {
			key := last.Condition(state)
			target, ok := last.Branches[key]
			if !ok {
				root.Status = types.StepFailed
				result := e.failed(runID, &types.PlanningError{
					Step:   last.Name,
					Reason: fmt.Sprintf("condition returned branch key %q with no matching branch", key),
				})
				result.ExecutionGraph = []*types.ExecutionNode{root}
				return result
			}
			current = target
		} else {
			current = last.Next
		}
	}

	result := &types.DirectiveResult{
		RunID:          runID,
		Success:        !critique.Veto,
		FinalOutput:    finalOutput,
		Critique:       critique,
		ExecutionGraph: []*types.ExecutionNode{root},
		CompletedAt:    time.Now(),
	}
	e.publish(events.NewEvent(runID, "", events.EventTypeMissionCompleted, events.SeverityInfo,
		fmt.Sprintf("mission completed, success=%t", result.Success)))
	return result
}

// independentBatch returns the maximal contiguous chain of sequential
// steps marked independent, starting at name. A step that is not
// independent yields a batch of one.
func independentBatch(plan *types.MissionPlan, name string) []*types.MissionStep {
	step := plan.Steps[name]
	batch := []*types.MissionStep{step}
	if step.Kind != types.StepSequential || !step.Independent {
		return batch
	}
	next := step.Next
	for next != "" {
		ns := plan.Steps[next]
		if ns.Kind != types.StepSequential || !ns.Independent {
			break
		}
		batch = append(batch, ns)
		next = ns.Next
	}
	return batch
}

// runStep spawns a scoped sub-orchestrator for one step and executes it.
// Pure routing nodes (conditional steps without an objective) skip the
// spawn entirely.
func (e *Executive) runStep(ctx context.Context, parentRunID string, step *types.MissionStep, visit int, missionCtx map[string]string) (*types.StepResult, *types.ExecutionNode) {
	childRunID := parentRunID + "/" + step.Name
	if visit > 1 {
		childRunID = fmt.Sprintf("%s/v%d", childRunID, visit)
	}
	node := &types.ExecutionNode{
		Step:        step.Name,
		RunID:       childRunID,
		ParentRunID: parentRunID,
		Visits:      visit,
	}
	stepResult := &types.StepResult{Step: step.Name, Visits: visit, Status: types.StepCompleted}

	if step.Objective == "" {
		node.Status = types.StepCompleted
		return stepResult, node
	}

	e.publish(events.NewEvent(childRunID, step.Name, events.EventTypeStepStarted, events.SeverityInfo,
		fmt.Sprintf("step %s started (visit %d)", step.Name, visit)))

	sub, err := e.spawn(childRunID)
	if err != nil {
		stepResult.Status = types.StepFailed
		node.Status = types.StepFailed
		e.publish(events.NewEvent(childRunID, step.Name, events.EventTypeError, events.SeverityError,
			fmt.Sprintf("failed to spawn sub-orchestrator: %v", err)))
		return stepResult, node
	}

	res, execErr := sub.Execute(ctx, childRunID, step.Objective, missionCtx)
	if res != nil {
		stepResult.Outputs = res.TeamOutputs
		stepResult.Gates = res.Gates
		stepResult.Final = res.Final
		for _, status := range res.StageStatus {
			if status == types.StepRejected {
				stepResult.Status = types.StepRejected
			}
		}
	}
	if execErr != nil {
		stepResult.Status = types.StepCancelled
	}
	node.Status = stepResult.Status

	e.publish(events.NewEvent(childRunID, step.Name, events.EventTypeStepCompleted, events.SeverityInfo,
		fmt.Sprintf("step %s finished with status %s", step.Name, stepResult.Status)))
	return stepResult, node
}

func (e *Executive) failed(runID string, err error) *types.DirectiveResult {
	e.publish(events.NewEvent(runID, "", events.EventTypeError, events.SeverityError, err.Error()))
	e.publish(events.NewEvent(runID, "", events.EventTypeMissionCompleted, events.SeverityWarning,
		"mission failed: "+err.Error()))
	return &types.DirectiveResult{
		RunID:       runID,
		Success:     false,
		Error:       err.Error(),
		Critique:    types.GateDecision{},
		CompletedAt: time.Now(),
	}
}

func (e *Executive) cancelled(runID string, root *types.ExecutionNode, finalOutput string) *types.DirectiveResult {
	root.Status = types.StepCancelled
	e.publish(events.NewEvent(runID, "", events.EventTypeMissionCancelled, events.SeverityWarning, "mission cancelled"))
	return &types.DirectiveResult{
		RunID:          runID,
		Success:        false,
		FinalOutput:    finalOutput,
		Error:          "mission cancelled",
		ExecutionGraph: []*types.ExecutionNode{root},
		CompletedAt:    time.Now(),
	}
}

func sortedGateStages(gates map[string]types.GateDecision) []string {
	if len(gates) == 0 {
		return nil
	}
	stages := make([]string, 0, len(gates))
	for stage := range gates {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	return stages
}

func (e *Executive) publish(evt events.Event) {
	_ = e.bus.Publish(evt)
}
