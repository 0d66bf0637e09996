package mission

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/gate"
	"github.com/caucus-ai/caucus/internal/orchestrator"
	"github.com/caucus-ai/caucus/internal/types"
)

// recordingExecutor records the run IDs and objectives it was asked to
// execute and returns a canned result.
type recordingExecutor struct {
	mu         sync.Mutex
	calls      []string
	objectives []string
	result     *orchestrator.Result
	err        error
	delay      time.Duration
}

func (r *recordingExecutor) Execute(ctx context.Context, runID, objective string, missionCtx map[string]string) (*orchestrator.Result, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.calls = append(r.calls, runID)
	r.objectives = append(r.objectives, objective)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.result != nil {
		return r.result, nil
	}
	return &orchestrator.Result{
		RunID:       runID,
		TeamOutputs: map[string][]types.TeamOutput{"stage": {{TeamID: "t", Text: "out: " + objective, Quality: 0.8, Status: types.StatusOK}}},
		StageStatus: map[string]types.StepStatus{"stage": types.StepCompleted},
		Final:       "out: " + objective,
	}, nil
}

func (r *recordingExecutor) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type plannedCritic struct {
	id      string
	verdict types.CriticVerdict
}

func (c plannedCritic) ID() string { return c.id }

func (c plannedCritic) Evaluate(_ context.Context, _ types.Candidate) (*types.CriticVerdict, error) {
	v := c.verdict
	v.CriticID = c.id
	return &v, nil
}

func newTestExecutive(t *testing.T, exec *recordingExecutor, critics []types.Critic) (*Executive, *events.Bus) {
	t.Helper()
	bus := events.NewBus(nil)
	cfg := &Config{
		Bus:   bus,
		Spawn: func(runID string) (StepExecutor, error) { return exec, nil },
	}
	if len(critics) > 0 {
		g, err := gate.New(&gate.GateConfig{Bus: bus})
		if err != nil {
			t.Fatalf("Failed to create gate: %v", err)
		}
		cfg.Gate = g
		cfg.Constitutional = critics
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create executive: %v", err)
	}
	return e, bus
}

func TestRunSequentialGoal(t *testing.T) {
	exec := &recordingExecutor{}
	e, bus := newTestExecutive(t, exec, nil)

	result := e.Run(context.Background(), "m-1", "probe the cache; fix the eviction bug", nil)
	if !result.Success {
		t.Fatalf("Expected success, got error %q", result.Error)
	}
	if got := exec.callCount(); got != 2 {
		t.Fatalf("Expected 2 step executions, got %d", got)
	}
	if exec.calls[0] != "m-1/step-1" || exec.calls[1] != "m-1/step-2" {
		t.Errorf("Unexpected child run IDs: %v", exec.calls)
	}
	if exec.objectives[0] != "probe the cache" || exec.objectives[1] != "fix the eviction bug" {
		t.Errorf("Unexpected objectives: %v", exec.objectives)
	}
	if result.FinalOutput != "out: fix the eviction bug" {
		t.Errorf("Expected final output from last step, got %q", result.FinalOutput)
	}
	if len(result.ExecutionGraph) != 1 || len(result.ExecutionGraph[0].Children) != 2 {
		t.Errorf("Expected execution graph with 2 step nodes")
	}

	all := bus.Replay(events.EventFilter{RunPrefix: "m-1"})
	var sawPlanned, sawCompleted bool
	for _, evt := range all {
		switch evt.Type {
		case events.EventTypeMissionPlanned:
			sawPlanned = true
		case events.EventTypeMissionCompleted:
			sawCompleted = true
		}
	}
	if !sawPlanned || !sawCompleted {
		t.Errorf("Expected mission_planned and mission_completed events, planned=%t completed=%t", sawPlanned, sawCompleted)
	}
}

func TestRunEmptyGoal(t *testing.T) {
	exec := &recordingExecutor{}
	e, _ := newTestExecutive(t, exec, nil)

	result := e.Run(context.Background(), "m-1", "  ", nil)
	if result.Success {
		t.Fatal("Expected failure for empty goal")
	}
	if result.Error == "" {
		t.Error("Expected a planning error on the result")
	}
	if exec.callCount() != 0 {
		t.Error("No steps should execute for an empty goal")
	}
}

func TestConstitutionalVetoBlocksAllSteps(t *testing.T) {
	exec := &recordingExecutor{}
	critic := plannedCritic{id: "constitution", verdict: types.CriticVerdict{Severity: types.SeverityCritical, Credibility: 0.9, Rationale: "forbidden goal"}}
	e, bus := newTestExecutive(t, exec, []types.Critic{critic})

	result := e.Run(context.Background(), "m-1", "delete all the backups", nil)
	if result.Success {
		t.Fatal("Expected vetoed mission to fail")
	}
	if !result.Critique.Veto {
		t.Error("Expected the veto decision on the result")
	}
	if exec.callCount() != 0 {
		t.Errorf("Expected zero steps executed after veto, got %d", exec.callCount())
	}

	vetoed := bus.Replay(events.EventFilter{RunPrefix: "m-1", Types: []events.EventType{events.EventTypePlanVetoed}})
	if len(vetoed) != 1 {
		t.Errorf("Expected 1 plan_vetoed event, got %d", len(vetoed))
	}
}

func TestConstitutionalAcceptProceeds(t *testing.T) {
	exec := &recordingExecutor{}
	critic := plannedCritic{id: "constitution", verdict: types.CriticVerdict{Severity: types.SeverityInfo, Credibility: 0.9}}
	e, _ := newTestExecutive(t, exec, []types.Critic{critic})

	result := e.Run(context.Background(), "m-1", "say hi", nil)
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if exec.callCount() != 1 {
		t.Errorf("Expected 1 step executed, got %d", exec.callCount())
	}
}

func TestConditionalBranching(t *testing.T) {
	exec := &recordingExecutor{}
	e, _ := newTestExecutive(t, exec, nil)

	plan := &types.MissionPlan{
		Goal:  "triage then route",
		Entry: "triage",
		Steps: map[string]*types.MissionStep{
			"triage": {Name: "triage", Kind: types.StepSequential, Objective: "triage the report", Next: "route"},
			"route": {
				Name: "route",
				Kind: types.StepConditional,
				Condition: func(state *types.MissionState) string {
					if strings.Contains(state.StepResults["triage"].Final, "report") {
						return "escalate"
					}
					return "done"
				},
				Branches: map[string]string{"escalate": "deep-dive", "done": ""},
			},
			"deep-dive": {Name: "deep-dive", Kind: types.StepSequential, Objective: "investigate the root cause"},
		},
	}

	result := e.Execute(context.Background(), "m-1", plan, nil)
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if got := exec.callCount(); got != 2 {
		t.Fatalf("Expected triage and deep-dive executions, got %d", got)
	}
	if exec.objectives[1] != "investigate the root cause" {
		t.Errorf("Expected the escalate branch, got %q", exec.objectives[1])
	}
}

func TestConditionalMissingBranchKeyFails(t *testing.T) {
	exec := &recordingExecutor{}
	e, _ := newTestExecutive(t, exec, nil)

	plan := &types.MissionPlan{
		Goal:  "route",
		Entry: "route",
		Steps: map[string]*types.MissionStep{
			"route": {
				Name:      "route",
				Kind:      types.StepConditional,
				Condition: func(*types.MissionState) string { return "surprise" },
				Branches:  map[string]string{"known": ""},
			},
		},
	}

	result := e.Execute(context.Background(), "m-1", plan, nil)
	if result.Success {
		t.Fatal("Expected failure for unmatched branch key")
	}
	if !strings.Contains(result.Error, "surprise") {
		t.Errorf("Expected error naming the branch key, got %q", result.Error)
	}
}

func TestLoopTerminatesAtIterationCap(t *testing.T) {
	exec := &recordingExecutor{}
	e, _ := newTestExecutive(t, exec, nil)

	// The condition always routes back, so only the cap stops the walk.
	plan := &types.MissionPlan{
		Goal:  "loop forever",
		Entry: "work",
		Steps: map[string]*types.MissionStep{
			"work": {Name: "work", Kind: types.StepSequential, Objective: "do the work", Next: "check", MaxVisits: 3},
			"check": {
				Name:      "check",
				Kind:      types.StepConditional,
				Condition: func(*types.MissionState) string { return "again" },
				Branches:  map[string]string{"again": "work"},
			},
		},
	}

	result := e.Execute(context.Background(), "m-1", plan, nil)
	if result.Success {
		t.Fatal("Expected looping mission to fail at the iteration cap")
	}
	if !strings.Contains(result.Error, "iteration cap") {
		t.Errorf("Expected iteration cap error, got %q", result.Error)
	}
	if got := exec.callCount(); got != 3 {
		t.Errorf("Expected exactly 3 executions of the capped step, got %d", got)
	}
}

func TestRevisitedStepsGetDistinctRunIDs(t *testing.T) {
	exec := &recordingExecutor{}
	e, _ := newTestExecutive(t, exec, nil)

	var visits atomic.Int32
	plan := &types.MissionPlan{
		Goal:  "retry once",
		Entry: "work",
		Steps: map[string]*types.MissionStep{
			"work": {Name: "work", Kind: types.StepSequential, Objective: "do the work", Next: "check"},
			"check": {
				Name: "check",
				Kind: types.StepConditional,
				Condition: func(*types.MissionState) string {
					if visits.Add(1) == 1 {
						return "again"
					}
					return "done"
				},
				Branches: map[string]string{"again": "work", "done": ""},
			},
		},
	}

	result := e.Execute(context.Background(), "m-1", plan, nil)
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if got := exec.callCount(); got != 2 {
		t.Fatalf("Expected 2 executions of the work step, got %d", got)
	}
	if exec.calls[0] != "m-1/work" {
		t.Errorf("Expected first visit under m-1/work, got %q", exec.calls[0])
	}
	if exec.calls[1] != "m-1/work/v2" {
		t.Errorf("Expected revisit under m-1/work/v2, got %q", exec.calls[1])
	}
}

func TestIndependentStepsAllExecute(t *testing.T) {
	exec := &recordingExecutor{delay: 50 * time.Millisecond}
	e, _ := newTestExecutive(t, exec, nil)

	plan := &types.MissionPlan{
		Goal:  "survey",
		Entry: "a",
		Steps: map[string]*types.MissionStep{
			"a":    {Name: "a", Kind: types.StepSequential, Objective: "survey logs", Independent: true, Next: "b"},
			"b":    {Name: "b", Kind: types.StepSequential, Objective: "survey metrics", Independent: true, Next: "join"},
			"join": {Name: "join", Kind: types.StepSequential, Objective: "merge the surveys"},
		},
	}

	start := time.Now()
	result := e.Execute(context.Background(), "m-1", plan, nil)
	elapsed := time.Since(start)
	if !result.Success {
		t.Fatalf("Expected success, got %q", result.Error)
	}
	if got := exec.callCount(); got != 3 {
		t.Fatalf("Expected 3 executions, got %d", got)
	}
	if len(result.ExecutionGraph[0].Children) != 3 {
		t.Errorf("Expected 3 step nodes, got %d", len(result.ExecutionGraph[0].Children))
	}
	// a and b run concurrently; only join adds a second sequential delay.
	if elapsed > 120*time.Millisecond {
		t.Errorf("Independent steps appear to have run sequentially (%v)", elapsed)
	}
}

func TestCancellationStopsTheWalk(t *testing.T) {
	exec := &recordingExecutor{delay: 50 * time.Millisecond}
	e, bus := newTestExecutive(t, exec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := e.Run(ctx, "m-1", "first; second; third", nil)
	if result.Success {
		t.Fatal("Expected cancelled mission to fail")
	}
	if exec.callCount() >= 3 {
		t.Errorf("Expected cancellation to skip trailing steps, got %d executions", exec.callCount())
	}

	cancelledEvents := bus.Replay(events.EventFilter{RunPrefix: "m-1", Types: []events.EventType{events.EventTypeMissionCancelled}})
	if len(cancelledEvents) != 1 {
		t.Errorf("Expected 1 mission_cancelled event, got %d", len(cancelledEvents))
	}
}

func TestRejectedStageSurfacesInStepResult(t *testing.T) {
	exec := &recordingExecutor{
		result: &orchestrator.Result{
			TeamOutputs: map[string][]types.TeamOutput{"stage": {{TeamID: "t", Text: "x", Quality: 0.5, Status: types.StatusOK}}},
			StageStatus: map[string]types.StepStatus{"stage": types.StepRejected},
			Gates:       map[string]types.GateDecision{"stage": {Veto: true}},
		},
	}
	e, _ := newTestExecutive(t, exec, nil)

	result := e.Run(context.Background(), "m-1", "risky work", nil)
	if result.Success {
		t.Fatal("Expected a final vetoed critique to fail the mission")
	}
	if !result.Critique.Veto {
		t.Error("Expected the last gate decision as the mission critique")
	}
}

func TestStaticPlannerSplitsClauses(t *testing.T) {
	plan, err := StaticPlanner{}.GeneratePlan(context.Background(), "one; two;; three", nil)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(plan.Steps))
	}
	if plan.Entry != "step-1" {
		t.Errorf("Expected entry step-1, got %q", plan.Entry)
	}
	if plan.Steps["step-1"].Next != "step-2" || plan.Steps["step-2"].Next != "step-4" {
		t.Errorf("Unexpected step chaining: %+v", plan.Steps)
	}
	if err := plan.Validate(); err != nil {
		t.Errorf("Generated plan failed validation: %v", err)
	}
}

func TestDescribeWalksThePlan(t *testing.T) {
	plan, err := StaticPlanner{}.GeneratePlan(context.Background(), "scan the repo; report findings", nil)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	text := Describe(plan)
	if !strings.Contains(text, "scan the repo") || !strings.Contains(text, "report findings") {
		t.Errorf("Describe missing step objectives:\n%s", text)
	}
	if !strings.Contains(text, "goal:") {
		t.Errorf("Describe missing goal line:\n%s", text)
	}
}
