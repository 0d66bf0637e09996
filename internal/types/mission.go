package types

import (
	"fmt"
	"time"
)

// StepKind determines how the planner picks the next step after this one.
type StepKind string

const (
	// StepSequential advances to the step named by Next (or terminates)
	StepSequential StepKind = "sequential"
	// StepConditional evaluates Condition and follows the matching branch
	StepConditional StepKind = "conditional"
)

// ConditionFunc inspects accumulated mission state and returns a branch
// key. The returned key must exist in the step's Branches map; a missing
// key is a fatal planning error, never a silent no-op.
type ConditionFunc func(state *MissionState) string

// MissionStep is one node in a mission plan.
type MissionStep struct {
	Name      string
	Kind      StepKind
	Objective string

	// Next names the following step for sequential steps. Empty means the
	// mission terminates after this step.
	Next string

	// Condition and Branches drive conditional steps. A branch value of ""
	// terminates the mission.
	Condition ConditionFunc
	Branches  map[string]string

	// Independent marks the step safe to run concurrently with adjacent
	// independent steps.
	Independent bool

	// MaxVisits caps how often this step may execute in one mission,
	// bounding conditional loops. Zero means the planner default applies.
	MaxVisits int
}

// MissionPlan is a graph of steps owned by the mission planner for the
// lifetime of one mission. It is immutable once execution starts;
// re-planning creates a new plan.
type MissionPlan struct {
	Goal  string
	Entry string
	Steps map[string]*MissionStep
}

// Validate checks the plan's structural integrity: the entry exists, every
// edge targets a known step, and conditional steps carry both a condition
// function and a branches map.
func (p *MissionPlan) Validate() error {
	if p.Goal == "" {
		return &PlanningError{Reason: "plan has no goal"}
	}
	if len(p.Steps) == 0 {
		return &PlanningError{Reason: "plan has no steps"}
	}
	if _, ok := p.Steps[p.Entry]; !ok {
		return &PlanningError{Reason: fmt.Sprintf("entry step %q does not exist", p.Entry)}
	}
	for name, step := range p.Steps {
		if step.Name != name {
			return &PlanningError{Step: name, Reason: fmt.Sprintf("step name %q does not match its key", step.Name)}
		}
		switch step.Kind {
		case StepSequential:
			if step.Next != "" {
				if _, ok := p.Steps[step.Next]; !ok {
					return &PlanningError{Step: name, Reason: fmt.Sprintf("next step %q does not exist", step.Next)}
				}
			}
		case StepConditional:
			if step.Condition == nil {
				return &PlanningError{Step: name, Reason: "conditional step has no condition function"}
			}
			if len(step.Branches) == 0 {
				return &PlanningError{Step: name, Reason: "conditional step has no branches"}
			}
			for key, target := range step.Branches {
				if target == "" {
					continue // terminal branch
				}
				if _, ok := p.Steps[target]; !ok {
					return &PlanningError{Step: name, Reason: fmt.Sprintf("branch %q targets unknown step %q", key, target)}
				}
			}
		default:
			return &PlanningError{Step: name, Reason: fmt.Sprintf("unknown step kind %q", step.Kind)}
		}
	}
	return nil
}

// StepStatus records how one step execution ended.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	// StepRejected means the step's critic gate vetoed its output; later
	// steps still run (termination is the planner's call, not the
	// orchestrator's)
	StepRejected  StepStatus = "rejected"
	StepCancelled StepStatus = "cancelled"
	StepFailed    StepStatus = "failed"
)

// StepResult is the accumulated outcome of one step execution.
type StepResult struct {
	Step    string                  `json:"step"`
	Status  StepStatus              `json:"status"`
	Outputs map[string][]TeamOutput `json:"outputs,omitempty"` // keyed by stage name
	Gates   map[string]GateDecision `json:"gates,omitempty"`   // keyed by stage name
	Final   string                  `json:"final,omitempty"`
	Visits  int                     `json:"visits"`
}

// MissionState is the read view handed to condition functions. Condition
// functions must treat it as immutable.
type MissionState struct {
	Goal        string
	Context     map[string]string
	StepResults map[string]*StepResult
	LastStep    string
}

// ExecutionNode is one node of the mission's execution graph report. A
// parent owns its children; children carry only the weak ParentRunID for
// event correlation.
type ExecutionNode struct {
	Step        string           `json:"step"`
	RunID       string           `json:"run_id"`
	ParentRunID string           `json:"parent_run_id,omitempty"`
	Status      StepStatus       `json:"status"`
	Visits      int              `json:"visits"`
	Children    []*ExecutionNode `json:"children,omitempty"`
}

// DirectiveResult is the terminal artifact of one mission. A mission
// always produces one, even on veto or failure; callers never poll
// indefinitely without either a result or a cancelled/failed status.
type DirectiveResult struct {
	RunID          string           `json:"run_id"`
	Success        bool             `json:"success"`
	FinalOutput    string           `json:"final_output,omitempty"`
	Critique       GateDecision     `json:"critique"`
	ExecutionGraph []*ExecutionNode `json:"execution_graph,omitempty"`
	Error          string           `json:"error,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
}

// Directive is one queued unit of deferred work: a goal plus the context
// it should run under.
type Directive struct {
	ID         string            `json:"id"`
	Goal       string            `json:"goal"`
	Context    map[string]string `json:"context,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}
