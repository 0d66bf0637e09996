// Package mission turns a goal into a step graph, applies the
// constitutional veto, and walks the graph, spawning a scoped
// sub-orchestrator for each step.
package mission

import (
	"context"
	"fmt"
	"strings"

	"github.com/caucus-ai/caucus/internal/types"
)

// Planner converts a free-form goal into a mission plan. The engine
// ships a static planner; AI-backed planners implement the same
// interface.
type Planner interface {
	GeneratePlan(ctx context.Context, goal string, missionCtx map[string]string) (*types.MissionPlan, error)
}

// StaticPlanner produces a flat sequential plan: one exploration step per
// goal clause (split on ";"), in order. It is the default when no
// AI-backed planner is configured.
type StaticPlanner struct{}

// GeneratePlan builds the sequential plan.
func (StaticPlanner) GeneratePlan(_ context.Context, goal string, _ map[string]string) (*types.MissionPlan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, &types.PlanningError{Reason: "goal is empty"}
	}

	clauses := strings.Split(goal, ";")
	plan := &types.MissionPlan{Goal: goal, Steps: make(map[string]*types.MissionStep)}
	var prev *types.MissionStep
	for i, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		name := fmt.Sprintf("step-%d", i+1)
		step := &types.MissionStep{
			Name:      name,
			Kind:      types.StepSequential,
			Objective: clause,
		}
		plan.Steps[name] = step
		if prev == nil {
			plan.Entry = name
		} else {
			prev.Next = name
		}
		prev = step
	}
	if len(plan.Steps) == 0 {
		return nil, &types.PlanningError{Reason: "goal contains no executable clauses"}
	}
	return plan, nil
}

// Describe renders a plan as text for the constitutional critic: the goal
// followed by each step's objective and routing, in walk order.
func Describe(plan *types.MissionPlan) string {
	var b strings.Builder
	b.WriteString("goal: ")
	b.WriteString(plan.Goal)
	b.WriteString("\n")

	visited := make(map[string]bool)
	name := plan.Entry
	for name != "" && !visited[name] {
		visited[name] = true
		step := plan.Steps[name]
		if step == nil {
			break
		}
		fmt.Fprintf(&b, "step %s: %s", step.Name, step.Objective)
		if step.Kind == types.StepConditional {
			keys := make([]string, 0, len(step.Branches))
			for key := range step.Branches {
				keys = append(keys, key)
			}
			fmt.Fprintf(&b, " [conditional: %d branches]", len(keys))
			b.WriteString("\n")
			break // conditional routing is data dependent; stop the walk
		}
		b.WriteString("\n")
		name = step.Next
	}
	return b.String()
}
