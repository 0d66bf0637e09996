package types

import (
	"errors"
	"strings"
	"testing"
)

func TestTeamOutputValidate(t *testing.T) {
	valid := &TeamOutput{TeamID: "adversary-1", Text: "finding", Quality: 0.8, Cost: 0.1, Status: StatusOK}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid output, got %v", err)
	}

	tests := []struct {
		name   string
		output TeamOutput
	}{
		{"missing team id", TeamOutput{Quality: 0.5, Status: StatusOK}},
		{"quality too high", TeamOutput{TeamID: "t", Quality: 1.5, Status: StatusOK}},
		{"negative cost", TeamOutput{TeamID: "t", Quality: 0.5, Cost: -1, Status: StatusOK}},
		{"unknown status", TeamOutput{TeamID: "t", Quality: 0.5, Status: "exploded"}},
	}
	for _, tt := range tests {
		if err := tt.output.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestTeamOutputUsable(t *testing.T) {
	ok := &TeamOutput{TeamID: "t", Text: "x", Quality: 0.5, Status: StatusOK}
	if !ok.Usable() {
		t.Error("Expected ok output with text to be usable")
	}
	pruned := &TeamOutput{TeamID: "t", Text: "x", Status: StatusPruned}
	if pruned.Usable() {
		t.Error("Pruned output should not be usable")
	}
	empty := &TeamOutput{TeamID: "t", Status: StatusOK}
	if empty.Usable() {
		t.Error("Empty ok output should not be usable")
	}
}

func TestBidValidate(t *testing.T) {
	valid := &Bid{SpecialistID: "sec-review", Confidence: 0.9, DeclaredCost: 2.5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid bid, got %v", err)
	}
	bad := &Bid{SpecialistID: "sec-review", Confidence: 1.2}
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for confidence > 1.0")
	}
}

func TestMissionPlanValidate(t *testing.T) {
	plan := &MissionPlan{
		Goal:  "refactor auth",
		Entry: "explore",
		Steps: map[string]*MissionStep{
			"explore": {Name: "explore", Kind: StepSequential, Next: "decide"},
			"decide": {
				Name: "decide", Kind: StepConditional,
				Condition: func(*MissionState) string { return "done" },
				Branches:  map[string]string{"retry": "explore", "done": ""},
			},
		},
	}
	if err := plan.Validate(); err != nil {
		t.Fatalf("Expected valid plan, got %v", err)
	}
}

func TestMissionPlanValidateRejectsDanglingEdges(t *testing.T) {
	plan := &MissionPlan{
		Goal:  "g",
		Entry: "a",
		Steps: map[string]*MissionStep{
			"a": {Name: "a", Kind: StepSequential, Next: "missing"},
		},
	}
	err := plan.Validate()
	if err == nil {
		t.Fatal("Expected error for dangling next edge")
	}
	var perr *PlanningError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PlanningError, got %T", err)
	}
	if !strings.Contains(perr.Reason, "missing") {
		t.Errorf("Expected reason to name the missing step, got %q", perr.Reason)
	}
}

func TestMissionPlanValidateRejectsBareConditional(t *testing.T) {
	plan := &MissionPlan{
		Goal:  "g",
		Entry: "a",
		Steps: map[string]*MissionStep{
			"a": {Name: "a", Kind: StepConditional},
		},
	}
	if err := plan.Validate(); err == nil {
		t.Fatal("Expected error for conditional step without condition")
	}
}
