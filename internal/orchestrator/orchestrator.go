// Package orchestrator drives a fixed pipeline of pairing and solo
// stages over team runners and aggregates their outputs. Stage ordering
// is static; conditional branching lives one level up in the mission
// planner.
package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/caucus-ai/caucus/internal/auction"
	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/gate"
	"github.com/caucus-ai/caucus/internal/runner"
	"github.com/caucus-ai/caucus/internal/types"
)

// StageKind determines how a stage drives its teams.
type StageKind string

const (
	// StagePair runs two teams concurrently and joins them with a barrier
	StagePair StageKind = "pair"
	// StageSolo runs one team (or auctions among several)
	StageSolo StageKind = "solo"
	// StageBroadcast publishes the accumulated findings; it runs no teams
	StageBroadcast StageKind = "broadcast"
)

// StageConfig describes one pipeline stage.
type StageConfig struct {
	Name  string    `yaml:"name"`
	Kind  StageKind `yaml:"kind"`
	Teams []string  `yaml:"teams,omitempty"`

	// Gated runs the critic gate over the stage's combined output. A veto
	// marks the stage rejected; later stages still execute.
	Gated bool `yaml:"gated,omitempty"`

	// Auction selects one of several candidate teams by sealed bid
	// instead of running them all. Only meaningful for solo stages.
	Auction bool `yaml:"auction,omitempty"`
}

// DefaultStages returns the standard five-stage pipeline.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Name: "competitive_pair", Kind: StagePair, Teams: []string{"competitive-a", "competitive-b"}},
		{Name: "adversary_pair", Kind: StagePair, Teams: []string{"proponent", "adversary"}, Gated: true},
		{Name: "innovators_disruptors", Kind: StagePair, Teams: []string{"innovator", "disruptor"}},
		{Name: "security_quality", Kind: StageSolo, Teams: []string{"security", "quality"}, Gated: true, Auction: true},
		{Name: "broadcast_findings", Kind: StageBroadcast},
	}
}

// Config holds orchestrator dependencies.
type Config struct {
	Bus     *events.Bus           // Required
	Runner  *runner.Runner        // Required
	Gate    *gate.Gate            // Required when any stage is gated
	Router  *auction.Router       // Required when any stage auctions
	Critics []types.Critic        // Critics consulted by gated stages
	Teams   map[string]types.Team // Registry of teams by name
	Stages  []StageConfig         // Pipeline (default: DefaultStages())
}

// Orchestrator executes the stage pipeline for one objective.
type Orchestrator struct {
	bus     *events.Bus
	runner  *runner.Runner
	gate    *gate.Gate
	router  *auction.Router
	critics []types.Critic
	teams   map[string]types.Team
	stages  []StageConfig
}

// New creates a multi-team orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("event bus is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("team runner is required")
	}
	stages := cfg.Stages
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	for _, stage := range stages {
		if stage.Gated && cfg.Gate == nil {
			return nil, fmt.Errorf("stage %s is gated but no gate is configured", stage.Name)
		}
		if stage.Auction && cfg.Router == nil {
			return nil, fmt.Errorf("stage %s auctions but no router is configured", stage.Name)
		}
		for _, name := range stage.Teams {
			if _, ok := cfg.Teams[name]; !ok {
				return nil, fmt.Errorf("stage %s references unknown team %q", stage.Name, name)
			}
		}
	}
	return &Orchestrator{
		bus:     cfg.Bus,
		runner:  cfg.Runner,
		gate:    cfg.Gate,
		router:  cfg.Router,
		critics: cfg.Critics,
		teams:   cfg.Teams,
		stages:  stages,
	}, nil
}

// Result is the accumulated outcome of one pipeline execution.
type Result struct {
	RunID string `json:"run_id"`

	// TeamOutputs is append-only and keyed by stage name; each stage
	// writes only its own key.
	TeamOutputs map[string][]types.TeamOutput `json:"team_outputs"`

	// Gates holds the decision for each gated stage.
	Gates map[string]types.GateDecision `json:"gates,omitempty"`

	// StageStatus records how each stage ended.
	StageStatus map[string]types.StepStatus `json:"stage_status"`

	// Final is the synthesized result: the highest-quality usable output
	// from a non-rejected stage.
	Final string `json:"final,omitempty"`
}

// Execute drives the full pipeline for an objective. Stages run in
// order; a vetoed stage is marked rejected but the pipeline continues
// (termination is the mission planner's decision). Cancellation marks
// remaining stages cancelled and returns the partial result with
// ctx.Err().
func (o *Orchestrator) Execute(ctx context.Context, runID, objective string, missionCtx map[string]string) (*Result, error) {
	result := &Result{
		RunID:       runID,
		TeamOutputs: make(map[string][]types.TeamOutput),
		Gates:       make(map[string]types.GateDecision),
		StageStatus: make(map[string]types.StepStatus),
	}

	for _, stage := range o.stages {
		if ctx.Err() != nil {
			result.StageStatus[stage.Name] = types.StepCancelled
			continue
		}

		o.publish(events.NewEvent(runID, stage.Name, events.EventTypeStageStarted, events.SeverityInfo,
			fmt.Sprintf("stage %s started", stage.Name)))

		var outputs []types.TeamOutput
		switch stage.Kind {
		case StageBroadcast:
			o.broadcast(runID, stage.Name, result)
		case StageSolo:
			outputs = o.runSolo(ctx, runID, stage, objective, missionCtx)
		case StagePair:
			outputs = o.runConcurrent(ctx, runID, stage, objective, missionCtx)
		default:
			outputs = o.runConcurrent(ctx, runID, stage, objective, missionCtx)
		}
		result.TeamOutputs[stage.Name] = outputs

		status := types.StepCompleted
		if ctx.Err() != nil {
			status = types.StepCancelled
		} else if stage.Gated {
			decision := o.gate.Evaluate(ctx, runID, stage.Name, o.critics, types.Candidate{
				Kind:      types.CandidateOutput,
				Objective: objective,
				Content:   combineUsable(outputs),
			})
			result.Gates[stage.Name] = decision
			if decision.Veto {
				status = types.StepRejected
			}
		}
		result.StageStatus[stage.Name] = status

		o.publish(events.NewEvent(runID, stage.Name, events.EventTypeStageCompleted, events.SeverityInfo,
			fmt.Sprintf("stage %s finished with status %s", stage.Name, status)))
	}

	result.Final = o.synthesize(result)
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// runConcurrent executes every stage team concurrently and joins them
// before the stage is marked complete.
func (o *Orchestrator) runConcurrent(ctx context.Context, runID string, stage StageConfig, objective string, missionCtx map[string]string) []types.TeamOutput {
	outputs := make([]types.TeamOutput, len(stage.Teams))
	var g errgroup.Group
	for i, name := range stage.Teams {
		team := o.teams[name]
		g.Go(func() error {
			out := o.runner.Run(ctx, runID, stage.Name, team, objective, missionCtx)
			outputs[i] = *out
			return nil
		})
	}
	_ = g.Wait() // barrier; runner never returns errors
	return outputs
}

// runSolo picks one team, by auction when configured, and runs it.
func (o *Orchestrator) runSolo(ctx context.Context, runID string, stage StageConfig, objective string, missionCtx map[string]string) []types.TeamOutput {
	if len(stage.Teams) == 0 {
		return nil
	}
	selected := stage.Teams[0]
	if stage.Auction && len(stage.Teams) > 1 {
		var specialists []types.Specialist
		for _, name := range stage.Teams {
			if s, ok := o.teams[name].(types.Specialist); ok {
				specialists = append(specialists, s)
			}
		}
		winner, err := o.router.Route(ctx, runID, types.Task{Name: stage.Name, Objective: objective}, specialists)
		if err == nil {
			if _, ok := o.teams[winner.SpecialistID]; ok {
				selected = winner.SpecialistID
			}
		}
		// No bids with no default: fall through to the first configured
		// team rather than failing the stage.
	}
	out := o.runner.Run(ctx, runID, stage.Name, o.teams[selected], objective, missionCtx)
	return []types.TeamOutput{*out}
}

// broadcast publishes the accumulated findings so any subscriber on the
// run prefix sees the synthesis input.
func (o *Orchestrator) broadcast(runID, stageName string, result *Result) {
	summary := make(map[string]interface{}, len(result.TeamOutputs))
	for stage, outputs := range result.TeamOutputs {
		statuses := make([]string, len(outputs))
		for i, out := range outputs {
			statuses[i] = string(out.Status)
		}
		summary[stage] = statuses
	}
	evt := events.NewEvent(runID, stageName, events.EventTypeBroadcast, events.SeverityInfo,
		fmt.Sprintf("broadcasting findings from %d stages", len(result.TeamOutputs)))
	evt.Payload = summary
	o.publish(evt)
}

// synthesize picks the final text: the highest-quality usable output from
// a non-rejected stage, with stage name order as the deterministic
// tie-break.
func (o *Orchestrator) synthesize(result *Result) string {
	stages := make([]string, 0, len(result.TeamOutputs))
	for stage := range result.TeamOutputs {
		stages = append(stages, stage)
	}
	sort.Strings(stages)

	var best types.TeamOutput
	found := false
	for _, stage := range stages {
		if result.StageStatus[stage] == types.StepRejected {
			continue
		}
		for _, out := range result.TeamOutputs[stage] {
			if out.Usable() && (!found || out.Quality > best.Quality) {
				best = out
				found = true
			}
		}
	}
	if !found {
		return ""
	}
	return best.Text
}

func (o *Orchestrator) publish(evt events.Event) {
	_ = o.bus.Publish(evt)
}

func combineUsable(outputs []types.TeamOutput) string {
	var combined string
	for _, out := range outputs {
		if out.Usable() {
			if combined != "" {
				combined += "\n\n"
			}
			combined += out.Text
		}
	}
	return combined
}
