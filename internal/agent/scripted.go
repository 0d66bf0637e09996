package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/caucus-ai/caucus/internal/types"
)

// ScriptedTeam produces deterministic output from a role template. It
// backs tests and offline demo runs, and doubles as a specialist so
// auction stages work without an API key.
type ScriptedTeam struct {
	id         string
	role       string
	confidence float64
	cost       float64
}

// NewScriptedTeam creates a scripted team. Confidence and cost feed the
// team's auction bids.
func NewScriptedTeam(id, role string, confidence, cost float64) *ScriptedTeam {
	return &ScriptedTeam{id: id, role: role, confidence: confidence, cost: cost}
}

// ID returns the team identity.
func (t *ScriptedTeam) ID() string { return t.id }

// Invoke produces a deterministic response for the objective. Quality
// varies with the objective so repeated runs exercise synthesis without
// randomness.
func (t *ScriptedTeam) Invoke(_ context.Context, objective string, teamCtx map[string]string) (*types.TeamResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %s", t.id, t.role, objective)
	if focus := teamCtx["focus"]; focus != "" {
		fmt.Fprintf(&sb, " (focus: %s)", focus)
	}
	return &types.TeamResult{
		Text:    sb.String(),
		Quality: t.quality(objective),
		Cost:    t.cost,
	}, nil
}

// quality derives a stable per-objective quality in [0.5, 0.95] so
// different teams rank consistently for the same objective.
func (t *ScriptedTeam) quality(objective string) float64 {
	h := fnv.New32a()
	h.Write([]byte(t.id))
	h.Write([]byte(objective))
	return 0.5 + float64(h.Sum32()%46)/100.0
}

// Bid offers the team's configured confidence and cost for any task.
func (t *ScriptedTeam) Bid(_ context.Context, _ types.Task) (*types.Bid, error) {
	if t.confidence <= 0 {
		return nil, nil // declines to bid
	}
	return &types.Bid{
		SpecialistID: t.id,
		Confidence:   t.confidence,
		DeclaredCost: t.cost,
	}, nil
}

// DefaultRoster registers the scripted teams the default pipeline names.
func DefaultRoster(registry *Registry) error {
	teams := []*ScriptedTeam{
		NewScriptedTeam("competitive-a", "first take", 0, 1.0),
		NewScriptedTeam("competitive-b", "second take", 0, 1.0),
		NewScriptedTeam("proponent", "argues for the approach", 0, 1.2),
		NewScriptedTeam("adversary", "attacks the approach", 0, 1.2),
		NewScriptedTeam("innovator", "proposes the unconventional", 0, 1.5),
		NewScriptedTeam("disruptor", "challenges the framing", 0, 1.5),
		NewScriptedTeam("security", "reviews for vulnerabilities", 0.8, 2.0),
		NewScriptedTeam("quality", "reviews for defects", 0.7, 1.5),
	}
	for _, team := range teams {
		if err := registry.RegisterTeam(team); err != nil {
			return err
		}
	}
	return nil
}
