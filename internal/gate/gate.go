// Package gate merges critic verdicts into a single accept/veto decision.
// A single credible critical objection always blocks, no matter how many
// favorable verdicts accompany it.
package gate

import (
	"context"
	"fmt"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

// Config holds gate thresholds and severity weights. All of these vary
// across deployments; none are hard-coded elsewhere.
type Config struct {
	// SeverityWeights maps each severity to its contribution to the
	// weighted score
	SeverityWeights map[types.Severity]float64

	// DefaultSeverityWeight applies to severities missing from
	// SeverityWeights, rather than failing open or closed
	DefaultSeverityWeight float64

	// DefaultCredibility substitutes for verdicts that do not state a
	// credibility (default: 0.5)
	DefaultCredibility float64

	// VetoCredibilityFloor is the minimum credibility a critical verdict
	// needs to veto on its own (default: 0.4)
	VetoCredibilityFloor float64

	// AcceptanceThreshold is the weighted score at or above which a
	// non-vetoed candidate is accepted (default: 0.5)
	AcceptanceThreshold float64
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() *Config {
	return &Config{
		SeverityWeights: map[types.Severity]float64{
			types.SeverityInfo:     0.1,
			types.SeverityWarn:     0.5,
			types.SeverityCritical: 1.0,
		},
		DefaultSeverityWeight: 0.5,
		DefaultCredibility:    0.5,
		VetoCredibilityFloor:  0.4,
		AcceptanceThreshold:   0.5,
	}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.DefaultCredibility < 0 || c.DefaultCredibility > 1 {
		return fmt.Errorf("default credibility must be between 0.0 and 1.0 (got %.2f)", c.DefaultCredibility)
	}
	if c.VetoCredibilityFloor < 0 || c.VetoCredibilityFloor > 1 {
		return fmt.Errorf("veto credibility floor must be between 0.0 and 1.0 (got %.2f)", c.VetoCredibilityFloor)
	}
	if c.AcceptanceThreshold < 0 || c.AcceptanceThreshold > 1 {
		return fmt.Errorf("acceptance threshold must be between 0.0 and 1.0 (got %.2f)", c.AcceptanceThreshold)
	}
	return nil
}

// Gate merges critic verdicts and applies the veto rule.
type Gate struct {
	cfg *Config
	bus *events.Bus
}

// GateConfig holds gate dependencies.
type GateConfig struct {
	Config *Config     // Thresholds (default: DefaultConfig())
	Bus    *events.Bus // Optional: gate decisions are published when set
}

// New creates a gate.
func New(cfg *GateConfig) (*Gate, error) {
	thresholds := DefaultConfig()
	var bus *events.Bus
	if cfg != nil {
		if cfg.Config != nil {
			thresholds = cfg.Config
		}
		bus = cfg.Bus
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate config: %w", err)
	}
	return &Gate{cfg: thresholds, bus: bus}, nil
}

// Merge combines the verdicts into one GateDecision. Verdict order does
// not affect the outcome. All rationales are retained on the decision for
// audit.
func (g *Gate) Merge(verdicts []types.CriticVerdict) types.GateDecision {
	decision := types.GateDecision{Verdicts: verdicts}

	if len(verdicts) == 0 {
		// Nothing objected; an empty verdict set accepts.
		decision.Accepted = true
		return decision
	}

	var weightedSum, credibilitySum float64
	veto := false
	for _, v := range verdicts {
		credibility := v.Credibility
		if credibility < 0 {
			credibility = g.cfg.DefaultCredibility
		}
		weight, ok := g.cfg.SeverityWeights[v.Severity]
		if !ok {
			weight = g.cfg.DefaultSeverityWeight
		}
		weightedSum += weight * credibility
		credibilitySum += credibility

		if v.Severity == types.SeverityCritical && credibility >= g.cfg.VetoCredibilityFloor {
			veto = true
		}
	}
	if credibilitySum > 0 {
		decision.WeightedScore = weightedSum / credibilitySum
	}

	if veto {
		decision.Veto = true
		decision.Accepted = false
		return decision
	}
	decision.Accepted = decision.WeightedScore >= g.cfg.AcceptanceThreshold
	return decision
}

// Evaluate runs every critic against the candidate and merges their
// verdicts. A critic returning an error contributes no verdict; the
// failure is reported on the bus rather than blocking the decision.
func (g *Gate) Evaluate(ctx context.Context, runID, stepID string, critics []types.Critic, candidate types.Candidate) types.GateDecision {
	var verdicts []types.CriticVerdict
	for _, critic := range critics {
		verdict, err := critic.Evaluate(ctx, candidate)
		if err != nil {
			g.publish(events.NewEvent(runID, stepID, events.EventTypeError, events.SeverityWarning,
				fmt.Sprintf("critic %s failed: %v", critic.ID(), err)))
			continue
		}
		if verdict == nil {
			continue
		}
		verdicts = append(verdicts, *verdict)
	}

	decision := g.Merge(verdicts)
	g.publish(events.NewGateEvent(runID, stepID, decision.Accepted, decision.Veto, decision.WeightedScore,
		fmt.Sprintf("gate merged %d verdicts", len(verdicts))))
	return decision
}

func (g *Gate) publish(evt events.Event) {
	if g.bus == nil {
		return
	}
	_ = g.bus.Publish(evt)
}
