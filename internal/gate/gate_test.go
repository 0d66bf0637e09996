package gate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/types"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := New(nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func TestMergeEmptyVerdictSetAccepts(t *testing.T) {
	g := newGate(t)
	decision := g.Merge(nil)
	if !decision.Accepted || decision.Veto {
		t.Errorf("Empty verdict set should accept, got %+v", decision)
	}
}

func TestVetoOverridesFavorableScore(t *testing.T) {
	g := newGate(t)

	// The aggregate score alone would clear the acceptance threshold, but
	// the credible critical verdict must still block.
	verdicts := []types.CriticVerdict{
		{CriticID: "quality", Severity: types.SeverityWarn, Credibility: 0.6},
		{CriticID: "security", Severity: types.SeverityCritical, Credibility: 0.5},
	}
	decision := g.Merge(verdicts)
	if !decision.Veto {
		t.Error("Expected veto from credible critical verdict")
	}
	if decision.Accepted {
		t.Error("Vetoed decision must not be accepted")
	}
	score := (0.5*0.6 + 1.0*0.5) / (0.6 + 0.5)
	if math.Abs(decision.WeightedScore-score) > 1e-9 {
		t.Errorf("Expected weighted score %.4f, got %.4f", score, decision.WeightedScore)
	}
	if len(decision.Verdicts) != 2 {
		t.Errorf("Expected both verdicts retained for audit, got %d", len(decision.Verdicts))
	}
}

func TestLowCredibilityCriticalDoesNotVeto(t *testing.T) {
	g := newGate(t)
	verdicts := []types.CriticVerdict{
		{CriticID: "security", Severity: types.SeverityCritical, Credibility: 0.3},
		{CriticID: "quality", Severity: types.SeverityWarn, Credibility: 0.9},
	}
	decision := g.Merge(verdicts)
	if decision.Veto {
		t.Error("Critical verdict below the credibility floor must not veto")
	}
}

func TestUnstatedCredibilityUsesDefault(t *testing.T) {
	g := newGate(t)
	verdicts := []types.CriticVerdict{
		{CriticID: "security", Severity: types.SeverityCritical, Credibility: -1},
	}
	decision := g.Merge(verdicts)
	// Default credibility 0.5 is above the 0.4 veto floor.
	if !decision.Veto {
		t.Error("Expected veto using default credibility")
	}
}

func TestUnmappedSeverityUsesDefaultWeight(t *testing.T) {
	g := newGate(t)
	verdicts := []types.CriticVerdict{
		{CriticID: "x", Severity: "catastrophic", Credibility: 1.0},
	}
	decision := g.Merge(verdicts)
	if math.Abs(decision.WeightedScore-0.5) > 1e-9 {
		t.Errorf("Expected default severity weight 0.5, got %.4f", decision.WeightedScore)
	}
	if decision.Veto {
		t.Error("Unmapped severity is not critical; no veto")
	}
}

func TestAcceptanceThreshold(t *testing.T) {
	g := newGate(t)
	accept := g.Merge([]types.CriticVerdict{
		{CriticID: "a", Severity: types.SeverityWarn, Credibility: 0.8},
	})
	// warn weight 0.5 normalized by its own credibility = 0.5 = threshold.
	if !accept.Accepted {
		t.Errorf("Score at threshold should accept, got %+v", accept)
	}
	reject := g.Merge([]types.CriticVerdict{
		{CriticID: "a", Severity: types.SeverityInfo, Credibility: 0.8},
	})
	if reject.Accepted {
		t.Errorf("Info-only score should fall below threshold, got %+v", reject)
	}
}

// Property: any verdict set containing one critical verdict with
// credibility at or above the floor is never accepted, regardless of the
// other verdicts.
func TestVetoDominanceProperty(t *testing.T) {
	g := newGate(t)

	severities := gen.OneConstOf(types.SeverityInfo, types.SeverityWarn, types.SeverityCritical)
	verdictGen := gopter.CombineGens(severities, gen.Float64Range(0, 1)).Map(
		func(values []interface{}) types.CriticVerdict {
			return types.CriticVerdict{
				CriticID:    "gen",
				Severity:    values[0].(types.Severity),
				Credibility: values[1].(float64),
			}
		})

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("credible critical verdict always blocks", prop.ForAll(
		func(others []types.CriticVerdict, credibility float64) bool {
			verdicts := append([]types.CriticVerdict{}, others...)
			verdicts = append(verdicts, types.CriticVerdict{
				CriticID:    "blocker",
				Severity:    types.SeverityCritical,
				Credibility: credibility,
			})
			decision := g.Merge(verdicts)
			return decision.Veto && !decision.Accepted
		},
		gen.SliceOf(verdictGen),
		gen.Float64Range(0.4, 1.0),
	))

	properties.Property("merge is order independent", prop.ForAll(
		func(verdicts []types.CriticVerdict) bool {
			forward := g.Merge(verdicts)
			reversed := make([]types.CriticVerdict, len(verdicts))
			for i, v := range verdicts {
				reversed[len(verdicts)-1-i] = v
			}
			backward := g.Merge(reversed)
			return forward.Accepted == backward.Accepted &&
				forward.Veto == backward.Veto &&
				math.Abs(forward.WeightedScore-backward.WeightedScore) < 1e-9
		},
		gen.SliceOf(verdictGen),
	))

	properties.TestingRun(t)
}

type staticCritic struct {
	id      string
	verdict *types.CriticVerdict
	err     error
}

func (c *staticCritic) ID() string { return c.id }
func (c *staticCritic) Evaluate(context.Context, types.Candidate) (*types.CriticVerdict, error) {
	return c.verdict, c.err
}

func TestEvaluatePublishesDecisionAndSkipsFailedCritics(t *testing.T) {
	bus := events.NewBus(nil)
	g, err := New(&GateConfig{Bus: bus})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var gateEvents, errorEvents int
	bus.Subscribe("run-1", func(e events.Event) {
		switch e.Type {
		case events.EventTypeGateEvaluated, events.EventTypeGateVetoed:
			gateEvents++
		case events.EventTypeError:
			errorEvents++
		}
	})

	critics := []types.Critic{
		&staticCritic{id: "ok", verdict: &types.CriticVerdict{CriticID: "ok", Severity: types.SeverityWarn, Credibility: 0.8}},
		&staticCritic{id: "broken", err: errors.New("model unavailable")},
	}
	decision := g.Evaluate(context.Background(), "run-1", "step-1", critics, types.Candidate{Kind: types.CandidateOutput, Content: "x"})

	if len(decision.Verdicts) != 1 {
		t.Errorf("Expected failed critic to contribute no verdict, got %d", len(decision.Verdicts))
	}
	if gateEvents != 1 {
		t.Errorf("Expected one gate event, got %d", gateEvents)
	}
	if errorEvents != 1 {
		t.Errorf("Expected one error event for the broken critic, got %d", errorEvents)
	}
}
