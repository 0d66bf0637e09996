package pruning

import (
	"context"
	"testing"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/pathmemory"
	"github.com/caucus-ai/caucus/internal/types"
)

func newTestEvaluator(t *testing.T, cfg *Config) (*Evaluator, *events.Bus, pathmemory.Store) {
	t.Helper()
	store := pathmemory.NewMemoryStore(&pathmemory.MemoryConfig{SweepInterval: -1})
	t.Cleanup(func() { _ = store.Close() })
	bus := events.NewBus(nil)
	eval, err := NewEvaluator(&EvaluatorConfig{Config: cfg, Store: store, Bus: bus})
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	return eval, bus, store
}

func output(team, text string) *types.TeamOutput {
	return &types.TeamOutput{TeamID: team, Text: text, Quality: 0.7, Status: types.StatusOK}
}

func TestNoveltyMonotonicForRepeatedInvocations(t *testing.T) {
	eval, _, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	prev := 2.0
	for i := 0; i < 4; i++ {
		novelty, err := eval.Evaluate(ctx, "run-1", "adversary-1", "review auth", nil, output("adversary-1", "same finding every time"))
		if err != nil {
			t.Fatalf("Evaluate %d failed: %v", i, err)
		}
		if novelty > prev {
			t.Errorf("Novelty increased on repetition %d: %.2f -> %.2f", i, prev, novelty)
		}
		prev = novelty
	}
	if prev != 0.0 {
		t.Errorf("Expected novelty to reach 0.0 for identical repetitions, got %.2f", prev)
	}
}

func TestPruneSuggestedBySecondRepetition(t *testing.T) {
	eval, bus, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	var suggested []events.Event
	bus.Subscribe("run-1", func(e events.Event) {
		if e.Type == events.EventTypePruneSuggested {
			suggested = append(suggested, e)
		}
	})

	// Original invocation plus two repetitions.
	for i := 0; i < 3; i++ {
		if _, err := eval.Evaluate(ctx, "run-1", "adversary-1", "review auth", nil, output("adversary-1", "same finding")); err != nil {
			t.Fatalf("Evaluate %d failed: %v", i, err)
		}
	}

	if len(suggested) == 0 {
		t.Fatal("Expected prune_suggested by the second repetition")
	}
	if !eval.Active("adversary-1", "review auth", nil) {
		t.Error("Expected active prune suggestion after event fired")
	}
	// Same team, different objective: no suggestion applies.
	if eval.Active("adversary-1", "design caching layer", nil) {
		t.Error("Suggestion must be scoped to the objective")
	}
}

func TestNovelOutputResetsStreak(t *testing.T) {
	eval, bus, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	var suggested int
	bus.Subscribe("run-1", func(e events.Event) {
		if e.Type == events.EventTypePruneSuggested {
			suggested++
		}
	})

	texts := []string{
		"finding one about token expiry in the refresh path",
		"finding one about token expiry in the refresh path",
		"completely different angle: replay protection via nonce windows and clock skew handling",
		"completely different angle: replay protection via nonce windows and clock skew handling",
	}
	for i, text := range texts {
		// Vary the objective context so the signature differs per text but
		// not per repetition.
		if _, err := eval.Evaluate(ctx, "run-1", "adversary-1", "review auth", map[string]string{"angle": text[:10]}, output("adversary-1", text)); err != nil {
			t.Fatalf("Evaluate %d failed: %v", i, err)
		}
	}

	if suggested != 0 {
		t.Errorf("Alternating novelty should not trigger pruning, got %d suggestions", suggested)
	}
}

func TestClearRemovesSuggestion(t *testing.T) {
	eval, bus, _ := newTestEvaluator(t, nil)
	ctx := context.Background()

	var cleared int
	bus.Subscribe("run-1", func(e events.Event) {
		if e.Type == events.EventTypePruneCleared {
			cleared++
		}
	})

	for i := 0; i < 3; i++ {
		if _, err := eval.Evaluate(ctx, "run-1", "team-x", "objective", nil, output("team-x", "same")); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}
	if !eval.Active("team-x", "objective", nil) {
		t.Fatal("Expected active suggestion")
	}

	if err := eval.Clear("run-1", "team-x", "objective", nil); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if eval.Active("team-x", "objective", nil) {
		t.Error("Expected suggestion gone after Clear")
	}
	if cleared != 1 {
		t.Errorf("Expected one prune_cleared event, got %d", cleared)
	}
}

func TestSuggestionExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SuggestionTTL = 15 * time.Millisecond
	eval, _, _ := newTestEvaluator(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := eval.Evaluate(ctx, "run-1", "team-x", "objective", nil, output("team-x", "same")); err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
	}
	if !eval.Active("team-x", "objective", nil) {
		t.Fatal("Expected active suggestion")
	}
	time.Sleep(25 * time.Millisecond)
	if eval.Active("team-x", "objective", nil) {
		t.Error("Expected suggestion to expire after TTL")
	}
}

func TestDurableSignatureCountsAcrossRestart(t *testing.T) {
	store := pathmemory.NewMemoryStore(&pathmemory.MemoryConfig{SweepInterval: -1})
	defer func() { _ = store.Close() }()
	bus := events.NewBus(nil)
	ctx := context.Background()

	sig := pathmemory.ComputeSignature("team-x", "objective", nil)
	if err := store.Record(ctx, pathmemory.Entry{Signature: sig, TeamID: "team-x", Outcome: pathmemory.OutcomeDeadEnd}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// A fresh evaluator (no in-process window) still sees the durable record.
	eval, err := NewEvaluator(&EvaluatorConfig{Store: store, Bus: bus})
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	novelty, err := eval.Evaluate(ctx, "run-1", "team-x", "objective", nil, output("team-x", "anything"))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if novelty != 0.0 {
		t.Errorf("Expected zero novelty for durably recorded signature, got %.2f", novelty)
	}
}

func TestTextSimilarity(t *testing.T) {
	if sim := textSimilarity("the auth flow leaks tokens", "the auth flow leaks tokens"); sim != 1.0 {
		t.Errorf("Identical texts should score 1.0, got %.2f", sim)
	}
	if sim := textSimilarity("alpha beta gamma", "delta epsilon zeta"); sim != 0.0 {
		t.Errorf("Disjoint texts should score 0.0, got %.2f", sim)
	}
	if sim := textSimilarity("", ""); sim != 1.0 {
		t.Errorf("Two empty texts should score 1.0, got %.2f", sim)
	}
}
