package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/caucus-ai/caucus/internal/events"
	"github.com/caucus-ai/caucus/internal/pathmemory"
	"github.com/caucus-ai/caucus/internal/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "caucus.db"))
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEventTranscriptRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first := events.NewEvent("run-1", "step-1", events.EventTypeStepStarted, events.SeverityInfo, "started")
	second := events.NewEvent("run-1/audit", "", events.EventTypeGateEvaluated, events.SeverityInfo, "gate")
	second.Payload = map[string]interface{}{"score": 0.7}
	other := events.NewEvent("run-2", "", events.EventTypeStepStarted, events.SeverityInfo, "other run")

	for _, evt := range []events.Event{first, second, other} {
		if err := s.Append(evt); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := s.Events(ctx, events.EventFilter{RunPrefix: "run-1"})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events under run-1, got %d", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Error("Expected append order preserved")
	}
	if got[1].Payload["score"] != 0.7 {
		t.Errorf("Expected payload round-trip, got %v", got[1].Payload)
	}
}

func TestEventFilterByType(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if err := s.Append(events.NewEvent("run-1", "", events.EventTypeStepStarted, events.SeverityInfo, "a")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Append(events.NewEvent("run-1", "", events.EventTypeGateVetoed, events.SeverityWarning, "b")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := s.Events(ctx, events.EventFilter{
		RunPrefix: "run-1",
		Types:     []events.EventType{events.EventTypeGateVetoed},
	})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(got) != 1 || got[0].Type != events.EventTypeGateVetoed {
		t.Errorf("Expected only the veto event, got %v", got)
	}
}

func TestPathStoreRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	store := NewPathStore(s, 0)
	ctx := context.Background()

	entry := pathmemory.Entry{
		Signature:  pathmemory.ComputeSignature("team-a", "probe the cache", nil),
		TeamID:     "team-a",
		Outcome:    pathmemory.OutcomeDeadEnd,
		RecordedAt: time.Now(),
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Lookup(ctx, entry.Signature)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got == nil || got.Outcome != pathmemory.OutcomeDeadEnd {
		t.Fatalf("Expected dead_end entry, got %+v", got)
	}

	negative, err := store.NegativeLookup(ctx, entry.Signature)
	if err != nil {
		t.Fatalf("NegativeLookup failed: %v", err)
	}
	if !negative {
		t.Error("Expected negative lookup hit for dead end")
	}

	missing, err := store.Lookup(ctx, "no-such-signature")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown signature, got %+v", missing)
	}
}

func TestPathStoreNegativeLookupIgnoresPruned(t *testing.T) {
	s := newTestStorage(t)
	store := NewPathStore(s, 0)
	ctx := context.Background()

	entry := pathmemory.Entry{
		Signature:  pathmemory.ComputeSignature("team-a", "objective", nil),
		TeamID:     "team-a",
		Outcome:    pathmemory.OutcomePruned,
		RecordedAt: time.Now(),
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	negative, err := store.NegativeLookup(ctx, entry.Signature)
	if err != nil {
		t.Fatalf("NegativeLookup failed: %v", err)
	}
	if negative {
		t.Error("Pruned outcome must not register as a negative path")
	}
}

func TestPathStoreExpiryAndSweep(t *testing.T) {
	s := newTestStorage(t)
	store := NewPathStore(s, 50*time.Millisecond)
	ctx := context.Background()

	entry := pathmemory.Entry{
		Signature:  pathmemory.ComputeSignature("team-a", "stale path", nil),
		TeamID:     "team-a",
		Outcome:    pathmemory.OutcomeSuccess,
		RecordedAt: time.Now().Add(-time.Second),
	}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := store.Lookup(ctx, entry.Signature)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != nil {
		t.Error("Expected expired entry to be invisible")
	}

	dropped, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("Expected 1 swept entry, got %d", dropped)
	}
}

func TestPathStoreRecentByTeam(t *testing.T) {
	s := newTestStorage(t)
	store := NewPathStore(s, 0)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, input := range []string{"first", "second", "third"} {
		entry := pathmemory.Entry{
			Signature:  pathmemory.ComputeSignature("team-a", input, nil),
			TeamID:     "team-a",
			Outcome:    pathmemory.OutcomeSuccess,
			RecordedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recent, err := store.RecentByTeam(ctx, "team-a", 2)
	if err != nil {
		t.Fatalf("RecentByTeam failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(recent))
	}
	if recent[0].Signature != pathmemory.ComputeSignature("team-a", "third", nil) {
		t.Error("Expected most recent entry first")
	}
}

func TestResultRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	result := &types.DirectiveResult{
		RunID:       "run-1",
		Success:     true,
		FinalOutput: "done",
		Critique:    types.GateDecision{Accepted: true, WeightedScore: 0.8},
		CompletedAt: time.Now(),
	}
	if err := s.SaveResult(ctx, result); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	got, err := s.GetResult(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got == nil || !got.Success || got.FinalOutput != "done" {
		t.Fatalf("Unexpected result: %+v", got)
	}

	missing, err := s.GetResult(ctx, "run-unknown")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown run, got %+v", missing)
	}

	list, err := s.ListResults(ctx, 10)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(list) != 1 || list[0].RunID != "run-1" {
		t.Errorf("Unexpected result list: %+v", list)
	}
}
