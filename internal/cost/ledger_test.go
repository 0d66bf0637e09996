package cost

import (
	"testing"

	"github.com/caucus-ai/caucus/internal/events"
)

func TestLedgerAccumulates(t *testing.T) {
	ledger := NewLedger(nil)

	ledger.Record("run-1", "security", 2.5)
	ledger.Record("run-1/step-1", "quality", 1.5)
	ledger.Record("run-2", "security", 1.0)

	if got := ledger.Total(); got != 5.0 {
		t.Errorf("expected total 5.0, got %.2f", got)
	}
	if got := ledger.RunTotal("run-1"); got != 4.0 {
		t.Errorf("expected run-1 total 4.0 including sub-runs, got %.2f", got)
	}
	if got := ledger.RunTotal("run-1/step-1/v2"); got != 4.0 {
		t.Errorf("expected sub-run lookup to resolve to mission root, got %.2f", got)
	}

	summary := ledger.Summary()
	if summary["security"] != 3.5 || summary["quality"] != 1.5 {
		t.Errorf("unexpected per-team summary: %v", summary)
	}
}

func TestLedgerIgnoresZeroCost(t *testing.T) {
	ledger := NewLedger(nil)
	ledger.Record("run-1", "security", 0)
	if got := ledger.Total(); got != 0 {
		t.Errorf("expected zero total, got %.2f", got)
	}
}

func TestLedgerUnlimitedNeverExceeds(t *testing.T) {
	ledger := NewLedger(nil)
	ledger.Record("run-1", "security", 1e9)
	if ledger.Exceeded() {
		t.Error("unlimited ledger should never report exceeded")
	}
	if got := ledger.Status(); got != StatusHealthy {
		t.Errorf("expected HEALTHY, got %v", got)
	}
}

func TestLedgerThresholds(t *testing.T) {
	ledger := NewLedger(&Config{Limit: 10})

	ledger.Record("run-1", "security", 5)
	if got := ledger.Status(); got != StatusHealthy {
		t.Errorf("expected HEALTHY at half budget, got %v", got)
	}

	ledger.Record("run-1", "security", 3.5)
	if got := ledger.Status(); got != StatusWarning {
		t.Errorf("expected WARNING at 85%%, got %v", got)
	}

	ledger.Record("run-1", "security", 2)
	if got := ledger.Status(); got != StatusExceeded {
		t.Errorf("expected EXCEEDED past limit, got %v", got)
	}
	if !ledger.Exceeded() {
		t.Error("Exceeded should report true past the limit")
	}
}

func TestLedgerAnnouncesThresholdsOnce(t *testing.T) {
	bus := events.NewBus(&events.Config{})
	ledger := NewLedger(&Config{Limit: 10, Bus: bus})

	ledger.Record("run-1", "security", 9) // crosses warning
	ledger.Record("run-1", "security", 0.5)
	ledger.Record("run-1", "security", 1) // crosses exceeded
	ledger.Record("run-1", "security", 1)

	warnings := bus.Replay(events.EventFilter{Types: []events.EventType{events.EventTypeBudgetWarning}})
	if len(warnings) != 1 {
		t.Errorf("expected exactly 1 budget_warning event, got %d", len(warnings))
	}
	exceeded := bus.Replay(events.EventFilter{Types: []events.EventType{events.EventTypeBudgetExceeded}})
	if len(exceeded) != 1 {
		t.Errorf("expected exactly 1 budget_exceeded event, got %d", len(exceeded))
	}
}
