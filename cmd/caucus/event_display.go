package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/caucus-ai/caucus/internal/events"
)

// displayEvent formats and prints one event in a consistent two-line
// format: a headline, then grayed metadata pulled from the payload.
func displayEvent(event events.Event) {
	emoji := eventEmoji(event)
	sev := severityColor(event.Severity)

	timestamp := event.Timestamp.Format("15:04:05")
	runID := color.New(color.FgGreen).Sprint(event.RunID)
	eventType := color.New(color.FgMagenta).Sprint(string(event.Type))

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji, timestamp, runID, eventType,
		sev.Sprint(truncateString(event.Message, 80)))

	metadata := eventMetadata(event)
	if metadata != "" {
		gray := color.New(color.FgHiBlack)
		fmt.Printf("  %s\n", gray.Sprint(metadata))
	}
}

func eventEmoji(event events.Event) string {
	switch event.Type {
	case events.EventTypeMissionSubmitted:
		return "📥"
	case events.EventTypeMissionPlanned:
		return "🗺️"
	case events.EventTypeMissionCompleted:
		return "🏁"
	case events.EventTypeMissionCancelled:
		return "🛑"
	case events.EventTypePlanVetoed, events.EventTypeGateVetoed:
		return "🚫"
	case events.EventTypeStepStarted, events.EventTypeStageStarted:
		return "🚀"
	case events.EventTypeStepCompleted, events.EventTypeStageCompleted:
		return "✅"
	case events.EventTypeTeamInvoked:
		return "🤖"
	case events.EventTypeTeamCompleted:
		return "🤝"
	case events.EventTypeTeamSkipped:
		return "⏭️"
	case events.EventTypeGateEvaluated:
		return "🛡️"
	case events.EventTypeAuctionResolved:
		return "🔨"
	case events.EventTypeAuctionNoBids:
		return "🤷"
	case events.EventTypePruneSuggested:
		return "✂️"
	case events.EventTypePruneCleared:
		return "🌱"
	case events.EventTypeBroadcast:
		return "📡"
	case events.EventTypeDegradedMode:
		return "⚠️"
	}
	switch event.Severity {
	case events.SeverityError:
		return "❌"
	case events.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

func severityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

// eventMetadata renders a few payload fields pipe-separated, keys
// sorted for stable output.
func eventMetadata(event events.Event) string {
	parts := make([]string, 0, len(event.Payload)+1)
	if event.StepID != "" {
		parts = append(parts, fmt.Sprintf("step=%s", event.StepID))
	}
	keys := make([]string, 0, len(event.Payload))
	for k := range event.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncateString(fmt.Sprint(event.Payload[k]), 40)))
	}
	if len(parts) > 5 {
		parts = parts[:5]
	}
	return strings.Join(parts, " | ")
}

func truncateString(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
