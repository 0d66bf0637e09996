package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/caucus-ai/caucus/internal/events"
)

// Append writes one event to the transcript. Storage satisfies
// events.Sink, so it can be handed to the bus directly.
func (s *Storage) Append(event events.Event) error {
	payloadJSON := "{}"
	if len(event.Payload) > 0 {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		payloadJSON = string(data)
	}

	query := `
		INSERT INTO events (id, run_id, step_id, parent_id, type, severity, message, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		event.ID,
		event.RunID,
		event.StepID,
		event.ParentID,
		string(event.Type),
		string(event.Severity),
		event.Message,
		payloadJSON,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event (type=%s, run=%s): %w", event.Type, event.RunID, err)
	}
	return nil
}

// Events retrieves transcript events matching the filter, in append
// order. The run prefix matches a whole subtree, the same way bus
// subscriptions do.
func (s *Storage) Events(ctx context.Context, filter events.EventFilter) ([]events.Event, error) {
	query := `
		SELECT id, run_id, step_id, parent_id, type, severity, message, payload, timestamp
		FROM events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.RunPrefix != "" {
		query += " AND (run_id = ? OR run_id LIKE ?)"
		args = append(args, filter.RunPrefix, filter.RunPrefix+"/%")
	}
	if len(filter.Types) == 1 {
		query += " AND type = ?"
		args = append(args, string(filter.Types[0]))
	}
	if !filter.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.Since)
	}

	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	result, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	// Multi-type and severity filters are applied in memory; the common
	// tail queries filter by run prefix and single type only.
	if len(filter.Types) > 1 || filter.Severity != "" {
		filtered := result[:0]
		for i := range result {
			if filter.Matches(&result[i]) {
				filtered = append(filtered, result[i])
			}
		}
		result = filtered
	}
	return result, nil
}

func scanEvents(rows *sql.Rows) ([]events.Event, error) {
	var result []events.Event
	for rows.Next() {
		var event events.Event
		var eventType, severity, payloadJSON string

		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.StepID,
			&event.ParentID,
			&eventType,
			&severity,
			&event.Message,
			&payloadJSON,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		event.Type = events.EventType(eventType)
		event.Severity = events.EventSeverity(severity)
		if payloadJSON != "" && payloadJSON != "{}" {
			event.Payload = make(map[string]interface{})
			if err := json.Unmarshal([]byte(payloadJSON), &event.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
			}
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return result, nil
}
