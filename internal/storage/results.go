package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/caucus-ai/caucus/internal/types"
)

// SaveResult persists a completed mission result. The full result is
// stored as JSON alongside the columns the list queries need.
func (s *Storage) SaveResult(ctx context.Context, result *types.DirectiveResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	success := 0
	if result.Success {
		success = 1
	}
	query := `
		INSERT INTO results (run_id, success, final_output, error, result, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			success = excluded.success,
			final_output = excluded.final_output,
			error = excluded.error,
			result = excluded.result,
			completed_at = excluded.completed_at
	`
	_, err = s.db.ExecContext(ctx, query,
		result.RunID, success, result.FinalOutput, result.Error, string(data), result.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save result (run=%s): %w", result.RunID, err)
	}
	return nil
}

// GetResult retrieves a mission result by run ID, or nil if unknown.
func (s *Storage) GetResult(ctx context.Context, runID string) (*types.DirectiveResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM results WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	var result types.DirectiveResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// ListResults returns the most recent mission results, newest first.
func (s *Storage) ListResults(ctx context.Context, limit int) ([]*types.DirectiveResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT result FROM results ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []*types.DirectiveResult
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		var result types.DirectiveResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}
	return results, nil
}
