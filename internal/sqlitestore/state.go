package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"uploadqueue/internal/agent"
)

// LoadState reads the single agent_state row.
func (s *Store) LoadState(ctx context.Context) (agent.State, bool, error) {
	var (
		st      agent.State
		lastRun sql.NullString
		status  string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT last_run, last_run_status, last_error, total_runs, total_uploads, total_failures
FROM agent_state WHERE id = 1`).Scan(&lastRun, &status, &st.LastError, &st.TotalRuns, &st.TotalUploads, &st.TotalFailures)
	if errors.Is(err, sql.ErrNoRows) {
		return agent.DefaultState(), false, nil
	}
	if err != nil {
		return agent.DefaultState(), false, fmt.Errorf("load agent state: %w", err)
	}
	st.LastRunStatus = agent.RunStatus(status)
	if lastRun.Valid {
		t, err := parseTime(lastRun.String)
		if err != nil {
			return agent.DefaultState(), false, err
		}
		st.LastRun = &t
	}
	return st, true, nil
}

// SaveState replaces the agent_state row.
func (s *Store) SaveState(ctx context.Context, st agent.State) error {
	var lastRun sql.NullString
	if st.LastRun != nil {
		lastRun = sql.NullString{String: formatTime(*st.LastRun), Valid: true}
	}
	err := s.exec(ctx, `
INSERT INTO agent_state (id, last_run, last_run_status, last_error, total_runs, total_uploads, total_failures)
VALUES (1, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    last_run = excluded.last_run,
    last_run_status = excluded.last_run_status,
    last_error = excluded.last_error,
    total_runs = excluded.total_runs,
    total_uploads = excluded.total_uploads,
    total_failures = excluded.total_failures`,
		lastRun, string(st.LastRunStatus), st.LastError, st.TotalRuns, st.TotalUploads, st.TotalFailures,
	)
	if err != nil {
		return fmt.Errorf("save agent state: %w", err)
	}
	return nil
}
