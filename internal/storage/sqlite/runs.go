package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/storage"
	"github.com/steveyegge/analyst/internal/types"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveRun stores summary, its records and evts in one transaction
func (s *RunStore) SaveRun(ctx context.Context, summary *types.RunSummary, evts []*events.Event) error {
	if summary == nil || summary.RunID == "" {
		return fmt.Errorf("run summary with an ID is required")
	}

	topics, err := json.Marshal(summary.Topics)
	if err != nil {
		return fmt.Errorf("failed to encode topics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Replacing cascades to the run's iterations and events
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, summary.RunID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, prompt, started_at, duration_ms, iterations, stop_reason, reason,
		                  verdict, topics, recoveries, steps, artifact_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		summary.RunID, summary.Prompt, summary.StartedAt.UTC().Format(timeLayout),
		summary.Duration.Milliseconds(), summary.Iterations, string(summary.Stop), summary.Reason,
		string(summary.Verdict), string(topics), summary.Recoveries,
		summary.StepsExecuted(), summary.StepsWithArtifacts(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, rec := range summary.Records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO iterations (run_id, idx, iteration, explanation, code, output, success,
			                        artifact_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			summary.RunID, rec.Index, rec.Iteration, rec.Explanation, rec.Code, rec.Output,
			rec.Succeeded, rec.ArtifactCount, rec.Timestamp.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert iteration %d: %w", rec.Index, err)
		}
	}

	for seq, e := range evts {
		var data sql.NullString
		if len(e.Data) > 0 {
			raw, err := json.Marshal(e.Data)
			if err != nil {
				return fmt.Errorf("failed to encode event data: %w", err)
			}
			data = sql.NullString{String: string(raw), Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_events (id, run_id, seq, type, iteration, severity, message, data, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, summary.RunID, seq, string(e.Type), e.Iteration, string(e.Severity), e.Message,
			data, e.Timestamp.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const runColumns = `id, prompt, started_at, duration_ms, iterations, stop_reason, reason, verdict, topics, recoveries`

func scanRun(row interface{ Scan(...any) error }) (*types.RunSummary, error) {
	var (
		summary    types.RunSummary
		startedAt  string
		durationMS int64
		stop       string
		verdict    string
		topics     string
	)
	err := row.Scan(&summary.RunID, &summary.Prompt, &startedAt, &durationMS, &summary.Iterations,
		&stop, &summary.Reason, &verdict, &topics, &summary.Recoveries)
	if err != nil {
		return nil, err
	}

	summary.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at %q: %w", startedAt, err)
	}
	summary.Duration = time.Duration(durationMS) * time.Millisecond
	summary.Stop = types.StopReason(stop)
	summary.Verdict = types.Verdict(verdict)
	if err := json.Unmarshal([]byte(topics), &summary.Topics); err != nil {
		return nil, fmt.Errorf("invalid topics for run %s: %w", summary.RunID, err)
	}
	return &summary, nil
}

// GetRun returns the run with its records
func (s *RunStore) GetRun(ctx context.Context, id string) (*types.RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	summary, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	summary.Records, err = s.getIterations(ctx, id)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *RunStore) getIterations(ctx context.Context, runID string) ([]types.IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, iteration, explanation, code, output, success, artifact_count, created_at
		FROM iterations
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []types.IterationRecord
	for rows.Next() {
		var rec types.IterationRecord
		var createdAt string
		if err := rows.Scan(&rec.Index, &rec.Iteration, &rec.Explanation, &rec.Code, &rec.Output,
			&rec.Succeeded, &rec.ArtifactCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		if rec.Timestamp, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating iteration rows: %w", err)
	}
	return records, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*types.RunSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// GetEvents returns the run's events in emission order
func (s *RunStore) GetEvents(ctx context.Context, runID string) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, iteration, severity, message, data, timestamp
		FROM run_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*events.Event
	for rows.Next() {
		e := &events.Event{RunID: runID}
		var (
			eventType, severity, ts string
			data                    sql.NullString
		)
		if err := rows.Scan(&e.ID, &eventType, &e.Iteration, &severity, &e.Message, &data, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = events.EventType(eventType)
		e.Severity = events.EventSeverity(severity)
		if e.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("invalid event timestamp %q: %w", ts, err)
		}
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				return nil, fmt.Errorf("invalid event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return out, nil
}
