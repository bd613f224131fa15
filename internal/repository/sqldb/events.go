package sqldb

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/prefracta-audit/internal/audit"
)

const eventColumns = 10

// WriteEvents пишет пачку событий журнала одним INSERT.
func (s *Store) WriteEvents(ctx context.Context, events []audit.ProbeEvent) error {
	if len(events) == 0 {
		return nil
	}

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", eventColumns), ", ") + ")"
	placeholders := make([]string, 0, len(events))
	vals := make([]any, 0, len(events)*eventColumns)

	for _, e := range events {
		placeholders = append(placeholders, row)
		vals = append(vals,
			e.ID, e.TraceID, e.SessionID, e.CallerID, e.Step,
			e.Target, e.Status, e.DurationMs, e.Error, formatTime(e.Timestamp),
		)
	}

	query := "INSERT INTO probe_events (id, trace_id, session_id, caller_id, step, target, status, duration_ms, error, created_at) VALUES " +
		strings.Join(placeholders, ", ")
	if _, err := s.db.ExecContext(ctx, s.q(query), vals...); err != nil {
		return fmt.Errorf("sqldb: write %d events: %w", len(events), err)
	}
	return nil
}

// EventsFor: события прогона в порядке записи (диагностика и тесты).
func (s *Store) EventsFor(ctx context.Context, sessionID string) ([]audit.ProbeEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT id, trace_id, session_id, caller_id, step, target, status, duration_ms, error, created_at
		 FROM probe_events WHERE session_id = ? ORDER BY created_at, id`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: query events: %w", err)
	}
	defer rows.Close()

	out := make([]audit.ProbeEvent, 0)
	for rows.Next() {
		var (
			e     audit.ProbeEvent
			stamp string
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.SessionID, &e.CallerID, &e.Step,
			&e.Target, &e.Status, &e.DurationMs, &e.Error, &stamp); err != nil {
			return nil, fmt.Errorf("sqldb: scan event: %w", err)
		}
		if e.Timestamp, err = parseTime(stamp); err != nil {
			return nil, fmt.Errorf("sqldb: decode event time: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
