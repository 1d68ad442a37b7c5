package store

import (
	"context"
	"database/sql"
	"fmt"
)

// TriggerRow is one phase-trigger record. Run is "on_import", "after_job",
// or "manual"; AfterPhase is set only for after_job.
type TriggerRow struct {
	Phase      string
	Run        string
	AfterPhase string
}

// ReplaceTriggers swaps the full trigger table in one transaction. The
// daemon seeds this from file configuration at startup.
func (s *Store) ReplaceTriggers(ctx context.Context, triggers []TriggerRow) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trigger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM phase_triggers`); err != nil {
		return fmt.Errorf("clear triggers: %w", err)
	}
	for _, trigger := range triggers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO phase_triggers (phase, run, after_phase) VALUES (?, ?, ?)`,
			trigger.Phase, trigger.Run, nullableString(trigger.AfterPhase),
		); err != nil {
			return fmt.Errorf("insert trigger %q: %w", trigger.Phase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit triggers: %w", err)
	}
	return nil
}

// ListTriggers returns all trigger records ordered by phase name.
func (s *Store) ListTriggers(ctx context.Context) ([]TriggerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phase, run, after_phase FROM phase_triggers ORDER BY phase`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var triggers []TriggerRow
	for rows.Next() {
		var (
			trigger    TriggerRow
			afterPhase sql.NullString
		)
		if err := rows.Scan(&trigger.Phase, &trigger.Run, &afterPhase); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		trigger.AfterPhase = afterPhase.String
		triggers = append(triggers, trigger)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}
