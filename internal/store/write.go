package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteRun records a standalone run and its decisions in one transaction.
// An empty run.ID is filled from the store's ID generator. Returns the ID.
func (s *Store) WriteRun(ctx context.Context, run Run) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin: %w", err)
	}
	defer tx.Rollback()

	id, err := s.insertRun(ctx, tx, run, s.now())
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return id, nil
}

// WriteSuiteRun records a suite run together with the runs of its cases in
// one transaction. Every run is linked to the suite run, whatever its
// SuiteRunID said. Empty IDs are generated. Returns the suite run ID.
func (s *Store) WriteSuiteRun(ctx context.Context, sr SuiteRun, runs []Run) (string, error) {
	if sr.ID == "" {
		sr.ID = s.ids.Generate()
	}
	created := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write suite run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO suite_runs
		(id, suite, path, template_hash, pass_count, fail_count, error_count, pending_count, total_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sr.ID,
		sr.Suite,
		sr.Path,
		sr.TemplateHash,
		sr.Pass,
		sr.Fail,
		sr.Error,
		sr.Pending,
		sr.Total,
		created,
	)
	if err != nil {
		return "", fmt.Errorf("write suite run: %w", err)
	}

	for i, run := range runs {
		run.SuiteRunID = sr.ID
		if _, err := s.insertRun(ctx, tx, run, created); err != nil {
			return "", fmt.Errorf("write suite run: case %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write suite run: commit: %w", err)
	}
	return sr.ID, nil
}

// insertRun writes one run row and its decision rows.
func (s *Store) insertRun(ctx context.Context, tx *sql.Tx, run Run, created int64) (string, error) {
	if run.ID == "" {
		run.ID = s.ids.Generate()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, suite_run_id, case_name, template_hash, input_hash, input, success,
		 action, description, error, status, expected_action, expected_description,
		 output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		nullString(run.SuiteRunID),
		run.Case,
		run.TemplateHash,
		run.InputHash,
		run.Input,
		run.Success,
		run.Action,
		run.Description,
		run.Error,
		run.Status,
		run.ExpectedAction,
		run.ExpectedDescription,
		run.Output,
		created,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for seq, d := range run.Decisions {
		fields, err := marshalDecision(d)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO decisions (run_id, seq, action, description, fields)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, seq, d.Action, d.Description, fields)
		if err != nil {
			return "", fmt.Errorf("insert decision %d: %w", seq, err)
		}
	}
	return run.ID, nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
