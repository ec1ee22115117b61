package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/powsim/internal/engine"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

const runColumns = `
	id, suite_run_id, case_name, template_hash, input_hash, input, success,
	action, description, error, status, expected_action, expected_description,
	output, created_at`

// ReadRun returns one run with its decisions.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}

	decisions, err := s.ReadDecisions(ctx, id)
	if err != nil {
		return Run{}, err
	}
	run.Decisions = decisions
	return run, nil
}

// ListRuns returns runs newest first, ordered by created_at DESC, id DESC.
// Decisions are not loaded; use ReadRun or ReadDecisions.
//
// Returns an empty slice (not nil) if no run matches.
func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var where []string
	var args []any
	if filter.SuiteRunID != "" {
		where = append(where, "suite_run_id = ?")
		args = append(args, filter.SuiteRunID)
	}
	if filter.TemplateHash != "" {
		where = append(where, "template_hash = ?")
		args = append(args, filter.TemplateHash)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadDecisions returns the decision log of a run in recording order.
func (s *Store) ReadDecisions(ctx context.Context, runID string) ([]engine.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fields FROM decisions
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	decisions := []engine.Decision{}
	for rows.Next() {
		var fields string
		if err := rows.Scan(&fields); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d, err := unmarshalDecision(fields)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return decisions, nil
}

// ReadSuiteRun returns one suite run.
func (s *Store) ReadSuiteRun(ctx context.Context, id string) (SuiteRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, suite, path, template_hash, pass_count, fail_count, error_count, pending_count, total_count, created_at
		FROM suite_runs WHERE id = ?
	`, id)
	sr, err := scanSuiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SuiteRun{}, fmt.Errorf("suite run %s: %w", id, ErrNotFound)
	}
	return sr, err
}

// ListSuiteRuns returns suite runs newest first. Zero limit means no limit.
func (s *Store) ListSuiteRuns(ctx context.Context, limit int) ([]SuiteRun, error) {
	query := `
		SELECT id, suite, path, template_hash, pass_count, fail_count, error_count, pending_count, total_count, created_at
		FROM suite_runs
		ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query suite runs: %w", err)
	}
	defer rows.Close()

	runs := []SuiteRun{}
	for rows.Next() {
		sr, err := scanSuiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suite runs: %w", err)
	}
	return runs, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run        Run
		suiteRunID sql.NullString
		action     sql.NullString
		desc       sql.NullString
		errText    sql.NullString
		expAction  sql.NullString
		expDesc    sql.NullString
		created    int64
	)
	err := row.Scan(
		&run.ID,
		&suiteRunID,
		&run.Case,
		&run.TemplateHash,
		&run.InputHash,
		&run.Input,
		&run.Success,
		&action,
		&desc,
		&errText,
		&run.Status,
		&expAction,
		&expDesc,
		&run.Output,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.SuiteRunID = suiteRunID.String
	run.Action = stringPtr(action)
	run.Description = stringPtr(desc)
	run.Error = stringPtr(errText)
	run.ExpectedAction = stringPtr(expAction)
	run.ExpectedDescription = stringPtr(expDesc)
	run.CreatedAt = fromNanos(created)
	return run, nil
}

func scanSuiteRun(row scanner) (SuiteRun, error) {
	var (
		sr      SuiteRun
		created int64
	)
	err := row.Scan(
		&sr.ID,
		&sr.Suite,
		&sr.Path,
		&sr.TemplateHash,
		&sr.Pass,
		&sr.Fail,
		&sr.Error,
		&sr.Pending,
		&sr.Total,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return SuiteRun{}, err
	}
	if err != nil {
		return SuiteRun{}, fmt.Errorf("scan suite run: %w", err)
	}
	sr.CreatedAt = fromNanos(created)
	return sr, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
