package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// SaveSession upserts the session row and replaces its steps.
func (r *Repository) SaveSession(ctx context.Context, rec domain.SessionRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_sessions (session_id, user_query, status, final_answer,
		                            total_steps, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			status       = excluded.status,
			final_answer = excluded.final_answer,
			total_steps  = excluded.total_steps,
			updated_at   = excluded.updated_at`,
		string(rec.SessionID),
		rec.UserQuery,
		string(rec.Status),
		rec.FinalAnswer,
		rec.TotalSteps,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM agent_session_steps WHERE session_id = ?`, string(rec.SessionID)); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	for _, st := range rec.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO agent_session_steps (session_id, step_index, step_type, content)
			VALUES (?, ?, ?, ?)`,
			string(rec.SessionID), st.Index, string(st.Type), st.Content,
		)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", st.Index, err)
		}
	}

	return tx.Commit()
}

// GetSession returns a session with its steps in index order.
func (r *Repository) GetSession(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT session_id, user_query, status, final_answer, total_steps, created_at, updated_at
		FROM agent_sessions WHERE session_id = ?`, string(id))

	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	steps, err := r.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Steps = steps
	return &rec, nil
}

// ListSessions returns the most recent sessions (newest first), without steps.
func (r *Repository) ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, user_query, status, final_answer, total_steps, created_at, updated_at
		FROM agent_sessions
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []domain.SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) loadSteps(ctx context.Context, id domain.SessionID) ([]domain.StepRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT step_index, step_type, content
		FROM agent_session_steps WHERE session_id = ?
		ORDER BY step_index ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	out := []domain.StepRecord{}
	for rows.Next() {
		var st domain.StepRecord
		var kind string
		if err := rows.Scan(&st.Index, &kind, &st.Content); err != nil {
			return nil, err
		}
		st.Type = domain.StepKind(kind)
		out = append(out, st)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var id, status string
	err := s.Scan(&id, &rec.UserQuery, &status, &rec.FinalAnswer, &rec.TotalSteps, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.SessionID = domain.SessionID(id)
	rec.Status = domain.SessionStatus(status)
	return rec, nil
}
