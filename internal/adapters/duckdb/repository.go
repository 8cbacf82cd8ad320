package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/grabagent/internal/core/ports"
)

// Repository is the DuckDB-backed step log.
type Repository struct {
	db *sql.DB
}

// Ensure Repository implements the step log interfaces
var (
	_ ports.StepLogSink   = (*Repository)(nil)
	_ ports.SessionReader = (*Repository)(nil)
)

// NewRepository opens (or creates) the database at path. An empty path
// opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	r := &Repository{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_sessions (
			session_id   VARCHAR PRIMARY KEY,
			user_query   VARCHAR NOT NULL,
			status       VARCHAR NOT NULL,
			final_answer VARCHAR NOT NULL DEFAULT '',
			total_steps  INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMP NOT NULL,
			updated_at   TIMESTAMP NOT NULL
		)`,
		// no unique key: rows are replaced wholesale on every save
		`CREATE TABLE IF NOT EXISTS agent_session_steps (
			session_id VARCHAR NOT NULL,
			step_index INTEGER NOT NULL,
			step_type  VARCHAR NOT NULL,
			content    VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
