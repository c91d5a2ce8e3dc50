package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"veritax/internal/worker"
	"veritax/pkg/domain"
	dErrors "veritax/pkg/domain-errors"
)

// PostgresRunStore persists run records in PostgreSQL. The worker result
// is stored as a JSONB document; runs are looked up by ID only.
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore wraps an open database handle.
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// EnsureSchema creates the validation_runs table if missing.
func (s *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS validation_runs (
			id UUID PRIMARY KEY,
			instance_path TEXT NOT NULL,
			profile TEXT NOT NULL,
			stage TEXT NOT NULL,
			status TEXT NOT NULL,
			result JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure validation_runs schema: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Create(ctx context.Context, run Run) error {
	result, err := encodeResult(run.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO validation_runs (id, instance_path, profile, stage, status, result, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID.String(), run.InstancePath, run.Profile, run.Stage, run.Status, result, run.CreatedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) Update(ctx context.Context, run Run) error {
	result, err := encodeResult(run.Result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE validation_runs
		SET stage = $2, status = $3, result = $4, completed_at = $5
		WHERE id = $1
	`, run.ID.String(), run.Stage, run.Status, result, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected == 0 {
		return dErrors.Newf(dErrors.CodeNotFound, "run %s not found", run.ID)
	}
	return nil
}

func (s *PostgresRunStore) Get(ctx context.Context, id domain.RunID) (Run, error) {
	var (
		run         Run
		rawID       string
		result      sql.NullString
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, instance_path, profile, stage, status, result, created_at, completed_at
		FROM validation_runs WHERE id = $1
	`, id.String()).Scan(&rawID, &run.InstancePath, &run.Profile, &run.Stage, &run.Status, &result, &run.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return Run{}, dErrors.Newf(dErrors.CodeNotFound, "run %s not found", id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("select run: %w", err)
	}
	run.ID, err = domain.ParseRunID(rawID)
	if err != nil {
		return Run{}, fmt.Errorf("stored run id invalid: %w", err)
	}
	if result.Valid {
		var r worker.Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return Run{}, fmt.Errorf("stored run result invalid: %w", err)
		}
		run.Result = &r
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		run.CompletedAt = &t
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}

func encodeResult(r *worker.Result) (any, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode run result: %w", err)
	}
	return string(raw), nil
}
