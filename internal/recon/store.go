package recon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"facet/internal/config"
	"facet/internal/logging"
)

// Store persists job records in a SQLite database separate from the session
// store, so job churn never contends with image uploads.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenStore initializes or connects to the jobs database and applies the schema.
func OpenStore(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:     db,
		path:   dbPath,
		logger: logging.NewComponentLogger(logger, "recon"),
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) insert(ctx context.Context, job *Job) error {
	errsJSON, outputsJSON, err := encodeLists(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, session_id, quality, status, progress, stage, message,
			errors, outputs, estimate_minutes, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.SessionID, job.Quality, string(job.Status), job.Progress,
		job.Stage, job.Message, errsJSON, outputsJSON, job.EstimateMinutes,
		job.CreatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// update persists the current record. Status regressions are rejected here so
// a terminal job can never be pulled back to running by a stale writer.
func (s *Store) update(ctx context.Context, job *Job) error {
	errsJSON, outputsJSON, err := encodeLists(job)
	if err != nil {
		return err
	}
	current, err := s.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	if job.Status.rank() < current.Status.rank() {
		return fmt.Errorf("job %s: cannot move status %s back to %s", job.ID, current.Status, job.Status)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, progress = ?, stage = ?, message = ?,
			errors = ?, outputs = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, job.Stage, job.Message,
		errsJSON, outputsJSON,
		nullableTime(job.StartedAt), nullableTime(job.CompletedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// failInterrupted marks every non-terminal job failed with the given message
// and returns how many rows were swept. Called before workers start so jobs
// orphaned by a previous process never stay queued or running forever.
func (s *Store) failInterrupted(ctx context.Context, message string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, message = ?, completed_at = ?
		WHERE status IN (?, ?)`,
		string(StatusFailed), message,
		time.Now().UTC().Format(time.RFC3339Nano),
		string(StatusQueued), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("sweep interrupted jobs: %w", err)
	}
	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep interrupted jobs: %w", err)
	}
	return swept, nil
}

// delete removes a job row. Used when admission control rejects a job after
// its row was written.
func (s *Store) delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// Get returns a point-in-time snapshot of the job record.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, quality, status, progress, stage, message,
			errors, outputs, estimate_minutes, created_at, started_at, completed_at
		FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return job, err
}

// List returns all jobs, newest first.
func (s *Store) List(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, quality, status, progress, stage, message,
			errors, outputs, estimate_minutes, created_at, started_at, completed_at
		FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		job                    Job
		status                 string
		errsJSON, outputsJSON  string
		createdAt              string
		startedAt, completedAt sql.NullString
	)
	err := row.Scan(&job.ID, &job.SessionID, &job.Quality, &status, &job.Progress,
		&job.Stage, &job.Message, &errsJSON, &outputsJSON, &job.EstimateMinutes,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	if err := json.Unmarshal([]byte(errsJSON), &job.Errors); err != nil {
		return nil, fmt.Errorf("decode job errors: %w", err)
	}
	if err := json.Unmarshal([]byte(outputsJSON), &job.Outputs); err != nil {
		return nil, fmt.Errorf("decode job outputs: %w", err)
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("decode job created_at: %w", err)
	}
	if job.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, fmt.Errorf("decode job started_at: %w", err)
	}
	if job.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return nil, fmt.Errorf("decode job completed_at: %w", err)
	}
	return &job, nil
}

func encodeLists(job *Job) (errsJSON, outputsJSON string, err error) {
	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	outputs := job.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	encodedErrs, err := json.Marshal(errs)
	if err != nil {
		return "", "", fmt.Errorf("encode job errors: %w", err)
	}
	encodedOutputs, err := json.Marshal(outputs)
	if err != nil {
		return "", "", fmt.Errorf("encode job outputs: %w", err)
	}
	return string(encodedErrs), string(encodedOutputs), nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
