package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/repository"
)

var _ repository.AnalysisJobRepository = (*analysisJobRepo)(nil)

// Fixed-width UTC timestamps keep text ordering equal to time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const jobColumns = `id, status, input_path, mode, question, remote_id, locator, result, last_error, created_at, updated_at`

type analysisJobRepo struct {
	db *sql.DB
}

func NewAnalysisJobRepo(db *sql.DB) *analysisJobRepo {
	return &analysisJobRepo{db: db}
}

func (r *analysisJobRepo) Save(ctx context.Context, job *model.AnalysisJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	var result sql.NullString
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now()
	}

	const q = `
INSERT INTO analysis_jobs (` + jobColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  status = excluded.status,
  remote_id = excluded.remote_id,
  locator = excluded.locator,
  result = excluded.result,
  last_error = excluded.last_error,
  updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, q,
		job.ID, string(job.Status), job.InputPath, string(job.Mode), job.Question,
		job.RemoteID, job.Locator, result, job.LastError,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	return err
}

func (r *analysisJobRepo) FindByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// FetchAndMarkProcessing claims the oldest queued job in a single statement,
// so concurrent workers never receive the same record.
func (r *analysisJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	const q = `
UPDATE analysis_jobs
   SET status = ?, updated_at = ?
 WHERE id = (SELECT id FROM analysis_jobs WHERE status = ? ORDER BY created_at, id LIMIT 1)
RETURNING ` + jobColumns

	row := r.db.QueryRowContext(ctx, q,
		string(model.AnalysisStatusProcessing), formatTime(time.Now()), string(model.AnalysisStatusQueued))
	return scanJob(row)
}

func (r *analysisJobRepo) RequeueStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`,
		string(model.AnalysisStatusQueued), formatTime(time.Now()),
		string(model.AnalysisStatusProcessing), formatTime(olderThan))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *analysisJobRepo) ListRecent(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AnalysisJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*model.AnalysisJob, error) {
	var (
		j                  model.AnalysisJob
		status, mode       string
		result             sql.NullString
		createdAt, updated string
	)
	err := s.Scan(&j.ID, &status, &j.InputPath, &mode, &j.Question, &j.RemoteID, &j.Locator,
		&result, &j.LastError, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Status = model.AnalysisStatus(status)
	j.Mode = model.AnalysisMode(mode)
	if result.Valid && result.String != "" {
		var res model.AnalysisResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("%w: result: %v", domain.ErrReadDatabaseRow, err)
		}
		j.Result = &res
	}
	if j.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", domain.ErrReadDatabaseRow, err)
	}
	if j.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("%w: updated_at: %v", domain.ErrReadDatabaseRow, err)
	}
	return &j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
