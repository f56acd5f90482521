package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/repository"
)

var _ repository.AnalysisJobRepository = (*analysisJobRepo)(nil)

const jobColumns = `id, status, input_path, mode, question, remote_id, locator, result, last_error, created_at, updated_at`

type analysisJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewAnalysisJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *analysisJobRepo {
	if tm == nil {
		tm = NewTxManager(pool)
	}
	return &analysisJobRepo{pool: pool, tm: tm}
}

func (r *analysisJobRepo) Save(ctx context.Context, job *model.AnalysisJob) error {
	return r.save(ctx, nil, job)
}

func (r *analysisJobRepo) save(ctx context.Context, tx repository.Tx, job *model.AnalysisJob) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	var result []byte
	if job.Result != nil {
		b, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = b
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = time.Now()
	}

	const q = `
INSERT INTO analysis_jobs (` + jobColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  remote_id = EXCLUDED.remote_id,
  locator = EXCLUDED.locator,
  result = EXCLUDED.result,
  last_error = EXCLUDED.last_error,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Status), job.InputPath, string(job.Mode), job.Question,
		job.RemoteID, job.Locator, result, job.LastError, job.CreatedAt, job.UpdatedAt)
	return mapPgError(err)
}

func (r *analysisJobRepo) FindByID(ctx context.Context, id string) (*model.AnalysisJob, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	row, err := pickRow(ctx, r.pool, nil, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// FetchAndMarkProcessing uses SKIP LOCKED so concurrent workers claim distinct rows.
func (r *analysisJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE status = 'queued'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		fetched.MarkProcessing()
		if err := r.save(ctx, tx, fetched); err != nil {
			return err
		}
		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *analysisJobRepo) RequeueStale(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := execSQL(ctx, r.pool, nil, `
UPDATE analysis_jobs
   SET status = 'queued', updated_at = NOW()
 WHERE status = 'processing' AND updated_at < $1;`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *analysisJobRepo) ListRecent(ctx context.Context, limit int) ([]*model.AnalysisJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM analysis_jobs ORDER BY created_at DESC LIMIT $1;`, limit)
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

func scanJob(row pgx.Row) (*model.AnalysisJob, error) {
	var (
		j            model.AnalysisJob
		status, mode string
		result       []byte
	)
	err := row.Scan(&j.ID, &status, &j.InputPath, &mode, &j.Question, &j.RemoteID, &j.Locator,
		&result, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Status = model.AnalysisStatus(status)
	j.Mode = model.AnalysisMode(mode)
	if len(result) > 0 {
		var res model.AnalysisResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		j.Result = &res
	}
	return &j, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}
