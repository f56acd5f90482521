package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"opsvision/internal/domain"
	"opsvision/internal/domain/model"
	"opsvision/internal/domain/ports/repository"
)

var _ repository.ManualRepository = (*manualRepo)(nil)

// manualRepo keeps vectors as JSON text; similarity is computed by the
// caller over ListChunks, so no vector extension is needed.
type manualRepo struct {
	db *sql.DB
}

func NewManualRepo(db *sql.DB) *manualRepo {
	return &manualRepo{db: db}
}

func (r *manualRepo) ReplaceSource(ctx context.Context, source string, chunks []*model.ManualChunk) error {
	if source == "" {
		return domain.ErrInvalidArgument
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manual_chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("clear %s: %w", source, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO manual_chunks (id, source, seq, body, metadata, embedding, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if c == nil {
			return fmt.Errorf("%w: nil chunk for %s", domain.ErrInvalidArgument, source)
		}
		if c.Source != source || len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d of %s", domain.ErrInvalidArgument, c.Seq, source)
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		vec, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Seq, c.Text, string(meta), string(vec),
			c.CreatedAt.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", c.Seq, source, err)
		}
	}
	return tx.Commit()
}

func (r *manualRepo) ListChunks(ctx context.Context) ([]*model.ManualChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, source, seq, body, metadata, embedding, created_at
FROM manual_chunks
ORDER BY source, seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ManualChunk
	for rows.Next() {
		var (
			c             model.ManualChunk
			meta, vec, at string
		)
		if err := rows.Scan(&c.ID, &c.Source, &c.Seq, &c.Text, &meta, &vec, &at); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata of %s: %v", domain.ErrReadDatabaseRow, c.ID, err)
		}
		if err := json.Unmarshal([]byte(vec), &c.Embedding); err != nil {
			return nil, fmt.Errorf("%w: embedding of %s: %v", domain.ErrReadDatabaseRow, c.ID, err)
		}
		if c.CreatedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("%w: created_at of %s: %v", domain.ErrReadDatabaseRow, c.ID, err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *manualRepo) Sources(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM manual_chunks GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
		}
		out[source] = n
	}
	return out, rows.Err()
}
