package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hogliux/collect/internal/domain"
)

type FormRepo struct {
	pool *pgxpool.Pool
}

var _ domain.FormRepository = (*FormRepo)(nil)

func NewFormRepo(pool *pgxpool.Pool) *FormRepo {
	return &FormRepo{pool: pool}
}

func (r *FormRepo) Upsert(ctx context.Context, f domain.Form) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forms (form_id, version, name, hash, file_path, downloaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (form_id, version) DO UPDATE SET
			name = EXCLUDED.name,
			hash = EXCLUDED.hash,
			file_path = EXCLUDED.file_path,
			downloaded_at = EXCLUDED.downloaded_at`,
		f.FormID, f.Version, f.Name, f.Hash, f.FilePath, f.DownloadedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert form: %w", err)
	}
	return nil
}

func (r *FormRepo) List(ctx context.Context) ([]domain.Form, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT form_id, version, name, hash, file_path, downloaded_at
		FROM forms ORDER BY name, form_id, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	forms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Form, error) {
		var f domain.Form
		err := row.Scan(&f.FormID, &f.Version, &f.Name, &f.Hash, &f.FilePath, &f.DownloadedAt)
		f.DownloadedAt = f.DownloadedAt.UTC()
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return forms, nil
}

func (r *FormRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM forms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count forms: %w", err)
	}
	return n, nil
}

func (r *FormRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM forms`); err != nil {
		return fmt.Errorf("failed to delete forms: %w", err)
	}
	return nil
}
