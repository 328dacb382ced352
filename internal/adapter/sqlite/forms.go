package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/hogliux/collect/internal/domain"
)

type FormRepo struct {
	s *Store
}

var _ domain.FormRepository = (*FormRepo)(nil)

func (r *FormRepo) Upsert(ctx context.Context, f domain.Form) error {
	start := time.Now()
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO forms (form_id, version, name, hash, file_path, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (form_id, version) DO UPDATE SET
			name = excluded.name,
			hash = excluded.hash,
			file_path = excluded.file_path,
			downloaded_at = excluded.downloaded_at`,
		f.FormID, f.Version, f.Name, f.Hash, f.FilePath, toMillis(f.DownloadedAt))
	r.s.observe("upsert_form", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert form: %w", err)
	}
	return nil
}

func (r *FormRepo) List(ctx context.Context) ([]domain.Form, error) {
	start := time.Now()
	rows, err := r.s.db.QueryContext(ctx, `
		SELECT form_id, version, name, hash, file_path, downloaded_at
		FROM forms ORDER BY name, form_id, version`)
	if err != nil {
		r.s.observe("list_forms", start, err)
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	var out []domain.Form
	for rows.Next() {
		var f domain.Form
		var at int64
		if err := rows.Scan(&f.FormID, &f.Version, &f.Name, &f.Hash, &f.FilePath, &at); err != nil {
			r.s.observe("list_forms", start, err)
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		f.DownloadedAt = fromMillis(at)
		out = append(out, f)
	}
	err = rows.Err()
	r.s.observe("list_forms", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	return out, nil
}

func (r *FormRepo) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := r.s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM forms`).Scan(&n)
	r.s.observe("count_forms", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count forms: %w", err)
	}
	return n, nil
}

func (r *FormRepo) DeleteAll(ctx context.Context) error {
	start := time.Now()
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM forms`)
	r.s.observe("delete_forms", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete forms: %w", err)
	}
	return nil
}
