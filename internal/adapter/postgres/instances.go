package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hogliux/collect/internal/domain"
)

type InstanceRepo struct {
	pool *pgxpool.Pool
}

var _ domain.InstanceRepository = (*InstanceRepo)(nil)

func NewInstanceRepo(pool *pgxpool.Pool) *InstanceRepo {
	return &InstanceRepo{pool: pool}
}

func (r *InstanceRepo) Insert(ctx context.Context, inst *domain.Instance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO instances (id, form_id, form_version, display_name, file_path, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inst.ID, inst.FormID, inst.FormVersion, inst.DisplayName, inst.FilePath, string(inst.Status), inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

func (r *InstanceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE instances SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

func (r *InstanceRepo) CountByStatus(ctx context.Context) (map[domain.InstanceStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM instances GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.InstanceStatus]int)
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, fmt.Errorf("failed to scan instance count: %w", err)
		}
		status, err := domain.ParseInstanceStatus(raw)
		if err != nil {
			return nil, err
		}
		out[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}
	return out, nil
}

func (r *InstanceRepo) DeleteAll(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM instances`); err != nil {
		return fmt.Errorf("failed to delete instances: %w", err)
	}
	return nil
}
