package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hogliux/collect/internal/domain"
)

type InstanceRepo struct {
	s *Store
}

var _ domain.InstanceRepository = (*InstanceRepo)(nil)

// Insert stores inst, assigning an id and timestamp when they are unset.
func (r *InstanceRepo) Insert(ctx context.Context, inst *domain.Instance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.UpdatedAt.IsZero() {
		inst.UpdatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := r.s.db.ExecContext(ctx, `
		INSERT INTO instances (id, form_id, form_version, display_name, file_path, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inst.ID.String(), inst.FormID, inst.FormVersion, inst.DisplayName, inst.FilePath,
		string(inst.Status), toMillis(inst.UpdatedAt))
	r.s.observe("insert_instance", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert instance: %w", err)
	}
	return nil
}

func (r *InstanceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus) error {
	start := time.Now()
	res, err := r.s.db.ExecContext(ctx, `
		UPDATE instances SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), id.String())
	r.s.observe("update_instance_status", start, err)
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update instance status: %w", err)
	}
	if n == 0 {
		return domain.ErrInstanceNotFound
	}
	return nil
}

func (r *InstanceRepo) CountByStatus(ctx context.Context) (map[domain.InstanceStatus]int, error) {
	start := time.Now()
	rows, err := r.s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM instances GROUP BY status`)
	if err != nil {
		r.s.observe("count_instances", start, err)
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.InstanceStatus]int)
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			r.s.observe("count_instances", start, err)
			return nil, fmt.Errorf("failed to scan instance count: %w", err)
		}
		status, err := domain.ParseInstanceStatus(raw)
		if err != nil {
			r.s.observe("count_instances", start, err)
			return nil, err
		}
		out[status] = n
	}
	err = rows.Err()
	r.s.observe("count_instances", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}
	return out, nil
}

func (r *InstanceRepo) DeleteAll(ctx context.Context) error {
	start := time.Now()
	_, err := r.s.db.ExecContext(ctx, `DELETE FROM instances`)
	r.s.observe("delete_instances", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete instances: %w", err)
	}
	return nil
}
