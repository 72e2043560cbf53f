package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists explicit role grants.
type Repository interface {
	Source
	UpsertRolePermissions(ctx context.Context, role string, perms []Permission) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LoadRolePermissions returns every stored role with its raw permission names.
func (r *PGRepository) LoadRolePermissions(ctx context.Context) (map[string][]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT role, permissions FROM role_permissions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string][]string)
	for rows.Next() {
		var (
			role  string
			perms []string
		)
		if err := rows.Scan(&role, &perms); err != nil {
			return nil, err
		}
		out[role] = perms
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertRolePermissions replaces the explicit grants of role.
func (r *PGRepository) UpsertRolePermissions(ctx context.Context, role string, perms []Permission) error {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role, permissions, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (role) DO UPDATE SET permissions = EXCLUDED.permissions, updated_at = NOW()`,
		role, names)
	return err
}

var _ Repository = (*PGRepository)(nil)
