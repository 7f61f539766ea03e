package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/itam-hq/be-procurement/internal/platform/database"
	"github.com/itam-hq/be-procurement/internal/platform/errors"
)

// PermissionRepository reads users, roles and permission grants. It is
// strictly read-only; grants are managed by the admin tooling outside this
// service.
type PermissionRepository struct {
	db *database.DB
}

// NewPermissionRepository creates a new PermissionRepository.
func NewPermissionRepository(db *database.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

// GetUser retrieves one user record.
func (r *PermissionRepository) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, full_name, department_id, is_admin, is_manager
		FROM users
		WHERE id = $1
	`

	u := &User{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.FullName, &u.DepartmentID, &u.IsAdmin, &u.IsManager,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}

// ListAllCodes returns the full permission catalogue. Queried fresh on every
// admin resolution so newly added permissions are visible immediately.
func (r *PermissionRepository) ListAllCodes(ctx context.Context) ([]PermissionCode, error) {
	rows, err := r.db.Query(ctx, `SELECT code FROM permissions ORDER BY code`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list permissions")
	}
	defer rows.Close()
	return scanCodes(rows)
}

// ListCodesForUser returns the union of permission codes granted through
// every role the user holds.
func (r *PermissionRepository) ListCodesForUser(ctx context.Context, userID string) ([]PermissionCode, error) {
	query := `
		SELECT DISTINCT p.code
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_code = p.code
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1
		ORDER BY p.code
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list user permissions")
	}
	defer rows.Close()
	return scanCodes(rows)
}

func scanCodes(rows pgx.Rows) ([]PermissionCode, error) {
	codes := make([]PermissionCode, 0)
	for rows.Next() {
		var code PermissionCode
		if err := rows.Scan(&code); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan permission code")
		}
		codes = append(codes, code)
	}
	return codes, nil
}
