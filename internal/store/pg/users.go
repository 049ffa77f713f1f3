package pg

import (
	"context"
	"database/sql"
	"errors"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/registry"
)

const userColumns = `id, email, display_name, company_id, branch_id, role_id, status, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, u registry.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, display_name, company_id, branch_id, role_id, status)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Email, u.DisplayName, u.CompanyID, u.BranchID, nullIfEmpty(u.RoleID), string(u.Status))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return authz.ErrConflict
			case pgErrForeignKeyViolation:
				return authz.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (registry.User, error) {
	if s.db == nil {
		return registry.User{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = $1
	`, email)
	return scanUser(row.Scan)
}

func (s *Store) UserByID(ctx context.Context, id string) (registry.User, error) {
	if s.db == nil {
		return registry.User{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id)
	return scanUser(row.Scan)
}

func (s *Store) ListUsers(ctx context.Context, scope authz.Scope, status authz.UserStatus) ([]registry.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + userColumns + `
		from users
		where company_id = $1 and status = $2
		order by id desc
	`
	args := []any{scope.CompanyID, string(status)}
	if scope.BranchID != "" {
		query = `
		select ` + userColumns + `
		from users
		where company_id = $1 and status = $2 and branch_id = $3
		order by id desc
	`
		args = append(args, scope.BranchID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateUser(ctx context.Context, u registry.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set display_name = $2, branch_id = $3, role_id = $4, status = $5, updated_at = now()
		where id = $1
	`, u.ID, u.DisplayName, u.BranchID, nullIfEmpty(u.RoleID), string(u.Status))
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.ErrNotFound
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) CountUsersByStatus(ctx context.Context, scope authz.Scope) (map[authz.UserStatus]int, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select status, count(*)
		from users
		where company_id = $1
		group by status
	`
	args := []any{scope.CompanyID}
	if scope.BranchID != "" {
		query = `
		select status, count(*)
		from users
		where company_id = $1 and branch_id = $2
		group by status
	`
		args = append(args, scope.BranchID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[authz.UserStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[authz.UserStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func scanUser(scan func(dest ...any) error) (registry.User, error) {
	var (
		u      registry.User
		status string
		roleID sql.NullString
	)
	err := scan(&u.ID, &u.Email, &u.DisplayName, &u.CompanyID, &u.BranchID, &roleID, &status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.User{}, authz.ErrNotFound
	}
	if err != nil {
		return registry.User{}, err
	}
	u.Status = authz.UserStatus(status)
	if roleID.Valid {
		u.RoleID = roleID.String
	}
	return u, nil
}
