package pg

import (
	"context"
	"database/sql"
	"errors"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/directory"
)

func (s *Store) CompanyByName(ctx context.Context, name string) (directory.Company, error) {
	if s.db == nil {
		return directory.Company{}, errors.New("database connection unavailable")
	}
	var c directory.Company
	err := s.db.QueryRowContext(ctx, `
		select id, c_name, created_at
		from companies
		where c_name = $1
	`, name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Company{}, authz.ErrNotFound
	}
	if err != nil {
		return directory.Company{}, err
	}
	return c, nil
}

func (s *Store) BranchByName(ctx context.Context, name string) (directory.Branch, error) {
	if s.db == nil {
		return directory.Branch{}, errors.New("database connection unavailable")
	}
	var b directory.Branch
	err := s.db.QueryRowContext(ctx, `
		select id, b_name, company_id, created_at
		from branches
		where b_name = $1
	`, name).Scan(&b.ID, &b.Name, &b.CompanyID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Branch{}, authz.ErrNotFound
	}
	if err != nil {
		return directory.Branch{}, err
	}
	return b, nil
}

func (s *Store) BranchByID(ctx context.Context, id string) (directory.Branch, error) {
	if s.db == nil {
		return directory.Branch{}, errors.New("database connection unavailable")
	}
	var b directory.Branch
	err := s.db.QueryRowContext(ctx, `
		select id, b_name, company_id, created_at
		from branches
		where id = $1
	`, id).Scan(&b.ID, &b.Name, &b.CompanyID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Branch{}, authz.ErrNotFound
	}
	if err != nil {
		return directory.Branch{}, err
	}
	return b, nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (directory.Role, error) {
	if s.db == nil {
		return directory.Role{}, errors.New("database connection unavailable")
	}
	var (
		r          directory.Role
		forCompany sql.NullString
		forBranch  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, role_name, for_company, for_branch
		from roles
		where id = $1
	`, id).Scan(&r.ID, &r.Name, &forCompany, &forBranch)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Role{}, authz.ErrNotFound
	}
	if err != nil {
		return directory.Role{}, err
	}
	if forCompany.Valid {
		r.ForCompany = forCompany.String
	}
	if forBranch.Valid {
		r.ForBranch = forBranch.String
	}
	return r, nil
}

func (s *Store) RoleByNameForBranch(ctx context.Context, name, branchID string) (directory.Role, error) {
	if s.db == nil {
		return directory.Role{}, errors.New("database connection unavailable")
	}
	var (
		r          directory.Role
		forCompany sql.NullString
		forBranch  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, role_name, for_company, for_branch
		from roles
		where role_name = $1 and for_branch = $2
	`, name, branchID).Scan(&r.ID, &r.Name, &forCompany, &forBranch)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Role{}, authz.ErrNotFound
	}
	if err != nil {
		return directory.Role{}, err
	}
	if forCompany.Valid {
		r.ForCompany = forCompany.String
	}
	if forBranch.Valid {
		r.ForBranch = forBranch.String
	}
	return r, nil
}

func (s *Store) PrivilegesForRole(ctx context.Context, roleName string) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.privilege_name
		from roles r
		join role_privileges rp on rp.role_id = r.id
		join privileges p on p.id = rp.privilege_id
		where r.role_name = $1
	`, roleName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var privs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		privs = append(privs, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return privs, nil
}
