package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/ledger"
)

const requestColumns = `id, email, display_name, company_id, branch_id, role_id, u_status, approved_by, approved_time, created_at, updated_at`

func (s *Store) CreateRequest(ctx context.Context, req ledger.PermissionRequest) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	_, err := s.db.ExecContext(ctx, `
		insert into requests (id, email, display_name, company_id, branch_id, role_id, u_status)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, req.ID, req.Email, req.DisplayName, req.CompanyID, req.BranchID, nullIfEmpty(req.RoleID), string(req.Status))
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

func (s *Store) RequestByEmail(ctx context.Context, email string) (ledger.PermissionRequest, error) {
	if s.db == nil {
		return ledger.PermissionRequest{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+requestColumns+`
		from requests
		where email = $1
	`, email)
	return scanRequest(row.Scan)
}

func (s *Store) RequestByID(ctx context.Context, id string) (ledger.PermissionRequest, error) {
	if s.db == nil {
		return ledger.PermissionRequest{}, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+requestColumns+`
		from requests
		where id = $1
	`, id)
	return scanRequest(row.Scan)
}

func (s *Store) ListRequests(ctx context.Context, scope authz.Scope) ([]ledger.PermissionRequest, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + requestColumns + `
		from requests
		where company_id = $1
		order by id desc
	`
	args := []any{scope.CompanyID}
	if scope.BranchID != "" {
		query = `
		select ` + requestColumns + `
		from requests
		where company_id = $1 and branch_id = $2
		order by id desc
	`
		args = append(args, scope.BranchID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.PermissionRequest
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SetRequestStatus(ctx context.Context, id string, status authz.RequestStatus, approvedBy string, approvedTime *time.Time) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update requests
		set u_status = $2, approved_by = $3, approved_time = $4, updated_at = now()
		where id = $1
	`, id, string(status), nullIfEmpty(approvedBy), nullTime(approvedTime))
	if err != nil {
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

// ApproveRequest moves the request to approved and materializes (or
// reactivates) the user in the same transaction. Either both rows land or
// neither does.
func (s *Store) ApproveRequest(ctx context.Context, p ledger.ApproveParams) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update requests
		set u_status = $2, branch_id = $3, role_id = $4, approved_by = $5, approved_time = $6, updated_at = now()
		where id = $1
	`, p.RequestID, string(authz.RequestApproved), p.BranchID, nullIfEmpty(p.RoleID), p.ApprovedBy, p.ApprovedTime)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, email, display_name, company_id, branch_id, role_id, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (email) do update
		set display_name = excluded.display_name,
		    company_id = excluded.company_id,
		    branch_id = excluded.branch_id,
		    role_id = excluded.role_id,
		    status = excluded.status,
		    updated_at = now()
	`, p.UserID, p.Email, p.DisplayName, p.CompanyID, p.BranchID, nullIfEmpty(p.RoleID), string(authz.UserActive)); err != nil {
		return err
	}

	return tx.Commit()
}

// FoldRequest marks an approved request processed at login time. The user
// insert is a no-op when the approval already materialized the row.
func (s *Store) FoldRequest(ctx context.Context, p ledger.FoldParams) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update requests
		set u_status = $2, updated_at = now()
		where id = $1
	`, p.RequestID, string(authz.RequestProcessed))
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, email, display_name, company_id, branch_id, role_id, status)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (email) do nothing
	`, p.UserID, p.Email, p.DisplayName, p.CompanyID, p.BranchID, nullIfEmpty(p.RoleID), string(authz.UserActive)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CountRequestsByStatus(ctx context.Context, scope authz.Scope) (map[authz.RequestStatus]int, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select u_status, count(*)
		from requests
		where company_id = $1
		group by u_status
	`
	args := []any{scope.CompanyID}
	if scope.BranchID != "" {
		query = `
		select u_status, count(*)
		from requests
		where company_id = $1 and branch_id = $2
		group by u_status
	`
		args = append(args, scope.BranchID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[authz.RequestStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[authz.RequestStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func scanRequest(scan func(dest ...any) error) (ledger.PermissionRequest, error) {
	var (
		req          ledger.PermissionRequest
		status       string
		roleID       sql.NullString
		approvedBy   sql.NullString
		approvedTime sql.NullTime
	)
	err := scan(&req.ID, &req.Email, &req.DisplayName, &req.CompanyID, &req.BranchID,
		&roleID, &status, &approvedBy, &approvedTime, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.PermissionRequest{}, authz.ErrNotFound
	}
	if err != nil {
		return ledger.PermissionRequest{}, err
	}
	req.Status = authz.RequestStatus(status)
	if roleID.Valid {
		req.RoleID = roleID.String
	}
	if approvedBy.Valid {
		req.ApprovedBy = approvedBy.String
	}
	if approvedTime.Valid {
		t := approvedTime.Time
		req.ApprovedTime = &t
	}
	return req, nil
}
