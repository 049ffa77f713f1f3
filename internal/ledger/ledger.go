// Package ledger owns the permission-request lifecycle: intake from the SSO
// callback, administrator decisions, and the fold that turns an approved
// request into an active user.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/ids"
)

// PermissionRequest is one access petition. A visitor gets at most one live
// row; repeated logins re-read it instead of creating duplicates.
type PermissionRequest struct {
	ID           string              `json:"request_id"`
	Email        string              `json:"email"`
	DisplayName  string              `json:"display_name"`
	CompanyID    string              `json:"company_id"`
	BranchID     string              `json:"branch_id"`
	RoleID       string              `json:"role_id,omitempty"`
	Status       authz.RequestStatus `json:"u_status"`
	ApprovedBy   string              `json:"approved_by,omitempty"`
	ApprovedTime *time.Time          `json:"approved_time,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Scope returns the request's authorization scope.
func (r PermissionRequest) Scope() authz.Scope {
	return authz.Scope{CompanyID: r.CompanyID, BranchID: r.BranchID}
}

// CreateParams carries the identity-provider profile into request intake.
type CreateParams struct {
	Email          string
	DisplayName    string
	CompanyName    string
	OfficeLocation string
}

// DecisionOverrides lets the approver correct the branch or role a request
// was filed under. Empty fields keep the request's own values.
type DecisionOverrides struct {
	BranchID string
	RoleID   string
}

// ApproveParams is the single-transaction payload for an approval: the
// request update and the user upsert commit or roll back together.
type ApproveParams struct {
	RequestID    string
	ApprovedBy   string
	ApprovedTime time.Time
	UserID       string
	Email        string
	DisplayName  string
	CompanyID    string
	BranchID     string
	RoleID       string
}

// FoldParams marks an approved request processed and materializes its user,
// again in one transaction.
type FoldParams struct {
	RequestID   string
	UserID      string
	Email       string
	DisplayName string
	CompanyID   string
	BranchID    string
	RoleID      string
}

// Store is the persistence surface the ledger needs.
type Store interface {
	CreateRequest(ctx context.Context, req PermissionRequest) error
	RequestByEmail(ctx context.Context, email string) (PermissionRequest, error)
	RequestByID(ctx context.Context, id string) (PermissionRequest, error)
	ListRequests(ctx context.Context, scope authz.Scope) ([]PermissionRequest, error)
	SetRequestStatus(ctx context.Context, id string, status authz.RequestStatus, approvedBy string, approvedTime *time.Time) error
	ApproveRequest(ctx context.Context, p ApproveParams) error
	FoldRequest(ctx context.Context, p FoldParams) error
	CountRequestsByStatus(ctx context.Context, scope authz.Scope) (map[authz.RequestStatus]int, error)
}

// Service implements the request lifecycle over Store, with organizational
// lookups delegated to the directory.
type Service struct {
	store Store
	dir   *directory.Service
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(store Store, dir *directory.Service) (*Service, error) {
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if dir == nil {
		return nil, errors.New("directory service is required")
	}
	return &Service{store: store, dir: dir, now: time.Now}, nil
}

// Create files a pending request for an unknown visitor. Company and office
// names from the profile must resolve in the directory; a missing default
// role is tolerated. Calling Create again for the same email returns the
// existing request unchanged.
func (s *Service) Create(ctx context.Context, p CreateParams) (PermissionRequest, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return PermissionRequest{}, fmt.Errorf("%w: email is required", authz.ErrInvalidProfile)
	}
	displayName := strings.TrimSpace(p.DisplayName)
	if displayName == "" {
		return PermissionRequest{}, fmt.Errorf("%w: display name is required", authz.ErrInvalidProfile)
	}

	if existing, err := s.store.RequestByEmail(ctx, email); err == nil {
		return existing, nil
	} else if !errors.Is(err, authz.ErrNotFound) {
		return PermissionRequest{}, err
	}

	company, err := s.dir.ResolveCompany(ctx, p.CompanyName)
	if err != nil {
		return PermissionRequest{}, err
	}
	branch, err := s.dir.ResolveBranch(ctx, p.OfficeLocation)
	if err != nil {
		return PermissionRequest{}, err
	}
	if branch.CompanyID != company.ID {
		return PermissionRequest{}, fmt.Errorf("%w: branch %q does not belong to company %q", authz.ErrDirectoryLookup, branch.Name, company.Name)
	}
	roleID, err := s.dir.DefaultRole(ctx, branch.ID)
	if err != nil {
		return PermissionRequest{}, err
	}

	now := s.now().UTC()
	req := PermissionRequest{
		ID:          ids.New(ids.PrefixRequest),
		Email:       email,
		DisplayName: displayName,
		CompanyID:   company.ID,
		BranchID:    branch.ID,
		RoleID:      roleID,
		Status:      authz.RequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		if errors.Is(err, authz.ErrConflict) {
			// Raced with a concurrent login for the same email.
			return s.store.RequestByEmail(ctx, email)
		}
		return PermissionRequest{}, err
	}
	return req, nil
}

// GetByEmail returns the request filed for an email, if any.
func (s *Service) GetByEmail(ctx context.Context, email string) (PermissionRequest, error) {
	email = normalizeEmail(email)
	if email == "" {
		return PermissionRequest{}, fmt.Errorf("%w: email is required", authz.ErrInvalidInput)
	}
	return s.store.RequestByEmail(ctx, email)
}

// GetByID returns a single request, gated on list visibility.
func (s *Service) GetByID(ctx context.Context, principal authz.Principal, id string) (PermissionRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return PermissionRequest{}, fmt.Errorf("%w: request_id is required", authz.ErrInvalidInput)
	}
	req, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return PermissionRequest{}, err
	}
	if err := authz.Require(principal, authz.PrivListRequests, req.Scope()); err != nil {
		return PermissionRequest{}, err
	}
	return req, nil
}

// List returns the requests visible to the principal, most recent first.
// A non-empty status narrows the listing to that state.
func (s *Service) List(ctx context.Context, principal authz.Principal, status authz.RequestStatus) ([]PermissionRequest, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", authz.ErrInvalidInput, status)
	}
	scope := authz.VisibleScope(principal)
	if err := authz.Require(principal, authz.PrivListRequests, scope); err != nil {
		return nil, err
	}
	items, err := s.store.ListRequests(ctx, scope)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return items, nil
	}
	filtered := items[:0]
	for _, req := range items {
		if req.Status == status {
			filtered = append(filtered, req)
		}
	}
	return filtered, nil
}

// SetStatus applies an administrator decision. Only approved, rejected and
// revoked are reachable this way; processed is reserved for the login fold.
// Approval writes the request update and the user upsert atomically.
func (s *Service) SetStatus(ctx context.Context, principal authz.Principal, id string, status authz.RequestStatus, ov DecisionOverrides) (PermissionRequest, error) {
	switch status {
	case authz.RequestApproved, authz.RequestRejected, authz.RequestRevoked:
	default:
		return PermissionRequest{}, fmt.Errorf("%w: status %q cannot be set directly", authz.ErrInvalidInput, status)
	}

	req, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return PermissionRequest{}, err
	}
	if err := authz.Require(principal, authz.PrivUpdateRequests, req.Scope()); err != nil {
		return PermissionRequest{}, err
	}
	if err := authz.CheckTransition(req.Status, status); err != nil {
		return PermissionRequest{}, err
	}

	now := s.now().UTC()
	if status != authz.RequestApproved {
		if err := s.store.SetRequestStatus(ctx, req.ID, status, principal.UserID, &now); err != nil {
			return PermissionRequest{}, err
		}
		req.Status = status
		req.ApprovedBy = principal.UserID
		req.ApprovedTime = &now
		req.UpdatedAt = now
		return req, nil
	}

	branchID, roleID, err := s.resolveOverrides(ctx, principal, req, ov)
	if err != nil {
		return PermissionRequest{}, err
	}
	params := ApproveParams{
		RequestID:    req.ID,
		ApprovedBy:   principal.UserID,
		ApprovedTime: now,
		UserID:       ids.New(ids.PrefixUser),
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		CompanyID:    req.CompanyID,
		BranchID:     branchID,
		RoleID:       roleID,
	}
	if err := s.store.ApproveRequest(ctx, params); err != nil {
		return PermissionRequest{}, err
	}
	req.Status = authz.RequestApproved
	req.BranchID = branchID
	req.RoleID = roleID
	req.ApprovedBy = principal.UserID
	req.ApprovedTime = &now
	req.UpdatedAt = now
	return req, nil
}

func (s *Service) resolveOverrides(ctx context.Context, principal authz.Principal, req PermissionRequest, ov DecisionOverrides) (branchID, roleID string, err error) {
	branchID = req.BranchID
	roleID = req.RoleID

	if ov.BranchID != "" && ov.BranchID != req.BranchID {
		if err := authz.Require(principal, authz.PrivAssignBranch, req.Scope()); err != nil {
			return "", "", err
		}
		branch, err := s.dir.Branch(ctx, ov.BranchID)
		if err != nil {
			return "", "", err
		}
		if branch.CompanyID != req.CompanyID {
			return "", "", fmt.Errorf("%w: branch %s belongs to another company", authz.ErrInvalidInput, ov.BranchID)
		}
		branchID = branch.ID
	}

	if ov.RoleID != "" && ov.RoleID != req.RoleID {
		if err := authz.Require(principal, authz.PrivAssignRole, req.Scope()); err != nil {
			return "", "", err
		}
		role, err := s.dir.Role(ctx, ov.RoleID)
		if err != nil {
			return "", "", err
		}
		if role.ForCompany != req.CompanyID && role.ForBranch != branchID {
			return "", "", fmt.Errorf("%w: role %s is not defined for the target scope", authz.ErrInvalidInput, ov.RoleID)
		}
		roleID = role.ID
	}

	return branchID, roleID, nil
}

// Fold finalizes an approved request at login: the user row materializes and
// the request reaches its processed terminal. Re-folding an already processed
// request repairs the user row if a previous fold half-landed.
func (s *Service) Fold(ctx context.Context, req PermissionRequest) error {
	switch req.Status {
	case authz.RequestApproved, authz.RequestProcessed:
	default:
		return fmt.Errorf("%w: cannot fold request in status %q", authz.ErrInvalidStatus, req.Status)
	}
	return s.store.FoldRequest(ctx, FoldParams{
		RequestID:   req.ID,
		UserID:      ids.New(ids.PrefixUser),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		CompanyID:   req.CompanyID,
		BranchID:    req.BranchID,
		RoleID:      req.RoleID,
	})
}

// CountByStatus tallies visible requests per status for the stats endpoint.
func (s *Service) CountByStatus(ctx context.Context, principal authz.Principal) (map[authz.RequestStatus]int, error) {
	if principal.UserID == "" {
		return nil, authz.ErrUnauthenticated
	}
	return s.store.CountRequestsByStatus(ctx, authz.VisibleScope(principal))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
