// Package registry manages provisioned users: the rows a ledger approval
// materializes, plus direct administrative creation, revocation and
// reactivation.
package registry

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

// User is a provisioned account. Email is unique across the whole table.
type User struct {
	ID          string           `json:"user_id"`
	Email       string           `json:"email"`
	DisplayName string           `json:"display_name"`
	CompanyID   string           `json:"company_id"`
	BranchID    string           `json:"branch_id"`
	RoleID      string           `json:"role_id,omitempty"`
	Status      authz.UserStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Scope returns the user's authorization scope.
func (u User) Scope() authz.Scope {
	return authz.Scope{CompanyID: u.CompanyID, BranchID: u.BranchID}
}

// NewUserParams describes a user created directly by an administrator,
// bypassing the request ledger.
type NewUserParams struct {
	Email       string
	DisplayName string
	BranchID    string
	RoleID      string
}

// Patch holds optional field updates; nil pointers leave fields untouched.
type Patch struct {
	DisplayName *string
	BranchID    *string
	RoleID      *string
}

func (p Patch) empty() bool {
	return p.DisplayName == nil && p.BranchID == nil && p.RoleID == nil
}

// Store is the persistence surface the registry needs.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, scope authz.Scope, status authz.UserStatus) ([]User, error)
	UpdateUser(ctx context.Context, u User) error
	CountUsersByStatus(ctx context.Context, scope authz.Scope) (map[authz.UserStatus]int, error)
}

// Service implements user administration over Store.
type Service struct {
	store Store
	dir   *directory.Service
	now   func() time.Time
}

// NewService constructs the registry service.
func NewService(store Store, dir *directory.Service) (*Service, error) {
	if store == nil {
		return nil, errors.New("registry store is required")
	}
	if dir == nil {
		return nil, errors.New("directory service is required")
	}
	return &Service{store: store, dir: dir, now: time.Now}, nil
}

// FindByEmail is the unauthenticated lookup the SSO resolver uses.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", authz.ErrInvalidInput)
	}
	return s.store.UserByEmail(ctx, email)
}

// ListActive returns the active users visible to the principal.
func (s *Service) ListActive(ctx context.Context, principal authz.Principal) ([]User, error) {
	scope := authz.VisibleScope(principal)
	if err := authz.Require(principal, authz.PrivListActiveUsers, scope); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx, scope, authz.UserActive)
}

// ListRevoked returns the revoked users visible to the principal.
func (s *Service) ListRevoked(ctx context.Context, principal authz.Principal) ([]User, error) {
	scope := authz.VisibleScope(principal)
	if err := authz.Require(principal, authz.PrivListRevokedUsers, scope); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx, scope, authz.UserRevoked)
}

// Create provisions a user directly, without a ledger request. The branch
// must belong to the principal's company; a role, if given, must be defined
// for that branch or for the company, and only administrators may hand out
// company-level roles.
func (s *Service) Create(ctx context.Context, principal authz.Principal, p NewUserParams) (User, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return User{}, fmt.Errorf("%w: email is required", authz.ErrInvalidInput)
	}
	displayName := strings.TrimSpace(p.DisplayName)
	if displayName == "" {
		return User{}, fmt.Errorf("%w: display name is required", authz.ErrInvalidInput)
	}
	if p.BranchID == "" {
		return User{}, fmt.Errorf("%w: branch_id is required", authz.ErrInvalidInput)
	}

	branch, err := s.dir.Branch(ctx, p.BranchID)
	if err != nil {
		return User{}, err
	}
	target := authz.Scope{CompanyID: branch.CompanyID, BranchID: branch.ID}
	if err := authz.Require(principal, authz.PrivAddUsers, target); err != nil {
		return User{}, err
	}
	if p.RoleID != "" {
		if err := s.checkRoleAssignment(ctx, principal, p.RoleID, target); err != nil {
			return User{}, err
		}
	}

	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return User{}, fmt.Errorf("%w: email %s already registered", authz.ErrConflict, email)
	} else if !errors.Is(err, authz.ErrNotFound) {
		return User{}, err
	}

	now := s.now().UTC()
	u := User{
		ID:          ids.New(ids.PrefixUser),
		Email:       email,
		DisplayName: displayName,
		CompanyID:   branch.CompanyID,
		BranchID:    branch.ID,
		RoleID:      p.RoleID,
		Status:      authz.UserActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Revoke deactivates an active user.
func (s *Service) Revoke(ctx context.Context, principal authz.Principal, userID string) (User, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := authz.Require(principal, authz.PrivRevokeUser, u.Scope()); err != nil {
		return User{}, err
	}
	if u.Status != authz.UserActive {
		return User{}, fmt.Errorf("%w: user is not active", authz.ErrInvalidStatus)
	}
	u.Status = authz.UserRevoked
	u.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Reactivate restores a revoked user, optionally moving them to a new branch
// or role in the same step.
func (s *Service) Reactivate(ctx context.Context, principal authz.Principal, userID string, patch Patch) (User, error) {
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if err := authz.Require(principal, authz.PrivReactivateUser, u.Scope()); err != nil {
		return User{}, err
	}
	if u.Status != authz.UserRevoked {
		return User{}, fmt.Errorf("%w: user is not revoked", authz.ErrInvalidStatus)
	}
	u, err = s.applyPatch(ctx, principal, u, patch)
	if err != nil {
		return User{}, err
	}
	u.Status = authz.UserActive
	u.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Update edits an existing user in place. Each field is gated separately.
func (s *Service) Update(ctx context.Context, principal authz.Principal, userID string, patch Patch) (User, error) {
	if patch.empty() {
		return User{}, fmt.Errorf("%w: empty update", authz.ErrInvalidInput)
	}
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if patch.DisplayName != nil {
		if err := authz.Require(principal, authz.PrivAddUsers, u.Scope()); err != nil {
			return User{}, err
		}
	}
	u, err = s.applyPatch(ctx, principal, u, patch)
	if err != nil {
		return User{}, err
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// CountByStatus tallies visible users per status for the stats endpoint.
func (s *Service) CountByStatus(ctx context.Context, principal authz.Principal) (map[authz.UserStatus]int, error) {
	if principal.UserID == "" {
		return nil, authz.ErrUnauthenticated
	}
	return s.store.CountUsersByStatus(ctx, authz.VisibleScope(principal))
}

func (s *Service) applyPatch(ctx context.Context, principal authz.Principal, u User, patch Patch) (User, error) {
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return User{}, fmt.Errorf("%w: display name cannot be blank", authz.ErrInvalidInput)
		}
		u.DisplayName = name
	}
	if patch.BranchID != nil && *patch.BranchID != u.BranchID {
		if err := authz.Require(principal, authz.PrivAssignBranch, u.Scope()); err != nil {
			return User{}, err
		}
		branch, err := s.dir.Branch(ctx, *patch.BranchID)
		if err != nil {
			return User{}, err
		}
		if branch.CompanyID != u.CompanyID {
			return User{}, fmt.Errorf("%w: branch %s belongs to another company", authz.ErrInvalidInput, branch.ID)
		}
		u.BranchID = branch.ID
	}
	if patch.RoleID != nil && *patch.RoleID != u.RoleID {
		target := authz.Scope{CompanyID: u.CompanyID, BranchID: u.BranchID}
		if err := s.checkRoleAssignment(ctx, principal, *patch.RoleID, target); err != nil {
			return User{}, err
		}
		u.RoleID = *patch.RoleID
	}
	return u, nil
}

func (s *Service) checkRoleAssignment(ctx context.Context, principal authz.Principal, roleID string, target authz.Scope) error {
	if err := authz.Require(principal, authz.PrivAssignRole, target); err != nil {
		return err
	}
	role, err := s.dir.Role(ctx, roleID)
	if err != nil {
		return err
	}
	switch {
	case role.ForBranch != "" && role.ForBranch == target.BranchID:
		return nil
	case role.ForCompany != "" && role.ForCompany == target.CompanyID:
		// Company-level roles are an administrator call.
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: company-level role assignment requires an administrator", authz.ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: role %s is not defined for the target scope", authz.ErrInvalidInput, roleID)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
