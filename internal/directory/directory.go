// Package directory resolves organizational names (company, branch, role)
// to identifiers. The SSO flow and the registries never see raw org tables;
// they go through this lookup layer.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accessdesk.org/internal/authz"
)

// Company is a tenant; it owns branches.
type Company struct {
	ID        string    `json:"company_id"`
	Name      string    `json:"c_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Branch belongs to exactly one company and scopes users and requests.
type Branch struct {
	ID        string    `json:"branch_id"`
	Name      string    `json:"b_name"`
	CompanyID string    `json:"company_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Role is defined at exactly one scope level: ForCompany XOR ForBranch.
type Role struct {
	ID         string `json:"role_id"`
	Name       string `json:"role_name"`
	ForCompany string `json:"for_company,omitempty"`
	ForBranch  string `json:"for_branch,omitempty"`
}

// Store is the persistence surface the directory needs.
type Store interface {
	CompanyByName(ctx context.Context, name string) (Company, error)
	BranchByName(ctx context.Context, name string) (Branch, error)
	BranchByID(ctx context.Context, id string) (Branch, error)
	RoleByID(ctx context.Context, id string) (Role, error)
	RoleByNameForBranch(ctx context.Context, name, branchID string) (Role, error)
	PrivilegesForRole(ctx context.Context, roleName string) ([]string, error)
}

// Service wraps Store with input validation and the service-level error
// taxonomy: unresolvable company/branch names become ErrDirectoryLookup.
type Service struct {
	store Store
}

// NewService constructs the directory service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	return &Service{store: store}, nil
}

// ResolveCompany maps a company display name to its record. Unknown names are
// a directory failure, not a plain miss: the caller surfaces them to the user
// and does not retry.
func (s *Service) ResolveCompany(ctx context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, fmt.Errorf("%w: company name is required", authz.ErrInvalidInput)
	}
	company, err := s.store.CompanyByName(ctx, name)
	if errors.Is(err, authz.ErrNotFound) {
		return Company{}, fmt.Errorf("%w: unknown company %q", authz.ErrDirectoryLookup, name)
	}
	if err != nil {
		return Company{}, err
	}
	return company, nil
}

// ResolveBranch maps an office location name to its branch record.
func (s *Service) ResolveBranch(ctx context.Context, name string) (Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Branch{}, fmt.Errorf("%w: branch name is required", authz.ErrInvalidInput)
	}
	branch, err := s.store.BranchByName(ctx, name)
	if errors.Is(err, authz.ErrNotFound) {
		return Branch{}, fmt.Errorf("%w: unknown branch %q", authz.ErrDirectoryLookup, name)
	}
	if err != nil {
		return Branch{}, err
	}
	return branch, nil
}

// Branch returns a branch by id.
func (s *Service) Branch(ctx context.Context, id string) (Branch, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Branch{}, fmt.Errorf("%w: branch_id is required", authz.ErrInvalidInput)
	}
	return s.store.BranchByID(ctx, id)
}

// Role returns a role by id.
func (s *Service) Role(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role_id is required", authz.ErrInvalidInput)
	}
	return s.store.RoleByID(ctx, id)
}

// DefaultRole finds the branch-scoped "System user" role. Its absence is
// tolerated: new requests then carry no role and an administrator assigns one
// at approval time.
func (s *Service) DefaultRole(ctx context.Context, branchID string) (string, error) {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return "", fmt.Errorf("%w: branch_id is required", authz.ErrInvalidInput)
	}
	role, err := s.store.RoleByNameForBranch(ctx, authz.RoleSystemUser, branchID)
	if errors.Is(err, authz.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return role.ID, nil
}

// RolePrivileges returns the privilege names granted by the named role.
// Unknown roles grant nothing.
func (s *Service) RolePrivileges(ctx context.Context, roleName string) ([]string, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, nil
	}
	return s.store.PrivilegesForRole(ctx, roleName)
}
