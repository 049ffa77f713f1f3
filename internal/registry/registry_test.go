package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/directory"
)

type stubStore struct {
	byEmail map[string]User
	byID    map[string]User
	created []User
	updated []User
}

func (s *stubStore) CreateUser(_ context.Context, u User) error {
	s.created = append(s.created, u)
	return nil
}

func (s *stubStore) UserByEmail(_ context.Context, email string) (User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return User{}, authz.ErrNotFound
	}
	return u, nil
}

func (s *stubStore) UserByID(_ context.Context, id string) (User, error) {
	u, ok := s.byID[id]
	if !ok {
		return User{}, authz.ErrNotFound
	}
	return u, nil
}

func (s *stubStore) ListUsers(_ context.Context, scope authz.Scope, status authz.UserStatus) ([]User, error) {
	var out []User
	for _, u := range s.byID {
		if u.Status != status || u.CompanyID != scope.CompanyID {
			continue
		}
		if scope.BranchID != "" && u.BranchID != scope.BranchID {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *stubStore) UpdateUser(_ context.Context, u User) error {
	s.updated = append(s.updated, u)
	s.byID[u.ID] = u
	return nil
}

func (s *stubStore) CountUsersByStatus(_ context.Context, _ authz.Scope) (map[authz.UserStatus]int, error) {
	return map[authz.UserStatus]int{authz.UserActive: len(s.byID)}, nil
}

type stubDirStore struct {
	branchByID map[string]directory.Branch
	roles      map[string]directory.Role
}

func (s *stubDirStore) CompanyByName(_ context.Context, _ string) (directory.Company, error) {
	return directory.Company{}, authz.ErrNotFound
}

func (s *stubDirStore) BranchByName(_ context.Context, _ string) (directory.Branch, error) {
	return directory.Branch{}, authz.ErrNotFound
}

func (s *stubDirStore) BranchByID(_ context.Context, id string) (directory.Branch, error) {
	b, ok := s.branchByID[id]
	if !ok {
		return directory.Branch{}, authz.ErrNotFound
	}
	return b, nil
}

func (s *stubDirStore) RoleByID(_ context.Context, id string) (directory.Role, error) {
	r, ok := s.roles[id]
	if !ok {
		return directory.Role{}, authz.ErrNotFound
	}
	return r, nil
}

func (s *stubDirStore) RoleByNameForBranch(_ context.Context, _, _ string) (directory.Role, error) {
	return directory.Role{}, authz.ErrNotFound
}

func (s *stubDirStore) PrivilegesForRole(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func newTestService(t *testing.T, store *stubStore) *Service {
	t.Helper()
	dir, err := directory.NewService(&stubDirStore{
		branchByID: map[string]directory.Branch{
			"brn_1": {ID: "brn_1", Name: "HQ", CompanyID: "com_1"},
			"brn_2": {ID: "brn_2", Name: "East", CompanyID: "com_1"},
			"brn_x": {ID: "brn_x", Name: "Rival", CompanyID: "com_9"},
		},
		roles: map[string]directory.Role{
			"rol_1": {ID: "rol_1", Name: authz.RoleSystemUser, ForBranch: "brn_1"},
			"rol_c": {ID: "rol_c", Name: "Auditor", ForCompany: "com_1"},
			"rol_x": {ID: "rol_x", Name: "Outsider", ForBranch: "brn_x"},
		},
	})
	if err != nil {
		t.Fatalf("directory.NewService: %v", err)
	}
	svc, err := NewService(store, dir)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func adminPrincipal() authz.Principal {
	return authz.NewPrincipal("usr_admin", "admin@acme.test", "Admin", authz.RoleSystemAdministrator, "com_1", "brn_1", nil)
}

func managerPrincipal(privs ...string) authz.Principal {
	return authz.NewPrincipal("usr_mgr", "mgr@acme.test", "Manager", "Branch Manager", "com_1", "brn_1", privs)
}

func TestCreateUser(t *testing.T) {
	store := &stubStore{byEmail: map[string]User{}}
	svc := newTestService(t, store)

	u, err := svc.Create(context.Background(), managerPrincipal(authz.PrivAddUsers, authz.PrivAssignRole), NewUserParams{
		Email: "New@Acme.Test", DisplayName: "New Hire", BranchID: "brn_1", RoleID: "rol_1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Status != authz.UserActive || u.Email != "new@acme.test" || u.CompanyID != "com_1" {
		t.Fatalf("created user = %+v", u)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d rows, want 1", len(store.created))
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := &stubStore{byEmail: map[string]User{
		"new@acme.test": {ID: "usr_1", Email: "new@acme.test"},
	}}
	svc := newTestService(t, store)

	_, err := svc.Create(context.Background(), adminPrincipal(), NewUserParams{
		Email: "new@acme.test", DisplayName: "New", BranchID: "brn_1",
	})
	if !errors.Is(err, authz.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCreateUserForeignBranchForbidden(t *testing.T) {
	svc := newTestService(t, &stubStore{byEmail: map[string]User{}})

	_, err := svc.Create(context.Background(), adminPrincipal(), NewUserParams{
		Email: "out@rival.test", DisplayName: "Out", BranchID: "brn_x",
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestCreateUserCompanyRoleNeedsAdmin(t *testing.T) {
	svc := newTestService(t, &stubStore{byEmail: map[string]User{}})

	_, err := svc.Create(context.Background(), managerPrincipal(authz.PrivAddUsers, authz.PrivAssignRole), NewUserParams{
		Email: "aud@acme.test", DisplayName: "Aud", BranchID: "brn_1", RoleID: "rol_c",
	})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("manager assigning company role: err = %v, want ErrForbidden", err)
	}

	u, err := svc.Create(context.Background(), adminPrincipal(), NewUserParams{
		Email: "aud@acme.test", DisplayName: "Aud", BranchID: "brn_1", RoleID: "rol_c",
	})
	if err != nil {
		t.Fatalf("admin assigning company role: %v", err)
	}
	if u.RoleID != "rol_c" {
		t.Fatalf("role not assigned: %+v", u)
	}
}

func TestRevokeAndReactivate(t *testing.T) {
	store := &stubStore{byID: map[string]User{
		"usr_1": {ID: "usr_1", Email: "a@acme.test", CompanyID: "com_1", BranchID: "brn_1", Status: authz.UserActive},
	}}
	svc := newTestService(t, store)

	u, err := svc.Revoke(context.Background(), managerPrincipal(authz.PrivRevokeUser), "usr_1")
	if err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if u.Status != authz.UserRevoked {
		t.Fatalf("status = %q, want revoked", u.Status)
	}

	if _, err := svc.Revoke(context.Background(), managerPrincipal(authz.PrivRevokeUser), "usr_1"); !errors.Is(err, authz.ErrInvalidStatus) {
		t.Fatalf("double revoke: err = %v, want ErrInvalidStatus", err)
	}

	u, err = svc.Reactivate(context.Background(), managerPrincipal(authz.PrivReactivateUser, authz.PrivAssignBranch), "usr_1", Patch{BranchID: ptr("brn_2")})
	if err != nil {
		t.Fatalf("Reactivate: %v", err)
	}
	if u.Status != authz.UserActive || u.BranchID != "brn_2" {
		t.Fatalf("after reactivate = %+v", u)
	}
}

func TestReactivateRequiresRevokedUser(t *testing.T) {
	store := &stubStore{byID: map[string]User{
		"usr_1": {ID: "usr_1", CompanyID: "com_1", BranchID: "brn_1", Status: authz.UserActive},
	}}
	svc := newTestService(t, store)

	if _, err := svc.Reactivate(context.Background(), adminPrincipal(), "usr_1", Patch{}); !errors.Is(err, authz.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestUpdateFieldGates(t *testing.T) {
	store := &stubStore{byID: map[string]User{
		"usr_1": {ID: "usr_1", DisplayName: "Old", CompanyID: "com_1", BranchID: "brn_1", Status: authz.UserActive},
	}}
	svc := newTestService(t, store)

	if _, err := svc.Update(context.Background(), adminPrincipal(), "usr_1", Patch{}); !errors.Is(err, authz.ErrInvalidInput) {
		t.Fatalf("empty patch: err = %v, want ErrInvalidInput", err)
	}

	_, err := svc.Update(context.Background(), managerPrincipal(authz.PrivAddUsers), "usr_1", Patch{BranchID: ptr("brn_2")})
	if !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("branch move without assign_branch: err = %v, want ErrForbidden", err)
	}

	u, err := svc.Update(context.Background(), managerPrincipal(authz.PrivAddUsers), "usr_1", Patch{DisplayName: ptr("New Name")})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if u.DisplayName != "New Name" {
		t.Fatalf("display name = %q", u.DisplayName)
	}
}

func TestListActiveScoped(t *testing.T) {
	store := &stubStore{byID: map[string]User{
		"usr_1": {ID: "usr_1", CompanyID: "com_1", BranchID: "brn_1", Status: authz.UserActive},
		"usr_2": {ID: "usr_2", CompanyID: "com_1", BranchID: "brn_2", Status: authz.UserActive},
		"usr_3": {ID: "usr_3", CompanyID: "com_1", BranchID: "brn_1", Status: authz.UserRevoked},
	}}
	svc := newTestService(t, store)

	out, err := svc.ListActive(context.Background(), managerPrincipal(authz.PrivListActiveUsers))
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(out) != 1 || out[0].ID != "usr_1" {
		t.Fatalf("scoped active list = %+v", out)
	}

	if _, err := svc.ListRevoked(context.Background(), managerPrincipal(authz.PrivListActiveUsers)); !errors.Is(err, authz.ErrForbidden) {
		t.Fatalf("revoked list without privilege: err = %v, want ErrForbidden", err)
	}
}

func ptr(s string) *string { return &s }
