package sso

import (
	"context"
	"errors"
	"testing"
	"time"

	"accessdesk.org/internal/authz"
	"accessdesk.org/internal/directory"
	"accessdesk.org/internal/ledger"
	"accessdesk.org/internal/registry"
)

// world is an in-memory backing for all three stores so the fold can move
// state between the ledger and the registry the way the real store does.
type world struct {
	users    map[string]registry.User
	requests map[string]ledger.PermissionRequest
}

type userStore struct{ w *world }

func (s userStore) CreateUser(_ context.Context, u registry.User) error {
	s.w.users[u.Email] = u
	return nil
}

func (s userStore) UserByEmail(_ context.Context, email string) (registry.User, error) {
	u, ok := s.w.users[email]
	if !ok {
		return registry.User{}, authz.ErrNotFound
	}
	return u, nil
}

func (s userStore) UserByID(_ context.Context, _ string) (registry.User, error) {
	return registry.User{}, authz.ErrNotFound
}

func (s userStore) ListUsers(_ context.Context, _ authz.Scope, _ authz.UserStatus) ([]registry.User, error) {
	return nil, nil
}

func (s userStore) UpdateUser(_ context.Context, u registry.User) error {
	s.w.users[u.Email] = u
	return nil
}

func (s userStore) CountUsersByStatus(_ context.Context, _ authz.Scope) (map[authz.UserStatus]int, error) {
	return nil, nil
}

type requestStore struct{ w *world }

func (s requestStore) CreateRequest(_ context.Context, req ledger.PermissionRequest) error {
	s.w.requests[req.Email] = req
	return nil
}

func (s requestStore) RequestByEmail(_ context.Context, email string) (ledger.PermissionRequest, error) {
	req, ok := s.w.requests[email]
	if !ok {
		return ledger.PermissionRequest{}, authz.ErrNotFound
	}
	return req, nil
}

func (s requestStore) RequestByID(_ context.Context, _ string) (ledger.PermissionRequest, error) {
	return ledger.PermissionRequest{}, authz.ErrNotFound
}

func (s requestStore) ListRequests(_ context.Context, _ authz.Scope) ([]ledger.PermissionRequest, error) {
	return nil, nil
}

func (s requestStore) SetRequestStatus(_ context.Context, _ string, _ authz.RequestStatus, _ string, _ *time.Time) error {
	return nil
}

func (s requestStore) ApproveRequest(_ context.Context, _ ledger.ApproveParams) error {
	return nil
}

func (s requestStore) FoldRequest(_ context.Context, p ledger.FoldParams) error {
	req := s.w.requests[p.Email]
	req.Status = authz.RequestProcessed
	s.w.requests[p.Email] = req
	if _, ok := s.w.users[p.Email]; !ok {
		s.w.users[p.Email] = registry.User{
			ID: p.UserID, Email: p.Email, DisplayName: p.DisplayName,
			CompanyID: p.CompanyID, BranchID: p.BranchID, RoleID: p.RoleID,
			Status: authz.UserActive,
		}
	}
	return nil
}

func (s requestStore) CountRequestsByStatus(_ context.Context, _ authz.Scope) (map[authz.RequestStatus]int, error) {
	return nil, nil
}

type dirStore struct{}

func (dirStore) CompanyByName(_ context.Context, name string) (directory.Company, error) {
	if name != "Acme" {
		return directory.Company{}, authz.ErrNotFound
	}
	return directory.Company{ID: "com_1", Name: "Acme"}, nil
}

func (dirStore) BranchByName(_ context.Context, name string) (directory.Branch, error) {
	if name != "HQ" {
		return directory.Branch{}, authz.ErrNotFound
	}
	return directory.Branch{ID: "brn_1", Name: "HQ", CompanyID: "com_1"}, nil
}

func (dirStore) BranchByID(_ context.Context, id string) (directory.Branch, error) {
	return directory.Branch{ID: id, CompanyID: "com_1"}, nil
}

func (dirStore) RoleByID(_ context.Context, id string) (directory.Role, error) {
	if id != "rol_1" {
		return directory.Role{}, authz.ErrNotFound
	}
	return directory.Role{ID: "rol_1", Name: authz.RoleSystemUser, ForBranch: "brn_1"}, nil
}

func (dirStore) RoleByNameForBranch(_ context.Context, name, branchID string) (directory.Role, error) {
	if name == authz.RoleSystemUser && branchID == "brn_1" {
		return directory.Role{ID: "rol_1", Name: authz.RoleSystemUser, ForBranch: "brn_1"}, nil
	}
	return directory.Role{}, authz.ErrNotFound
}

func (dirStore) PrivilegesForRole(_ context.Context, roleName string) ([]string, error) {
	if roleName == authz.RoleSystemUser {
		return []string{authz.PrivListRequests}, nil
	}
	return nil, nil
}

func newResolver(t *testing.T, w *world) *Resolver {
	t.Helper()
	dir, err := directory.NewService(dirStore{})
	if err != nil {
		t.Fatalf("directory.NewService: %v", err)
	}
	users, err := registry.NewService(userStore{w}, dir)
	if err != nil {
		t.Fatalf("registry.NewService: %v", err)
	}
	requests, err := ledger.NewService(requestStore{w}, dir)
	if err != nil {
		t.Fatalf("ledger.NewService: %v", err)
	}
	r, err := NewResolver(users, requests, dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func profileFor(email string) Profile {
	return Profile{Email: email, DisplayName: "Someone", CompanyName: "Acme", OfficeLocation: "HQ"}
}

func TestResolveActiveUserGranted(t *testing.T) {
	w := &world{
		users: map[string]registry.User{
			"a@acme.test": {ID: "usr_1", Email: "a@acme.test", DisplayName: "A", CompanyID: "com_1", BranchID: "brn_1", RoleID: "rol_1", Status: authz.UserActive},
		},
		requests: map[string]ledger.PermissionRequest{},
	}
	res, err := newResolver(t, w).Resolve(context.Background(), profileFor("a@acme.test"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeGranted {
		t.Fatalf("outcome = %q, want granted", res.Outcome)
	}
	if res.Principal.UserID != "usr_1" || !res.Principal.HasPrivilege(authz.PrivListRequests) {
		t.Fatalf("principal = %+v", res.Principal)
	}
}

func TestResolveRevokedUser(t *testing.T) {
	w := &world{
		users: map[string]registry.User{
			"r@acme.test": {ID: "usr_2", Email: "r@acme.test", Status: authz.UserRevoked},
		},
		requests: map[string]ledger.PermissionRequest{},
	}
	res, err := newResolver(t, w).Resolve(context.Background(), profileFor("r@acme.test"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeRevoked {
		t.Fatalf("outcome = %q, want revoked", res.Outcome)
	}
}

func TestResolveUnknownUserStatusDenied(t *testing.T) {
	w := &world{
		users: map[string]registry.User{
			"s@acme.test": {ID: "usr_9", Email: "s@acme.test", CompanyID: "com_1", BranchID: "brn_1", RoleID: "rol_1", Status: "suspended"},
		},
		requests: map[string]ledger.PermissionRequest{},
	}
	res, err := newResolver(t, w).Resolve(context.Background(), profileFor("s@acme.test"))
	if !errors.Is(err, authz.ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
	if res.Outcome == OutcomeGranted || res.Principal.UserID != "" {
		t.Fatalf("unknown status produced a session: %+v", res)
	}
}

func TestResolveRequestStatuses(t *testing.T) {
	cases := []struct {
		status authz.RequestStatus
		want   Outcome
	}{
		{authz.RequestPending, OutcomePending},
		{authz.RequestRejected, OutcomeRejected},
		{authz.RequestRevoked, OutcomeRevoked},
	}
	for _, tc := range cases {
		w := &world{
			users: map[string]registry.User{},
			requests: map[string]ledger.PermissionRequest{
				"b@acme.test": {ID: "req_1", Email: "b@acme.test", CompanyID: "com_1", BranchID: "brn_1", Status: tc.status},
			},
		}
		res, err := newResolver(t, w).Resolve(context.Background(), profileFor("b@acme.test"))
		if err != nil {
			t.Fatalf("%s: Resolve: %v", tc.status, err)
		}
		if res.Outcome != tc.want {
			t.Fatalf("%s: outcome = %q, want %q", tc.status, res.Outcome, tc.want)
		}
	}
}

func TestResolveApprovedRequestFoldsToUser(t *testing.T) {
	w := &world{
		users: map[string]registry.User{},
		requests: map[string]ledger.PermissionRequest{
			"c@acme.test": {ID: "req_1", Email: "c@acme.test", DisplayName: "C", CompanyID: "com_1", BranchID: "brn_1", RoleID: "rol_1", Status: authz.RequestApproved},
		},
	}
	r := newResolver(t, w)

	res, err := r.Resolve(context.Background(), profileFor("c@acme.test"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeGranted {
		t.Fatalf("outcome = %q, want granted", res.Outcome)
	}
	if w.requests["c@acme.test"].Status != authz.RequestProcessed {
		t.Fatalf("request status = %q, want processed", w.requests["c@acme.test"].Status)
	}
	if _, ok := w.users["c@acme.test"]; !ok {
		t.Fatalf("fold did not materialize the user")
	}

	// Replaying the callback lands on the materialized user.
	res, err = r.Resolve(context.Background(), profileFor("c@acme.test"))
	if err != nil || res.Outcome != OutcomeGranted {
		t.Fatalf("replay = %q, %v; want granted", res.Outcome, err)
	}
}

func TestResolveUnknownVisitorFilesRequest(t *testing.T) {
	w := &world{users: map[string]registry.User{}, requests: map[string]ledger.PermissionRequest{}}
	r := newResolver(t, w)

	res, err := r.Resolve(context.Background(), profileFor("new@acme.test"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomePending || res.Request == nil || !res.Filed {
		t.Fatalf("resolution = %+v", res)
	}
	firstID := res.Request.ID

	// Second login re-reads the same request.
	res, err = r.Resolve(context.Background(), profileFor("new@acme.test"))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Outcome != OutcomePending || res.Request.ID != firstID || res.Filed {
		t.Fatalf("replay filed a duplicate: %+v", res)
	}
}

func TestResolveUnknownCompanySurfacesDirectoryError(t *testing.T) {
	w := &world{users: map[string]registry.User{}, requests: map[string]ledger.PermissionRequest{}}
	p := Profile{Email: "x@nowhere.test", DisplayName: "X", CompanyName: "Nowhere", OfficeLocation: "HQ"}
	if _, err := newResolver(t, w).Resolve(context.Background(), p); !errors.Is(err, authz.ErrDirectoryLookup) {
		t.Fatalf("err = %v, want ErrDirectoryLookup", err)
	}
}

func TestResolveInvalidProfile(t *testing.T) {
	w := &world{users: map[string]registry.User{}, requests: map[string]ledger.PermissionRequest{}}
	if _, err := newResolver(t, w).Resolve(context.Background(), Profile{DisplayName: "No Email"}); !errors.Is(err, authz.ErrInvalidProfile) {
		t.Fatalf("err = %v, want ErrInvalidProfile", err)
	}
}

func TestStaticProviderExchange(t *testing.T) {
	p := NewStaticProvider("https://idp.example/authorize")
	p.Register("dev-code", profileFor("dev@acme.test"))

	got, err := p.Exchange(context.Background(), "dev-code")
	if err != nil || got.Email != "dev@acme.test" {
		t.Fatalf("Exchange = %+v, %v", got, err)
	}
	if _, err := p.Exchange(context.Background(), "bogus"); !errors.Is(err, authz.ErrUnauthenticated) {
		t.Fatalf("bogus code err = %v, want ErrUnauthenticated", err)
	}
}
