package authz

import "context"

// Principal is the authenticated actor behind a session: identity plus the
// role and scope it operates under. Privileges are resolved once at session
// start and carried with the principal rather than re-queried per call.
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
	CompanyID   string
	BranchID    string
	Privileges  map[string]struct{}
}

// NewPrincipal builds a principal with the given privilege names preloaded.
func NewPrincipal(userID, email, displayName, role, companyID, branchID string, privileges []string) Principal {
	set := make(map[string]struct{}, len(privileges))
	for _, p := range privileges {
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return Principal{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CompanyID:   companyID,
		BranchID:    branchID,
		Privileges:  set,
	}
}

// IsAdmin reports whether the principal holds the System Administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleSystemAdministrator
}

// HasPrivilege reports whether the principal's role grants the named privilege.
func (p Principal) HasPrivilege(name string) bool {
	_, ok := p.Privileges[name]
	return ok
}

// PrivilegeNames returns the granted privilege names (order unspecified).
func (p Principal) PrivilegeNames() []string {
	out := make([]string, 0, len(p.Privileges))
	for name := range p.Privileges {
		out = append(out, name)
	}
	return out
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
