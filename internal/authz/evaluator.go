package authz

import "fmt"

// Scope is a visibility boundary. CompanyID is always set for real targets;
// an empty BranchID means company-wide.
type Scope struct {
	CompanyID string
	BranchID  string
}

// Branchless returns the same scope widened to the whole company.
func (s Scope) Branchless() Scope {
	return Scope{CompanyID: s.CompanyID}
}

// VisibleScope returns the widest scope the principal may read:
// company-wide for administrators, the principal's own branch otherwise.
func VisibleScope(p Principal) Scope {
	if p.IsAdmin() {
		return Scope{CompanyID: p.CompanyID}
	}
	return Scope{CompanyID: p.CompanyID, BranchID: p.BranchID}
}

// Require is the single authorization gate for the whole service. It decides
// whether the principal may perform an operation gated on privilege against
// the target scope, and returns ErrForbidden otherwise. It is a pure function
// of its inputs: callers invoke it before any mutation, never after.
//
// Administrators act company-wide without consulting the privilege table but
// never cross a company boundary. Everyone else needs the named privilege AND
// the target inside their own company and branch.
func Require(p Principal, privilege string, target Scope) error {
	if p.UserID == "" {
		return ErrUnauthenticated
	}
	if target.CompanyID != "" && target.CompanyID != p.CompanyID {
		return fmt.Errorf("%w: target outside company scope", ErrForbidden)
	}
	if p.IsAdmin() {
		return nil
	}
	if !p.HasPrivilege(privilege) {
		return fmt.Errorf("%w: missing privilege %s", ErrForbidden, privilege)
	}
	if target.BranchID != "" && target.BranchID != p.BranchID {
		return fmt.Errorf("%w: target outside branch scope", ErrForbidden)
	}
	return nil
}
